package migrations

import (
	"github.com/ksred/daigou-api/internal/orders"
	"gorm.io/gorm"
)

// AddIdempotencyRecords creates the table that deduplicates order submissions
func AddIdempotencyRecords(db *gorm.DB) error {
	if err := db.AutoMigrate(&orders.IdempotencyRecord{}); err != nil {
		return err
	}

	// The cleanup processor scans by expiry
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires_at
		ON idempotency_records(expires_at)`).Error
}
