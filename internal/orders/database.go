package orders

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetIdempotencyRecord returns nil when no record exists for key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// SaveIdempotencyRecord stores key for orderID, replacing any earlier record for the same key
func (d *Database) SaveIdempotencyRecord(key, orderID string, expiresAt time.Time) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Unscoped().Where("idempotency_key = ?", key).Delete(&IdempotencyRecord{}).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: key,
		OrderID:        orderID,
		ExpiresAt:      expiresAt,
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// DeleteExpiredIdempotencyRecords removes records that expired before now
func (d *Database) DeleteExpiredIdempotencyRecords(now time.Time) (int64, error) {
	result := d.db.Unscoped().Where("expires_at < ?", now).Delete(&IdempotencyRecord{})
	return result.RowsAffected, result.Error
}
