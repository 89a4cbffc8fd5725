package migrations

import (
	"github.com/ksred/daigou-api/internal/export"
	"gorm.io/gorm"
)

// AddExportRecords creates the export log table
func AddExportRecords(db *gorm.DB) error {
	if err := db.AutoMigrate(&export.ExportRecord{}); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_export_records_created_at
		 ON export_records(created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
