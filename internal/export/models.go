package export

import (
	"time"

	"gorm.io/gorm"
)

// ExportRecord logs one spreadsheet written during the session
type ExportRecord struct {
	gorm.Model `json:"-"`
	ExportID   string    `gorm:"uniqueIndex" json:"export_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Rows       int       `json:"rows"`
	CreatedAt  time.Time `json:"created_at"`
}
