package export

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recorder persists ExportRecords in the session database
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Record(filename, path string, rows int) (*ExportRecord, error) {
	record := &ExportRecord{
		ExportID:  "EXP_" + uuid.New().String(),
		Filename:  filename,
		Path:      path,
		Rows:      rows,
		CreatedAt: time.Now(),
	}
	if err := r.db.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// List returns the export log, newest first
func (r *Recorder) List() ([]ExportRecord, error) {
	var records []ExportRecord
	if err := r.db.Order("created_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
