package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ksred/daigou-api/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultPrefix = "Daigou"
	Extension     = ".xlsx"
	SheetName     = "訂單"

	filenameLayout = "20060102_150405"
	ContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	ErrNoOrders     = errors.New("no orders to export")
	ErrExportFailed = errors.New("export failed")
)

// Headers are the localized column titles, in ExportRow field order
var Headers = []string{
	"購買人",
	"商品名稱",
	"備註",
	"台幣總價",
	"付款狀態",
	"已付訂金",
	"待付尾款",
	"日幣",
	"計算匯率",
	"額外費用",
	"累積金額",
	"網址",
	"時間",
}

// Filename builds the default export filename, e.g. Daigou_20260314_092653.xlsx
func Filename(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "_" + t.Format(filenameLayout) + Extension
}

// WriteXLSX encodes rows as a single-sheet workbook with a header row
func WriteXLSX(w io.Writer, rows []types.ExportRow) error {
	if len(rows) == 0 {
		return ErrNoOrders
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		cells := row.Cells()
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// FileSink writes exports into a directory on the local disk
type FileSink struct {
	Dir    string
	Prefix string
	now    func() time.Time
}

func NewFileSink(dir, prefix string) *FileSink {
	return &FileSink{Dir: dir, Prefix: prefix, now: time.Now}
}

// Save writes rows to a new timestamped file and returns its filename and path.
// Failures are reported as ErrExportFailed; callers pick a fresh name on retry.
func (s *FileSink) Save(rows []types.ExportRow) (string, string, error) {
	if len(rows) == 0 {
		return "", "", ErrNoOrders
	}

	logger := log.With().Str("service", "export").Str("dir", s.Dir).Logger()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create export directory")
		return "", "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	filename := Filename(s.Prefix, s.now())
	path := filepath.Join(s.Dir, filename)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		logger.Error().Err(err).Str("filename", filename).Msg("failed to create export file")
		return "", "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	if err := WriteXLSX(file, rows); err != nil {
		file.Close()
		os.Remove(path)
		logger.Error().Err(err).Str("filename", filename).Msg("failed to write export file")
		return "", "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	if err := file.Close(); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	logger.Info().Str("filename", filename).Int("rows", len(rows)).Msg("export written")
	return filename, path, nil
}
