// Package export renders ingested records as an Excel workbook, so the
// contents of the record store can be reviewed without a SQL client.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shikya/call-record-ingestor/internal/record"
	"github.com/shikya/call-record-ingestor/pkg/logger"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Records"

var (
	log = logger.Get("Export")

	header = []any{
		"ID", "Filename", "Contact", "Recorded At",
		"Year", "Month", "Day", "Hour", "Minute", "Second",
		"Duration (s)", "Bitrate", "Sample Rate", "Channels",
		"File Size (bytes)", "Ingested At",
	}
)

// WriteFile renders the records to a new workbook at the path provided.
func WriteFile(path string, records []*record.PhoneRecord) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}

	log.Successf("Exported %d record(s) to %s\n", len(records), path)
	return nil
}

// Write renders the records as a workbook on to the writer provided.
func Write(w io.Writer, records []*record.PhoneRecord) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}

func build(records []*record.PhoneRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := writeRows(f, records); err != nil {
		_ = f.Close()
		return nil, err
	}

	return f, nil
}

func writeRows(f *excelize.File, records []*record.PhoneRecord) error {
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		row := rowFor(rec)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write record %d: %w", rec.ID, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "B", "B", 36); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "C", "D", 22); err != nil {
		return err
	}

	return f.AutoFilter(SheetName, fmt.Sprintf("A1:%s%d", last, len(records)+1), nil)
}

func rowFor(rec *record.PhoneRecord) []any {
	recordedAt := ""
	if key := rec.Key(); key.Valid() {
		recordedAt = key.Time(time.Local).Format(time.DateTime)
	}

	ingestedAt := ""
	if rec.CreatedAt != nil {
		ingestedAt = rec.CreatedAt.Local().Format(time.DateTime)
	}

	return []any{
		rec.ID, rec.Filename, rec.Contact, recordedAt,
		rec.Year, rec.Month, rec.Day, rec.Hour, rec.Minute, rec.Second,
		optional(rec.DurationSeconds), optional(rec.Bitrate), optional(rec.SampleRate), optional(rec.Channels),
		rec.FileSizeBytes, ingestedAt,
	}
}

// optional renders absent attributes as empty cells.
func optional[T any](v *T) any {
	if v == nil {
		return nil
	}

	return *v
}
