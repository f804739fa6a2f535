package worker

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"adimporter/shared/domain/entity/job"

	"adimporter/workers/importer/internal/domain"
)

// SummaryID marks the trailing summary row of a report.
const SummaryID = "__summary__"

// Report is the CSV artifact of a run. Every row is flushed as soon as it is
// appended so a crashed worker still leaves a usable partial report.
type Report struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewReport creates (or truncates) the report at path and writes the header.
func NewReport(path string) (*Report, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}

	r := &Report{path: path, file: file, w: csv.NewWriter(file)}
	if err := r.write(domain.ReportHeader); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

// Path is the location of the CSV file.
func (r *Report) Path() string { return r.path }

// Append writes one outcome row.
func (r *Report) Append(o domain.Outcome) error {
	return r.write(o.Columns())
}

// Close writes the summary row and closes the file.
func (r *Report) Close(status string, c job.Counters) error {
	row := make([]string, len(domain.ReportHeader))
	row[0] = SummaryID
	row[1] = status
	row[3] = SummaryLine(c)

	err := r.write(row)

	r.mu.Lock()
	defer r.mu.Unlock()
	if closeErr := r.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (r *Report) write(row []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// SummaryLine renders the counters for the summary row.
func SummaryLine(c job.Counters) string {
	return fmt.Sprintf("ok=%d skipped=%d failed=%d processed=%d total=%d",
		c.OK, c.Skipped, c.Failed, c.Processed, c.Total)
}

// XLSXPath is where the spreadsheet copy of csvPath is written.
func XLSXPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".xlsx"
}

// WriteXLSX renders the CSV report at csvPath as a spreadsheet at xlsxPath.
func WriteXLSX(csvPath, xlsxPath string) error {
	in, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer in.Close()

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	index, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read report row %d: %w", rowNum, err)
		}

		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		values := make([]interface{}, len(record))
		for i, v := range record {
			values[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", rowNum, err)
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 22) // id
	_ = f.SetColWidth(sheet, "B", "D", 14) // status, type, reason
	_ = f.SetColWidth(sheet, "E", "G", 40) // paths
	_ = f.SetColWidth(sheet, "I", "I", 60) // error

	if err := f.SaveAs(xlsxPath); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
