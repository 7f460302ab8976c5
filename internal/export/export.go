// Package export writes the pending offline queue to an Excel workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"famhub/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Queue"

var headers = []string{"#", "ID", "Type", "Created at", "Payload"}

// QueueWorkbook builds a workbook with one row per queued action, in queue
// order. The caller closes the returned file.
func QueueWorkbook(actions []models.QueuedAction, generatedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Pending actions: %d (generated %s)",
		len(actions), generatedAt.Format("2006-01-02 15:04")))
	_ = f.MergeCell(sheetName, "A1", "E1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, a := range actions {
		row := i + 3
		values := []any{i + 1, a.ID, a.Type.Label(), a.CreatedAt.Format(time.RFC3339), string(a.Payload)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 6)
	_ = f.SetColWidth(sheetName, "B", "B", 38)
	_ = f.SetColWidth(sheetName, "C", "C", 16)
	_ = f.SetColWidth(sheetName, "D", "D", 22)
	_ = f.SetColWidth(sheetName, "E", "E", 60)

	return f, nil
}

// WriteQueue streams the workbook to w.
func WriteQueue(w io.Writer, actions []models.QueuedAction, generatedAt time.Time) error {
	f, err := QueueWorkbook(actions, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveQueue writes the workbook to path, creating parent directories.
func SaveQueue(path string, actions []models.QueuedAction, generatedAt time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}

	f, err := QueueWorkbook(actions, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
