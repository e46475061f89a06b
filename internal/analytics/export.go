package analytics

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/sos-villages/signalement/internal/case/domain"
)

const (
	villagesSheet  = "Villages"
	breakdownSheet = "Breakdown"
)

// XLSXContentType is the media type of an exported workbook
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportXLSX renders a summary as a workbook with one sheet per village line
// and one with the national breakdowns
func ExportXLSX(sum *Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(villagesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(villagesSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to find sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(breakdownSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	statuses := domain.Statuses()
	header := []any{"Village", "Total", "Average score"}
	for _, s := range statuses {
		header = append(header, string(s))
	}
	rows := [][]any{header}
	for _, v := range sum.Villages {
		row := []any{v.VillageName, v.TotalCases, v.AverageScore}
		for _, s := range statuses {
			row = append(row, v.ByStatus[string(s)])
		}
		rows = append(rows, row)
	}
	total := []any{"Total", sum.TotalCases, sum.AverageScore}
	for _, s := range statuses {
		total = append(total, sum.ByStatus[string(s)])
	}
	rows = append(rows, total)

	if err := writeRows(f, villagesSheet, rows, headerStyle); err != nil {
		return nil, err
	}

	breakdown := [][]any{{"Dimension", "Value", "Cases"}}
	for _, dim := range []struct {
		name   string
		counts map[string]int
	}{
		{"status", sum.ByStatus},
		{"incident_type", sum.ByIncidentType},
		{"urgency", sum.ByUrgency},
	} {
		for _, k := range sortedKeys(dim.counts) {
			breakdown = append(breakdown, []any{dim.name, k, dim.counts[k]})
		}
	}
	if err := writeRows(f, breakdownSheet, breakdown, headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}

	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return f.SetColWidth(sheet, "A", "A", 22)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
