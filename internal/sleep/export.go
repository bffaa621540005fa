package sleep

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sleepalarm/internal/model"
)

const (
	cellsSheet = "cells"
	pivotSheet = "by_hour"
)

// WriteHeatmapXLSX writes cells as a workbook with two sheets: the raw cell
// list and a day x hour pivot (days as rows, hours 0-23 as columns).
func WriteHeatmapXLSX(w io.Writer, cells []model.HeatMapCell) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", cellsSheet); err != nil {
		return fmt.Errorf("sleep: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(pivotSheet); err != nil {
		return fmt.Errorf("sleep: create sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("sleep: header style: %w", err)
	}

	for col, h := range []string{"Day", "Hour", "Count"} {
		if err := setCell(f, cellsSheet, col+1, 1, h); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(cellsSheet, "A1", "C1", header); err != nil {
		return fmt.Errorf("sleep: header style: %w", err)
	}
	for i, c := range cells {
		row := i + 2
		if err := setCell(f, cellsSheet, 1, row, c.Day.Format(DateLayout)); err != nil {
			return err
		}
		if err := setCell(f, cellsSheet, 2, row, c.Hour); err != nil {
			return err
		}
		if err := setCell(f, cellsSheet, 3, row, c.Count); err != nil {
			return err
		}
	}

	if err := setCell(f, pivotSheet, 1, 1, "Day"); err != nil {
		return err
	}
	for h := 0; h < 24; h++ {
		if err := setCell(f, pivotSheet, h+2, 1, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(25, 1)
	if err != nil {
		return fmt.Errorf("sleep: coordinates: %w", err)
	}
	if err := f.SetCellStyle(pivotSheet, "A1", last, header); err != nil {
		return fmt.Errorf("sleep: header style: %w", err)
	}

	// cells arrive ordered by day, so rows are assigned on first sight.
	rows := make(map[string]int)
	for _, c := range cells {
		day := c.Day.Format(DateLayout)
		row, ok := rows[day]
		if !ok {
			row = len(rows) + 2
			rows[day] = row
			if err := setCell(f, pivotSheet, 1, row, day); err != nil {
				return err
			}
		}
		if err := setCell(f, pivotSheet, c.Hour+2, row, c.Count); err != nil {
			return err
		}
	}

	if err := f.SetPanes(pivotSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return fmt.Errorf("sleep: freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("sleep: write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("sleep: coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("sleep: set %s!%s: %w", sheet, cell, err)
	}
	return nil
}
