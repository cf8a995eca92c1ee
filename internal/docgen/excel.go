package docgen

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/dbwarden/warden/internal/core/port"
)

const (
	sheetStructure = "Structure"
	sheetData      = "Data"
)

// ExportTableXLSX builds an XLSX workbook with a structure sheet and a
// data sheet and returns the serialized file. Data columns follow the
// table's column order; columns present in rows but absent from the
// structure are appended alphabetically.
func (g *Generator) ExportTableXLSX(detail *port.TableDetail, rows []map[string]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetStructure)
	if _, err := f.NewSheet(sheetData); err != nil {
		return nil, fmt.Errorf("creating data sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	if err := writeStructureSheet(f, detail, headerStyle); err != nil {
		return nil, err
	}
	if err := writeDataSheet(f, detail, rows, headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeStructureSheet(f *excelize.File, detail *port.TableDetail, headerStyle int) error {
	headers := []string{"Column", "Type", "Nullable", "Default", "Primary Key", "Comment"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetStructure, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetStructure, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for r, col := range detail.Columns {
		values := []any{col.Name, col.DataType, col.IsNullable, col.DefaultValue, col.IsPrimaryKey, col.Comment}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetStructure, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDataSheet(f *excelize.File, detail *port.TableDetail, rows []map[string]any, headerStyle int) error {
	columns := dataColumns(detail, rows)

	for i, name := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetData, cell, name); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetData, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for c, name := range columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			val := row[name]
			if val == nil {
				continue
			}
			// excelize handles the basic scalar types; everything else
			// goes in as its string form.
			switch v := val.(type) {
			case string, bool, int, int32, int64, float32, float64:
				err = f.SetCellValue(sheetData, cell, v)
			default:
				err = f.SetCellValue(sheetData, cell, fmt.Sprintf("%v", v))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// dataColumns derives a stable column order for the data sheet.
func dataColumns(detail *port.TableDetail, rows []map[string]any) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, col := range detail.Columns {
		columns = append(columns, col.Name)
		seen[col.Name] = true
	}

	var extra []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				extra = append(extra, name)
			}
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}
