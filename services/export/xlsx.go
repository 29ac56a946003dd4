package exportsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/etda/school/core/report"
)

const sheetName = "Report"

type xlsxExporter struct{}

var _ report.Exporter = (*xlsxExporter)(nil)

func NewXLSXExporter() report.Exporter { return xlsxExporter{} }

func (xlsxExporter) Format() string { return "xlsx" }

func (xlsxExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Export writes the title on the first row, the headers on the second and the rows below.
func (xlsxExporter) Export(w io.Writer, t report.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return errors.Wrap(err, "creating sheet")
	}
	if err = f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, "deleting default sheet")
	}
	if index, err = f.GetSheetIndex(sheetName); err == nil {
		f.SetActiveSheet(index)
	}

	if err = f.SetCellValue(sheetName, "A1", t.Title); err != nil {
		return errors.Wrap(err, "writing title")
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "A1", style)
		if len(t.Headers) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(t.Headers), 2)
			_ = f.SetCellStyle(sheetName, "A2", last, style)
		}
	}

	for i, header := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		if err = f.SetCellValue(sheetName, cell, header); err != nil {
			return errors.Wrap(err, "writing header")
		}
	}
	for r, row := range t.Rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+3)
			if err != nil {
				return err
			}
			if err = f.SetCellValue(sheetName, cell, val); err != nil {
				return errors.Wrap(err, "writing row")
			}
		}
	}

	return errors.Wrap(f.Write(w), "writing workbook")
}
