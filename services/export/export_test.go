package exportsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"

	"github.com/etda/school/core/report"
)

func testTable() report.Table {
	return report.Table{
		Title:   "Students",
		Headers: []string{"Name", "Email", "Class"},
		Rows: [][]string{
			{"Ana Souza", "ana@etda.test", "1A"},
			{"João Lima", "joao@etda.test", "-"},
		},
		GeneratedAt: time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestRegistry(t *testing.T) {
	reg := NewDefaultRegistry()
	assert.Equal(t, []string{"pdf", "xlsx"}, reg.Formats())

	exp, err := reg.Get(" XLSX ")
	if assert.NoError(t, err) {
		assert.Equal(t, "xlsx", exp.Format())
	}

	_, err = reg.Get("csv")
	assert.Equal(t, report.ErrUnknownFormat, err)
}

func TestXLSXExport(t *testing.T) {
	var buf bytes.Buffer
	if err := NewXLSXExporter().Export(&buf, testTable()); !assert.NoError(t, err) {
		return
	}

	f, err := excelize.OpenReader(&buf)
	if !assert.NoError(t, err) {
		return
	}
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())
	rows, err := f.GetRows(sheetName)
	if assert.NoError(t, err) && assert.Len(t, rows, 4) {
		assert.Equal(t, []string{"Students"}, rows[0])
		assert.Equal(t, []string{"Name", "Email", "Class"}, rows[1])
		assert.Equal(t, []string{"João Lima", "joao@etda.test", "-"}, rows[3])
	}
}

func TestPDFExport(t *testing.T) {
	tests := []struct {
		name  string
		table report.Table
	}{
		{name: "rows", table: testTable()},
		{name: "empty", table: report.Table{Title: "Empty", Headers: []string{"Name"}}},
		{name: "long cell", table: report.Table{
			Title:   "Long",
			Headers: []string{"A", "B", "C", "D", "E", "F"},
			Rows:    [][]string{{"a very long value that cannot possibly fit in such a narrow column", "b", "c", "d", "e", "f"}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if assert.NoError(t, NewPDFExporter().Export(&buf, tc.table)) {
				assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
			}
		})
	}
}
