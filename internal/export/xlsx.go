package export

import (
	"bytes"
	"fmt"

	"github.com/tealeg/xlsx"
)

// renderXLSX writes a two-column Field/Value sheet with the content in the last row.
func renderXLSX(doc Document) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transcription")
	if err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	addRow(sheet, true, "Field", "Value")
	for _, f := range headerFields(doc) {
		addRow(sheet, false, f[0], f[1])
	}
	addRow(sheet, false, "", "")
	content := addRow(sheet, true, "Content", doc.Content)
	style := content.Cells[1].GetStyle()
	style.Alignment.WrapText = true
	style.Alignment.Vertical = "top"
	style.ApplyAlignment = true

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func addRow(sheet *xlsx.Sheet, bold bool, field, value string) *xlsx.Row {
	row := sheet.AddRow()
	for _, v := range []string{field, value} {
		cell := row.AddCell()
		cell.Value = v
		if bold {
			style := cell.GetStyle()
			style.Font.Bold = true
			style.ApplyFont = true
		}
	}
	return row
}
