package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter renders reports as an xlsx workbook into an io.Writer.
type XLSXWriter struct {
	out io.Writer
}

// NewXLSXWriter creates a writer that streams each report to out.
func NewXLSXWriter(out io.Writer) *XLSXWriter {
	return &XLSXWriter{out: out}
}

func (w *XLSXWriter) Write(_ context.Context, r Report) error {
	data, err := RenderXLSX(r)
	if err != nil {
		return err
	}
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}

// RenderXLSX builds a workbook with USERS, HOLDINGS and COINS sheets.
func RenderXLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name string
		rows [][]any
	}{
		{sheetUsers, buildUsers(r)},
		{sheetHoldings, buildHoldings(r)},
		{sheetCoins, buildCoins(r)},
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("creating sheet %s: %w", s.name, err)
		}

		for rowIdx, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return nil, fmt.Errorf("writing %s row %d: %w", s.name, rowIdx+1, err)
			}
		}

		last, err := excelize.CoordinatesToCellName(len(s.rows[0]), 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(s.name, "A1", last, bold); err != nil {
			return nil, fmt.Errorf("styling %s header: %w", s.name, err)
		}
		if err := f.SetPanes(s.name, &excelize.Panes{
			Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
		}); err != nil {
			return nil, fmt.Errorf("freezing %s header: %w", s.name, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("encoding xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
