package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	totalsSheet = "Totals"
	detailSheet = "Detail"
)

// XLSX renders the report as a workbook with a Totals sheet and a Detail
// sheet. Detail lists every dinner, or only the person's when the report
// is narrowed to one.
func XLSX(r Report) ([]byte, error) {
	xlsx := excelize.NewFile()
	defer xlsx.Close()

	_ = xlsx.SetAppProps(&excelize.AppProperties{Application: "dinners"})

	if err := xlsx.SetSheetName(xlsx.GetSheetName(0), totalsSheet); err != nil {
		return nil, err
	}
	if _, err := xlsx.NewSheet(detailSheet); err != nil {
		return nil, err
	}

	bold, err := xlsx.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := xlsx.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, err
	}

	rows := [][]any{{"Person", "Total"}}
	for _, t := range r.Totals {
		rows = append(rows, []any{string(t.Person), t.Amount.InexactFloat64()})
	}
	rows = append(rows, []any{"Total", r.Total().InexactFloat64()})
	if err := writeRows(xlsx, totalsSheet, rows); err != nil {
		return nil, err
	}
	_ = xlsx.SetCellStyle(totalsSheet, "A1", "B1", bold)
	_ = xlsx.SetCellStyle(totalsSheet, "B2", cell("B", len(rows)), money)
	_ = xlsx.SetCellStyle(totalsSheet, cell("A", len(rows)), cell("A", len(rows)), bold)
	_ = xlsx.SetColWidth(totalsSheet, "A", "A", 20)

	if r.Person != "" {
		rows = [][]any{{"Date", string(r.Person)}}
		for _, e := range r.Detail {
			rows = append(rows, []any{e.Date.String(), e.Price.InexactFloat64()})
		}
		rows = append(rows, []any{"Total", r.DetailTotal().InexactFloat64()})
		if err := writeRows(xlsx, detailSheet, rows); err != nil {
			return nil, err
		}
		_ = xlsx.SetCellStyle(detailSheet, "B2", cell("B", len(rows)), money)
	} else {
		rows = [][]any{{"Date", "Attendees", "Price per person", "Cost"}}
		for _, d := range r.Dinners {
			rows = append(rows, []any{d.Date.String(), names(d.Attendees), d.Price.InexactFloat64(), d.Cost().InexactFloat64()})
		}
		if err := writeRows(xlsx, detailSheet, rows); err != nil {
			return nil, err
		}
		if len(rows) > 1 {
			_ = xlsx.SetCellStyle(detailSheet, "C2", cell("D", len(rows)), money)
		}
		_ = xlsx.SetColWidth(detailSheet, "B", "B", 30)
	}
	_ = xlsx.SetCellStyle(detailSheet, "A1", "D1", bold)
	_ = xlsx.SetColWidth(detailSheet, "A", "A", 12)

	xlsx.SetActiveSheet(0)

	buf, err := xlsx.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(xlsx *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if err := xlsx.SetSheetRow(sheet, cell("A", i+1), &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
