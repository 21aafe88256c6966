package reports

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/settings"
)

const ledgerSheet = "Ledger"

var ledgerHeader = []string{"Date", "Type", "Origin", "Category", "Description", "Customer", "Amount", "Paid", "Balance Due", "Status"}

func ledgerRow(e ledger.Entry, names map[uuid.UUID]string) []any {
	customer := ""
	if e.CustomerID != nil {
		customer = names[*e.CustomerID]
	}
	if customer == "" && e.WebOrder != nil {
		customer = e.WebOrder.Contact.Name
	}
	return []any{
		e.Date.Format("2006-01-02"),
		string(e.Kind),
		string(e.Origin),
		e.Category,
		e.Description,
		customer,
		e.Amount.InexactFloat64(),
		e.AmountPaid.InexactFloat64(),
		ledger.BalanceDue(e).InexactFloat64(),
		string(e.Status()),
	}
}

// WriteLedgerXLSX renders entries as a workbook with a totals row.
func WriteLedgerXLSX(w io.Writer, entries []ledger.Entry, names map[uuid.UUID]string, s settings.Settings) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return err
	}
	if err := f.SetCellValue(ledgerSheet, "A1", fmt.Sprintf("%s ledger (%s)", s.CompanyName, s.Currency)); err != nil {
		return err
	}
	if err := f.SetSheetRow(ledgerSheet, "A3", &ledgerHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ledgerSheet, "A3", "J3", bold); err != nil {
		return err
	}
	amountFmt := "#,##0.00"
	amounts, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFmt})
	if err != nil {
		return err
	}

	row := 4
	for _, e := range entries {
		cells := ledgerRow(e, names)
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(ledgerSheet, cell, &cells); err != nil {
			return err
		}
		row++
	}
	if row > 4 {
		first, _ := excelize.CoordinatesToCellName(7, 4)
		last, _ := excelize.CoordinatesToCellName(9, row)
		if err := f.SetCellStyle(ledgerSheet, first, last, amounts); err != nil {
			return err
		}
		summary := ledger.Summarize(entries)
		totals := []any{"", "", "", "", "Income totals", "", summary.Income.InexactFloat64(), summary.Collected.InexactFloat64(), summary.Receivable.InexactFloat64(), ""}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(ledgerSheet, cell, &totals); err != nil {
			return err
		}
		end, _ := excelize.CoordinatesToCellName(10, row)
		if err := f.SetCellStyle(ledgerSheet, cell, end, bold); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(ledgerSheet, "E", "F", 32); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// WriteLedgerCSV emits entries as CSV with plain decimal amounts.
func WriteLedgerCSV(w io.Writer, entries []ledger.Entry, names map[uuid.UUID]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ledgerHeader); err != nil {
		return err
	}
	for _, e := range entries {
		cells := ledgerRow(e, names)
		record := []string{
			cells[0].(string), cells[1].(string), cells[2].(string), cells[3].(string), cells[4].(string), cells[5].(string),
			fixed(e.Amount), fixed(e.AmountPaid), fixed(ledger.BalanceDue(e)),
			cells[9].(string),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func fixed(d decimal.Decimal) string {
	return money.Round(d).StringFixed(2)
}
