package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportStockLedgerExcel renders a stock ledger report to a workbook.
func ExportStockLedgerExcel(report *StockLedgerReportResponse) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Stock Ledger"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	f.SetCellValue(sheet, "A1", fmt.Sprintf("%s - %s", report.ItemCode, report.ItemName))
	if report.FromDate != "" || report.ToDate != "" {
		f.SetCellValue(sheet, "A2", fmt.Sprintf("Period: %s to %s", report.FromDate, report.ToDate))
	}

	headers := []string{"Date", "Reference", "Kind", "Qty In", "Qty Out", "Amount", "Balance Qty", "Balance Amount", "Equipment", "Issuer"}
	for i, h := range headers {
		cell, cerr := excelize.CoordinatesToCellName(i+1, 4)
		if cerr != nil {
			return nil, cerr
		}
		f.SetCellValue(sheet, cell, h)
	}

	f.SetCellValue(sheet, "A5", "Opening Balance")
	f.SetCellValue(sheet, "G5", report.OpeningQty.InexactFloat64())
	f.SetCellValue(sheet, "H5", report.OpeningAmount.InexactFloat64())

	rowNo := 6
	for _, row := range report.Rows {
		values := []interface{}{
			row.Date,
			row.Reference,
			row.Kind,
			row.QtyIn.InexactFloat64(),
			row.QtyOut.InexactFloat64(),
			row.Amount.InexactFloat64(),
			row.BalanceQty.InexactFloat64(),
			row.BalanceAmount.InexactFloat64(),
			row.EquipmentRef,
			row.Issuer,
		}
		for i, v := range values {
			cell, cerr := excelize.CoordinatesToCellName(i+1, rowNo)
			if cerr != nil {
				return nil, cerr
			}
			f.SetCellValue(sheet, cell, v)
		}
		rowNo++
	}

	f.SetCellValue(sheet, fmt.Sprintf("A%d", rowNo), "Closing Balance")
	f.SetCellValue(sheet, fmt.Sprintf("G%d", rowNo), report.ClosingQty.InexactFloat64())
	f.SetCellValue(sheet, fmt.Sprintf("H%d", rowNo), report.ClosingAmount.InexactFloat64())
	rowNo++

	for _, d := range report.UnresolvedDeferrals {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", rowNo), "UNRESOLVED SHORTFALL")
		f.SetCellValue(sheet, fmt.Sprintf("B%d", rowNo), d.IssueRef)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", rowNo), d.QtyOwed.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("I%d", rowNo), d.EquipmentRef)
		rowNo++
	}

	return f, nil
}
