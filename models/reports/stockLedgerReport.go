package reports

import (
	"context"
	"time"

	"bitbucket.org/aeromro/spareparts_backend/config"
	"bitbucket.org/aeromro/spareparts_backend/models"
	"bitbucket.org/aeromro/spareparts_backend/workflow"
	"github.com/shopspring/decimal"
)

type StockLedgerRow struct {
	Date          string          `json:"date"`
	Reference     string          `json:"reference"`
	Kind          string          `json:"kind"`
	QtyIn         decimal.Decimal `json:"qtyIn"`
	QtyOut        decimal.Decimal `json:"qtyOut"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceQty    decimal.Decimal `json:"balanceQty"`
	BalanceAmount decimal.Decimal `json:"balanceAmount"`
	EquipmentRef  string          `json:"equipmentRef,omitempty"`
	Issuer        string          `json:"issuer,omitempty"`
}

type StockLedgerReportResponse struct {
	ItemCode            string                   `json:"itemCode"`
	ItemName            string                   `json:"itemName"`
	FromDate            string                   `json:"fromDate,omitempty"`
	ToDate              string                   `json:"toDate,omitempty"`
	OpeningQty          decimal.Decimal          `json:"openingQty"`
	OpeningAmount       decimal.Decimal          `json:"openingAmount"`
	Rows                []StockLedgerRow         `json:"rows"`
	ClosingQty          decimal.Decimal          `json:"closingQty"`
	ClosingAmount       decimal.Decimal          `json:"closingAmount"`
	UnresolvedDeferrals []workflow.DeferredIssue `json:"unresolvedDeferrals,omitempty"`
}

// GetStockLedgerReport renders the replayed ledger of one SKU for a report
// window. Unresolved deferrals are included so the shortfall is displayed
// instead of hidden.
func GetStockLedgerReport(ctx context.Context, itemID int, fromDate, toDate *time.Time) (*StockLedgerReportResponse, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx)

	item, err := models.FetchStockItem(tx, itemID)
	if err != nil {
		return nil, err
	}

	ledger, err := workflow.BuildLedger(tx, config.GetLogger(), itemID, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	response := &StockLedgerReportResponse{
		ItemCode:            item.Code,
		ItemName:            item.Name,
		OpeningQty:          ledger.OpeningQty,
		OpeningAmount:       ledger.OpeningAmount,
		Rows:                make([]StockLedgerRow, 0, len(ledger.Entries)),
		ClosingQty:          ledger.ClosingQty(),
		ClosingAmount:       ledger.ClosingAmount(),
		UnresolvedDeferrals: ledger.UnresolvedDeferrals,
	}
	if fromDate != nil {
		response.FromDate = fromDate.Format("2006-01-02")
	}
	if toDate != nil {
		response.ToDate = toDate.Format("2006-01-02")
	}

	for _, entry := range ledger.Entries {
		row := StockLedgerRow{
			Date:          entry.Date.Format("2006-01-02"),
			Reference:     entry.Ref,
			Kind:          string(entry.Kind),
			Amount:        entry.Amount,
			BalanceQty:    entry.BalanceQty,
			BalanceAmount: entry.BalanceAmount,
			EquipmentRef:  entry.EquipmentRef,
			Issuer:        entry.Issuer,
		}
		if entry.Kind == workflow.MovementReceipt {
			row.QtyIn = entry.Qty
		} else {
			row.QtyOut = entry.Qty
		}
		response.Rows = append(response.Rows, row)
	}
	return response, nil
}
