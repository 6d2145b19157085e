package workflow

import (
	"time"

	"bitbucket.org/aeromro/spareparts_backend/models"
	"bitbucket.org/aeromro/spareparts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResolveOpeningBalance computes (quantity, amount) as of the cutoff date:
// the item's stored baseline plus all approved receipts minus all approved
// issues dated strictly before the cutoff, clamped at zero for the ledger
// view. A cutoff at or before the baseline epoch returns the raw baseline,
// since no movements exist to apply. Pure function of stored events: calling
// it twice with identical inputs yields identical output.
func ResolveOpeningBalance(tx *gorm.DB, item *models.StockItem, cutoff time.Time) (decimal.Decimal, decimal.Decimal, error) {
	day := utils.DateOnly(cutoff)
	if !day.After(utils.DateOnly(item.OpeningDate)) {
		return item.OpeningQty, item.OpeningAmount, nil
	}

	receives, err := models.GetApprovedReceiveEvents(tx, item.ID, &day, nil, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	issues, err := models.GetApprovedIssueEvents(tx, item.ID, &day, nil, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	movements, err := NormalizeMovements(item, receives, issues)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	qty, amount := foldOpeningBalance(item.OpeningQty, item.OpeningAmount, movements)
	return qty, amount, nil
}

// foldOpeningBalance sums movements onto a baseline. Both dimensions are
// floored at zero: the canonical ledger view never shows a negative balance.
func foldOpeningBalance(openQty, openAmount decimal.Decimal, movements []Movement) (decimal.Decimal, decimal.Decimal) {
	qty := openQty
	amount := openAmount
	for _, mov := range movements {
		switch mov.Kind {
		case MovementReceipt:
			qty = qty.Add(mov.Qty)
			amount = amount.Add(mov.Amount)
		case MovementIssue:
			qty = qty.Sub(mov.Qty)
			amount = amount.Sub(mov.Amount)
		}
	}
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return qty, amount
}
