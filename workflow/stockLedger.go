package workflow

import (
	"time"

	"bitbucket.org/aeromro/spareparts_backend/models"
	"bitbucket.org/aeromro/spareparts_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BuildLedger replays one SKU over a report window. The opening balance is
// resolved at windowStart; a nil windowStart replays from the item's own
// baseline. Consumable SKUs get their same-day issues aggregated before the
// replay, in every call path. Unresolved deferrals are logged as a warning
// and returned on the ledger, never as an error.
func BuildLedger(tx *gorm.DB, logger *logrus.Logger, itemID int, windowStart, windowEnd *time.Time) (*StockLedger, error) {
	item, err := models.FetchStockItem(tx, itemID)
	if err != nil {
		return nil, err
	}

	openQty := item.OpeningQty
	openAmount := item.OpeningAmount
	if windowStart != nil {
		openQty, openAmount, err = ResolveOpeningBalance(tx, item, *windowStart)
		if err != nil {
			return nil, err
		}
	}

	receives, err := models.GetApprovedReceiveEvents(tx, itemID, nil, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	issues, err := models.GetApprovedIssueEvents(tx, itemID, nil, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	movements, err := NormalizeMovements(item, receives, issues)
	if err != nil {
		return nil, err
	}
	if utils.BoolValue(item.IsConsumable) {
		movements = AggregateConsumableIssues(movements)
	}

	ledger := ReplayLedger(openQty, openAmount, movements)

	if len(ledger.UnresolvedDeferrals) > 0 && logger != nil {
		logger.WithFields(logrus.Fields{
			"stock_item_id":  itemID,
			"item_code":      item.Code,
			"deferral_count": len(ledger.UnresolvedDeferrals),
		}).Warn("ledger.unresolved_deferrals")
	}

	return ledger, nil
}
