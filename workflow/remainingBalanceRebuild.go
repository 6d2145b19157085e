package workflow

import (
	"fmt"

	"bitbucket.org/aeromro/spareparts_backend/config"
	"bitbucket.org/aeromro/spareparts_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildSummary reports one remaining-balance rebuild run. Per-SKU failures
// are collected here instead of aborting the whole run.
type RebuildSummary struct {
	JobId      string   `json:"job_id"`
	FixedCount int      `json:"fixed_count"`
	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors"`
	// Closing balances per SKU, published to redis only after the caller's
	// transaction commits. A rolled-back run must leave the cache untouched.
	Balances map[int]decimal.Decimal `json:"-"`
}

// RefreshBalanceCaches publishes the rebuilt balances to redis. Call it after
// the surrounding transaction has committed, never before.
func (s *RebuildSummary) RefreshBalanceCaches() {
	if s == nil {
		return
	}
	for itemID, balance := range s.Balances {
		models.StoreBalanceCache(itemID, balance)
	}
}

func acquireLedgerRebuildLock(tx *gorm.DB) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK('stock_ledger_rebuild', 30)").Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire stock ledger rebuild lock")
	}
	return nil
}

func releaseLedgerRebuildLock(tx *gorm.DB) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK('stock_ledger_rebuild')").Scan(&_ok).Error
}

// RebuildRemainingBalances replays every SKU from its own baseline and writes
// each issue's post-movement balance back onto the event's remaining_balance
// field. Idempotent: a second run writes nothing new. One malformed SKU is
// logged and counted, never blocking the rest. An optional id list narrows
// the run to specific SKUs.
func RebuildRemainingBalances(tx *gorm.DB, logger *logrus.Logger, only ...int) (*RebuildSummary, error) {
	if tx == nil {
		return nil, fmt.Errorf("rebuild remaining balances: tx is nil")
	}
	if logger == nil {
		logger = config.GetLogger()
	}

	if err := acquireLedgerRebuildLock(tx); err != nil {
		return nil, err
	}
	defer releaseLedgerRebuildLock(tx)

	summary := &RebuildSummary{
		JobId:    uuid.NewString(),
		Errors:   make([]string, 0),
		Balances: make(map[int]decimal.Decimal),
	}

	var itemIds []int
	q := tx.Model(&models.StockItem{}).Order("id")
	if len(only) > 0 {
		q = q.Where("id IN ?", only)
	}
	if err := q.Pluck("id", &itemIds).Error; err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"job_id":     summary.JobId,
		"item_count": len(itemIds),
	}).Info("ledger.rebuild.start")

	for _, itemID := range itemIds {
		fixed, balance, err := rebuildItemRemainingBalances(tx, logger, itemID)
		if err != nil {
			config.LogError(logger, "remainingBalanceRebuild.go", "RebuildRemainingBalances", "rebuildItemRemainingBalances", itemID, err)
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, fmt.Sprintf("item %d: %v", itemID, err))
			continue
		}
		summary.FixedCount += fixed
		summary.Balances[itemID] = balance
	}

	logger.WithFields(logrus.Fields{
		"job_id":      summary.JobId,
		"fixed_count": summary.FixedCount,
		"error_count": summary.ErrorCount,
	}).Info("ledger.rebuild.end")

	return summary, nil
}

// rebuildItemRemainingBalances replays one SKU (no windowing) and persists
// the derived balances. Returns the number of issue rows actually changed and
// the closing quantity, which also refreshes the item's cached balance column.
func rebuildItemRemainingBalances(tx *gorm.DB, logger *logrus.Logger, itemID int) (int, decimal.Decimal, error) {
	ledger, err := BuildLedger(tx, logger, itemID, nil, nil)
	if err != nil {
		return 0, decimal.Zero, err
	}

	balances := remainingBalancesFromLedger(ledger)
	fixed, err := models.UpdateIssueRemainingBalances(tx, balances)
	if err != nil {
		return fixed, decimal.Zero, err
	}

	closing := ledger.ClosingQty()
	if err := tx.Model(&models.StockItem{}).
		Where("id = ?", itemID).
		Update("current_balance", closing).Error; err != nil {
		return fixed, closing, err
	}
	return fixed, closing, nil
}

// remainingBalancesFromLedger maps each source issue event to the running
// balance immediately after its movement, floored at zero by the replay. An
// aggregated consumable movement stamps every issue it covers with the same
// post-aggregate balance.
func remainingBalancesFromLedger(ledger *StockLedger) map[int]decimal.Decimal {
	balances := make(map[int]decimal.Decimal)
	for _, entry := range ledger.Entries {
		if entry.Kind != MovementIssue {
			continue
		}
		for _, issueID := range entry.IssueIds {
			balances[issueID] = entry.BalanceQty
		}
	}
	return balances
}
