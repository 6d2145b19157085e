package models

import (
	"time"

	"bitbucket.org/aeromro/spareparts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiveEvent is an approved receipt of a SKU. Immutable once approved;
// rejected receipts never participate in ledger math. Amount comes from the
// linked receiving report, or zero for free-of-cost tender receipts.
type ReceiveEvent struct {
	ID          int             `gorm:"primary_key" json:"id"`
	StockItemId int             `gorm:"index;not null" json:"stock_item_id"`
	Date        time.Time       `gorm:"index;not null" json:"date"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Reference   string          `gorm:"size:100" json:"reference"`
	Source      ReceiveSource   `gorm:"type:enum('PURCHASE','TENDER','BORROW');default:PURCHASE" json:"source"`
	Status      ApprovalStatus  `gorm:"type:enum('PENDING','APPROVED','REJECTED');default:PENDING;index" json:"status"`
	RrpRecordId *int            `gorm:"index" json:"rrp_record_id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Window bounds arrive as timestamps but ledger semantics are calendar-day.
// Stored event dates may carry a time of day, so an inclusive "to" bound must
// cover the whole closing day and a "from" bound starts at its midnight.
func dayFloor(t time.Time) time.Time { return utils.DateOnly(t) }
func dayCeil(t time.Time) time.Time  { return utils.DateOnly(t).AddDate(0, 0, 1) }

// GetApprovedReceiveEvents fetches approved receipts for an item.
// before excludes the bound's own day; from/to bound an inclusive window of
// calendar days. Nil bounds are skipped. Ordering matches the ledger total
// order so callers never depend on storage collation.
func GetApprovedReceiveEvents(tx *gorm.DB, itemID int, before, from, to *time.Time) ([]*ReceiveEvent, error) {
	q := tx.Model(&ReceiveEvent{}).
		Where("stock_item_id = ? AND status = ?", itemID, ApprovalStatusApproved)
	if before != nil {
		q = q.Where("date < ?", dayFloor(*before))
	}
	if from != nil {
		q = q.Where("date >= ?", dayFloor(*from))
	}
	if to != nil {
		q = q.Where("date < ?", dayCeil(*to))
	}
	var events []*ReceiveEvent
	if err := q.Order("date, id").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
