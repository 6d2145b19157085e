package models

import (
	"time"

	"bitbucket.org/aeromro/spareparts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IssueEvent is an approved consumption of a SKU against a consumer
// (equipment, flight). RemainingBalance is derived: it is owned by the ledger
// replayer/rebuilder and never user-editable.
type IssueEvent struct {
	ID               int             `gorm:"primary_key" json:"id"`
	StockItemId      int             `gorm:"index;not null" json:"stock_item_id"`
	Date             time.Time       `gorm:"index;not null" json:"date"`
	Qty              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Cost             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost"`
	EquipmentRef     string          `gorm:"size:100" json:"equipment_ref"`
	SlipReference    string          `gorm:"size:100" json:"slip_reference"`
	Issuer           []byte          `gorm:"type:json" json:"issuer"`
	RemainingBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`
	Status           ApprovalStatus  `gorm:"type:enum('PENDING','APPROVED','REJECTED');default:PENDING;index" json:"status"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type IssuerIdentity struct {
	Name          string `json:"name"`
	Rank          string `json:"rank"`
	ServiceNumber string `json:"service_number"`
}

// UnknownIssuer is substituted when the stored issuer JSON is malformed.
// A bad structured field must not fail the whole replay.
var UnknownIssuer = IssuerIdentity{Name: "unknown"}

// ParseIssuer decodes the issuer JSON, substituting UnknownIssuer on
// malformed input instead of propagating the error.
func (ie *IssueEvent) ParseIssuer() IssuerIdentity {
	if len(ie.Issuer) == 0 {
		return UnknownIssuer
	}
	var identity IssuerIdentity
	if err := utils.UnmarshalFromJSON(ie.Issuer, &identity); err != nil {
		return UnknownIssuer
	}
	if identity.Name == "" {
		identity.Name = UnknownIssuer.Name
	}
	return identity
}

// GetApprovedIssueEvents fetches approved issues for an item with the same
// bound semantics as GetApprovedReceiveEvents.
func GetApprovedIssueEvents(tx *gorm.DB, itemID int, before, from, to *time.Time) ([]*IssueEvent, error) {
	q := tx.Model(&IssueEvent{}).
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
	var events []*IssueEvent
	if err := q.Order("date, id").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateIssueRemainingBalances persists rebuilt remaining balances.
// Only rows whose value actually changed are written; the count of changed
// rows is returned so the rebuilder can report fixedCount accurately.
func UpdateIssueRemainingBalances(tx *gorm.DB, balances map[int]decimal.Decimal) (int, error) {
	if len(balances) == 0 {
		return 0, nil
	}
	fixed := 0
	for id, balance := range balances {
		res := tx.Model(&IssueEvent{}).
			Where("id = ? AND remaining_balance <> ?", id, balance).
			Update("remaining_balance", balance)
		if res.Error != nil {
			return fixed, res.Error
		}
		fixed += int(res.RowsAffected)
	}
	return fixed, nil
}
