package workflow

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/aeromro/spareparts_backend/models"
	"bitbucket.org/aeromro/spareparts_backend/utils"
	"github.com/shopspring/decimal"
)

// ErrInvalidMovementData marks a source row that would corrupt ledger math:
// a missing/zero date or a non-positive quantity. Fatal for that SKU's replay.
var ErrInvalidMovementData = errors.New("invalid movement data")

type MovementKind string

const (
	MovementReceipt MovementKind = "RECEIPT"
	MovementIssue   MovementKind = "ISSUE"
)

// Movement is the canonical in-engine view of one receipt or issue. It is
// never persisted; it exists only for the duration of one replay.
type Movement struct {
	Date         time.Time       `json:"date"`
	ID           int             `json:"id"`
	Kind         MovementKind    `json:"kind"`
	Qty          decimal.Decimal `json:"qty"`
	Amount       decimal.Decimal `json:"amount"`
	Ref          string          `json:"ref"`
	EquipmentRef string          `json:"equipment_ref,omitempty"`
	// Issuer name for issues; the unknown-issuer sentinel when the stored
	// JSON is malformed or empty.
	Issuer string `json:"issuer,omitempty"`
	// Source issue event ids; more than one after consumable aggregation.
	IssueIds []int `json:"-"`
}

// NormalizeMovements converts raw receive/issue rows into a single sorted
// Movement sequence. Rows not in APPROVED state are excluded entirely. For a
// bulk zero-cost item, receipt amounts carry the purchase quantity instead of
// a monetary value.
func NormalizeMovements(item *models.StockItem, receives []*models.ReceiveEvent, issues []*models.IssueEvent) ([]Movement, error) {
	movements := make([]Movement, 0, len(receives)+len(issues))

	bulkZeroCost := utils.BoolValue(item.IsBulkZeroCostItem)

	for _, ev := range receives {
		if ev == nil || ev.Status != models.ApprovalStatusApproved {
			continue
		}
		if ev.Date.IsZero() {
			return nil, fmt.Errorf("%w: receive %d has no date", ErrInvalidMovementData, ev.ID)
		}
		if !ev.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: receive %d qty %s", ErrInvalidMovementData, ev.ID, ev.Qty)
		}
		amount := ev.Amount
		if bulkZeroCost {
			amount = ev.Qty
		}
		ref := ev.Reference
		if ref == "" {
			ref = fmt.Sprintf("RCV-%d", ev.ID)
		}
		movements = append(movements, Movement{
			Date:   utils.DateOnly(ev.Date),
			ID:     ev.ID,
			Kind:   MovementReceipt,
			Qty:    ev.Qty,
			Amount: amount,
			Ref:    ref,
		})
	}

	for _, ev := range issues {
		if ev == nil || ev.Status != models.ApprovalStatusApproved {
			continue
		}
		if ev.Date.IsZero() {
			return nil, fmt.Errorf("%w: issue %d has no date", ErrInvalidMovementData, ev.ID)
		}
		if !ev.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: issue %d qty %s", ErrInvalidMovementData, ev.ID, ev.Qty)
		}
		ref := ev.SlipReference
		if ref == "" {
			ref = fmt.Sprintf("ISS-%d", ev.ID)
		}
		movements = append(movements, Movement{
			Date:         utils.DateOnly(ev.Date),
			ID:           ev.ID,
			Kind:         MovementIssue,
			Qty:          ev.Qty,
			Amount:       ev.Cost,
			Ref:          ref,
			EquipmentRef: ev.EquipmentRef,
			Issuer:       ev.ParseIssuer().Name,
			IssueIds:     []int{ev.ID},
		})
	}

	sortMovements(movements)
	return movements, nil
}

// sortMovements applies the ledger total order: calendar date ascending, then
// receipts before issues, then id ascending. The order is total, so replays
// are identical regardless of input order or storage collation.
func sortMovements(movements []Movement) {
	sort.Slice(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Kind != b.Kind {
			return a.Kind == MovementReceipt
		}
		return a.ID < b.ID
	})
}

// AggregateConsumableIssues collapses same-day issue movements of a
// consumable SKU into one aggregate entry per day, summing quantity and
// amount and keeping the earliest non-empty reference. Receipts are left
// ungrouped. The input must already be in total order; the output stays in it.
func AggregateConsumableIssues(movements []Movement) []Movement {
	out := make([]Movement, 0, len(movements))
	var agg *Movement
	for _, mov := range movements {
		if mov.Kind != MovementIssue {
			agg = nil
			out = append(out, mov)
			continue
		}
		if agg != nil && utils.SameDay(agg.Date, mov.Date) {
			agg.Qty = agg.Qty.Add(mov.Qty)
			agg.Amount = agg.Amount.Add(mov.Amount)
			if agg.Ref == "" {
				agg.Ref = mov.Ref
			}
			if agg.EquipmentRef == "" {
				agg.EquipmentRef = mov.EquipmentRef
			}
			if agg.Issuer == "" {
				agg.Issuer = mov.Issuer
			}
			agg.IssueIds = append(agg.IssueIds, mov.IssueIds...)
			continue
		}
		next := mov
		next.IssueIds = append([]int(nil), mov.IssueIds...)
		out = append(out, next)
		agg = &out[len(out)-1]
	}
	return out
}
