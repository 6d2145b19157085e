package workflow

import (
	"github.com/shopspring/decimal"
)

// DeferredIssue is a queued shortfall: an issue quantity that could not be
// satisfied when its movement was applied. It lives only within one replay
// run and is retired FIFO against subsequent receipts.
type DeferredIssue struct {
	QtyOwed      decimal.Decimal `json:"qty_owed"`
	AmountOwed   decimal.Decimal `json:"amount_owed"`
	IssueRef     string          `json:"issue_ref"`
	EquipmentRef string          `json:"equipment_ref,omitempty"`
}

// LedgerEntry is a movement annotated with the running balance immediately
// after it was applied.
type LedgerEntry struct {
	Movement
	BalanceQty    decimal.Decimal `json:"balance_qty"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
}

// StockLedger is one replayed ledger: the annotated movements plus any
// shortfalls still outstanding at the end of the run. Unresolved deferrals
// are a warning, not an error; the ledger still renders with them flagged.
type StockLedger struct {
	OpeningQty          decimal.Decimal `json:"opening_qty"`
	OpeningAmount       decimal.Decimal `json:"opening_amount"`
	Entries             []LedgerEntry   `json:"entries"`
	UnresolvedDeferrals []DeferredIssue `json:"unresolved_deferrals,omitempty"`
}

// ClosingQty is the running quantity after the last movement.
func (l *StockLedger) ClosingQty() decimal.Decimal {
	if len(l.Entries) == 0 {
		return l.OpeningQty
	}
	return l.Entries[len(l.Entries)-1].BalanceQty
}

// ClosingAmount is the running amount after the last movement.
func (l *StockLedger) ClosingAmount() decimal.Decimal {
	if len(l.Entries) == 0 {
		return l.OpeningAmount
	}
	return l.Entries[len(l.Entries)-1].BalanceAmount
}

// ReplayLedger folds movements in total order over a starting balance.
// Receipts add stock and then retire queued shortfalls oldest-first; issues
// go through the deferred-issue rule, so the running balance never goes
// negative. Past movements are never re-ordered: a shortfall stays visible as
// a DeferredIssue until stock actually arrives.
func ReplayLedger(openQty, openAmount decimal.Decimal, movements []Movement) *StockLedger {
	balQty := openQty
	balAmount := openAmount
	queue := make([]DeferredIssue, 0)
	entries := make([]LedgerEntry, 0, len(movements))

	for _, mov := range movements {
		switch mov.Kind {
		case MovementReceipt:
			balQty = balQty.Add(mov.Qty)
			balAmount = balAmount.Add(mov.Amount)
			balQty, balAmount, queue = retireDeferred(balQty, balAmount, queue)
		case MovementIssue:
			var deferred *DeferredIssue
			balQty, balAmount, deferred = applyIssue(balQty, balAmount, mov)
			if deferred != nil {
				queue = append(queue, *deferred)
			}
		}
		entries = append(entries, LedgerEntry{
			Movement:      mov,
			BalanceQty:    balQty,
			BalanceAmount: balAmount,
		})
	}

	return &StockLedger{
		OpeningQty:          openQty,
		OpeningAmount:       openAmount,
		Entries:             entries,
		UnresolvedDeferrals: queue,
	}
}

// applyIssue is the deferred-issue rule. Full stock: subtract everything.
// Partial stock: consume the whole balance and queue the unmet remainder at
// the issue's pro-rata cost. No stock: queue the full issue untouched.
func applyIssue(balQty, balAmount decimal.Decimal, mov Movement) (decimal.Decimal, decimal.Decimal, *DeferredIssue) {
	if balQty.GreaterThanOrEqual(mov.Qty) {
		return balQty.Sub(mov.Qty), subtractFloored(balAmount, mov.Amount), nil
	}
	if balQty.IsPositive() {
		satisfied := balQty
		satisfiedAmount := decimal.Zero
		if mov.Qty.IsPositive() {
			satisfiedAmount = mov.Amount.Mul(satisfied).Div(mov.Qty)
		}
		deferred := &DeferredIssue{
			QtyOwed:      mov.Qty.Sub(satisfied),
			AmountOwed:   mov.Amount.Sub(satisfiedAmount),
			IssueRef:     mov.Ref,
			EquipmentRef: mov.EquipmentRef,
		}
		return decimal.Zero, subtractFloored(balAmount, satisfiedAmount), deferred
	}
	deferred := &DeferredIssue{
		QtyOwed:      mov.Qty,
		AmountOwed:   mov.Amount,
		IssueRef:     mov.Ref,
		EquipmentRef: mov.EquipmentRef,
	}
	return balQty, balAmount, deferred
}

// retireDeferred settles queued shortfalls FIFO against available stock.
func retireDeferred(balQty, balAmount decimal.Decimal, queue []DeferredIssue) (decimal.Decimal, decimal.Decimal, []DeferredIssue) {
	for len(queue) > 0 && balQty.IsPositive() {
		d := &queue[0]
		take := decimal.Min(balQty, d.QtyOwed)
		takeAmount := decimal.Zero
		if d.QtyOwed.IsPositive() {
			takeAmount = d.AmountOwed.Mul(take).Div(d.QtyOwed)
		}
		balQty = balQty.Sub(take)
		balAmount = subtractFloored(balAmount, takeAmount)
		d.QtyOwed = d.QtyOwed.Sub(take)
		d.AmountOwed = d.AmountOwed.Sub(takeAmount)
		if !d.QtyOwed.IsPositive() {
			queue = queue[1:]
		}
	}
	return balQty, balAmount, queue
}

func subtractFloored(balance, amount decimal.Decimal) decimal.Decimal {
	result := balance.Sub(amount)
	if result.IsNegative() {
		return decimal.Zero
	}
	return result
}
