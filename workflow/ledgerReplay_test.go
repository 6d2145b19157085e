package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func receiptMov(id int, date string, qty, amount int64) Movement {
	return Movement{
		Date:   day(date),
		ID:     id,
		Kind:   MovementReceipt,
		Qty:    decimal.NewFromInt(qty),
		Amount: decimal.NewFromInt(amount),
		Ref:    "RCV",
	}
}

func issueMov(id int, date string, qty, amount int64) Movement {
	return Movement{
		Date:     day(date),
		ID:       id,
		Kind:     MovementIssue,
		Qty:      decimal.NewFromInt(qty),
		Amount:   decimal.NewFromInt(amount),
		Ref:      "ISS",
		IssueIds: []int{id},
	}
}

func TestReplay_BalanceNeverGoesNegative(t *testing.T) {
	movements := []Movement{
		issueMov(1, "2024-01-01", 10, 1000),
		receiptMov(2, "2024-01-02", 3, 300),
		issueMov(3, "2024-01-03", 5, 500),
		receiptMov(4, "2024-01-04", 2, 200),
	}
	ledger := ReplayLedger(decimal.Zero, decimal.Zero, movements)

	for i, entry := range ledger.Entries {
		if entry.BalanceQty.IsNegative() {
			t.Fatalf("entry %d: negative balance qty %s", i, entry.BalanceQty)
		}
		if entry.BalanceAmount.IsNegative() {
			t.Fatalf("entry %d: negative balance amount %s", i, entry.BalanceAmount)
		}
	}
}

func TestReplay_FullStockIssueSubtracts(t *testing.T) {
	ledger := ReplayLedger(decimal.NewFromInt(10), decimal.NewFromInt(1000), []Movement{
		issueMov(1, "2024-01-01", 4, 400),
	})
	if !ledger.ClosingQty().Equal(decimal.NewFromInt(6)) {
		t.Fatalf("closing qty = %s, want 6", ledger.ClosingQty())
	}
	if !ledger.ClosingAmount().Equal(decimal.NewFromInt(600)) {
		t.Fatalf("closing amount = %s, want 600", ledger.ClosingAmount())
	}
	if len(ledger.UnresolvedDeferrals) != 0 {
		t.Fatalf("expected no deferrals, got %d", len(ledger.UnresolvedDeferrals))
	}
}

func TestReplay_ZeroStockIssueIsDeferredThenRetired(t *testing.T) {
	ledger := ReplayLedger(decimal.Zero, decimal.Zero, []Movement{
		issueMov(1, "2024-01-01", 10, 1000),
		receiptMov(2, "2024-01-05", 15, 1500),
	})

	// After the issue: balance untouched at zero, shortfall queued.
	first := ledger.Entries[0]
	if !first.BalanceQty.IsZero() {
		t.Fatalf("balance after deferred issue = %s, want 0", first.BalanceQty)
	}

	// After the receipt: 15 in, 10 retired, 5 left.
	if !ledger.ClosingQty().Equal(decimal.NewFromInt(5)) {
		t.Fatalf("closing qty = %s, want 5", ledger.ClosingQty())
	}
	if !ledger.ClosingAmount().Equal(decimal.NewFromInt(500)) {
		t.Fatalf("closing amount = %s, want 500", ledger.ClosingAmount())
	}
	if len(ledger.UnresolvedDeferrals) != 0 {
		t.Fatalf("deferral should be retired, got %d outstanding", len(ledger.UnresolvedDeferrals))
	}
}

func TestReplay_PartialStockConsumesBalanceAndDefersRemainder(t *testing.T) {
	ledger := ReplayLedger(decimal.NewFromInt(4), decimal.NewFromInt(400), []Movement{
		issueMov(1, "2024-01-01", 10, 1000),
	})

	if !ledger.ClosingQty().IsZero() {
		t.Fatalf("closing qty = %s, want 0", ledger.ClosingQty())
	}
	if !ledger.ClosingAmount().IsZero() {
		t.Fatalf("closing amount = %s, want 0", ledger.ClosingAmount())
	}
	if len(ledger.UnresolvedDeferrals) != 1 {
		t.Fatalf("expected 1 deferral, got %d", len(ledger.UnresolvedDeferrals))
	}
	deferred := ledger.UnresolvedDeferrals[0]
	if !deferred.QtyOwed.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("qty owed = %s, want 6", deferred.QtyOwed)
	}
	// Pro-rata at the issue's unit cost: 6/10 of 1000.
	if !deferred.AmountOwed.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("amount owed = %s, want 600", deferred.AmountOwed)
	}
}

func TestReplay_DeferralsRetireOldestFirst(t *testing.T) {
	ledger := ReplayLedger(decimal.Zero, decimal.Zero, []Movement{
		issueMov(1, "2024-01-01", 5, 500),
		issueMov(2, "2024-01-02", 5, 500),
		receiptMov(3, "2024-01-03", 7, 700),
	})

	// 7 received: issue 1 fully retired, issue 2 partially (2 of 5).
	if !ledger.ClosingQty().IsZero() {
		t.Fatalf("closing qty = %s, want 0", ledger.ClosingQty())
	}
	if len(ledger.UnresolvedDeferrals) != 1 {
		t.Fatalf("expected 1 remaining deferral, got %d", len(ledger.UnresolvedDeferrals))
	}
	remaining := ledger.UnresolvedDeferrals[0]
	if remaining.IssueRef != "ISS" || !remaining.QtyOwed.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("remaining deferral = %+v, want 3 owed from second issue", remaining)
	}
}

func TestReplay_UnresolvedDeferralStillRendersLedger(t *testing.T) {
	ledger := ReplayLedger(decimal.Zero, decimal.Zero, []Movement{
		issueMov(1, "2024-01-01", 8, 800),
	})
	if len(ledger.Entries) != 1 {
		t.Fatalf("deferred issue must still appear as a ledger entry")
	}
	if len(ledger.UnresolvedDeferrals) != 1 {
		t.Fatalf("expected the shortfall to be surfaced, got %d", len(ledger.UnresolvedDeferrals))
	}
	if !ledger.UnresolvedDeferrals[0].QtyOwed.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("qty owed = %s, want 8", ledger.UnresolvedDeferrals[0].QtyOwed)
	}
}

func TestReplay_EveryMovementIsAnnotated(t *testing.T) {
	movements := []Movement{
		receiptMov(1, "2024-01-01", 5, 500),
		issueMov(2, "2024-01-02", 2, 200),
		receiptMov(3, "2024-01-03", 1, 100),
	}
	ledger := ReplayLedger(decimal.Zero, decimal.Zero, movements)

	if len(ledger.Entries) != len(movements) {
		t.Fatalf("got %d entries for %d movements", len(ledger.Entries), len(movements))
	}
	wantQty := []int64{5, 3, 4}
	for i, entry := range ledger.Entries {
		if entry.ID != movements[i].ID {
			t.Fatalf("entry %d carries movement %d, want %d", i, entry.ID, movements[i].ID)
		}
		if !entry.BalanceQty.Equal(decimal.NewFromInt(wantQty[i])) {
			t.Fatalf("entry %d balance = %s, want %d", i, entry.BalanceQty, wantQty[i])
		}
	}
}

func TestReplay_EmptyLedgerClosesAtOpening(t *testing.T) {
	ledger := ReplayLedger(decimal.NewFromInt(12), decimal.NewFromInt(360), nil)
	if !ledger.ClosingQty().Equal(decimal.NewFromInt(12)) {
		t.Fatalf("closing qty = %s, want opening 12", ledger.ClosingQty())
	}
	if !ledger.ClosingAmount().Equal(decimal.NewFromInt(360)) {
		t.Fatalf("closing amount = %s, want opening 360", ledger.ClosingAmount())
	}
}

func TestSubtractFloored_ClampsAtZero(t *testing.T) {
	got := subtractFloored(decimal.NewFromInt(100), decimal.NewFromInt(150))
	if !got.IsZero() {
		t.Fatalf("subtractFloored(100, 150) = %s, want 0", got)
	}
	got = subtractFloored(decimal.NewFromInt(100), decimal.NewFromInt(40))
	if !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("subtractFloored(100, 40) = %s, want 60", got)
	}
}
