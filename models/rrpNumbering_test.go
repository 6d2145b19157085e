package models

import (
	"errors"
	"testing"
	"time"
)

func rrpDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func chainRecord(suffix int, status ApprovalStatus, date string) *RrpRecord {
	return &RrpRecord{
		Prefix:     RrpPrefixLocal,
		BaseNo:     1,
		Suffix:     suffix,
		FiscalYear: "2024-2025",
		Date:       rrpDay(date),
		Status:     status,
	}
}

func TestParseRrpNumber(t *testing.T) {
	cases := []struct {
		in      string
		prefix  RrpPrefix
		base    int
		suffix  int
		wantErr bool
	}{
		{in: "L001", prefix: RrpPrefixLocal, base: 1},
		{in: "F042", prefix: RrpPrefixForeign, base: 42},
		{in: "L999", prefix: RrpPrefixLocal, base: 999},
		{in: "L001T1", prefix: RrpPrefixLocal, base: 1, suffix: 1},
		{in: "F123T12", prefix: RrpPrefixForeign, base: 123, suffix: 12},
		{in: "L1", wantErr: true},     // digits must be exactly three
		{in: "L0001", wantErr: true},  // too many digits
		{in: "X001", wantErr: true},   // unknown prefix
		{in: "L001T0", wantErr: true}, // suffix starts at 1
		{in: "L001T", wantErr: true},
		{in: "l001", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseRrpNumber(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrMalformedRrpNumber) {
				t.Fatalf("ParseRrpNumber(%q): want ErrMalformedRrpNumber, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRrpNumber(%q): %v", tc.in, err)
		}
		if got.Prefix != tc.prefix || got.BaseNo != tc.base || got.Suffix != tc.suffix {
			t.Fatalf("ParseRrpNumber(%q) = %+v", tc.in, got)
		}
	}
}

func TestRrpNumberString_RoundTrips(t *testing.T) {
	for _, s := range []string{"L001", "F042", "L001T3"} {
		n, err := ParseRrpNumber(s)
		if err != nil {
			t.Fatalf("ParseRrpNumber(%q): %v", s, err)
		}
		if n.String() != s {
			t.Fatalf("round trip %q -> %q", s, n.String())
		}
	}
}

func TestPlanRrp_FreshBareNumberAccepted(t *testing.T) {
	number, _ := ParseRrpNumber("L001")
	plan, err := planRrpRegistration(nil, number, "2024-2025", rrpDay("2024-06-01"))
	if err != nil {
		t.Fatalf("planRrpRegistration: %v", err)
	}
	if len(plan.purge) != 0 || plan.inheritReceiveEventId != nil {
		t.Fatalf("fresh registration must not purge or inherit: %+v", plan)
	}
}

func TestPlanRrp_BareReuseAfterRejectionPurges(t *testing.T) {
	rejected := chainRecord(0, ApprovalStatusRejected, "2024-05-01")
	number, _ := ParseRrpNumber("L001")

	plan, err := planRrpRegistration([]*RrpRecord{rejected}, number, "2024-2025", rrpDay("2024-06-01"))
	if err != nil {
		t.Fatalf("planRrpRegistration: %v", err)
	}
	if len(plan.purge) != 1 || plan.purge[0] != rejected {
		t.Fatalf("expected rejected row purged, got %+v", plan.purge)
	}
	if plan.relinkPurgedReceipts {
		t.Fatalf("bare reuse must clear superseded receipt links, not re-point them")
	}
}

func TestPlanRrp_BareDuplicateInFiscalYearRejected(t *testing.T) {
	approved := chainRecord(0, ApprovalStatusApproved, "2024-05-01")
	number, _ := ParseRrpNumber("L001")

	_, err := planRrpRegistration([]*RrpRecord{approved}, number, "2024-2025", rrpDay("2024-06-01"))
	if !errors.Is(err, ErrDuplicateInFiscalYear) {
		t.Fatalf("want ErrDuplicateInFiscalYear, got %v", err)
	}
}

func TestPlanRrp_BareNumberReusableAcrossFiscalYears(t *testing.T) {
	prior := chainRecord(0, ApprovalStatusApproved, "2023-05-01")
	prior.FiscalYear = "2023-2024"
	number, _ := ParseRrpNumber("L001")

	plan, err := planRrpRegistration([]*RrpRecord{prior}, number, "2024-2025", rrpDay("2024-06-01"))
	if err != nil {
		t.Fatalf("planRrpRegistration: %v", err)
	}
	if len(plan.purge) != 0 {
		t.Fatalf("a new fiscal year must not purge the prior year's record: %+v", plan.purge)
	}
}

func TestPlanRrp_CorrectionAgainstActiveRecordRejected(t *testing.T) {
	approved := chainRecord(0, ApprovalStatusApproved, "2024-05-01")
	number, _ := ParseRrpNumber("L001T1")

	_, err := planRrpRegistration([]*RrpRecord{approved}, number, "2024-2025", rrpDay("2024-06-01"))
	if !errors.Is(err, ErrDuplicateActiveRrp) {
		t.Fatalf("want ErrDuplicateActiveRrp, got %v", err)
	}
}

func TestPlanRrp_CorrectionOfRejectedTailAccepted(t *testing.T) {
	eventID := 77
	rejected := chainRecord(0, ApprovalStatusRejected, "2024-05-01")
	rejected.ReceiveEventId = &eventID
	number, _ := ParseRrpNumber("L001T1")

	plan, err := planRrpRegistration([]*RrpRecord{rejected}, number, "2024-2025", rrpDay("2024-06-01"))
	if err != nil {
		t.Fatalf("planRrpRegistration: %v", err)
	}
	if plan.inheritReceiveEventId == nil || *plan.inheritReceiveEventId != eventID {
		t.Fatalf("replacement must inherit the corrected record's receive event, got %+v", plan.inheritReceiveEventId)
	}
	if len(plan.purge) != 1 || plan.purge[0] != rejected {
		t.Fatalf("expected the rejected target purged, got %+v", plan.purge)
	}
	if !plan.relinkPurgedReceipts {
		t.Fatalf("a correction must re-point the purged rows' receipts at the replacement")
	}
}

func TestPlanRrp_SecondCorrectionAfterRejectedFirst(t *testing.T) {
	bare := chainRecord(0, ApprovalStatusRejected, "2024-05-01")
	t1 := chainRecord(1, ApprovalStatusRejected, "2024-05-10")
	number, _ := ParseRrpNumber("L001T2")

	plan, err := planRrpRegistration([]*RrpRecord{bare, t1}, number, "2024-2025", rrpDay("2024-05-15"))
	if err != nil {
		t.Fatalf("planRrpRegistration: %v", err)
	}
	// T2's date is checked against T1 only; the bare record stays out of it.
	if len(plan.purge) != 1 || plan.purge[0] != t1 {
		t.Fatalf("expected only T1 purged, got %d rows", len(plan.purge))
	}
}

func TestPlanRrp_CorrectionSuffixMustNotSkip(t *testing.T) {
	rejected := chainRecord(0, ApprovalStatusRejected, "2024-05-01")
	number, _ := ParseRrpNumber("L001T3")

	_, err := planRrpRegistration([]*RrpRecord{rejected}, number, "2024-2025", rrpDay("2024-06-01"))
	if !errors.Is(err, ErrMalformedRrpNumber) {
		t.Fatalf("want ErrMalformedRrpNumber for skipped suffix, got %v", err)
	}
}

func TestPlanRrp_CorrectionDateBeforeTargetRejected(t *testing.T) {
	rejected := chainRecord(0, ApprovalStatusRejected, "2024-05-10")
	number, _ := ParseRrpNumber("L001T1")

	_, err := planRrpRegistration([]*RrpRecord{rejected}, number, "2024-2025", rrpDay("2024-05-01"))
	if !errors.Is(err, ErrOutOfSequenceDate) {
		t.Fatalf("want ErrOutOfSequenceDate, got %v", err)
	}
}

func TestPlanRrp_CorrectionDateSameDayAsTargetAccepted(t *testing.T) {
	rejected := chainRecord(0, ApprovalStatusRejected, "2024-05-10")
	number, _ := ParseRrpNumber("L001T1")

	_, err := planRrpRegistration([]*RrpRecord{rejected}, number, "2024-2025", rrpDay("2024-05-10"))
	if err != nil {
		t.Fatalf("same-day correction must be accepted: %v", err)
	}
}

func TestNextCorrectionSuffix(t *testing.T) {
	if got := nextCorrectionSuffix(nil); got != 1 {
		t.Fatalf("empty chain: got %d, want 1", got)
	}
	chain := []*RrpRecord{
		chainRecord(0, ApprovalStatusRejected, "2024-05-01"),
		chainRecord(2, ApprovalStatusRejected, "2024-05-20"),
		chainRecord(1, ApprovalStatusRejected, "2024-05-10"),
	}
	if got := nextCorrectionSuffix(chain); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}
