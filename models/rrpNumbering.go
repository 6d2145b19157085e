package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"bitbucket.org/aeromro/spareparts_backend/utils"
)

// Request-rejection errors surfaced directly to the caller; none are retried.
var (
	ErrMalformedRrpNumber    = errors.New("malformed rrp number")
	ErrDuplicateActiveRrp    = errors.New("an active record already exists for this rrp number")
	ErrDuplicateInFiscalYear = errors.New("rrp number already used in this fiscal year")
	ErrOutOfSequenceDate     = errors.New("correction date out of sequence")
)

// RrpNumber is a parsed receiving-report number: a base of prefix + 3 digits
// (L001, F042) plus an optional correction suffix (L001T2). Suffix 0 means a
// bare, uncorrected number.
type RrpNumber struct {
	Prefix RrpPrefix
	BaseNo int
	Suffix int
}

var rrpNumberPattern = regexp.MustCompile(`^([LF])([0-9]{3})(?:T([1-9][0-9]*))?$`)

func ParseRrpNumber(s string) (RrpNumber, error) {
	m := rrpNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return RrpNumber{}, fmt.Errorf("%w: %q", ErrMalformedRrpNumber, s)
	}
	baseNo, _ := strconv.Atoi(m[2])
	suffix := 0
	if m[3] != "" {
		suffix, _ = strconv.Atoi(m[3])
	}
	return RrpNumber{Prefix: RrpPrefix(m[1]), BaseNo: baseNo, Suffix: suffix}, nil
}

func (n RrpNumber) Base() string {
	return fmt.Sprintf("%s%03d", n.Prefix, n.BaseNo)
}

func (n RrpNumber) String() string {
	if n.Suffix == 0 {
		return n.Base()
	}
	return fmt.Sprintf("%sT%d", n.Base(), n.Suffix)
}

// nextCorrectionSuffix returns max(existing suffixes)+1, or 1 when the chain
// holds only the bare record.
func nextCorrectionSuffix(chain []*RrpRecord) int {
	maxSuffix := 0
	for _, r := range chain {
		if r.Suffix > maxSuffix {
			maxSuffix = r.Suffix
		}
	}
	return maxSuffix + 1
}

// rrpRegistrationPlan is what a valid submission must do to the stored chain
// before the new record is inserted.
type rrpRegistrationPlan struct {
	// rejected rows to delete
	purge []*RrpRecord
	// receive event of the corrected record, re-linked onto the replacement
	inheritReceiveEventId *int
	// corrections re-point every purged row's receipt at the replacement;
	// bare reuse clears the linkage instead (the receipt is new paperwork)
	relinkPurgedReceipts bool
}

// planRrpRegistration validates a submission against the existing correction
// chain for its base number (sorted by suffix ascending) and returns the plan.
//
// Bare numbers: reused verbatim when unused, or when the chain's last record
// is rejected (rejected rows are purged). A non-rejected record under the same
// base number and fiscal year rejects the submission.
//
// Explicit T suffixes: only valid as the correction of the currently-rejected
// chain tail, with the correction date validated against its neighbours.
func planRrpRegistration(chain []*RrpRecord, number RrpNumber, fiscalYear string, date time.Time) (*rrpRegistrationPlan, error) {
	if number.Suffix == 0 {
		if len(chain) == 0 {
			return &rrpRegistrationPlan{}, nil
		}
		for _, r := range chain {
			if r.Status != ApprovalStatusRejected && r.FiscalYear == fiscalYear {
				return nil, fmt.Errorf("%w: %s (%s)", ErrDuplicateInFiscalYear, number.Base(), fiscalYear)
			}
		}
		last := chain[len(chain)-1]
		if last.Status == ApprovalStatusRejected {
			// Not appended as a correction: the number is reused verbatim.
			plan := &rrpRegistrationPlan{}
			for _, r := range chain {
				if r.Status == ApprovalStatusRejected {
					plan.purge = append(plan.purge, r)
				}
			}
			return plan, nil
		}
		// Last record active in another fiscal year: the number starts a new chain.
		return &rrpRegistrationPlan{}, nil
	}

	// Correction: the target is the record this suffix supersedes.
	next := nextCorrectionSuffix(chain)
	if number.Suffix > next {
		return nil, fmt.Errorf("%w: %s skips T%d", ErrMalformedRrpNumber, number.String(), next)
	}

	var target *RrpRecord
	for _, r := range chain {
		if r.Suffix == number.Suffix-1 {
			target = r
		}
		if r.Suffix == number.Suffix && r.Status != ApprovalStatusRejected {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateActiveRrp, number.String())
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s has no T%d to correct", ErrMalformedRrpNumber, number.String(), number.Suffix-1)
	}
	if target.Status != ApprovalStatusRejected {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateActiveRrp, target.Number())
	}

	var prevDate, nextDate *time.Time
	for _, r := range chain {
		if r.Suffix == number.Suffix-1 {
			d := r.Date
			prevDate = &d
		}
		if r.Suffix == number.Suffix+1 {
			d := r.Date
			nextDate = &d
		}
	}
	if err := validateCorrectionDate(date, prevDate, nextDate); err != nil {
		return nil, err
	}

	plan := &rrpRegistrationPlan{
		inheritReceiveEventId: target.ReceiveEventId,
		relinkPurgedReceipts:  true,
	}
	for _, r := range chain {
		if r.Status == ApprovalStatusRejected && r.Suffix >= number.Suffix-1 {
			plan.purge = append(plan.purge, r)
		}
	}
	return plan, nil
}

// validateCorrectionDate enforces that a correction's date falls between the
// dates of its neighbouring chain elements, when they exist.
func validateCorrectionDate(date time.Time, prev, next *time.Time) error {
	d := utils.DateOnly(date)
	if prev != nil && d.Before(utils.DateOnly(*prev)) {
		return fmt.Errorf("%w: %s precedes %s", ErrOutOfSequenceDate, d.Format("2006-01-02"), utils.DateOnly(*prev).Format("2006-01-02"))
	}
	if next != nil && d.After(utils.DateOnly(*next)) {
		return fmt.Errorf("%w: %s follows %s", ErrOutOfSequenceDate, d.Format("2006-01-02"), utils.DateOnly(*next).Format("2006-01-02"))
	}
	return nil
}
