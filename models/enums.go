package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ApprovalStatus is the one-way lifecycle of receive/issue events and
// receiving reports: Pending -> Approved | Rejected.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

func (s *ApprovalStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*s = ApprovalStatus(v)
	case string:
		*s = ApprovalStatus(v)
	default:
		return fmt.Errorf("unsupported approval status value: %v", value)
	}
	return nil
}

func (s ApprovalStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ReceiveSource is how stock arrived: local purchase, foreign tender, or
// inter-unit borrowing.
type ReceiveSource string

const (
	ReceiveSourcePurchase ReceiveSource = "PURCHASE"
	ReceiveSourceTender   ReceiveSource = "TENDER"
	ReceiveSourceBorrow   ReceiveSource = "BORROW"
)

func (s *ReceiveSource) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*s = ReceiveSource(v)
	case string:
		*s = ReceiveSource(v)
	default:
		return fmt.Errorf("unsupported receive source value: %v", value)
	}
	return nil
}

func (s ReceiveSource) Value() (driver.Value, error) {
	return string(s), nil
}

// RrpPrefix scopes receiving-report numbers: L for local purchases,
// F for foreign ones.
type RrpPrefix string

const (
	RrpPrefixLocal   RrpPrefix = "L"
	RrpPrefixForeign RrpPrefix = "F"
)

func (p RrpPrefix) Valid() bool {
	return p == RrpPrefixLocal || p == RrpPrefixForeign
}

var ErrInvalidRrpPrefix = errors.New("rrp prefix must be L or F")
