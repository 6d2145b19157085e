package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/aeromro/spareparts_backend/config"
	"bitbucket.org/aeromro/spareparts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RrpRecord is a receiving-report/purchase voucher. At most one non-rejected
// record may exist for a base number within a fiscal year; rejected records
// are superseded by a correction carrying the next T suffix.
type RrpRecord struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Prefix         RrpPrefix       `gorm:"type:enum('L','F');not null;index:idx_rrp_base" json:"prefix"`
	BaseNo         int             `gorm:"not null;index:idx_rrp_base" json:"base_no"`
	Suffix         int             `gorm:"not null;default:0" json:"suffix"`
	FiscalYear     string          `gorm:"size:20;not null;index" json:"fiscal_year"`
	Date           time.Time       `gorm:"not null" json:"date"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status         ApprovalStatus  `gorm:"type:enum('PENDING','APPROVED','REJECTED');default:PENDING;index" json:"status"`
	ReceiveEventId *int            `gorm:"index" json:"receive_event_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *RrpRecord) Number() string {
	return RrpNumber{Prefix: r.Prefix, BaseNo: r.BaseNo, Suffix: r.Suffix}.String()
}

type NewRrpRecord struct {
	Number         string          `json:"number" binding:"required"`
	FiscalYear     string          `json:"fiscal_year" binding:"required"`
	Date           time.Time       `json:"date" binding:"required"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ReceiveEventId *int            `json:"receive_event_id"`
}

// NextRrpNumber proposes the next unused bare base number for a prefix.
func NextRrpNumber(ctx context.Context, prefix RrpPrefix) (string, error) {
	if !prefix.Valid() {
		return "", ErrInvalidRrpPrefix
	}
	db := config.GetDB()
	var maxBase *int
	err := db.WithContext(ctx).Model(&RrpRecord{}).
		Where("prefix = ?", prefix).
		Select("MAX(base_no)").Scan(&maxBase).Error
	if err != nil {
		return "", err
	}
	next := utils.DereferencePtr(maxBase) + 1
	if next > 999 {
		return "", errors.New("rrp number range exhausted for prefix " + string(prefix))
	}
	return RrpNumber{Prefix: prefix, BaseNo: next}.Base(), nil
}

// getRrpChain loads every record sharing a base number, ordered by suffix.
// Runs inside the caller's transaction with a row lock: the registration plan
// and the insert that follows must see one consistent chain, or two
// concurrent submissions of the same bare number would both pass the
// duplicate check and both insert.
func getRrpChain(tx *gorm.DB, number RrpNumber) ([]*RrpRecord, error) {
	var chain []*RrpRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND base_no = ?", number.Prefix, number.BaseNo).
		Order("suffix").Find(&chain).Error
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// RegisterRrp validates a submitted number against its correction chain and,
// when accepted, purges superseded rejected rows and inserts the new record
// as PENDING. For a correction, every purged row's receive event is re-linked
// onto the replacement; for bare-number reuse the old linkage is cleared. The
// whole read-plan-write sequence runs in one locked transaction.
func RegisterRrp(ctx context.Context, input *NewRrpRecord) (*RrpRecord, error) {
	number, err := ParseRrpNumber(input.Number)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	chain, err := getRrpChain(tx, number)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	plan, err := planRrpRegistration(chain, number, input.FiscalYear, input.Date)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	record := RrpRecord{
		Prefix:         number.Prefix,
		BaseNo:         number.BaseNo,
		Suffix:         number.Suffix,
		FiscalYear:     input.FiscalYear,
		Date:           utils.DateOnly(input.Date),
		TotalAmount:    input.TotalAmount,
		Status:         ApprovalStatusPending,
		ReceiveEventId: input.ReceiveEventId,
	}
	if record.ReceiveEventId == nil {
		record.ReceiveEventId = plan.inheritReceiveEventId
	}

	purgedIds := make([]int, 0, len(plan.purge))
	for _, old := range plan.purge {
		purgedIds = append(purgedIds, old.ID)
	}
	if len(purgedIds) > 0 {
		if !plan.relinkPurgedReceipts {
			if err := tx.Model(&ReceiveEvent{}).
				Where("rrp_record_id IN ?", purgedIds).
				Update("rrp_record_id", nil).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}
		if err := tx.Where("id IN ?", purgedIds).Delete(&RrpRecord{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if plan.relinkPurgedReceipts && len(purgedIds) > 0 {
		if err := tx.Model(&ReceiveEvent{}).
			Where("rrp_record_id IN ?", purgedIds).
			Update("rrp_record_id", record.ID).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if record.ReceiveEventId != nil {
		if err := tx.Model(&ReceiveEvent{}).
			Where("id = ?", *record.ReceiveEventId).
			Update("rrp_record_id", record.ID).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateRrpStatus applies a one-way status transition:
// PENDING -> APPROVED | REJECTED, APPROVED -> REJECTED. APPROVED is otherwise
// terminal and REJECTED is only superseded through a correction record.
func UpdateRrpStatus(ctx context.Context, id int, status ApprovalStatus) (*RrpRecord, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("invalid target status %s", status)
	}
	db := config.GetDB()
	var record RrpRecord
	if err := db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, err
	}
	if record.Status == ApprovalStatusRejected {
		return nil, errors.New("rejected record can only be superseded by a correction")
	}
	if record.Status == ApprovalStatusApproved && status == ApprovalStatusApproved {
		return &record, nil
	}
	if err := db.WithContext(ctx).Model(&record).Update("status", status).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func GetRrpRecord(ctx context.Context, id int) (*RrpRecord, error) {
	db := config.GetDB()
	var record RrpRecord
	if err := db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
