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
)

// StockItem is a stock-keeping unit. OpeningQty/OpeningAmount are the baseline
// anchored at OpeningDate; CurrentBalance is a derived cache owned by the
// remaining-balance rebuilder. Opening fields are frozen once any movement
// exists for the item.
type StockItem struct {
	ID             int                  `gorm:"primary_key" json:"id"`
	Code           string               `gorm:"size:100;uniqueIndex;not null" json:"code" binding:"required"`
	Name           string               `gorm:"size:255;not null" json:"name" binding:"required"`
	PartNumbers    []StockItemPartNo    `gorm:"foreignKey:StockItemId" json:"part_numbers"`
	Equipments     []StockItemEquipment `gorm:"foreignKey:StockItemId" json:"equipments"`
	CardNumber     string               `gorm:"size:50" json:"card_number"`
	Location       string               `gorm:"size:100" json:"location"`
	OpeningDate    time.Time            `gorm:"not null" json:"opening_date"`
	OpeningQty     decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"opening_qty"`
	OpeningAmount  decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"opening_amount"`
	CurrentBalance decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	// Capability flags resolved once per SKU instead of code-compared at call sites.
	IsConsumable       *bool     `gorm:"not null;default:false" json:"is_consumable"`
	IsBulkZeroCostItem *bool     `gorm:"not null;default:false" json:"is_bulk_zero_cost_item"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockItemPartNo struct {
	ID          int    `gorm:"primary_key" json:"id"`
	StockItemId int    `gorm:"index;not null" json:"stock_item_id"`
	PartNumber  string `gorm:"size:100;not null" json:"part_number"`
}

type StockItemEquipment struct {
	ID           int    `gorm:"primary_key" json:"id"`
	StockItemId  int    `gorm:"index;not null" json:"stock_item_id"`
	EquipmentTag string `gorm:"size:100;not null" json:"equipment_tag"`
}

type NewStockItem struct {
	Code               string          `json:"code" binding:"required"`
	Name               string          `json:"name" binding:"required"`
	PartNumbers        []string        `json:"part_numbers"`
	Equipments         []string        `json:"equipments"`
	CardNumber         string          `json:"card_number"`
	Location           string          `json:"location"`
	OpeningDate        time.Time       `json:"opening_date"`
	OpeningQty         decimal.Decimal `json:"opening_qty"`
	OpeningAmount      decimal.Decimal `json:"opening_amount"`
	IsConsumable       *bool           `json:"is_consumable"`
	IsBulkZeroCostItem *bool           `json:"is_bulk_zero_cost_item"`
}

const stockBalanceCachePrefix = "stock_balance:"

func (input *NewStockItem) validate(ctx context.Context) error {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&StockItem{}).Where("code = ?", input.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("item code already exists")
	}
	if input.OpeningQty.IsNegative() || input.OpeningAmount.IsNegative() {
		return errors.New("opening balance cannot be negative")
	}
	return nil
}

func CreateStockItem(ctx context.Context, input *NewStockItem) (*StockItem, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	partNumbers := make([]StockItemPartNo, 0, len(input.PartNumbers))
	for _, pn := range input.PartNumbers {
		partNumbers = append(partNumbers, StockItemPartNo{PartNumber: pn})
	}
	equipments := make([]StockItemEquipment, 0, len(input.Equipments))
	for _, eq := range input.Equipments {
		equipments = append(equipments, StockItemEquipment{EquipmentTag: eq})
	}

	openingDate := input.OpeningDate
	if openingDate.IsZero() {
		openingDate = utils.DateOnly(time.Now())
	}

	item := StockItem{
		Code:               input.Code,
		Name:               input.Name,
		PartNumbers:        partNumbers,
		Equipments:         equipments,
		CardNumber:         input.CardNumber,
		Location:           input.Location,
		OpeningDate:        utils.DateOnly(openingDate),
		OpeningQty:         input.OpeningQty,
		OpeningAmount:      input.OpeningAmount,
		CurrentBalance:     input.OpeningQty,
		IsConsumable:       input.IsConsumable,
		IsBulkZeroCostItem: input.IsBulkZeroCostItem,
	}
	if item.IsConsumable == nil {
		item.IsConsumable = utils.NewFalse()
	}
	if item.IsBulkZeroCostItem == nil {
		item.IsBulkZeroCostItem = utils.NewFalse()
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FetchStockItem loads an item inside an existing transaction scope.
// Engine code goes through this so one replay sees a consistent snapshot.
func FetchStockItem(tx *gorm.DB, id int) (*StockItem, error) {
	var item StockItem
	if err := tx.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stock item %d: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &item, nil
}

func GetStockItem(ctx context.Context, id int) (*StockItem, error) {
	db := config.GetDB()
	var item StockItem
	err := db.WithContext(ctx).Preload("PartNumbers").Preload("Equipments").First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func GetStockItemByCode(ctx context.Context, code string) (*StockItem, error) {
	db := config.GetDB()
	var item StockItem
	err := db.WithContext(ctx).Where("code = ?", code).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func GetStockItemAll(ctx context.Context, name *string) ([]*StockItem, error) {
	db := config.GetDB()
	var results []*StockItem

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ? OR code LIKE ?", "%"+*name+"%", "%"+*name+"%")
	}
	err := dbCtx.Order("code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// hasMovements reports whether any receive/issue event references the item.
// Once true, baseline opening fields must not be edited directly.
func (item *StockItem) hasMovements(ctx context.Context) (bool, error) {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&ReceiveEvent{}).Where("stock_item_id = ?", item.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := db.WithContext(ctx).Model(&IssueEvent{}).Where("stock_item_id = ?", item.ID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func UpdateStockItem(ctx context.Context, id int, input *NewStockItem) (*StockItem, error) {
	db := config.GetDB()
	var item StockItem
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"Name":       input.Name,
		"CardNumber": input.CardNumber,
		"Location":   input.Location,
	}

	moved, err := item.hasMovements(ctx)
	if err != nil {
		return nil, err
	}
	if !moved {
		updates["OpeningDate"] = utils.DateOnly(input.OpeningDate)
		updates["OpeningQty"] = input.OpeningQty
		updates["OpeningAmount"] = input.OpeningAmount
	} else if !input.OpeningQty.Equal(item.OpeningQty) || !input.OpeningAmount.Equal(item.OpeningAmount) {
		return nil, errors.New("opening balance is frozen once movements exist")
	}

	if err := db.WithContext(ctx).Model(&item).Updates(updates).Error; err != nil {
		return nil, err
	}
	// An edited opening baseline changes the derived balance.
	if !moved {
		InvalidateBalanceCache(item.ID)
	}
	return &item, nil
}

// CachedBalance returns the item's current balance, preferring the redis cache
// and falling back to the persisted column.
func CachedBalance(ctx context.Context, id int) (decimal.Decimal, error) {
	key := stockBalanceCachePrefix + fmt.Sprint(id)
	var cached string
	found, err := config.GetRedisObject(key, &cached)
	if err == nil && found {
		if d, derr := decimal.NewFromString(cached); derr == nil {
			return d, nil
		}
	}

	item, err := GetStockItem(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	_ = config.SetRedisObject(key, item.CurrentBalance.String(), 0)
	return item.CurrentBalance, nil
}

// StoreBalanceCache refreshes the cached balance for an item after a rebuild.
func StoreBalanceCache(id int, balance decimal.Decimal) {
	key := stockBalanceCachePrefix + fmt.Sprint(id)
	_ = config.SetRedisObject(key, balance.String(), 0)
}

func InvalidateBalanceCache(id int) {
	_ = config.RemoveRedisKey(stockBalanceCachePrefix + fmt.Sprint(id))
}
