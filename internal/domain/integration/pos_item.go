package integration

import (
	"github.com/shopspring/decimal"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/shared/valueobject"
)

// PosItem is an item update as published by the Catapult POS.
// It is decoded once per request and never modified afterwards.
type PosItem struct {
	RecordID      string              `json:"recordId,omitempty"`
	ItemID        string              `json:"itemId"`
	ItemName      string              `json:"itemName,omitempty"`
	ReceiptAlias  string              `json:"receiptAlias,omitempty"`
	Brand         string              `json:"brand,omitempty"`
	Size          string              `json:"size,omitempty"`
	SizeUnit      string              `json:"sizeUnit,omitempty"`
	SizeQty       decimal.NullDecimal `json:"sizeQty"`
	DeptNumber    *int                `json:"deptNumber,omitempty"`
	DeptName      string              `json:"deptName,omitempty"`
	SubDeptNumber *int                `json:"subDeptNumber,omitempty"`
	SubDeptName   string              `json:"subDeptName,omitempty"`

	PowerField1 string `json:"powerField1,omitempty"`
	PowerField2 string `json:"powerField2,omitempty"`
	PowerField3 string `json:"powerField3,omitempty"`
	PowerField4 string `json:"powerField4,omitempty"`
	PowerField5 string `json:"powerField5,omitempty"`
	PowerField6 string `json:"powerField6,omitempty"`
	PowerField7 string `json:"powerField7,omitempty"`
	PowerField8 string `json:"powerField8,omitempty"`

	Stores []StoreScope `json:"stores"`
}

// PowerField returns extension slot 1..8, or "" for any other slot
func (p *PosItem) PowerField(slot int) string {
	switch slot {
	case 1:
		return p.PowerField1
	case 2:
		return p.PowerField2
	case 3:
		return p.PowerField3
	case 4:
		return p.PowerField4
	case 5:
		return p.PowerField5
	case 6:
		return p.PowerField6
	case 7:
		return p.PowerField7
	case 8:
		return p.PowerField8
	default:
		return ""
	}
}

// HasStores returns true if the item carries at least one store scope
func (p *PosItem) HasStores() bool {
	return len(p.Stores) > 0
}

// StoreScope is the store-specific pricing and status view of a PosItem
type StoreScope struct {
	RecordID     string `json:"recordId,omitempty"`
	StoreName    string `json:"storeName,omitempty"`
	StoreNumber  string `json:"storeNumber"`
	Deleted      bool   `json:"deleted"`
	Discontinued bool   `json:"discontinued"`

	Price1        decimal.NullDecimal `json:"price1"`
	Divider1      int                 `json:"divider1,omitempty"`
	PromoPrice1   decimal.NullDecimal `json:"promoPrice1"`
	PromoDivider1 int                 `json:"promoDivider1,omitempty"`
	PromoStart    string              `json:"promoStart,omitempty"`
	PromoEnd      string              `json:"promoEnd,omitempty"`

	UserAssigned1 string `json:"userAssigned1,omitempty"`
	UserAssigned2 string `json:"userAssigned2,omitempty"`
	UserAssigned3 string `json:"userAssigned3,omitempty"`
	UserAssigned4 string `json:"userAssigned4,omitempty"`
	UserAssigned5 string `json:"userAssigned5,omitempty"`
	UserAssigned6 string `json:"userAssigned6,omitempty"`
	UserAssigned7 string `json:"userAssigned7,omitempty"`

	LocalPowerField1 string `json:"localPowerField1,omitempty"`
	LocalPowerField2 string `json:"localPowerField2,omitempty"`
	LocalPowerField3 string `json:"localPowerField3,omitempty"`
	LocalPowerField4 string `json:"localPowerField4,omitempty"`
	LocalPowerField5 string `json:"localPowerField5,omitempty"`
	LocalPowerField6 string `json:"localPowerField6,omitempty"`
	LocalPowerField7 string `json:"localPowerField7,omitempty"`
	LocalPowerField8 string `json:"localPowerField8,omitempty"`

	DescLine1      string              `json:"descLine1,omitempty"`
	DescLine2      string              `json:"descLine2,omitempty"`
	Weight         decimal.NullDecimal `json:"weight"`
	UnitOfMeasure  string              `json:"unitOfMeasure,omitempty"`
	FixedWeightAmt decimal.NullDecimal `json:"fixedWeightAmt"`
	FixedTare      decimal.NullDecimal `json:"fixedTare"`
	PercentTare    decimal.NullDecimal `json:"percentTare"`
	TareType       string              `json:"tareType,omitempty"`
	Ingredients    string              `json:"ingredients,omitempty"`
	ShelfLife      *int                `json:"shelfLife,omitempty"`
}

// RegularDivider returns the "for-N" quantity of the regular price; unset means 1
func (s *StoreScope) RegularDivider() int {
	if s.Divider1 == 0 {
		return 1
	}
	return s.Divider1
}

// PromoDivider returns the "for-N" quantity of the promo price; unset means 1
func (s *StoreScope) PromoDivider() int {
	if s.PromoDivider1 == 0 {
		return 1
	}
	return s.PromoDivider1
}

// HasRegularPrice returns true if a regular price is present
func (s *StoreScope) HasRegularPrice() bool {
	return s.Price1.Valid
}

// HasPromoPrice returns true if a promotional price is present
func (s *StoreScope) HasPromoPrice() bool {
	return s.PromoPrice1.Valid
}

// UnitPrice returns the regular price of a single unit.
// A divider of zero or less leaves the price unchanged.
func (s *StoreScope) UnitPrice() decimal.NullDecimal {
	return unitPrice(s.Price1, s.RegularDivider())
}

// PromoUnitPrice returns the promotional price of a single unit
func (s *StoreScope) PromoUnitPrice() decimal.NullDecimal {
	return unitPrice(s.PromoPrice1, s.PromoDivider())
}

// ShouldDelete returns true if the item must be removed from the store's labels
func (s *StoreScope) ShouldDelete() bool {
	return s.Deleted || s.Discontinued
}

func unitPrice(amount decimal.NullDecimal, divider int) decimal.NullDecimal {
	if !amount.Valid {
		return amount
	}
	return decimal.NewNullDecimal(valueobject.NewMoneyUSD(amount.Decimal).PerUnit(divider).Amount())
}
