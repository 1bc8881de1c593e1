package integration

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/shared/valueobject"
)

// Custom field names understood by the label templates
const (
	FieldPriceQty             = "priceQty"
	FieldFormattedRegPrice    = "formattedRegPrice"
	FieldFormattedPrice       = "formattedPrice"
	FieldPromoPrice           = "promoPrice"
	FieldPromoQty             = "promoQty"
	FieldFormattedPromoPrice  = "formattedPromoPrice"
	FieldSaveAmt              = "saveAmt"
	FieldFormattedRetailPrice = "formattedRetailPrice"
	FieldDepartment           = "department"
	FieldSubDepartment        = "subDepartment"
	FieldReceiptAlias         = "receiptAlias"
	FieldItemSize             = "Itemsize"
	FieldSizeUnit             = "SizeUnit"
	FieldSizeQty              = "sizeQty"
	FieldBarcodeUPC           = "barcodeUPC"
	FieldItemName             = "ItemName"
	FieldRealName             = "RealName"
	FieldDescLine1            = "descLine1"
	FieldDescLine2            = "descLine2"
	FieldWeight               = "weight"
	FieldUnitOfMeasure        = "unitOfMeasure"
	FieldPromoStartDate       = "promoStartDate"
	FieldPromoEndDate         = "promoEndDate"
	FieldWIC                  = "WIC"
	FieldDABUX                = "DABUX"
	FieldIBMCode              = "IBMCode"
	FieldWHItem               = "WHItem"
)

const (
	dabuxCode   = "0002"
	hi5Code     = "HI-5"
	dabuxMarker = "DA BUX"
)

// LabelTransformer derives label items from POS items.
// It holds no state and is safe for concurrent use.
type LabelTransformer struct{}

// NewLabelTransformer creates a new LabelTransformer
func NewLabelTransformer() *LabelTransformer {
	return &LabelTransformer{}
}

// Transform builds the label item for one item in one store
func (t *LabelTransformer) Transform(item *PosItem, scope *StoreScope) (*LabelItem, error) {
	if item == nil || scope == nil {
		return nil, fmt.Errorf("%w: item and store data must not be nil", ErrInvalidInput)
	}
	if strings.TrimSpace(item.ItemID) == "" {
		return nil, fmt.Errorf("%w: %w: item id is blank", ErrTransformFailed, ErrInvalidInput)
	}

	label := &LabelItem{
		ID:       item.ItemID,
		Name:     item.ItemName,
		Price:    scope.UnitPrice(),
		Brand:    item.Brand,
		Capacity: item.Size,
	}

	t.addPricing(&label.Custom, scope)
	t.addItemInfo(&label.Custom, item, scope)
	t.addPromoDates(&label.Custom, scope)
	t.addPowerFields(&label.Custom, item)

	return label, nil
}

func (t *LabelTransformer) addPricing(custom *CustomFields, scope *StoreScope) {
	unit := scope.UnitPrice()
	divider := scope.RegularDivider()

	custom.Set(FieldPriceQty, strconv.Itoa(divider))

	regular := ""
	if unit.Valid {
		regular = priceLabel(scope.Price1.Decimal, unit.Decimal, divider)
		custom.Set(FieldFormattedRegPrice, usd(unit.Decimal).Format())
		custom.Set(FieldFormattedPrice, regular)
	}

	if !scope.HasPromoPrice() {
		if unit.Valid {
			custom.Set(FieldFormattedRetailPrice, regular)
		}
		return
	}

	promoUnit := scope.PromoUnitPrice()
	promoDivider := scope.PromoDivider()
	promo := priceLabel(scope.PromoPrice1.Decimal, promoUnit.Decimal, promoDivider)

	custom.SetDecimal(FieldPromoPrice, promoUnit.Decimal)
	custom.Set(FieldPromoQty, strconv.Itoa(promoDivider))
	custom.Set(FieldFormattedPromoPrice, promo)

	if unit.Valid {
		saving := usd(unit.Decimal).Subtract(usd(promoUnit.Decimal))
		if saving.Amount().IsPositive() {
			custom.Set(FieldSaveAmt, "SAVE "+saving.Format())
		}
	}

	// the retail price always shows whichever price is active
	custom.Set(FieldFormattedRetailPrice, promo)
}

func (t *LabelTransformer) addItemInfo(custom *CustomFields, item *PosItem, scope *StoreScope) {
	custom.SetIfNotEmpty(FieldDepartment, formatDepartment(item.DeptNumber, item.DeptName))
	custom.SetIfNotEmpty(FieldSubDepartment, item.SubDeptName)
	custom.SetIfNotEmpty(FieldReceiptAlias, item.ReceiptAlias)
	custom.SetIfNotEmpty(FieldItemSize, item.Size)
	custom.SetIfNotEmpty(FieldSizeUnit, item.SizeUnit)
	if item.SizeQty.Valid {
		custom.SetDecimal(FieldSizeQty, item.SizeQty.Decimal)
	}
	custom.SetIfNotEmpty(FieldBarcodeUPC, item.ItemID)
	custom.SetIfNotEmpty(FieldItemName, item.ItemName)
	custom.SetIfNotEmpty(FieldRealName, item.ItemName)

	custom.SetIfNotEmpty(FieldDescLine1, scope.DescLine1)
	custom.SetIfNotEmpty(FieldDescLine2, scope.DescLine2)
	if scope.Weight.Valid {
		custom.SetDecimal(FieldWeight, scope.Weight.Decimal)
	}
	custom.SetIfNotEmpty(FieldUnitOfMeasure, scope.UnitOfMeasure)
}

func (t *LabelTransformer) addPromoDates(custom *CustomFields, scope *StoreScope) {
	if scope.PromoStart != "" {
		custom.Set(FieldPromoStartDate, FormatPromoDate(scope.PromoStart))
	}
	if scope.PromoEnd != "" {
		custom.Set(FieldPromoEndDate, "thru "+FormatPromoDate(scope.PromoEnd))
	}
}

// Slot positions are fixed by the POS configuration.
func (t *LabelTransformer) addPowerFields(custom *CustomFields, item *PosItem) {
	if strings.Contains(strings.ToUpper(item.PowerField(3)), "Y") {
		custom.Set(FieldWIC, "WIC")
	}

	pf4 := strings.ToUpper(item.PowerField(4))
	if strings.Contains(pf4, dabuxMarker) {
		custom.Set(FieldDABUX, dabuxCode)
	}
	if strings.Contains(pf4, hi5Code) {
		custom.Set(FieldIBMCode, hi5Code)
	}

	custom.SetIfNotEmpty(FieldWHItem, item.PowerField(5))

	for _, slot := range []int{1, 2, 6, 7, 8} {
		custom.SetIfNotEmpty("powerField"+strconv.Itoa(slot), item.PowerField(slot))
	}
}

// priceLabel renders "N/$total" for multi-quantity prices and the unit price otherwise
func priceLabel(total, unit decimal.Decimal, divider int) string {
	if divider > 1 {
		return usd(total).FormatMultiple(divider)
	}
	return usd(unit).Format()
}

func usd(amount decimal.Decimal) valueobject.Money {
	return valueobject.NewMoneyUSD(amount)
}

// formatDepartment renders "NN Name", or whichever of the two is present
func formatDepartment(number *int, name string) string {
	switch {
	case number != nil && name != "":
		return fmt.Sprintf("%02d %s", *number, name)
	case number != nil:
		return fmt.Sprintf("%02d", *number)
	default:
		return name
	}
}

// FormatPromoDate converts an ISO-8601 date-time such as "2025-12-01T10:35:16"
// into "12/01/2025". Values without three non-empty date parts are returned unchanged.
func FormatPromoDate(value string) string {
	datePart, _, _ := strings.Cut(value, "T")
	parts := strings.Split(datePart, "-")
	if len(parts) != 3 || slices.Contains(parts, "") {
		return value
	}
	return parts[1] + "/" + parts[2] + "/" + parts[0]
}
