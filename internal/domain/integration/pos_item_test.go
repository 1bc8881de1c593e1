package integration

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestStoreScope_Dividers(t *testing.T) {
	t.Run("unset dividers default to one", func(t *testing.T) {
		s := StoreScope{}
		assert.Equal(t, 1, s.RegularDivider())
		assert.Equal(t, 1, s.PromoDivider())
	})

	t.Run("explicit dividers are kept", func(t *testing.T) {
		s := StoreScope{Divider1: 3, PromoDivider1: 2}
		assert.Equal(t, 3, s.RegularDivider())
		assert.Equal(t, 2, s.PromoDivider())
	})
}

func TestStoreScope_UnitPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    decimal.NullDecimal
		divider  int
		expected string
	}{
		{"single unit", price("12.98"), 1, "12.98"},
		{"unset divider", price("12.98"), 0, "12.98"},
		{"multi quantity", price("6"), 2, "3"},
		{"negative divider passes amount through", price("5"), -1, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := StoreScope{Price1: tt.price, Divider1: tt.divider, PromoPrice1: tt.price, PromoDivider1: tt.divider}
			unit := s.UnitPrice()
			require.True(t, unit.Valid)
			assert.Equal(t, tt.expected, unit.Decimal.String())

			promo := s.PromoUnitPrice()
			require.True(t, promo.Valid)
			assert.Equal(t, tt.expected, promo.Decimal.String())
		})
	}

	t.Run("missing price stays missing", func(t *testing.T) {
		s := StoreScope{Divider1: 2}
		assert.False(t, s.UnitPrice().Valid)
		assert.False(t, s.PromoUnitPrice().Valid)
	})
}

func TestStoreScope_ShouldDelete(t *testing.T) {
	assert.False(t, (&StoreScope{}).ShouldDelete())
	assert.True(t, (&StoreScope{Deleted: true}).ShouldDelete())
	assert.True(t, (&StoreScope{Discontinued: true}).ShouldDelete())
	assert.True(t, (&StoreScope{Deleted: true, Discontinued: true}).ShouldDelete())
}

func TestPosItem_PowerField(t *testing.T) {
	item := PosItem{PowerField1: "a", PowerField5: "e", PowerField8: "h"}
	assert.Equal(t, "a", item.PowerField(1))
	assert.Equal(t, "", item.PowerField(2))
	assert.Equal(t, "e", item.PowerField(5))
	assert.Equal(t, "h", item.PowerField(8))
	assert.Equal(t, "", item.PowerField(0))
	assert.Equal(t, "", item.PowerField(9))
}

func TestPosItem_DecodeCatapultPayload(t *testing.T) {
	payload := `[{
		"recordId": "42",
		"itemId": "012345",
		"itemName": "Whole Milk",
		"brand": "Meadow Gold",
		"size": "1 GAL",
		"sizeQty": 1.0,
		"deptNumber": 3,
		"deptName": "Dairy",
		"powerField3": "y",
		"ordering": [],
		"stores": [{
			"storeNumber": "RS1",
			"deleted": false,
			"discontinued": null,
			"price1": 6.98,
			"divider1": 2,
			"promoPrice1": null,
			"promoStart": "2025-12-01T10:35:16"
		}]
	}]`

	var items []PosItem
	require.NoError(t, json.Unmarshal([]byte(payload), &items))
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "012345", item.ItemID)
	assert.Equal(t, "Whole Milk", item.ItemName)
	require.NotNil(t, item.DeptNumber)
	assert.Equal(t, 3, *item.DeptNumber)
	assert.Nil(t, item.SubDeptNumber)
	assert.True(t, item.SizeQty.Valid)
	assert.Equal(t, "y", item.PowerField(3))

	require.Len(t, item.Stores, 1)
	scope := item.Stores[0]
	assert.Equal(t, "RS1", scope.StoreNumber)
	assert.False(t, scope.ShouldDelete())
	assert.True(t, scope.HasRegularPrice())
	assert.False(t, scope.HasPromoPrice())
	assert.False(t, scope.Weight.Valid)
	assert.Equal(t, "3.49", scope.UnitPrice().Decimal.String())
}
