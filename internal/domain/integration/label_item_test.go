package integration

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFields_Set(t *testing.T) {
	var f CustomFields
	f.Set("b", "1")
	f.Set("a", "2")
	f.Set("b", "3")

	assert.Equal(t, []string{"b", "a"}, f.Keys())
	assert.Equal(t, 2, f.Len())

	v, ok := f.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v, "last write wins")

	_, ok = f.Get("missing")
	assert.False(t, ok)
}

func TestCustomFields_SetIfNotEmpty(t *testing.T) {
	var f CustomFields
	f.SetIfNotEmpty("empty", "")
	f.SetIfNotEmpty("present", "x")

	assert.False(t, f.Has("empty"))
	assert.True(t, f.Has("present"))
}

func TestCustomFields_SetDecimal(t *testing.T) {
	tests := []struct {
		name     string
		value    decimal.Decimal
		expected string
	}{
		{"whole float", decimal.NewFromFloat(1.0), "1"},
		{"whole with trailing zero", decimal.RequireFromString("1.0"), "1"},
		{"fraction", decimal.NewFromFloat(1.5), "1.5"},
		{"trailing zeros trimmed", decimal.RequireFromString("2.50"), "2.5"},
		{"integer", decimal.NewFromInt(16), "16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f CustomFields
			f.SetDecimal("v", tt.value)
			v, _ := f.Get("v")
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestCustomFields_MarshalJSON_KeepsInsertionOrder(t *testing.T) {
	var f CustomFields
	f.Set("zeta", "1")
	f.Set("alpha", "two \"quoted\"")
	f.Set("mid", "3")

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"1","alpha":"two \"quoted\"","mid":"3"}`, string(b))

	var empty CustomFields
	b, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestLabelItem_MarshalJSON(t *testing.T) {
	t.Run("price is a JSON number", func(t *testing.T) {
		item := LabelItem{ID: "012345", Name: "Milk", Price: price("12.98")}
		item.Custom.Set("priceQty", "1")

		b, err := json.Marshal(item)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"012345","name":"Milk","price":12.98,"custom":{"priceQty":"1"}}`, string(b))
	})

	t.Run("empty attributes are omitted", func(t *testing.T) {
		b, err := json.Marshal(LabelItem{ID: "1"})
		require.NoError(t, err)
		assert.Equal(t, `{"id":"1"}`, string(b))
	})

	t.Run("custom values are strings", func(t *testing.T) {
		item := LabelItem{ID: "1"}
		item.Custom.SetDecimal("sizeQty", decimal.NewFromFloat(2))

		b, err := json.Marshal(item)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(b, &decoded))
		custom := decoded["custom"].(map[string]any)
		assert.IsType(t, "", custom["sizeQty"])
		assert.Equal(t, "2", custom["sizeQty"])
	})
}

func TestLabelItem_EncodedSize(t *testing.T) {
	item := LabelItem{ID: "1"}
	size, err := item.EncodedSize()
	require.NoError(t, err)
	assert.Equal(t, len(`{"id":"1"}`), size)
}

func TestStoreMap(t *testing.T) {
	m := NewStoreMap(map[string]string{
		"RS1":  " okimoto_corp_us.waianae_store ",
		"RS2":  "okimoto_corp_us.kailua_store",
		"HQ":   "",
		"  ":   "ignored",
		"RS3 ": "blank   ",
	})

	dest, ok := m.Resolve("RS1")
	assert.True(t, ok)
	assert.Equal(t, "okimoto_corp_us.waianae_store", dest)

	_, ok = m.Resolve("HQ")
	assert.False(t, ok)

	_, ok = m.Resolve("UNKNOWN")
	assert.False(t, ok)

	dest, ok = m.Resolve("RS3")
	assert.True(t, ok)
	assert.Equal(t, "blank", dest)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"RS1", "RS2", "RS3"}, m.Sources())
}

func TestStoreMap_ZeroValue(t *testing.T) {
	var m StoreMap
	_, ok := m.Resolve("RS1")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}
