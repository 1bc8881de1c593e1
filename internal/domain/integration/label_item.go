package integration

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LabelItem is an item in the schema of the VUSION label cloud
type LabelItem struct {
	ID       string
	Name     string
	Price    decimal.NullDecimal
	Brand    string
	Capacity string
	Custom   CustomFields
}

type labelItemJSON struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Price    *json.Number  `json:"price,omitempty"`
	Brand    string        `json:"brand,omitempty"`
	Capacity string        `json:"capacity,omitempty"`
	Custom   *CustomFields `json:"custom,omitempty"`
}

// MarshalJSON encodes the item with price as a JSON number and without empty attributes
func (i LabelItem) MarshalJSON() ([]byte, error) {
	out := labelItemJSON{
		ID:       i.ID,
		Name:     i.Name,
		Brand:    i.Brand,
		Capacity: i.Capacity,
	}
	if i.Price.Valid {
		n := json.Number(i.Price.Decimal.String())
		out.Price = &n
	}
	if i.Custom.Len() > 0 {
		custom := i.Custom
		out.Custom = &custom
	}
	return json.Marshal(out)
}

// EncodedSize returns the length of the item's JSON encoding
func (i LabelItem) EncodedSize() (int, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
