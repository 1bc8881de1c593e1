package integration

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CustomFields holds the open-ended label fields of a LabelItem.
// The label cloud only accepts string values. Keys keep the position of
// their first insertion; setting an existing key replaces its value.
// The zero value is ready to use.
type CustomFields struct {
	keys   []string
	values map[string]string
}

// Set stores a string value under key
func (f *CustomFields) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// SetIfNotEmpty stores value under key unless value is empty
func (f *CustomFields) SetIfNotEmpty(key, value string) {
	if value != "" {
		f.Set(key, value)
	}
}

// SetDecimal stores a numeric value. Whole numbers are rendered without a
// decimal point (1.0 becomes "1"), other values keep their significant digits.
func (f *CustomFields) SetDecimal(key string, value decimal.Decimal) {
	f.Set(key, value.String())
}

// Get returns the value stored under key
func (f CustomFields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Has returns true if key is present
func (f CustomFields) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

// Keys returns the keys in insertion order
func (f CustomFields) Keys() []string {
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

// Len returns the number of fields
func (f CustomFields) Len() int {
	return len(f.keys)
}

// MarshalJSON encodes the fields as a JSON object in insertion order
func (f CustomFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
