package dataset

import (
	"context"
	"encoding/json"
)

// MockStore returns a small fixed table for tests and local development.
// A few rows are deliberately dirty to exercise cleaning.
type MockStore struct{}

func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) Name() string {
	return "mock"
}

func (m *MockStore) FetchRows(ctx context.Context) ([]RawRow, error) {
	rows := make([]RawRow, 0, len(mockRows)+3)
	for _, r := range mockRows {
		rows = append(rows, RawRow{
			ScrapType:      strPtr(r.scrap),
			SubCategory:    strPtr(r.sub),
			SubSubCategory: strPtr(r.leaf),
			BasePrice:      json.RawMessage(r.price),
		})
	}

	// dirty rows: whitespace, an unparseable price, a null leaf category
	rows = append(rows,
		RawRow{
			ScrapType:      strPtr("  Stainless Steel "),
			SubCategory:    strPtr(" Sheet "),
			SubSubCategory: strPtr(" 304 "),
			BasePrice:      json.RawMessage(`"0.62"`),
		},
		RawRow{
			ScrapType:      strPtr("Aluminum"),
			SubCategory:    strPtr("Cans"),
			SubSubCategory: strPtr("Loose"),
			BasePrice:      json.RawMessage(`"n/a"`),
		},
		RawRow{
			ScrapType:      strPtr("Lead"),
			SubCategory:    strPtr("Batteries"),
			SubSubCategory: nil,
			BasePrice:      json.RawMessage(`0.22`),
		},
	)
	return rows, nil
}

var mockRows = []struct {
	scrap, sub, leaf, price string
}{
	{"Copper", "Wire", "Bare Bright", "9.25"},
	{"Copper", "Wire", "Insulated", "4.10"},
	{"Copper", "Tubing", "Clean", "8.40"},
	{"Copper", "Tubing", "Soldered", "7.15"},
	{"Aluminum", "Extrusion", "Clean", "1.05"},
	{"Aluminum", "Extrusion", "Painted", "0.85"},
	{"Aluminum", "Sheet", "Clean", "0.78"},
	{"Aluminum", "Cast", "Clean", "0.70"},
	{"Brass", "Yellow", "Clean", "5.60"},
	{"Brass", "Red", "Clean", "6.35"},
	{"Brass", "Shells", "Clean", "5.10"},
	{"Steel", "HMS", "Grade 1", "0.12"},
	{"Steel", "HMS", "Grade 2", "0.10"},
	{"Steel", "Shred", "Feed", "0.09"},
	{"Stainless Steel", "Solids", "304", "0.58"},
	{"Stainless Steel", "Solids", "316", "0.82"},
	{"Lead", "Soft", "Clean", "0.65"},
	{"Zinc", "Die Cast", "Clean", "0.45"},
}
