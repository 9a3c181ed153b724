package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PlaceholderImageURL is used for products stored without an image.
const PlaceholderImageURL = "https://via.placeholder.com/300x300?text=Product+Image"

type Product struct {
	ID          string   `json:"id"`
	ProductCode string   `json:"product_code,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Stock       int      `json:"stock"`
	ImageURL    string   `json:"imageUrl"`
	Material    string   `json:"material,omitempty"`
	Durability  string   `json:"durability,omitempty"`
	Features    []string `json:"features,omitempty"`
}

// UnmarshalJSON accepts the product id as either a JSON string or a number,
// since catalogs in the wild carry both.
func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.ID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		p.ID = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		p.ID = s
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		p.ID = n.String()
	}

	p.ID = strings.TrimSpace(p.ID)
	return nil
}
