package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Product is a catalog entry. Price is per 500g unit.
type Product struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	Stock       int      `json:"stock,omitempty"`
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	if p.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	return nil
}

type RefKind int

const (
	RefMissing RefKind = iota
	RefID
	RefEmbedded
)

func (k RefKind) String() string {
	switch k {
	case RefID:
		return "reference"
	case RefEmbedded:
		return "embedded"
	default:
		return "missing"
	}
}

// ProductRef is the product field of a cart item: either a bare product ID
// or a full product snapshot. Guest carts always embed the snapshot.
type ProductRef struct {
	kind    RefKind
	id      string
	product Product
}

func Reference(id string) ProductRef {
	return ProductRef{kind: RefID, id: id}
}

func Embedded(p Product) ProductRef {
	return ProductRef{kind: RefEmbedded, id: p.ID, product: p}
}

func (r ProductRef) Kind() RefKind {
	return r.kind
}

// ID returns the referenced product ID for both variants.
func (r ProductRef) ID() string {
	return r.id
}

func (r ProductRef) Product() (Product, bool) {
	if r.kind != RefEmbedded {
		return Product{}, false
	}
	return r.product, true
}

func (r ProductRef) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case RefID:
		return json.Marshal(r.id)
	case RefEmbedded:
		return json.Marshal(r.product)
	default:
		return []byte("null"), nil
	}
}

func (r *ProductRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*r = ProductRef{}
		return nil
	case trimmed[0] == '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return fmt.Errorf("decode product reference: %w", err)
		}
		*r = Reference(id)
		return nil
	case trimmed[0] == '{':
		var p Product
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return fmt.Errorf("decode product snapshot: %w", err)
		}
		*r = Embedded(p)
		return nil
	default:
		return fmt.Errorf("decode product: unexpected JSON %q", string(trimmed))
	}
}
