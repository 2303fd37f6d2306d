package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRefDecodesEachVariant(t *testing.T) {
	t.Parallel()

	var item struct {
		Product ProductRef `json:"product"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"product":"p1"}`), &item))
	assert.Equal(t, RefID, item.Product.Kind())
	assert.Equal(t, "p1", item.Product.ID())
	_, ok := item.Product.Product()
	assert.False(t, ok)

	require.NoError(t, json.Unmarshal([]byte(`{"product":{"_id":"p2","name":"Mackerel","price":300}}`), &item))
	assert.Equal(t, RefEmbedded, item.Product.Kind())
	p, ok := item.Product.Product()
	require.True(t, ok)
	assert.Equal(t, "Mackerel", p.Name)
	assert.Equal(t, "p2", item.Product.ID())

	require.NoError(t, json.Unmarshal([]byte(`{"product":null}`), &item))
	assert.Equal(t, RefMissing, item.Product.Kind())

	assert.Error(t, json.Unmarshal([]byte(`{"product":42}`), &item))
}

func TestGuestCartRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cart := Cart{
		User: GuestUser,
		Items: []CartItem{
			{ID: "p1_1", Product: Embedded(Product{ID: "p1", Name: "Mackerel", Price: 300, Images: []string{"a.jpg"}}), Quantity: 2, AddedAt: now},
			{ID: "p2_1", Product: Reference("p2"), Quantity: 1, AddedAt: now},
		},
		UpdatedAt: now,
	}

	raw, err := json.Marshal(cart)
	require.NoError(t, err)

	var decoded Cart
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, cart, decoded)
}

func TestCartTotals(t *testing.T) {
	t.Parallel()

	cart := Cart{Items: []CartItem{
		{ID: "a", Product: Embedded(Product{ID: "p1", Name: "Mackerel", Price: 300}), Quantity: 2},
		{ID: "b", Product: Embedded(Product{ID: "p2", Name: "Prawns", Price: 450.5}), Quantity: 1},
		{ID: "c", Product: Reference("p3"), Quantity: 4},
	}}

	assert.Equal(t, 7, cart.TotalQuantity())
	assert.InDelta(t, 1050.5, cart.Subtotal(), 0.001)

	idx, ok := cart.FindByProduct("p3")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	_, ok = cart.Find("missing")
	assert.False(t, ok)
}

func TestProductValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Product{ID: "p1", Name: "Mackerel", Price: 300}.Validate())
	for _, p := range []Product{
		{Name: "Mackerel", Price: 300},
		{ID: "p1", Price: 300},
		{ID: "p1", Name: "Mackerel"},
		{ID: "p1", Name: "Mackerel", Price: -1},
	} {
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalidProduct), "product %+v", p)
	}
}
