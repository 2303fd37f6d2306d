package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"seafood-storefront/internal/cart"
	"seafood-storefront/internal/model"
)

// ProductCatalog resolves a product ID to its current snapshot.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (model.Product, error)
}

type CartHandler struct {
	cart    *cart.Reconciler
	catalog ProductCatalog
}

func NewCartHandler(reconciler *cart.Reconciler, catalog ProductCatalog) *CartHandler {
	return &CartHandler{cart: reconciler, catalog: catalog}
}

func (h *CartHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.cart.Cart().View())
}

func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.cart.Refresh(r.Context()).View())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload model.AddItemRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}

	product, err := h.resolveProduct(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.cart.AddItem(r.Context(), product, payload.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated.View())
}

func (h *CartHandler) resolveProduct(ctx context.Context, payload model.AddItemRequest) (model.Product, error) {
	if payload.Product != nil {
		return *payload.Product, nil
	}

	id := strings.TrimSpace(payload.ProductID)
	if id == "" {
		return model.Product{}, fmt.Errorf("%w: product or productId is required", model.ErrInvalidInput)
	}
	return h.catalog.GetProduct(ctx, id)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload model.UpdateCartItemRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.cart.UpdateQuantity(r.Context(), chi.URLParam(r, "itemID"), payload.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated.View())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	updated, err := h.cart.RemoveItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated.View())
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	updated, err := h.cart.Clear(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated.View())
}
