package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"seafood-storefront/internal/kvstore"
	"seafood-storefront/internal/model"
)

// readGuest loads the anonymous cart from the store. A missing key yields an
// empty guest cart; an unreadable or incomplete one yields ErrCorruptedCart.
func (r *Reconciler) readGuest(ctx context.Context) (model.Cart, error) {
	raw, ok, err := kvstore.Lookup(ctx, r.store, kvstore.KeyGuestCart)
	if err != nil {
		return model.Cart{}, fmt.Errorf("read guest cart: %w", err)
	}
	if !ok {
		return model.NewGuestCart(), nil
	}

	var cart model.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return model.Cart{}, fmt.Errorf("%w: %v", model.ErrCorruptedCart, err)
	}
	if err := checkGuest(cart); err != nil {
		return model.Cart{}, err
	}

	cart.User = model.GuestUser
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	return cart, nil
}

// checkGuest requires every item to carry a product snapshot with a name.
func checkGuest(cart model.Cart) error {
	for _, item := range cart.Items {
		p, ok := item.Product.Product()
		if !ok {
			return fmt.Errorf("%w: item %q has no product snapshot", model.ErrCorruptedCart, item.ID)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: item %q has an unnamed product", model.ErrCorruptedCart, item.ID)
		}
	}
	return nil
}

// loadGuest reads the anonymous cart and discards it when corrupted.
func (r *Reconciler) loadGuest(ctx context.Context) (model.Cart, error) {
	cart, err := r.readGuest(ctx)
	if errors.Is(err, model.ErrCorruptedCart) {
		r.logger.Warn("discarding corrupted guest cart", "error", err)
		if err := r.store.Remove(ctx, kvstore.KeyGuestCart); err != nil {
			return model.Cart{}, fmt.Errorf("remove guest cart: %w", err)
		}
		return model.NewGuestCart(), nil
	}
	return cart, err
}

// writeGuest persists the anonymous cart; an empty cart removes the key.
func (r *Reconciler) writeGuest(ctx context.Context, cart model.Cart) error {
	if cart.IsEmpty() {
		if err := r.store.Remove(ctx, kvstore.KeyGuestCart); err != nil {
			return fmt.Errorf("remove guest cart: %w", err)
		}
		return nil
	}
	if err := kvstore.SetJSON(ctx, r.store, kvstore.KeyGuestCart, cart); err != nil {
		return fmt.Errorf("store guest cart: %w", err)
	}
	return nil
}

func (r *Reconciler) guestItemID(productID string) string {
	return fmt.Sprintf("%s_%d", productID, r.now().UnixMilli())
}
