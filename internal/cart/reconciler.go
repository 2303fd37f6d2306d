// Package cart keeps the shopping cart of one device session. Anonymous carts
// live in the local store; signed-in carts live on the backend. Signing in
// merges the anonymous cart into the user's cart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"seafood-storefront/internal/event"
	"seafood-storefront/internal/kvstore"
	"seafood-storefront/internal/model"
)

type API interface {
	GetCart(ctx context.Context) (model.Cart, error)
	AddToCart(ctx context.Context, productID string, quantity int) (model.Cart, error)
	UpdateCartItem(ctx context.Context, itemID string, quantity int) (model.Cart, error)
	RemoveCartItem(ctx context.Context, itemID string) (model.Cart, error)
	ClearCart(ctx context.Context) (model.Cart, error)
}

// Identity reports the signed-in user, if any.
type Identity interface {
	User(ctx context.Context) (model.User, bool)
}

// SyncResult summarizes a guest cart merge.
type SyncResult struct {
	Merged int `json:"merged"`
	Failed int `json:"failed"`
}

type Reconciler struct {
	api      API
	identity Identity
	store    kvstore.Store
	bus      event.Bus
	logger   *slog.Logger
	now      func() time.Time

	// op serializes whole operations, so a merge and its refresh cannot
	// interleave with other cart calls.
	op sync.Mutex

	mu   sync.RWMutex
	cart model.Cart
}

func NewReconciler(api API, identity Identity, store kvstore.Store, bus event.Bus) *Reconciler {
	return &Reconciler{
		api:      api,
		identity: identity,
		store:    store,
		bus:      bus,
		logger:   slog.Default().With("component", "cart"),
		now:      time.Now,
		cart:     model.NewGuestCart(),
	}
}

// Cart returns a snapshot of the current cart.
func (r *Reconciler) Cart() model.Cart {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cart.Clone()
}

// Load establishes the initial cart. A corrupted guest cart is discarded.
func (r *Reconciler) Load(ctx context.Context) error {
	r.op.Lock()
	defer r.op.Unlock()

	if _, ok := r.identity.User(ctx); ok {
		r.refreshRemote(ctx)
		return nil
	}

	cart, err := r.loadGuest(ctx)
	if err != nil {
		return err
	}
	r.set(cart)
	return nil
}

// Refresh re-reads the cart from its source of truth. Backend failures are
// logged and leave the current cart in place.
func (r *Reconciler) Refresh(ctx context.Context) model.Cart {
	r.op.Lock()
	defer r.op.Unlock()

	r.refreshLocked(ctx)
	return r.Cart()
}

func (r *Reconciler) refreshLocked(ctx context.Context) {
	if _, ok := r.identity.User(ctx); ok {
		r.refreshRemote(ctx)
		return
	}

	cart, err := r.loadGuest(ctx)
	if err != nil {
		r.logger.Warn("reload guest cart failed", "error", err)
		return
	}
	r.set(cart)
}

func (r *Reconciler) refreshRemote(ctx context.Context) {
	cart, err := r.api.GetCart(ctx)
	if err != nil {
		r.logger.Warn("fetch cart failed", "error", err)
		return
	}
	r.set(cart)
}

// AddItem adds quantity units of product. Adding a product already in the
// cart increases that item's quantity.
func (r *Reconciler) AddItem(ctx context.Context, product model.Product, quantity int) (model.Cart, error) {
	if err := product.Validate(); err != nil {
		return model.Cart{}, err
	}
	if quantity < 1 {
		return model.Cart{}, fmt.Errorf("%w: %d", model.ErrInvalidQuantity, quantity)
	}

	r.op.Lock()
	defer r.op.Unlock()

	if _, ok := r.identity.User(ctx); ok {
		return r.apply(r.api.AddToCart(ctx, product.ID, quantity))
	}

	cart, err := r.guestSnapshot(ctx)
	if err != nil {
		return model.Cart{}, err
	}
	now := r.now().UTC()
	if idx, found := cart.FindByProduct(product.ID); found {
		cart.Items[idx].Quantity += quantity
	} else {
		cart.Items = append(cart.Items, model.CartItem{
			ID:       r.guestItemID(product.ID),
			Product:  model.Embedded(product),
			Quantity: quantity,
			AddedAt:  now,
		})
	}
	cart.UpdatedAt = now
	return r.commitGuest(ctx, cart)
}

// UpdateQuantity sets an item's quantity. A quantity below one removes the item.
func (r *Reconciler) UpdateQuantity(ctx context.Context, itemID string, quantity int) (model.Cart, error) {
	if quantity < 1 {
		return r.RemoveItem(ctx, itemID)
	}

	r.op.Lock()
	defer r.op.Unlock()

	if _, ok := r.identity.User(ctx); ok {
		return r.apply(r.api.UpdateCartItem(ctx, itemID, quantity))
	}

	cart, err := r.guestSnapshot(ctx)
	if err != nil {
		return model.Cart{}, err
	}
	idx, found := cart.Find(itemID)
	if !found {
		return cart, nil
	}
	cart.Items[idx].Quantity = quantity
	cart.UpdatedAt = r.now().UTC()
	return r.commitGuest(ctx, cart)
}

func (r *Reconciler) RemoveItem(ctx context.Context, itemID string) (model.Cart, error) {
	r.op.Lock()
	defer r.op.Unlock()

	if _, ok := r.identity.User(ctx); ok {
		return r.apply(r.api.RemoveCartItem(ctx, itemID))
	}

	cart, err := r.guestSnapshot(ctx)
	if err != nil {
		return model.Cart{}, err
	}
	idx, found := cart.Find(itemID)
	if !found {
		return cart, nil
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.UpdatedAt = r.now().UTC()
	if cart.IsEmpty() {
		cart = model.NewGuestCart()
	}
	return r.commitGuest(ctx, cart)
}

func (r *Reconciler) Clear(ctx context.Context) (model.Cart, error) {
	r.op.Lock()
	defer r.op.Unlock()

	if _, ok := r.identity.User(ctx); ok {
		return r.apply(r.api.ClearCart(ctx))
	}
	return r.commitGuest(ctx, model.NewGuestCart())
}

// SyncGuestCartToUser replays every guest item into the signed-in user's cart,
// one add at a time, then drops the guest cart and reloads from the backend.
// Failed adds are logged and reported; they do not stop the merge.
func (r *Reconciler) SyncGuestCartToUser(ctx context.Context) (SyncResult, error) {
	r.op.Lock()
	defer r.op.Unlock()

	user, ok := r.identity.User(ctx)
	if !ok {
		return SyncResult{}, model.ErrNotAuthenticated
	}

	guest, err := r.loadGuest(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if guest.IsEmpty() {
		r.refreshRemote(ctx)
		return SyncResult{}, nil
	}

	var (
		result SyncResult
		errs   []error
	)
	for _, item := range guest.Items {
		if _, err := r.api.AddToCart(ctx, item.Product.ID(), item.Quantity); err != nil {
			r.logger.Warn("merge guest item failed",
				"user_id", user.ID,
				"product_id", item.Product.ID(),
				"quantity", item.Quantity,
				"error", err,
			)
			result.Failed++
			errs = append(errs, fmt.Errorf("merge %s: %w", item.Product.ID(), err))
			continue
		}
		result.Merged++
	}

	if err := r.store.Remove(ctx, kvstore.KeyGuestCart); err != nil {
		errs = append(errs, fmt.Errorf("remove guest cart: %w", err))
	}
	r.refreshRemote(ctx)

	r.logger.Info("guest cart merged", "user_id", user.ID, "merged", result.Merged, "failed", result.Failed)
	r.bus.Publish(event.New(event.TypeCartSynced, user.ID, result))
	return result, errors.Join(errs...)
}

// SyncBestEffort merges the guest cart and never fails the caller; sign-in
// must succeed even when the merge does not.
func (r *Reconciler) SyncBestEffort(ctx context.Context) {
	if _, err := r.SyncGuestCartToUser(ctx); err != nil {
		r.logger.Warn("guest cart merge incomplete", "error", err)
	}
}

// Run follows auth transitions on the bus until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	events, unsubscribe := r.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case event.TypeLoggedIn:
				r.SyncBestEffort(ctx)
			case event.TypeLoggedOut:
				r.Refresh(ctx)
			}
		}
	}
}

// apply adopts a cart returned by the backend. On error the current cart is
// left untouched.
func (r *Reconciler) apply(cart model.Cart, err error) (model.Cart, error) {
	if err != nil {
		return model.Cart{}, err
	}
	r.set(cart)
	return cart.Clone(), nil
}

// guestSnapshot returns a copy of the anonymous cart, reading it back from the
// store when the current cart still belongs to a signed-out user.
func (r *Reconciler) guestSnapshot(ctx context.Context) (model.Cart, error) {
	if cart := r.Cart(); cart.IsGuest() {
		return cart, nil
	}
	return r.loadGuest(ctx)
}

// commitGuest persists cart before adopting it.
func (r *Reconciler) commitGuest(ctx context.Context, cart model.Cart) (model.Cart, error) {
	if err := r.writeGuest(ctx, cart); err != nil {
		return model.Cart{}, err
	}
	r.set(cart)
	return cart.Clone(), nil
}

func (r *Reconciler) set(cart model.Cart) {
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}

	r.mu.Lock()
	r.cart = cart.Clone()
	r.mu.Unlock()

	userID := ""
	if !cart.IsGuest() {
		userID = cart.User
	}
	r.bus.Publish(event.New(event.TypeCartUpdated, userID, cart.View()))
}
