package model

import "time"

// GuestUser identifies carts that belong to an anonymous session.
const GuestUser = "guest"

type CartItem struct {
	ID       string     `json:"_id"`
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"` // count of 500g units
	AddedAt  time.Time  `json:"addedAt"`
}

type Cart struct {
	User      string     `json:"user"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func NewGuestCart() Cart {
	return Cart{User: GuestUser, Items: []CartItem{}}
}

func (c Cart) IsGuest() bool {
	return c.User == GuestUser
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c Cart) Find(itemID string) (int, bool) {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return -1, false
}

func (c Cart) FindByProduct(productID string) (int, bool) {
	for i, item := range c.Items {
		if item.Product.ID() == productID {
			return i, true
		}
	}
	return -1, false
}

func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal sums price × quantity over items carrying a product snapshot.
func (c Cart) Subtotal() float64 {
	var total float64
	for _, item := range c.Items {
		if p, ok := item.Product.Product(); ok {
			total += p.Price * float64(item.Quantity)
		}
	}
	return total
}

// Clone returns a copy whose item slice does not alias the receiver's.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

// CartView is the cart as served to UI consumers, with derived totals.
type CartView struct {
	Cart
	TotalQuantity int     `json:"totalQuantity"`
	Subtotal      float64 `json:"subtotal"`
}

func (c Cart) View() CartView {
	return CartView{Cart: c, TotalQuantity: c.TotalQuantity(), Subtotal: c.Subtotal()}
}
