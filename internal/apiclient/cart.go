package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"seafood-storefront/internal/model"
)

func (c *Client) GetCart(ctx context.Context) (model.Cart, error) {
	return c.cartCall(ctx, http.MethodGet, "/api/cart", nil)
}

func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (model.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, "/api/cart/add", model.AddToCartRequest{ProductID: productID, Quantity: quantity})
}

func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) (model.Cart, error) {
	return c.cartCall(ctx, http.MethodPut, "/api/cart/update/"+url.PathEscape(itemID), model.UpdateCartItemRequest{Quantity: quantity})
}

func (c *Client) RemoveCartItem(ctx context.Context, itemID string) (model.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, "/api/cart/remove/"+url.PathEscape(itemID), nil)
}

func (c *Client) ClearCart(ctx context.Context) (model.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, "/api/cart/clear", nil)
}

func (c *Client) cartCall(ctx context.Context, method string, path string, body any) (model.Cart, error) {
	var resp model.BackendResponse[model.Cart]
	if err := c.do(ctx, c.http, method, path, body, &resp); err != nil {
		return model.Cart{}, err
	}
	if !resp.Success {
		return model.Cart{}, unsuccessful(resp.Message)
	}
	if resp.Data.Items == nil {
		resp.Data.Items = []model.CartItem{}
	}
	return resp.Data, nil
}
