package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"seafood-storefront/internal/model"
)

func (c *Client) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	var resp model.BackendResponse[model.Product]
	if err := c.do(ctx, c.http, http.MethodGet, "/api/products/"+url.PathEscape(productID), nil, &resp); err != nil {
		return model.Product{}, err
	}
	if !resp.Success {
		return model.Product{}, unsuccessful(resp.Message)
	}
	return resp.Data, nil
}
