package wipeapi

import (
	"context"
	"net/http"
	"net/url"
)

// The mutation endpoints below implement domain.MutationEndpoints.
// PUT/DELETE on a membership resource are set operations, so repeating
// them is harmless; a DELETE of something already gone counts as success.

func (c *Client) AddFavorite(ctx context.Context, idempotencyKey, serverID string) error {
	return c.setMembership(ctx, http.MethodPut, "/me/favorites/", idempotencyKey, serverID)
}

func (c *Client) RemoveFavorite(ctx context.Context, idempotencyKey, serverID string) error {
	return c.setMembership(ctx, http.MethodDelete, "/me/favorites/", idempotencyKey, serverID)
}

func (c *Client) Subscribe(ctx context.Context, idempotencyKey, serverID string) error {
	return c.setMembership(ctx, http.MethodPut, "/me/subscriptions/", idempotencyKey, serverID)
}

func (c *Client) Unsubscribe(ctx context.Context, idempotencyKey, serverID string) error {
	return c.setMembership(ctx, http.MethodDelete, "/me/subscriptions/", idempotencyKey, serverID)
}

// ConfirmPurchase acknowledges a store purchase token with the backend
func (c *Client) ConfirmPurchase(ctx context.Context, idempotencyKey, token, productID string) error {
	_, _, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "/me/purchases",
		body:           PurchaseRequest{Token: token, ProductID: productID},
		idempotencyKey: idempotencyKey,
	})
	return err
}

func (c *Client) setMembership(ctx context.Context, method, collection, idempotencyKey, id string) error {
	_, _, err := c.do(ctx, request{
		method:         method,
		path:           collection + url.PathEscape(id),
		idempotencyKey: idempotencyKey,
	})
	if method == http.MethodDelete && isNotFound(err) {
		return nil
	}
	return err
}
