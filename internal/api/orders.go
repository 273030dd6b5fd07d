package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/rofex-data/internal/model"
)

// GetFilledOrders fetches filled and partially filled orders for an account.
func (c *Client) GetFilledOrders(ctx context.Context, account string) ([]APIOrder, error) {
	query := url.Values{}
	query.Set("accountId", account)

	var resp FilledOrdersResponse
	if err := c.get(ctx, "/rest/order/filleds", query, &resp); err != nil {
		return nil, fmt.Errorf("get filled orders: %w", err)
	}
	return resp.Orders, nil
}

// FetchFilledExecutions returns the account's fills as ledger rows. Orders in
// any status other than FILLED or PARTIALLY_FILLED are dropped here.
func (c *Client) FetchFilledExecutions(ctx context.Context, account string) ([]model.Execution, error) {
	orders, err := c.GetFilledOrders(ctx, account)
	if err != nil {
		return nil, err
	}

	out := make([]model.Execution, 0, len(orders))
	for i := range orders {
		if !IsFilledStatus(orders[i].OrderStatus()) {
			continue
		}
		out = append(out, orders[i].ToExecution(model.SourceREST))
	}

	c.logger.Debug("fetched filled orders",
		"account", account,
		"orders", len(orders),
		"fills", len(out),
	)
	return out, nil
}
