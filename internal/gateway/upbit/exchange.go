package upbit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"rudder/internal/market"
	"rudder/internal/trade"
)

var _ market.Exchange = (*Client)(nil)

// GetCurrentPrice returns the latest trade price for mkt.
func (c *Client) GetCurrentPrice(ctx context.Context, mkt string) (decimal.Decimal, error) {
	mkt = strings.ToUpper(strings.TrimSpace(mkt))
	if mkt == "" {
		return decimal.Zero, fmt.Errorf("market is required")
	}
	query := url.Values{}
	query.Set("markets", mkt)
	body, err := c.get(ctx, "/v1/ticker", query)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", mkt, err)
	}
	rows := gjson.ParseBytes(body).Array()
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker for %s", mkt)
	}
	return dec(rows[0].Get("trade_price")), nil
}

// GetBalances lists account holdings.
func (c *Client) GetBalances(ctx context.Context) ([]market.Balance, error) {
	body, err := c.get(ctx, "/v1/accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	rows := gjson.ParseBytes(body).Array()
	out := make([]market.Balance, 0, len(rows))
	for _, row := range rows {
		out = append(out, market.Balance{
			Currency:  row.Get("currency").String(),
			Available: dec(row.Get("balance")),
			Locked:    dec(row.Get("locked")),
		})
	}
	return out, nil
}

// PlaceMarketOrder submits a market order. For buys, amount is the KRW
// budget (ord_type=price); for sells it is the asset quantity
// (ord_type=market). Upbit models the two sides asymmetrically.
func (c *Client) PlaceMarketOrder(ctx context.Context, mkt string, side market.OrderSide, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("order amount must be positive")
	}
	form := url.Values{}
	form.Set("market", strings.ToUpper(strings.TrimSpace(mkt)))
	form.Set("side", string(side))
	if side == market.OrderSideBuy {
		form.Set("ord_type", "price")
		form.Set("price", amount.String())
	} else {
		form.Set("ord_type", "market")
		form.Set("volume", amount.String())
	}
	return c.submitOrder(ctx, mkt, form)
}

// PlaceLimitOrder submits a limit order at the given price.
func (c *Client) PlaceLimitOrder(ctx context.Context, mkt string, side market.OrderSide, quantity, price decimal.Decimal) error {
	if quantity.Sign() <= 0 || price.Sign() <= 0 {
		return fmt.Errorf("order quantity and price must be positive")
	}
	form := url.Values{}
	form.Set("market", strings.ToUpper(strings.TrimSpace(mkt)))
	form.Set("side", string(side))
	form.Set("ord_type", "limit")
	form.Set("volume", quantity.String())
	form.Set("price", price.String())
	return c.submitOrder(ctx, mkt, form)
}

func (c *Client) submitOrder(ctx context.Context, mkt string, form url.Values) error {
	body, status, err := c.post(ctx, "/v1/orders", form)
	if err != nil {
		return fmt.Errorf("%w: order submit %s: %w", trade.ErrUpstreamUnavailable, mkt, err)
	}
	if status >= 400 {
		reason := gjson.GetBytes(body, "error.message").String()
		if reason == "" {
			reason = fmt.Sprintf("status %d", status)
		}
		return &trade.OrderRejectedError{Market: mkt, Reason: reason}
	}
	return nil
}
