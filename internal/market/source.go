package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderSide distinguishes buys from sells on order placement.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "bid"
	OrderSideSell OrderSide = "ask"
)

// Balance is one currency line from the exchange account.
type Balance struct {
	Currency  string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// MarketInfo is one tradable market from the exchange catalog.
type MarketInfo struct {
	Market     string
	KoreanName string
	// AccTradePrice24h is the 24h turnover in quote currency, used for
	// liquidity ranking.
	AccTradePrice24h decimal.Decimal
}

// CandleSource supplies OHLCV history for a market/interval pair.
// Implementations return an empty slice (not an error) on transient
// upstream failure; callers treat empty as "skip, not abort".
type CandleSource interface {
	GetCandles(ctx context.Context, mkt, interval string, count int) ([]Candle, error)
}

// Exchange covers the account-side collaborators: quotes, balances and
// order placement.
type Exchange interface {
	GetCurrentPrice(ctx context.Context, mkt string) (decimal.Decimal, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	PlaceMarketOrder(ctx context.Context, mkt string, side OrderSide, amount decimal.Decimal) error
	PlaceLimitOrder(ctx context.Context, mkt string, side OrderSide, quantity, price decimal.Decimal) error
}

// Catalog lists tradable markets with their 24h turnover.
type Catalog interface {
	ListMarkets(ctx context.Context) ([]MarketInfo, error)
}
