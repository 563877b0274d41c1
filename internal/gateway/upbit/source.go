package upbit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"rudder/internal/logger"
	"rudder/internal/market"
)

const maxCandleCount = 200

var _ market.CandleSource = (*Client)(nil)
var _ market.Catalog = (*Client)(nil)

// GetCandles fetches up to count candles for the market/interval pair,
// oldest first. Transient upstream failure degrades to an empty slice with
// a warning; callers treat empty as "skip, not abort".
func (c *Client) GetCandles(ctx context.Context, mkt, interval string, count int) ([]market.Candle, error) {
	mkt = strings.ToUpper(strings.TrimSpace(mkt))
	if mkt == "" {
		return nil, fmt.Errorf("market is required")
	}
	path, err := candlePath(interval)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 100
	}
	if count > maxCandleCount {
		count = maxCandleCount
	}
	query := url.Values{}
	query.Set("market", mkt)
	query.Set("count", strconv.Itoa(count))

	body, err := c.get(ctx, path, query)
	if err != nil {
		logger.Warnf("upbit: candle fetch failed for %s %s: %v", mkt, interval, err)
		return nil, nil
	}
	// Upbit returns newest first.
	rows := gjson.ParseBytes(body).Array()
	out := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		out = append(out, market.Candle{
			Timestamp: parseUTCTime(row.Get("candle_date_time_utc").String()),
			Open:      dec(row.Get("opening_price")),
			High:      dec(row.Get("high_price")),
			Low:       dec(row.Get("low_price")),
			Close:     dec(row.Get("trade_price")),
			Volume:    dec(row.Get("candle_acc_trade_volume")),
		})
	}
	return market.NormalizeCandles(out), nil
}

// ListMarkets joins the market catalog with 24h turnover from the ticker
// endpoint, restricted to KRW quote markets.
func (c *Client) ListMarkets(ctx context.Context) ([]market.MarketInfo, error) {
	body, err := c.get(ctx, "/v1/market/all", url.Values{"isDetails": []string{"false"}})
	if err != nil {
		return nil, fmt.Errorf("market catalog: %w", err)
	}
	names := make(map[string]string)
	codes := make([]string, 0, 64)
	for _, row := range gjson.ParseBytes(body).Array() {
		code := row.Get("market").String()
		if !strings.HasPrefix(code, "KRW-") {
			continue
		}
		names[code] = row.Get("korean_name").String()
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, nil
	}
	sort.Strings(codes)

	turnover, err := c.turnovers(ctx, codes)
	if err != nil {
		return nil, err
	}
	out := make([]market.MarketInfo, 0, len(codes))
	for _, code := range codes {
		out = append(out, market.MarketInfo{
			Market:           code,
			KoreanName:       names[code],
			AccTradePrice24h: turnover[code],
		})
	}
	return out, nil
}

// turnovers batches ticker lookups; the endpoint accepts a comma-joined
// market list but chokes on very long ones.
func (c *Client) turnovers(ctx context.Context, codes []string) (map[string]decimal.Decimal, error) {
	const batch = 100
	out := make(map[string]decimal.Decimal, len(codes))
	for lo := 0; lo < len(codes); lo += batch {
		hi := lo + batch
		if hi > len(codes) {
			hi = len(codes)
		}
		query := url.Values{}
		query.Set("markets", strings.Join(codes[lo:hi], ","))
		body, err := c.get(ctx, "/v1/ticker", query)
		if err != nil {
			return nil, fmt.Errorf("ticker batch: %w", err)
		}
		for _, row := range gjson.ParseBytes(body).Array() {
			out[row.Get("market").String()] = dec(row.Get("acc_trade_price_24h"))
		}
	}
	return out, nil
}

// candlePath maps an interval string onto the Upbit candle endpoints.
func candlePath(interval string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "1m":
		return "/v1/candles/minutes/1", nil
	case "3m":
		return "/v1/candles/minutes/3", nil
	case "5m":
		return "/v1/candles/minutes/5", nil
	case "15m":
		return "/v1/candles/minutes/15", nil
	case "30m":
		return "/v1/candles/minutes/30", nil
	case "1h":
		return "/v1/candles/minutes/60", nil
	case "4h":
		return "/v1/candles/minutes/240", nil
	case "1d", "":
		return "/v1/candles/days", nil
	case "1w":
		return "/v1/candles/weeks", nil
	default:
		return "", fmt.Errorf("unsupported candle interval %q", interval)
	}
}

// dec parses a gjson number or numeric string without a float round-trip.
func dec(r gjson.Result) decimal.Decimal {
	if d, err := decimal.NewFromString(r.String()); err == nil {
		return d
	}
	return decimal.NewFromFloat(r.Float())
}
