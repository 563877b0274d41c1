package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client talks to an Upbit-compatible REST API. It implements
// market.CandleSource, market.Exchange and market.Catalog.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a gateway client.
func New(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		cfg:     final,
		http:    &http.Client{Timeout: final.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(final.RatePerSec), final.Burst),
	}
}

// get performs a throttled GET with bounded exponential backoff on
// transient failures. 4xx responses are terminal; they signal a request
// problem retries cannot fix.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if token := c.authToken(query); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("upbit %s: status %d", path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("upbit %s: status %d: %s", path, resp.StatusCode, truncate(raw)))
		}
		body = raw
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// post performs an authenticated form POST without retries; order
// placement must not be replayed blindly.
func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if token := c.authToken(form); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

// authToken builds the Upbit JWT: HS256 over access key, a uuid nonce and
// the SHA512 hash of the query string. Empty when no keys are configured
// (public endpoints work unauthenticated).
func (c *Client) authToken(query url.Values) string {
	if c.cfg.AccessKey == "" || c.cfg.SecretKey == "" {
		return ""
	}
	claims := jwt.MapClaims{
		"access_key": c.cfg.AccessKey,
		"nonce":      uuid.NewString(),
	}
	if len(query) > 0 {
		sum := sha512.Sum512([]byte(query.Encode()))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.SecretKey))
	if err != nil {
		return ""
	}
	return token
}

func truncate(raw []byte) string {
	const max = 200
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// parseUTCTime parses Upbit's candle_date_time_utc format.
func parseUTCTime(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
