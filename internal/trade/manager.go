package trade

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"rudder/internal/logger"
	"rudder/internal/market"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var marketCodeRe = regexp.MustCompile(`^[A-Z]{3,4}-[A-Z0-9]{2,10}$`)

// Settings are the per-entry risk parameters seeded into a new trade.
// Percent fields are whole percents (2.0 means 2%).
type Settings struct {
	MinOrderKRW            decimal.Decimal
	StopLossPercent        decimal.Decimal
	TakeProfitPercent      decimal.Decimal
	TrailingTriggerPercent decimal.Decimal
	TrailingOffsetPercent  decimal.Decimal
	DCAStepPercent         decimal.Decimal
	HalfTakeProfitRatio    decimal.Decimal
}

// DefaultSettings mirror the reference thresholds; real deployments tune
// them through config.
func DefaultSettings() Settings {
	return Settings{
		MinOrderKRW:            decimal.NewFromInt(5000),
		StopLossPercent:        decimal.NewFromFloat(3.0),
		TakeProfitPercent:      decimal.NewFromFloat(5.0),
		TrailingTriggerPercent: decimal.NewFromFloat(2.0),
		TrailingOffsetPercent:  decimal.NewFromFloat(1.0),
		DCAStepPercent:         decimal.NewFromFloat(2.5),
		HalfTakeProfitRatio:    decimal.NewFromFloat(0.5),
	}
}

// Manager owns the guided-trade state machine. All mutation of a
// GuidedTrade goes through its operations; every transition persists the
// trade and its ledger event in one transaction.
type Manager struct {
	store    Store
	exchange market.Exchange
	prices   *market.PriceCache
	settings Settings

	nowFn  func() time.Time
	newRef func() string
}

// NewManager wires the lifecycle manager. prices may be nil, in which case
// quotes are fetched from the exchange directly.
func NewManager(store Store, exchange market.Exchange, prices *market.PriceCache, settings Settings) *Manager {
	return &Manager{
		store:    store,
		exchange: exchange,
		prices:   prices,
		settings: settings,
		nowFn:    time.Now,
		newRef:   func() string { return uuid.NewString() },
	}
}

// StartRequest opens a fresh guided trade with a KRW budget.
type StartRequest struct {
	Market    string
	AmountKRW decimal.Decimal
}

// StartResult reports the created trade.
type StartResult struct {
	TradeID int64  `json:"trade_id"`
	Status  Status `json:"status"`
}

// AdoptRequest brings an externally-opened balance under management.
type AdoptRequest struct {
	Market      string
	Mode        string
	Interval    string
	EntrySource string
	Notes       string
}

// AdoptResult distinguishes a fresh adoption from an idempotent no-op.
type AdoptResult struct {
	Adopted    bool             `json:"adopted"`
	PositionID int64            `json:"position_id"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
}

// TickResult reports what a price update did to an open trade.
type TickResult struct {
	TradeID     int64  `json:"trade_id"`
	StopRaised  bool   `json:"stop_raised"`
	Closed      bool   `json:"closed"`
	CloseReason string `json:"close_reason,omitempty"`
}

// StartAutoTrading validates the request, computes the entry quantity from
// the live price, places the buy order and persists the OPEN trade plus its
// ENTRY event atomically.
func (m *Manager) StartAutoTrading(ctx context.Context, req StartRequest) (StartResult, error) {
	mkt, err := normalizeMarket(req.Market)
	if err != nil {
		return StartResult{}, err
	}
	if req.AmountKRW.Sign() <= 0 {
		return StartResult{}, invalidArg("amount_krw", "must be positive, got %s", req.AmountKRW)
	}
	if req.AmountKRW.LessThan(m.settings.MinOrderKRW) {
		return StartResult{}, invalidArg("amount_krw", "below minimum order of %s KRW", m.settings.MinOrderKRW)
	}

	// Refuse before any KRW is spent. The open-market uniqueness constraint
	// re-verifies this inside the insert transaction.
	if existing, err := m.findOpen(ctx, mkt); err != nil {
		return StartResult{}, err
	} else if existing != nil {
		return StartResult{}, invalidArg("market", "open position already exists for %s", mkt)
	}

	price, err := m.quote(ctx, mkt)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: quote %s: %w", ErrUpstreamUnavailable, mkt, err)
	}
	if price.Sign() <= 0 {
		return StartResult{}, invalidArg("market", "no quote available for %s", mkt)
	}
	quantity := req.AmountKRW.Div(price).Truncate(8)
	if quantity.Sign() <= 0 {
		return StartResult{}, invalidArg("amount_krw", "amount too small for price %s", price)
	}

	if err := m.exchange.PlaceMarketOrder(ctx, mkt, market.OrderSideBuy, req.AmountKRW); err != nil {
		return StartResult{}, fmt.Errorf("entry order for %s: %w", mkt, err)
	}

	now := m.nowFn()
	t := m.newTrade(mkt, price, quantity, now)
	if err := m.insertWithEvent(ctx, t, EventEntry, price, quantity, map[string]string{"source": "auto"}); err != nil {
		if errors.Is(err, ErrDuplicateOpenTrade) {
			return StartResult{}, invalidArg("market", "open position already exists for %s", mkt)
		}
		return StartResult{}, err
	}
	logger.Infow("guided trade opened", "id", t.ID, "market", mkt, "qty", quantity, "entry", price)
	return StartResult{TradeID: t.ID, Status: t.Status}, nil
}

// AdoptExternalPosition is idempotent: if an open trade already exists for
// the market it returns {adopted: false, position_id} without mutation.
// Otherwise it seeds a new OPEN trade from the actual held balance. The
// open-market uniqueness constraint re-verifies the check at insert time,
// so a racing autopilot tick cannot create a second open trade.
func (m *Manager) AdoptExternalPosition(ctx context.Context, req AdoptRequest) (AdoptResult, error) {
	mkt, err := normalizeMarket(req.Market)
	if err != nil {
		return AdoptResult{}, err
	}

	if existing, err := m.findOpen(ctx, mkt); err != nil {
		return AdoptResult{}, err
	} else if existing != nil {
		return AdoptResult{Adopted: false, PositionID: existing.ID}, nil
	}

	quantity, err := m.heldQuantity(ctx, mkt)
	if err != nil {
		return AdoptResult{}, err
	}
	if quantity.Sign() <= 0 {
		return AdoptResult{}, invalidArg("market", "no held balance for %s to adopt", mkt)
	}
	price, err := m.quote(ctx, mkt)
	if err != nil {
		return AdoptResult{}, fmt.Errorf("%w: quote %s: %w", ErrUpstreamUnavailable, mkt, err)
	}

	now := m.nowFn()
	t := m.newTrade(mkt, price, quantity, now)
	meta := map[string]string{"source": "adopt"}
	if req.EntrySource != "" {
		meta["entry_source"] = req.EntrySource
	}
	if req.Notes != "" {
		meta["notes"] = req.Notes
	}
	if req.Mode != "" {
		meta["mode"] = req.Mode
	}
	if err := m.insertWithEvent(ctx, t, EventAdopt, price, quantity, meta); err != nil {
		if errors.Is(err, ErrDuplicateOpenTrade) {
			// Lost the race to a concurrent entry; report the winner.
			existing, ferr := m.findOpen(ctx, mkt)
			if ferr != nil || existing == nil {
				return AdoptResult{}, fmt.Errorf("adopt race on %s: %w", mkt, err)
			}
			return AdoptResult{Adopted: false, PositionID: existing.ID}, nil
		}
		return AdoptResult{}, err
	}
	logger.Infow("external position adopted", "id", t.ID, "market", mkt, "qty", quantity, "seed", price)
	return AdoptResult{Adopted: true, PositionID: t.ID, Quantity: &quantity}, nil
}

// PartialTakeProfit sells ratio of the remaining quantity at the current
// price. ratio must be in (0, 1]; a remainder that rounds to dust closes
// the trade.
func (m *Manager) PartialTakeProfit(ctx context.Context, mktCode string, ratio decimal.Decimal) (Summary, error) {
	mkt, err := normalizeMarket(mktCode)
	if err != nil {
		return Summary{}, err
	}
	if ratio.Sign() <= 0 || ratio.GreaterThan(decOne) {
		return Summary{}, invalidArg("ratio", "must be in (0, 1], got %s", ratio)
	}

	price, err := m.quote(ctx, mkt)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: quote %s: %w", ErrUpstreamUnavailable, mkt, err)
	}

	uow, err := m.store.Begin(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer uow.Rollback()

	t, err := uow.Trades().FindOpenByMarket(ctx, mkt)
	if err != nil {
		return Summary{}, err
	}
	if t == nil {
		return Summary{}, invalidArg("market", "no open guided trade for %s", mkt)
	}

	exitQty := t.RemainingQuantity.Mul(ratio).Truncate(8)
	if exitQty.Sign() <= 0 {
		return Summary{}, invalidArg("ratio", "computed exit quantity is zero")
	}
	if err := m.exchange.PlaceMarketOrder(ctx, mkt, market.OrderSideSell, exitQty); err != nil {
		return Summary{}, fmt.Errorf("partial exit order for %s: %w", mkt, err)
	}

	now := m.nowFn()
	if err := m.applyExit(t, price, exitQty, now); err != nil {
		return Summary{}, err
	}
	if err := uow.Trades().Update(ctx, t); err != nil {
		return Summary{}, err
	}
	if err := uow.Events().Append(ctx, &Event{
		TradeID:   t.ID,
		Type:      EventPartialExit,
		Price:     price,
		Quantity:  exitQty,
		Timestamp: now,
		Metadata:  map[string]string{"ratio": ratio.String()},
	}); err != nil {
		return Summary{}, err
	}
	if err := uow.Commit(); err != nil {
		return Summary{}, err
	}
	if m.prices != nil {
		m.prices.Invalidate(mkt)
	}
	logger.Infow("partial exit", "id", t.ID, "market", mkt, "qty", exitQty, "price", price, "remaining", t.RemainingQuantity)
	return summarize(t), nil
}

// OnPrice applies one price observation to the open trade for mkt: arms or
// raises the trailing stop, and closes when a boundary is crossed. Ticks
// that would lower the stop are ignored, which makes stale retries safe.
func (m *Manager) OnPrice(ctx context.Context, mktCode string, price decimal.Decimal) (TickResult, error) {
	mkt, err := normalizeMarket(mktCode)
	if err != nil {
		return TickResult{}, err
	}
	if price.Sign() <= 0 {
		return TickResult{}, invalidArg("price", "must be positive, got %s", price)
	}

	uow, err := m.store.Begin(ctx)
	if err != nil {
		return TickResult{}, err
	}
	defer uow.Rollback()

	t, err := uow.Trades().FindOpenByMarket(ctx, mkt)
	if err != nil {
		return TickResult{}, err
	}
	if t == nil {
		return TickResult{}, nil
	}
	res := TickResult{TradeID: t.ID}
	now := m.nowFn()

	// Trailing activation and raise, before boundary checks so a fresh
	// peak can tighten the stop within the same tick.
	raised := false
	if t.TrailingPeakPrice == nil {
		if crossedAbove(price, activationPrice(t.AverageEntryPrice, t.TrailingTriggerPercent)) {
			peak := price
			stop := trailingStopFor(peak, t.TrailingOffsetPercent)
			t.TrailingPeakPrice = &peak
			t.TrailingStopPrice = &stop
			raised = true
		}
	} else if price.GreaterThan(*t.TrailingPeakPrice) {
		peak := price
		t.TrailingPeakPrice = &peak
		if candidate := trailingStopFor(peak, t.TrailingOffsetPercent); shouldRaiseStop(candidate, t.TrailingStopPrice) {
			t.TrailingStopPrice = &candidate
			raised = true
		}
	}
	if raised {
		res.StopRaised = true
		t.UpdatedAt = now
		if err := uow.Trades().Update(ctx, t); err != nil {
			return TickResult{}, err
		}
		if err := uow.Events().Append(ctx, &Event{
			TradeID:   t.ID,
			Type:      EventTrailingUpdate,
			Price:     *t.TrailingStopPrice,
			Timestamp: now,
			Metadata:  map[string]string{"peak": t.TrailingPeakPrice.String()},
		}); err != nil {
			return TickResult{}, err
		}
	}

	reason := ""
	switch {
	case t.TrailingStopPrice != nil && crossedBelow(price, *t.TrailingStopPrice):
		reason = "trailing_stop"
	case crossedBelow(price, t.StopLossPrice):
		reason = "stop_loss"
	case crossedAbove(price, t.TakeProfitPrice):
		reason = "take_profit"
	}
	if reason == "" {
		return res, uow.Commit()
	}

	if err := m.exchange.PlaceMarketOrder(ctx, mkt, market.OrderSideSell, t.RemainingQuantity); err != nil {
		// Abort the whole tick: the stop raise is rolled back with the
		// close so the next tick replays both.
		return TickResult{}, fmt.Errorf("close order for %s: %w", mkt, err)
	}
	closedQty := t.RemainingQuantity
	if err := m.applyExit(t, price, closedQty, now); err != nil {
		return TickResult{}, err
	}
	if err := uow.Trades().Update(ctx, t); err != nil {
		return TickResult{}, err
	}
	if err := uow.Events().Append(ctx, &Event{
		TradeID:   t.ID,
		Type:      EventClose,
		Price:     price,
		Quantity:  closedQty,
		Timestamp: now,
		Metadata:  map[string]string{"trigger": reason},
	}); err != nil {
		return TickResult{}, err
	}
	if err := uow.Commit(); err != nil {
		return TickResult{}, err
	}
	res.Closed = true
	res.CloseReason = reason
	logger.Infow("guided trade closed", "id", t.ID, "market", mkt, "reason", reason, "price", price, "pnl", t.RealizedPnL)
	return res, nil
}

// applyExit books an exit fill into the aggregate: volume-weighted average
// exit price, monotonically shrinking remainder, and the transition to
// CLOSED when the remainder is dust.
func (m *Manager) applyExit(t *GuidedTrade, price, qty decimal.Decimal, now time.Time) error {
	newRemaining := t.RemainingQuantity.Sub(qty)
	if newRemaining.Sign() < 0 && !isDust(newRemaining) {
		return &InvariantViolationError{TradeID: t.ID, Detail: fmt.Sprintf(
			"exit quantity %s exceeds remaining %s", qty, t.RemainingQuantity)}
	}
	newCum := t.CumulativeExitQuantity.Add(qty)
	t.AverageExitPrice = t.AverageExitPrice.Mul(t.CumulativeExitQuantity).
		Add(price.Mul(qty)).
		Div(newCum)
	t.CumulativeExitQuantity = newCum
	t.RemainingQuantity = newRemaining
	t.UpdatedAt = now

	if isDust(t.RemainingQuantity) {
		t.RemainingQuantity = decimal.Zero
		t.Status = StatusClosed
		t.ClosedAt = &now
		t.RealizedPnL = t.AverageExitPrice.Sub(t.AverageEntryPrice).Mul(t.CumulativeExitQuantity)
		if t.AverageEntryPrice.Sign() > 0 {
			t.RealizedPnLPercent = t.AverageExitPrice.Sub(t.AverageEntryPrice).
				Div(t.AverageEntryPrice).Mul(decHundred)
		}
	}
	return nil
}

func (m *Manager) newTrade(mkt string, price, quantity decimal.Decimal, now time.Time) *GuidedTrade {
	return &GuidedTrade{
		Ref:                    m.newRef(),
		Market:                 mkt,
		Status:                 StatusOpen,
		AverageEntryPrice:      price,
		EntryQuantity:          quantity,
		RemainingQuantity:      quantity,
		StopLossPrice:          price.Mul(decOne.Sub(m.settings.StopLossPercent.Div(decHundred))),
		TakeProfitPrice:        price.Mul(decOne.Add(m.settings.TakeProfitPercent.Div(decHundred))),
		TrailingTriggerPercent: m.settings.TrailingTriggerPercent,
		TrailingOffsetPercent:  m.settings.TrailingOffsetPercent,
		DCAStepPercent:         m.settings.DCAStepPercent,
		HalfTakeProfitRatio:    m.settings.HalfTakeProfitRatio,
		PnLConfidence:          ConfidenceLegacy,
		OpenedAt:               now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// insertWithEvent persists a new trade and its opening ledger event in one
// transaction. The open-market unique index makes the insert the
// authoritative "at most one OPEN per market" check.
func (m *Manager) insertWithEvent(ctx context.Context, t *GuidedTrade, evType EventType, price, qty decimal.Decimal, meta map[string]string) error {
	uow, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if existing, err := uow.Trades().FindOpenByMarket(ctx, t.Market); err != nil {
		return err
	} else if existing != nil {
		return ErrDuplicateOpenTrade
	}
	if err := uow.Trades().Insert(ctx, t); err != nil {
		return err
	}
	if err := uow.Events().Append(ctx, &Event{
		TradeID:   t.ID,
		Type:      evType,
		Price:     price,
		Quantity:  qty,
		Timestamp: t.OpenedAt,
		Metadata:  meta,
	}); err != nil {
		return err
	}
	return uow.Commit()
}

func (m *Manager) findOpen(ctx context.Context, mkt string) (*GuidedTrade, error) {
	uow, err := m.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	t, err := uow.Trades().FindOpenByMarket(ctx, mkt)
	if err != nil {
		return nil, err
	}
	return t, uow.Commit()
}

func (m *Manager) quote(ctx context.Context, mkt string) (decimal.Decimal, error) {
	if m.prices != nil {
		return m.prices.Get(ctx, mkt)
	}
	return m.exchange.GetCurrentPrice(ctx, mkt)
}

func (m *Manager) heldQuantity(ctx context.Context, mkt string) (decimal.Decimal, error) {
	balances, err := m.exchange.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balances: %w", ErrUpstreamUnavailable, err)
	}
	_, currency, ok := strings.Cut(mkt, "-")
	if !ok {
		return decimal.Zero, invalidArg("market", "malformed market code %q", mkt)
	}
	for _, b := range balances {
		if strings.EqualFold(b.Currency, currency) {
			return b.Available, nil
		}
	}
	return decimal.Zero, nil
}

func normalizeMarket(mkt string) (string, error) {
	mkt = strings.ToUpper(strings.TrimSpace(mkt))
	if !marketCodeRe.MatchString(mkt) {
		return "", invalidArg("market", "malformed market code %q", mkt)
	}
	return mkt, nil
}
