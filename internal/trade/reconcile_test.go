package trade_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rudder/internal/market"
	"rudder/internal/trade"
)

// closeTradeAt opens a trade at 100 and closes it through take-profit at
// the given price, leaving a fully-explained ledger behind.
func closeTradeAt(t *testing.T, mgr *trade.Manager, ex *mockExchange, mkt string, closePrice string) int64 {
	t.Helper()
	id := openTradeAt100(t, mgr, ex, mkt)
	ex.On("PlaceMarketOrder", mock.Anything, mkt, market.OrderSideSell, mock.Anything).Return(nil)
	res, err := mgr.OnPrice(context.Background(), mkt, dec(closePrice))
	require.NoError(t, err)
	require.True(t, res.Closed)
	return id
}

func corruptStoredPnL(t *testing.T, store trade.Store, id int64, value decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	stored, err := uow.Trades().FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	stored.RealizedPnL = value
	require.NoError(t, uow.Trades().Update(ctx, stored))
	require.NoError(t, uow.Commit())
}

func TestReconcile_FullyExplainedLedger(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	id := closeTradeAt(t, mgr, ex, "KRW-BTC", "106")

	rec := trade.NewReconciler(store, 0, decimal.Zero)
	summary, err := rec.Reconcile(context.Background(), 30, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ScannedTrades)
	assert.Equal(t, 1, summary.HighConfidenceTrades)
	assert.Equal(t, 0, summary.LowConfidenceTrades)
	assert.Equal(t, 0, summary.UpdatedTrades)
	assert.Equal(t, 1, summary.UnchangedTrades)
	require.Len(t, summary.Sample, 1)
	assert.True(t, summary.Sample[0].RecomputedPnL.Equal(dec("600")))

	stored := findByID(t, store, id)
	assert.Equal(t, trade.ConfidenceHigh, stored.PnLConfidence)
	require.NotNil(t, stored.PnLReconciledAt)
}

func TestReconcile_CorrectsDriftedPnL(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	id := closeTradeAt(t, mgr, ex, "KRW-BTC", "106")
	corruptStoredPnL(t, store, id, decimal.Zero)

	rec := trade.NewReconciler(store, 0, decimal.Zero)
	summary, err := rec.Reconcile(context.Background(), 30, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UpdatedTrades)
	assert.Equal(t, 0, summary.UnchangedTrades)

	stored := findByID(t, store, id)
	assert.True(t, stored.RealizedPnL.Equal(dec("600")),
		"ledger replay should restore the true pnl, got %s", stored.RealizedPnL)
	assert.True(t, stored.RealizedPnLPercent.Equal(dec("6")))
}

func TestReconcile_DryRunPersistsNothing(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	id := closeTradeAt(t, mgr, ex, "KRW-BTC", "106")
	corruptStoredPnL(t, store, id, decimal.Zero)

	rec := trade.NewReconciler(store, 0, decimal.Zero)
	summary, err := rec.Reconcile(context.Background(), 30, true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UpdatedTrades, "dry run still reports what it would change")
	require.Len(t, summary.Sample, 1)
	assert.False(t, summary.Sample[0].Updated)

	stored := findByID(t, store, id)
	assert.True(t, stored.RealizedPnL.IsZero(), "dry run must not write")
	assert.Equal(t, trade.ConfidenceLegacy, stored.PnLConfidence)
	assert.Nil(t, stored.PnLReconciledAt)
}

func TestReconcile_SweepsMultipleTrades(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	for _, mkt := range []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"} {
		closeTradeAt(t, mgr, ex, mkt, "106")
	}

	rec := trade.NewReconciler(store, 0, decimal.Zero)
	summary, err := rec.Reconcile(context.Background(), 30, false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ScannedTrades)
	assert.Equal(t, 3, summary.HighConfidenceTrades)
	assert.Equal(t, summary.ScannedTrades, summary.UpdatedTrades+summary.UnchangedTrades)
}

func TestReconcile_InvalidWindow(t *testing.T) {
	rec := trade.NewReconciler(newTestStore(t), 0, decimal.Zero)
	_, err := rec.Reconcile(context.Background(), 0, false)
	var invalid *trade.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "window_days", invalid.Field)
}
