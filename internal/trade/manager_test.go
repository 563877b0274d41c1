package trade_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rudder/internal/market"
	"rudder/internal/store/sqlite"
	"rudder/internal/trade"
)

type mockExchange struct {
	mock.Mock
}

func (m *mockExchange) GetCurrentPrice(ctx context.Context, mkt string) (decimal.Decimal, error) {
	args := m.Called(ctx, mkt)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockExchange) GetBalances(ctx context.Context) ([]market.Balance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]market.Balance), args.Error(1)
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, mkt string, side market.OrderSide, amount decimal.Decimal) error {
	args := m.Called(ctx, mkt, side, amount)
	return args.Error(0)
}

func (m *mockExchange) PlaceLimitOrder(ctx context.Context, mkt string, side market.OrderSide, quantity, price decimal.Decimal) error {
	args := m.Called(ctx, mkt, side, quantity, price)
	return args.Error(0)
}

func dec(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

func newTestStore(t *testing.T) trade.Store {
	t.Helper()
	store, err := sqlite.NewSqliteStore(filepath.Join(t.TempDir(), "trade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func listEvents(t *testing.T, store trade.Store, tradeID int64) []trade.Event {
	t.Helper()
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()
	events, err := uow.Events().ListByTrade(context.Background(), tradeID)
	require.NoError(t, err)
	return events
}

func findByID(t *testing.T, store trade.Store, id int64) *trade.GuidedTrade {
	t.Helper()
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()
	found, err := uow.Trades().FindByID(context.Background(), id)
	require.NoError(t, err)
	return found
}

func TestStartAutoTrading_Validation(t *testing.T) {
	ex := new(mockExchange)
	mgr := trade.NewManager(newTestStore(t), ex, nil, trade.DefaultSettings())
	ctx := context.Background()

	t.Run("malformed market", func(t *testing.T) {
		_, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "BTC", AmountKRW: dec("10000")})
		var invalid *trade.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "market", invalid.Field)
	})

	t.Run("amount below minimum", func(t *testing.T) {
		_, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "KRW-BTC", AmountKRW: dec("1000")})
		var invalid *trade.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "amount_krw", invalid.Field)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "KRW-BTC"})
		var invalid *trade.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})

	ex.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartAutoTrading_OpensTrade(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	ctx := context.Background()

	ex.On("GetCurrentPrice", mock.Anything, "KRW-BTC").Return(dec("100"), nil)
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideBuy, mock.Anything).Return(nil)

	res, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "krw-btc", AmountKRW: dec("10000")})
	require.NoError(t, err)
	assert.Equal(t, trade.StatusOpen, res.Status)
	require.NotZero(t, res.TradeID)

	stored := findByID(t, store, res.TradeID)
	require.NotNil(t, stored)
	assert.Equal(t, "KRW-BTC", stored.Market)
	assert.True(t, stored.EntryQuantity.Equal(dec("100")), "10000 KRW at 100 buys 100 units, got %s", stored.EntryQuantity)
	assert.True(t, stored.RemainingQuantity.Equal(dec("100")))
	assert.True(t, stored.StopLossPrice.Equal(dec("97")))
	assert.True(t, stored.TakeProfitPrice.Equal(dec("105")))
	assert.Nil(t, stored.TrailingStopPrice)

	events := listEvents(t, store, res.TradeID)
	require.Len(t, events, 1)
	assert.Equal(t, trade.EventEntry, events[0].Type)
	assert.True(t, events[0].Quantity.Equal(dec("100")))

	t.Run("second open on same market is rejected before ordering", func(t *testing.T) {
		_, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "KRW-BTC", AmountKRW: dec("10000")})
		var invalid *trade.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "market", invalid.Field)
		// The duplicate must be refused without spending KRW: only the
		// original entry order may have reached the exchange.
		ex.AssertNumberOfCalls(t, "PlaceMarketOrder", 1)
	})
}

func TestAdoptExternalPosition_Idempotent(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	ctx := context.Background()

	ex.On("GetBalances", mock.Anything).Return([]market.Balance{
		{Currency: "ETH", Available: dec("0.5")},
		{Currency: "KRW", Available: dec("100000")},
	}, nil)
	ex.On("GetCurrentPrice", mock.Anything, "KRW-ETH").Return(dec("3000"), nil)

	first, err := mgr.AdoptExternalPosition(ctx, trade.AdoptRequest{Market: "KRW-ETH", EntrySource: "manual"})
	require.NoError(t, err)
	assert.True(t, first.Adopted)
	require.NotNil(t, first.Quantity)
	assert.True(t, first.Quantity.Equal(dec("0.5")))

	second, err := mgr.AdoptExternalPosition(ctx, trade.AdoptRequest{Market: "KRW-ETH"})
	require.NoError(t, err)
	assert.False(t, second.Adopted)
	assert.Equal(t, first.PositionID, second.PositionID)
	assert.Nil(t, second.Quantity)

	events := listEvents(t, store, first.PositionID)
	require.Len(t, events, 1, "repeat adopt must not append events")
	assert.Equal(t, trade.EventAdopt, events[0].Type)
	assert.Equal(t, "manual", events[0].Metadata["entry_source"])
}

func TestAdoptExternalPosition_NoHeldBalance(t *testing.T) {
	ex := new(mockExchange)
	mgr := trade.NewManager(newTestStore(t), ex, nil, trade.DefaultSettings())

	ex.On("GetBalances", mock.Anything).Return([]market.Balance{}, nil)

	_, err := mgr.AdoptExternalPosition(context.Background(), trade.AdoptRequest{Market: "KRW-XRP"})
	var invalid *trade.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "market", invalid.Field)
}

func TestPartialTakeProfit(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	ctx := context.Background()

	ex.On("GetCurrentPrice", mock.Anything, "KRW-BTC").Return(dec("100"), nil).Once()
	ex.On("GetCurrentPrice", mock.Anything, "KRW-BTC").Return(dec("110"), nil)
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideBuy, mock.Anything).Return(nil)
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideSell, mock.Anything).Return(nil)

	res, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "KRW-BTC", AmountKRW: dec("10000")})
	require.NoError(t, err)

	t.Run("ratio out of range", func(t *testing.T) {
		_, err := mgr.PartialTakeProfit(ctx, "KRW-BTC", dec("1.5"))
		var invalid *trade.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
		_, err = mgr.PartialTakeProfit(ctx, "KRW-BTC", decimal.Zero)
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("half exit keeps the trade open", func(t *testing.T) {
		summary, err := mgr.PartialTakeProfit(ctx, "KRW-BTC", dec("0.5"))
		require.NoError(t, err)
		assert.Equal(t, trade.StatusOpen, summary.Status)
		assert.True(t, summary.RemainingQuantity.Equal(dec("50")))
		assert.True(t, summary.CumulativeExitQuantity.Equal(dec("50")))
		assert.True(t, summary.AverageExitPrice.Equal(dec("110")))
		// remaining + cumulative exits always reassemble the entry
		assert.True(t, summary.RemainingQuantity.Add(summary.CumulativeExitQuantity).Equal(summary.EntryQuantity))
	})

	t.Run("full exit closes and books pnl", func(t *testing.T) {
		summary, err := mgr.PartialTakeProfit(ctx, "KRW-BTC", dec("1"))
		require.NoError(t, err)
		assert.Equal(t, trade.StatusClosed, summary.Status)
		assert.True(t, summary.RemainingQuantity.IsZero())
		assert.True(t, summary.RealizedPnL.Equal(dec("1000")), "(110-100) * 100 units, got %s", summary.RealizedPnL)
		assert.True(t, summary.RealizedPnLPercent.Equal(dec("10")))

		stored := findByID(t, store, res.TradeID)
		require.NotNil(t, stored)
		assert.Equal(t, trade.StatusClosed, stored.Status)
		require.NotNil(t, stored.ClosedAt)
	})

	t.Run("no open trade left", func(t *testing.T) {
		_, err := mgr.PartialTakeProfit(ctx, "KRW-BTC", dec("0.5"))
		var invalid *trade.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
}

func openTradeAt100(t *testing.T, mgr *trade.Manager, ex *mockExchange, mkt string) int64 {
	t.Helper()
	ex.On("GetCurrentPrice", mock.Anything, mkt).Return(dec("100"), nil)
	ex.On("PlaceMarketOrder", mock.Anything, mkt, market.OrderSideBuy, mock.Anything).Return(nil)
	res, err := mgr.StartAutoTrading(context.Background(), trade.StartRequest{Market: mkt, AmountKRW: dec("10000")})
	require.NoError(t, err)
	return res.TradeID
}

func TestOnPrice_TrailingArmRaiseClose(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	ctx := context.Background()
	id := openTradeAt100(t, mgr, ex, "KRW-BTC")
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideSell, mock.Anything).Return(nil)

	// Below the 2% activation: nothing moves.
	res, err := mgr.OnPrice(ctx, "KRW-BTC", dec("101"))
	require.NoError(t, err)
	assert.False(t, res.StopRaised)
	assert.False(t, res.Closed)

	// Activation at 102 arms the stop at peak*(1-1%).
	res, err = mgr.OnPrice(ctx, "KRW-BTC", dec("102"))
	require.NoError(t, err)
	assert.True(t, res.StopRaised)
	stored := findByID(t, store, id)
	require.NotNil(t, stored.TrailingStopPrice)
	assert.True(t, stored.TrailingStopPrice.Equal(dec("100.98")))

	// New peak raises the stop, never lowers it.
	res, err = mgr.OnPrice(ctx, "KRW-BTC", dec("103"))
	require.NoError(t, err)
	assert.True(t, res.StopRaised)
	stored = findByID(t, store, id)
	assert.True(t, stored.TrailingStopPrice.Equal(dec("101.97")))

	// A lower tick above the stop changes nothing.
	res, err = mgr.OnPrice(ctx, "KRW-BTC", dec("102.5"))
	require.NoError(t, err)
	assert.False(t, res.StopRaised)
	assert.False(t, res.Closed)

	// Crossing the trailing stop closes the whole remainder.
	res, err = mgr.OnPrice(ctx, "KRW-BTC", dec("101.9"))
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, "trailing_stop", res.CloseReason)

	stored = findByID(t, store, id)
	assert.Equal(t, trade.StatusClosed, stored.Status)
	assert.True(t, stored.RealizedPnL.Equal(dec("190")), "(101.9-100) * 100 units, got %s", stored.RealizedPnL)

	var types []trade.EventType
	for _, ev := range listEvents(t, store, id) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []trade.EventType{
		trade.EventEntry,
		trade.EventTrailingUpdate,
		trade.EventTrailingUpdate,
		trade.EventClose,
	}, types)
}

func TestOnPrice_StopLoss(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	id := openTradeAt100(t, mgr, ex, "KRW-BTC")
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideSell, mock.Anything).Return(nil)

	res, err := mgr.OnPrice(context.Background(), "KRW-BTC", dec("96.5"))
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, "stop_loss", res.CloseReason)

	stored := findByID(t, store, id)
	assert.Equal(t, trade.StatusClosed, stored.Status)
	assert.True(t, stored.RealizedPnL.Equal(dec("-350")))
}

func TestOnPrice_TakeProfit(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	id := openTradeAt100(t, mgr, ex, "KRW-BTC")
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideSell, mock.Anything).Return(nil)

	// 106 arms trailing and crosses take-profit in the same tick; the
	// armed stop sits below the price, so take_profit wins.
	res, err := mgr.OnPrice(context.Background(), "KRW-BTC", dec("106"))
	require.NoError(t, err)
	assert.True(t, res.StopRaised)
	assert.True(t, res.Closed)
	assert.Equal(t, "take_profit", res.CloseReason)

	stored := findByID(t, store, id)
	assert.Equal(t, trade.StatusClosed, stored.Status)
	assert.True(t, stored.RealizedPnL.Equal(dec("600")))
}

func TestOnPrice_NoOpenTrade(t *testing.T) {
	ex := new(mockExchange)
	mgr := trade.NewManager(newTestStore(t), ex, nil, trade.DefaultSettings())

	res, err := mgr.OnPrice(context.Background(), "KRW-BTC", dec("100"))
	require.NoError(t, err)
	assert.Zero(t, res.TradeID)
	assert.False(t, res.Closed)
}

func TestMarketReleasedAfterClose(t *testing.T) {
	ex := new(mockExchange)
	store := newTestStore(t)
	mgr := trade.NewManager(store, ex, nil, trade.DefaultSettings())
	ctx := context.Background()
	openTradeAt100(t, mgr, ex, "KRW-BTC")
	ex.On("PlaceMarketOrder", mock.Anything, "KRW-BTC", market.OrderSideSell, mock.Anything).Return(nil)

	res, err := mgr.OnPrice(ctx, "KRW-BTC", dec("96"))
	require.NoError(t, err)
	require.True(t, res.Closed)

	// The unique open-market slot is freed; a new trade can start.
	second, err := mgr.StartAutoTrading(ctx, trade.StartRequest{Market: "KRW-BTC", AmountKRW: dec("10000")})
	require.NoError(t, err)
	assert.Equal(t, trade.StatusOpen, second.Status)
}
