package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rudder/internal/trade"
)

func newStore(t *testing.T) *SqliteStore {
	t.Helper()
	store, err := NewSqliteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTrade(mkt string) *trade.GuidedTrade {
	now := time.Now().UTC()
	return &trade.GuidedTrade{
		Ref:                    uuid.NewString(),
		Market:                 mkt,
		Status:                 trade.StatusOpen,
		AverageEntryPrice:      decimal.NewFromInt(100),
		EntryQuantity:          decimal.NewFromInt(10),
		RemainingQuantity:      decimal.NewFromInt(10),
		StopLossPrice:          decimal.NewFromInt(97),
		TakeProfitPrice:        decimal.NewFromInt(105),
		TrailingTriggerPercent: decimal.NewFromInt(2),
		TrailingOffsetPercent:  decimal.NewFromInt(1),
		DCAStepPercent:         decimal.NewFromFloat(2.5),
		HalfTakeProfitRatio:    decimal.NewFromFloat(0.5),
		PnLConfidence:          trade.ConfidenceLegacy,
		OpenedAt:               now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func inTx(t *testing.T, store *SqliteStore, fn func(uow trade.UnitOfWork) error) {
	t.Helper()
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()
	require.NoError(t, fn(uow))
	require.NoError(t, uow.Commit())
}

func TestInsert_SecondOpenTradePerMarketRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := sampleTrade("KRW-BTC")
	inTx(t, store, func(uow trade.UnitOfWork) error {
		return uow.Trades().Insert(ctx, first)
	})
	require.NotZero(t, first.ID)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	err = uow.Trades().Insert(ctx, sampleTrade("KRW-BTC"))
	assert.ErrorIs(t, err, trade.ErrDuplicateOpenTrade)
}

func TestUpdate_CloseReleasesOpenMarketSlot(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := sampleTrade("KRW-BTC")
	inTx(t, store, func(uow trade.UnitOfWork) error {
		return uow.Trades().Insert(ctx, first)
	})

	now := time.Now().UTC()
	first.Status = trade.StatusClosed
	first.ClosedAt = &now
	first.RemainingQuantity = decimal.Zero
	inTx(t, store, func(uow trade.UnitOfWork) error {
		return uow.Trades().Update(ctx, first)
	})

	// The unique open_market column must now be NULL for this row.
	second := sampleTrade("KRW-BTC")
	inTx(t, store, func(uow trade.UnitOfWork) error {
		return uow.Trades().Insert(ctx, second)
	})
	assert.NotEqual(t, first.ID, second.ID)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	open, err := uow.Trades().FindOpenByMarket(ctx, "KRW-BTC")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, second.ID, open.ID)
}

func TestFindOpenByMarket_NilWhenAbsent(t *testing.T) {
	store := newStore(t)
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()

	found, err := uow.Trades().FindOpenByMarket(context.Background(), "KRW-NONE")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTrailingFieldsRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tr := sampleTrade("KRW-ETH")
	peak := decimal.NewFromFloat(103)
	stop := decimal.NewFromFloat(101.97)
	tr.TrailingPeakPrice = &peak
	tr.TrailingStopPrice = &stop
	inTx(t, store, func(uow trade.UnitOfWork) error {
		return uow.Trades().Insert(ctx, tr)
	})

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	stored, err := uow.Trades().FindByID(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TrailingPeakPrice)
	assert.True(t, stored.TrailingPeakPrice.Equal(peak))
	require.NotNil(t, stored.TrailingStopPrice)
	assert.True(t, stored.TrailingStopPrice.Equal(stop))
}

func TestEvents_AppendAndOrderedList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tr := sampleTrade("KRW-BTC")
	base := time.Now().UTC().Truncate(time.Second)
	inTx(t, store, func(uow trade.UnitOfWork) error {
		if err := uow.Trades().Insert(ctx, tr); err != nil {
			return err
		}
		for i, ev := range []trade.Event{
			{Type: trade.EventEntry, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(10), Metadata: map[string]string{"source": "auto"}},
			{Type: trade.EventTrailingUpdate, Price: decimal.NewFromFloat(100.98)},
			{Type: trade.EventClose, Price: decimal.NewFromInt(106), Quantity: decimal.NewFromInt(10)},
		} {
			ev.TradeID = tr.ID
			ev.Timestamp = base.Add(time.Duration(i) * time.Second)
			if err := uow.Events().Append(ctx, &ev); err != nil {
				return err
			}
		}
		return nil
	})

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	events, err := uow.Events().ListByTrade(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, trade.EventEntry, events[0].Type)
	assert.Equal(t, trade.EventTrailingUpdate, events[1].Type)
	assert.Equal(t, trade.EventClose, events[2].Type)
	assert.Equal(t, "auto", events[0].Metadata["source"])
}

func TestEvents_AppendRequiresTradeID(t *testing.T) {
	store := newStore(t)
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()

	err = uow.Events().Append(context.Background(), &trade.Event{Type: trade.EventEntry})
	assert.Error(t, err)
}

func TestListClosedSince_WindowAndLimit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mkts := []string{"KRW-AAA", "KRW-BBB", "KRW-CCC"}
	ages := []time.Duration{-time.Hour, -48 * time.Hour, -400 * time.Hour}
	for i, mkt := range mkts {
		tr := sampleTrade(mkt)
		tr.Status = trade.StatusClosed
		closedAt := now.Add(ages[i])
		tr.ClosedAt = &closedAt
		inTx(t, store, func(uow trade.UnitOfWork) error {
			return uow.Trades().Insert(ctx, tr)
		})
	}

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	within, err := uow.Trades().ListClosedSince(ctx, now.Add(-72*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, within, 2)
	// ordered by closed_at ascending
	assert.Equal(t, "KRW-BBB", within[0].Market)
	assert.Equal(t, "KRW-AAA", within[1].Market)

	limited, err := uow.Trades().ListClosedSince(ctx, now.Add(-72*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
