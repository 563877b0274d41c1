package trade

import (
	"context"
	"time"
)

// TradeRepository persists the GuidedTrade aggregate.
type TradeRepository interface {
	// Insert persists a new trade and assigns its ID.
	Insert(ctx context.Context, t *GuidedTrade) error
	Update(ctx context.Context, t *GuidedTrade) error
	// FindOpenByMarket returns (nil, nil) when no open trade exists.
	FindOpenByMarket(ctx context.Context, mkt string) (*GuidedTrade, error)
	FindByID(ctx context.Context, id int64) (*GuidedTrade, error)
	ListOpen(ctx context.Context) ([]GuidedTrade, error)
	ListClosedSince(ctx context.Context, since time.Time, limit int) ([]GuidedTrade, error)
}

// EventRepository is the append-only trade event ledger. There is no
// update or delete: rows are immutable once written.
type EventRepository interface {
	Append(ctx context.Context, ev *Event) error
	// ListByTrade returns events ordered by timestamp then id, ascending.
	ListByTrade(ctx context.Context, tradeID int64) ([]Event, error)
}

// UnitOfWork is a transaction scope over the trade store.
type UnitOfWork interface {
	Trades() TradeRepository
	Events() EventRepository
	Commit() error
	Rollback() error
}

// Store is the entry point for trade persistence.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Close() error
}
