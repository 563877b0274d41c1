package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GuidedTradeModel is the persisted shape of a guided trade. Every price,
// quantity and PnL column is decimal-typed; binary floats never touch
// storage.
type GuidedTradeModel struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	Ref    string `gorm:"column:ref;uniqueIndex"`
	Market string `gorm:"column:market;index"`
	Status string `gorm:"column:status;index"`

	// OpenMarket mirrors Market while the trade is OPEN and is nulled on
	// close. Its unique index is the authoritative at-most-one-OPEN-per-
	// market constraint.
	OpenMarket *string `gorm:"column:open_market;uniqueIndex"`

	AverageEntryPrice decimal.Decimal `gorm:"column:average_entry_price;type:decimal(24,8)"`
	EntryQuantity     decimal.Decimal `gorm:"column:entry_quantity;type:decimal(24,8)"`
	RemainingQuantity decimal.Decimal `gorm:"column:remaining_quantity;type:decimal(24,8)"`

	StopLossPrice          decimal.Decimal     `gorm:"column:stop_loss_price;type:decimal(24,8)"`
	TakeProfitPrice        decimal.Decimal     `gorm:"column:take_profit_price;type:decimal(24,8)"`
	TrailingTriggerPercent decimal.Decimal     `gorm:"column:trailing_trigger_percent;type:decimal(10,4)"`
	TrailingOffsetPercent  decimal.Decimal     `gorm:"column:trailing_offset_percent;type:decimal(10,4)"`
	TrailingPeakPrice      decimal.NullDecimal `gorm:"column:trailing_peak_price;type:decimal(24,8)"`
	TrailingStopPrice      decimal.NullDecimal `gorm:"column:trailing_stop_price;type:decimal(24,8)"`

	DCAStepPercent      decimal.Decimal `gorm:"column:dca_step_percent;type:decimal(10,4)"`
	HalfTakeProfitRatio decimal.Decimal `gorm:"column:half_take_profit_ratio;type:decimal(10,4)"`

	CumulativeExitQuantity decimal.Decimal `gorm:"column:cumulative_exit_quantity;type:decimal(24,8)"`
	AverageExitPrice       decimal.Decimal `gorm:"column:average_exit_price;type:decimal(24,8)"`
	RealizedPnL            decimal.Decimal `gorm:"column:realized_pnl;type:decimal(24,8)"`
	RealizedPnLPercent     decimal.Decimal `gorm:"column:realized_pnl_percent;type:decimal(10,4)"`
	PnLConfidence          string          `gorm:"column:pnl_confidence"`
	PnLReconciledAt        *time.Time      `gorm:"column:pnl_reconciled_at"`

	OpenedAt  time.Time  `gorm:"column:opened_at"`
	ClosedAt  *time.Time `gorm:"column:closed_at;index"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (GuidedTradeModel) TableName() string { return "guided_trades" }

// GuidedTradeEventModel is one append-only ledger row. The store exposes
// insert and ordered list only; there is no update path.
type GuidedTradeEventModel struct {
	ID        int64           `gorm:"column:id;primaryKey"`
	TradeID   int64           `gorm:"column:trade_id;index:idx_trade_events,priority:1"`
	EventType string          `gorm:"column:event_type"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(24,8)"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:decimal(24,8)"`
	Timestamp time.Time       `gorm:"column:timestamp;index:idx_trade_events,priority:2"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:TEXT"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

func (GuidedTradeEventModel) TableName() string { return "guided_trade_events" }
