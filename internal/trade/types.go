package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a guided trade. Closed is terminal.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// PnLConfidence grades how well the event ledger explains a closed trade.
type PnLConfidence string

const (
	// ConfidenceLegacy marks trades closed before reconciliation existed.
	ConfidenceLegacy PnLConfidence = "LEGACY"
	// ConfidenceHigh means the ledger fully accounts for the traded quantity.
	ConfidenceHigh PnLConfidence = "HIGH"
	// ConfidenceLow means the ledger leaves an unexplained residual.
	ConfidenceLow PnLConfidence = "LOW"
)

// EventType enumerates the append-only ledger entries of a guided trade.
type EventType string

const (
	EventEntry          EventType = "ENTRY"
	EventPartialExit    EventType = "PARTIAL_EXIT"
	EventTrailingUpdate EventType = "TRAILING_UPDATE"
	EventClose          EventType = "CLOSE"
	EventAdopt          EventType = "ADOPT"
)

// GuidedTrade is the position aggregate: one managed trade from entry to
// close. It is mutated only by the Manager; the event ledger is the source
// of truth the Reconciler replays.
type GuidedTrade struct {
	ID     int64
	Ref    string // external reference, uuid
	Market string
	Status Status

	AverageEntryPrice decimal.Decimal
	EntryQuantity     decimal.Decimal
	RemainingQuantity decimal.Decimal

	StopLossPrice          decimal.Decimal
	TakeProfitPrice        decimal.Decimal
	TrailingTriggerPercent decimal.Decimal
	TrailingOffsetPercent  decimal.Decimal
	TrailingPeakPrice      *decimal.Decimal
	TrailingStopPrice      *decimal.Decimal

	DCAStepPercent      decimal.Decimal
	HalfTakeProfitRatio decimal.Decimal

	CumulativeExitQuantity decimal.Decimal
	AverageExitPrice       decimal.Decimal
	RealizedPnL            decimal.Decimal
	RealizedPnLPercent     decimal.Decimal
	PnLConfidence          PnLConfidence
	PnLReconciledAt        *time.Time

	OpenedAt  time.Time
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is one append-only ledger row. Never mutated after insertion.
type Event struct {
	ID        int64
	TradeID   int64
	Type      EventType
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp time.Time
	Metadata  map[string]string
}

// Summary is the caller-facing projection of a trade returned by the
// lifecycle operations.
type Summary struct {
	TradeID                int64           `json:"trade_id"`
	Market                 string          `json:"market"`
	Status                 Status          `json:"status"`
	AverageEntryPrice      decimal.Decimal `json:"average_entry_price"`
	EntryQuantity          decimal.Decimal `json:"entry_quantity"`
	RemainingQuantity      decimal.Decimal `json:"remaining_quantity"`
	CumulativeExitQuantity decimal.Decimal `json:"cumulative_exit_quantity"`
	AverageExitPrice       decimal.Decimal `json:"average_exit_price"`
	RealizedPnL            decimal.Decimal `json:"realized_pnl"`
	RealizedPnLPercent     decimal.Decimal `json:"realized_pnl_percent"`
	TrailingPeakPrice      *decimal.Decimal `json:"trailing_peak_price,omitempty"`
	TrailingStopPrice      *decimal.Decimal `json:"trailing_stop_price,omitempty"`
}

func summarize(t *GuidedTrade) Summary {
	return Summary{
		TradeID:                t.ID,
		Market:                 t.Market,
		Status:                 t.Status,
		AverageEntryPrice:      t.AverageEntryPrice,
		EntryQuantity:          t.EntryQuantity,
		RemainingQuantity:      t.RemainingQuantity,
		CumulativeExitQuantity: t.CumulativeExitQuantity,
		AverageExitPrice:       t.AverageExitPrice,
		RealizedPnL:            t.RealizedPnL,
		RealizedPnLPercent:     t.RealizedPnLPercent,
		TrailingPeakPrice:      t.TrailingPeakPrice,
		TrailingStopPrice:      t.TrailingStopPrice,
	}
}
