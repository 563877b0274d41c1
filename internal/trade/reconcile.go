package trade

import (
	"context"
	"fmt"
	"time"

	"rudder/internal/logger"

	"github.com/shopspring/decimal"
)

// Reconciler replays event ledgers of closed trades to recompute realized
// P&L and grade how well the ledger explains each trade. It shares no code
// path with live mutation: replayLedger is a pure fold.
type Reconciler struct {
	store Store
	nowFn func() time.Time

	// maxTrades bounds one sweep regardless of upstream volume.
	maxTrades int
	tolerance decimal.Decimal
}

// ReconcileSummary is the batch result of one sweep.
type ReconcileSummary struct {
	ScannedTrades        int                `json:"scanned_trades"`
	UpdatedTrades        int                `json:"updated_trades"`
	UnchangedTrades      int                `json:"unchanged_trades"`
	HighConfidenceTrades int                `json:"high_confidence_trades"`
	LowConfidenceTrades  int                `json:"low_confidence_trades"`
	Sample               []ReconcileOutcome `json:"sample,omitempty"`
}

// ReconcileOutcome is one trade's before/after, reported in the summary
// sample for operator inspection.
type ReconcileOutcome struct {
	TradeID       int64           `json:"trade_id"`
	Market        string          `json:"market"`
	StoredPnL     decimal.Decimal `json:"stored_pnl"`
	RecomputedPnL decimal.Decimal `json:"recomputed_pnl"`
	Confidence    PnLConfidence   `json:"confidence"`
	Updated       bool            `json:"updated"`
}

const reconcileSampleSize = 5

// NewReconciler builds a reconciler with the given sweep bound. tolerance
// is the absolute PnL drift below which a trade counts as unchanged.
func NewReconciler(store Store, maxTrades int, tolerance decimal.Decimal) *Reconciler {
	if maxTrades <= 0 {
		maxTrades = 500
	}
	if tolerance.Sign() <= 0 {
		tolerance = decimal.New(1, -4) // 0.0001 KRW
	}
	return &Reconciler{
		store:     store,
		nowFn:     time.Now,
		maxTrades: maxTrades,
		tolerance: tolerance,
	}
}

// Reconcile sweeps closed trades within windowDays. With dryRun the
// recomputation is reported but nothing is persisted.
func (r *Reconciler) Reconcile(ctx context.Context, windowDays int, dryRun bool) (ReconcileSummary, error) {
	if windowDays <= 0 {
		return ReconcileSummary{}, invalidArg("window_days", "must be positive, got %d", windowDays)
	}
	since := r.nowFn().AddDate(0, 0, -windowDays)

	uow, err := r.store.Begin(ctx)
	if err != nil {
		return ReconcileSummary{}, err
	}
	defer uow.Rollback()

	trades, err := uow.Trades().ListClosedSince(ctx, since, r.maxTrades)
	if err != nil {
		return ReconcileSummary{}, err
	}

	var summary ReconcileSummary
	now := r.nowFn()
	for i := range trades {
		t := &trades[i]
		events, err := uow.Events().ListByTrade(ctx, t.ID)
		if err != nil {
			logger.Warnf("reconcile: listing events for trade %d failed, skipping: %v", t.ID, err)
			continue
		}
		summary.ScannedTrades++

		replay := replayLedger(events)
		confidence := ConfidenceHigh
		if !replay.fullyExplains(t.EntryQuantity) {
			confidence = ConfidenceLow
		}
		if confidence == ConfidenceHigh {
			summary.HighConfidenceTrades++
		} else {
			summary.LowConfidenceTrades++
		}

		drift := replay.realizedPnL().Sub(t.RealizedPnL).Abs()
		changed := drift.GreaterThan(r.tolerance)
		if changed {
			summary.UpdatedTrades++
		} else {
			summary.UnchangedTrades++
		}

		if len(summary.Sample) < reconcileSampleSize {
			summary.Sample = append(summary.Sample, ReconcileOutcome{
				TradeID:       t.ID,
				Market:        t.Market,
				StoredPnL:     t.RealizedPnL,
				RecomputedPnL: replay.realizedPnL(),
				Confidence:    confidence,
				Updated:       changed && !dryRun,
			})
		}
		if dryRun {
			continue
		}

		if changed {
			t.AverageEntryPrice = replay.avgEntryPrice
			t.CumulativeExitQuantity = replay.exitQty
			t.AverageExitPrice = replay.avgExitPrice
			t.RealizedPnL = replay.realizedPnL()
			t.RealizedPnLPercent = replay.realizedPnLPercent()
		}
		t.PnLConfidence = confidence
		t.PnLReconciledAt = &now
		t.UpdatedAt = now
		if err := uow.Trades().Update(ctx, t); err != nil {
			return ReconcileSummary{}, fmt.Errorf("reconcile: updating trade %d: %w", t.ID, err)
		}
	}

	if dryRun {
		return summary, uow.Rollback()
	}
	if err := uow.Commit(); err != nil {
		return ReconcileSummary{}, err
	}
	logger.Infow("reconcile sweep",
		"scanned", summary.ScannedTrades, "updated", summary.UpdatedTrades,
		"unchanged", summary.UnchangedTrades,
		"high", summary.HighConfidenceTrades, "low", summary.LowConfidenceTrades)
	return summary, nil
}

// ledgerTotals is the result of folding a trade's event ledger.
type ledgerTotals struct {
	entryQty      decimal.Decimal
	exitQty       decimal.Decimal
	avgEntryPrice decimal.Decimal
	avgExitPrice  decimal.Decimal
}

// replayLedger folds the ordered event sequence into quantity-weighted
// entry/exit aggregates. ENTRY and ADOPT accumulate the entry side,
// PARTIAL_EXIT and CLOSE the exit side; TRAILING_UPDATE carries no
// quantity and is skipped.
func replayLedger(events []Event) ledgerTotals {
	var t ledgerTotals
	for _, ev := range events {
		switch ev.Type {
		case EventEntry, EventAdopt:
			newQty := t.entryQty.Add(ev.Quantity)
			if newQty.Sign() > 0 {
				t.avgEntryPrice = t.avgEntryPrice.Mul(t.entryQty).
					Add(ev.Price.Mul(ev.Quantity)).
					Div(newQty)
			}
			t.entryQty = newQty
		case EventPartialExit, EventClose:
			newQty := t.exitQty.Add(ev.Quantity)
			if newQty.Sign() > 0 {
				t.avgExitPrice = t.avgExitPrice.Mul(t.exitQty).
					Add(ev.Price.Mul(ev.Quantity)).
					Div(newQty)
			}
			t.exitQty = newQty
		}
	}
	return t
}

// fullyExplains reports whether the ledger accounts for the trade's whole
// quantity: entries match the stored entry quantity and exits drain them.
func (t ledgerTotals) fullyExplains(storedEntryQty decimal.Decimal) bool {
	if t.entryQty.Sign() <= 0 {
		return false
	}
	if !isDust(t.entryQty.Sub(storedEntryQty)) {
		return false
	}
	return isDust(t.entryQty.Sub(t.exitQty))
}

func (t ledgerTotals) realizedPnL() decimal.Decimal {
	return t.avgExitPrice.Sub(t.avgEntryPrice).Mul(t.exitQty)
}

func (t ledgerTotals) realizedPnLPercent() decimal.Decimal {
	if t.avgEntryPrice.Sign() <= 0 {
		return decimal.Zero
	}
	return t.avgExitPrice.Sub(t.avgEntryPrice).Div(t.avgEntryPrice).Mul(decHundred)
}
