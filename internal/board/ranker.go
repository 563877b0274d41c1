package board

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rudder/internal/logger"
	"rudder/internal/market"
)

// Settings bound the ranking pass.
type Settings struct {
	// TopTurnover is how many markets, by 24h turnover, are candidates for
	// win-rate simulation. Everything below the cut keeps nil rates.
	TopTurnover int
	// CandleWindow is the fixed history length simulated per market.
	CandleWindow int
	// MaxConcurrent caps parallel candle fetches.
	MaxConcurrent int
}

// DefaultSettings are the reference bounds.
func DefaultSettings() Settings {
	return Settings{TopTurnover: 60, CandleWindow: 120, MaxConcurrent: 8}
}

// RankRequest selects sorting and simulation parameters for one board.
type RankRequest struct {
	SortBy        SortKey
	SortDirection SortDirection
	Interval      string
	Mode          Mode
}

// Ranker builds the market board: liquidity-bounded win-rate simulation
// over the exchange catalog.
type Ranker struct {
	catalog  market.Catalog
	candles  market.CandleSource
	settings Settings

	mu       sync.RWMutex
	profiles map[Mode]ModeProfile
}

// NewRanker wires a ranker. profiles may be nil, in which case the
// built-in SWING/POSITION presets apply.
func NewRanker(catalog market.Catalog, candles market.CandleSource, settings Settings, profiles map[Mode]ModeProfile) *Ranker {
	def := DefaultSettings()
	if settings.TopTurnover <= 0 {
		settings.TopTurnover = def.TopTurnover
	}
	if settings.CandleWindow <= 0 {
		settings.CandleWindow = def.CandleWindow
	}
	if settings.MaxConcurrent <= 0 {
		settings.MaxConcurrent = def.MaxConcurrent
	}
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Ranker{
		catalog:  catalog,
		candles:  candles,
		settings: settings,
		profiles: profiles,
	}
}

// SetProfiles swaps the mode presets (config hot reload).
func (r *Ranker) SetProfiles(profiles map[Mode]ModeProfile) {
	if len(profiles) == 0 {
		return
	}
	r.mu.Lock()
	r.profiles = profiles
	r.mu.Unlock()
}

// Rank produces the ordered market board.
//
// Only the top TopTurnover markets by 24h turnover are simulated; the rest
// keep nil win rates and sort last in either direction. When the sort key
// does not need win rates the candle source is never touched — the board
// then costs one catalog call.
func (r *Ranker) Rank(ctx context.Context, req RankRequest) ([]Entry, error) {
	if req.SortBy == "" {
		req.SortBy = SortByTurnover
	}
	if req.SortDirection != SortAsc {
		req.SortDirection = SortDesc
	}
	interval := strings.TrimSpace(req.Interval)
	if interval == "" {
		interval = "1h"
	}
	prof, err := r.profile(req.Mode)
	if err != nil {
		return nil, err
	}

	infos, err := r.catalog.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing markets: %w", err)
	}
	byTurnover := make([]market.MarketInfo, len(infos))
	copy(byTurnover, infos)
	sort.SliceStable(byTurnover, func(i, j int) bool {
		if c := byTurnover[i].AccTradePrice24h.Cmp(byTurnover[j].AccTradePrice24h); c != 0 {
			return c > 0
		}
		return byTurnover[i].Market < byTurnover[j].Market
	})

	entries := make([]Entry, len(byTurnover))
	eligible := r.settings.TopTurnover
	if eligible > len(byTurnover) {
		eligible = len(byTurnover)
	}
	for i, info := range byTurnover {
		entries[i] = Entry{
			Market:      info.Market,
			KoreanName:  info.KoreanName,
			Turnover24h: info.AccTradePrice24h,
			Stage:       StageSkippedLiquidity,
			Reason:      fmt.Sprintf("turnover rank %d below top %d", i+1, r.settings.TopTurnover),
		}
	}

	if req.SortBy.IsWinRateKey() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.settings.MaxConcurrent)
		for i := 0; i < eligible; i++ {
			i := i
			g.Go(func() error {
				r.computeEntry(gctx, &entries[i], interval, prof)
				// Per-market failures are absorbed into the entry stage;
				// one dead market must not abort the other 59.
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := 0; i < eligible; i++ {
			entries[i].Stage = StageComputed
			entries[i].Reason = "win rates not requested for this sort"
		}
	}

	sortEntries(entries, req.SortBy, req.SortDirection)
	return entries, nil
}

func (r *Ranker) computeEntry(ctx context.Context, e *Entry, interval string, prof ModeProfile) {
	candles, err := r.candles.GetCandles(ctx, e.Market, interval, r.settings.CandleWindow)
	if err != nil || len(candles) == 0 {
		e.Stage = StageUncomputed
		e.Reason = "candle history unavailable"
		if err != nil {
			logger.Warnf("ranker: candle fetch failed for %s: %v", e.Market, err)
		}
		return
	}
	rates := simulateWinRates(candles, prof)
	e.RecommendedEntryWinRate = rates.recommended
	e.MarketEntryWinRate = rates.marketEntry
	e.Stage = StageComputed
	e.Reason = ""
}

func (r *Ranker) profile(mode Mode) (ModeProfile, error) {
	if mode == "" {
		mode = ModeSwing
	}
	r.mu.RLock()
	prof, ok := r.profiles[mode]
	r.mu.RUnlock()
	if !ok {
		return ModeProfile{}, fmt.Errorf("unknown board mode %q", mode)
	}
	return prof, nil
}
