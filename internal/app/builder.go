package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rudder/internal/analysis/regime"
	"rudder/internal/board"
	"rudder/internal/config"
	"rudder/internal/gateway/upbit"
	"rudder/internal/logger"
	"rudder/internal/market"
	"rudder/internal/store/sqlite"
	"rudder/internal/trade"
	guidedhttp "rudder/internal/transport/http"
)

// NewApp builds the application object graph from config. Nothing starts
// running until Run.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := sqlite.NewSqliteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.Store.Path, err)
	}

	client := upbit.New(upbit.Config{
		BaseURL:     cfg.Upbit.BaseURL,
		AccessKey:   cfg.Upbit.AccessKey,
		SecretKey:   cfg.Upbit.SecretKey,
		HTTPTimeout: time.Duration(cfg.Upbit.HTTPTimeoutSec) * time.Second,
		RatePerSec:  cfg.Upbit.RatePerSec,
		Burst:       cfg.Upbit.Burst,
		MaxRetries:  cfg.Upbit.MaxRetries,
	})
	prices := market.NewPriceCache(client, time.Duration(cfg.Upbit.PriceTTLSec)*time.Second)

	detector := regime.NewDetector(regime.Settings{
		Window:            cfg.Regime.Window,
		MinCandles:        cfg.Regime.MinCandles,
		ATRPeriod:         cfg.Regime.ATRPeriod,
		HighVolATRPercent: cfg.Regime.HighVolATRPercent,
		DeadBandPercent:   cfg.Regime.DeadBandPercent,
		ConsistencyBand:   cfg.Regime.ConsistencyBand,
		WhipsawFlipRatio:  cfg.Regime.WhipsawFlipRatio,
	})

	profiles, err := loadProfiles(cfg.Board.ProfilesPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	ranker := board.NewRanker(client, client, board.Settings{
		TopTurnover:   cfg.Board.TopTurnover,
		CandleWindow:  cfg.Board.CandleWindow,
		MaxConcurrent: cfg.Board.MaxConcurrent,
	}, profiles)

	manager := trade.NewManager(store, client, prices, tradingSettings(cfg.Trading))
	reconciler := trade.NewReconciler(store, cfg.Reconcile.MaxTrades, decimal.NewFromFloat(cfg.Reconcile.Tolerance))

	server, err := guidedhttp.NewServer(guidedhttp.ServerConfig{
		Addr: cfg.HTTP.Addr,
		Handler: &guidedhttp.Handler{
			Manager:    manager,
			Reconciler: reconciler,
			Ranker:     ranker,
			Detector:   detector,
			Candles:    client,
		},
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		store:      store,
		prices:     prices,
		manager:    manager,
		reconciler: reconciler,
		ranker:     ranker,
		server:     server,
	}, nil
}

func loadProfiles(path string) (map[board.Mode]board.ModeProfile, error) {
	if path == "" {
		return board.DefaultProfiles(), nil
	}
	profiles, err := board.LoadProfiles(path)
	if err != nil {
		return nil, fmt.Errorf("loading mode profiles from %s: %w", path, err)
	}
	return profiles, nil
}

// tradingSettings overlays config values onto the defaults; zero-valued
// fields keep the reference thresholds.
func tradingSettings(c config.TradingConfig) trade.Settings {
	s := trade.DefaultSettings()
	if c.MinOrderKRW > 0 {
		s.MinOrderKRW = decimal.NewFromFloat(c.MinOrderKRW)
	}
	if c.StopLossPercent > 0 {
		s.StopLossPercent = decimal.NewFromFloat(c.StopLossPercent)
	}
	if c.TakeProfitPercent > 0 {
		s.TakeProfitPercent = decimal.NewFromFloat(c.TakeProfitPercent)
	}
	if c.TrailingTriggerPercent > 0 {
		s.TrailingTriggerPercent = decimal.NewFromFloat(c.TrailingTriggerPercent)
	}
	if c.TrailingOffsetPercent > 0 {
		s.TrailingOffsetPercent = decimal.NewFromFloat(c.TrailingOffsetPercent)
	}
	if c.DCAStepPercent > 0 {
		s.DCAStepPercent = decimal.NewFromFloat(c.DCAStepPercent)
	}
	if c.HalfTakeProfitRatio > 0 {
		s.HalfTakeProfitRatio = decimal.NewFromFloat(c.HalfTakeProfitRatio)
	}
	return s
}
