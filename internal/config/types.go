package config

// Config is the full application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Upbit     UpbitConfig     `mapstructure:"upbit"`
	Regime    RegimeConfig    `mapstructure:"regime"`
	Board     BoardConfig     `mapstructure:"board"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type UpbitConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	AccessKey      string  `mapstructure:"access_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	HTTPTimeoutSec int     `mapstructure:"http_timeout_sec"`
	RatePerSec     float64 `mapstructure:"rate_per_sec"`
	Burst          int     `mapstructure:"burst"`
	MaxRetries     uint64  `mapstructure:"max_retries"`
	PriceTTLSec    int     `mapstructure:"price_ttl_sec"`
}

// RegimeConfig mirrors regime.Settings; percent fields are whole percents.
type RegimeConfig struct {
	Window            int     `mapstructure:"window"`
	MinCandles        int     `mapstructure:"min_candles"`
	ATRPeriod         int     `mapstructure:"atr_period"`
	HighVolATRPercent float64 `mapstructure:"high_vol_atr_percent"`
	DeadBandPercent   float64 `mapstructure:"dead_band_percent"`
	ConsistencyBand   float64 `mapstructure:"consistency_band"`
	WhipsawFlipRatio  float64 `mapstructure:"whipsaw_flip_ratio"`
}

type BoardConfig struct {
	TopTurnover     int    `mapstructure:"top_turnover"`
	CandleWindow    int    `mapstructure:"candle_window"`
	MaxConcurrent   int    `mapstructure:"max_concurrent"`
	ProfilesPath    string `mapstructure:"profiles_path"`
	RefreshInterval string `mapstructure:"refresh_interval"`
}

type TradingConfig struct {
	MinOrderKRW            float64 `mapstructure:"min_order_krw"`
	StopLossPercent        float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPercent      float64 `mapstructure:"take_profit_percent"`
	TrailingTriggerPercent float64 `mapstructure:"trailing_trigger_percent"`
	TrailingOffsetPercent  float64 `mapstructure:"trailing_offset_percent"`
	DCAStepPercent         float64 `mapstructure:"dca_step_percent"`
	HalfTakeProfitRatio    float64 `mapstructure:"half_take_profit_ratio"`
	TickInterval           string  `mapstructure:"tick_interval"`
}

type ReconcileConfig struct {
	WindowDays    int     `mapstructure:"window_days"`
	MaxTrades     int     `mapstructure:"max_trades"`
	Tolerance     float64 `mapstructure:"tolerance"`
	SweepInterval string  `mapstructure:"sweep_interval"`
}
