package config

import "strings"

// Config is the top-level configuration for the trading bot.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Broker    BrokerConfig    `yaml:"broker"`
	Engine    EngineConfig    `yaml:"engine"`
	Windows   WindowsConfig   `yaml:"windows"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Earnings  EarningsConfig  `yaml:"earnings"`
	Notify    NotifyConfig    `yaml:"notify"`
	Audit     AuditConfig     `yaml:"audit"`
}

type AppConfig struct {
	Env          string `yaml:"env"`
	LogLevel     string `yaml:"log_level"`
	LogPath      string `yaml:"log_path"`
	HTTPAddr     string `yaml:"http_addr"`
	ControlToken string `yaml:"control_token"`
}

// BrokerConfig describes access to the Alpaca REST surface. In dry-run mode
// order placement is simulated locally and credentials may stay empty.
type BrokerConfig struct {
	BaseURL        string `yaml:"base_url"`
	DataBaseURL    string `yaml:"data_base_url"`
	KeyID          string `yaml:"key_id"`
	SecretKey      string `yaml:"secret_key"`
	DataFeed       string `yaml:"data_feed"` // "iex" | "sip" | "" (auto)
	DryRun         bool   `yaml:"dry_run"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RequestsPerSec int    `yaml:"requests_per_sec"`
}

func (b BrokerConfig) HasCredentials() bool {
	return strings.TrimSpace(b.KeyID) != "" && strings.TrimSpace(b.SecretKey) != ""
}

type EngineConfig struct {
	TickSeconds        int    `yaml:"tick_seconds"`
	ErrorPauseSeconds  int    `yaml:"error_pause_seconds"`
	EntryCancelMinutes int    `yaml:"entry_cancel_minutes"`
	EntryOrderType     string `yaml:"entry_order_type"` // "buy_stop" | "buy_limit"
	BarLimit           int    `yaml:"bar_limit"`
}

// WindowsConfig holds the ET clock strings framing the trading day.
type WindowsConfig struct {
	MorningStart  string `yaml:"morning_start"`
	MorningEnd    string `yaml:"morning_end"`
	PowerStart    string `yaml:"power_start"`
	PowerEnd      string `yaml:"power_end"`
	FridayFlatten string `yaml:"friday_flatten"`
	StretchCutoff string `yaml:"stretch_cutoff"`
}

type StrategyConfig struct {
	TargetPct             float64 `yaml:"target_pct"`
	VWAPTouchTolerance    float64 `yaml:"vwap_touch_tolerance_pct"`
	VWAPExtensionMaxPct   float64 `yaml:"vwap_extension_max_pct"`
	ConfirmHigherLow      bool    `yaml:"confirm_higher_low"`
	ConfirmVWAPReclaim    bool    `yaml:"confirm_vwap_reclaim"`
	RequireVWAPRetest     bool    `yaml:"require_vwap_retest"`
	VWAPRetestLookback    int     `yaml:"vwap_retest_lookback"`
	ATRLen                int     `yaml:"atr_len"`
	ATRTakeProfitK        float64 `yaml:"atr_take_profit_k"`
	ATRTrailK             float64 `yaml:"atr_trail_k"`
	ExitInPowerWindowOnly bool    `yaml:"exit_in_power_window_only"`
	MAEKATR               float64 `yaml:"mae_k_atr"`
	RVOLMin               float64 `yaml:"rvol_min"`
	SpreadMaxPct          float64 `yaml:"spread_max_pct"`
	SlippageMaxPct        float64 `yaml:"slippage_max_pct"`
}

type RiskConfig struct {
	SoftCapPct           float64 `yaml:"soft_cap_pct"`
	HardCapPct           float64 `yaml:"hard_cap_pct"`
	ConcurrencyCap       int     `yaml:"concurrency_cap"`
	PerSymbolCooldownSec int     `yaml:"per_symbol_cooldown_sec"`
	GlobalCooldownSec    int     `yaml:"global_cooldown_sec"`
	MarginEquityMinUSD   float64 `yaml:"margin_equity_min_usd"`
}

type LedgerConfig struct {
	Path           string  `yaml:"path"`
	InitTotalUSD   float64 `yaml:"init_total_usd"`
	UtilizationPct float64 `yaml:"utilization_pct"`
	SettleHourET   int     `yaml:"settle_hour_et"`
}

type WatchlistConfig struct {
	Path string `yaml:"path"`
}

type EarningsConfig struct {
	FinnhubAPIKey string `yaml:"finnhub_api_key"`
	SkipNextDay   bool   `yaml:"skip_next_day"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type AuditConfig struct {
	DBPath string `yaml:"db_path"`
}
