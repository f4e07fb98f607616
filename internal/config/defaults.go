package config

import "github.com/spf13/viper"

// applyDefaults fills zero-valued fields with operating defaults. Fields a
// user may legitimately zero out (the ATR multipliers, which disable their
// feature at 0) are only defaulted when the key is absent from the file.
func applyDefaults(c *Config, v *viper.Viper) {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8085"
	}

	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://paper-api.alpaca.markets"
	}
	if c.Broker.DataBaseURL == "" {
		c.Broker.DataBaseURL = "https://data.alpaca.markets"
	}
	if c.Broker.TimeoutSeconds <= 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.RequestsPerSec <= 0 {
		c.Broker.RequestsPerSec = 5
	}
	if !v.IsSet("broker.dry_run") {
		c.Broker.DryRun = true
	}

	if c.Engine.TickSeconds <= 0 {
		c.Engine.TickSeconds = 5
	}
	if c.Engine.ErrorPauseSeconds <= 0 {
		c.Engine.ErrorPauseSeconds = 2
	}
	if c.Engine.EntryCancelMinutes <= 0 {
		c.Engine.EntryCancelMinutes = 2
	}
	if c.Engine.EntryOrderType == "" {
		c.Engine.EntryOrderType = "buy_stop"
	}
	if c.Engine.BarLimit <= 0 {
		c.Engine.BarLimit = 300
	}

	if c.Windows.MorningStart == "" {
		c.Windows.MorningStart = "09:45"
	}
	if c.Windows.MorningEnd == "" {
		c.Windows.MorningEnd = "11:15"
	}
	if c.Windows.PowerStart == "" {
		c.Windows.PowerStart = "15:00"
	}
	if c.Windows.PowerEnd == "" {
		c.Windows.PowerEnd = "15:55"
	}
	if c.Windows.FridayFlatten == "" {
		c.Windows.FridayFlatten = "15:45"
	}
	if c.Windows.StretchCutoff == "" {
		c.Windows.StretchCutoff = "15:30"
	}

	if c.Strategy.TargetPct == 0 {
		c.Strategy.TargetPct = 0.005
	}
	if c.Strategy.VWAPTouchTolerance == 0 {
		c.Strategy.VWAPTouchTolerance = 0.0015
	}
	if c.Strategy.VWAPExtensionMaxPct == 0 {
		c.Strategy.VWAPExtensionMaxPct = 0.01
	}
	if !v.IsSet("strategy.confirm_higher_low") {
		c.Strategy.ConfirmHigherLow = true
	}
	if !v.IsSet("strategy.confirm_vwap_reclaim") {
		c.Strategy.ConfirmVWAPReclaim = true
	}
	if !v.IsSet("strategy.require_vwap_retest") {
		c.Strategy.RequireVWAPRetest = true
	}
	if c.Strategy.VWAPRetestLookback <= 0 {
		c.Strategy.VWAPRetestLookback = 5
	}
	if c.Strategy.ATRLen <= 0 {
		c.Strategy.ATRLen = 14
	}
	if !v.IsSet("strategy.atr_take_profit_k") {
		c.Strategy.ATRTakeProfitK = 0.5
	}
	if !v.IsSet("strategy.atr_trail_k") {
		c.Strategy.ATRTrailK = 1.0
	}
	if !v.IsSet("strategy.exit_in_power_window_only") {
		c.Strategy.ExitInPowerWindowOnly = true
	}
	if !v.IsSet("strategy.mae_k_atr") {
		c.Strategy.MAEKATR = 1.2
	}
	if c.Strategy.RVOLMin == 0 {
		c.Strategy.RVOLMin = 1.1
	}
	if c.Strategy.SpreadMaxPct == 0 {
		c.Strategy.SpreadMaxPct = 0.0015
	}
	if !v.IsSet("strategy.slippage_max_pct") {
		c.Strategy.SlippageMaxPct = 0.003
	}

	if c.Risk.SoftCapPct == 0 {
		c.Risk.SoftCapPct = 0.01
	}
	if c.Risk.HardCapPct == 0 {
		c.Risk.HardCapPct = 0.015
	}
	if c.Risk.ConcurrencyCap <= 0 {
		c.Risk.ConcurrencyCap = 3
	}
	if c.Risk.PerSymbolCooldownSec <= 0 {
		c.Risk.PerSymbolCooldownSec = 600
	}
	if c.Risk.GlobalCooldownSec <= 0 {
		c.Risk.GlobalCooldownSec = 300
	}
	if c.Risk.MarginEquityMinUSD <= 0 {
		c.Risk.MarginEquityMinUSD = 25000
	}

	if c.Ledger.Path == "" {
		c.Ledger.Path = "data/buckets.json"
	}
	if c.Ledger.InitTotalUSD <= 0 {
		c.Ledger.InitTotalUSD = 4000
	}
	if c.Ledger.UtilizationPct <= 0 {
		c.Ledger.UtilizationPct = 0.93
	}
	if c.Ledger.SettleHourET <= 0 {
		c.Ledger.SettleHourET = 9
	}

	if c.Watchlist.Path == "" {
		c.Watchlist.Path = "configs/watchlist.yaml"
	}
	if !v.IsSet("earnings.skip_next_day") {
		c.Earnings.SkipNextDay = true
	}
	if c.Audit.DBPath == "" {
		c.Audit.DBPath = "data/audit.db"
	}
}
