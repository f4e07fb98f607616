package config

import (
	"fmt"
	"time"

	"limitless/internal/pkg/timeutil"
)

func validate(c *Config) error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Windows.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	// Live trading must never start on empty credentials; dry-run only
	// simulates locally and may run without them.
	if !b.DryRun && !b.HasCredentials() {
		return fmt.Errorf("broker.key_id and broker.secret_key are required when dry_run is false")
	}
	switch b.DataFeed {
	case "", "iex", "sip":
	default:
		return fmt.Errorf("broker.data_feed must be iex, sip or empty, got %q", b.DataFeed)
	}
	return nil
}

func (w *WindowsConfig) validate() error {
	ref := time.Now()
	for name, clock := range map[string]string{
		"windows.morning_start":  w.MorningStart,
		"windows.morning_end":    w.MorningEnd,
		"windows.power_start":    w.PowerStart,
		"windows.power_end":      w.PowerEnd,
		"windows.friday_flatten": w.FridayFlatten,
		"windows.stretch_cutoff": w.StretchCutoff,
	} {
		if _, err := timeutil.ParseClock(clock, ref); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (e *EngineConfig) validate() error {
	switch e.EntryOrderType {
	case "buy_stop", "buy_limit":
	default:
		return fmt.Errorf("engine.entry_order_type must be buy_stop or buy_limit, got %q", e.EntryOrderType)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.HardCapPct < r.SoftCapPct {
		return fmt.Errorf("risk.hard_cap_pct (%.4f) must be >= risk.soft_cap_pct (%.4f)", r.HardCapPct, r.SoftCapPct)
	}
	return nil
}

func (l *LedgerConfig) validate() error {
	if l.UtilizationPct <= 0 || l.UtilizationPct > 1 {
		return fmt.Errorf("ledger.utilization_pct must be in (0, 1], got %.4f", l.UtilizationPct)
	}
	if l.SettleHourET < 0 || l.SettleHourET > 23 {
		return fmt.Errorf("ledger.settle_hour_et must be a valid hour, got %d", l.SettleHourET)
	}
	return nil
}
