package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.TradingConfig.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q", cfg.TradingConfig.Symbol)
	}
	if cfg.StopsConfig.Trailing != "supertrend" {
		t.Errorf("trailing = %q", cfg.StopsConfig.Trailing)
	}
	w := cfg.ScoringConfig.Weights
	if w.TA+w.Exchange+w.Volume+w.Volatility != 1.0 {
		t.Errorf("default weights do not sum to 1: %+v", w)
	}
	if cfg.TradingConfig.StartEnabled {
		t.Error("trading must start disabled until the operator sends /on")
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.TradingConfig.SignalThreshold != Default().TradingConfig.SignalThreshold {
		t.Error("defaults not applied for a missing file")
	}
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"trading": {"symbol": "ETHUSDT", "risk_pct": 0.02}, "stops": {"trailing": "atr"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.TradingConfig.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %q, want ETHUSDT", cfg.TradingConfig.Symbol)
	}
	if cfg.TradingConfig.RiskPct != 0.02 {
		t.Errorf("risk pct = %v, want 0.02", cfg.TradingConfig.RiskPct)
	}
	if cfg.StopsConfig.Trailing != "atr" {
		t.Errorf("trailing = %q, want atr", cfg.StopsConfig.Trailing)
	}
	// untouched sections keep their defaults
	if cfg.TradingConfig.Leverage != 10 {
		t.Errorf("leverage = %d, want default 10", cfg.TradingConfig.Leverage)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("TRADING_SYMBOL", "SOLUSDT")
	t.Setenv("TRADING_RISK_PCT", "0.005")
	t.Setenv("BYBIT_TESTNET", "true")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.TradingConfig.Symbol != "SOLUSDT" {
		t.Errorf("symbol = %q, want SOLUSDT", cfg.TradingConfig.Symbol)
	}
	if cfg.TradingConfig.RiskPct != 0.005 {
		t.Errorf("risk pct = %v, want 0.005", cfg.TradingConfig.RiskPct)
	}
	if !cfg.BybitConfig.TestNet {
		t.Error("testnet override not applied")
	}
}

func TestLoadFromRejectsBadTrailingMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"stops": {"trailing": "fibonacci"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("invalid trailing mode accepted")
	}
}
