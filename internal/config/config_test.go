package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/risk"
)

const sample = `
tinkoff:
  token: t-123
  sandbox: true
trading:
  interval: 2m
  max_trades_per_cycle: 2
risk:
  max_position_size_percent: 5
strategy:
  size: 12
  elite: 2
decision:
  reason_timeout: 15s
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-env")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	path := writeConfig(t, t.TempDir(), sample)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TradingInterval() != 2*time.Minute {
		t.Errorf("interval = %v", cfg.TradingInterval())
	}
	if cfg.Trading.MaxTradesPerCycle != 2 || cfg.Trading.DiscoveryLimit != 20 {
		t.Errorf("trading = %+v", cfg.Trading)
	}
	if cfg.Risk.MaxPositionSizePercent != 5 {
		t.Errorf("risk override lost: %+v", cfg.Risk)
	}
	if cfg.Risk.MaxTotalExposurePercent != 50 {
		t.Errorf("risk default lost: %+v", cfg.Risk)
	}
	if cfg.Strategy.Size != 12 || cfg.Strategy.CrossoverRate != 0.7 || len(cfg.Strategy.Regimes) != 4 {
		t.Errorf("strategy = %+v", cfg.Strategy)
	}
	if cfg.Decision.ReasonTimeout != 15*time.Second || cfg.Decision.Similarity.Limit != 5 {
		t.Errorf("decision = %+v", cfg.Decision)
	}
	if cfg.Tinkoff.SandboxFunding != 1_000_000 {
		t.Errorf("sandbox funding = %v", cfg.Tinkoff.SandboxFunding)
	}
	if cfg.DeepSeek.APIKey != "sk-env" || !cfg.UseLLM() {
		t.Errorf("env override not applied: %q", cfg.DeepSeek.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", "trading:\n  interval: 5m\n"},
		{"negative sandbox funding", "tinkoff:\n  token: x\n  sandbox_funding: -5\n"},
		{"bad interval", "tinkoff:\n  token: x\ntrading:\n  interval: soon\n"},
		{"bad risk", "tinkoff:\n  token: x\nrisk:\n  max_total_exposure_percent: 150\n"},
		{"telegram without chat", "tinkoff:\n  token: x\ntelegram:\n  enabled: true\n  bot_token: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TINKOFF_TOKEN", "")
			t.Setenv("TELEGRAM_CHAT_ID", "")
			if _, err := Load(writeConfig(t, t.TempDir(), tt.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWatcherReloadsRisk(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sample)

	var mu sync.Mutex
	var got []risk.Profile
	w := NewWatcher(path, 20*time.Millisecond, func(p risk.Profile) error {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return nil
	}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, dir, sample+"\n# touched\n")
	_ = os.WriteFile(path, []byte("tinkoff:\n  token: t\nrisk:\n  max_position_size_percent: 7\n"), 0o644)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		var last risk.Profile
		if n > 0 {
			last = got[n-1]
		}
		mu.Unlock()
		if n > 0 && last.MaxPositionSizePercent == 7 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("risk profile was not reloaded")
}
