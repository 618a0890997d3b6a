package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return configPath
}

func TestDefaultsApplied(t *testing.T) {
	m, err := NewManager(writeTempConfig(t, "metrics:\n    listen_port: 9200\n"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Metrics.ListenPort != 9200 {
		t.Errorf("listen_port = %d, want 9200", cfg.Metrics.ListenPort)
	}
	if cfg.Decision.FeeMultiplier != 2.2 {
		t.Errorf("fee_multiplier default = %v, want 2.2", cfg.Decision.FeeMultiplier)
	}
	if cfg.Guardrail.LossBackoffThreshold != 3 {
		t.Errorf("loss_backoff_threshold default = %d, want 3", cfg.Guardrail.LossBackoffThreshold)
	}
	if cfg.Collector.TradeBatchSize != 50 {
		t.Errorf("trade_batch_size default = %d, want 50", cfg.Collector.TradeBatchSize)
	}
	if got := cfg.Collector.WindowWidthsSec; len(got) != 2 || got[0] != 10 || got[1] != 60 {
		t.Errorf("window_widths_sec default = %v, want [10 60]", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	os.Setenv("MIN_DECISION_CONF", "72")
	os.Setenv("PORTFOLIO_SOL", "25.5")
	os.Setenv("DECISION_BUS_PORT", "46105")
	defer os.Unsetenv("MIN_DECISION_CONF")
	defer os.Unsetenv("PORTFOLIO_SOL")
	defer os.Unsetenv("DECISION_BUS_PORT")

	content := `
decision:
    min_decision_conf: 40
sizing:
    portfolio_sol: 5.0
`
	m, err := NewManager(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Decision.MinDecisionConf != 72 {
		t.Errorf("MIN_DECISION_CONF env should win: got %d, want 72", cfg.Decision.MinDecisionConf)
	}
	if cfg.Sizing.PortfolioSol != 25.5 {
		t.Errorf("PORTFOLIO_SOL env should win: got %v, want 25.5", cfg.Sizing.PortfolioSol)
	}
	if cfg.Bus.DecisionBusPort != 46105 {
		t.Errorf("DECISION_BUS_PORT env should win: got %d, want 46105", cfg.Bus.DecisionBusPort)
	}
}

func TestBusPortsDiffer(t *testing.T) {
	m, err := NewManager(writeTempConfig(t, "bus:\n    host: 127.0.0.1\n"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	bus := m.GetBus()
	if bus.AdviceBusPort == bus.DecisionBusPort {
		t.Errorf("advice and decision ports must differ, both = %d", bus.AdviceBusPort)
	}
}

func TestFileValuesOverrideDefaults(t *testing.T) {
	content := `
guardrails:
    max_concurrent_positions: 7
    wallet_cooling_secs: 45
watcher:
    whale_threshold_sol: 25.0
`
	m, err := NewManager(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Guardrail.MaxConcurrentPositions != 7 {
		t.Errorf("max_concurrent_positions = %d, want 7", cfg.Guardrail.MaxConcurrentPositions)
	}
	if cfg.Guardrail.WalletCoolingSecs != 45 {
		t.Errorf("wallet_cooling_secs = %d, want 45", cfg.Guardrail.WalletCoolingSecs)
	}
	if cfg.Watcher.WhaleThresholdSol != 25.0 {
		t.Errorf("whale_threshold_sol = %v, want 25.0", cfg.Watcher.WhaleThresholdSol)
	}
}

func TestMissingFileFails(t *testing.T) {
	if _, err := NewManager("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
