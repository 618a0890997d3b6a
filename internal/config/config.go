package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all pipeline configuration. One YAML file per service; the
// sections a service does not use are simply ignored.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc"`
	Bus       BusConfig       `mapstructure:"bus"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Guardrail GuardrailConfig `mapstructure:"guardrails"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Hotlist   HotlistConfig   `mapstructure:"hotlist"`
	Collector CollectorConfig `mapstructure:"collector"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
}

type RPCConfig struct {
	URL          string `mapstructure:"url"`
	WSURL        string `mapstructure:"ws_url"`
	PumpProgram  string `mapstructure:"pump_program"`
	AMMProgram   string `mapstructure:"amm_program"`
	TimeoutSecs  int    `mapstructure:"timeout_seconds"`
	MaxSigBatch  int    `mapstructure:"max_signature_batch"`
	PollInterval int    `mapstructure:"poll_interval_seconds"`
}

// BusConfig enumerates the localhost UDP ports binding the three services
// and the Executor. Advice and decision ports must differ.
type BusConfig struct {
	Host                string `mapstructure:"host"`
	AdviceBusPort       int    `mapstructure:"advice_bus_port"`
	DecisionBusPort     int    `mapstructure:"decision_bus_port"`
	BrainConfirmPort    int    `mapstructure:"brain_confirm_port"`
	ExecutorConfirmPort int    `mapstructure:"executor_confirm_port"`
	WatchSigListenPort  int    `mapstructure:"watch_sig_listen_port"`
	MinAdviceConfidence int    `mapstructure:"min_advice_confidence"`
	AdviceDrainPerTick  int    `mapstructure:"advice_drain_per_tick"`
}

type StorageConfig struct {
	SQLitePath     string `mapstructure:"sqlite_path"`
	GuardrailsPath string `mapstructure:"guardrails_path"`
	DecisionLog    string `mapstructure:"decision_log_path"`
}

type MetricsConfig struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
}

// DecisionConfig carries the Brain's validation and trigger thresholds.
type DecisionConfig struct {
	MinDecisionConf       int     `mapstructure:"min_decision_conf"`
	MinCopyConfidence     int     `mapstructure:"min_copytrade_confidence"`
	FeeMultiplier         float64 `mapstructure:"fee_multiplier"`
	ImpactCapMultiplier   float64 `mapstructure:"impact_cap_multiplier"`
	MinProfitUSD          float64 `mapstructure:"min_profit_usd"`
	MinFollowThrough      int     `mapstructure:"min_follow_through"`
	EnableRugChecks       bool    `mapstructure:"enable_rug_checks"`
	EnableLateOpportunity bool    `mapstructure:"enable_late_opportunity"`
	FeatureRefreshSecs    int     `mapstructure:"feature_refresh_seconds"`
}

type GuardrailConfig struct {
	LossBackoffThreshold   int `mapstructure:"loss_backoff_threshold"`
	LossBackoffWindowSecs  int `mapstructure:"loss_backoff_window_secs"`
	LossBackoffPauseSecs   int `mapstructure:"loss_backoff_pause_secs"`
	MaxConcurrentPositions int `mapstructure:"max_concurrent_positions"`
	MaxAdvisorPositions    int `mapstructure:"max_advisor_positions"`
	AdvisorRateLimitSecs   int `mapstructure:"advisor_rate_limit_secs"`
	MinDecisionIntervalMs  int `mapstructure:"min_decision_interval_ms"`
	WalletCoolingSecs      int `mapstructure:"wallet_cooling_secs"`
	CreatorLimitCount      int `mapstructure:"creator_trade_limit_count"`
	CreatorLimitWindowSecs int `mapstructure:"creator_trade_limit_window_secs"`
}

type SizingConfig struct {
	Strategy        string  `mapstructure:"strategy"` // fixed | confidence | kelly | tiered
	PortfolioSol    float64 `mapstructure:"portfolio_sol"`
	MaxPositionSol  float64 `mapstructure:"max_position_sol"`
	MinPositionSol  float64 `mapstructure:"min_position_sol"`
	MaxPositionPct  float64 `mapstructure:"max_position_pct"`
	AdaptiveScaling bool    `mapstructure:"adaptive_scaling"`
}

type LifecycleConfig struct {
	PendingTTLMs              int `mapstructure:"pending_ttl_ms"`
	ConfirmTimeoutBuySec      int `mapstructure:"confirm_timeout_buy_sec"`
	ConfirmTimeoutSellSec     int `mapstructure:"confirm_timeout_sell_sec"`
	ReconciliationIntervalSec int `mapstructure:"reconciliation_interval_sec"`
	StaleStateThresholdSec    int `mapstructure:"stale_state_threshold_sec"`
	MaxHoldSecs               int `mapstructure:"max_hold_secs"`
}

type HotlistConfig struct {
	ScoringIntervalSec int     `mapstructure:"scoring_interval_sec"`
	MinAgeSec          int     `mapstructure:"min_age_sec"`
	MaxAgeSec          int     `mapstructure:"max_age_sec"`
	MinBroadcastScore  float64 `mapstructure:"min_broadcast_score"`
}

type CollectorConfig struct {
	WindowWidthsSec    []int `mapstructure:"window_widths_sec"`
	TradeBatchSize     int   `mapstructure:"trade_batch_size"`
	TradeBatchAgeMs    int   `mapstructure:"trade_batch_age_ms"`
	MetricsIntervalMs  int   `mapstructure:"metrics_interval_ms"`
	MinActivityTrades  int   `mapstructure:"min_activity_trades"`
	WindowIdleSweepSec int   `mapstructure:"window_idle_sweep_sec"`
}

type WatcherConfig struct {
	WhaleThresholdSol  float64 `mapstructure:"whale_threshold_sol"`
	BotRepeatThreshold int     `mapstructure:"bot_repeat_threshold"`
	SigMaxAgeSecs      int     `mapstructure:"sig_max_age_secs"`
	SigSweepSecs       int     `mapstructure:"sig_sweep_secs"`
	DeltaWindowMinMs   int     `mapstructure:"delta_window_min_ms"`
	DeltaWindowMaxMs   int     `mapstructure:"delta_window_max_ms"`
}

// Manager handles config loading, env binding and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads configPath, applies defaults and environment overrides,
// and watches the file for changes.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{
		config: &cfg,
		viper:  v,
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.ws_url", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.pump_program", "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	v.SetDefault("rpc.amm_program", "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	v.SetDefault("rpc.timeout_seconds", 10)
	v.SetDefault("rpc.max_signature_batch", 256)
	v.SetDefault("rpc.poll_interval_seconds", 2)

	v.SetDefault("bus.host", "127.0.0.1")
	v.SetDefault("bus.advice_bus_port", 45100)
	v.SetDefault("bus.decision_bus_port", 45105)
	v.SetDefault("bus.brain_confirm_port", 45115)
	v.SetDefault("bus.executor_confirm_port", 45110)
	v.SetDefault("bus.watch_sig_listen_port", 45120)
	v.SetDefault("bus.min_advice_confidence", 50)
	v.SetDefault("bus.advice_drain_per_tick", 32)

	v.SetDefault("storage.sqlite_path", "./data/pipeline.db")
	v.SetDefault("storage.guardrails_path", "./data/guardrails.db")
	v.SetDefault("storage.decision_log_path", "./data/decisions.csv")

	v.SetDefault("metrics.listen_host", "127.0.0.1")
	v.SetDefault("metrics.listen_port", 9100)

	v.SetDefault("decision.min_decision_conf", 55)
	v.SetDefault("decision.min_copytrade_confidence", 65)
	v.SetDefault("decision.fee_multiplier", 2.2)
	v.SetDefault("decision.impact_cap_multiplier", 0.45)
	v.SetDefault("decision.min_profit_usd", 1.0)
	v.SetDefault("decision.min_follow_through", 60)
	v.SetDefault("decision.enable_rug_checks", true)
	v.SetDefault("decision.enable_late_opportunity", false)
	v.SetDefault("decision.feature_refresh_seconds", 30)

	v.SetDefault("guardrails.loss_backoff_threshold", 3)
	v.SetDefault("guardrails.loss_backoff_window_secs", 180)
	v.SetDefault("guardrails.loss_backoff_pause_secs", 120)
	v.SetDefault("guardrails.max_concurrent_positions", 3)
	v.SetDefault("guardrails.max_advisor_positions", 2)
	v.SetDefault("guardrails.advisor_rate_limit_secs", 30)
	v.SetDefault("guardrails.min_decision_interval_ms", 100)
	v.SetDefault("guardrails.wallet_cooling_secs", 90)
	v.SetDefault("guardrails.creator_trade_limit_count", 3)
	v.SetDefault("guardrails.creator_trade_limit_window_secs", 60)

	v.SetDefault("sizing.strategy", "confidence")
	v.SetDefault("sizing.portfolio_sol", 10.0)
	v.SetDefault("sizing.max_position_sol", 0.5)
	v.SetDefault("sizing.min_position_sol", 0.05)
	v.SetDefault("sizing.max_position_pct", 5.0)
	v.SetDefault("sizing.adaptive_scaling", true)

	v.SetDefault("lifecycle.pending_ttl_ms", 10000)
	v.SetDefault("lifecycle.confirm_timeout_buy_sec", 10)
	v.SetDefault("lifecycle.confirm_timeout_sell_sec", 15)
	v.SetDefault("lifecycle.reconciliation_interval_sec", 30)
	v.SetDefault("lifecycle.stale_state_threshold_sec", 20)
	v.SetDefault("lifecycle.max_hold_secs", 300)

	v.SetDefault("hotlist.scoring_interval_sec", 5)
	v.SetDefault("hotlist.min_age_sec", 10)
	v.SetDefault("hotlist.max_age_sec", 300)
	v.SetDefault("hotlist.min_broadcast_score", 6.0)

	v.SetDefault("collector.window_widths_sec", []int{10, 60})
	v.SetDefault("collector.trade_batch_size", 50)
	v.SetDefault("collector.trade_batch_age_ms", 100)
	v.SetDefault("collector.metrics_interval_ms", 500)
	v.SetDefault("collector.min_activity_trades", 3)
	v.SetDefault("collector.window_idle_sweep_sec", 60)

	v.SetDefault("watcher.whale_threshold_sol", 10.0)
	v.SetDefault("watcher.bot_repeat_threshold", 5)
	v.SetDefault("watcher.sig_max_age_secs", 60)
	v.SetDefault("watcher.sig_sweep_secs", 30)
	v.SetDefault("watcher.delta_window_min_ms", 150)
	v.SetDefault("watcher.delta_window_max_ms", 250)
}

// bindEnv wires the documented environment overrides. Env always wins over
// the file.
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"rpc.url":                               "RPC_URL",
		"rpc.ws_url":                            "WS_URL",
		"bus.advice_bus_port":                   "ADVICE_BUS_PORT",
		"bus.decision_bus_port":                 "DECISION_BUS_PORT",
		"decision.min_decision_conf":            "MIN_DECISION_CONF",
		"decision.min_copytrade_confidence":     "MIN_COPYTRADE_CONFIDENCE",
		"decision.fee_multiplier":               "FEE_MULTIPLIER",
		"decision.impact_cap_multiplier":        "IMPACT_CAP_MULTIPLIER",
		"guardrails.max_concurrent_positions":   "MAX_CONCURRENT_POSITIONS",
		"guardrails.max_advisor_positions":      "MAX_ADVISOR_POSITIONS",
		"guardrails.loss_backoff_threshold":     "LOSS_BACKOFF_THRESHOLD",
		"guardrails.loss_backoff_window_secs":   "LOSS_BACKOFF_WINDOW_SECS",
		"guardrails.loss_backoff_pause_secs":    "LOSS_BACKOFF_PAUSE_SECS",
		"guardrails.wallet_cooling_secs":        "WALLET_COOLING_SECS",
		"sizing.portfolio_sol":                  "PORTFOLIO_SOL",
		"sizing.max_position_sol":               "MAX_POSITION_SOL",
		"sizing.max_position_pct":               "MAX_POSITION_PCT",
		"lifecycle.pending_ttl_ms":              "PENDING_TTL_MS",
		"lifecycle.confirm_timeout_buy_sec":     "CONFIRM_TIMEOUT_BUY_SEC",
		"lifecycle.confirm_timeout_sell_sec":    "CONFIRM_TIMEOUT_SELL_SEC",
		"lifecycle.reconciliation_interval_sec": "RECONCILIATION_INTERVAL_SEC",
		"lifecycle.stale_state_threshold_sec":   "STALE_STATE_THRESHOLD_SEC",
	}
	for key, env := range bindings {
		// BindEnv only errors on an empty key set.
		_ = v.BindEnv(key, env)
	}
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetDecision returns the decision section (most frequently accessed).
func (m *Manager) GetDecision() DecisionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Decision
}

// GetBus returns the bus section.
func (m *Manager) GetBus() BusConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Bus
}

// SetOnChange registers a callback invoked after each reload.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// RPCTimeout returns the RPC request timeout as a duration.
func (m *Manager) RPCTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.RPC.TimeoutSecs) * time.Second
}

// FeatureRefresh returns the Brain cache refresh interval as a duration.
func (m *Manager) FeatureRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Decision.FeatureRefreshSecs) * time.Second
}
