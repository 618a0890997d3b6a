package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/brain"
	"solana-pump-pipeline/internal/config"
	"solana-pump-pipeline/internal/metrics"
	"solana-pump-pipeline/internal/solprice"
	"solana-pump-pipeline/internal/storage"
	"solana-pump-pipeline/internal/udp"
)

func main() {
	configPath := flag.String("config", "config/brain.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	setupLogger()
	log.Info().Msg("🧠 brain starting...")

	cfg, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	c := cfg.Get()

	db, err := storage.NewDB(c.Storage.SQLitePath, 50, 100*time.Millisecond)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()
	db.SetQueryObserver(metrics.ObserveDBQuery)

	guardrailDB, err := storage.NewDB(c.Storage.GuardrailsPath, 50, 100*time.Millisecond)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open guardrails store")
	}
	defer guardrailDB.Close()

	sender, err := udp.NewBatchedSender()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create UDP sender")
	}
	defer sender.Close()
	decisionPub := udp.NewPublisher(sender, c.Bus.Host, c.Bus.DecisionBusPort)

	advice, err := udp.NewAdviceListener(c.Bus.AdviceBusPort, uint8(c.Bus.MinAdviceConfidence))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind advice bus")
	}
	defer advice.Close()

	confirmListener, err := udp.NewListener(c.Bus.BrainConfirmPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind confirmation port")
	}
	defer confirmListener.Close()

	logger, err := brain.NewDecisionLogger(c.Storage.DecisionLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open decision log")
	}
	defer logger.Close()

	cache := brain.NewFeatureCache(db)
	scorer := brain.NewFollowThroughScorer()

	valCfg := brain.DefaultValidationConfig()
	valCfg.FeeMultiplier = c.Decision.FeeMultiplier
	valCfg.ImpactCapMultiplier = c.Decision.ImpactCapMultiplier
	valCfg.MinProfitUSD = c.Decision.MinProfitUSD
	valCfg.MinFollowThrough = uint8(c.Decision.MinFollowThrough)
	valCfg.EnableRugChecks = c.Decision.EnableRugChecks
	validator := brain.NewTradeValidator(valCfg)

	trigCfg := brain.DefaultTriggerConfig()
	trigCfg.EnableLateOpportunity = c.Decision.EnableLateOpportunity
	trigCfg.MinCopyConfidence = uint8(c.Decision.MinCopyConfidence)
	trigCfg.MaxPositionSizeSol = c.Sizing.MaxPositionSol
	triggers := brain.NewTriggerEngine(trigCfg, validator)

	guardCfg := brain.GuardrailConfig{
		LossBackoffWindowSecs:  uint64(c.Guardrail.LossBackoffWindowSecs),
		LossBackoffThreshold:   c.Guardrail.LossBackoffThreshold,
		LossBackoffPauseSecs:   uint64(c.Guardrail.LossBackoffPauseSecs),
		MaxConcurrentPositions: c.Guardrail.MaxConcurrentPositions,
		MaxAdvisorPositions:    c.Guardrail.MaxAdvisorPositions,
		AdvisorRateLimitSecs:   uint64(c.Guardrail.AdvisorRateLimitSecs),
		MinDecisionIntervalMs:  uint64(c.Guardrail.MinDecisionIntervalMs),
		WalletCoolingSecs:      uint64(c.Guardrail.WalletCoolingSecs),
		TierABypassCooling:     true,
		CreatorLimitWindowSecs: uint64(c.Guardrail.CreatorLimitWindowSecs),
		CreatorLimitCount:      c.Guardrail.CreatorLimitCount,
	}
	guardrails := brain.NewGuardrails(guardCfg, guardrailDB)

	sizerCfg := brain.DefaultSizerConfig()
	sizerCfg.Strategy = brain.ParseSizingStrategy(c.Sizing.Strategy)
	sizerCfg.PortfolioSol = c.Sizing.PortfolioSol
	sizerCfg.MaxPositionSol = c.Sizing.MaxPositionSol
	sizerCfg.MinPositionSol = c.Sizing.MinPositionSol
	sizerCfg.MaxPositionPct = c.Sizing.MaxPositionPct
	sizerCfg.EnableAdaptiveScaling = c.Sizing.AdaptiveScaling
	sizer := brain.NewPositionSizer(sizerCfg)

	states := brain.NewTradeStateTracker(
		time.Duration(c.Lifecycle.ConfirmTimeoutBuySec)*time.Second,
		time.Duration(c.Lifecycle.ConfirmTimeoutSellSec)*time.Second)
	book := brain.NewPositionBook()

	exitCfg := brain.DefaultExitMonitorConfig()
	exits := brain.NewExitMonitor(exitCfg, book, cache)

	// Stale pendings with no observed confirmation resolve as not landed;
	// the state machine closes them and frees the mint after GC.
	reconciler := func(ctx context.Context, mint, tradeID string) (bool, error) {
		return false, nil
	}

	engine := brain.NewEngine(brain.EngineConfig{
		MinDecisionConf:        uint8(c.Decision.MinDecisionConf),
		AdviceDrainPerTick:     c.Bus.AdviceDrainPerTick,
		ReconciliationInterval: time.Duration(c.Lifecycle.ReconciliationIntervalSec) * time.Second,
		StaleStateThreshold:    time.Duration(c.Lifecycle.StaleStateThresholdSec) * time.Second,
	}, cache, scorer, triggers, guardrails, sizer, states, book, exits, logger, decisionPub, reconciler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cache.RunRefresher(ctx, cfg.FeatureRefresh())

	confirms := make(chan []byte, 1024)
	go confirmListener.Run(confirms)
	go func() {
		<-ctx.Done()
		confirmListener.Close()
		advice.Close()
	}()

	server := metrics.NewServer(c.Metrics.ListenHost, c.Metrics.ListenPort, func() map[string]interface{} {
		mints, wallets := cache.Sizes()
		stats := guardrails.Stats()
		return map[string]interface{}{
			"service":            "brain",
			"mint_cache":         mints,
			"wallet_cache":       wallets,
			"open_positions":     book.Count(),
			"backoff_remaining":  stats.BackoffRemainingSec,
			"sol_price_usd":      solprice.USD(),
			"decision_p50_us":    engine.Latency().P50(),
			"decision_p99_us":    engine.Latency().P99(),
		}
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	log.Info().
		Int("advice_port", c.Bus.AdviceBusPort).
		Int("confirm_port", c.Bus.BrainConfirmPort).
		Int("decision_port", c.Bus.DecisionBusPort).
		Msg("brain running")

	engine.Run(ctx, advice, confirms)

	log.Info().Msg("shutting down...")
	server.Shutdown()
	log.Info().Msg("goodbye 👋")
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
