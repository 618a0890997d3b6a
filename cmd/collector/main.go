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

	"solana-pump-pipeline/internal/chain"
	"solana-pump-pipeline/internal/collector"
	"solana-pump-pipeline/internal/config"
	"solana-pump-pipeline/internal/metrics"
	"solana-pump-pipeline/internal/storage"
	"solana-pump-pipeline/internal/udp"
)

func main() {
	configPath := flag.String("config", "config/collector.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	setupLogger()
	log.Info().Msg("🚀 collector starting...")

	cfg, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	c := cfg.Get()

	db, err := storage.NewDB(c.Storage.SQLitePath, c.Collector.TradeBatchSize,
		time.Duration(c.Collector.TradeBatchAgeMs)*time.Millisecond)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()
	db.SetQueryObserver(metrics.ObserveDBQuery)

	sender, err := udp.NewBatchedSender()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create UDP sender")
	}
	defer sender.Close()

	advicePub := udp.NewPublisher(sender, c.Bus.Host, c.Bus.AdviceBusPort)
	brainPub := udp.NewPublisher(sender, c.Bus.Host, c.Bus.BrainConfirmPort)

	parser := collector.NewParser(c.RPC.PumpProgram, c.RPC.AMMProgram)
	windows := collector.NewWindowAggregator(db, c.Collector.WindowWidthsSec)
	tracker := collector.NewLiveTracker(int64(c.Collector.MetricsIntervalMs), c.Collector.MinActivityTrades)
	wallets := collector.NewWalletTracker(db, advicePub, brainPub, 5.0)

	service := collector.NewService(db, parser, windows, tracker, wallets, brainPub,
		time.Duration(c.Collector.TradeBatchAgeMs)*time.Millisecond,
		time.Duration(c.Collector.WindowIdleSweepSec)*time.Second)

	hotlist := collector.NewHotlistScorer(db, tracker, advicePub, collector.HotlistConfig{
		ScoringInterval:   time.Duration(c.Hotlist.ScoringIntervalSec) * time.Second,
		MinAgeSec:         int64(c.Hotlist.MinAgeSec),
		MaxAgeSec:         int64(c.Hotlist.MaxAgeSec),
		MinBroadcastScore: c.Hotlist.MinBroadcastScore,
	})

	rpc := chain.NewRPCClient(c.RPC.URL, cfg.RPCTimeout())
	stream := chain.NewStream(c.RPC.WSURL, rpc, []string{c.RPC.PumpProgram, c.RPC.AMMProgram})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	txs := make(chan *chain.RawTransaction, 4096)
	go stream.Run(ctx, txs)
	go hotlist.Run(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				wallets.RefreshTracked()
			}
		}
	}()

	server := metrics.NewServer(c.Metrics.ListenHost, c.Metrics.ListenPort, func() map[string]interface{} {
		return map[string]interface{}{
			"service":      "collector",
			"live_windows": tracker.WindowCount(),
		}
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	log.Info().
		Int("advice_port", c.Bus.AdviceBusPort).
		Int("brain_port", c.Bus.BrainConfirmPort).
		Msg("collector running")

	service.Run(ctx, txs)

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
