package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
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
	"solana-pump-pipeline/internal/watcher"
)

// alphaSet mirrors the tracked-wallet set from the shared store for
// Δ-window alpha-hit counting.
type alphaSet struct {
	mu      sync.RWMutex
	wallets map[string]string
	db      *storage.DB
}

func (a *alphaSet) refresh() {
	wallets, err := a.db.TrackedWallets()
	if err != nil {
		log.Warn().Err(err).Msg("failed to refresh alpha set")
		return
	}
	a.mu.Lock()
	a.wallets = wallets
	a.mu.Unlock()
}

func (a *alphaSet) contains(wallet string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.wallets[wallet]
	return ok
}

func main() {
	configPath := flag.String("config", "config/watcher.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	setupLogger()
	log.Info().Msg("🚀 mempool watcher starting...")

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

	sender, err := udp.NewBatchedSender()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create UDP sender")
	}
	defer sender.Close()

	brainPub := udp.NewPublisher(sender, c.Bus.Host, c.Bus.BrainConfirmPort)
	executorPub := udp.NewPublisher(sender, c.Bus.Host, c.Bus.ExecutorConfirmPort)

	alphas := &alphaSet{wallets: make(map[string]string), db: db}
	alphas.refresh()

	parser := collector.NewParser(c.RPC.PumpProgram, c.RPC.AMMProgram)
	decoder := watcher.NewDecoder(parser, c.Watcher.WhaleThresholdSol, c.Watcher.BotRepeatThreshold)
	sigs := watcher.NewSignatureTracker(time.Duration(c.Watcher.SigMaxAgeSecs) * time.Second)
	positions := watcher.NewPositionTracker()
	broadcaster := watcher.NewBroadcaster(brainPub, executorPub, positions, alphas.contains,
		c.Watcher.DeltaWindowMinMs, c.Watcher.DeltaWindowMaxMs)
	monitor := watcher.NewMonitor(decoder, sigs, positions, broadcaster, brainPub, executorPub)

	rpc := chain.NewRPCClient(c.RPC.URL, cfg.RPCTimeout())
	stream := chain.NewStream(c.RPC.WSURL, rpc, []string{c.RPC.PumpProgram, c.RPC.AMMProgram})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Executor registrations in, sweeper and RPC backstop alongside.
	go func() {
		if err := sigs.RunListener(ctx, c.Bus.WatchSigListenPort); err != nil {
			log.Fatal().Err(err).Msg("watch-sig listener failed to start")
		}
	}()
	go sigs.RunSweeper(ctx, time.Duration(c.Watcher.SigSweepSecs)*time.Second)
	go sigs.RunRPCPolling(ctx, rpc,
		time.Duration(c.RPC.PollInterval)*time.Second, c.RPC.MaxSigBatch,
		func(watch *udp.WatchSigEnhanced, slot uint64, status byte) {
			monitor.ConfirmWatch(watch, slot, status, 0)
		})

	// Alpha set refresh + gauges.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				alphas.refresh()
				metrics.WatchedSignatures.Set(float64(sigs.Count()))
				metrics.ActivePositions.WithLabelValues("watcher").Set(float64(positions.Count()))
			}
		}
	}()

	server := metrics.NewServer(c.Metrics.ListenHost, c.Metrics.ListenPort, func() map[string]interface{} {
		return map[string]interface{}{
			"service":            "watcher",
			"watched_signatures": sigs.Count(),
			"open_positions":     positions.Count(),
		}
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	txs := make(chan *chain.RawTransaction, 4096)
	go stream.Run(ctx, txs)

	log.Info().
		Int("watch_sig_port", c.Bus.WatchSigListenPort).
		Int("brain_port", c.Bus.BrainConfirmPort).
		Int("executor_port", c.Bus.ExecutorConfirmPort).
		Msg("watcher running")

	monitor.Run(ctx, txs)

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
