package collector

import (
	"context"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/chain"
	"solana-pump-pipeline/internal/storage"
	"solana-pump-pipeline/internal/udp"
)

// Service is the collector's ingestion fabric: chain stream → parser →
// buffered store writes → window aggregation → live telemetry → advisories.
type Service struct {
	db       *storage.DB
	parser   *Parser
	windows  *WindowAggregator
	tracker  *LiveTracker
	wallets  *WalletTracker
	brainOut *udp.Publisher // momentum/volume/window telemetry; nil disables

	// Burst thresholds for the momentum and volume-spike signals.
	momentumBuyers1s  int
	momentumVolSol    float64
	volumeSpikeSol    float64
	flushInterval     time.Duration
	idleSweepInterval time.Duration
}

// NewService wires the collector pipeline.
func NewService(db *storage.DB, parser *Parser, windows *WindowAggregator,
	tracker *LiveTracker, wallets *WalletTracker, brainOut *udp.Publisher,
	flushInterval, idleSweep time.Duration) *Service {
	if flushInterval <= 0 {
		flushInterval = 100 * time.Millisecond
	}
	if idleSweep <= 0 {
		idleSweep = time.Minute
	}
	return &Service{
		db:                db,
		parser:            parser,
		windows:           windows,
		tracker:           tracker,
		wallets:           wallets,
		brainOut:          brainOut,
		momentumBuyers1s:  5,
		momentumVolSol:    2.0,
		volumeSpikeSol:    10.0,
		flushInterval:     flushInterval,
		idleSweepInterval: idleSweep,
	}
}

// Run consumes the raw transaction stream until ctx is done. Buffered trades
// are drained before returning.
func (s *Service) Run(ctx context.Context, txs <-chan *chain.RawTransaction) {
	flushTicker := time.NewTicker(s.flushInterval)
	defer flushTicker.Stop()
	sweepTicker := time.NewTicker(s.idleSweepInterval)
	defer sweepTicker.Stop()

	defer func() {
		s.windows.CloseAll()
		if err := s.db.FlushTrades(); err != nil {
			log.Error().Err(err).Msg("final trade flush failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			if err := s.db.FlushTrades(); err != nil {
				log.Warn().Err(err).Msg("periodic trade flush failed")
			}
		case <-sweepTicker.C:
			s.tracker.SweepIdle(5 * time.Minute)
		case tx, ok := <-txs:
			if !ok {
				return
			}
			for _, ev := range s.parser.Parse(tx) {
				s.handleEvent(ev)
			}
		}
	}
}

func (s *Service) handleEvent(ev *Event) {
	switch ev.Kind {
	case EventLaunch:
		s.handleLaunch(ev)
	case EventTrade:
		s.handleTrade(ev)
	case EventMigrated:
		if err := s.db.MarkMigrated(ev.Mint, ev.Pool, ev.BlockTime); err != nil {
			log.Warn().Err(err).Str("mint", shortMint(ev.Mint)).Msg("migration update failed")
		} else {
			log.Info().Str("mint", shortMint(ev.Mint)).Str("pool", shortMint(ev.Pool)).Msg("🚀 token migrated")
		}
	}
}

func (s *Service) handleLaunch(ev *Event) {
	if err := s.db.InsertToken(&storage.Token{
		Mint:         ev.Mint,
		Creator:      ev.Creator,
		BondingCurve: ev.BondingCurve,
		Name:         ev.Name,
		Symbol:       ev.Symbol,
		URI:          ev.URI,
		Decimals:     6,
		LaunchSlot:   int64(ev.Slot),
		LaunchTime:   ev.BlockTime,
	}); err != nil {
		log.Warn().Err(err).Str("mint", shortMint(ev.Mint)).Msg("token insert failed")
		return
	}
	log.Info().
		Str("mint", shortMint(ev.Mint)).
		Str("symbol", ev.Symbol).
		Str("creator", shortMint(ev.Creator)).
		Msg("✨ token launched")
}

func (s *Service) handleTrade(ev *Event) {
	// The store enforces the token FK; a trade racing its own CREATE gets
	// dropped here rather than poisoning the batch.
	exists, err := s.db.TokenExists(ev.Mint)
	if err != nil || !exists {
		return
	}

	if err := s.db.InsertTrade(&storage.Trade{
		Signature:   ev.Signature,
		Slot:        int64(ev.Slot),
		BlockTime:   ev.BlockTime,
		Mint:        ev.Mint,
		Side:        ev.Side,
		Trader:      ev.Trader,
		TokenAmount: ev.TokenAmount,
		SolAmount:   ev.SolAmount,
		Price:       ev.Price,
		IsAMM:       ev.IsAMM,
	}); err != nil {
		log.Warn().Err(err).Str("sig", shortMint(ev.Signature)).Msg("trade insert failed")
		return
	}

	s.windows.ApplyTrade(ev)
	s.wallets.ApplyTrade(ev)

	nowMs := time.Now().UnixMilli()
	isAlpha := s.wallets.IsAlpha(ev.Trader)
	s.tracker.AddTrade(ev.Mint, nowMs, ev.SolAmount, ev.Price, ev.Trader, isAlpha)

	mcSol := ev.Price * 1_000_000_000
	s.tracker.UpdateMC(ev.Mint, nowMs, mcSol)

	if s.brainOut == nil {
		return
	}
	metrics := s.tracker.MetricsIfReady(ev.Mint, mcSol)
	if metrics == nil {
		return
	}
	s.emitTelemetry(ev.Mint, metrics)
}

func (s *Service) emitTelemetry(mint string, m *LiveMetrics) {
	raw, err := base58.Decode(mint)
	if err != nil || len(raw) != 32 {
		return
	}
	nowNs := uint64(time.Now().UnixNano())

	wm := &udp.WindowMetrics{
		VolumeSol1sScaled:  uint32(m.VolumeSol1s * 1000),
		UniqueBuyers1s:     m.UniqueBuyers1s,
		PriceChangeBps2s:   m.PriceChangeBps2s,
		AlphaWalletHits10s: m.AlphaWalletHits10s,
		TimestampNs:        nowNs,
	}
	copy(wm.Mint[:], raw)
	s.brainOut.Send(wm.Encode())

	if int(m.UniqueBuyers1s) >= s.momentumBuyers1s && m.VolumeSol1s >= s.momentumVolSol {
		md := &udp.MomentumDetected{
			Buys500ms:    m.UniqueBuyers1s,
			VolumeSol:    float32(m.VolumeSol1s),
			UniqueBuyers: m.UniqueBuyers1s,
			Confidence:   70,
			TimestampNs:  nowNs,
		}
		copy(md.Mint[:], raw)
		s.brainOut.Send(md.Encode())
	}

	if m.VolumeSol1s >= s.volumeSpikeSol {
		vs := &udp.VolumeSpike{
			TotalSol:    float32(m.VolumeSol1s),
			TxCount:     m.UniqueBuyers1s,
			WindowMs:    1000,
			Confidence:  75,
			TimestampNs: nowNs,
		}
		copy(vs.Mint[:], raw)
		s.brainOut.Send(vs.Encode())
	}
}
