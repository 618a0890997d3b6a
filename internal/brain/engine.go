package brain

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/metrics"
	"solana-pump-pipeline/internal/solprice"
	"solana-pump-pipeline/internal/udp"
)

// LatencyTrace is the per-decision timing record: written once per decision
// and closed when the confirmation lands.
type LatencyTrace struct {
	ID       uuid.UUID
	DetectNs int64
	DecideNs int64
	BuildNs  int64
	SendNs   int64
	LandNs   int64
	ConfirmNs int64
	Slot     uint64
}

// pendingDecision carries what the engine needs to finish a trade's
// lifecycle once the Executor confirms it.
type pendingDecision struct {
	mint       string
	trigger    EntryTrigger
	sizeSol    float64
	entryPrice float64
	wallet     string
	creator    string
	trace      *LatencyTrace
}

// Reconciler answers whether a trade confirmed on-chain, for stale-pending
// resolution. The brain binary wires one that reports every stale pending as
// not confirmed; it does not query the chain.
type Reconciler func(ctx context.Context, mint, tradeID string) (confirmed bool, err error)

// EngineConfig carries the engine-level knobs not owned by a subcomponent.
type EngineConfig struct {
	MinDecisionConf        uint8
	AdviceDrainPerTick     int
	ReconciliationInterval time.Duration
	StaleStateThreshold    time.Duration
}

// Engine is the Brain's decision core: advisories and confirmations in,
// validated TradeDecisions out.
type Engine struct {
	cfg        EngineConfig
	cache      *FeatureCache
	scorer     *FollowThroughScorer
	triggers   *TriggerEngine
	guardrails *Guardrails
	sizer      *PositionSizer
	states     *TradeStateTracker
	book       *PositionBook
	exits      *ExitMonitor
	logger     *DecisionLogger
	decisions  *udp.Publisher
	latency    *metrics.LatencySampler
	reconciler Reconciler

	// hotlist ranking: mint → latest early score, for rank assignment.
	earlyScores map[string]earlyScore

	pending map[string]*pendingDecision // trade_id hex → pending

	// PositionUpdate ordering: drop packets older than the last seen.
	lastUpdateNs map[string]uint64
}

type earlyScore struct {
	score float64
	at    time.Time
}

// NewEngine wires the decision core.
func NewEngine(cfg EngineConfig, cache *FeatureCache, scorer *FollowThroughScorer,
	triggers *TriggerEngine, guardrails *Guardrails, sizer *PositionSizer,
	states *TradeStateTracker, book *PositionBook, exits *ExitMonitor,
	logger *DecisionLogger, decisions *udp.Publisher, reconciler Reconciler) *Engine {
	if cfg.AdviceDrainPerTick <= 0 {
		cfg.AdviceDrainPerTick = 32
	}
	if cfg.ReconciliationInterval <= 0 {
		cfg.ReconciliationInterval = 30 * time.Second
	}
	if cfg.StaleStateThreshold <= 0 {
		cfg.StaleStateThreshold = 20 * time.Second
	}
	return &Engine{
		cfg:          cfg,
		cache:        cache,
		scorer:       scorer,
		triggers:     triggers,
		guardrails:   guardrails,
		sizer:        sizer,
		states:       states,
		book:         book,
		exits:        exits,
		logger:       logger,
		decisions:    decisions,
		latency:      metrics.NewLatencySampler(100),
		reconciler:   reconciler,
		earlyScores:  make(map[string]earlyScore),
		pending:      make(map[string]*pendingDecision),
		lastUpdateNs: make(map[string]uint64),
	}
}

// Latency exposes the decision latency sampler for the health endpoint.
func (e *Engine) Latency() *metrics.LatencySampler { return e.latency }

// Run drives the engine's loops until ctx is done.
func (e *Engine) Run(ctx context.Context, advice *udp.AdviceListener, confirms <-chan []byte) {
	exitCh := make(chan ExitRequest, 64)
	go e.exits.Run(ctx, exitCh)

	adviceTicker := time.NewTicker(5 * time.Millisecond)
	defer adviceTicker.Stop()
	sweepTicker := time.NewTicker(time.Second)
	defer sweepTicker.Stop()
	reconcileTicker := time.NewTicker(e.cfg.ReconciliationInterval)
	defer reconcileTicker.Stop()
	cleanupTicker := time.NewTicker(time.Minute)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-adviceTicker.C:
			for _, adv := range advice.Drain(e.cfg.AdviceDrainPerTick) {
				e.handleAdvisory(adv)
			}

		case pkt := <-confirms:
			e.handleConfirmPacket(pkt)

		case req := <-exitCh:
			e.handleExit(req)

		case <-sweepTicker.C:
			e.states.CheckTimeouts()
			e.pruneEarlyScores()

		case <-reconcileTicker.C:
			e.reconcileStale(ctx)

		case <-cleanupTicker.C:
			e.states.CleanupClosed()
			e.guardrails.CleanupPersisted()
		}
	}
}

// ---- advisory handling ----

func (e *Engine) handleAdvisory(adv *udp.Advisory) {
	detectNs := time.Now().UnixNano()

	switch adv.Type {
	case udp.AdvisorySolPriceUpdate:
		solprice.Set(adv.PriceCents)
		metrics.SolPriceUSD.Set(float64(adv.PriceCents) / 100)

	case udp.AdvisoryCopyTrade:
		e.tryCopyTrade(adv, detectNs)

	case udp.AdvisoryLateOpportunity:
		mint := adv.MintStr()
		score := float64(adv.Score) / 100.0 * 15.0
		e.earlyScores[mint] = earlyScore{score: score, at: time.Now()}
		e.tryHotEntry(mint, detectNs)

	case udp.AdvisoryEmergencyExit:
		mint := adv.MintStr()
		if e.book.ApplyAdvisory(mint, func(p *Position) { p.EmergencyExit = true }) {
			log.Warn().Str("mint", shortStr(mint, 8)).Msg("🚨 emergency exit armed")
		}

	case udp.AdvisoryWidenExit:
		mint := adv.MintStr()
		ttl := time.Duration(adv.TTLMs) * time.Millisecond
		e.book.ApplyAdvisory(mint, func(p *Position) {
			p.WidenedSlipBps = adv.SellSlipBps
			p.WidenedUntil = time.Now().Add(ttl)
		})

	case udp.AdvisoryExtendHold:
		mint := adv.MintStr()
		e.book.ApplyAdvisory(mint, func(p *Position) {
			p.ExtendedHoldSecs += uint64(adv.ExtraSecs)
		})
	}
}

// rankForMint derives the rank of a mint among the live early scores:
// 1 + how many currently score higher.
func (e *Engine) rankForMint(mint string) uint8 {
	mine, ok := e.earlyScores[mint]
	if !ok {
		return 255
	}
	rank := 1
	for other, s := range e.earlyScores {
		if other != mint && s.score > mine.score {
			rank++
		}
	}
	if rank > 255 {
		rank = 255
	}
	return uint8(rank)
}

func (e *Engine) pruneEarlyScores() {
	cutoff := time.Now().Add(-60 * time.Second)
	for mint, s := range e.earlyScores {
		if s.at.Before(cutoff) {
			delete(e.earlyScores, mint)
		}
	}
}

// tryHotEntry evaluates paths A and B for a hot mint, falling through to
// path D only when neither fired.
func (e *Engine) tryHotEntry(mint string, detectNs int64) {
	features := e.usableFeatures(mint)
	if features == nil {
		return
	}

	components := e.scorer.Calculate(features)
	features.FollowThroughScore = components.TotalScore
	e.cache.SetMint(mint, features)

	early := e.earlyScores[mint].score
	rank := e.rankForMint(mint)

	// Path A first, then B; D is lower priority and aborted when either
	// fired this tick.
	if e.attemptEntry(TriggerRank, mint, features, "", 0, rank, early, detectNs) {
		return
	}
	if e.attemptEntry(TriggerMomentum, mint, features, "", 0, rank, early, detectNs) {
		return
	}
	e.attemptEntry(TriggerLateOpportunity, mint, features, "", 0, rank, early, detectNs)
}

func (e *Engine) tryCopyTrade(adv *udp.Advisory, detectNs int64) {
	mint := adv.MintStr()
	walletStr := base58.Encode(adv.Wallet[:])

	features := e.usableFeatures(mint)
	if features == nil {
		return
	}

	wallet := e.cache.Wallet(walletStr)
	if wallet == nil || wallet.IsStale() {
		log.Debug().Str("wallet", shortStr(walletStr, 8)).Msg("wallet features missing or stale")
		return
	}

	components := e.scorer.CalculateWithWallets(features, []*WalletFeatures{wallet})
	features.FollowThroughScore = components.TotalScore
	e.cache.SetMint(mint, features)

	e.attemptEntry(TriggerCopyTrade, mint, features, walletStr, float64(adv.TradeSizeSol),
		255, e.earlyScores[mint].score, detectNs)
}

// usableFeatures returns fresh features for a mint, or nil (a cache miss or
// staleness rejects the opportunity without blocking anything).
func (e *Engine) usableFeatures(mint string) *MintFeatures {
	f := e.cache.Mint(mint)
	if f == nil {
		log.Debug().Str("mint", shortStr(mint, 8)).Msg("feature cache miss")
		return nil
	}
	if f.IsStale() {
		log.Debug().Str("mint", shortStr(mint, 8)).Msg("stale features, skipping opportunity")
		return nil
	}
	clone := *f
	return &clone
}

// attemptEntry runs one path end to end. Returns true when a decision was
// emitted.
func (e *Engine) attemptEntry(trigger EntryTrigger, mint string, features *MintFeatures,
	walletStr string, walletTradeSizeSol float64, rank uint8, early float64, detectNs int64) bool {
	creator := features.Creator

	if !e.states.CanBuy(mint) {
		return false
	}

	var walletTier WalletTier
	var walletFeatures *WalletFeatures
	if walletStr != "" {
		walletFeatures = e.cache.Wallet(walletStr)
		if walletFeatures != nil {
			walletTier = walletFeatures.Tier
		}
	}

	if err := e.guardrails.CheckDecisionAllowed(trigger, mint, walletStr, walletTier, creator); err != nil {
		var block *GuardrailBlock
		if errors.As(err, &block) {
			metrics.GuardrailBlocks.WithLabelValues(string(block.Reason)).Inc()
		}
		log.Debug().Err(err).Str("path", trigger.String()).Msg("guardrail block")
		return false
	}

	// The path's base size scales with the hotlist early score; copy-trade
	// sizes off the copied wallet instead.
	var validated *ValidatedTrade
	var err error
	switch trigger {
	case TriggerRank:
		validated, err = e.triggers.TryRankBased(rank, mint, features, creator,
			e.triggers.PositionSizeForScore(early, TriggerRank))
	case TriggerMomentum:
		validated, err = e.triggers.TryMomentum(mint, features, creator,
			e.triggers.PositionSizeForScore(early, TriggerMomentum))
	case TriggerCopyTrade:
		validated, err = e.triggers.TryCopyTrade(mint, features, walletFeatures, walletTradeSizeSol, creator)
	case TriggerLateOpportunity:
		validated, err = e.triggers.TryLateOpportunity(mint, features, creator,
			e.triggers.PositionSizeForScore(early, TriggerLateOpportunity))
	}
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			metrics.RejectedValidation.WithLabelValues(string(vErr.Reason)).Inc()
			log.Debug().Err(err).Str("path", trigger.String()).Msg("validation rejected")
		}
		return false
	}

	confidence := validated.FollowThroughScore
	if confidence < e.triggers.MinDecisionConf(trigger) || confidence < e.cfg.MinDecisionConf {
		return false
	}

	decideNs := time.Now().UnixNano()

	// The configured sizing strategy sets the portfolio envelope; the
	// path's early-score-scaled base applies within it.
	exposure := e.book.TotalExposureSol()
	maxPositions := e.guardrails.cfg.MaxConcurrentPositions
	sizeSol := validated.SizeUSD
	if strategySize := e.sizer.CalculateSize(confidence, e.book.Count(), maxPositions, exposure); sizeSol > strategySize {
		sizeSol = strategySize
	}
	util := e.sizer.PortfolioUtilization(exposure)
	slippage := DynamicSlippageBps(util, confidence)
	validated.SizeSol = sizeSol
	validated.SlippageBps = slippage
	if features.CurrentPrice > 0 {
		validated.SizeLamports = uint64(sizeSol * 1e9 / features.CurrentPrice)
	}

	tradeUUID := uuid.New()
	var tradeID [16]byte
	copy(tradeID[:], tradeUUID[:])
	tradeIDHex := hex.EncodeToString(tradeID[:])

	if !e.states.MarkBuyPending(mint, tradeIDHex) {
		return false
	}

	decision, err := e.triggers.ToTradeDecision(validated, trigger, tradeID)
	if err != nil {
		log.Warn().Err(err).Msg("decision encode failed")
		e.states.MarkClosed(mint, tradeIDHex, CloseFailed)
		return false
	}
	buildNs := time.Now().UnixNano()

	e.decisions.Send(decision.Encode())
	sendNs := time.Now().UnixNano()

	e.guardrails.RecordDecision(trigger, mint, walletStr, creator)
	e.pending[tradeIDHex] = &pendingDecision{
		mint:       mint,
		trigger:    trigger,
		sizeSol:    sizeSol,
		entryPrice: features.CurrentPrice,
		wallet:     walletStr,
		creator:    creator,
		trace: &LatencyTrace{
			ID:       tradeUUID,
			DetectNs: detectNs,
			DecideNs: decideNs,
			BuildNs:  buildNs,
			SendNs:   sendNs,
		},
	}

	metrics.Decisions.WithLabelValues(trigger.String(), "buy").Inc()
	metrics.DecisionLatency.Observe(float64(sendNs-detectNs) / 1e9)
	e.latency.Record((sendNs - detectNs) / 1000)

	e.logDecision(decision, validated, trigger, rank, walletStr, walletTier)

	log.Info().
		Str("path", trigger.String()).
		Str("mint", shortStr(mint, 8)).
		Float64("size_sol", sizeSol).
		Uint16("slippage_bps", slippage).
		Uint8("confidence", confidence).
		Msg("🚀 BUY decision sent")
	return true
}

func (e *Engine) logDecision(d *udp.TradeDecision, v *ValidatedTrade, trigger EntryTrigger,
	rank uint8, walletStr string, walletTier WalletTier) {
	if e.logger == nil {
		return
	}
	entry := DecisionLogEntry{
		Timestamp:          time.Now().Unix(),
		MintHex:            mintHex(d.Mint),
		Trigger:            trigger,
		Side:               d.Side,
		PredictedFeesUSD:   v.EstimatedFeesUSD,
		PredictedImpactUSD: v.SizeUSD * v.EstimatedImpactPct / 100,
		TPUSD:              v.MinProfitTargetUSD,
		FollowThroughScore: v.FollowThroughScore,
		SizeSol:            v.SizeSol,
		SizeUSD:            v.SizeUSD,
		Confidence:         d.Confidence,
		ExpectedEVUSD:      v.ExpectedValueUSD,
		SuccessProbability: v.SuccessProbability,
	}
	if trigger == TriggerRank {
		r := rank
		entry.Rank = &r
	}
	if walletStr != "" {
		if raw, err := base58.Decode(walletStr); err == nil {
			entry.WalletHex = hex.EncodeToString(raw)
		}
		tier := uint8(walletTier)
		entry.WalletTier = &tier
	}
	if _, err := e.logger.Log(entry); err != nil {
		log.Warn().Err(err).Msg("decision log write failed")
	}
}

// ---- confirmation handling ----

func (e *Engine) handleConfirmPacket(pkt []byte) {
	if len(pkt) == 0 {
		return
	}
	switch pkt[0] {
	case udp.TypeTxConfirmed:
		if c, err := udp.DecodeTxConfirmed(pkt); err == nil {
			e.handleConfirmation(base58.Encode(c.Mint[:]), hex.EncodeToString(c.TradeID[:]), c.Side, c.Status, c.Slot, 0)
		} else {
			metrics.ParseErrors.WithLabelValues("confirm_port").Inc()
		}

	case udp.TypeTxConfirmedContext:
		ctx, err := udp.DecodeTxConfirmedContext(pkt)
		if err != nil {
			metrics.ParseErrors.WithLabelValues("confirm_port").Inc()
			return
		}
		mint := base58.Encode(ctx.Mint[:])
		e.handleConfirmation(mint, hex.EncodeToString(ctx.TradeID[:]), ctx.Side, ctx.Status, ctx.Slot, ctx.RealizedPnLUSD())
		// Δ-window context refreshes the live price view.
		if ctx.EntryPriceLamports > 0 && ctx.PriceChangeBpsDelta != 0 {
			price := float64(ctx.EntryPriceLamports) * (1 + float64(ctx.PriceChangeBpsDelta)/10000) / 1e9
			e.book.UpdatePrice(mint, price)
		}

	case udp.TypePositionUpdate:
		update, err := udp.DecodePositionUpdate(pkt)
		if err != nil {
			metrics.ParseErrors.WithLabelValues("confirm_port").Inc()
			return
		}
		mint := base58.Encode(update.Mint[:])
		if update.TimestampNs <= e.lastUpdateNs[mint] {
			return // out-of-order snapshot, drop
		}
		e.lastUpdateNs[mint] = update.TimestampNs
		e.book.UpdatePrice(mint, float64(update.CurrentPriceLamports)/1e9)

	case udp.TypeManualExit:
		exit, err := udp.DecodeManualExit(pkt)
		if err != nil {
			metrics.ParseErrors.WithLabelValues("confirm_port").Inc()
			return
		}
		e.handleManualExit(exit)

	case udp.TypeExitAdvice:
		advice, err := udp.DecodeExitAdvice(pkt)
		if err != nil {
			metrics.ParseErrors.WithLabelValues("confirm_port").Inc()
			return
		}
		mint := base58.Encode(advice.Mint[:])
		if !e.book.Has(mint) {
			return
		}
		log.Info().
			Str("mint", shortStr(mint, 8)).
			Str("reason", advice.ReasonStr()).
			Uint8("confidence", advice.Confidence).
			Msg("📨 exit advice received")
		reason := ExitProfitTarget
		if advice.Reason == udp.ReasonStopLoss {
			reason = ExitStopLoss
		}
		pos := e.book.Get(mint)
		e.handleExit(ExitRequest{
			Mint:        mint,
			Reason:      reason,
			ExitPct:     pos.RemainingPct,
			Stage:       -1,
			SlippageBps: 300,
		})

	case udp.TypeWindowMetrics:
		if wm, err := udp.DecodeWindowMetrics(pkt); err == nil {
			mint := base58.Encode(wm.Mint[:])
			e.cache.PatchMintTelemetry(mint, uint32(wm.UniqueBuyers1s), wm.VolumeSol1s())
		}

	case udp.TypeMomentumDetected:
		if md, err := udp.DecodeMomentumDetected(pkt); err == nil {
			mint := base58.Encode(md.Mint[:])
			e.cache.PatchMintTelemetry(mint, uint32(md.UniqueBuyers), float64(md.VolumeSol))
			e.tryHotEntry(mint, time.Now().UnixNano())
		}

	case udp.TypeVolumeSpike:
		if vs, err := udp.DecodeVolumeSpike(pkt); err == nil {
			mint := base58.Encode(vs.Mint[:])
			e.cache.PatchMintTelemetry(mint, uint32(vs.TxCount), float64(vs.TotalSol))
		}

	case udp.TypeWalletActivity:
		// Tracked-wallet telemetry. The copy-trade path is driven by the
		// advice bus; this record is observational only.
		if wa, err := udp.DecodeWalletActivity(pkt); err == nil {
			log.Debug().
				Str("wallet", shortStr(base58.Encode(wa.Wallet[:]), 8)).
				Str("mint", shortStr(base58.Encode(wa.Mint[:]), 8)).
				Str("action", udp.SideString(wa.Action)).
				Msg("tracked wallet activity")
		}

	default:
		metrics.ParseErrors.WithLabelValues("confirm_port").Inc()
	}
}

func (e *Engine) handleConfirmation(mint, tradeIDHex string, side, status byte, slot uint64, realizedPnLUSD float64) {
	pend := e.pending[tradeIDHex]

	if side == udp.SideBuy {
		if status == udp.StatusSuccess {
			entryPrice := 0.0
			trigger := TriggerRank
			sizeSol := 0.0
			wallet := ""
			if pend != nil {
				entryPrice = pend.entryPrice
				trigger = pend.trigger
				sizeSol = pend.sizeSol
				wallet = pend.wallet
				pend.trace.ConfirmNs = time.Now().UnixNano()
				pend.trace.Slot = slot
				log.Debug().
					Str("trace", pend.trace.ID.String()).
					Int64("detect_to_confirm_ms", (pend.trace.ConfirmNs-pend.trace.DetectNs)/1e6).
					Msg("latency trace closed")
			}
			if e.states.MarkHolding(mint, tradeIDHex, entryPrice) {
				e.book.Open(&Position{
					Mint:        mint,
					TradeID:     tradeIDFromHex(tradeIDHex),
					Trigger:     trigger,
					EntryTime:   time.Now(),
					EntryPrice:  entryPrice,
					SizeSol:     sizeSol,
					MaxHoldSecs: e.triggers.MaxHoldSecs(trigger),
					Wallet:      wallet,
					LastPrice:   entryPrice,
					LastUpdate:  time.Now(),
				})
				e.guardrails.AddConfirmedPosition(mint, trigger.IsAdvisor())
				metrics.ActivePositions.WithLabelValues("brain").Set(float64(e.book.Count()))
			}
		} else {
			e.states.MarkBuyFailed(mint, tradeIDHex)
		}
		delete(e.pending, tradeIDHex)
		return
	}

	// SELL confirmation closes the lifecycle.
	reason := CloseConfirmed
	if status == udp.StatusFailed {
		reason = CloseFailed
	}
	e.states.MarkClosed(mint, tradeIDHex, reason)

	if status != udp.StatusSuccess {
		return
	}
	pos := e.book.Close(mint)
	e.guardrails.RemoveConfirmedPosition(mint)
	metrics.ActivePositions.WithLabelValues("brain").Set(float64(e.book.Count()))
	if pos == nil {
		return // repeat confirmation: the position is already closed
	}

	outcome := OutcomeLoss
	if realizedPnLUSD > 0 || (realizedPnLUSD == 0 && pos != nil && pos.PnLPercent() > 0) {
		outcome = OutcomeWin
	}
	wallet := ""
	if pos != nil {
		wallet = pos.Wallet
	}
	e.guardrails.RecordOutcome(mint, outcome, wallet)
	e.sizer.RecordOutcome(outcome)
	if outcome == OutcomeWin {
		metrics.Outcomes.WithLabelValues("win").Inc()
	} else {
		metrics.Outcomes.WithLabelValues("loss").Inc()
	}
}

func (e *Engine) handleManualExit(exit *udp.ManualExit) {
	mint := base58.Encode(exit.Mint[:])
	pos := e.book.Close(mint)
	if pos == nil {
		return
	}
	tradeIDHex := hex.EncodeToString(exit.TradeID[:])
	e.states.MarkClosed(mint, tradeIDHex, CloseConfirmed)
	e.guardrails.RemoveConfirmedPosition(mint)

	outcome := OutcomeLoss
	if exit.RealizedPnLUSD > 0 {
		outcome = OutcomeWin
	}
	e.guardrails.RecordOutcome(mint, outcome, pos.Wallet)
	e.sizer.RecordOutcome(outcome)

	log.Info().
		Str("mint", shortStr(mint, 8)).
		Float32("pnl_usd", exit.RealizedPnLUSD).
		Float32("pnl_pct", exit.PnLPercent).
		Msg("📨 manual exit processed")
}

// ---- exits ----

func (e *Engine) handleExit(req ExitRequest) {
	pos := e.book.Get(req.Mint)
	if pos == nil {
		return
	}
	if !e.states.CanSell(req.Mint) {
		log.Debug().Str("mint", shortStr(req.Mint, 8)).Msg("exit requested but state is not Holding")
		return
	}

	exitSizeSol := pos.SizeSol * req.ExitPct / 100.0
	amountLamports := uint64(exitSizeSol * 1e9)

	slippage := req.SlippageBps
	if slippage < 300 {
		slippage = 300
	}

	tradeUUID := uuid.New()
	var tradeID [16]byte
	copy(tradeID[:], tradeUUID[:])
	tradeIDHex := hex.EncodeToString(tradeID[:])

	fullExit := req.ExitPct >= pos.RemainingPct

	if fullExit {
		if !e.states.MarkSellPending(req.Mint, tradeIDHex) {
			return
		}
	}

	raw, err := base58.Decode(req.Mint)
	if err != nil || len(raw) != 32 {
		return
	}
	var mint [32]byte
	copy(mint[:], raw)

	decision := udp.NewSellDecision(mint, amountLamports, slippage, 90, tradeID)
	e.decisions.Send(decision.Encode())
	metrics.Decisions.WithLabelValues(string(req.Reason), "sell").Inc()

	if !fullExit {
		e.book.ReducePosition(req.Mint, req.ExitPct, req.Stage)
	}

	log.Info().
		Str("mint", shortStr(req.Mint, 8)).
		Str("reason", string(req.Reason)).
		Float64("exit_pct", req.ExitPct).
		Uint16("slippage_bps", slippage).
		Msg("📉 SELL decision sent")
}

// ---- reconciliation ----

func (e *Engine) reconcileStale(ctx context.Context) {
	if e.reconciler == nil {
		return
	}
	for _, stale := range e.states.StalePending(e.cfg.StaleStateThreshold) {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		confirmed, err := e.reconciler(checkCtx, stale.Mint, stale.TradeID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("mint", shortStr(stale.Mint, 8)).Msg("reconciliation query failed")
			continue
		}
		e.states.ReconcileState(stale.Mint, stale.TradeID, confirmed)
	}
}

func tradeIDFromHex(s string) [16]byte {
	var out [16]byte
	raw, err := hex.DecodeString(s)
	if err == nil && len(raw) == 16 {
		copy(out[:], raw)
	}
	return out
}
