package brain

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/storage"
)

// TradeOutcome closes a guardrail-tracked position.
type TradeOutcome int

const (
	OutcomeWin TradeOutcome = iota
	OutcomeLoss
)

// BlockReason labels a guardrail rejection for metrics.
type BlockReason string

const (
	BlockLossBackoff      BlockReason = "loss_backoff"
	BlockPositionLimit    BlockReason = "position_limit"
	BlockRateLimit        BlockReason = "rate_limit"
	BlockWalletCooling    BlockReason = "wallet_cooling"
	BlockCreatorRateLimit BlockReason = "creator_rate_limit"
)

// GuardrailBlock is a typed admission rejection.
type GuardrailBlock struct {
	Reason BlockReason
	Detail string
}

func (e *GuardrailBlock) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func blocked(reason BlockReason, format string, args ...interface{}) error {
	return &GuardrailBlock{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// GuardrailConfig carries the anti-churn thresholds.
type GuardrailConfig struct {
	LossBackoffWindowSecs  uint64
	LossBackoffThreshold   int
	LossBackoffPauseSecs   uint64
	MaxConcurrentPositions int
	MaxAdvisorPositions    int
	AdvisorRateLimitSecs   uint64
	MinDecisionIntervalMs  uint64
	WalletCoolingSecs      uint64
	TierABypassCooling     bool
	CreatorLimitWindowSecs uint64
	CreatorLimitCount      int
}

// DefaultGuardrailConfig matches production: 3 losses/180s → 120s pause, 3
// total positions, 2 advisor, 30s advisor spacing, 100ms global interval,
// 90s wallet cooling, 3 creator trades per 60s.
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		LossBackoffWindowSecs:  180,
		LossBackoffThreshold:   3,
		LossBackoffPauseSecs:   120,
		MaxConcurrentPositions: 3,
		MaxAdvisorPositions:    2,
		AdvisorRateLimitSecs:   30,
		MinDecisionIntervalMs:  100,
		WalletCoolingSecs:      90,
		TierABypassCooling:     true,
		CreatorLimitWindowSecs: 60,
		CreatorLimitCount:      3,
	}
}

type lossEntry struct {
	at   time.Time
	mint string
}

type walletCopyEntry struct {
	wallet        string
	at            time.Time
	wasProfitable bool
}

type creatorEntry struct {
	creator string
	at      time.Time
}

// Guardrails is the pre-decision admission layer. The creator rate limit is
// persisted to the store with 7-day retention; everything else is
// in-memory.
type Guardrails struct {
	cfg GuardrailConfig
	db  *storage.DB // nil disables persistence

	mu               sync.Mutex
	recentLosses     []lossEntry
	backoffUntil     time.Time
	openPositions    map[string]bool // mint → is_advisor
	lastAdvisorEntry time.Time
	lastDecision     time.Time
	walletCopies     []walletCopyEntry
	creatorTrades    []creatorEntry
}

// NewGuardrails builds the guardrail system, loading persisted creator
// history when a store is provided.
func NewGuardrails(cfg GuardrailConfig, db *storage.DB) *Guardrails {
	g := &Guardrails{
		cfg:           cfg,
		db:            db,
		openPositions: make(map[string]bool),
	}

	log.Info().
		Int("loss_threshold", cfg.LossBackoffThreshold).
		Uint64("loss_window", cfg.LossBackoffWindowSecs).
		Int("max_positions", cfg.MaxConcurrentPositions).
		Int("max_advisor", cfg.MaxAdvisorPositions).
		Uint64("wallet_cooling", cfg.WalletCoolingSecs).
		Msg("🛡️ guardrails initialized")

	if db != nil {
		entries, err := db.LoadCreatorTrades(time.Now().Add(-24 * time.Hour).Unix())
		if err != nil {
			log.Warn().Err(err).Msg("failed to load creator history")
		} else {
			for _, e := range entries {
				g.creatorTrades = append(g.creatorTrades, creatorEntry{
					creator: e.Creator,
					at:      time.Unix(e.TS, 0),
				})
			}
			if len(entries) > 0 {
				log.Info().Int("count", len(entries)).Msg("📚 creator trade history loaded")
			}
		}
	}
	return g
}

// CheckDecisionAllowed runs all admission rules. wallet and walletTier
// apply to copy trades; creator to any path where it is known.
func (g *Guardrails) CheckDecisionAllowed(trigger EntryTrigger, mint string,
	wallet string, walletTier WalletTier, creator string) error {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	// 1. Loss backoff.
	if now.Before(g.backoffUntil) {
		return blocked(BlockLossBackoff, "%.0fs remaining", g.backoffUntil.Sub(now).Seconds())
	}

	// 2. Position limits.
	total := len(g.openPositions)
	advisor := 0
	for _, isAdv := range g.openPositions {
		if isAdv {
			advisor++
		}
	}
	if total >= g.cfg.MaxConcurrentPositions {
		return blocked(BlockPositionLimit, "max positions reached: %d/%d", total, g.cfg.MaxConcurrentPositions)
	}
	if trigger.IsAdvisor() && advisor >= g.cfg.MaxAdvisorPositions {
		return blocked(BlockPositionLimit, "max advisor positions reached: %d/%d", advisor, g.cfg.MaxAdvisorPositions)
	}

	// 3. Rate limits.
	if trigger.IsAdvisor() && !g.lastAdvisorEntry.IsZero() {
		if elapsed := now.Sub(g.lastAdvisorEntry); elapsed < time.Duration(g.cfg.AdvisorRateLimitSecs)*time.Second {
			return blocked(BlockRateLimit, "advisor spacing: %.0fs since last", elapsed.Seconds())
		}
	}
	if !g.lastDecision.IsZero() {
		if elapsed := now.Sub(g.lastDecision); elapsed < time.Duration(g.cfg.MinDecisionIntervalMs)*time.Millisecond {
			return blocked(BlockRateLimit, "%dms since last decision", elapsed.Milliseconds())
		}
	}

	// 4. Wallet cooling (copy trades only). Tier-A wallets whose last copy
	// won may bypass.
	if trigger == TriggerCopyTrade && wallet != "" {
		cutoff := now.Add(-time.Duration(g.cfg.WalletCoolingSecs) * time.Second)
		g.walletCopies = retainCopies(g.walletCopies, cutoff)

		var last *walletCopyEntry
		for i := len(g.walletCopies) - 1; i >= 0; i-- {
			if g.walletCopies[i].wallet == wallet {
				last = &g.walletCopies[i]
				break
			}
		}
		if last != nil {
			bypass := walletTier == TierA && g.cfg.TierABypassCooling && last.wasProfitable
			if bypass {
				log.Debug().Msg("✅ Tier A wallet cooling bypassed")
			} else {
				return blocked(BlockWalletCooling, "%.0fs since last copy (%ds required)",
					now.Sub(last.at).Seconds(), g.cfg.WalletCoolingSecs)
			}
		}
	}

	// 5. Creator rate limit.
	if creator != "" {
		cutoff := now.Add(-time.Duration(g.cfg.CreatorLimitWindowSecs) * time.Second)
		g.creatorTrades = retainCreators(g.creatorTrades, cutoff)

		count := 0
		for _, e := range g.creatorTrades {
			if e.creator == creator {
				count++
			}
		}
		if count >= g.cfg.CreatorLimitCount {
			return blocked(BlockCreatorRateLimit, "%d trades in last %ds (max %d)",
				count, g.cfg.CreatorLimitWindowSecs, g.cfg.CreatorLimitCount)
		}
	}

	return nil
}

// RecordDecision registers a decision that passed admission.
func (g *Guardrails) RecordDecision(trigger EntryTrigger, mint, wallet, creator string) {
	now := time.Now()

	g.mu.Lock()
	g.lastDecision = now
	if trigger.IsAdvisor() {
		g.lastAdvisorEntry = now
	}
	if trigger == TriggerCopyTrade && wallet != "" {
		g.walletCopies = append(g.walletCopies, walletCopyEntry{wallet: wallet, at: now})
		if len(g.walletCopies) > 200 {
			g.walletCopies = g.walletCopies[len(g.walletCopies)-200:]
		}
	}
	if creator != "" {
		g.creatorTrades = append(g.creatorTrades, creatorEntry{creator: creator, at: now})
		if len(g.creatorTrades) > 500 {
			g.creatorTrades = g.creatorTrades[len(g.creatorTrades)-500:]
		}
	}
	g.mu.Unlock()

	if creator != "" && g.db != nil {
		if err := g.db.RecordCreatorTrade(creator, now.Unix()); err != nil {
			log.Warn().Err(err).Msg("failed to persist creator trade")
		}
	}
}

// AddConfirmedPosition tracks a position once its BUY confirms on-chain.
// Decisions alone never occupy a position slot.
func (g *Guardrails) AddConfirmedPosition(mint string, isAdvisor bool) {
	g.mu.Lock()
	g.openPositions[mint] = isAdvisor
	g.mu.Unlock()
	log.Debug().Str("mint", shortStr(mint, 8)).Msg("📊 guardrails: confirmed position added")
}

// RemoveConfirmedPosition drops a position on SELL confirmation.
func (g *Guardrails) RemoveConfirmedPosition(mint string) {
	g.mu.Lock()
	delete(g.openPositions, mint)
	g.mu.Unlock()
}

// RecordOutcome updates loss backoff and wallet-profit marks.
func (g *Guardrails) RecordOutcome(mint string, outcome TradeOutcome, wallet string) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.openPositions, mint)

	if outcome == OutcomeWin {
		if wallet != "" {
			for i := len(g.walletCopies) - 1; i >= 0; i-- {
				if g.walletCopies[i].wallet == wallet {
					g.walletCopies[i].wasProfitable = true
					break
				}
			}
		}
		log.Info().Str("mint", shortStr(mint, 8)).Msg("✅ win recorded")
		return
	}

	g.recentLosses = append(g.recentLosses, lossEntry{at: now, mint: mint})
	cutoff := now.Add(-time.Duration(g.cfg.LossBackoffWindowSecs) * time.Second)
	kept := g.recentLosses[:0]
	for _, l := range g.recentLosses {
		if !l.at.Before(cutoff) {
			kept = append(kept, l)
		}
	}
	g.recentLosses = kept

	if len(g.recentLosses) >= g.cfg.LossBackoffThreshold {
		g.backoffUntil = now.Add(time.Duration(g.cfg.LossBackoffPauseSecs) * time.Second)
		g.recentLosses = nil
		log.Warn().
			Uint64("pause_secs", g.cfg.LossBackoffPauseSecs).
			Msg("⚠️ LOSS BACKOFF TRIGGERED")
		return
	}
	log.Info().
		Str("mint", shortStr(mint, 8)).
		Int("recent_losses", len(g.recentLosses)).
		Msg("❌ loss recorded")
}

// GuardrailStats is a snapshot for the health endpoint.
type GuardrailStats struct {
	OpenPositions       int
	AdvisorPositions    int
	BackoffRemainingSec int
	RecentLosses        int
	WalletCopiesTracked int
}

// Stats snapshots the current state.
func (g *Guardrails) Stats() GuardrailStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	advisor := 0
	for _, isAdv := range g.openPositions {
		if isAdv {
			advisor++
		}
	}
	remaining := 0
	if until := time.Until(g.backoffUntil); until > 0 {
		remaining = int(until.Seconds())
	}
	return GuardrailStats{
		OpenPositions:       len(g.openPositions),
		AdvisorPositions:    advisor,
		BackoffRemainingSec: remaining,
		RecentLosses:        len(g.recentLosses),
		WalletCopiesTracked: len(g.walletCopies),
	}
}

// CleanupPersisted trims creator history beyond the 7-day retention.
func (g *Guardrails) CleanupPersisted() {
	if g.db == nil {
		return
	}
	if deleted, err := g.db.CleanupCreatorTrades(7 * 24 * time.Hour); err == nil && deleted > 0 {
		log.Debug().Int64("deleted", deleted).Msg("🧹 cleaned up old creator trades")
	}
}

func retainCopies(entries []walletCopyEntry, cutoff time.Time) []walletCopyEntry {
	kept := entries[:0]
	for _, e := range entries {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

func retainCreators(entries []creatorEntry, cutoff time.Time) []creatorEntry {
	kept := entries[:0]
	for _, e := range entries {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}
