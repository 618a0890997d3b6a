package brain

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StateKind enumerates the per-mint trade lifecycle. Transitions are
// monotonic; Idle is the only state permitting a new BUY and Holding the
// only one permitting a SELL.
type StateKind int

const (
	StateIdle StateKind = iota
	StateBuyPending
	StateHolding
	StateSellPending
	StateClosed
)

func (s StateKind) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuyPending:
		return "buy_pending"
	case StateHolding:
		return "holding"
	case StateSellPending:
		return "sell_pending"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// CloseReason records why a trade closed.
type CloseReason int

const (
	CloseConfirmed CloseReason = iota
	CloseFailed
	CloseTimeout
)

func (r CloseReason) String() string {
	switch r {
	case CloseConfirmed:
		return "confirmed"
	case CloseFailed:
		return "failed"
	case CloseTimeout:
		return "timeout"
	}
	return "unknown"
}

// TradeState is one mint's lifecycle entry.
type TradeState struct {
	Kind        StateKind
	TradeID     string
	ChangedAt   time.Time
	EntryPrice  float64
	CloseReason CloseReason
}

// CanBuy reports whether a new BUY may leave this state.
func (s *TradeState) CanBuy() bool { return s.Kind == StateIdle }

// CanSell reports whether a SELL may leave this state.
func (s *TradeState) CanSell() bool { return s.Kind == StateHolding }

// IsPending reports whether the state awaits a confirmation.
func (s *TradeState) IsPending() bool {
	return s.Kind == StateBuyPending || s.Kind == StateSellPending
}

// Age returns how long the state has been current.
func (s *TradeState) Age() time.Duration {
	if s.Kind == StateIdle {
		return 0
	}
	return time.Since(s.ChangedAt)
}

// TradeStateTracker holds per-mint trade states and enforces the
// Idle → BuyPending → Holding → SellPending → Closed machine.
type TradeStateTracker struct {
	mu          sync.Mutex
	states      map[string]*TradeState
	buyTimeout  time.Duration
	sellTimeout time.Duration
}

// NewTradeStateTracker builds a tracker with pending-confirmation timeouts.
func NewTradeStateTracker(buyTimeout, sellTimeout time.Duration) *TradeStateTracker {
	if buyTimeout <= 0 {
		buyTimeout = 10 * time.Second
	}
	if sellTimeout <= 0 {
		sellTimeout = 15 * time.Second
	}
	return &TradeStateTracker{
		states:      make(map[string]*TradeState),
		buyTimeout:  buyTimeout,
		sellTimeout: sellTimeout,
	}
}

// State returns the current state for a mint (Idle when untracked).
func (t *TradeStateTracker) State(mint string) TradeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[mint]; ok {
		return *s
	}
	return TradeState{Kind: StateIdle}
}

// CanBuy reports whether a BUY decision may be emitted for a mint.
func (t *TradeStateTracker) CanBuy(mint string) bool {
	s := t.State(mint)
	return s.CanBuy()
}

// CanSell reports whether a SELL decision may be emitted for a mint.
func (t *TradeStateTracker) CanSell(mint string) bool {
	s := t.State(mint)
	return s.CanSell()
}

// MarkBuyPending transitions Idle → BuyPending. Refused from any other
// state.
func (t *TradeStateTracker) MarkBuyPending(mint, tradeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.states[mint]; ok && s.Kind != StateIdle {
		log.Warn().Str("mint", shortStr(mint, 12)).Str("state", s.Kind.String()).
			Msg("⚠️ refused BuyPending transition")
		return false
	}
	t.states[mint] = &TradeState{Kind: StateBuyPending, TradeID: tradeID, ChangedAt: time.Now()}
	log.Info().Str("mint", shortStr(mint, 12)).Str("trade_id", shortStr(tradeID, 8)).Msg("🟡 → BuyPending")
	return true
}

// MarkHolding transitions BuyPending → Holding on a confirmed BUY. The
// trade id must match the pending one.
func (t *TradeStateTracker) MarkHolding(mint, tradeID string, entryPrice float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[mint]
	if !ok || s.Kind != StateBuyPending {
		log.Warn().Str("mint", shortStr(mint, 12)).Msg("⚠️ refused Holding transition")
		return false
	}
	if s.TradeID != tradeID {
		log.Warn().
			Str("expected", shortStr(s.TradeID, 8)).
			Str("got", shortStr(tradeID, 8)).
			Msg("⚠️ trade_id mismatch")
		return false
	}
	t.states[mint] = &TradeState{Kind: StateHolding, TradeID: tradeID, ChangedAt: time.Now(), EntryPrice: entryPrice}
	log.Info().Str("mint", shortStr(mint, 12)).Float64("price", entryPrice).Msg("🟢 → Holding")
	return true
}

// MarkSellPending transitions Holding → SellPending.
func (t *TradeStateTracker) MarkSellPending(mint, tradeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[mint]
	if !ok || s.Kind != StateHolding {
		log.Warn().Str("mint", shortStr(mint, 12)).Msg("⚠️ refused SellPending transition")
		return false
	}
	t.states[mint] = &TradeState{Kind: StateSellPending, TradeID: tradeID, ChangedAt: time.Now(), EntryPrice: s.EntryPrice}
	log.Info().Str("mint", shortStr(mint, 12)).Msg("🟠 → SellPending")
	return true
}

// MarkClosed transitions any state to Closed with a reason.
func (t *TradeStateTracker) MarkClosed(mint, tradeID string, reason CloseReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[mint] = &TradeState{Kind: StateClosed, TradeID: tradeID, ChangedAt: time.Now(), CloseReason: reason}
	log.Info().Str("mint", shortStr(mint, 12)).Str("reason", reason.String()).Msg("⚫ → Closed")
}

// MarkBuyFailed closes a BuyPending trade as failed. Refused elsewhere.
func (t *TradeStateTracker) MarkBuyFailed(mint, tradeID string) {
	t.mu.Lock()
	s, ok := t.states[mint]
	if !ok || s.Kind != StateBuyPending {
		t.mu.Unlock()
		log.Warn().Str("mint", shortStr(mint, 12)).Msg("⚠️ cannot mark BUY failed")
		return
	}
	t.mu.Unlock()
	t.MarkClosed(mint, tradeID, CloseFailed)
}

// CheckTimeouts closes pending states older than their timeout.
func (t *TradeStateTracker) CheckTimeouts() int {
	type timeoutEntry struct {
		mint    string
		tradeID string
	}
	var expired []timeoutEntry

	t.mu.Lock()
	for mint, s := range t.states {
		limit := t.buyTimeout
		if s.Kind == StateSellPending {
			limit = t.sellTimeout
		} else if s.Kind != StateBuyPending {
			continue
		}
		if time.Since(s.ChangedAt) > limit {
			expired = append(expired, timeoutEntry{mint: mint, tradeID: s.TradeID})
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		log.Warn().Str("mint", shortStr(e.mint, 12)).Msg("⏰ pending state timed out")
		t.MarkClosed(e.mint, e.tradeID, CloseTimeout)
	}
	return len(expired)
}

// StalePending lists pending entries older than the threshold, for the
// reconciliation sweep.
func (t *TradeStateTracker) StalePending(threshold time.Duration) []struct {
	Mint    string
	TradeID string
} {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []struct {
		Mint    string
		TradeID string
	}
	for mint, s := range t.states {
		if !s.IsPending() || time.Since(s.ChangedAt) <= threshold {
			continue
		}
		out = append(out, struct {
			Mint    string
			TradeID string
		}{Mint: mint, TradeID: s.TradeID})
	}
	return out
}

// ReconcileState resolves a stale pending entry from the reconciler's
// confirmed/not-confirmed answer.
func (t *TradeStateTracker) ReconcileState(mint, tradeID string, confirmedOnChain bool) {
	state := t.State(mint)
	switch state.Kind {
	case StateBuyPending:
		if confirmedOnChain {
			log.Info().Str("mint", shortStr(mint, 12)).Msg("✅ reconciled: BUY confirmed on-chain")
			t.MarkHolding(mint, tradeID, 0) // price unknown during reconciliation
		} else {
			log.Warn().Str("mint", shortStr(mint, 12)).Msg("❌ reconciled: BUY not found on-chain")
			t.MarkBuyFailed(mint, tradeID)
		}
	case StateSellPending:
		if confirmedOnChain {
			t.MarkClosed(mint, tradeID, CloseConfirmed)
		} else {
			t.MarkClosed(mint, tradeID, CloseFailed)
		}
	default:
		log.Debug().Str("mint", shortStr(mint, 12)).Str("state", state.Kind.String()).Msg("reconciliation skipped")
	}
}

// CleanupClosed garbage-collects Closed entries older than 5 minutes so the
// mint becomes eligible for a fresh trade.
func (t *TradeStateTracker) CleanupClosed() int {
	cutoff := 5 * time.Minute
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for mint, s := range t.states {
		if s.Kind == StateClosed && time.Since(s.ChangedAt) > cutoff {
			delete(t.states, mint)
			removed++
		}
	}
	return removed
}

// Stats returns counts by state.
func (t *TradeStateTracker) Stats() (buyPending, holding, sellPending, closed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.states {
		switch s.Kind {
		case StateBuyPending:
			buyPending++
		case StateHolding:
			holding++
		case StateSellPending:
			sellPending++
		case StateClosed:
			closed++
		}
	}
	return
}
