package brain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastGuardrails() *Guardrails {
	cfg := DefaultGuardrailConfig()
	cfg.MinDecisionIntervalMs = 0 // keep unit tests free of wall-clock gaps
	return NewGuardrails(cfg, nil)
}

func blockReason(t *testing.T, err error) BlockReason {
	t.Helper()
	var block *GuardrailBlock
	require.True(t, errors.As(err, &block), "expected GuardrailBlock, got %v", err)
	return block.Reason
}

func TestPositionLimits(t *testing.T) {
	cfg := DefaultGuardrailConfig()
	cfg.MaxConcurrentPositions = 2
	cfg.MaxAdvisorPositions = 1
	cfg.MinDecisionIntervalMs = 0
	g := NewGuardrails(cfg, nil)

	require.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m1", "", TierDiscovery, ""))
	g.AddConfirmedPosition("m1", false)

	require.NoError(t, g.CheckDecisionAllowed(TriggerCopyTrade, "m2", "", TierDiscovery, ""))
	g.AddConfirmedPosition("m2", true)

	// Total cap reached.
	err := g.CheckDecisionAllowed(TriggerRank, "m3", "", TierDiscovery, "")
	require.Error(t, err)
	assert.Equal(t, BlockPositionLimit, blockReason(t, err))

	g.RemoveConfirmedPosition("m1")

	// Advisor cap still binds.
	err = g.CheckDecisionAllowed(TriggerLateOpportunity, "m3", "", TierDiscovery, "")
	require.Error(t, err)
	assert.Equal(t, BlockPositionLimit, blockReason(t, err))

	// Non-advisor path fits.
	assert.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m3", "", TierDiscovery, ""))
}

func TestLossBackoffGate(t *testing.T) {
	cfg := DefaultGuardrailConfig()
	cfg.LossBackoffThreshold = 3
	cfg.LossBackoffWindowSecs = 180
	cfg.LossBackoffPauseSecs = 120
	cfg.MinDecisionIntervalMs = 0
	g := NewGuardrails(cfg, nil)

	// Two losses: still open.
	g.RecordOutcome("m1", OutcomeLoss, "")
	g.RecordOutcome("m2", OutcomeLoss, "")
	assert.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m4", "", TierDiscovery, ""))

	// Third loss trips the backoff.
	g.RecordOutcome("m3", OutcomeLoss, "")
	err := g.CheckDecisionAllowed(TriggerRank, "m4", "", TierDiscovery, "")
	require.Error(t, err)
	assert.Equal(t, BlockLossBackoff, blockReason(t, err))

	stats := g.Stats()
	assert.Greater(t, stats.BackoffRemainingSec, 100)
	assert.LessOrEqual(t, stats.BackoffRemainingSec, 120)

	// Gating lifts after the pause.
	g.mu.Lock()
	g.backoffUntil = time.Now().Add(-time.Second)
	g.mu.Unlock()
	assert.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m4", "", TierDiscovery, ""))
}

func TestWinsDoNotTripBackoff(t *testing.T) {
	g := fastGuardrails()
	for i := 0; i < 5; i++ {
		g.RecordOutcome("m1", OutcomeWin, "")
	}
	assert.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m2", "", TierDiscovery, ""))
}

func TestWalletCooling(t *testing.T) {
	g := fastGuardrails()

	require.NoError(t, g.CheckDecisionAllowed(TriggerCopyTrade, "m1", "wallet1", TierB, ""))
	g.RecordDecision(TriggerCopyTrade, "m1", "wallet1", "")

	// Advisor rate limit also applies; clear it to isolate cooling.
	g.mu.Lock()
	g.lastAdvisorEntry = time.Time{}
	g.mu.Unlock()

	err := g.CheckDecisionAllowed(TriggerCopyTrade, "m2", "wallet1", TierB, "")
	require.Error(t, err)
	assert.Equal(t, BlockWalletCooling, blockReason(t, err))

	// A different wallet is unaffected.
	assert.NoError(t, g.CheckDecisionAllowed(TriggerCopyTrade, "m2", "wallet2", TierB, ""))
}

func TestTierABypassAfterWin(t *testing.T) {
	g := fastGuardrails()

	g.RecordDecision(TriggerCopyTrade, "m1", "alpha", "")
	g.RecordOutcome("m1", OutcomeWin, "alpha")

	g.mu.Lock()
	g.lastAdvisorEntry = time.Time{}
	g.mu.Unlock()

	// Tier A with a profitable last copy bypasses cooling.
	assert.NoError(t, g.CheckDecisionAllowed(TriggerCopyTrade, "m2", "alpha", TierA, ""))

	// Tier B cannot bypass.
	err := g.CheckDecisionAllowed(TriggerCopyTrade, "m2", "alpha", TierB, "")
	require.Error(t, err)
	assert.Equal(t, BlockWalletCooling, blockReason(t, err))
}

func TestAdvisorRateLimit(t *testing.T) {
	g := fastGuardrails()

	g.RecordDecision(TriggerCopyTrade, "m1", "", "")
	err := g.CheckDecisionAllowed(TriggerLateOpportunity, "m2", "", TierDiscovery, "")
	require.Error(t, err)
	assert.Equal(t, BlockRateLimit, blockReason(t, err))

	// Core paths ignore the advisor spacing.
	assert.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m2", "", TierDiscovery, ""))
}

func TestCreatorRateLimit(t *testing.T) {
	g := fastGuardrails()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m", "", TierDiscovery, "creator1"))
		g.RecordDecision(TriggerRank, "m", "", "creator1")
	}

	err := g.CheckDecisionAllowed(TriggerRank, "m", "", TierDiscovery, "creator1")
	require.Error(t, err)
	assert.Equal(t, BlockCreatorRateLimit, blockReason(t, err))

	// Another creator is unaffected.
	assert.NoError(t, g.CheckDecisionAllowed(TriggerRank, "m", "", TierDiscovery, "creator2"))
}

func TestGeneralRateLimit(t *testing.T) {
	cfg := DefaultGuardrailConfig()
	cfg.MinDecisionIntervalMs = 10_000
	g := NewGuardrails(cfg, nil)

	g.RecordDecision(TriggerRank, "m1", "", "")
	err := g.CheckDecisionAllowed(TriggerRank, "m2", "", TierDiscovery, "")
	require.Error(t, err)
	assert.Equal(t, BlockRateLimit, blockReason(t, err))
}

func TestOutcomeFreesPosition(t *testing.T) {
	g := fastGuardrails()

	g.AddConfirmedPosition("m1", false)
	assert.Equal(t, 1, g.Stats().OpenPositions)

	g.RecordOutcome("m1", OutcomeWin, "")
	assert.Equal(t, 0, g.Stats().OpenPositions)
}
