package brain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMint() *MintFeatures {
	return &MintFeatures{
		AgeSinceLaunch:  60,
		CurrentPrice:    0.001,
		Vol60sSol:       30.0,
		Buyers60s:       20,
		BuysSellsRatio:  2.5,
		CurveDepthProxy: 1_000_000,
		Buyers2s:        10,
		Vol5sSol:        20.0,
		LastUpdate:      time.Now().Unix(),
	}
}

func rejectReason(t *testing.T, err error) RejectReason {
	t.Helper()
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	return vErr.Reason
}

func TestRoundTripFees(t *testing.T) {
	fees := RoundTripFees(10.0, 150)
	// (0.10 + 0.001 + 10·0.015) × 2 = 0.502.
	assert.InDelta(t, 0.502, fees.TotalUSD, 0.001)
	assert.InDelta(t, 0.20, fees.TipUSD, 0.001)
	assert.InDelta(t, 0.30, fees.SlippageUSD, 0.001)
}

func TestMinProfitTargetFloor(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	assert.InDelta(t, 1.1, v.minProfitTarget(0.50), 0.001)
	assert.Equal(t, 1.0, v.minProfitTarget(0.30), "floored at $1.00")
}

func TestValidationPasses(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	validated, err := v.Validate("mint1", validMint(), 10.0, 150, 75, "")
	require.NoError(t, err)
	assert.EqualValues(t, 75, validated.FollowThroughScore)
	assert.Greater(t, validated.EstimatedFeesUSD, 0.0)
	assert.Greater(t, validated.SizeLamports, uint64(0))
	assert.Greater(t, validated.SuccessProbability, 0.1)
}

func TestValidationRejectsLowScore(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	_, err := v.Validate("mint1", validMint(), 10.0, 150, 40, "")
	require.Error(t, err)
	assert.Equal(t, RejectFollowThroughTooLow, rejectReason(t, err))
}

func TestValidationRejectsImpact(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	// Thin book: 1 SOL of 60s volume against a $50 position.
	f := validMint()
	f.Vol60sSol = 1.0
	f.Buyers60s = 10 // keep the suspicious-pattern check quiet

	_, err := v.Validate("mint1", f, 50.0, 150, 75, "")
	require.Error(t, err)
	assert.Equal(t, RejectImpactTooHigh, rejectReason(t, err))
}

func TestValidationRejectsSuspiciousVolume(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	f := validMint()
	f.Vol60sSol = 50.0
	f.Buyers60s = 3 // 50 SOL from 3 buyers

	_, err := v.Validate("mint1", f, 10.0, 150, 75, "")
	require.Error(t, err)
	assert.Equal(t, RejectSuspiciousPattern, rejectReason(t, err))
}

func TestValidationRejectsWashTrading(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	f := validMint()
	f.BuysSellsRatio = 15.0

	_, err := v.Validate("mint1", f, 10.0, 150, 75, "")
	require.Error(t, err)
	assert.Equal(t, RejectSuspiciousPattern, rejectReason(t, err))
}

func TestValidationRejectsDustPrice(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	f := validMint()
	f.CurrentPrice = 1e-8

	_, err := v.Validate("mint1", f, 10.0, 150, 75, "")
	require.Error(t, err)
	assert.Equal(t, RejectSuspiciousPattern, rejectReason(t, err))
}

func TestValidationRejectsBlacklistedCreator(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.RugCreatorBlacklist["badcreator"] = struct{}{}
	v := NewTradeValidator(cfg)

	_, err := v.Validate("mint1", validMint(), 10.0, 150, 75, "badcreator")
	require.Error(t, err)
	assert.Equal(t, RejectRugCreatorDetected, rejectReason(t, err))
}

func TestRugChecksCanBeDisabled(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.EnableRugChecks = false
	cfg.RugCreatorBlacklist["badcreator"] = struct{}{}
	v := NewTradeValidator(cfg)

	f := validMint()
	f.BuysSellsRatio = 15.0

	_, err := v.Validate("mint1", f, 10.0, 150, 75, "badcreator")
	assert.NoError(t, err)
}

func TestImpactEstimation(t *testing.T) {
	v := NewTradeValidator(DefaultValidationConfig())

	// Small position, deep book → low impact.
	low := v.estimateImpactPct(5.0, 1_000_000, 50.0)
	assert.Less(t, low, 20.0)

	// Large position, shallow book → much higher.
	high := v.estimateImpactPct(50.0, 100_000, 5.0)
	assert.Greater(t, high, low)

	// Capped at 100.
	capped := v.estimateImpactPct(10_000, 1, 1.0)
	assert.Equal(t, 100.0, capped)
}

func TestCustomThreshold(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.MinFollowThrough = 80
	v := NewTradeValidator(cfg)

	_, err := v.Validate("mint1", validMint(), 10.0, 150, 75, "")
	assert.Error(t, err, "75 fails a threshold of 80")
}
