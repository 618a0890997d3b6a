package udp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvisoryExtendHoldRoundTrip(t *testing.T) {
	a := &Advisory{Type: AdvisoryExtendHold, Mint: filled32(1), ExtraSecs: 15, Confidence: 85}

	buf := a.Encode()
	require.Len(t, buf, AdvisorySize)

	decoded, err := DecodeAdvisory(buf)
	require.NoError(t, err)
	assert.EqualValues(t, AdvisoryExtendHold, decoded.Type)
	assert.EqualValues(t, 15, decoded.ExtraSecs)
	assert.EqualValues(t, 85, decoded.Confidence)
}

func TestAdvisoryWidenExitRoundTrip(t *testing.T) {
	a := &Advisory{Type: AdvisoryWidenExit, Mint: filled32(2), SellSlipBps: 2500, TTLMs: 3000, Confidence: 90}
	decoded, err := DecodeAdvisory(a.Encode())
	require.NoError(t, err)
	assert.EqualValues(t, 2500, decoded.SellSlipBps)
	assert.EqualValues(t, 3000, decoded.TTLMs)
	assert.EqualValues(t, 90, decoded.Confidence)
}

func TestAdvisoryLateOpportunityRoundTrip(t *testing.T) {
	a := &Advisory{Type: AdvisoryLateOpportunity, Mint: filled32(3), HorizonSec: 60, Score: 57}
	decoded, err := DecodeAdvisory(a.Encode())
	require.NoError(t, err)
	assert.EqualValues(t, 60, decoded.HorizonSec)
	assert.EqualValues(t, 57, decoded.Score)
	assert.EqualValues(t, 57, decoded.EffectiveConfidence())
}

func TestAdvisoryCopyTradeRoundTrip(t *testing.T) {
	a := &Advisory{Type: AdvisoryCopyTrade, Mint: filled32(4), Wallet: filled32(5), Confidence: 87, TradeSizeSol: 2.5}
	decoded, err := DecodeAdvisory(a.Encode())
	require.NoError(t, err)
	assert.Equal(t, a.Wallet, decoded.Wallet)
	assert.EqualValues(t, 87, decoded.Confidence)
	assert.InDelta(t, 2.5, float64(decoded.TradeSizeSol), 0.001)
}

func TestAdvisorySolPriceUpdateRoundTrip(t *testing.T) {
	a := &Advisory{Type: AdvisorySolPriceUpdate, PriceCents: 18283, TimestampSecs: 1_700_000_000, Source: 2}
	decoded, err := DecodeAdvisory(a.Encode())
	require.NoError(t, err)
	assert.EqualValues(t, 18283, decoded.PriceCents)
	assert.EqualValues(t, 2, decoded.Source)
	assert.EqualValues(t, 100, decoded.EffectiveConfidence())
	assert.Equal(t, "N/A", decoded.MintStr())
}

func TestAdvisoryEmergencyExitRoundTrip(t *testing.T) {
	a := &Advisory{
		Type: AdvisoryEmergencyExit, Mint: filled32(6), Wallet: filled32(7),
		SellAmountSolScaled: 15500, WalletWinRate: 68, Confidence: 92,
	}
	decoded, err := DecodeAdvisory(a.Encode())
	require.NoError(t, err)
	assert.InDelta(t, 15.5, decoded.SellAmountSol(), 0.001)
	assert.EqualValues(t, 68, decoded.WalletWinRate)
	assert.EqualValues(t, 92, decoded.Confidence)
}

func TestAdvisoryRejectsUnknownAndShort(t *testing.T) {
	_, err := DecodeAdvisory(make([]byte, 16))
	assert.Error(t, err)

	buf := make([]byte, AdvisorySize)
	buf[0] = 200
	_, err = DecodeAdvisory(buf)
	assert.Error(t, err)
}

func TestAdvisoryToleratesLegacy64BytePackets(t *testing.T) {
	a := &Advisory{Type: AdvisoryExtendHold, Mint: filled32(1), ExtraSecs: 10, Confidence: 70}
	decoded, err := DecodeAdvisory(a.Encode()[:64])
	require.NoError(t, err)
	assert.EqualValues(t, 10, decoded.ExtraSecs)
}
