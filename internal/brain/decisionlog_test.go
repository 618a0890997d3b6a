package brain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionLogHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.csv")
	logger, err := NewDecisionLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	rank := uint8(1)
	id, err := logger.Log(DecisionLogEntry{
		MintHex:            "0202",
		Trigger:            TriggerRank,
		Side:               0,
		PredictedFeesUSD:   0.502,
		PredictedImpactUSD: 0.333,
		TPUSD:              1.1044,
		FollowThroughScore: 75,
		SizeSol:            0.5,
		SizeUSD:            75.0,
		Confidence:         75,
		ExpectedEVUSD:      0.8,
		SuccessProbability: 0.62,
		Rank:               &rank,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	_, err = logger.Log(DecisionLogEntry{MintHex: "0303", Trigger: TriggerCopyTrade, Side: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, logger.EntriesLogged())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "decision_id,timestamp,mint_hex,trigger_type,side"))
	assert.Contains(t, lines[1], ",rank,")
	assert.Contains(t, lines[1], "0202")
	assert.Contains(t, lines[2], ",copy,")

	// Column count matches the header exactly.
	header := strings.Split(lines[0], ",")
	row := strings.Split(lines[1], ",")
	assert.Equal(t, len(header), len(row))
}

func TestDecisionLogAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.csv")

	logger, err := NewDecisionLogger(path)
	require.NoError(t, err)
	_, err = logger.Log(DecisionLogEntry{MintHex: "aa", Trigger: TriggerMomentum})
	require.NoError(t, err)
	logger.Close()

	logger2, err := NewDecisionLogger(path)
	require.NoError(t, err)
	_, err = logger2.Log(DecisionLogEntry{MintHex: "bb", Trigger: TriggerMomentum})
	require.NoError(t, err)
	logger2.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "decision_id,"), "header written exactly once")
}
