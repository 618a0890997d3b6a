package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pump-pipeline/internal/udp"
)

func watchSigWithByte(b byte) *udp.WatchSigEnhanced {
	var sig [64]byte
	var mint [32]byte
	var tradeID [16]byte
	for i := range sig {
		sig[i] = b
	}
	return udp.NewWatchSigEnhanced(sig, mint, tradeID, udp.SideBuy, 1_000_000, 0.5, 150, 30, 1.0, -0.5)
}

func TestRegisterAndRemove(t *testing.T) {
	tracker := NewSignatureTracker(60 * time.Second)
	w := watchSigWithByte(1)
	sig := w.SignatureStr()

	assert.False(t, tracker.IsWatched(sig))
	tracker.Register(w)
	assert.True(t, tracker.IsWatched(sig))
	assert.Equal(t, 1, tracker.Count())

	removed := tracker.Remove(sig)
	require.NotNil(t, removed)
	assert.Equal(t, w.Signature, removed.Signature)
	assert.False(t, tracker.IsWatched(sig))
	assert.Nil(t, tracker.Remove(sig), "second remove returns nil")
}

func TestSignatureUniqueness(t *testing.T) {
	tracker := NewSignatureTracker(60 * time.Second)
	w := watchSigWithByte(1)

	tracker.Register(w)
	tracker.Register(w) // same signature registered twice
	assert.Equal(t, 1, tracker.Count(), "a signature appears at most once")
}

func TestSweepRemovesOldEntries(t *testing.T) {
	tracker := NewSignatureTracker(50 * time.Millisecond)
	tracker.Register(watchSigWithByte(1))

	time.Sleep(80 * time.Millisecond)
	tracker.Register(watchSigWithByte(2))

	removed := tracker.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tracker.Count())
}

func TestWatchedBounded(t *testing.T) {
	tracker := NewSignatureTracker(60 * time.Second)
	for i := byte(1); i <= 10; i++ {
		tracker.Register(watchSigWithByte(i))
	}
	assert.Len(t, tracker.Watched(4), 4)
	assert.Len(t, tracker.Watched(0), 10)
}
