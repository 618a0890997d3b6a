package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/chain"
	"solana-pump-pipeline/internal/udp"
)

// watchEntry pairs a registration with its arrival time for age cleanup.
type watchEntry struct {
	sig        *udp.WatchSigEnhanced
	registered time.Time
}

// SignatureTracker maps live signatures to their WatchSigEnhanced metadata.
// A signature appears at most once; entries age out after maxAge.
type SignatureTracker struct {
	mu      sync.RWMutex
	entries map[string]*watchEntry
	maxAge  time.Duration
}

// NewSignatureTracker builds a tracker with the given entry TTL.
func NewSignatureTracker(maxAge time.Duration) *SignatureTracker {
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}
	return &SignatureTracker{
		entries: make(map[string]*watchEntry),
		maxAge:  maxAge,
	}
}

// Register inserts a watch entry, replacing any previous one for the same
// signature so the uniqueness invariant holds.
func (t *SignatureTracker) Register(w *udp.WatchSigEnhanced) {
	sig := w.SignatureStr()
	t.mu.Lock()
	t.entries[sig] = &watchEntry{sig: w, registered: time.Now()}
	count := len(t.entries)
	t.mu.Unlock()

	log.Info().
		Str("sig", shorten(sig, 12)).
		Str("mint", shorten(w.MintStr(), 8)).
		Str("side", udp.SideString(w.Side)).
		Int("watched", count).
		Msg("👀 signature registered")
}

// IsWatched reports presence.
func (t *SignatureTracker) IsWatched(signature string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[signature]
	return ok
}

// Remove returns and deletes the entry for a signature.
func (t *SignatureTracker) Remove(signature string) *udp.WatchSigEnhanced {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[signature]
	if !ok {
		return nil
	}
	delete(t.entries, signature)
	return entry.sig
}

// Watched snapshots the currently-watched signatures, bounded by limit.
func (t *SignatureTracker) Watched(limit int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for sig := range t.entries {
		out = append(out, sig)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Count returns the live entry count.
func (t *SignatureTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Sweep removes entries older than the TTL; returns how many were dropped.
func (t *SignatureTracker) Sweep() int {
	cutoff := time.Now().Add(-t.maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for sig, entry := range t.entries {
		if entry.registered.Before(cutoff) {
			delete(t.entries, sig)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("signature tracker sweep")
	}
	return removed
}

// RunSweeper ages out stale entries on the given cadence until ctx is done.
func (t *SignatureTracker) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// ConfirmHandler consumes one resolved signature. status follows the wire
// convention (0=SUCCESS, 1=FAILED).
type ConfirmHandler func(watch *udp.WatchSigEnhanced, slot uint64, status byte)

// RunRPCPolling is the idempotent confirmation backstop: every interval it
// batches the watched signatures into one status query and resolves any
// that carry a confirmation status. The websocket stream remains primary;
// whichever path resolves a signature first removes it from the tracker, so
// each watched signature is confirmed once.
func (t *SignatureTracker) RunRPCPolling(ctx context.Context, rpc *chain.RPCClient,
	interval time.Duration, maxBatch int, handle ConfirmHandler) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxBatch <= 0 {
		maxBatch = 256
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sigs := t.Watched(maxBatch)
		if len(sigs) == 0 {
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		statuses, err := rpc.GetSignatureStatuses(pollCtx, sigs)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("signature status poll failed")
			continue
		}

		for i, status := range statuses {
			if i >= len(sigs) || status == nil || status.ConfirmationStatus == "" {
				continue
			}
			watch := t.Remove(sigs[i])
			if watch == nil {
				continue // already resolved by the stream
			}
			st := byte(udp.StatusSuccess)
			if status.Err != nil {
				st = udp.StatusFailed
			}
			log.Info().
				Str("sig", shorten(sigs[i], 12)).
				Uint64("slot", status.Slot).
				Str("status", map[byte]string{0: "SUCCESS", 1: "FAILED"}[st]).
				Msg("✅ confirmation via RPC backstop")
			handle(watch, status.Slot, st)
		}
	}
}

// RunListener consumes WatchSigEnhanced registrations from the executor's
// UDP port until ctx is done.
func (t *SignatureTracker) RunListener(ctx context.Context, port int) error {
	listener, err := udp.NewListener(port)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	packets := make(chan []byte, 1024)
	go listener.Run(packets)

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			if len(pkt) == 0 || pkt[0] != udp.TypeWatchSigEnhanced {
				continue
			}
			watch, err := udp.DecodeWatchSigEnhanced(pkt)
			if err != nil {
				log.Warn().Err(err).Msg("bad watch-sig packet")
				continue
			}
			t.Register(watch)
		}
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
