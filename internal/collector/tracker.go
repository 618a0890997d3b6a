package collector

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// trackedTrade is one event held in a mint's sliding window.
type trackedTrade struct {
	timestampMs int64
	amountSol   float64
	price       float64
	trader      string
	isAlpha     bool
}

// LiveMetrics is a point-in-time view of a mint's short-horizon activity.
type LiveMetrics struct {
	Mint               string
	VolumeSol1s        float64
	UniqueBuyers1s     uint16
	PriceChangeBps2s   int16
	AlphaWalletHits10s uint8
	TimestampMs        int64
	MCSol              float64
	MCVelocitySolMin   float64
}

// mintWindow holds a mint's recent trades (10s) and MC history (60s).
type mintWindow struct {
	events     []trackedTrade
	lastPrice  float64
	lastSentMs int64
	mcHistory  []mcSample
}

type mcSample struct {
	timestampMs int64
	mcSol       float64
}

// LiveTracker maintains per-mint sliding windows for the WindowMetrics
// telemetry and the hotlist's MC-velocity signal.
type LiveTracker struct {
	mu                sync.Mutex
	windows           map[string]*mintWindow
	sendIntervalMs    int64
	minActivityTrades int
}

// NewLiveTracker builds a tracker; metrics emit at most every
// sendIntervalMs and only with minActivityTrades trades in the last 2s.
func NewLiveTracker(sendIntervalMs int64, minActivityTrades int) *LiveTracker {
	if sendIntervalMs <= 0 {
		sendIntervalMs = 500
	}
	if minActivityTrades <= 0 {
		minActivityTrades = 3
	}
	return &LiveTracker{
		windows:           make(map[string]*mintWindow),
		sendIntervalMs:    sendIntervalMs,
		minActivityTrades: minActivityTrades,
	}
}

// AddTrade records one trade into the mint's window.
func (t *LiveTracker) AddTrade(mint string, timestampMs int64, amountSol, price float64, trader string, isAlpha bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[mint]
	if w == nil {
		w = &mintWindow{}
		t.windows[mint] = w
	}
	w.events = append(w.events, trackedTrade{
		timestampMs: timestampMs,
		amountSol:   amountSol,
		price:       price,
		trader:      trader,
		isAlpha:     isAlpha,
	})
	w.lastPrice = price

	// Trim events older than 10s.
	cutoff := timestampMs - 10_000
	idx := 0
	for idx < len(w.events) && w.events[idx].timestampMs < cutoff {
		idx++
	}
	if idx > 0 {
		w.events = w.events[idx:]
	}
}

// UpdateMC appends one market-cap sample, keeping 60s of history.
func (t *LiveTracker) UpdateMC(mint string, timestampMs int64, mcSol float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[mint]
	if w == nil {
		w = &mintWindow{}
		t.windows[mint] = w
	}
	w.mcHistory = append(w.mcHistory, mcSample{timestampMs: timestampMs, mcSol: mcSol})
	cutoff := timestampMs - 60_000
	idx := 0
	for idx < len(w.mcHistory) && w.mcHistory[idx].timestampMs < cutoff {
		idx++
	}
	if idx > 0 {
		w.mcHistory = w.mcHistory[idx:]
	}
}

// MetricsIfReady returns metrics when the throttle interval has elapsed and
// there is enough recent activity. nil otherwise.
func (t *LiveTracker) MetricsIfReady(mint string, currentMCSol float64) *LiveMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[mint]
	if w == nil {
		return nil
	}

	now := time.Now().UnixMilli()
	if now-w.lastSentMs < t.sendIntervalMs {
		return nil
	}

	cutoff2s := now - 2_000
	recent := 0
	for _, e := range w.events {
		if e.timestampMs >= cutoff2s {
			recent++
		}
	}
	if recent < t.minActivityTrades {
		return nil
	}

	m := w.calculate(mint, now, currentMCSol)
	w.lastSentMs = now
	return m
}

// MCVelocity returns the current SOL/min market-cap velocity for a mint,
// computed from the sample closest to 30s ago. ok=false with no history.
func (t *LiveTracker) MCVelocity(mint string, currentMCSol float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[mint]
	if w == nil || len(w.mcHistory) == 0 {
		return 0, false
	}
	now := time.Now().UnixMilli()
	return w.velocity(now, currentMCSol)
}

func (w *mintWindow) velocity(nowMs int64, currentMCSol float64) (float64, bool) {
	var mc30 *float64
	for i := len(w.mcHistory) - 1; i >= 0; i-- {
		if w.mcHistory[i].timestampMs <= nowMs-30_000 {
			v := w.mcHistory[i].mcSol
			mc30 = &v
			break
		}
	}
	if mc30 == nil || *mc30 <= 0 {
		return 0, false
	}
	return (currentMCSol - *mc30) / 30.0 * 60.0, true
}

func (w *mintWindow) calculate(mint string, nowMs int64, currentMCSol float64) *LiveMetrics {
	cutoff1s := nowMs - 1_000
	cutoff2s := nowMs - 2_000
	cutoff10s := nowMs - 10_000

	var vol1s float64
	buyers1s := make(map[string]struct{})
	var price2sAgo float64
	var alphaHits uint8

	for _, e := range w.events {
		if e.timestampMs >= cutoff1s {
			vol1s += e.amountSol
			buyers1s[e.trader] = struct{}{}
		}
		if e.timestampMs >= cutoff2s && price2sAgo == 0 {
			price2sAgo = e.price
		}
		if e.timestampMs >= cutoff10s && e.isAlpha && alphaHits < 255 {
			alphaHits++
		}
	}

	var changeBps int16
	if price2sAgo > 0 {
		bps := (w.lastPrice - price2sAgo) / price2sAgo * 10000
		if bps > 9999 {
			bps = 9999
		} else if bps < -9999 {
			bps = -9999
		}
		changeBps = int16(bps)
	}

	velocity, _ := w.velocity(nowMs, currentMCSol)

	m := &LiveMetrics{
		Mint:               mint,
		VolumeSol1s:        vol1s,
		UniqueBuyers1s:     uint16(len(buyers1s)),
		PriceChangeBps2s:   changeBps,
		AlphaWalletHits10s: alphaHits,
		TimestampMs:        nowMs,
		MCSol:              currentMCSol,
		MCVelocitySolMin:   velocity,
	}

	log.Debug().
		Str("mint", shortMint(mint)).
		Float64("vol_1s", m.VolumeSol1s).
		Uint16("buyers_1s", m.UniqueBuyers1s).
		Int16("price_bps_2s", m.PriceChangeBps2s).
		Float64("mc_velocity", m.MCVelocitySolMin).
		Msg("window metrics")

	return m
}

// SweepIdle drops windows whose newest event is older than maxIdle.
func (t *LiveTracker) SweepIdle(maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle).UnixMilli()
	for mint, w := range t.windows {
		if len(w.events) == 0 && len(w.mcHistory) == 0 {
			delete(t.windows, mint)
			continue
		}
		newest := int64(0)
		if n := len(w.events); n > 0 {
			newest = w.events[n-1].timestampMs
		}
		if n := len(w.mcHistory); n > 0 && w.mcHistory[n-1].timestampMs > newest {
			newest = w.mcHistory[n-1].timestampMs
		}
		if newest < cutoff {
			delete(t.windows, mint)
		}
	}
}

// WindowCount reports the live window count, for the health endpoint.
func (t *LiveTracker) WindowCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}
