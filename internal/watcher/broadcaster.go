package watcher

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/pnl"
	"solana-pump-pipeline/internal/solprice"
	"solana-pump-pipeline/internal/udp"
)

// deltaWindow accumulates market activity for one mint while a confirmation
// buffer is open.
type deltaWindow struct {
	mintStr  string
	ourSlot  uint64
	ourSig   string
	deadline time.Time

	mu            sync.Mutex
	sameSlotAfter uint16
	nextSlotCount uint16
	uniqBuyers    map[string]struct{}
	volBuySol     float64
	volSellSol    float64
	alphaHits     uint8
	lastPrice     uint64
}

// Broadcaster emits TxConfirmedContext with Δ-window market context for
// every confirmed BUY/SELL, to both Brain and Executor.
type Broadcaster struct {
	brain     *udp.Publisher
	executor  *udp.Publisher
	positions *PositionTracker
	isAlpha   func(wallet string) bool

	minBufferMs int
	maxBufferMs int

	mu      sync.Mutex
	windows map[string][]*deltaWindow // mint → open windows
}

// NewBroadcaster wires the broadcaster. isAlpha may be nil.
func NewBroadcaster(brain, executor *udp.Publisher, positions *PositionTracker,
	isAlpha func(string) bool, minBufferMs, maxBufferMs int) *Broadcaster {
	if minBufferMs <= 0 {
		minBufferMs = 150
	}
	if maxBufferMs <= minBufferMs {
		maxBufferMs = minBufferMs + 100
	}
	if isAlpha == nil {
		isAlpha = func(string) bool { return false }
	}
	return &Broadcaster{
		brain:       brain,
		executor:    executor,
		positions:   positions,
		isAlpha:     isAlpha,
		minBufferMs: minBufferMs,
		maxBufferMs: maxBufferMs,
		windows:     make(map[string][]*deltaWindow),
	}
}

// Observe feeds one decoded transaction into any open Δ-windows for its
// mint. Same-slot ordering uses signature lexicographic order as the
// tie-break for "after ours".
func (b *Broadcaster) Observe(dec *DecodedTx) {
	if dec.Class != ClassBuy && dec.Class != ClassSell {
		return
	}

	b.mu.Lock()
	open := b.windows[dec.Mint]
	b.mu.Unlock()
	if len(open) == 0 {
		return
	}

	for _, w := range open {
		w.mu.Lock()
		if time.Now().After(w.deadline) {
			w.mu.Unlock()
			continue
		}
		switch {
		case dec.Slot == w.ourSlot && dec.Signature > w.ourSig:
			w.sameSlotAfter++
		case dec.Slot == w.ourSlot+1:
			w.nextSlotCount++
		}
		if dec.Class == ClassBuy {
			w.uniqBuyers[dec.Trader] = struct{}{}
			w.volBuySol += dec.SolAmount
		} else {
			w.volSellSol += dec.SolAmount
		}
		if b.isAlpha(dec.Trader) && w.alphaHits < 255 {
			w.alphaHits++
		}
		if dec.Price > 0 {
			w.lastPrice = uint64(dec.Price * 1e9)
		}
		w.mu.Unlock()
	}
}

// BroadcastWithContext runs the Δ-window capture for one confirmation and
// emits TxConfirmedContext plus any position updates and exit advice.
// Blocks for the buffer duration; run it on its own goroutine.
func (b *Broadcaster) BroadcastWithContext(watch *udp.WatchSigEnhanced, slot uint64, status byte,
	currentPriceLamports uint64) {
	start := time.Now()
	bufferMs := b.minBufferMs + rand.Intn(b.maxBufferMs-b.minBufferMs+1)

	mintStr := watch.MintStr()
	log.Info().
		Str("sig", shorten(watch.SignatureStr(), 12)).
		Int("buffer_ms", bufferMs).
		Msg("⏱️ starting Δ-window capture")

	w := &deltaWindow{
		mintStr:    mintStr,
		ourSlot:    slot,
		ourSig:     watch.SignatureStr(),
		deadline:   start.Add(time.Duration(bufferMs) * time.Millisecond),
		uniqBuyers: make(map[string]struct{}),
		lastPrice:  currentPriceLamports,
	}

	b.mu.Lock()
	b.windows[mintStr] = append(b.windows[mintStr], w)
	b.mu.Unlock()

	time.Sleep(time.Duration(bufferMs) * time.Millisecond)

	// Detach the window before reading it out.
	b.mu.Lock()
	open := b.windows[mintStr]
	for i, other := range open {
		if other == w {
			b.windows[mintStr] = append(open[:i], open[i+1:]...)
			break
		}
	}
	if len(b.windows[mintStr]) == 0 {
		delete(b.windows, mintStr)
	}
	b.mu.Unlock()

	w.mu.Lock()
	trailMs := uint16(time.Since(start).Milliseconds())
	price := w.lastPrice
	if price == 0 {
		price = currentPriceLamports
	}

	solUSD := solprice.USD()
	realizedPnLUSD, _ := pnl.ComputeSingleFee(watch.EntryPriceLamports, price, watch.SizeSol(), watch.FeeBps, solUSD)

	var priceChangeBps int16
	if watch.EntryPriceLamports > 0 {
		diff := float64(int64(price)-int64(watch.EntryPriceLamports)) / float64(watch.EntryPriceLamports) * 10000
		if diff > 32767 {
			diff = 32767
		} else if diff < -32768 {
			diff = -32768
		}
		priceChangeBps = int16(diff)
	}

	ctx := &udp.TxConfirmedContext{
		Signature:           watch.Signature,
		Mint:                watch.Mint,
		TradeID:             watch.TradeID,
		Side:                watch.Side,
		Status:              status,
		Slot:                slot,
		TimestampNs:         uint64(time.Now().UnixNano()),
		TrailMs:             trailMs,
		SameSlotAfter:       w.sameSlotAfter,
		NextSlotCount:       w.nextSlotCount,
		UniqBuyersDelta:     uint16(len(w.uniqBuyers)),
		VolBuySolDelta:      uint32(w.volBuySol * 1000),
		VolSellSolDelta:     uint32(w.volSellSol * 1000),
		PriceChangeBpsDelta: priceChangeBps,
		AlphaHitsDelta:      w.alphaHits,
		EntryPriceLamports:  watch.EntryPriceLamports,
		SizeSolScaled:       watch.SizeSolScaled,
		SlippageBps:         watch.SlippageBps,
		FeeBps:              watch.FeeBps,
		RealizedPnLCents:    int32(realizedPnLUSD * 100),
	}
	pendingBuys := uint16(len(w.uniqBuyers))
	pendingSells := uint16(0)
	if w.volSellSol > 0 {
		pendingSells = 1
	}
	w.mu.Unlock()

	packet := ctx.Encode()
	b.executor.Send(packet)
	b.brain.Send(packet)

	// Feed the observed price into position tracking; forward whatever it
	// decides to emit.
	update, advice := b.positions.UpdatePositionPrice(watch.Mint, price, solUSD, pendingBuys, pendingSells)
	if update != nil {
		b.brain.Send(update.Encode())
	}
	if advice != nil {
		b.brain.Send(advice.Encode())
		log.Info().
			Str("reason", advice.ReasonStr()).
			Float64("pnl", advice.RealizedPnLUSD()).
			Uint8("confidence", advice.Confidence).
			Msg("🚨 exit advice sent")
	}

	log.Info().
		Str("side", ctx.SideStr()).
		Str("status", ctx.StatusStr()).
		Uint16("trail_ms", trailMs).
		Uint16("buyers", ctx.UniqBuyersDelta).
		Float64("vol_buy", ctx.VolBuySol()).
		Float64("vol_sell", ctx.VolSellSol()).
		Float64("pnl", ctx.RealizedPnLUSD()).
		Msg("✅ broadcast complete")

	// Confirmation-time target/stop checks for BUYs.
	if watch.Side != udp.SideBuy || status != udp.StatusSuccess {
		return
	}
	holdMs := uint32(time.Since(start).Milliseconds())
	if target := watch.ProfitTargetUSD(); target > 0 && realizedPnLUSD >= target {
		exit := udp.NewExitAdvice(watch.TradeID, watch.Mint, udp.ReasonTargetHit, 95,
			realizedPnLUSD, watch.EntryPriceLamports, price, holdMs)
		b.brain.Send(exit.Encode())
		log.Info().
			Float64("target", target).
			Float64("realized", realizedPnLUSD).
			Msg("🎯 profit target hit at confirmation")
	} else if stop := watch.StopLossUSD(); stop < 0 && realizedPnLUSD <= stop {
		exit := udp.NewExitAdvice(watch.TradeID, watch.Mint, udp.ReasonStopLoss, 90,
			realizedPnLUSD, watch.EntryPriceLamports, price, holdMs)
		b.brain.Send(exit.Encode())
		log.Warn().
			Float64("stop", stop).
			Float64("realized", realizedPnLUSD).
			Msg("🛑 stop loss triggered at confirmation")
	}
}
