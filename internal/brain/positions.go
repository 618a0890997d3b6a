package brain

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Position is the brain's record of one open BUY. Exactly one per mint.
type Position struct {
	Mint         string
	TradeID      [16]byte
	Trigger      EntryTrigger
	EntryTime    time.Time
	EntryPrice   float64 // SOL per token
	SizeSol      float64
	RemainingPct float64 // 100 at entry, reduced by partial exits
	MaxHoldSecs  uint64
	Wallet       string // copied wallet for path C, else empty
	Creator      string

	// Exit-stage bookkeeping: which staged profit levels already fired.
	StagesFired map[int]bool

	// Live advisory state.
	ExtendedHoldSecs uint64
	WidenedSlipBps   uint16
	WidenedUntil     time.Time
	EmergencyExit    bool

	// Volume-drop tracking.
	LowVolumeTicks int

	LastPrice  float64
	LastUpdate time.Time
}

// PnLPercent returns the percent move off entry at the last seen price.
func (p *Position) PnLPercent() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (p.LastPrice/p.EntryPrice - 1) * 100
}

// AgeSecs returns seconds since entry.
func (p *Position) AgeSecs() float64 {
	return time.Since(p.EntryTime).Seconds()
}

// EffectiveMaxHold includes any advisory extension.
func (p *Position) EffectiveMaxHold() uint64 {
	return p.MaxHoldSecs + p.ExtendedHoldSecs
}

// PositionBook is the brain's open-position table: written by the advice
// handler, read by the exit monitor and the metrics endpoint. Readers
// snapshot under a read guard and release before any I/O.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]*Position)}
}

// Open records a confirmed BUY.
func (b *PositionBook) Open(pos *Position) {
	if pos.RemainingPct == 0 {
		pos.RemainingPct = 100
	}
	if pos.StagesFired == nil {
		pos.StagesFired = make(map[int]bool)
	}
	b.mu.Lock()
	b.positions[pos.Mint] = pos
	b.mu.Unlock()
	log.Info().
		Str("mint", shortStr(pos.Mint, 8)).
		Str("trigger", pos.Trigger.String()).
		Float64("size", pos.SizeSol).
		Msg("📈 position opened")
}

// Get returns the live position for a mint, nil when absent.
func (b *PositionBook) Get(mint string) *Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[mint]
}

// Has reports presence.
func (b *PositionBook) Has(mint string) bool {
	return b.Get(mint) != nil
}

// Count returns the number of open positions.
func (b *PositionBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// TotalExposureSol sums remaining position sizes.
func (b *PositionBook) TotalExposureSol() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total float64
	for _, p := range b.positions {
		total += p.SizeSol * p.RemainingPct / 100.0
	}
	return total
}

// Snapshot copies the open positions for iteration without holding the
// lock across I/O.
func (b *PositionBook) Snapshot() []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		clone := *p
		out = append(out, &clone)
	}
	return out
}

// UpdatePrice refreshes the last seen price for a mint.
func (b *PositionBook) UpdatePrice(mint string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.positions[mint]; ok && price > 0 {
		p.LastPrice = price
		p.LastUpdate = time.Now()
	}
}

// ApplyAdvisory mutates the live advisory state of a position.
func (b *PositionBook) ApplyAdvisory(mint string, fn func(*Position)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[mint]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// ReducePosition applies a partial exit; returns the remaining percentage.
func (b *PositionBook) ReducePosition(mint string, exitPct float64, stage int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[mint]
	if !ok {
		return 0
	}
	if stage >= 0 {
		p.StagesFired[stage] = true
	}
	p.RemainingPct -= exitPct
	if p.RemainingPct < 0 {
		p.RemainingPct = 0
	}
	return p.RemainingPct
}

// Close removes a position outright.
func (b *PositionBook) Close(mint string) *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.positions[mint]
	delete(b.positions, mint)
	return p
}
