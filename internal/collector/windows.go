package collector

import (
	"math"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/storage"
)

// openWindow is the in-memory state of one live window.
type openWindow struct {
	win      storage.Window
	sumPxQty float64 // Σ price×tokens for VWAP
	sumQty   float64
	buyers   map[string]struct{}
	seenSigs map[string]struct{}
}

// WindowAggregator maintains the current open windows per (mint, width) and
// upserts them into the store after every trade. Reprocessing a trade with a
// signature already applied to a window changes nothing.
type WindowAggregator struct {
	db     *storage.DB
	widths []int
	open   map[string]*openWindow // key: mint/width
}

// NewWindowAggregator builds an aggregator for the configured widths.
func NewWindowAggregator(db *storage.DB, widthsSec []int) *WindowAggregator {
	if len(widthsSec) == 0 {
		widthsSec = []int{10, 60}
	}
	return &WindowAggregator{
		db:     db,
		widths: widthsSec,
		open:   make(map[string]*openWindow),
	}
}

func windowKey(mint string, width int) string {
	return mint + "/" + strconv.Itoa(width)
}

// ApplyTrade folds one trade into every configured window width.
func (a *WindowAggregator) ApplyTrade(ev *Event) {
	for _, width := range a.widths {
		a.applyToWidth(ev, width)
	}
}

func (a *WindowAggregator) applyToWidth(ev *Event, width int) {
	start := ev.BlockTime - ev.BlockTime%int64(width)
	key := windowKey(ev.Mint, width)

	ow := a.open[key]
	if ow != nil && ow.win.StartTime != start {
		// The trade belongs to a newer window; close the old one first.
		a.closeWindow(ow)
		ow = nil
	}
	if ow == nil {
		ow = &openWindow{
			win: storage.Window{
				Mint:      ev.Mint,
				WidthSec:  width,
				StartTime: start,
				Open:      ev.Price,
				High:      ev.Price,
				Low:       ev.Price,
			},
			buyers:   make(map[string]struct{}),
			seenSigs: make(map[string]struct{}),
		}
		a.open[key] = ow
	}

	if _, dup := ow.seenSigs[ev.Signature]; dup {
		return
	}
	ow.seenSigs[ev.Signature] = struct{}{}

	w := &ow.win
	if ev.Price > w.High {
		w.High = ev.Price
	}
	if ev.Price < w.Low || w.Low == 0 {
		w.Low = ev.Price
	}
	w.Close = ev.Price
	if ev.Side == "buy" {
		w.BuyCount++
		ow.buyers[ev.Trader] = struct{}{}
	} else {
		w.SellCount++
	}
	w.UniqBuyers = len(ow.buyers)
	w.VolTokens += ev.TokenAmount
	w.VolSol += ev.SolAmount

	ow.sumPxQty += ev.Price * ev.TokenAmount
	ow.sumQty += ev.TokenAmount
	if ow.sumQty > 0 {
		w.VWAP = ow.sumPxQty / ow.sumQty
	}

	if err := a.db.UpsertWindow(w); err != nil {
		log.Warn().Err(err).Str("mint", shortMint(ev.Mint)).Msg("window upsert failed")
	}
}

// closeWindow recomputes holder shares and realized volatility by reading
// the window's trades back from the store, then writes the final row.
func (a *WindowAggregator) closeWindow(ow *openWindow) {
	w := &ow.win
	trades, err := a.db.TradesForWindow(w.Mint, w.StartTime, w.StartTime+int64(w.WidthSec))
	if err != nil {
		log.Warn().Err(err).Str("mint", shortMint(w.Mint)).Msg("window close read failed")
		return
	}
	w.Top1Share, w.Top3Share, w.Top5Share = holderShares(trades)
	w.Volatility = realizedVolatility(trades)

	if err := a.db.UpsertWindow(w); err != nil {
		log.Warn().Err(err).Str("mint", shortMint(w.Mint)).Msg("window finalize failed")
	}
}

// CloseAll finalizes every open window, for shutdown.
func (a *WindowAggregator) CloseAll() {
	for _, ow := range a.open {
		a.closeWindow(ow)
	}
	a.open = make(map[string]*openWindow)
}

// holderShares returns the top-1/3/5 buyer share of total buy volume.
func holderShares(trades []*storage.Trade) (top1, top3, top5 float64) {
	byBuyer := make(map[string]float64)
	var total float64
	for _, t := range trades {
		if t.Side != "buy" {
			continue
		}
		byBuyer[t.Trader] += t.SolAmount
		total += t.SolAmount
	}
	if total == 0 {
		return 0, 0, 0
	}

	amounts := make([]float64, 0, len(byBuyer))
	for _, v := range byBuyer {
		amounts = append(amounts, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(amounts)))

	var sum float64
	for i, v := range amounts {
		sum += v
		switch i {
		case 0:
			top1 = sum / total
		case 2:
			top3 = sum / total
		case 4:
			top5 = sum / total
		}
	}
	// Fewer buyers than the rank: the smaller prefix is the whole share.
	if len(amounts) < 3 {
		top3 = sum / total
	}
	if len(amounts) < 5 {
		top5 = sum / total
	}
	return top1, top3, top5
}

// realizedVolatility is the standard deviation of log returns across the
// window's trade prices.
func realizedVolatility(trades []*storage.Trade) float64 {
	var returns []float64
	var prev float64
	for _, t := range trades {
		if prev > 0 && t.Price > 0 {
			returns = append(returns, math.Log(t.Price/prev))
		}
		if t.Price > 0 {
			prev = t.Price
		}
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:8]
}
