// Package solprice keeps the process-wide SOL/USD price as an atomic
// integer in cents. Every consumer reads it without locking; SolPriceUpdate
// advisories refresh it.
package solprice

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultCents is the conservative startup value ($150.00) used until the
// first SolPriceUpdate arrives.
const DefaultCents = 15000

var priceCents atomic.Uint32

func init() {
	priceCents.Store(DefaultCents)
}

// Set stores a new SOL/USD price in cents. Zero is ignored.
func Set(cents uint32) {
	if cents == 0 {
		return
	}
	priceCents.Store(cents)
	log.Debug().Uint32("cents", cents).Msg("SOL price updated")
}

// Cents returns the current SOL/USD price in cents.
func Cents() uint32 {
	return priceCents.Load()
}

// USD returns the current SOL/USD price in dollars.
func USD() float64 {
	return float64(priceCents.Load()) / 100
}
