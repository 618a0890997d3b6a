package watcher

import (
	"context"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/chain"
	"solana-pump-pipeline/internal/solprice"
	"solana-pump-pipeline/internal/udp"
)

// Monitor is the watcher's main loop: it classifies the confirmed stream,
// resolves watched signatures, drives Δ-window capture and keeps position
// telemetry flowing to the brain.
type Monitor struct {
	decoder     *Decoder
	sigs        *SignatureTracker
	positions   *PositionTracker
	broadcaster *Broadcaster
	brain       *udp.Publisher
	executor    *udp.Publisher
}

// NewMonitor wires the watcher loop.
func NewMonitor(decoder *Decoder, sigs *SignatureTracker, positions *PositionTracker,
	broadcaster *Broadcaster, brain, executor *udp.Publisher) *Monitor {
	return &Monitor{
		decoder:     decoder,
		sigs:        sigs,
		positions:   positions,
		broadcaster: broadcaster,
		brain:       brain,
		executor:    executor,
	}
}

// Run consumes the confirmed transaction stream until ctx is done.
func (m *Monitor) Run(ctx context.Context, txs <-chan *chain.RawTransaction) {
	periodic := time.NewTicker(5 * time.Second)
	defer periodic.Stop()
	staleCheck := time.NewTicker(30 * time.Second)
	defer staleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-periodic.C:
			for _, update := range m.positions.AllUpdates() {
				m.brain.Send(update.Encode())
			}
		case <-staleCheck.C:
			m.positions.LogStale()
		case tx, ok := <-txs:
			if !ok {
				return
			}
			m.handleTransaction(tx)
		}
	}
}

func (m *Monitor) handleTransaction(tx *chain.RawTransaction) {
	decoded := m.decoder.Decode(tx)
	if len(decoded) == 0 {
		// Still a potential confirmation of ours even if unparseable.
		m.resolveIfWatched(tx.Signature, tx.Slot, 0, statusFromTx(tx))
		return
	}

	for _, dec := range decoded {
		// Δ-window capture sees every swap.
		m.broadcaster.Observe(dec)

		priceLamports := uint64(dec.Price * 1e9)

		if m.sigs.IsWatched(dec.Signature) {
			m.resolveIfWatched(dec.Signature, dec.Slot, priceLamports, statusFromTx(tx))
			continue
		}

		switch dec.Class {
		case ClassSell:
			// A SELL we never registered against a held mint is a manual
			// exit: notify the brain and drop the position.
			if m.positions.Has(dec.Mint) {
				if notification := m.positions.CheckManualExit(dec.Mint, priceLamports, solprice.USD()); notification != nil {
					m.brain.Send(notification.Encode())
				}
				continue
			}
			m.touchPosition(dec, priceLamports)
		case ClassBuy:
			m.touchPosition(dec, priceLamports)
		}
	}
}

// touchPosition refreshes P&L for a held mint when the market trades it.
func (m *Monitor) touchPosition(dec *DecodedTx, priceLamports uint64) {
	if priceLamports == 0 || !m.positions.Has(dec.Mint) {
		return
	}
	var pendingBuys, pendingSells uint16
	if dec.Class == ClassBuy {
		pendingBuys = 1
	} else {
		pendingSells = 1
	}
	update, advice := m.positions.UpdatePositionPrice(mintBytes(dec.Mint), priceLamports, solprice.USD(), pendingBuys, pendingSells)
	if update != nil {
		m.brain.Send(update.Encode())
	}
	if advice != nil {
		m.brain.Send(advice.Encode())
	}
}

// resolveIfWatched resolves a watched signature against the stream: emit the
// plain confirmation, start position tracking on confirmed BUYs and kick
// off the Δ-window broadcast.
func (m *Monitor) resolveIfWatched(signature string, slot uint64, priceLamports uint64, status byte) {
	watch := m.sigs.Remove(signature)
	if watch == nil {
		return
	}

	m.ConfirmWatch(watch, slot, status, priceLamports)
}

// ConfirmWatch finalizes one watched signature. Shared by the stream path
// and the RPC polling backstop.
func (m *Monitor) ConfirmWatch(watch *udp.WatchSigEnhanced, slot uint64, status byte, priceLamports uint64) {
	confirmed := &udp.TxConfirmed{
		Signature: watch.Signature,
		Mint:      watch.Mint,
		TradeID:   watch.TradeID,
		Side:      watch.Side,
		Status:    status,
		Slot:      slot,
	}
	packet := confirmed.Encode()
	m.brain.Send(packet)
	m.executor.Send(packet)

	log.Info().
		Str("sig", shorten(watch.SignatureStr(), 12)).
		Str("side", udp.SideString(watch.Side)).
		Uint64("slot", slot).
		Str("status", map[byte]string{0: "SUCCESS", 1: "FAILED"}[status]).
		Msg("✅ TX confirmed")

	if status == udp.StatusSuccess && watch.Side == udp.SideBuy {
		m.positions.AddPosition(watch)
	}
	if status == udp.StatusSuccess && watch.Side == udp.SideSell {
		m.positions.Remove(watch.MintStr())
	}

	if priceLamports == 0 {
		priceLamports = watch.EntryPriceLamports
	}
	go m.broadcaster.BroadcastWithContext(watch, slot, status, priceLamports)
}

func statusFromTx(tx *chain.RawTransaction) byte {
	if tx.Failed {
		return udp.StatusFailed
	}
	return udp.StatusSuccess
}

func mintBytes(mintStr string) [32]byte {
	var out [32]byte
	raw, err := base58.Decode(mintStr)
	if err == nil && len(raw) == 32 {
		copy(out[:], raw)
	}
	return out
}
