package watcher

import (
	"sync"

	"solana-pump-pipeline/internal/chain"
	"solana-pump-pipeline/internal/collector"
)

// TxClass is the decoder's transaction classification.
type TxClass int

const (
	ClassUnknown TxClass = iota
	ClassBuy
	ClassSell
	ClassCreate
)

func (c TxClass) String() string {
	switch c {
	case ClassBuy:
		return "buy"
	case ClassSell:
		return "sell"
	case ClassCreate:
		return "create"
	}
	return "unknown"
}

// WalletType labels the counterparty behind a swap.
type WalletType int

const (
	WalletUnknown WalletType = iota
	WalletWhale
	WalletBot
	WalletRetail
)

func (w WalletType) String() string {
	switch w {
	case WalletWhale:
		return "whale"
	case WalletBot:
		return "bot"
	case WalletRetail:
		return "retail"
	}
	return "unknown"
}

// DecodedTx is the watcher's view of one classified transaction.
type DecodedTx struct {
	Class       TxClass
	Signature   string
	Slot        uint64
	BlockTime   int64
	Mint        string
	Trader      string
	SolAmount   float64
	TokenAmount float64
	Price       float64
	WalletType  WalletType
}

// Decoder classifies raw transactions and labels the wallet behind each
// swap using size thresholds and per-wallet repeat counts.
type Decoder struct {
	parser            *collector.Parser
	whaleThresholdSol float64
	botRepeats        int

	mu     sync.Mutex
	counts map[string]int // wallet → swaps seen this session
}

// NewDecoder builds a decoder over the shared instruction parser.
func NewDecoder(parser *collector.Parser, whaleThresholdSol float64, botRepeats int) *Decoder {
	if whaleThresholdSol <= 0 {
		whaleThresholdSol = 10.0
	}
	if botRepeats <= 0 {
		botRepeats = 5
	}
	return &Decoder{
		parser:            parser,
		whaleThresholdSol: whaleThresholdSol,
		botRepeats:        botRepeats,
		counts:            make(map[string]int),
	}
}

// Decode classifies one raw transaction. Transactions with several parsed
// events yield one DecodedTx per event.
func (d *Decoder) Decode(tx *chain.RawTransaction) []*DecodedTx {
	events := d.parser.Parse(tx)
	if len(events) == 0 {
		return nil
	}

	out := make([]*DecodedTx, 0, len(events))
	for _, ev := range events {
		dec := &DecodedTx{
			Signature: ev.Signature,
			Slot:      ev.Slot,
			BlockTime: ev.BlockTime,
			Mint:      ev.Mint,
		}
		switch ev.Kind {
		case collector.EventLaunch:
			dec.Class = ClassCreate
			dec.Trader = ev.Creator
		case collector.EventTrade:
			if ev.Side == "buy" {
				dec.Class = ClassBuy
			} else {
				dec.Class = ClassSell
			}
			dec.Trader = ev.Trader
			dec.SolAmount = ev.SolAmount
			dec.TokenAmount = ev.TokenAmount
			dec.Price = ev.Price
			dec.WalletType = d.classifyWallet(ev.Trader, ev.SolAmount)
		default:
			dec.Class = ClassUnknown
		}
		out = append(out, dec)
	}
	return out
}

func (d *Decoder) classifyWallet(wallet string, solAmount float64) WalletType {
	d.mu.Lock()
	d.counts[wallet]++
	repeats := d.counts[wallet]
	d.mu.Unlock()

	switch {
	case solAmount >= d.whaleThresholdSol:
		return WalletWhale
	case repeats >= d.botRepeats:
		return WalletBot
	case solAmount > 0:
		return WalletRetail
	}
	return WalletUnknown
}
