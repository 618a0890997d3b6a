package udp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/mr-tron/base58"
)

// Message type discriminators. Every datagram starts with one of these.
const (
	TypeTradeDecision      = 1
	TypeWatchSigEnhanced   = 3
	TypeTxConfirmed        = 11
	TypeExitAdvice         = 15
	TypePositionUpdate     = 16
	TypeManualExit         = 17
	TypeMomentumDetected   = 21
	TypeVolumeSpike        = 22
	TypeWalletActivity     = 23
	TypeTxConfirmedContext = 27
	TypeWindowMetrics      = 29
)

// Fixed record sizes in bytes.
const (
	TradeDecisionSize      = 64
	WatchSigEnhancedSize   = 160
	TxConfirmedSize        = 128
	ExitAdviceSize         = 96
	PositionUpdateSize     = 96
	ManualExitSize         = 96
	MomentumDetectedSize   = 64
	VolumeSpikeSize        = 64
	WalletActivitySize     = 80
	TxConfirmedContextSize = 192
	WindowMetricsSize      = 64
)

// Trade sides and confirmation statuses.
const (
	SideBuy  = 0
	SideSell = 1

	StatusSuccess = 0
	StatusFailed  = 1
)

// Exit advice reasons.
const (
	ReasonTargetHit    = 1
	ReasonStopLoss     = 2
	ReasonMomentumFade = 3
	ReasonTimeDecay    = 4
)

// Entry types carried in TradeDecision.
const (
	EntryRank = iota
	EntryMomentum
	EntryCopyTrade
	EntryLateOpportunity
)

// SideString renders a wire side byte.
func SideString(side byte) string {
	switch side {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	}
	return "UNKNOWN"
}

// ReasonString renders an exit advice reason byte.
func ReasonString(reason byte) string {
	switch reason {
	case ReasonTargetHit:
		return "TARGET_HIT"
	case ReasonStopLoss:
		return "STOP_LOSS"
	case ReasonMomentumFade:
		return "MOMENTUM_FADE"
	case ReasonTimeDecay:
		return "TIME_DECAY"
	}
	return "UNKNOWN"
}

func sizeError(name string, want, got int) error {
	return fmt.Errorf("%s requires %d bytes, got %d", name, want, got)
}

func typeError(name string, want, got byte) error {
	return fmt.Errorf("%s: invalid msg_type: expected %d, got %d", name, want, got)
}

// TradeDecision is the Brain→Executor BUY/SELL instruction (msg 1, 64 B).
type TradeDecision struct {
	Side           byte
	Mint           [32]byte
	AmountLamports uint64
	SlippageBps    uint16
	Confidence     uint8
	EntryType      uint8
	TradeID        [16]byte
	Checksum       uint16
}

// foldChecksum XOR-folds buf into 2 bytes: byte i lands in position i%2.
func foldChecksum(buf []byte) uint16 {
	var lo, hi byte
	for i, b := range buf {
		if i%2 == 0 {
			lo ^= b
		} else {
			hi ^= b
		}
	}
	return uint16(lo) | uint16(hi)<<8
}

// NewBuyDecision builds a BUY TradeDecision with the checksum precomputed.
func NewBuyDecision(mint [32]byte, amountLamports uint64, slippageBps uint16, confidence, entryType uint8, tradeID [16]byte) *TradeDecision {
	d := &TradeDecision{
		Side:           SideBuy,
		Mint:           mint,
		AmountLamports: amountLamports,
		SlippageBps:    slippageBps,
		Confidence:     confidence,
		EntryType:      entryType,
		TradeID:        tradeID,
	}
	d.Checksum = foldChecksum(d.encodeBody())
	return d
}

// NewSellDecision builds a SELL TradeDecision with the checksum precomputed.
func NewSellDecision(mint [32]byte, amountLamports uint64, slippageBps uint16, confidence uint8, tradeID [16]byte) *TradeDecision {
	d := &TradeDecision{
		Side:           SideSell,
		Mint:           mint,
		AmountLamports: amountLamports,
		SlippageBps:    slippageBps,
		Confidence:     confidence,
		TradeID:        tradeID,
	}
	d.Checksum = foldChecksum(d.encodeBody())
	return d
}

func (d *TradeDecision) encodeBody() []byte {
	buf := make([]byte, TradeDecisionSize)
	buf[0] = TypeTradeDecision
	buf[1] = d.Side
	copy(buf[2:34], d.Mint[:])
	binary.LittleEndian.PutUint64(buf[34:42], d.AmountLamports)
	binary.LittleEndian.PutUint16(buf[42:44], d.SlippageBps)
	buf[44] = d.Confidence
	buf[45] = d.EntryType
	copy(buf[46:62], d.TradeID[:])
	return buf[:62]
}

// Encode serializes to the 64-byte wire record.
func (d *TradeDecision) Encode() []byte {
	buf := make([]byte, TradeDecisionSize)
	copy(buf, d.encodeBody())
	binary.LittleEndian.PutUint16(buf[62:64], d.Checksum)
	return buf
}

// DecodeTradeDecision parses a 64-byte TradeDecision datagram.
func DecodeTradeDecision(buf []byte) (*TradeDecision, error) {
	if len(buf) < TradeDecisionSize {
		return nil, sizeError("TradeDecision", TradeDecisionSize, len(buf))
	}
	if buf[0] != TypeTradeDecision {
		return nil, typeError("TradeDecision", TypeTradeDecision, buf[0])
	}
	d := &TradeDecision{
		Side:           buf[1],
		AmountLamports: binary.LittleEndian.Uint64(buf[34:42]),
		SlippageBps:    binary.LittleEndian.Uint16(buf[42:44]),
		Confidence:     buf[44],
		EntryType:      buf[45],
		Checksum:       binary.LittleEndian.Uint16(buf[62:64]),
	}
	copy(d.Mint[:], buf[2:34])
	copy(d.TradeID[:], buf[46:62])
	return d, nil
}

// VerifyChecksum recomputes the XOR fold and compares it to the stored value.
func (d *TradeDecision) VerifyChecksum() bool {
	return foldChecksum(d.encodeBody()) == d.Checksum
}

// MintStr returns the mint as base58.
func (d *TradeDecision) MintStr() string { return base58.Encode(d.Mint[:]) }

// TradeIDStr returns the trade id as hex.
func (d *TradeDecision) TradeIDStr() string { return hex.EncodeToString(d.TradeID[:]) }

// WatchSigEnhanced is the Executor→Watcher signature registration with full
// trade metadata (msg 3, 160 B).
type WatchSigEnhanced struct {
	Signature           [64]byte
	Mint                [32]byte
	TradeID             [16]byte
	Side                byte
	EntryPriceLamports  uint64
	SizeSolScaled       uint32 // SOL × 1000
	SlippageBps         uint16
	FeeBps              uint16
	ProfitTargetCents   int32
	StopLossCents       int32
}

// NewWatchSigEnhanced builds a registration from unscaled values.
func NewWatchSigEnhanced(sig [64]byte, mint [32]byte, tradeID [16]byte, side byte,
	entryPriceLamports uint64, sizeSol float64, slippageBps, feeBps uint16,
	profitTargetUSD, stopLossUSD float64) *WatchSigEnhanced {
	return &WatchSigEnhanced{
		Signature:          sig,
		Mint:               mint,
		TradeID:            tradeID,
		Side:               side,
		EntryPriceLamports: entryPriceLamports,
		SizeSolScaled:      uint32(sizeSol * 1000),
		SlippageBps:        slippageBps,
		FeeBps:             feeBps,
		ProfitTargetCents:  int32(profitTargetUSD * 100),
		StopLossCents:      int32(stopLossUSD * 100),
	}
}

// Encode serializes to the 160-byte wire record.
func (w *WatchSigEnhanced) Encode() []byte {
	buf := make([]byte, WatchSigEnhancedSize)
	buf[0] = TypeWatchSigEnhanced
	copy(buf[1:65], w.Signature[:])
	copy(buf[65:97], w.Mint[:])
	copy(buf[97:113], w.TradeID[:])
	buf[113] = w.Side
	binary.LittleEndian.PutUint64(buf[114:122], w.EntryPriceLamports)
	binary.LittleEndian.PutUint32(buf[122:126], w.SizeSolScaled)
	binary.LittleEndian.PutUint16(buf[126:128], w.SlippageBps)
	binary.LittleEndian.PutUint16(buf[128:130], w.FeeBps)
	binary.LittleEndian.PutUint32(buf[130:134], uint32(w.ProfitTargetCents))
	binary.LittleEndian.PutUint32(buf[134:138], uint32(w.StopLossCents))
	return buf
}

// DecodeWatchSigEnhanced parses a 160-byte WatchSigEnhanced datagram.
func DecodeWatchSigEnhanced(buf []byte) (*WatchSigEnhanced, error) {
	if len(buf) < WatchSigEnhancedSize {
		return nil, sizeError("WatchSigEnhanced", WatchSigEnhancedSize, len(buf))
	}
	if buf[0] != TypeWatchSigEnhanced {
		return nil, typeError("WatchSigEnhanced", TypeWatchSigEnhanced, buf[0])
	}
	w := &WatchSigEnhanced{
		Side:               buf[113],
		EntryPriceLamports: binary.LittleEndian.Uint64(buf[114:122]),
		SizeSolScaled:      binary.LittleEndian.Uint32(buf[122:126]),
		SlippageBps:        binary.LittleEndian.Uint16(buf[126:128]),
		FeeBps:             binary.LittleEndian.Uint16(buf[128:130]),
		ProfitTargetCents:  int32(binary.LittleEndian.Uint32(buf[130:134])),
		StopLossCents:      int32(binary.LittleEndian.Uint32(buf[134:138])),
	}
	copy(w.Signature[:], buf[1:65])
	copy(w.Mint[:], buf[65:97])
	copy(w.TradeID[:], buf[97:113])
	return w, nil
}

// SizeSol returns the position size in SOL.
func (w *WatchSigEnhanced) SizeSol() float64 { return float64(w.SizeSolScaled) / 1000 }

// ProfitTargetUSD returns the profit target in dollars.
func (w *WatchSigEnhanced) ProfitTargetUSD() float64 { return float64(w.ProfitTargetCents) / 100 }

// StopLossUSD returns the stop loss in dollars (negative for a real stop).
func (w *WatchSigEnhanced) StopLossUSD() float64 { return float64(w.StopLossCents) / 100 }

// SignatureStr returns the signature as base58.
func (w *WatchSigEnhanced) SignatureStr() string { return base58.Encode(w.Signature[:]) }

// MintStr returns the mint as base58.
func (w *WatchSigEnhanced) MintStr() string { return base58.Encode(w.Mint[:]) }

// TxConfirmed is the plain confirmation (msg 11, 128 B), emitted by the
// watcher to both Brain and Executor. The brain resolves it by trade id and
// ignores a repeat for a trade it has already resolved.
type TxConfirmed struct {
	Signature [64]byte
	Mint      [32]byte
	TradeID   [16]byte
	Side      byte
	Status    byte
	Slot      uint64
}

// Encode serializes to the 128-byte wire record.
func (t *TxConfirmed) Encode() []byte {
	buf := make([]byte, TxConfirmedSize)
	buf[0] = TypeTxConfirmed
	copy(buf[1:65], t.Signature[:])
	copy(buf[65:97], t.Mint[:])
	copy(buf[97:113], t.TradeID[:])
	buf[113] = t.Side
	buf[114] = t.Status
	binary.LittleEndian.PutUint64(buf[115:123], t.Slot)
	return buf
}

// DecodeTxConfirmed parses a 128-byte TxConfirmed datagram.
func DecodeTxConfirmed(buf []byte) (*TxConfirmed, error) {
	if len(buf) < TxConfirmedSize {
		return nil, sizeError("TxConfirmed", TxConfirmedSize, len(buf))
	}
	if buf[0] != TypeTxConfirmed {
		return nil, typeError("TxConfirmed", TypeTxConfirmed, buf[0])
	}
	t := &TxConfirmed{
		Side:   buf[113],
		Status: buf[114],
		Slot:   binary.LittleEndian.Uint64(buf[115:123]),
	}
	copy(t.Signature[:], buf[1:65])
	copy(t.Mint[:], buf[65:97])
	copy(t.TradeID[:], buf[97:113])
	return t, nil
}

// SignatureStr returns the signature as base58.
func (t *TxConfirmed) SignatureStr() string { return base58.Encode(t.Signature[:]) }

// ExitAdvice recommends exiting a position now (msg 15, 96 B).
type ExitAdvice struct {
	TradeID              [16]byte
	Mint                 [32]byte
	Reason               byte
	Confidence           uint8
	RealizedPnLCents     int32
	EntryPriceLamports   uint64
	CurrentPriceLamports uint64
	HoldTimeMs           uint32
}

// NewExitAdvice builds advice from an unscaled USD P&L.
func NewExitAdvice(tradeID [16]byte, mint [32]byte, reason byte, confidence uint8,
	realizedPnLUSD float64, entryPrice, currentPrice uint64, holdTimeMs uint32) *ExitAdvice {
	return &ExitAdvice{
		TradeID:              tradeID,
		Mint:                 mint,
		Reason:               reason,
		Confidence:           confidence,
		RealizedPnLCents:     int32(realizedPnLUSD * 100),
		EntryPriceLamports:   entryPrice,
		CurrentPriceLamports: currentPrice,
		HoldTimeMs:           holdTimeMs,
	}
}

// Encode serializes to the 96-byte wire record.
func (e *ExitAdvice) Encode() []byte {
	buf := make([]byte, ExitAdviceSize)
	buf[0] = TypeExitAdvice
	copy(buf[1:17], e.TradeID[:])
	copy(buf[17:49], e.Mint[:])
	buf[49] = e.Reason
	buf[50] = e.Confidence
	binary.LittleEndian.PutUint32(buf[51:55], uint32(e.RealizedPnLCents))
	binary.LittleEndian.PutUint64(buf[55:63], e.EntryPriceLamports)
	binary.LittleEndian.PutUint64(buf[63:71], e.CurrentPriceLamports)
	binary.LittleEndian.PutUint32(buf[71:75], e.HoldTimeMs)
	return buf
}

// DecodeExitAdvice parses a 96-byte ExitAdvice datagram.
func DecodeExitAdvice(buf []byte) (*ExitAdvice, error) {
	if len(buf) < ExitAdviceSize {
		return nil, sizeError("ExitAdvice", ExitAdviceSize, len(buf))
	}
	if buf[0] != TypeExitAdvice {
		return nil, typeError("ExitAdvice", TypeExitAdvice, buf[0])
	}
	e := &ExitAdvice{
		Reason:               buf[49],
		Confidence:           buf[50],
		RealizedPnLCents:     int32(binary.LittleEndian.Uint32(buf[51:55])),
		EntryPriceLamports:   binary.LittleEndian.Uint64(buf[55:63]),
		CurrentPriceLamports: binary.LittleEndian.Uint64(buf[63:71]),
		HoldTimeMs:           binary.LittleEndian.Uint32(buf[71:75]),
	}
	copy(e.TradeID[:], buf[1:17])
	copy(e.Mint[:], buf[17:49])
	return e, nil
}

// RealizedPnLUSD returns the P&L in dollars.
func (e *ExitAdvice) RealizedPnLUSD() float64 { return float64(e.RealizedPnLCents) / 100 }

// ReasonStr renders the reason byte.
func (e *ExitAdvice) ReasonStr() string { return ReasonString(e.Reason) }

// PositionUpdate flag bits.
const (
	FlagProfitTargetHit   = 1 << 0
	FlagStopLossHit       = 1 << 1
	FlagNoMempoolActivity = 1 << 2
)

// PositionUpdate is the periodic P&L snapshot (msg 16, 96 B). Updates for a
// position are ordered by TimestampNs; receivers drop older-than-last.
type PositionUpdate struct {
	Mint                 [32]byte
	TradeID              [16]byte
	TimestampNs          uint64
	EntryPriceLamports   uint64
	CurrentPriceLamports uint64
	SizeSol              float32
	PnLUSD               float32
	PnLPercent           float32
	PendingBuys          uint16
	PendingSells         uint16
	PriceVelocity        float32
	Flags                byte
}

// Encode serializes to the 96-byte wire record.
func (p *PositionUpdate) Encode() []byte {
	buf := make([]byte, PositionUpdateSize)
	buf[0] = TypePositionUpdate
	copy(buf[1:33], p.Mint[:])
	copy(buf[33:49], p.TradeID[:])
	binary.LittleEndian.PutUint64(buf[49:57], p.TimestampNs)
	binary.LittleEndian.PutUint64(buf[57:65], p.EntryPriceLamports)
	binary.LittleEndian.PutUint64(buf[65:73], p.CurrentPriceLamports)
	binary.LittleEndian.PutUint32(buf[73:77], math.Float32bits(p.SizeSol))
	binary.LittleEndian.PutUint32(buf[77:81], math.Float32bits(p.PnLUSD))
	binary.LittleEndian.PutUint32(buf[81:85], math.Float32bits(p.PnLPercent))
	binary.LittleEndian.PutUint16(buf[85:87], p.PendingBuys)
	binary.LittleEndian.PutUint16(buf[87:89], p.PendingSells)
	binary.LittleEndian.PutUint32(buf[89:93], math.Float32bits(p.PriceVelocity))
	buf[93] = p.Flags
	return buf
}

// DecodePositionUpdate parses a 96-byte PositionUpdate datagram.
func DecodePositionUpdate(buf []byte) (*PositionUpdate, error) {
	if len(buf) < PositionUpdateSize {
		return nil, sizeError("PositionUpdate", PositionUpdateSize, len(buf))
	}
	if buf[0] != TypePositionUpdate {
		return nil, typeError("PositionUpdate", TypePositionUpdate, buf[0])
	}
	p := &PositionUpdate{
		TimestampNs:          binary.LittleEndian.Uint64(buf[49:57]),
		EntryPriceLamports:   binary.LittleEndian.Uint64(buf[57:65]),
		CurrentPriceLamports: binary.LittleEndian.Uint64(buf[65:73]),
		SizeSol:              math.Float32frombits(binary.LittleEndian.Uint32(buf[73:77])),
		PnLUSD:               math.Float32frombits(binary.LittleEndian.Uint32(buf[77:81])),
		PnLPercent:           math.Float32frombits(binary.LittleEndian.Uint32(buf[81:85])),
		PendingBuys:          binary.LittleEndian.Uint16(buf[85:87]),
		PendingSells:         binary.LittleEndian.Uint16(buf[87:89]),
		PriceVelocity:        math.Float32frombits(binary.LittleEndian.Uint32(buf[89:93])),
		Flags:                buf[93],
	}
	copy(p.Mint[:], buf[1:33])
	copy(p.TradeID[:], buf[33:49])
	return p, nil
}

// ProfitTargetHit reports the profit-target flag.
func (p *PositionUpdate) ProfitTargetHit() bool { return p.Flags&FlagProfitTargetHit != 0 }

// StopLossHit reports the stop-loss flag.
func (p *PositionUpdate) StopLossHit() bool { return p.Flags&FlagStopLossHit != 0 }

// NoMempoolActivity reports the no-activity flag.
func (p *PositionUpdate) NoMempoolActivity() bool { return p.Flags&FlagNoMempoolActivity != 0 }

// ManualExit notifies Brain that a held position was sold out-of-band
// (msg 17, 96 B).
type ManualExit struct {
	Mint               [32]byte
	TradeID            [16]byte
	EntryPriceLamports uint64
	ExitPriceLamports  uint64
	SizeSol            float32
	RealizedPnLUSD     float32
	PnLPercent         float32
	HoldTimeSecs       uint32
}

// Encode serializes to the 96-byte wire record.
func (m *ManualExit) Encode() []byte {
	buf := make([]byte, ManualExitSize)
	buf[0] = TypeManualExit
	copy(buf[1:33], m.Mint[:])
	copy(buf[33:49], m.TradeID[:])
	binary.LittleEndian.PutUint64(buf[49:57], m.EntryPriceLamports)
	binary.LittleEndian.PutUint64(buf[57:65], m.ExitPriceLamports)
	binary.LittleEndian.PutUint32(buf[65:69], math.Float32bits(m.SizeSol))
	binary.LittleEndian.PutUint32(buf[69:73], math.Float32bits(m.RealizedPnLUSD))
	binary.LittleEndian.PutUint32(buf[73:77], math.Float32bits(m.PnLPercent))
	binary.LittleEndian.PutUint32(buf[77:81], m.HoldTimeSecs)
	return buf
}

// DecodeManualExit parses a 96-byte ManualExit datagram.
func DecodeManualExit(buf []byte) (*ManualExit, error) {
	if len(buf) < ManualExitSize {
		return nil, sizeError("ManualExit", ManualExitSize, len(buf))
	}
	if buf[0] != TypeManualExit {
		return nil, typeError("ManualExit", TypeManualExit, buf[0])
	}
	m := &ManualExit{
		EntryPriceLamports: binary.LittleEndian.Uint64(buf[49:57]),
		ExitPriceLamports:  binary.LittleEndian.Uint64(buf[57:65]),
		SizeSol:            math.Float32frombits(binary.LittleEndian.Uint32(buf[65:69])),
		RealizedPnLUSD:     math.Float32frombits(binary.LittleEndian.Uint32(buf[69:73])),
		PnLPercent:         math.Float32frombits(binary.LittleEndian.Uint32(buf[73:77])),
		HoldTimeSecs:       binary.LittleEndian.Uint32(buf[77:81]),
	}
	copy(m.Mint[:], buf[1:33])
	copy(m.TradeID[:], buf[33:49])
	return m, nil
}

// MomentumDetected reports a micro-burst (msg 21, 64 B).
type MomentumDetected struct {
	Mint         [32]byte
	Buys500ms    uint16
	VolumeSol    float32
	UniqueBuyers uint16
	Confidence   uint8
	TimestampNs  uint64
}

// Encode serializes to the 64-byte wire record.
func (m *MomentumDetected) Encode() []byte {
	buf := make([]byte, MomentumDetectedSize)
	buf[0] = TypeMomentumDetected
	copy(buf[1:33], m.Mint[:])
	binary.LittleEndian.PutUint16(buf[33:35], m.Buys500ms)
	binary.LittleEndian.PutUint32(buf[35:39], math.Float32bits(m.VolumeSol))
	binary.LittleEndian.PutUint16(buf[39:41], m.UniqueBuyers)
	buf[41] = m.Confidence
	binary.LittleEndian.PutUint64(buf[42:50], m.TimestampNs)
	return buf
}

// DecodeMomentumDetected parses a 64-byte MomentumDetected datagram.
func DecodeMomentumDetected(buf []byte) (*MomentumDetected, error) {
	if len(buf) < MomentumDetectedSize {
		return nil, sizeError("MomentumDetected", MomentumDetectedSize, len(buf))
	}
	if buf[0] != TypeMomentumDetected {
		return nil, typeError("MomentumDetected", TypeMomentumDetected, buf[0])
	}
	m := &MomentumDetected{
		Buys500ms:    binary.LittleEndian.Uint16(buf[33:35]),
		VolumeSol:    math.Float32frombits(binary.LittleEndian.Uint32(buf[35:39])),
		UniqueBuyers: binary.LittleEndian.Uint16(buf[39:41]),
		Confidence:   buf[41],
		TimestampNs:  binary.LittleEndian.Uint64(buf[42:50]),
	}
	copy(m.Mint[:], buf[1:33])
	return m, nil
}

// VolumeSpike reports a volume surge (msg 22, 64 B).
type VolumeSpike struct {
	Mint        [32]byte
	TotalSol    float32
	TxCount     uint16
	WindowMs    uint16
	Confidence  uint8
	TimestampNs uint64
}

// Encode serializes to the 64-byte wire record.
func (v *VolumeSpike) Encode() []byte {
	buf := make([]byte, VolumeSpikeSize)
	buf[0] = TypeVolumeSpike
	copy(buf[1:33], v.Mint[:])
	binary.LittleEndian.PutUint32(buf[33:37], math.Float32bits(v.TotalSol))
	binary.LittleEndian.PutUint16(buf[37:39], v.TxCount)
	binary.LittleEndian.PutUint16(buf[39:41], v.WindowMs)
	buf[41] = v.Confidence
	binary.LittleEndian.PutUint64(buf[42:50], v.TimestampNs)
	return buf
}

// DecodeVolumeSpike parses a 64-byte VolumeSpike datagram.
func DecodeVolumeSpike(buf []byte) (*VolumeSpike, error) {
	if len(buf) < VolumeSpikeSize {
		return nil, sizeError("VolumeSpike", VolumeSpikeSize, len(buf))
	}
	if buf[0] != TypeVolumeSpike {
		return nil, typeError("VolumeSpike", TypeVolumeSpike, buf[0])
	}
	v := &VolumeSpike{
		TotalSol:    math.Float32frombits(binary.LittleEndian.Uint32(buf[33:37])),
		TxCount:     binary.LittleEndian.Uint16(buf[37:39]),
		WindowMs:    binary.LittleEndian.Uint16(buf[39:41]),
		Confidence:  buf[41],
		TimestampNs: binary.LittleEndian.Uint64(buf[42:50]),
	}
	copy(v.Mint[:], buf[1:33])
	return v, nil
}

// WalletActivity reports a tracked-wallet move (msg 23, 80 B).
type WalletActivity struct {
	Mint        [32]byte
	Wallet      [32]byte
	Action      byte // 0=BUY, 1=SELL
	SizeSol     float32
	Tier        uint8
	Confidence  uint8
	TimestampNs uint64
}

// Encode serializes to the 80-byte wire record.
func (w *WalletActivity) Encode() []byte {
	buf := make([]byte, WalletActivitySize)
	buf[0] = TypeWalletActivity
	copy(buf[1:33], w.Mint[:])
	copy(buf[33:65], w.Wallet[:])
	buf[65] = w.Action
	binary.LittleEndian.PutUint32(buf[66:70], math.Float32bits(w.SizeSol))
	buf[70] = w.Tier
	buf[71] = w.Confidence
	binary.LittleEndian.PutUint64(buf[72:80], w.TimestampNs)
	return buf
}

// DecodeWalletActivity parses an 80-byte WalletActivity datagram.
func DecodeWalletActivity(buf []byte) (*WalletActivity, error) {
	if len(buf) < WalletActivitySize {
		return nil, sizeError("WalletActivity", WalletActivitySize, len(buf))
	}
	if buf[0] != TypeWalletActivity {
		return nil, typeError("WalletActivity", TypeWalletActivity, buf[0])
	}
	w := &WalletActivity{
		Action:      buf[65],
		SizeSol:     math.Float32frombits(binary.LittleEndian.Uint32(buf[66:70])),
		Tier:        buf[70],
		Confidence:  buf[71],
		TimestampNs: binary.LittleEndian.Uint64(buf[72:80]),
	}
	copy(w.Mint[:], buf[1:33])
	copy(w.Wallet[:], buf[33:65])
	return w, nil
}

// TxConfirmedContext is the enhanced confirmation with Δ-window market
// context (msg 27, 192 B). Sent to both Brain and Executor so neither needs
// a follow-up query before reacting.
type TxConfirmedContext struct {
	Signature   [64]byte
	Mint        [32]byte
	TradeID     [16]byte
	Side        byte
	Status      byte
	Slot        uint64
	TimestampNs uint64

	// Δ-window context (150-250ms after our tx).
	TrailMs             uint16
	SameSlotAfter       uint16
	NextSlotCount       uint16
	UniqBuyersDelta     uint16
	VolBuySolDelta      uint32 // SOL × 1000
	VolSellSolDelta     uint32 // SOL × 1000
	PriceChangeBpsDelta int16
	AlphaHitsDelta      uint8

	// Entry data carried over from the WatchSig.
	EntryPriceLamports uint64
	SizeSolScaled      uint32 // SOL × 1000
	SlippageBps        uint16
	FeeBps             uint16
	RealizedPnLCents   int32
}

// Encode serializes to the 192-byte wire record.
func (t *TxConfirmedContext) Encode() []byte {
	buf := make([]byte, TxConfirmedContextSize)
	buf[0] = TypeTxConfirmedContext
	copy(buf[1:65], t.Signature[:])
	copy(buf[65:97], t.Mint[:])
	copy(buf[97:113], t.TradeID[:])
	buf[113] = t.Side
	buf[114] = t.Status
	binary.LittleEndian.PutUint64(buf[115:123], t.Slot)
	binary.LittleEndian.PutUint64(buf[123:131], t.TimestampNs)
	binary.LittleEndian.PutUint16(buf[131:133], t.TrailMs)
	binary.LittleEndian.PutUint16(buf[133:135], t.SameSlotAfter)
	binary.LittleEndian.PutUint16(buf[135:137], t.NextSlotCount)
	binary.LittleEndian.PutUint16(buf[137:139], t.UniqBuyersDelta)
	binary.LittleEndian.PutUint32(buf[139:143], t.VolBuySolDelta)
	binary.LittleEndian.PutUint32(buf[143:147], t.VolSellSolDelta)
	binary.LittleEndian.PutUint16(buf[147:149], uint16(t.PriceChangeBpsDelta))
	buf[149] = t.AlphaHitsDelta
	binary.LittleEndian.PutUint64(buf[150:158], t.EntryPriceLamports)
	binary.LittleEndian.PutUint32(buf[158:162], t.SizeSolScaled)
	binary.LittleEndian.PutUint16(buf[162:164], t.SlippageBps)
	binary.LittleEndian.PutUint16(buf[164:166], t.FeeBps)
	binary.LittleEndian.PutUint32(buf[166:170], uint32(t.RealizedPnLCents))
	return buf
}

// DecodeTxConfirmedContext parses a 192-byte TxConfirmedContext datagram.
func DecodeTxConfirmedContext(buf []byte) (*TxConfirmedContext, error) {
	if len(buf) < TxConfirmedContextSize {
		return nil, sizeError("TxConfirmedContext", TxConfirmedContextSize, len(buf))
	}
	if buf[0] != TypeTxConfirmedContext {
		return nil, typeError("TxConfirmedContext", TypeTxConfirmedContext, buf[0])
	}
	t := &TxConfirmedContext{
		Side:                buf[113],
		Status:              buf[114],
		Slot:                binary.LittleEndian.Uint64(buf[115:123]),
		TimestampNs:         binary.LittleEndian.Uint64(buf[123:131]),
		TrailMs:             binary.LittleEndian.Uint16(buf[131:133]),
		SameSlotAfter:       binary.LittleEndian.Uint16(buf[133:135]),
		NextSlotCount:       binary.LittleEndian.Uint16(buf[135:137]),
		UniqBuyersDelta:     binary.LittleEndian.Uint16(buf[137:139]),
		VolBuySolDelta:      binary.LittleEndian.Uint32(buf[139:143]),
		VolSellSolDelta:     binary.LittleEndian.Uint32(buf[143:147]),
		PriceChangeBpsDelta: int16(binary.LittleEndian.Uint16(buf[147:149])),
		AlphaHitsDelta:      buf[149],
		EntryPriceLamports:  binary.LittleEndian.Uint64(buf[150:158]),
		SizeSolScaled:       binary.LittleEndian.Uint32(buf[158:162]),
		SlippageBps:         binary.LittleEndian.Uint16(buf[162:164]),
		FeeBps:              binary.LittleEndian.Uint16(buf[164:166]),
		RealizedPnLCents:    int32(binary.LittleEndian.Uint32(buf[166:170])),
	}
	copy(t.Signature[:], buf[1:65])
	copy(t.Mint[:], buf[65:97])
	copy(t.TradeID[:], buf[97:113])
	return t, nil
}

// VolBuySol returns the Δ-window buy volume in SOL.
func (t *TxConfirmedContext) VolBuySol() float64 { return float64(t.VolBuySolDelta) / 1000 }

// VolSellSol returns the Δ-window sell volume in SOL.
func (t *TxConfirmedContext) VolSellSol() float64 { return float64(t.VolSellSolDelta) / 1000 }

// SizeSol returns the position size in SOL.
func (t *TxConfirmedContext) SizeSol() float64 { return float64(t.SizeSolScaled) / 1000 }

// RealizedPnLUSD returns the P&L in dollars.
func (t *TxConfirmedContext) RealizedPnLUSD() float64 { return float64(t.RealizedPnLCents) / 100 }

// StatusStr renders the status byte.
func (t *TxConfirmedContext) StatusStr() string {
	if t.Status == StatusSuccess {
		return "SUCCESS"
	}
	return "FAILED"
}

// SideStr renders the side byte.
func (t *TxConfirmedContext) SideStr() string { return SideString(t.Side) }

// IsMomentumBuilding reports whether buyers outweigh sellers in the window.
func (t *TxConfirmedContext) IsMomentumBuilding() bool { return t.VolBuySolDelta > t.VolSellSolDelta }

// WindowMetrics is the rolling telemetry packet (msg 29, 64 B).
type WindowMetrics struct {
	Mint               [32]byte
	VolumeSol1sScaled  uint32 // SOL × 1000
	UniqueBuyers1s     uint16
	PriceChangeBps2s   int16
	AlphaWalletHits10s uint8
	TimestampNs        uint64
}

// Encode serializes to the 64-byte wire record.
func (w *WindowMetrics) Encode() []byte {
	buf := make([]byte, WindowMetricsSize)
	buf[0] = TypeWindowMetrics
	copy(buf[1:33], w.Mint[:])
	binary.LittleEndian.PutUint32(buf[33:37], w.VolumeSol1sScaled)
	binary.LittleEndian.PutUint16(buf[37:39], w.UniqueBuyers1s)
	binary.LittleEndian.PutUint16(buf[39:41], uint16(w.PriceChangeBps2s))
	buf[41] = w.AlphaWalletHits10s
	binary.LittleEndian.PutUint64(buf[42:50], w.TimestampNs)
	return buf
}

// DecodeWindowMetrics parses a 64-byte WindowMetrics datagram.
func DecodeWindowMetrics(buf []byte) (*WindowMetrics, error) {
	if len(buf) < WindowMetricsSize {
		return nil, sizeError("WindowMetrics", WindowMetricsSize, len(buf))
	}
	if buf[0] != TypeWindowMetrics {
		return nil, typeError("WindowMetrics", TypeWindowMetrics, buf[0])
	}
	w := &WindowMetrics{
		VolumeSol1sScaled:  binary.LittleEndian.Uint32(buf[33:37]),
		UniqueBuyers1s:     binary.LittleEndian.Uint16(buf[37:39]),
		PriceChangeBps2s:   int16(binary.LittleEndian.Uint16(buf[39:41])),
		AlphaWalletHits10s: buf[41],
		TimestampNs:        binary.LittleEndian.Uint64(buf[42:50]),
	}
	copy(w.Mint[:], buf[1:33])
	return w, nil
}

// VolumeSol1s returns the 1-second volume in SOL.
func (w *WindowMetrics) VolumeSol1s() float64 { return float64(w.VolumeSol1sScaled) / 1000 }

// DeclaredSize returns the record size for a message type, or 0 for unknown.
func DeclaredSize(msgType byte) int {
	switch msgType {
	case TypeTradeDecision:
		return TradeDecisionSize
	case TypeWatchSigEnhanced:
		return WatchSigEnhancedSize
	case TypeTxConfirmed:
		return TxConfirmedSize
	case TypeExitAdvice:
		return ExitAdviceSize
	case TypePositionUpdate:
		return PositionUpdateSize
	case TypeManualExit:
		return ManualExitSize
	case TypeMomentumDetected:
		return MomentumDetectedSize
	case TypeVolumeSpike:
		return VolumeSpikeSize
	case TypeWalletActivity:
		return WalletActivitySize
	case TypeTxConfirmedContext:
		return TxConfirmedContextSize
	case TypeWindowMetrics:
		return WindowMetricsSize
	}
	return 0
}
