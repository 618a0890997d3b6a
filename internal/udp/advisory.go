package udp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mr-tron/base58"
)

// Advisory types use their own discriminator space on the advice bus.
const (
	AdvisoryExtendHold      = 1
	AdvisoryWidenExit       = 2
	AdvisoryLateOpportunity = 3
	AdvisoryCopyTrade       = 4
	AdvisorySolPriceUpdate  = 5
	AdvisoryEmergencyExit   = 6
)

// AdvisorySize is the fixed datagram size on the advice bus. Older senders
// emit 64-byte packets; the listener accepts anything ≥ 64 and ignores the
// tail padding.
const (
	AdvisorySize    = 96
	AdvisoryMinSize = 64
)

// Advisory is a live-intelligence packet from a collector. Exactly one of
// the per-type field groups is meaningful, selected by Type.
type Advisory struct {
	Type byte

	Mint   [32]byte
	Wallet [32]byte

	// ExtendHold
	ExtraSecs uint16

	// WidenExit
	SellSlipBps uint16
	TTLMs       uint16

	// LateOpportunity
	HorizonSec uint16
	Score      uint8

	// CopyTrade
	TradeSizeSol float32

	// SolPriceUpdate
	PriceCents    uint32
	TimestampSecs uint32
	Source        uint8

	// EmergencyExit
	SellAmountSolScaled uint32 // SOL × 1000
	WalletWinRate       uint8

	Confidence uint8
}

// Encode serializes to a 96-byte advice-bus datagram.
func (a *Advisory) Encode() []byte {
	buf := make([]byte, AdvisorySize)
	buf[0] = a.Type
	switch a.Type {
	case AdvisoryExtendHold:
		copy(buf[1:33], a.Mint[:])
		binary.LittleEndian.PutUint16(buf[33:35], a.ExtraSecs)
		buf[35] = a.Confidence
	case AdvisoryWidenExit:
		copy(buf[1:33], a.Mint[:])
		binary.LittleEndian.PutUint16(buf[33:35], a.SellSlipBps)
		binary.LittleEndian.PutUint16(buf[35:37], a.TTLMs)
		buf[37] = a.Confidence
	case AdvisoryLateOpportunity:
		copy(buf[1:33], a.Mint[:])
		binary.LittleEndian.PutUint16(buf[33:35], a.HorizonSec)
		buf[35] = a.Score
	case AdvisoryCopyTrade:
		copy(buf[1:33], a.Mint[:])
		copy(buf[33:65], a.Wallet[:])
		buf[65] = a.Confidence
		binary.LittleEndian.PutUint32(buf[66:70], math.Float32bits(a.TradeSizeSol))
	case AdvisorySolPriceUpdate:
		binary.LittleEndian.PutUint32(buf[1:5], a.PriceCents)
		binary.LittleEndian.PutUint32(buf[5:9], a.TimestampSecs)
		buf[9] = a.Source
	case AdvisoryEmergencyExit:
		copy(buf[1:33], a.Mint[:])
		copy(buf[33:65], a.Wallet[:])
		binary.LittleEndian.PutUint32(buf[65:69], a.SellAmountSolScaled)
		buf[69] = a.WalletWinRate
		buf[70] = a.Confidence
	}
	return buf
}

// DecodeAdvisory parses an advice-bus datagram.
func DecodeAdvisory(buf []byte) (*Advisory, error) {
	if len(buf) < AdvisoryMinSize {
		return nil, fmt.Errorf("advisory message too short: %d bytes", len(buf))
	}
	a := &Advisory{Type: buf[0]}
	switch a.Type {
	case AdvisoryExtendHold:
		copy(a.Mint[:], buf[1:33])
		a.ExtraSecs = binary.LittleEndian.Uint16(buf[33:35])
		a.Confidence = buf[35]
	case AdvisoryWidenExit:
		copy(a.Mint[:], buf[1:33])
		a.SellSlipBps = binary.LittleEndian.Uint16(buf[33:35])
		a.TTLMs = binary.LittleEndian.Uint16(buf[35:37])
		a.Confidence = buf[37]
	case AdvisoryLateOpportunity:
		copy(a.Mint[:], buf[1:33])
		a.HorizonSec = binary.LittleEndian.Uint16(buf[33:35])
		a.Score = buf[35]
	case AdvisoryCopyTrade:
		if len(buf) < 70 {
			return nil, fmt.Errorf("copy-trade advisory too short: %d bytes", len(buf))
		}
		copy(a.Mint[:], buf[1:33])
		copy(a.Wallet[:], buf[33:65])
		a.Confidence = buf[65]
		a.TradeSizeSol = math.Float32frombits(binary.LittleEndian.Uint32(buf[66:70]))
	case AdvisorySolPriceUpdate:
		a.PriceCents = binary.LittleEndian.Uint32(buf[1:5])
		a.TimestampSecs = binary.LittleEndian.Uint32(buf[5:9])
		a.Source = buf[9]
	case AdvisoryEmergencyExit:
		if len(buf) < 71 {
			return nil, fmt.Errorf("emergency-exit advisory too short: %d bytes", len(buf))
		}
		copy(a.Mint[:], buf[1:33])
		copy(a.Wallet[:], buf[33:65])
		a.SellAmountSolScaled = binary.LittleEndian.Uint32(buf[65:69])
		a.WalletWinRate = buf[69]
		a.Confidence = buf[70]
	default:
		return nil, fmt.Errorf("unknown advisory type: %d", a.Type)
	}
	return a, nil
}

// EffectiveConfidence returns the 0-100 confidence regardless of variant.
// Price updates are always fully trusted.
func (a *Advisory) EffectiveConfidence() uint8 {
	switch a.Type {
	case AdvisoryLateOpportunity:
		return a.Score
	case AdvisorySolPriceUpdate:
		return 100
	}
	return a.Confidence
}

// MintStr returns the mint as base58, or "N/A" for price updates.
func (a *Advisory) MintStr() string {
	if a.Type == AdvisorySolPriceUpdate {
		return "N/A"
	}
	return base58.Encode(a.Mint[:])
}

// SellAmountSol returns the emergency-exit sell size in SOL.
func (a *Advisory) SellAmountSol() float64 { return float64(a.SellAmountSolScaled) / 1000 }
