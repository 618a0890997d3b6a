package collector

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/chain"
)

// Instruction discriminators from the pump.fun IDL.
var (
	createDiscriminator  = []byte{24, 30, 200, 40, 5, 28, 7, 119}
	buyDiscriminator     = []byte{102, 6, 61, 18, 1, 218, 235, 234}
	sellDiscriminator    = []byte{51, 230, 133, 164, 1, 127, 131, 173}
	migrateDiscriminator = []byte{155, 234, 231, 146, 236, 158, 162, 30}
)

// Event discriminators from the pump.fun IDL.
var (
	createEventDiscriminator   = []byte{27, 114, 169, 77, 222, 235, 99, 118}
	tradeEventDiscriminator    = []byte{189, 219, 127, 211, 78, 230, 97, 238}
	completeEventDiscriminator = []byte{95, 114, 97, 156, 212, 46, 152, 8}
	ammMigrationDiscriminator  = []byte{189, 233, 93, 185, 92, 148, 234, 148}
)

const (
	lamportsPerSol  = 1e9
	tokenUnitsPerUI = 1e6 // pump tokens carry 6 decimals
)

// EventKind distinguishes the three event families the parser extracts.
type EventKind int

const (
	EventLaunch EventKind = iota
	EventTrade
	EventMigrated
)

// Event is one parsed chain event.
type Event struct {
	Kind      EventKind
	Signature string
	Slot      uint64
	BlockTime int64
	Mint      string

	// Launch fields.
	Creator      string
	BondingCurve string
	Name         string
	Symbol       string
	URI          string

	// Trade fields.
	Side        string // "buy" or "sell"
	Trader      string
	TokenAmount float64 // UI units
	SolAmount   float64 // SOL
	Price       float64 // SOL per token
	IsAMM       bool

	// Migration fields.
	Pool string
}

// Parser extracts launch/trade/migration events from raw transactions.
// Events seen from multiple sources within one transaction are deduplicated
// by signature.
type Parser struct {
	pumpProgram string
	ammProgram  string

	// Recently-emitted (signature, kind) pairs, bounded ring.
	seen     map[string]struct{}
	seenRing []string
	seenIdx  int
}

// NewParser builds a parser for the monitored programs.
func NewParser(pumpProgram, ammProgram string) *Parser {
	return &Parser{
		pumpProgram: pumpProgram,
		ammProgram:  ammProgram,
		seen:        make(map[string]struct{}),
		seenRing:    make([]string, 4096),
	}
}

// Parse extracts all events from one transaction. Sources are checked in
// order of reliability: event logs first, then inner and top-level
// instructions as detection fallback.
func (p *Parser) Parse(tx *chain.RawTransaction) []*Event {
	if tx.Failed {
		return nil
	}

	var events []*Event

	// STEP 1: event logs via "Program data:" (most reliable).
	for _, logLine := range tx.LogMessages {
		idx := strings.Index(logLine, "Program data: ")
		if idx < 0 {
			continue
		}
		data := decodeEventPayload(logLine[idx+len("Program data: "):])
		if data == nil {
			continue
		}
		if ev := p.parseEventData(data, tx); ev != nil {
			events = p.appendDeduped(events, ev)
		}
	}

	// STEP 2: instructions to the pump program (detection fallback for
	// transactions whose logs were truncated).
	for _, ix := range tx.Instructions {
		if ix.ProgramIDIndex >= len(tx.AccountKeys) {
			continue
		}
		if tx.AccountKeys[ix.ProgramIDIndex] != p.pumpProgram {
			continue
		}
		if ev := p.parseInstruction(ix, tx); ev != nil {
			events = p.appendDeduped(events, ev)
		}
	}

	return events
}

func (p *Parser) appendDeduped(events []*Event, ev *Event) []*Event {
	key := fmt.Sprintf("%s/%d/%s", ev.Signature, ev.Kind, ev.Mint)
	if _, dup := p.seen[key]; dup {
		return events
	}
	if old := p.seenRing[p.seenIdx]; old != "" {
		delete(p.seen, old)
	}
	p.seen[key] = struct{}{}
	p.seenRing[p.seenIdx] = key
	p.seenIdx = (p.seenIdx + 1) % len(p.seenRing)
	return append(events, ev)
}

// decodeEventPayload decodes a "Program data:" payload, base64 first with a
// base58 fallback.
func decodeEventPayload(encoded string) []byte {
	encoded = strings.TrimSpace(encoded)
	if fields := strings.Fields(encoded); len(fields) > 0 {
		encoded = fields[0]
	}
	if data, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return data
	}
	if data, err := base58.Decode(encoded); err == nil {
		return data
	}
	return nil
}

func (p *Parser) parseEventData(data []byte, tx *chain.RawTransaction) *Event {
	if len(data) < 8 {
		return nil
	}
	disc := data[:8]
	body := data[8:]

	switch {
	case bytes.Equal(disc, tradeEventDiscriminator):
		return p.parseTradeEvent(body, tx)
	case bytes.Equal(disc, createEventDiscriminator):
		return p.parseCreateEvent(body, tx)
	case bytes.Equal(disc, completeEventDiscriminator), bytes.Equal(disc, ammMigrationDiscriminator):
		return p.parseCompleteEvent(body, tx)
	}
	return nil
}

// parseTradeEvent decodes a TradeEvent:
// mint(32) sol_amount(u64) token_amount(u64) is_buy(1) user(32) timestamp(i64) ...
func (p *Parser) parseTradeEvent(body []byte, tx *chain.RawTransaction) *Event {
	if len(body) < 32+8+8+1+32+8 {
		return nil
	}
	off := 0
	mint := base58.Encode(body[off : off+32])
	off += 32
	solLamports := binary.LittleEndian.Uint64(body[off : off+8])
	off += 8
	tokenRaw := binary.LittleEndian.Uint64(body[off : off+8])
	off += 8
	isBuy := body[off] != 0
	off++
	user := base58.Encode(body[off : off+32])

	solAmount := float64(solLamports) / lamportsPerSol
	if solLamports == 0 {
		// Derive from the fee payer's balance delta when the event omits it.
		solAmount = feePayerDeltaSol(tx)
	}
	tokenAmount := float64(tokenRaw) / tokenUnitsPerUI
	if tokenAmount == 0 {
		return nil
	}

	side := "sell"
	if isBuy {
		side = "buy"
	}

	return &Event{
		Kind:        EventTrade,
		Signature:   tx.Signature,
		Slot:        tx.Slot,
		BlockTime:   tx.BlockTime,
		Mint:        mint,
		Side:        side,
		Trader:      user,
		TokenAmount: tokenAmount,
		SolAmount:   solAmount,
		Price:       solAmount / tokenAmount,
		IsAMM:       p.mentionsAMM(tx),
	}
}

// parseCreateEvent decodes a CreateEvent:
// name(string) symbol(string) uri(string) mint(32) bonding_curve(32) user(32)
func (p *Parser) parseCreateEvent(body []byte, tx *chain.RawTransaction) *Event {
	off := 0
	name, ok := readBorshString(body, &off)
	if !ok {
		return nil
	}
	symbol, ok := readBorshString(body, &off)
	if !ok {
		return nil
	}
	uri, ok := readBorshString(body, &off)
	if !ok {
		return nil
	}
	if len(body) < off+96 {
		return nil
	}
	mint := base58.Encode(body[off : off+32])
	curve := base58.Encode(body[off+32 : off+64])
	user := base58.Encode(body[off+64 : off+96])

	return &Event{
		Kind:         EventLaunch,
		Signature:    tx.Signature,
		Slot:         tx.Slot,
		BlockTime:    tx.BlockTime,
		Mint:         mint,
		Creator:      user,
		BondingCurve: curve,
		Name:         name,
		Symbol:       symbol,
		URI:          uri,
	}
}

// parseCompleteEvent decodes a completion/migration event:
// user(32) mint(32) ... pool comes from the transaction accounts when present.
func (p *Parser) parseCompleteEvent(body []byte, tx *chain.RawTransaction) *Event {
	if len(body) < 64 {
		return nil
	}
	mint := base58.Encode(body[32:64])

	pool := ""
	if len(body) >= 96 {
		pool = base58.Encode(body[64:96])
	}

	return &Event{
		Kind:      EventMigrated,
		Signature: tx.Signature,
		Slot:      tx.Slot,
		BlockTime: tx.BlockTime,
		Mint:      mint,
		Pool:      pool,
	}
}

// parseInstruction classifies a pump instruction for detection purposes.
// Accurate amounts come from the event logs, so BUY/SELL instructions only
// yield an event when no log event was emitted for this signature.
func (p *Parser) parseInstruction(ix chain.TxInstruction, tx *chain.RawTransaction) *Event {
	data, err := base58.Decode(ix.Data)
	if err != nil || len(data) < 8 {
		return nil
	}
	disc := data[:8]
	body := data[8:]

	switch {
	case bytes.Equal(disc, buyDiscriminator), bytes.Equal(disc, sellDiscriminator):
		// Accounts per IDL: 2=mint, 6=user.
		if len(ix.Accounts) < 7 || len(body) < 16 {
			return nil
		}
		mintIdx, userIdx := ix.Accounts[2], ix.Accounts[6]
		if mintIdx >= len(tx.AccountKeys) || userIdx >= len(tx.AccountKeys) {
			log.Debug().Str("sig", tx.Signature).Msg("instruction account indices out of bounds")
			return nil
		}
		tokenRaw := binary.LittleEndian.Uint64(body[0:8])
		tokenAmount := float64(tokenRaw) / tokenUnitsPerUI
		if tokenAmount == 0 {
			return nil
		}
		solAmount := feePayerDeltaSol(tx)
		side := "buy"
		if bytes.Equal(disc, sellDiscriminator) {
			side = "sell"
		}
		return &Event{
			Kind:        EventTrade,
			Signature:   tx.Signature,
			Slot:        tx.Slot,
			BlockTime:   tx.BlockTime,
			Mint:        tx.AccountKeys[mintIdx],
			Side:        side,
			Trader:      tx.AccountKeys[userIdx],
			TokenAmount: tokenAmount,
			SolAmount:   solAmount,
			Price:       solAmount / tokenAmount,
			IsAMM:       p.mentionsAMM(tx),
		}
	case bytes.Equal(disc, createDiscriminator):
		off := 0
		name, ok := readBorshString(body, &off)
		if !ok {
			return nil
		}
		symbol, ok := readBorshString(body, &off)
		if !ok {
			return nil
		}
		uri, ok := readBorshString(body, &off)
		if !ok {
			return nil
		}
		// Accounts per IDL: 0=mint, 2=bonding curve, 7=user.
		if len(ix.Accounts) < 8 {
			return nil
		}
		mintIdx, curveIdx, userIdx := ix.Accounts[0], ix.Accounts[2], ix.Accounts[7]
		if mintIdx >= len(tx.AccountKeys) || curveIdx >= len(tx.AccountKeys) || userIdx >= len(tx.AccountKeys) {
			return nil
		}
		return &Event{
			Kind:         EventLaunch,
			Signature:    tx.Signature,
			Slot:         tx.Slot,
			BlockTime:    tx.BlockTime,
			Mint:         tx.AccountKeys[mintIdx],
			Creator:      tx.AccountKeys[userIdx],
			BondingCurve: tx.AccountKeys[curveIdx],
			Name:         name,
			Symbol:       symbol,
			URI:          uri,
		}
	case bytes.Equal(disc, migrateDiscriminator):
		// Migration amounts are better parsed from logs; instruction hit is
		// detection only.
		return nil
	}
	return nil
}

func (p *Parser) mentionsAMM(tx *chain.RawTransaction) bool {
	for _, key := range tx.AccountKeys {
		if key == p.ammProgram {
			return true
		}
	}
	return false
}

// feePayerDeltaSol returns |pre - post| of the fee payer balance in SOL.
func feePayerDeltaSol(tx *chain.RawTransaction) float64 {
	if len(tx.PreBalances) == 0 || len(tx.PostBalances) == 0 {
		return 0
	}
	pre, post := tx.PreBalances[0], tx.PostBalances[0]
	if pre >= post {
		return float64(pre-post) / lamportsPerSol
	}
	return float64(post-pre) / lamportsPerSol
}

// readBorshString reads a u32-length-prefixed UTF-8 string.
func readBorshString(data []byte, off *int) (string, bool) {
	if len(data) < *off+4 {
		return "", false
	}
	n := int(binary.LittleEndian.Uint32(data[*off : *off+4]))
	*off += 4
	if n < 0 || n > 1024 || len(data) < *off+n {
		return "", false
	}
	s := string(data[*off : *off+n])
	*off += n
	return s, true
}
