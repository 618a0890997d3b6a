package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RawTransaction is one matched transaction delivered to consumers. Accounts
// are base58 strings; Data holds instruction payloads alongside the raw log
// messages for event extraction.
type RawTransaction struct {
	Signature    string
	Slot         uint64
	BlockTime    int64
	ProgramID    string
	AccountKeys  []string
	Instructions []TxInstruction
	LogMessages  []string
	PreBalances  []uint64
	PostBalances []uint64
	Failed       bool
}

// Stream holds a persistent logs subscription to chain programs over
// websocket, fetching full transactions for each notification.
type Stream struct {
	wsURL    string
	rpc      *RPCClient
	programs []string

	pingInterval time.Duration
	backoffMin   time.Duration
	backoffMax   time.Duration
}

// NewStream builds a stream for the given program ids.
func NewStream(wsURL string, rpc *RPCClient, programs []string) *Stream {
	return &Stream{
		wsURL:        wsURL,
		rpc:          rpc,
		programs:     programs,
		pingInterval: 30 * time.Second,
		backoffMin:   2 * time.Second,
		backoffMax:   60 * time.Second,
	}
}

type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Run subscribes and forwards RawTransactions onto out until ctx is done.
// Reconnects with exponential backoff (2s → 60s cap, reset on clean close).
func (s *Stream) Run(ctx context.Context, out chan<- *RawTransaction) {
	backoff := s.backoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.runOnce(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// Clean close resets the backoff.
			backoff = s.backoffMin
			continue
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("chain stream disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.backoffMax {
			backoff = s.backoffMax
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, out chan<- *RawTransaction) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	// One logsSubscribe per program; vote and failed transactions are
	// excluded by commitment + mentions filtering on the server side.
	for i, program := range s.programs {
		sub := RPCRequest{
			JSONRPC: "2.0",
			ID:      i + 1,
			Method:  "logsSubscribe",
			Params: []interface{}{
				map[string]interface{}{"mentions": []string{program}},
				map[string]interface{}{"commitment": "confirmed"},
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", program, err)
		}
	}
	log.Info().Int("programs", len(s.programs)).Msg("chain stream subscribed")

	// Ping keepalive. A missed pong surfaces as a read error, which tears
	// the connection down and triggers a reconnect.
	pongWait := s.pingInterval * 2
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var note logsNotification
		if err := json.Unmarshal(payload, &note); err != nil || note.Method != "logsNotification" {
			continue
		}
		val := note.Params.Result.Value
		if val.Err != nil || val.Signature == "" {
			continue
		}

		raw, err := s.fetch(ctx, val.Signature, note.Params.Result.Context.Slot)
		if err != nil {
			log.Debug().Err(err).Str("sig", shorten(val.Signature, 12)).Msg("transaction fetch failed")
			continue
		}

		select {
		case out <- raw:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Stream) fetch(ctx context.Context, signature string, slot uint64) (*RawTransaction, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	detail, err := s.rpc.GetTransaction(fetchCtx, signature)
	if err != nil {
		return nil, err
	}

	raw := &RawTransaction{
		Signature:    signature,
		Slot:         detail.Slot,
		BlockTime:    detail.BlockTime,
		AccountKeys:  detail.AccountKeys,
		Instructions: append(detail.Instructions, detail.InnerInstructions...),
		LogMessages:  detail.LogMessages,
		PreBalances:  detail.PreBalances,
		PostBalances: detail.PostBalances,
		Failed:       detail.Failed,
	}
	if raw.Slot == 0 {
		raw.Slot = slot
	}
	return raw, nil
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
