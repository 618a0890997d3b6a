package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RPCClient handles Solana JSON-RPC calls with a simple circuit breaker.
type RPCClient struct {
	url        string
	httpClient *http.Client

	mu          sync.RWMutex
	failures    int
	lastFailure time.Time
	circuitOpen bool
}

// RPCRequest is the JSON-RPC 2.0 request format.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 response format.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error format.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRPCClient creates a pooled RPC client for one endpoint.
func NewRPCClient(url string, timeout time.Duration) *RPCClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{
		url: url,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *RPCClient) call(ctx context.Context, req RPCRequest, result interface{}) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("RPC circuit open")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		c.recordFailure()
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		c.recordFailure()
		return rpcResp.Error
	}
	c.recordSuccess()

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (c *RPCClient) isCircuitOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.circuitOpen {
		return false
	}
	// Circuit resets after 30 seconds.
	return time.Since(c.lastFailure) <= 30*time.Second
}

func (c *RPCClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= 5 {
		c.circuitOpen = true
		log.Warn().Msg("RPC circuit breaker opened")
	}
}

func (c *RPCClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.circuitOpen = false
}

// SignatureStatus is one entry of a getSignatureStatuses result.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// GetSignatureStatuses batch-queries signature statuses. Entries come back
// positionally; nil means the signature was not found.
func (c *RPCClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getSignatureStatuses",
		Params: []interface{}{
			signatures,
			map[string]bool{"searchTransactionHistory": true},
		},
	}

	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// TxDetail is the subset of getTransaction this pipeline needs.
type TxDetail struct {
	Slot        uint64
	BlockTime   int64
	AccountKeys []string
	Instructions []TxInstruction
	InnerInstructions []TxInstruction
	LogMessages []string
	PreBalances []uint64
	PostBalances []uint64
	Failed      bool
}

// TxInstruction is one decoded-at-the-envelope-level instruction.
type TxInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58
}

// GetTransaction fetches the full transaction for a signature.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*TxDetail, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []interface{}{
			signature,
			map[string]interface{}{
				"encoding":                       "json",
				"commitment":                     "confirmed",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	var result struct {
		Slot        uint64 `json:"slot"`
		BlockTime   *int64 `json:"blockTime"`
		Transaction struct {
			Message struct {
				AccountKeys  []string `json:"accountKeys"`
				Instructions []struct {
					ProgramIDIndex int    `json:"programIdIndex"`
					Accounts       []int  `json:"accounts"`
					Data           string `json:"data"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			Err               interface{} `json:"err"`
			LogMessages       []string    `json:"logMessages"`
			PreBalances       []uint64    `json:"preBalances"`
			PostBalances      []uint64    `json:"postBalances"`
			InnerInstructions []struct {
				Instructions []struct {
					ProgramIDIndex int    `json:"programIdIndex"`
					Accounts       []int  `json:"accounts"`
					Data           string `json:"data"`
				} `json:"instructions"`
			} `json:"innerInstructions"`
		} `json:"meta"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}

	detail := &TxDetail{
		Slot:         result.Slot,
		AccountKeys:  result.Transaction.Message.AccountKeys,
		LogMessages:  result.Meta.LogMessages,
		PreBalances:  result.Meta.PreBalances,
		PostBalances: result.Meta.PostBalances,
		Failed:       result.Meta.Err != nil,
	}
	if result.BlockTime != nil {
		detail.BlockTime = *result.BlockTime
	}
	for _, ix := range result.Transaction.Message.Instructions {
		detail.Instructions = append(detail.Instructions, TxInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			Accounts:       ix.Accounts,
			Data:           ix.Data,
		})
	}
	for _, set := range result.Meta.InnerInstructions {
		for _, ix := range set.Instructions {
			detail.InnerInstructions = append(detail.InnerInstructions, TxInstruction{
				ProgramIDIndex: ix.ProgramIDIndex,
				Accounts:       ix.Accounts,
				Data:           ix.Data,
			})
		}
	}
	return detail, nil
}
