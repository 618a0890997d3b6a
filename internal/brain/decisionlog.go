package brain

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DecisionLogEntry is one CSV row of the append-only decision log.
type DecisionLogEntry struct {
	DecisionID uint64
	Timestamp  int64
	MintHex    string
	Trigger    EntryTrigger
	Side       uint8

	PredictedFeesUSD   float64
	PredictedImpactUSD float64
	TPUSD              float64
	FollowThroughScore uint8

	SizeSol    float64
	SizeUSD    float64
	Confidence uint8

	ExpectedEVUSD      float64
	SuccessProbability float64

	Rank       *uint8
	WalletHex  string
	WalletTier *uint8
}

// csvHeader is the fixed column list.
const csvHeader = "decision_id,timestamp,mint_hex,trigger_type,side,predicted_fees_usd,predicted_impact_usd,tp_usd,follow_through_score,size_sol,size_usd,confidence,expected_ev_usd,success_probability,rank,wallet_hex,wallet_tier,datetime"

// CSVRow renders the entry.
func (e *DecisionLogEntry) CSVRow() string {
	rank := ""
	if e.Rank != nil {
		rank = fmt.Sprintf("%d", *e.Rank)
	}
	tier := ""
	if e.WalletTier != nil {
		tier = fmt.Sprintf("%d", *e.WalletTier)
	}
	return fmt.Sprintf("%d,%d,%s,%s,%d,%.4f,%.4f,%.4f,%d,%.4f,%.4f,%d,%.4f,%.4f,%s,%s,%s,%s",
		e.DecisionID, e.Timestamp, e.MintHex, e.Trigger, e.Side,
		e.PredictedFeesUSD, e.PredictedImpactUSD, e.TPUSD, e.FollowThroughScore,
		e.SizeSol, e.SizeUSD, e.Confidence,
		e.ExpectedEVUSD, e.SuccessProbability,
		rank, e.WalletHex, tier,
		time.Unix(e.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"))
}

// DecisionLogger appends decision rows to a CSV file, writing the header
// once on creation.
type DecisionLogger struct {
	mu      sync.Mutex
	file    *os.File
	nextID  uint64
	entries uint64
}

// NewDecisionLogger opens (or creates) the log file.
func NewDecisionLogger(path string) (*DecisionLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	info, statErr := os.Stat(path)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}

	l := &DecisionLogger{file: file, nextID: 1}
	if statErr != nil || info.Size() == 0 {
		if _, err := file.WriteString(csvHeader + "\n"); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	log.Info().Str("path", path).Msg("📝 decision log opened")
	return l, nil
}

// Log appends one entry, assigning its decision id. Returns the id.
func (l *DecisionLogger) Log(entry DecisionLogEntry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.DecisionID = l.nextID
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	if _, err := l.file.WriteString(entry.CSVRow() + "\n"); err != nil {
		return 0, err
	}
	l.nextID++
	l.entries++
	return entry.DecisionID, nil
}

// EntriesLogged returns the row count written this session.
func (l *DecisionLogger) EntriesLogged() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Close flushes and closes the file.
func (l *DecisionLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// mintHex renders a 32-byte mint for the log.
func mintHex(mint [32]byte) string {
	return hex.EncodeToString(mint[:])
}
