package brain

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-pump-pipeline/internal/storage"
)

// WalletTier bands wallet quality by realized performance.
type WalletTier int

const (
	TierDiscovery WalletTier = iota
	TierC
	TierB
	TierA
)

func (t WalletTier) String() string {
	switch t {
	case TierA:
		return "A"
	case TierB:
		return "B"
	case TierC:
		return "C"
	}
	return "discovery"
}

// BaseConfidence is the tier's starting copy confidence.
func (t WalletTier) BaseConfidence() uint8 {
	switch t {
	case TierA:
		return 93
	case TierB:
		return 87
	case TierC:
		return 80
	}
	return 50
}

// MintFeatures is a point-in-time snapshot of one token's market state.
// Snapshots staler than 5s are disqualified from decisions.
type MintFeatures struct {
	AgeSinceLaunch     uint64
	CurrentPrice       float64
	Vol60sSol          float64
	Buyers60s          uint32
	BuysSellsRatio     float64
	CurveDepthProxy    uint64
	FollowThroughScore uint8
	Buyers2s           uint32
	Vol5sSol           float64
	Volatility60s      float64
	Creator            string
	LastUpdate         int64 // Unix seconds
}

// IsStale reports whether the snapshot is too old to trade on.
func (f *MintFeatures) IsStale() bool {
	return time.Now().Unix()-f.LastUpdate > 5
}

// WalletFeatures is the brain's view of one wallet's quality.
type WalletFeatures struct {
	WinRate7d      float64
	RealizedPnL7d  float64
	TradeCount     uint32
	AvgSize        float64
	Tier           WalletTier
	Confidence     uint8
	BootstrapScore uint8
	LastUpdate     int64
}

// IsStale reports whether the snapshot is too old to trade on.
func (f *WalletFeatures) IsStale() bool {
	return time.Now().Unix()-f.LastUpdate > 5
}

// ClassifyTier applies the tier thresholds. Fewer than 10 trades is always
// Discovery regardless of the numbers.
func ClassifyTier(winRate, pnl7d float64, tradeCount uint32) WalletTier {
	if tradeCount < 10 {
		return TierDiscovery
	}
	switch {
	case winRate >= 0.60 && pnl7d >= 100:
		return TierA
	case winRate >= 0.55 && pnl7d >= 40:
		return TierB
	case winRate >= 0.50 && pnl7d >= 15:
		return TierC
	}
	return TierDiscovery
}

// CalculateConfidence derives a 0-100 copy confidence from tier, win rate
// and experience.
func CalculateConfidence(tier WalletTier, winRate float64, tradeCount uint32) uint8 {
	conf := int(tier.BaseConfidence())
	if winRate > 0.70 {
		conf += int((winRate - 0.70) * 20)
	}
	if tradeCount > 50 {
		n := tradeCount
		if n > 200 {
			n = 200
		}
		conf += int(n / 50)
	}
	if conf > 100 {
		conf = 100
	}
	return uint8(conf)
}

// CalculateBootstrapScore is the discovery-wallet formula:
// min(90, 50 + wins×2 + pnl/5), floored at 0.
func CalculateBootstrapScore(wins uint32, pnl7d float64) uint8 {
	score := 50 + int(wins)*2 + int(pnl7d/5)
	if score > 90 {
		score = 90
	}
	if score < 0 {
		score = 0
	}
	return uint8(score)
}

// FeatureCache holds the mint and wallet snapshots, refreshed from the
// store on a fixed cadence. Reads are lock-cheap; nothing is held across
// I/O.
type FeatureCache struct {
	db *storage.DB

	mintMu  sync.RWMutex
	mints   map[string]*MintFeatures
	walletMu sync.RWMutex
	wallets map[string]*WalletFeatures
}

// NewFeatureCache builds an empty cache over the store.
func NewFeatureCache(db *storage.DB) *FeatureCache {
	return &FeatureCache{
		db:      db,
		mints:   make(map[string]*MintFeatures),
		wallets: make(map[string]*WalletFeatures),
	}
}

// Mint returns the snapshot for a mint, nil when absent.
func (c *FeatureCache) Mint(mint string) *MintFeatures {
	c.mintMu.RLock()
	defer c.mintMu.RUnlock()
	return c.mints[mint]
}

// SetMint stores a snapshot (also used by live telemetry patches).
func (c *FeatureCache) SetMint(mint string, f *MintFeatures) {
	c.mintMu.Lock()
	c.mints[mint] = f
	c.mintMu.Unlock()
}

// PatchMintTelemetry folds a live WindowMetrics-style sample into the
// snapshot so short-horizon fields stay fresher than the refresh cadence.
func (c *FeatureCache) PatchMintTelemetry(mint string, buyers1s uint32, vol1sSol float64) {
	c.mintMu.Lock()
	defer c.mintMu.Unlock()
	f := c.mints[mint]
	if f == nil {
		f = &MintFeatures{}
		c.mints[mint] = f
	}
	f.Buyers2s = buyers1s
	f.Vol5sSol = vol1sSol * 5 // crude extrapolation between refreshes
	f.LastUpdate = time.Now().Unix()
}

// Wallet returns the snapshot for a wallet, nil when absent.
func (c *FeatureCache) Wallet(wallet string) *WalletFeatures {
	c.walletMu.RLock()
	defer c.walletMu.RUnlock()
	return c.wallets[wallet]
}

// SetWallet stores a wallet snapshot.
func (c *FeatureCache) SetWallet(wallet string, f *WalletFeatures) {
	c.walletMu.Lock()
	c.wallets[wallet] = f
	c.walletMu.Unlock()
}

// Sizes returns (mints, wallets) cache sizes for the health endpoint.
func (c *FeatureCache) Sizes() (int, int) {
	c.mintMu.RLock()
	nm := len(c.mints)
	c.mintMu.RUnlock()
	c.walletMu.RLock()
	nw := len(c.wallets)
	c.walletMu.RUnlock()
	return nm, nw
}

// RunRefresher refreshes both caches from the store until ctx is done.
func (c *FeatureCache) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.refreshMints(); err != nil {
				log.Warn().Err(err).Msg("mint cache refresh failed")
			} else {
				log.Debug().Int("mints", n).Msg("mint cache refreshed")
			}
			if n, err := c.refreshWallets(); err != nil {
				log.Warn().Err(err).Msg("wallet cache refresh failed")
			} else {
				log.Debug().Int("wallets", n).Msg("wallet cache refreshed")
			}
		}
	}
}

func (c *FeatureCache) refreshMints() (int, error) {
	now := time.Now().Unix()
	mints, err := c.db.ActiveMints(now-300, 500)
	if err != nil {
		return 0, err
	}

	for _, mint := range mints {
		act, err := c.db.MintActivitySince(mint, now)
		if err != nil {
			continue
		}
		ratio := float64(act.Buys60s)
		if act.Sells60s > 0 {
			ratio = float64(act.Buys60s) / float64(act.Sells60s)
		}

		var volatility float64
		if windows, err := c.db.RecentWindows(mint, now-60); err == nil {
			for _, w := range windows {
				if w.Volatility > volatility {
					volatility = w.Volatility
				}
			}
		}

		age := uint64(0)
		if act.LaunchTime > 0 && now > act.LaunchTime {
			age = uint64(now - act.LaunchTime)
		}

		prev := c.Mint(mint)
		ft := uint8(0)
		if prev != nil {
			ft = prev.FollowThroughScore
		}

		c.SetMint(mint, &MintFeatures{
			AgeSinceLaunch:     age,
			CurrentPrice:       act.LastPrice,
			Vol60sSol:          act.VolSol60s,
			Buyers60s:          uint32(act.Buyers60s),
			BuysSellsRatio:     ratio,
			CurveDepthProxy:    uint64(act.VolSol60s * 1e6), // volume-derived depth proxy
			FollowThroughScore: ft,
			Buyers2s:           uint32(act.Buyers2s),
			Vol5sSol:           act.VolSol5s,
			Volatility60s:      volatility,
			Creator:            act.Creator,
			LastUpdate:         now,
		})
	}
	return len(mints), nil
}

func (c *FeatureCache) refreshWallets() (int, error) {
	now := time.Now().Unix()
	stats, err := c.db.ActiveWalletStats(now-7*24*3600, 1000)
	if err != nil {
		return 0, err
	}

	for _, s := range stats {
		tradeCount := uint32(s.Wins + s.Losses)
		tier := ClassifyTier(s.WinRate, s.ProfitScore, tradeCount)
		avg := 0.0
		if s.BuyCount > 0 {
			avg = s.SolIn / float64(s.BuyCount)
		}
		c.SetWallet(s.Wallet, &WalletFeatures{
			WinRate7d:      s.WinRate,
			RealizedPnL7d:  s.ProfitScore,
			TradeCount:     tradeCount,
			AvgSize:        avg,
			Tier:           tier,
			Confidence:     CalculateConfidence(tier, s.WinRate, tradeCount),
			BootstrapScore: CalculateBootstrapScore(uint32(s.Wins), s.ProfitScore),
			LastUpdate:     now,
		})
	}
	return len(stats), nil
}
