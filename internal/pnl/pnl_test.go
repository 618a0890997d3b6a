package pnl

import (
	"math"
	"testing"
)

func TestComputeProfit(t *testing.T) {
	// Entry: 0.1 SOL at 1M lamports/token = 100 tokens.
	// Mark: 1.5M lamports/token → 0.15 SOL → +0.05 SOL = $7.50 at $150/SOL.
	// Fees: 0.3% × 2 on 0.1 SOL × $150 = $0.09.
	pnlUSD, pnlPct := Compute(1_000_000, 1_500_000, 0.1, 30, 150.0)

	want := 7.50 - 0.09
	if math.Abs(pnlUSD-want) > 1e-6 {
		t.Errorf("pnlUSD = %.6f, want %.6f", pnlUSD, want)
	}
	if math.Abs(pnlPct-50.0) > 1e-6 {
		t.Errorf("pnlPct = %.6f, want 50", pnlPct)
	}
}

func TestComputeLoss(t *testing.T) {
	pnlUSD, pnlPct := Compute(1_000_000, 800_000, 0.5, 30, 150.0)

	// -0.1 SOL = -$15, fees 2×0.3% on $75 = $0.45.
	want := -15.0 - 0.45
	if math.Abs(pnlUSD-want) > 1e-6 {
		t.Errorf("pnlUSD = %.6f, want %.6f", pnlUSD, want)
	}
	if math.Abs(pnlPct-(-20.0)) > 1e-6 {
		t.Errorf("pnlPct = %.6f, want -20", pnlPct)
	}
}

func TestComputeZeroEntryPrice(t *testing.T) {
	pnlUSD, pnlPct := Compute(0, 1_000_000, 1.0, 30, 150.0)
	if pnlUSD != 0 || pnlPct != 0 {
		t.Errorf("expected zero P&L for zero entry price, got %.2f / %.2f", pnlUSD, pnlPct)
	}
}

func TestComputeSingleFee(t *testing.T) {
	double, _ := Compute(1_000_000, 1_500_000, 0.1, 30, 150.0)
	single, _ := ComputeSingleFee(1_000_000, 1_500_000, 0.1, 30, 150.0)

	// Single-fee variant keeps exactly one fee leg more of the profit.
	feeLeg := 0.1 * 150.0 * 0.003
	if math.Abs((single-double)-feeLeg) > 1e-9 {
		t.Errorf("fee leg difference = %.9f, want %.9f", single-double, feeLeg)
	}
}

func TestComputeFlatPriceIsFeeOnly(t *testing.T) {
	pnlUSD, pnlPct := Compute(2_000_000, 2_000_000, 1.0, 30, 150.0)
	if math.Abs(pnlUSD-(-0.90)) > 1e-6 {
		t.Errorf("flat price should cost exactly the fees: got %.6f", pnlUSD)
	}
	if pnlPct != 0 {
		t.Errorf("flat price pnlPct = %.6f, want 0", pnlPct)
	}
}
