// Package pnl holds the position P&L math shared by the watcher and the
// brain. Prices are lamports per token, sizes are SOL, the oracle price is
// USD per SOL.
package pnl

const lamportsPerSol = 1e9

// Compute returns (pnlUSD, pnlPercent) for a BUY of size SOL entered at
// entryPrice and marked at currentPrice, net of the fee rate applied twice
// (entry + exit).
func Compute(entryPriceLamports, currentPriceLamports uint64, sizeSol float64, feeBps uint16, solUSD float64) (float64, float64) {
	if entryPriceLamports == 0 {
		return 0, 0
	}

	tokens := sizeSol * lamportsPerSol / float64(entryPriceLamports)
	valueLamports := tokens * float64(currentPriceLamports)
	pnlLamports := valueLamports - sizeSol*lamportsPerSol

	feesUSD := sizeSol * solUSD * float64(feeBps) / 1e4 * 2
	pnlUSD := pnlLamports/lamportsPerSol*solUSD - feesUSD

	pnlPercent := (float64(currentPriceLamports)/float64(entryPriceLamports) - 1) * 100
	return pnlUSD, pnlPercent
}

// ComputeSingleFee is the confirmation-time variant where only the entry fee
// has been paid so far.
func ComputeSingleFee(entryPriceLamports, currentPriceLamports uint64, sizeSol float64, feeBps uint16, solUSD float64) (float64, float64) {
	if entryPriceLamports == 0 {
		return 0, 0
	}

	tokens := sizeSol * lamportsPerSol / float64(entryPriceLamports)
	valueLamports := tokens * float64(currentPriceLamports)
	pnlLamports := valueLamports - sizeSol*lamportsPerSol

	feesUSD := sizeSol * solUSD * float64(feeBps) / 1e4
	pnlUSD := pnlLamports/lamportsPerSol*solUSD - feesUSD

	pnlPercent := (float64(currentPriceLamports)/float64(entryPriceLamports) - 1) * 100
	return pnlUSD, pnlPercent
}
