package journal

import (
	"math"

	"chartpilot/internal/database"
)

// pnlEpsilon separates breakeven trades from tiny wins and losses caused by
// floating point arithmetic on price * quantity.
const pnlEpsilon = 1e-9

// ComputeMonthlyStats aggregates one month of closed trades into a stats row.
// It satisfies database.StatsFunc, so the repository can call it inside the
// transaction that mutated the trades. Returns nil when the month has no
// closed trades, which tells the repository to delete the stats row.
func ComputeMonthlyStats(userID string, year, month int, trades []*database.JournalTrade) *database.MonthlyStats {
	if len(trades) == 0 {
		return nil
	}

	stats := &database.MonthlyStats{
		UserID: userID,
		Year:   year,
		Month:  month,
	}

	var (
		rrSum   float64
		rrCount int
		first   = true
	)

	for _, t := range trades {
		if t.Status != database.TradeClosed || t.PnL == nil {
			continue
		}
		pnl := *t.PnL

		stats.TotalTrades++
		stats.NetPnL += pnl
		stats.TotalFees += t.Fees

		switch {
		case pnl > pnlEpsilon:
			stats.Wins++
			stats.GrossProfit += pnl
		case pnl < -pnlEpsilon:
			stats.Losses++
			stats.GrossLoss += math.Abs(pnl)
		default:
			stats.Breakeven++
		}

		if t.RiskAmount != nil && *t.RiskAmount > 0 {
			rrSum += pnl / *t.RiskAmount
			rrCount++
		}

		if first {
			stats.BestTrade = pnl
			stats.WorstTrade = pnl
			first = false
		} else {
			if pnl > stats.BestTrade {
				stats.BestTrade = pnl
			}
			if pnl < stats.WorstTrade {
				stats.WorstTrade = pnl
			}
		}
	}

	if stats.TotalTrades == 0 {
		return nil
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100

	if stats.GrossLoss > 0 {
		stats.ProfitFactor = stats.GrossProfit / stats.GrossLoss
	} else {
		// No losing trades leaves the ratio undefined; report gross profit.
		stats.ProfitFactor = stats.GrossProfit
	}

	if stats.Wins > 0 {
		stats.AvgWin = stats.GrossProfit / float64(stats.Wins)
	}
	if stats.Losses > 0 {
		stats.AvgLoss = stats.GrossLoss / float64(stats.Losses)
	}
	if rrCount > 0 {
		stats.AvgRR = rrSum / float64(rrCount)
	}

	return stats
}

// ComputePnL returns the realized profit or loss for a closed trade, net of
// fees. Long trades profit when the exit is above the entry, short trades
// when it is below.
func ComputePnL(direction database.TradeDirection, entry, exit, quantity, fees float64) float64 {
	gross := (exit - entry) * quantity
	if direction == database.DirectionShort {
		gross = -gross
	}
	return gross - fees
}
