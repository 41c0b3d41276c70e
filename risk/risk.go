package risk

import (
	"math"
	"time"

	"github.com/evdnx/tradebot/config"
	"github.com/evdnx/tradebot/types"
)

// Fixed policy constants.
const (
	MinTradeValue = 10.0

	smallAccountBalance  = 1000.0
	mediumAccountBalance = 5000.0
	smallAccountTrades   = 1
	mediumAccountTrades  = 2

	volatilityMultiplier = 10.0
	volatilityFloor      = 0.5

	// ratios within tolerance of a limit count as at the limit
	tolerance = 1e-9
)

// Gate computes lot sizes, stop levels and portfolio limits. Every method is
// pure apart from reading the immutable RiskConfig.
type Gate struct {
	cfg config.RiskConfig
}

func NewGate(cfg config.RiskConfig) *Gate { return &Gate{cfg: cfg} }

// Config returns a copy of the settings the gate was built with.
func (g *Gate) Config() config.RiskConfig { return g.cfg }

// CalculateLotSize returns the amount to trade at currentPrice. riskPct <= 0
// uses MaxRiskPerTrade. A non-positive price yields 0 rather than Inf/NaN.
func (g *Gate) CalculateLotSize(symbol string, currentPrice, accountBalance, riskPct float64) float64 {
	if accountBalance < g.cfg.MinimumBalance {
		return 0
	}
	if currentPrice <= 0 || math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) {
		return 0
	}
	if riskPct <= 0 {
		riskPct = g.cfg.MaxRiskPerTrade
	}
	riskAmt := math.Min(accountBalance*riskPct, accountBalance*g.cfg.MaxRiskPerTrade)
	amount := riskAmt / currentPrice
	if amount < 0 || math.IsNaN(amount) {
		return 0
	}
	return amount
}

// ValidateTrade rejects trades that risk too much of the balance, that are
// placed from a balance under the minimum, or that are too small to bother.
func (g *Gate) ValidateTrade(symbol string, amount, price, accountBalance float64) bool {
	value := amount * price
	if accountBalance < g.cfg.MinimumBalance {
		return false
	}
	if value < MinTradeValue {
		return false
	}
	if accountBalance <= 0 || value/accountBalance > g.cfg.MaxRiskPerTrade+tolerance {
		return false
	}
	return true
}

// CalculateStopLoss returns the stop level for a position opened at
// entryPrice. pct <= 0 uses StopLossPercentage.
func (g *Gate) CalculateStopLoss(entryPrice float64, side types.PositionSide, pct float64) float64 {
	if pct <= 0 {
		pct = g.cfg.StopLossPercentage
	}
	if side == types.Short {
		return entryPrice * (1 + pct)
	}
	return entryPrice * (1 - pct)
}

// CalculateTakeProfit returns the target level. pct <= 0 uses
// TakeProfitPercentage.
func (g *Gate) CalculateTakeProfit(entryPrice float64, side types.PositionSide, pct float64) float64 {
	if pct <= 0 {
		pct = g.cfg.TakeProfitPercentage
	}
	if side == types.Short {
		return entryPrice * (1 - pct)
	}
	return entryPrice * (1 + pct)
}

// CheckTotalRisk reports whether the combined exposure of the open
// positions stays within MaxTotalRisk of the balance.
func (g *Gate) CheckTotalRisk(open []types.Position, accountBalance float64) bool {
	exposure := 0.0
	for _, p := range open {
		exposure += p.Notional()
	}
	if accountBalance <= 0 {
		return exposure == 0
	}
	return exposure/accountBalance <= g.cfg.MaxTotalRisk+tolerance
}

// MaxConcurrentTrades clamps the configured limit for small accounts.
func (g *Gate) MaxConcurrentTrades(accountBalance float64) int {
	limit := g.cfg.MaxConcurrentTrades
	switch {
	case accountBalance < smallAccountBalance:
		return min(limit, smallAccountTrades)
	case accountBalance < mediumAccountBalance:
		return min(limit, mediumAccountTrades)
	}
	return limit
}

// AdjustPositionForVolatility shrinks base by up to half when the
// period-over-period returns of priceHistory are volatile.
func (g *Gate) AdjustPositionForVolatility(priceHistory []float64, base float64) float64 {
	if len(priceHistory) < 2 {
		return base
	}
	returns := make([]float64, 0, len(priceHistory)-1)
	for i := 1; i < len(priceHistory); i++ {
		prev := priceHistory[i-1]
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (priceHistory[i]-prev)/prev)
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	vol := math.Sqrt(variance)

	factor := math.Max(volatilityFloor, 1-vol*volatilityMultiplier)
	return base * factor
}

// ValidateCooldown reports whether at least cooldown has elapsed since
// lastTrade. A zero cooldown always passes.
func (g *Gate) ValidateCooldown(now, lastTrade time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	return now.Sub(lastTrade) >= cooldown
}
