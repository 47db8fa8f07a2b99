package riskEngine

import (
	"math"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	rpcClient "slipguard/rpc_client"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
)

// Rank orders the levels low < medium < high < extreme.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskExtreme:
		return 3
	}
	return -1
}

const (
	WarningModerateImpact = "Moderate price impact"
	WarningHighImpact     = "High price impact: consider splitting the trade"
	WarningExtremeImpact  = "Extreme price impact: this trade is a likely sandwich target"
	WarningLowLiquidity   = "Low liquidity pool: trades are easy to sandwich"
	WarningLargeTrade     = "Large trade relative to pool size"
	WarningUnableToAssess = "Unable to analyze risk - proceed with caution"
)

// MinLiquidityUSD is the pool size under which a pool counts as thin.
const MinLiquidityUSD = 10_000

type SlippageAnalysis struct {
	RiskLevel           RiskLevel     `json:"riskLevel"`
	PriceImpact         float64       `json:"priceImpact"`
	SandwichRisk        bool          `json:"sandwichRisk"`
	FrontRunRisk        bool          `json:"frontRunRisk"`
	RecommendedSlippage float64       `json:"recommendedSlippage"`
	RecommendedDeadline time.Duration `json:"-"`
	DeadlineSeconds     int64         `json:"recommendedDeadlineSeconds"`
	Warnings            []string      `json:"warnings"`
	// Degraded marks the fail-open result returned when reserves could not be read.
	Degraded bool `json:"degraded"`
}

// LiquidityModel converts raw reserves into an estimated USD pool size with a
// flat per-unit price.
type LiquidityModel struct {
	UsdPerUnit float64
	Decimals   uint8
}

func DefaultLiquidityModel() LiquidityModel {
	return LiquidityModel{UsdPerUnit: 2000, Decimals: 18}
}

// EstimateUSD returns (reserve0 + reserve1) / 10^Decimals × UsdPerUnit.
func (m LiquidityModel) EstimateUSD(reserves rpcClient.PairReserves) float64 {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(m.Decimals)), nil)
	units, _ := new(big.Rat).SetFrac(reserves.Total().ToBig(), scale).Float64()
	return units * m.UsdPerUnit
}

// ImpactRatio returns amountIn / (reserve0 + reserve1) × 100.
func ImpactRatio(reserves rpcClient.PairReserves, amountIn *uint256.Int) (float64, bool) {
	total := reserves.Total()
	if total.IsZero() {
		return 0, false
	}
	ratio := new(big.Rat).SetFrac(amountIn.ToBig(), total.ToBig())
	ratio.Mul(ratio, big.NewRat(100, 1))
	value, _ := ratio.Float64()
	return value, true
}

// Analyze classifies a trade of amountIn against reserves. The price impact is
// the doubled share of the pool the trade takes, an approximation rather than
// an exact constant product quote.
func Analyze(reserves rpcClient.PairReserves, amountIn *uint256.Int, model LiquidityModel) SlippageAnalysis {
	if reserves.Reserve0 == nil || reserves.Reserve1 == nil || amountIn == nil {
		return DegradedAnalysis()
	}
	impactRatio, ok := ImpactRatio(reserves, amountIn)
	if !ok {
		return DegradedAnalysis()
	}
	priceImpact := clamp(impactRatio*2, 0, 100)

	analysis := SlippageAnalysis{PriceImpact: priceImpact, Warnings: []string{}}
	switch {
	case priceImpact < 1:
		analysis.RiskLevel = RiskLow
		analysis.RecommendedSlippage = 0.5
	case priceImpact < 3:
		analysis.RiskLevel = RiskMedium
		analysis.RecommendedSlippage = 1
		analysis.Warnings = append(analysis.Warnings, WarningModerateImpact)
	case priceImpact < 5:
		analysis.RiskLevel = RiskHigh
		analysis.RecommendedSlippage = 3
		analysis.FrontRunRisk = true
		analysis.Warnings = append(analysis.Warnings, WarningHighImpact)
	default:
		analysis.RiskLevel = RiskExtreme
		analysis.RecommendedSlippage = 5
		analysis.SandwichRisk = true
		analysis.FrontRunRisk = true
		analysis.Warnings = append(analysis.Warnings, WarningExtremeImpact)
	}

	if model.EstimateUSD(reserves) < MinLiquidityUSD {
		analysis.Warnings = append(analysis.Warnings, WarningLowLiquidity)
		analysis.SandwichRisk = true
		if analysis.RiskLevel == RiskLow {
			analysis.RiskLevel = RiskMedium
		}
	}

	if impactRatio > 1 {
		analysis.Warnings = append(analysis.Warnings, WarningLargeTrade)
		analysis.FrontRunRisk = true
	}

	analysis.RecommendedDeadline = RecommendedDeadline(analysis.RiskLevel)
	analysis.DeadlineSeconds = int64(analysis.RecommendedDeadline / time.Second)
	return analysis
}

// DegradedAnalysis is the fail-open result used when a pool cannot be read.
func DegradedAnalysis() SlippageAnalysis {
	return SlippageAnalysis{
		RiskLevel:           RiskLow,
		PriceImpact:         0,
		RecommendedSlippage: 0.5,
		RecommendedDeadline: RecommendedDeadline(RiskLow),
		DeadlineSeconds:     int64(RecommendedDeadline(RiskLow) / time.Second),
		Warnings:            []string{WarningUnableToAssess},
		Degraded:            true,
	}
}

// RecommendedDeadline shortens the transaction deadline as risk grows.
func RecommendedDeadline(level RiskLevel) time.Duration {
	switch level {
	case RiskMedium:
		return 10 * time.Minute
	case RiskHigh:
		return 5 * time.Minute
	case RiskExtreme:
		return 2 * time.Minute
	}
	return 20 * time.Minute
}

func clamp(value, low, high float64) float64 {
	if math.IsNaN(value) {
		return low
	}
	return math.Max(low, math.Min(high, value))
}
