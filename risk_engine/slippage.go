package riskEngine

import (
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// SafetyMargin is the extra tolerance, in percentage points, added on top of
// the user's slippage for each risk level.
func SafetyMargin(level RiskLevel) float64 {
	switch level {
	case RiskMedium:
		return 0.5
	case RiskHigh:
		return 1
	case RiskExtreme:
		return 2
	}
	return 0
}

// CalculateSafeMinOutput returns expectedOutput reduced by tolerance plus the
// risk margin. The percentage is converted to basis points once and the rest
// is integer arithmetic: expected × (10000 - bps) / 10000.
func CalculateSafeMinOutput(expectedOutput *uint256.Int, tolerance float64, level RiskLevel) *uint256.Int {
	if expectedOutput == nil {
		return new(uint256.Int)
	}
	bps := int64(math.Round((tolerance + SafetyMargin(level)) * 100))
	if bps < 0 {
		bps = 0
	}
	if bps > 10_000 {
		bps = 10_000
	}

	minOutput := new(big.Int).Mul(expectedOutput.ToBig(), big.NewInt(10_000-bps))
	minOutput.Div(minOutput, big.NewInt(10_000))
	result, _ := uint256.FromBig(minOutput)
	return result
}

type SlippageValidation struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message"`
}

// ValidateSlippage rejects tolerances below the recommendation and flags
// tolerances more than double it.
func ValidateSlippage(userSlippage float64, analysis SlippageAnalysis) SlippageValidation {
	recommended := analysis.RecommendedSlippage
	if userSlippage < recommended {
		return SlippageValidation{
			IsValid: false,
			Message: fmt.Sprintf("Slippage of %.2f%% is below the recommended %.2f%%; the swap is likely to fail", userSlippage, recommended),
		}
	}
	if userSlippage > recommended*2 {
		return SlippageValidation{
			IsValid: true,
			Message: fmt.Sprintf("Slippage of %.2f%% is well above the recommended %.2f%%; you may receive a worse price", userSlippage, recommended),
		}
	}
	return SlippageValidation{IsValid: true, Message: "Slippage tolerance is appropriate for this trade"}
}
