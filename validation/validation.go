package validation

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// MaxSlippage is the largest slippage tolerance accepted, in percent.
const MaxSlippage = 50

// Result is returned by every validator instead of an error so callers can
// surface the message next to the offending input.
type Result struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

func Valid() Result {
	return Result{IsValid: true}
}

func Invalid(format string, args ...any) Result {
	return Result{IsValid: false, Error: fmt.Sprintf(format, args...)}
}

func ValidateAddress(address string) Result {
	address = strings.TrimSpace(address)
	if address == "" {
		return Invalid("address is required")
	}
	if !common.IsHexAddress(address) || !strings.HasPrefix(strings.ToLower(address), "0x") {
		return Invalid("%q is not a valid address", address)
	}
	return Valid()
}

// ValidateAmount accepts positive, finite decimal strings.
func ValidateAmount(amount string) Result {
	if _, err := parsePositive(amount); err != nil {
		return Invalid("%s", err.Error())
	}
	return Valid()
}

// ValidateTokenAmount additionally rejects amounts with more fractional
// digits than the token supports.
func ValidateTokenAmount(amount string, decimals uint8) Result {
	if _, err := ParseUnits(amount, decimals); err != nil {
		return Invalid("%s", err.Error())
	}
	return Valid()
}

func ValidateSlippage(slippage float64) Result {
	if math.IsNaN(slippage) {
		return Invalid("slippage must be a number")
	}
	if slippage <= 0 {
		return Invalid("slippage must be greater than 0")
	}
	if slippage > MaxSlippage {
		return Invalid("slippage cannot exceed %d%%", MaxSlippage)
	}
	return Valid()
}

// ParseUnits converts a decimal amount into the token's base units.
func ParseUnits(amount string, decimals uint8) (*uint256.Int, error) {
	d, err := parsePositive(amount)
	if err != nil {
		return nil, err
	}
	d.Reduce(d)

	scale := int64(d.Exponent) + int64(decimals)
	if scale < 0 {
		return nil, errors.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	units := new(big.Int).Set(d.Coeff.MathBigInt())
	units.Mul(units, new(big.Int).Exp(big.NewInt(10), big.NewInt(scale), nil))

	result, overflow := uint256.FromBig(units)
	if overflow {
		return nil, errors.Errorf("amount %s is too large", amount)
	}
	return result, nil
}

func parsePositive(amount string) (*apd.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, errors.New("amount is required")
	}
	d, _, err := apd.NewFromString(amount)
	if err != nil {
		return nil, errors.Errorf("%q is not a valid amount", amount)
	}
	if d.Form != apd.Finite {
		return nil, errors.Errorf("%q is not a finite amount", amount)
	}
	if d.Sign() <= 0 {
		return nil, errors.New("amount must be greater than 0")
	}
	return d, nil
}
