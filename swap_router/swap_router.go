package swapRouter

import (
	"math/big"

	"github.com/holiman/uint256"

	rpcClient "slipguard/rpc_client"
)

// DefaultFeeBps is the Uniswap V2 swap fee.
const DefaultFeeBps = 30

const bpsDenominator = 10_000

// Returns the constant product output for amountIn against the given reserves:
// amountOut = amountIn*(1-fee)*reserveOut / (reserveIn + amountIn*(1-fee))
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) *uint256.Int {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() || feeBps >= bpsDenominator {
		return new(uint256.Int)
	}

	// big.Int avoids overflow of the intermediate products for 112-bit reserves.
	in := amountIn.ToBig()
	inWithFee := new(big.Int).Mul(in, big.NewInt(int64(bpsDenominator-feeBps)))
	numerator := new(big.Int).Mul(inWithFee, reserveOut.ToBig())
	denominator := new(big.Int).Mul(reserveIn.ToBig(), big.NewInt(bpsDenominator))
	denominator.Add(denominator, inWithFee)

	out, overflow := uint256.FromBig(new(big.Int).Div(numerator, denominator))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// Returns the input reserves for a swap direction.
func OrientReserves(reserves rpcClient.PairReserves, zeroForOne bool) (reserveIn, reserveOut *uint256.Int) {
	if zeroForOne {
		return reserves.Reserve0, reserves.Reserve1
	}
	return reserves.Reserve1, reserves.Reserve0
}

// Returns how many units of token B one unit of token A is worth, after
// normalising both reserves to a common number of decimals.
func PriceOfAPerB(reserveA *uint256.Int, decimalsA uint8, reserveB *uint256.Int, decimalsB uint8) float64 {
	if reserveA.IsZero() || reserveB.IsZero() {
		return 0
	}
	commonA, commonB := ConvertAmountsToCommonDecimals(reserveA.ToBig(), decimalsA, reserveB.ToBig(), decimalsB)
	price, _ := new(big.Rat).SetFrac(commonB, commonA).Float64()
	return price
}

// Helper function to convert token reserves into a common base
func ConvertAmountsToCommonDecimals(reserveA *big.Int, decimalsA uint8, reserveB *big.Int, decimalsB uint8) (*big.Int, *big.Int) {
	if decimalsA > decimalsB {
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalsA-decimalsB)), nil)
		return reserveA, new(big.Int).Mul(reserveB, multiplier)
	} else if decimalsB > decimalsA {
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalsB-decimalsA)), nil)
		return new(big.Int).Mul(reserveA, multiplier), reserveB
	}
	return reserveA, reserveB
}

// Returns the pool with the highest reserve0 + reserve1. ok is false when
// pools is empty.
func MostLiquid(pools []rpcClient.PairReserves) (best rpcClient.PairReserves, ok bool) {
	bestLiquidity := new(uint256.Int)
	for _, pool := range pools {
		if pool.Reserve0 == nil || pool.Reserve1 == nil {
			continue
		}
		liquidity := pool.Total()
		if !ok || liquidity.Gt(bestLiquidity) {
			best = pool
			bestLiquidity = liquidity
			ok = true
		}
	}
	return best, ok
}
