package swapRouter

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	rpcClient "slipguard/rpc_client"
)

func TestGetAmountOutMatchesUniswapV2(t *testing.T) {
	// 1000 in against 1e6/1e6 with a 0.3% fee: 997000*1e6 / (1e6*1000 + 997000) = 996
	out := GetAmountOut(uint256.NewInt(1000), uint256.NewInt(1_000_000), uint256.NewInt(1_000_000), DefaultFeeBps)
	require.Equal(t, uint64(996), out.Uint64())
}

func TestGetAmountOutZeroInputs(t *testing.T) {
	require.True(t, GetAmountOut(new(uint256.Int), uint256.NewInt(1), uint256.NewInt(1), DefaultFeeBps).IsZero())
	require.True(t, GetAmountOut(uint256.NewInt(1), new(uint256.Int), uint256.NewInt(1), DefaultFeeBps).IsZero())
}

func TestOrientReserves(t *testing.T) {
	reserves := rpcClient.PairReserves{Reserve0: uint256.NewInt(1), Reserve1: uint256.NewInt(2)}
	in, out := OrientReserves(reserves, true)
	require.Equal(t, uint64(1), in.Uint64())
	require.Equal(t, uint64(2), out.Uint64())
	in, out = OrientReserves(reserves, false)
	require.Equal(t, uint64(2), in.Uint64())
	require.Equal(t, uint64(1), out.Uint64())
}

func TestPriceOfAPerBNormalisesDecimals(t *testing.T) {
	// 1 WETH (18 decimals) against 2000 USDC (6 decimals)
	weth, _ := uint256.FromBig(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	usdc := uint256.NewInt(2000_000_000)
	require.InDelta(t, 2000.0, PriceOfAPerB(weth, 18, usdc, 6), 1e-9)
	require.InDelta(t, 0.0005, PriceOfAPerB(usdc, 6, weth, 18), 1e-12)
	require.Zero(t, PriceOfAPerB(new(uint256.Int), 18, usdc, 6))
}

func TestMostLiquid(t *testing.T) {
	small := rpcClient.PairReserves{Pair: common.HexToAddress("0x01"), Reserve0: uint256.NewInt(10), Reserve1: uint256.NewInt(10)}
	large := rpcClient.PairReserves{Pair: common.HexToAddress("0x02"), Reserve0: uint256.NewInt(100), Reserve1: uint256.NewInt(5)}

	best, ok := MostLiquid([]rpcClient.PairReserves{small, large})
	require.True(t, ok)
	require.Equal(t, large.Pair, best.Pair)

	_, ok = MostLiquid(nil)
	require.False(t, ok)
}
