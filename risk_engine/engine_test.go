package riskEngine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rpcClient "slipguard/rpc_client"
)

type fakeReserves struct {
	reserves map[string]rpcClient.PairReserves
	err      error
	calls    int
}

func (f *fakeReserves) GetReserves(ctx context.Context, pairs []common.Address) (map[string]rpcClient.PairReserves, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]rpcClient.PairReserves)
	for _, pair := range pairs {
		if reserves, ok := f.reserves[strings.ToLower(pair.Hex())]; ok {
			out[strings.ToLower(pair.Hex())] = reserves
		}
	}
	return out, nil
}

var testPair = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

func newEngine(t *testing.T, reader ReserveReader) *Engine {
	t.Helper()
	engine, err := NewEngine(reader)
	require.NoError(t, err)
	return engine
}

func TestAnalyzeSlippageRiskReadsReserves(t *testing.T) {
	reader := &fakeReserves{reserves: map[string]rpcClient.PairReserves{
		strings.ToLower(testPair.Hex()): deepPool(t),
	}}
	engine := newEngine(t, reader)

	analysis := engine.AnalyzeSlippageRisk(context.Background(), QuoteRequest{Pair: testPair, AmountIn: amountForImpact(t, 350)})
	assert.Equal(t, RiskHigh, analysis.RiskLevel)
	assert.Equal(t, 1, reader.calls)
}

func TestAnalyzeSlippageRiskFailsOpen(t *testing.T) {
	engine := newEngine(t, &fakeReserves{err: errors.New("rpc down")})

	analysis := engine.AnalyzeSlippageRisk(context.Background(), QuoteRequest{Pair: testPair, AmountIn: uint256.NewInt(1)})
	assert.True(t, analysis.Degraded)
	assert.Equal(t, RiskLow, analysis.RiskLevel)
	assert.Zero(t, analysis.PriceImpact)
	assert.Equal(t, []string{WarningUnableToAssess}, analysis.Warnings)
}

func TestAnalyzeSlippageRiskMissingPairFailsOpen(t *testing.T) {
	engine := newEngine(t, &fakeReserves{reserves: map[string]rpcClient.PairReserves{}})

	analysis := engine.AnalyzeSlippageRisk(context.Background(), QuoteRequest{Pair: testPair, AmountIn: uint256.NewInt(1)})
	assert.True(t, analysis.Degraded)
}

func TestQuoteDerivesOutputAndMinimum(t *testing.T) {
	reader := &fakeReserves{reserves: map[string]rpcClient.PairReserves{
		strings.ToLower(testPair.Hex()): deepPool(t),
	}}
	engine := newEngine(t, reader)

	amountIn := amountForImpact(t, 10)
	quote, err := engine.Quote(context.Background(), QuoteRequest{Pair: testPair, AmountIn: amountIn, ZeroForOne: true}, 0.5)
	require.NoError(t, err)

	assert.Equal(t, RiskLow, quote.Analysis.RiskLevel)
	assert.True(t, quote.ExpectedOutput.Lt(amountIn))
	assert.Equal(t, CalculateSafeMinOutput(quote.ExpectedOutput, 0.5, RiskLow), quote.MinimumOutput)
	assert.True(t, quote.Validation.IsValid)
}

func TestQuoteUsesCallerExpectedOutput(t *testing.T) {
	reader := &fakeReserves{reserves: map[string]rpcClient.PairReserves{
		strings.ToLower(testPair.Hex()): deepPool(t),
	}}
	engine := newEngine(t, reader)

	quote, err := engine.Quote(context.Background(), QuoteRequest{
		Pair:      testPair,
		AmountIn:  amountForImpact(t, 10),
		AmountOut: uint256.NewInt(10_000),
	}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(9950), quote.MinimumOutput.Uint64())
}

func TestQuoteRequiresReserves(t *testing.T) {
	engine := newEngine(t, &fakeReserves{reserves: map[string]rpcClient.PairReserves{}})

	_, err := engine.Quote(context.Background(), QuoteRequest{Pair: testPair, AmountIn: uint256.NewInt(1)}, 0.5)
	require.ErrorIs(t, err, ErrPairUnavailable)

	_, err = engine.Quote(context.Background(), QuoteRequest{Pair: testPair}, 0.5)
	require.Error(t, err)
}
