package rpcClient

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x000000000000000000000000000000000000bEEF")
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai   = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	pair  = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noBackoff(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Backoff: func(int) time.Duration { return 0 }}
}

func newTestReader(t *testing.T, fake *fakeMulticall, opts ...Option) *Reader {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(noBackoff(3))}, opts...)
	reader, err := NewReader(fake, testMulticall, opts...)
	require.NoError(t, err)
	return reader
}

func key(address common.Address) string {
	return strings.ToLower(address.Hex())
}

func TestGetBalancesOmitsFailedElements(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(usdc, balanceHandler(1_000_000))
	fake.handle(dai, revertHandler())
	fake.handle(testMulticall, ethBalanceHandler(42))

	reader := newTestReader(t, fake)
	balances, err := reader.GetBalances(context.Background(), []common.Address{usdc, dai, NativeTokenAddress}, owner)
	require.NoError(t, err)

	require.Len(t, balances, 2)
	assert.Equal(t, uint64(1_000_000), balances[key(usdc)].Uint64())
	assert.Equal(t, uint64(42), balances[key(NativeTokenAddress)].Uint64())
	assert.NotContains(t, balances, key(dai))
	assert.Equal(t, 1, fake.callCount())
}

func TestGetBalancesCacheTTL(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(usdc, balanceHandler(7))
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}

	reader := newTestReader(t, fake, WithClock(clock.Now))
	ctx := context.Background()
	tokens := []common.Address{usdc}

	first, err := reader.GetBalances(ctx, tokens, owner)
	require.NoError(t, err)

	clock.Advance(29_999 * time.Millisecond)
	second, err := reader.GetBalances(ctx, tokens, owner)
	require.NoError(t, err)
	require.Equal(t, 1, fake.callCount())
	require.Equal(t, first[key(usdc)].Bytes32(), second[key(usdc)].Bytes32())

	clock.Advance(2 * time.Millisecond)
	_, err = reader.GetBalances(ctx, tokens, owner)
	require.NoError(t, err)
	require.Equal(t, 2, fake.callCount())
}

func TestPartialResultsAreNotCached(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(usdc, balanceHandler(7))
	fake.handle(dai, revertHandler())

	reader := newTestReader(t, fake)
	tokens := []common.Address{usdc, dai}
	for i := 0; i < 2; i++ {
		_, err := reader.GetBalances(context.Background(), tokens, owner)
		require.NoError(t, err)
	}
	require.Equal(t, 2, fake.callCount())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(pair, reservesHandler(10, 20))

	reader := newTestReader(t, fake)
	ctx := context.Background()
	pairs := []common.Address{pair}

	_, err := reader.GetReserves(ctx, pairs)
	require.NoError(t, err)
	reader.Invalidate(ReservesKey(pairs))
	_, err = reader.GetReserves(ctx, pairs)
	require.NoError(t, err)
	require.Equal(t, 2, fake.callCount())
}

func TestGetReserves(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(pair, reservesHandler(1_000_000, 2_000_000))

	reader := newTestReader(t, fake)
	reserves, err := reader.GetReserves(context.Background(), []common.Address{pair})
	require.NoError(t, err)

	got := reserves[key(pair)]
	assert.Equal(t, pair, got.Pair)
	assert.Equal(t, uint64(1_000_000), got.Reserve0.Uint64())
	assert.Equal(t, uint64(2_000_000), got.Reserve1.Uint64())
	assert.Equal(t, uint64(3_000_000), got.Total().Uint64())
}

func TestCachedValuesAreNotAliased(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(usdc, balanceHandler(7))
	fake.handle(pair, reservesHandler(10, 20))

	reader := newTestReader(t, fake)
	ctx := context.Background()

	balances, err := reader.GetBalances(ctx, []common.Address{usdc}, owner)
	require.NoError(t, err)
	balances[key(usdc)].SetUint64(999)

	reserves, err := reader.GetReserves(ctx, []common.Address{pair})
	require.NoError(t, err)
	reserves[key(pair)].Reserve0.SetUint64(0)
	reserves[key(pair)].Reserve1.AddUint64(reserves[key(pair)].Reserve1, 1)

	balances, err = reader.GetBalances(ctx, []common.Address{usdc}, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(7), balances[key(usdc)].Uint64())

	reserves, err = reader.GetReserves(ctx, []common.Address{pair})
	require.NoError(t, err)
	require.Equal(t, uint64(10), reserves[key(pair)].Reserve0.Uint64())
	require.Equal(t, uint64(20), reserves[key(pair)].Reserve1.Uint64())
	require.Equal(t, 2, fake.callCount(), "second reads must be cache hits")
}

func TestGetReservesRetriesTransientFailures(t *testing.T) {
	fake := newFakeMulticall()
	fake.failFirst = 2
	fake.handle(pair, reservesHandler(5, 6))

	reader := newTestReader(t, fake)
	reserves, err := reader.GetReserves(context.Background(), []common.Address{pair})
	require.NoError(t, err)
	require.Contains(t, reserves, key(pair))
	require.Equal(t, 3, fake.callCount())
}

func TestGetReservesSurfacesExhaustedRetries(t *testing.T) {
	fake := newFakeMulticall()
	fake.failAll = true

	reader := newTestReader(t, fake)
	_, err := reader.GetReserves(context.Background(), []common.Address{pair})
	require.ErrorIs(t, err, ErrAllReadsFailed)
	require.Equal(t, 3, fake.callCount())
}

func TestBatchesAreChunked(t *testing.T) {
	fake := newFakeMulticall()
	tokens := []common.Address{usdc, weth, dai, pair, owner}
	for _, token := range tokens {
		fake.handle(token, balanceHandler(1))
	}

	reader := newTestReader(t, fake, WithBatchSize(2), WithConcurrency(2))
	balances, err := reader.GetBalances(context.Background(), tokens, owner)
	require.NoError(t, err)
	require.Len(t, balances, len(tokens))
	require.Equal(t, 3, fake.callCount())
}

func TestGetTokenMetadata(t *testing.T) {
	fake := newFakeMulticall()
	fake.handle(usdc, metadataHandler("USDC", "USD Coin", 6))
	fake.handle(dai, revertHandler())

	reader := newTestReader(t, fake)
	metadata, err := reader.GetTokenMetadata(context.Background(), []common.Address{usdc, dai, NativeTokenAddress})
	require.NoError(t, err)

	require.Len(t, metadata, 2)
	assert.Equal(t, "USDC", metadata[key(usdc)].Symbol)
	assert.Equal(t, "USD Coin", metadata[key(usdc)].Name)
	assert.Equal(t, uint8(6), metadata[key(usdc)].Decimals)
	assert.True(t, metadata[key(NativeTokenAddress)].IsNative)
}

func TestSignatureIgnoresOrderAndCase(t *testing.T) {
	require.Equal(t,
		BalancesKey([]common.Address{usdc, dai}, owner),
		BalancesKey([]common.Address{dai, usdc, dai}, owner))
	require.NotEqual(t, BalancesKey([]common.Address{usdc}, owner), ReservesKey([]common.Address{usdc}))
}
