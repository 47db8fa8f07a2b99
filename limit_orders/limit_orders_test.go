package limitOrders

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipguard/orders"
	"slipguard/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11cE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0b")
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.UnixMilli(1_700_000_000_000)}
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

type countingStore struct {
	*storage.MemoryStore
	sets int
}

func (c *countingStore) Set(key string, value []byte) error {
	c.sets++
	return c.MemoryStore.Set(key, value)
}

func newTestStore(t *testing.T) (*Store, *countingStore, *manualClock, *[]orders.LimitOrder) {
	t.Helper()
	kv := &countingStore{MemoryStore: storage.NewMemoryStore()}
	clock := newManualClock()
	notified := &[]orders.LimitOrder{}
	store := NewStore(kv,
		WithClock(clock.Now),
		WithNotifier(NotifierFunc(func(order orders.LimitOrder) {
			*notified = append(*notified, order)
		})),
	)
	store.Connect(alice)
	return store, kv, clock, notified
}

func wethUsdc(target float64, hours float64) OrderRequest {
	return OrderRequest{
		TokenIn:        "WETH",
		TokenOut:       "USDC",
		AmountIn:       "1.5",
		TargetPrice:    target,
		CurrentPrice:   2000,
		ExpiresInHours: hours,
	}
}

func TestCreateOrderPersistsAndNotifies(t *testing.T) {
	store, kv, clock, notified := newTestStore(t)

	order, err := store.CreateOrder(wethUsdc(2100, 24))
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, order.Status)
	assert.True(t, order.CreatedAt.Equal(clock.Now()))
	assert.True(t, order.ExpiresAt.Equal(clock.Now().Add(24*time.Hour)))
	assert.Nil(t, order.FilledAt)
	assert.Empty(t, order.TxHash)
	require.Len(t, *notified, 1)
	assert.Equal(t, order.ID, (*notified)[0].ID)

	raw, ok, err := kv.Get(StorageKey(alice))
	require.NoError(t, err)
	require.True(t, ok)
	var stored []orders.LimitOrder
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, order.ID, stored[0].ID)
}

func TestStorageKeyIsLowercaseWallet(t *testing.T) {
	require.Equal(t, "limit_orders_0x00000000000000000000000000000000000a11ce", StorageKey(alice))
}

func TestCreateOrderRequiresConnection(t *testing.T) {
	store := NewStore(storage.NewMemoryStore())
	_, err := store.CreateOrder(wethUsdc(2100, 1))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	cases := map[string]func(*OrderRequest){
		"missing token":   func(r *OrderRequest) { r.TokenOut = "" },
		"same token":      func(r *OrderRequest) { r.TokenOut = "weth" },
		"zero amount":     func(r *OrderRequest) { r.AmountIn = "0" },
		"garbage amount":  func(r *OrderRequest) { r.AmountIn = "lots" },
		"zero target":     func(r *OrderRequest) { r.TargetPrice = 0 },
		"negative expiry": func(r *OrderRequest) { r.ExpiresInHours = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := wethUsdc(2100, 1)
			mutate(&req)
			_, err := store.CreateOrder(req)
			require.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
	require.Empty(t, store.Orders())
}

func TestCancelOrderOnlyAffectsPending(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	order, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)

	require.True(t, store.CancelOrder(order.ID))
	require.Equal(t, orders.StatusCancelled, store.Orders()[0].Status)

	// A second cancel is ignored.
	require.False(t, store.CancelOrder(order.ID))
	require.False(t, store.CancelOrder("missing"))

	filled, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)
	require.True(t, store.FillOrder(filled.ID, "0xfeed"))
	require.False(t, store.CancelOrder(filled.ID))
	for _, o := range store.Orders() {
		if o.ID == filled.ID {
			require.Equal(t, orders.StatusFilled, o.Status)
		}
	}
}

func TestFillOrderStampsTimeAndHash(t *testing.T) {
	store, _, clock, _ := newTestStore(t)
	order, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.False(t, store.FillOrder(order.ID, ""))
	require.True(t, store.FillOrder(order.ID, "0xfeed"))

	filled := store.Orders()[0]
	require.Equal(t, orders.StatusFilled, filled.Status)
	require.Equal(t, "0xfeed", filled.TxHash)
	require.NotNil(t, filled.FilledAt)
	require.True(t, filled.FilledAt.Equal(clock.Now()))
	require.NoError(t, filled.Validate())

	require.False(t, store.FillOrder(order.ID, "0xbeef"))
}

func TestZeroHourOrderExpiresInsteadOfFilling(t *testing.T) {
	store, _, clock, _ := newTestStore(t)
	order, err := store.CreateOrder(wethUsdc(2100, 0))
	require.NoError(t, err)

	clock.Advance(time.Millisecond)
	require.True(t, store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 5000}))

	updated := store.Orders()[0]
	require.Equal(t, orders.StatusExpired, updated.Status)
	require.Equal(t, 2000.0, updated.CurrentPrice)
	require.Empty(t, store.GetExecutableOrders())
	require.False(t, store.FillOrder(order.ID, "0xfeed"))
	require.Equal(t, orders.StatusExpired, store.Orders()[0].Status)
}

func TestUpdateOrderPricesPersistsOnceAndOnlyOnChange(t *testing.T) {
	store, kv, _, _ := newTestStore(t)
	_, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)
	_, err = store.CreateOrder(wethUsdc(2200, 1))
	require.NoError(t, err)
	other := wethUsdc(1, 1)
	other.TokenIn, other.TokenOut = "USDC", "WETH"
	_, err = store.CreateOrder(other)
	require.NoError(t, err)
	setsAfterCreate := kv.sets

	require.True(t, store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 2150}))
	require.Equal(t, setsAfterCreate+1, kv.sets)

	// Same price again: nothing changes and nothing is written.
	require.False(t, store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 2150}))
	require.False(t, store.UpdateOrderPrices(map[string]float64{"DAI_USDC": 1}))
	require.Equal(t, setsAfterCreate+1, kv.sets)

	for _, o := range store.Orders() {
		if o.TokenIn == "WETH" {
			require.Equal(t, 2150.0, o.CurrentPrice)
		} else {
			require.Equal(t, 2000.0, o.CurrentPrice)
		}
	}
}

func TestGetExecutableOrdersIsBuySideOnly(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	reached, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)
	_, err = store.CreateOrder(wethUsdc(2500, 1))
	require.NoError(t, err)

	store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 2100})
	executable := store.GetExecutableOrders()
	require.Len(t, executable, 1)
	require.Equal(t, reached.ID, executable[0].ID)

	// A falling price never makes an order executable.
	store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 1000})
	require.Empty(t, store.GetExecutableOrders())

	store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 2600})
	executable = store.GetExecutableOrders()
	require.Len(t, executable, 2)
	for _, o := range executable {
		require.GreaterOrEqual(t, o.CurrentPrice, o.TargetPrice)
	}
}

func TestDisconnectClearsViewButKeepsStorage(t *testing.T) {
	store, kv, _, _ := newTestStore(t)
	order, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)

	store.Disconnect()
	require.Empty(t, store.Orders())
	_, connected := store.Wallet()
	require.False(t, connected)
	require.False(t, store.UpdateOrderPrices(map[string]float64{"WETH_USDC": 1}))

	_, ok, err := kv.Get(StorageKey(alice))
	require.NoError(t, err)
	require.True(t, ok)

	store.Connect(alice)
	require.Len(t, store.Orders(), 1)
	require.Equal(t, order.ID, store.Orders()[0].ID)
}

func TestOrdersAreScopedPerWallet(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	_, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)

	store.Connect(bob)
	require.Empty(t, store.Orders())
	require.Empty(t, store.PendingOrders())
}

func TestCorruptStorageFallsBackToEmpty(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(StorageKey(alice), []byte("{not json")))

	store := NewStore(kv)
	store.Connect(alice)
	require.Empty(t, store.Orders())

	_, err := store.CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)
	require.Len(t, store.Orders(), 1)
}

func TestLoadSkipsOrdersBreakingFillInvariant(t *testing.T) {
	kv := storage.NewMemoryStore()
	raw := `[{"id":"1-a","tokenIn":"WETH","tokenOut":"USDC","amountIn":"1","targetPrice":2,"currentPrice":1,"status":"filled","createdAt":1,"expiresAt":2},
	{"id":"2-b","tokenIn":"WETH","tokenOut":"USDC","amountIn":"1","targetPrice":2,"currentPrice":1,"status":"pending","createdAt":1,"expiresAt":2}]`
	require.NoError(t, kv.Set(StorageKey(alice), []byte(raw)))

	store := NewStore(kv)
	store.Connect(alice)
	require.Len(t, store.Orders(), 1)
	require.Equal(t, "2-b", store.Orders()[0].ID)
}
