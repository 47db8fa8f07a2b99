package limitOrders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slipguard/orders"
	"slipguard/storage"
)

func TestPollerTickAppliesPrices(t *testing.T) {
	book := NewBook(storage.NewMemoryStore())
	order, err := book.ForWallet(alice).CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)

	feed := PriceFeedFunc(func(ctx context.Context) (map[string]float64, error) {
		return map[string]float64{"WETH_USDC": 2200}, nil
	})
	poller, err := NewPoller(feed, book, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, poller.Tick(context.Background()))
	executable := book.ForWallet(alice).GetExecutableOrders()
	require.Len(t, executable, 1)
	require.Equal(t, order.ID, executable[0].ID)
}

func TestPollerTickExpiresOrdersWhenFeedFails(t *testing.T) {
	clock := newManualClock()
	book := NewBook(storage.NewMemoryStore(), WithClock(clock.Now))
	_, err := book.ForWallet(alice).CreateOrder(wethUsdc(2100, 1))
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	feed := PriceFeedFunc(func(ctx context.Context) (map[string]float64, error) {
		return nil, errors.New("rpc down")
	})
	poller, err := NewPoller(feed, book, time.Second, nil)
	require.NoError(t, err)

	require.Error(t, poller.Tick(context.Background()))
	require.Equal(t, orders.StatusExpired, book.ForWallet(alice).Orders()[0].Status)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	ticks := make(chan struct{}, 8)
	feed := PriceFeedFunc(func(ctx context.Context) (map[string]float64, error) {
		ticks <- struct{}{}
		return map[string]float64{}, nil
	})
	poller, err := NewPoller(feed, NewBook(storage.NewMemoryStore()), 10*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	<-ticks
	<-ticks
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNewPollerValidatesArguments(t *testing.T) {
	_, err := NewPoller(nil, NewBook(storage.NewMemoryStore()), time.Second, nil)
	require.Error(t, err)
	_, err = NewPoller(PriceFeedFunc(nil), NewBook(storage.NewMemoryStore()), 0, nil)
	require.Error(t, err)
}
