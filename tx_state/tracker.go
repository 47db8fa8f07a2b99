package txState

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/logging"
)

var (
	ErrTrackerFull   = errors.New("too many transactions are being tracked")
	ErrTrackerClosed = errors.New("tracker is closed")
)

// Tracker follows transactions submitted by a wallet outside this process.
// Each hash gets its own Machine driven by Track. At most capacity hashes are
// kept; finished ones are evicted oldest first to make room.
type Tracker struct {
	mu       sync.Mutex
	receipts ReceiptFetcher
	interval time.Duration
	timeout  time.Duration
	capacity int
	machines map[common.Hash]*Machine
	finished []common.Hash
	closed   bool
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type TrackerOption func(*Tracker)

func WithPollInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.interval = d }
}

// WithTimeout bounds how long a single hash is polled before it is marked as
// failed.
func WithTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.timeout = d }
}

func WithCapacity(n int) TrackerOption {
	return func(t *Tracker) { t.capacity = n }
}

func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

func NewTracker(receipts ReceiptFetcher, opts ...TrackerOption) (*Tracker, error) {
	if receipts == nil {
		return nil, errors.New("receipt fetcher required")
	}
	t := &Tracker{
		receipts: receipts,
		interval: 4 * time.Second,
		timeout:  30 * time.Minute,
		capacity: 1024,
		machines: make(map[common.Hash]*Machine),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.interval <= 0 || t.capacity <= 0 {
		return nil, errors.New("tracker interval and capacity must be positive")
	}
	t.logger = logging.OrDefault(t.logger)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t, nil
}

// Watch starts tracking hash and returns its current state. Watching a hash
// that is already tracked returns the existing state.
func (t *Tracker) Watch(hash common.Hash) (TransactionState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return TransactionState{}, ErrTrackerClosed
	}
	if m, ok := t.machines[hash]; ok {
		return m.State(), nil
	}
	for len(t.machines) >= t.capacity && len(t.finished) > 0 {
		delete(t.machines, t.finished[0])
		t.finished = t.finished[1:]
	}
	if len(t.machines) >= t.capacity {
		return TransactionState{}, ErrTrackerFull
	}

	m := NewMachine()
	t.machines[hash] = m
	t.wg.Add(1)
	go t.follow(hash, m)

	// Track moves m out of idle before returning from its first call; report
	// the submitted hash as pending until then.
	state := m.State()
	if !state.IsPending && !state.IsConfirming && !state.IsSuccess && !state.IsError {
		state = TransactionState{IsPending: true}
	}
	return state, nil
}

func (t *Tracker) State(hash common.Hash) (TransactionState, bool) {
	t.mu.Lock()
	m, ok := t.machines[hash]
	t.mu.Unlock()
	if !ok {
		return TransactionState{}, false
	}
	return m.State(), true
}

// Len reports how many hashes are held, finished ones included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.machines)
}

// Close stops every poll and waits for them to return.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) follow(hash common.Hash, m *Machine) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	submit := func(context.Context) (common.Hash, error) { return hash, nil }
	if _, err := Track(ctx, m, submit, t.receipts, t.interval); err != nil {
		t.logger.Info("transaction failed", zap.String("hash", hash.Hex()), zap.Error(err))
	} else {
		t.logger.Info("transaction confirmed", zap.String("hash", hash.Hex()))
	}

	t.mu.Lock()
	t.finished = append(t.finished, hash)
	t.mu.Unlock()
}
