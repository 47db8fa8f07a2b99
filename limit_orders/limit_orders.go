package limitOrders

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/logging"
	"slipguard/metrics"
	"slipguard/orders"
	"slipguard/storage"
	"slipguard/validation"
)

const storageKeyPrefix = "limit_orders_"

var (
	ErrNotConnected = errors.New("no wallet connected")
	ErrInvalidOrder = errors.New("invalid order")
)

// StorageKey scopes persisted orders to a single wallet.
func StorageKey(wallet common.Address) string {
	return storageKeyPrefix + strings.ToLower(wallet.Hex())
}

// OrderRequest carries the user's input for a new order.
type OrderRequest struct {
	TokenIn        string  `json:"tokenIn"`
	TokenOut       string  `json:"tokenOut"`
	AmountIn       string  `json:"amountIn"`
	TargetPrice    float64 `json:"targetPrice"`
	CurrentPrice   float64 `json:"currentPrice"`
	ExpiresInHours float64 `json:"expiresInHours"`
}

// Notifier is told about orders the user just created.
type Notifier interface {
	OrderCreated(order orders.LimitOrder)
}

type NotifierFunc func(order orders.LimitOrder)

func (f NotifierFunc) OrderCreated(order orders.LimitOrder) { f(order) }

type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) OrderCreated(order orders.LimitOrder) {
	n.logger.Info("limit order created",
		zap.String("id", order.ID),
		zap.String("pair", order.PairKey()),
		zap.Float64("target_price", order.TargetPrice))
}

// Store holds the limit orders of the connected wallet. The in-memory view is
// the source of truth while connected; every mutation is written back to the
// key/value store as one JSON document.
type Store struct {
	mu        sync.Mutex
	kv        storage.KeyValueStore
	wallet    common.Address
	connected bool
	orders    []orders.LimitOrder

	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.CoreMetrics
	notifier Notifier
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func NewStore(kv storage.KeyValueStore, opts ...Option) *Store {
	s := &Store{kv: kv, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.OrDefault(s.logger)
	if s.notifier == nil {
		s.notifier = logNotifier{logger: s.logger}
	}
	return s
}

// Connect loads the orders persisted for wallet. Unreadable or corrupt data
// is logged and replaced by an empty list.
func (s *Store) Connect(wallet common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallet = wallet
	s.connected = true
	s.orders = s.load(wallet)
}

// Disconnect clears the in-memory view. Persisted orders are kept.
func (s *Store) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallet = common.Address{}
	s.connected = false
	s.orders = nil
}

func (s *Store) Wallet() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet, s.connected
}

func (s *Store) Orders() []orders.LimitOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrders(s.orders)
}

func (s *Store) PendingOrders() []orders.LimitOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := []orders.LimitOrder{}
	for _, order := range s.orders {
		if order.IsPending() {
			pending = append(pending, order)
		}
	}
	return pending
}

// CreateOrder builds a pending order from req, persists it and notifies.
func (s *Store) CreateOrder(req OrderRequest) (orders.LimitOrder, error) {
	if err := req.Validate(); err != nil {
		return orders.LimitOrder{}, err
	}

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return orders.LimitOrder{}, ErrNotConnected
	}
	now := s.now()
	order := orders.LimitOrder{
		ID:           orders.NewOrderID(now),
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     strings.TrimSpace(req.AmountIn),
		TargetPrice:  req.TargetPrice,
		CurrentPrice: req.CurrentPrice,
		Status:       orders.StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(req.ExpiresInHours * float64(time.Hour))),
	}
	s.orders = append([]orders.LimitOrder{order}, s.orders...)
	s.persist()
	s.mu.Unlock()

	s.metrics.ObserveOrderTransition(string(orders.StatusPending))
	s.notifier.OrderCreated(order)
	return order, nil
}

// CancelOrder moves a pending order to cancelled. Orders that are missing or
// no longer pending are left untouched and false is returned.
func (s *Store) CancelOrder(id string) bool {
	return s.transition(id, func(order *orders.LimitOrder) {
		order.Status = orders.StatusCancelled
	})
}

// FillOrder marks a pending order filled by the transaction txHash.
func (s *Store) FillOrder(id string, txHash string) bool {
	if strings.TrimSpace(txHash) == "" {
		return false
	}
	return s.transition(id, func(order *orders.LimitOrder) {
		filledAt := s.now()
		order.Status = orders.StatusFilled
		order.FilledAt = &filledAt
		order.TxHash = txHash
	})
}

func (s *Store) transition(id string, apply func(order *orders.LimitOrder)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID != id {
			continue
		}
		if !s.orders[i].IsPending() {
			return false
		}
		apply(&s.orders[i])
		s.persist()
		s.metrics.ObserveOrderTransition(string(s.orders[i].Status))
		return true
	}
	return false
}

// UpdateOrderPrices expires pending orders past their deadline and refreshes
// the current price of the rest from prices, keyed by orders.PairKey. The
// orders are written back once, and only when something changed.
func (s *Store) UpdateOrderPrices(prices map[string]float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return false
	}
	now := s.now()
	changed := false
	for i := range s.orders {
		order := &s.orders[i]
		if !order.IsPending() {
			continue
		}
		if order.Expired(now) {
			order.Status = orders.StatusExpired
			s.metrics.ObserveOrderTransition(string(orders.StatusExpired))
			changed = true
			continue
		}
		price, ok := prices[order.PairKey()]
		if ok && price != order.CurrentPrice {
			order.CurrentPrice = price
			changed = true
		}
	}
	if changed {
		s.persist()
	}
	return changed
}

// GetExecutableOrders returns pending orders whose current price has reached
// the target. Only the rising-price direction is checked; an order waiting
// for the price to fall is never reported.
func (s *Store) GetExecutableOrders() []orders.LimitOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	executable := []orders.LimitOrder{}
	for _, order := range s.orders {
		if order.IsPending() && order.CurrentPrice >= order.TargetPrice {
			executable = append(executable, order)
		}
	}
	return executable
}

func (s *Store) load(wallet common.Address) []orders.LimitOrder {
	key := StorageKey(wallet)
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		s.logger.Warn("failed to read limit orders", zap.String("key", key), zap.Error(err))
		return []orders.LimitOrder{}
	}
	if !ok {
		return []orders.LimitOrder{}
	}
	var stored []orders.LimitOrder
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("discarding corrupt limit orders", zap.String("key", key), zap.Error(err))
		return []orders.LimitOrder{}
	}
	valid := make([]orders.LimitOrder, 0, len(stored))
	for _, order := range stored {
		if err := order.Validate(); err != nil {
			s.logger.Warn("skipping invalid limit order", zap.String("key", key), zap.Error(err))
			continue
		}
		valid = append(valid, order)
	}
	return valid
}

// persist must be called with mu held. Write failures keep the in-memory
// state and are logged.
func (s *Store) persist() {
	key := StorageKey(s.wallet)
	raw, err := json.Marshal(s.orders)
	if err != nil {
		s.logger.Warn("failed to encode limit orders", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.kv.Set(key, raw); err != nil {
		s.logger.Warn("failed to save limit orders", zap.String("key", key), zap.Error(err))
	}
}

// Validate checks the request fields without touching any store.
func (req OrderRequest) Validate() error {
	if strings.TrimSpace(req.TokenIn) == "" || strings.TrimSpace(req.TokenOut) == "" {
		return errors.Wrap(ErrInvalidOrder, "tokenIn and tokenOut are required")
	}
	if strings.EqualFold(req.TokenIn, req.TokenOut) {
		return errors.Wrap(ErrInvalidOrder, "tokenIn and tokenOut must differ")
	}
	if result := validation.ValidateAmount(req.AmountIn); !result.IsValid {
		return errors.Wrap(ErrInvalidOrder, result.Error)
	}
	if !(req.TargetPrice > 0) {
		return errors.Wrap(ErrInvalidOrder, "target price must be greater than 0")
	}
	if req.CurrentPrice < 0 {
		return errors.Wrap(ErrInvalidOrder, "current price cannot be negative")
	}
	if req.ExpiresInHours < 0 {
		return errors.Wrap(ErrInvalidOrder, "expiry cannot be negative")
	}
	return nil
}

func cloneOrders(in []orders.LimitOrder) []orders.LimitOrder {
	out := make([]orders.LimitOrder, len(in))
	copy(out, in)
	return out
}
