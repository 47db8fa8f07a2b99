package limitOrders

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/logging"
)

// Poller periodically refreshes order prices for every wallet in a Book.
type Poller struct {
	feed     PriceFeed
	book     *Book
	interval time.Duration
	logger   *zap.Logger
}

func NewPoller(feed PriceFeed, book *Book, interval time.Duration, logger *zap.Logger) (*Poller, error) {
	if feed == nil || book == nil {
		return nil, errors.New("poller requires a price feed and an order book")
	}
	if interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	return &Poller{feed: feed, book: book, interval: interval, logger: logging.OrDefault(logger)}, nil
}

// Run blocks, ticking until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("order poller started", zap.Duration("interval", p.interval), zap.Int("wallets", len(p.book.Wallets())))
	for {
		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("order poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick fetches prices once and applies them. Expiry is still applied when the
// feed fails.
func (p *Poller) Tick(ctx context.Context) error {
	prices, err := p.feed.Prices(ctx)
	if err != nil {
		p.book.UpdateOrderPrices(nil)
		return errors.Wrap(err, "fetch prices")
	}
	changed := p.book.UpdateOrderPrices(prices)
	if changed > 0 {
		p.logger.Debug("order prices updated", zap.Int("wallets", changed), zap.Int("prices", len(prices)))
	}
	return nil
}
