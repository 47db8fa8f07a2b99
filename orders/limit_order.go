package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// LimitOrder is a user's standing request to swap TokenIn for TokenOut once
// the observed price reaches TargetPrice. TokenIn and TokenOut are symbols.
type LimitOrder struct {
	ID           string
	TokenIn      string
	TokenOut     string
	AmountIn     string
	TargetPrice  float64
	CurrentPrice float64
	Status       Status
	CreatedAt    time.Time
	ExpiresAt    time.Time
	FilledAt     *time.Time
	TxHash       string
}

// NewOrderID joins the creation time in unix milliseconds with a random suffix.
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
}

func (o LimitOrder) IsPending() bool {
	return o.Status == StatusPending
}

// PairKey is the "IN_OUT" key under which prices for a token pair are published.
func PairKey(tokenIn, tokenOut string) string {
	return tokenIn + "_" + tokenOut
}

func (o LimitOrder) PairKey() string {
	return PairKey(o.TokenIn, o.TokenOut)
}

// Expired reports whether a pending order has passed its expiry at now.
func (o LimitOrder) Expired(now time.Time) bool {
	return o.IsPending() && !now.Before(o.ExpiresAt)
}

// Validate checks that FilledAt and TxHash are present exactly when the order
// is filled.
func (o LimitOrder) Validate() error {
	if o.ID == "" {
		return errors.New("order id is empty")
	}
	if !o.Status.Valid() {
		return errors.Errorf("order %s has unknown status %q", o.ID, o.Status)
	}
	filled := o.Status == StatusFilled
	if filled != (o.FilledAt != nil) {
		return errors.Errorf("order %s: filledAt must be set only when filled", o.ID)
	}
	if filled != (o.TxHash != "") {
		return errors.Errorf("order %s: txHash must be set only when filled", o.ID)
	}
	return nil
}

type limitOrderJSON struct {
	ID           string  `json:"id"`
	TokenIn      string  `json:"tokenIn"`
	TokenOut     string  `json:"tokenOut"`
	AmountIn     string  `json:"amountIn"`
	TargetPrice  float64 `json:"targetPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	Status       Status  `json:"status"`
	CreatedAt    int64   `json:"createdAt"`
	ExpiresAt    int64   `json:"expiresAt"`
	FilledAt     *int64  `json:"filledAt,omitempty"`
	TxHash       string  `json:"txHash,omitempty"`
}

// MarshalJSON stores timestamps as unix milliseconds.
func (o LimitOrder) MarshalJSON() ([]byte, error) {
	out := limitOrderJSON{
		ID:           o.ID,
		TokenIn:      o.TokenIn,
		TokenOut:     o.TokenOut,
		AmountIn:     o.AmountIn,
		TargetPrice:  o.TargetPrice,
		CurrentPrice: o.CurrentPrice,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt.UnixMilli(),
		ExpiresAt:    o.ExpiresAt.UnixMilli(),
		TxHash:       o.TxHash,
	}
	if o.FilledAt != nil {
		filledAt := o.FilledAt.UnixMilli()
		out.FilledAt = &filledAt
	}
	return json.Marshal(out)
}

func (o *LimitOrder) UnmarshalJSON(data []byte) error {
	var in limitOrderJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*o = LimitOrder{
		ID:           in.ID,
		TokenIn:      in.TokenIn,
		TokenOut:     in.TokenOut,
		AmountIn:     in.AmountIn,
		TargetPrice:  in.TargetPrice,
		CurrentPrice: in.CurrentPrice,
		Status:       in.Status,
		CreatedAt:    time.UnixMilli(in.CreatedAt),
		ExpiresAt:    time.UnixMilli(in.ExpiresAt),
		TxHash:       in.TxHash,
	}
	if in.FilledAt != nil {
		filledAt := time.UnixMilli(*in.FilledAt)
		o.FilledAt = &filledAt
	}
	return nil
}
