package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	limitOrders "slipguard/limit_orders"
	"slipguard/orders"
	"slipguard/validation"
)

type walletKey struct{}

type executableResponse struct {
	Orders []orders.LimitOrder `json:"orders"`
	Routes []limitOrders.Route `json:"routes"`
}

// requireOrders validates the {address} parameter and stores the wallet in the
// request context.
func (s *Server) requireOrders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.orders == nil {
			writeError(w, http.StatusNotFound, "limit orders are not enabled")
			return
		}
		raw := chi.URLParam(r, "address")
		if result := validation.ValidateAddress(raw); !result.IsValid {
			writeJSON(w, http.StatusBadRequest, result)
			return
		}
		wallet := common.HexToAddress(raw)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), walletKey{}, wallet)))
	})
}

func walletFrom(r *http.Request) common.Address {
	return r.Context().Value(walletKey{}).(common.Address)
}

// lookupStore returns the wallet's store when the wallet is tracked or has
// persisted orders. Unknown wallets are not added to the book.
func (s *Server) lookupStore(r *http.Request) (*limitOrders.Store, bool) {
	return s.orders.Lookup(walletFrom(r))
}

// ListOrders returns every order, or only pending ones with ?status=pending.
func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookupStore(r)
	if !ok {
		writeJSON(w, http.StatusOK, []orders.LimitOrder{})
		return
	}
	if r.URL.Query().Get("status") == string(orders.StatusPending) {
		writeJSON(w, http.StatusOK, store.PendingOrders())
		return
	}
	writeJSON(w, http.StatusOK, store.Orders())
}

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req limitOrders.OrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.canonicalSymbols(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := s.orders.ForWallet(walletFrom(r)).CreateOrder(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ExecutableOrders returns orders whose target is reached, grouped by route.
func (s *Server) ExecutableOrders(w http.ResponseWriter, r *http.Request) {
	executable := []orders.LimitOrder{}
	if store, ok := s.lookupStore(r); ok {
		executable = store.GetExecutableOrders()
	}
	writeJSON(w, http.StatusOK, executableResponse{
		Orders: executable,
		Routes: limitOrders.GroupByRoute(executable),
	})
}

func (s *Server) CancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelled := false
	if store, ok := s.lookupStore(r); ok {
		cancelled = store.CancelOrder(chi.URLParam(r, "id"))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) FillOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TxHash string `json:"txHash"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	filled := false
	if store, ok := s.lookupStore(r); ok {
		filled = store.FillOrder(chi.URLParam(r, "id"), strings.TrimSpace(body.TxHash))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"filled": filled})
}

// canonicalSymbols rewrites order symbols to their configured spelling so that
// they match the keys published by the price feed.
func (s *Server) canonicalSymbols(req *limitOrders.OrderRequest) error {
	if len(s.tokens) == 0 {
		return nil
	}
	for _, symbol := range []*string{&req.TokenIn, &req.TokenOut} {
		found := false
		for _, token := range s.tokens {
			if strings.EqualFold(token.Symbol, strings.TrimSpace(*symbol)) {
				*symbol = token.Symbol
				found = true
				break
			}
		}
		if !found {
			return errors.Errorf("unknown token %q", *symbol)
		}
	}
	return nil
}
