package server

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func parseTxHash(raw string) (common.Hash, error) {
	raw = strings.TrimSpace(raw)
	if !txHashPattern.MatchString(raw) {
		return common.Hash{}, errors.Errorf("%q is not a transaction hash", raw)
	}
	return common.HexToHash(raw), nil
}

// WatchTransaction starts following a transaction the wallet has submitted.
func (s *Server) WatchTransaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash string `json:"hash"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	hash, err := parseTxHash(body.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.transactions.Watch(hash)
	if err != nil {
		// ErrTrackerFull and ErrTrackerClosed are both temporary for the caller.
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if state.Hash == "" {
		state.Hash = hash.Hex()
	}
	writeJSON(w, http.StatusAccepted, state)
}

func (s *Server) TransactionState(w http.ResponseWriter, r *http.Request) {
	hash, err := parseTxHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, ok := s.transactions.State(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "transaction is not tracked")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) requireTransactions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.transactions == nil {
			writeError(w, http.StatusNotFound, "transaction tracking is not enabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}
