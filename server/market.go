package server

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/config"
	riskEngine "slipguard/risk_engine"
	"slipguard/validation"
)

// tradeRequest carries amounts as base-unit integer strings.
type tradeRequest struct {
	Pair       string  `json:"pair"`
	AmountIn   string  `json:"amountIn"`
	AmountOut  string  `json:"amountOut,omitempty"`
	ZeroForOne bool    `json:"zeroForOne"`
	Slippage   float64 `json:"slippage,omitempty"`
}

func (t tradeRequest) toQuoteRequest() (riskEngine.QuoteRequest, error) {
	if result := validation.ValidateAddress(t.Pair); !result.IsValid {
		return riskEngine.QuoteRequest{}, errors.New(result.Error)
	}
	amountIn, err := parseBaseUnits(t.AmountIn)
	if err != nil {
		return riskEngine.QuoteRequest{}, errors.Wrap(err, "amountIn")
	}
	if amountIn.IsZero() {
		return riskEngine.QuoteRequest{}, errors.New("amountIn must be greater than 0")
	}
	req := riskEngine.QuoteRequest{
		Pair:       common.HexToAddress(t.Pair),
		AmountIn:   amountIn,
		ZeroForOne: t.ZeroForOne,
	}
	if strings.TrimSpace(t.AmountOut) != "" {
		if req.AmountOut, err = parseBaseUnits(t.AmountOut); err != nil {
			return riskEngine.QuoteRequest{}, errors.Wrap(err, "amountOut")
		}
	}
	return req, nil
}

type quoteResponse struct {
	AmountIn       string                        `json:"amountIn"`
	ExpectedOutput string                        `json:"expectedOutput"`
	MinimumOutput  string                        `json:"minimumOutput"`
	Tolerance      float64                       `json:"tolerance"`
	Analysis       riskEngine.SlippageAnalysis   `json:"analysis"`
	Validation     riskEngine.SlippageValidation `json:"validation"`
}

type reservesResponse struct {
	Pair     string `json:"pair"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// AnalyzeRisk classifies a trade. Read failures still return 200 with a
// degraded analysis.
func (s *Server) AnalyzeRisk(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req, err := body.toQuoteRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.AnalyzeSlippageRisk(r.Context(), req))
}

func (s *Server) Quote(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if result := validation.ValidateSlippage(body.Slippage); !result.IsValid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	req, err := body.toQuoteRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quote, err := s.engine.Quote(r.Context(), req, body.Slippage)
	if err != nil {
		s.logger.Warn("quote failed", zap.String("pair", body.Pair), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		AmountIn:       quote.AmountIn.Dec(),
		ExpectedOutput: quote.ExpectedOutput.Dec(),
		MinimumOutput:  quote.MinimumOutput.Dec(),
		Tolerance:      quote.Tolerance,
		Analysis:       quote.Analysis,
		Validation:     quote.Validation,
	})
}

// MinOutput applies tolerance and the risk margin to an expected output.
func (s *Server) MinOutput(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExpectedOutput string               `json:"expectedOutput"`
		Slippage       float64              `json:"slippage"`
		RiskLevel      riskEngine.RiskLevel `json:"riskLevel"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if result := validation.ValidateSlippage(body.Slippage); !result.IsValid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	if body.RiskLevel == "" {
		body.RiskLevel = riskEngine.RiskLow
	}
	if body.RiskLevel.Rank() < 0 {
		writeError(w, http.StatusBadRequest, "unknown risk level")
		return
	}
	expected, err := parseBaseUnits(body.ExpectedOutput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expectedOutput: "+err.Error())
		return
	}
	minimum := riskEngine.CalculateSafeMinOutput(expected, body.Slippage, body.RiskLevel)
	writeJSON(w, http.StatusOK, map[string]string{"minimumOutput": minimum.Dec()})
}

// Balances returns raw balances of ?tokens= for ?owner=.
func (s *Server) Balances(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if result := validation.ValidateAddress(owner); !result.IsValid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	tokens, err := parseAddressList(r.URL.Query().Get("tokens"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balances, err := s.reader.GetBalances(r.Context(), tokens, common.HexToAddress(owner))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := make(map[string]string, len(balances))
	for token, balance := range balances {
		out[token] = balance.Dec()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) Reserves(w http.ResponseWriter, r *http.Request) {
	pairs, err := parseAddressList(r.URL.Query().Get("pairs"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reserves, err := s.reader.GetReserves(r.Context(), pairs)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := make(map[string]reservesResponse, len(reserves))
	for key, reserve := range reserves {
		out[key] = reservesResponse{
			Pair:     reserve.Pair.Hex(),
			Reserve0: reserve.Reserve0.Dec(),
			Reserve1: reserve.Reserve1.Dec(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) Tokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.tokens
	if tokens == nil {
		tokens = []config.TokenInfo{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// Token returns the configured entry for an address, falling back to an
// on-chain metadata read for unknown tokens.
func (s *Server) Token(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if result := validation.ValidateAddress(raw); !result.IsValid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	address := common.HexToAddress(raw)
	for _, token := range s.tokens {
		if token.Address == address {
			writeJSON(w, http.StatusOK, token)
			return
		}
	}
	metadata, err := s.reader.GetTokenMetadata(r.Context(), []common.Address{address})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	token, ok := metadata[strings.ToLower(address.Hex())]
	if !ok {
		writeError(w, http.StatusNotFound, "token metadata unavailable")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func parseBaseUnits(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("amount is required")
	}
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, errors.Errorf("%q is not a base-unit integer", raw)
	}
	return value, nil
}

func parseAddressList(raw string) ([]common.Address, error) {
	addresses := []common.Address{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if result := validation.ValidateAddress(part); !result.IsValid {
			return nil, errors.New(result.Error)
		}
		addresses = append(addresses, common.HexToAddress(part))
	}
	if len(addresses) == 0 {
		return nil, errors.New("at least one address is required")
	}
	return addresses, nil
}
