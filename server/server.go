package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"slipguard/config"
	limitOrders "slipguard/limit_orders"
	"slipguard/logging"
	rateLimit "slipguard/rate_limit"
	riskEngine "slipguard/risk_engine"
	rpcClient "slipguard/rpc_client"
	"slipguard/settings"
	"slipguard/storage"
	txState "slipguard/tx_state"
	"slipguard/validation"
)

// ChainReader is the read adapter surface used by the API.
type ChainReader interface {
	GetBalances(ctx context.Context, tokens []common.Address, owner common.Address) (map[string]*uint256.Int, error)
	GetReserves(ctx context.Context, pairs []common.Address) (map[string]rpcClient.PairReserves, error)
	GetTokenMetadata(ctx context.Context, tokens []common.Address) (map[string]config.TokenInfo, error)
}

type RiskEngine interface {
	AnalyzeSlippageRisk(ctx context.Context, req riskEngine.QuoteRequest) riskEngine.SlippageAnalysis
	Quote(ctx context.Context, req riskEngine.QuoteRequest, tolerance float64) (riskEngine.Quote, error)
}

var (
	_ ChainReader = (*rpcClient.Reader)(nil)
	_ RiskEngine  = (*riskEngine.Engine)(nil)
)

// RpcValidator probes a candidate RPC endpoint.
type RpcValidator func(ctx context.Context, url string) validation.Result

// Config captures the dependencies required to construct the server.
type Config struct {
	Reader      ChainReader
	Engine      RiskEngine
	Orders      *limitOrders.Book
	Tokens      []config.TokenInfo
	Limiter     *rateLimit.Limiter
	ValidateRpc RpcValidator
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger

	// Settings and Preferences back the settings, favorites and theme
	// endpoints. Both default to in-memory storage.
	Settings     *settings.Store
	Preferences  storage.KeyValueStore
	Transactions *txState.Tracker

	// ProbeLimit requests per ProbeWindow are allowed on the RPC probe per client.
	ProbeLimit  int
	ProbeWindow time.Duration
}

type Server struct {
	reader      ChainReader
	engine      RiskEngine
	orders      *limitOrders.Book
	tokens      []config.TokenInfo
	limiter     *rateLimit.Limiter
	validateRpc RpcValidator
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
	probeLimit  int
	probeWindow time.Duration

	settings     *settings.Store
	preferences  storage.KeyValueStore
	favorites    *settings.Favorites
	transactions *txState.Tracker

	router http.Handler
}

func New(cfg Config) *Server {
	s := &Server{
		reader:      cfg.Reader,
		engine:      cfg.Engine,
		orders:      cfg.Orders,
		tokens:      append([]config.TokenInfo(nil), cfg.Tokens...),
		limiter:     cfg.Limiter,
		validateRpc: cfg.ValidateRpc,
		gatherer:    cfg.Gatherer,
		logger:      logging.OrDefault(cfg.Logger),
		probeLimit:  cfg.ProbeLimit,
		probeWindow: cfg.ProbeWindow,

		settings:     cfg.Settings,
		preferences:  cfg.Preferences,
		transactions: cfg.Transactions,
	}
	if s.limiter == nil {
		s.limiter = rateLimit.NewLimiter()
	}
	if s.validateRpc == nil {
		s.validateRpc = settings.ValidateRpcURL
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.probeLimit <= 0 {
		s.probeLimit = 5
	}
	if s.probeWindow <= 0 {
		s.probeWindow = time.Minute
	}
	if s.preferences == nil {
		s.preferences = storage.NewMemoryStore()
	}
	if s.settings == nil {
		s.settings = settings.NewStore(s.preferences, settings.WithLogger(s.logger))
		s.settings.Load()
	}
	s.favorites = settings.LoadFavorites(s.preferences, s.logger)
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.Post("/risk", s.AnalyzeRisk)
		api.Post("/quote", s.Quote)
		api.Post("/min-output", s.MinOutput)
		api.Get("/balances", s.Balances)
		api.Get("/reserves", s.Reserves)
		api.Get("/tokens", s.Tokens)
		api.Get("/tokens/{address}", s.Token)
		api.With(s.limiter.Middleware("rpc_validate", s.probeLimit, s.probeWindow)).Post("/rpc/validate", s.ValidateRpcURL)

		api.Get("/settings", s.GetSettings)
		api.Patch("/settings", s.PatchSettings)
		api.Post("/settings/reset", s.ResetSettings)
		api.Get("/favorites", s.ListFavorites)
		api.Post("/favorites/{address}/toggle", s.ToggleFavorite)
		api.Get("/theme", s.GetTheme)
		api.Put("/theme", s.PutTheme)

		api.Route("/transactions", func(txs chi.Router) {
			txs.Use(s.requireTransactions)
			txs.With(s.limiter.Middleware("tx_watch", s.probeLimit*4, s.probeWindow)).Post("/", s.WatchTransaction)
			txs.Get("/{hash}", s.TransactionState)
		})

		api.Route("/wallets/{address}/orders", func(orders chi.Router) {
			orders.Use(s.requireOrders)
			orders.Get("/", s.ListOrders)
			orders.Post("/", s.CreateOrder)
			orders.Get("/executable", s.ExecutableOrders)
			orders.Post("/{id}/cancel", s.CancelOrder)
			orders.Post("/{id}/fill", s.FillOrder)
		})
	})
	return r
}

// ValidateRpcURL probes the submitted endpoint with eth_chainId.
func (s *Server) ValidateRpcURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.validateRpc(r.Context(), strings.TrimSpace(req.URL)))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", chimw.GetReqID(r.Context())))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
