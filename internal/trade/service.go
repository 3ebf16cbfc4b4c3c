// Package trade provides the HTTP handlers for market data queries, account
// registration, and trade execution against the ledger.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/stockpit/market-engine/internal/auth"
	"github.com/stockpit/market-engine/internal/ledger"
	"github.com/stockpit/market-engine/internal/market"
	"github.com/stockpit/market-engine/internal/metrics"
)

// Service handles market and ledger operations over HTTP. Synchronization
// lives below it: the market serializes ticks against quote reads, the
// ledger serializes trades per account.
type Service struct {
	market       *market.Market
	ledger       *ledger.Ledger
	auth         *auth.Service
	wsHub        *WSHub // optional WebSocket hub for real-time broadcasts
	historyLimit int
}

// NewService creates a new trade service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(m *market.Market, l *ledger.Ledger, a *auth.Service, hub *WSHub, historyLimit int) *Service {
	return &Service{
		market:       m,
		ledger:       l,
		auth:         a,
		wsHub:        hub,
		historyLimit: historyLimit,
	}
}

// --- Request/Response types ---

// CredentialsRequest is the JSON body for registration and login.
type CredentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse carries the issued JWT.
type LoginResponse struct {
	Token string `json:"token"`
}

// TradeRequest is the JSON body for POST /trade/buy and /trade/sell.
type TradeRequest struct {
	StockID int64 `json:"stock_id"`
	Amount  int64 `json:"amount"`
}

// --- HTTP Handlers ---

// RegisterUser handles POST /auth/register. Registration also creates the
// default ledger account for the new user.
func (s *Service) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Password == "" {
		writeError(w, "name and password are required", http.StatusBadRequest)
		return
	}

	if err := s.auth.Register(req.Name, req.Password); err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, "user already exists", http.StatusBadRequest)
			return
		}
		writeError(w, "registration failed", http.StatusInternalServerError)
		return
	}
	s.ledger.Register(req.Name)

	slog.Info("user registered", "user", req.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "User registered successfully"})
}

// Login handles POST /auth/login and returns a JWT on success.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(req.Name, req.Password)
	if err != nil {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Token: token})
}

// ListStocks handles GET /api/v1/stocks — the current public snapshot.
func (s *Service) ListStocks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.market.Quotes())
}

// GetHistory handles GET /api/v1/stocks/history?limit=N.
// Without a limit it returns the most recent records up to the configured
// default; limit=0 returns the full log.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.market.History(limit))
}

// GetEvents handles GET /api/v1/stocks/events, newest first.
func (s *Service) GetEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.market.Events())
}

// Buy handles POST /api/v1/trade/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.executeTrade(w, r, "buy", s.ledger.Buy)
}

// Sell handles POST /api/v1/trade/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.executeTrade(w, r, "sell", s.ledger.Sell)
}

func (s *Service) executeTrade(
	w http.ResponseWriter,
	r *http.Request,
	side string,
	op func(owner string, instrumentID, amount int64) (ledger.TradeResult, error),
) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StockID <= 0 {
		writeError(w, "stock_id is required", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		writeError(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}

	owner := auth.Owner(r.Context())
	start := time.Now()

	result, err := op(owner, req.StockID, req.Amount)
	if err != nil {
		writeError(w, tradeErrorMessage(err), tradeErrorStatus(err))
		return
	}
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"user", owner,
		"side", side,
		"stock_id", req.StockID,
		"amount", req.Amount,
		"capital", result.Account.Capital.String(),
	)

	if s.wsHub != nil {
		s.wsHub.BroadcastTrade(side, req.StockID, req.Amount)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Me handles GET /api/v1/trade/me — the caller's account projection with
// live prices and portfolio value.
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.Account(auth.Owner(r.Context()))
	if err != nil {
		writeError(w, tradeErrorMessage(err), tradeErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// Transactions handles GET /api/v1/trade/transactions.
func (s *Service) Transactions(w http.ResponseWriter, r *http.Request) {
	lots, err := s.ledger.Transactions(auth.Owner(r.Context()))
	if err != nil {
		writeError(w, tradeErrorMessage(err), tradeErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lots)
}

// Players handles GET /api/v1/trade/players — the leaderboard sorted
// descending by portfolio value.
func (s *Service) Players(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.Leaderboard())
}

// --- Error mapping ---

func tradeErrorStatus(err error) int {
	switch {
	case errors.Is(err, market.ErrInstrumentNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientCapital),
		errors.Is(err, ledger.ErrInsufficientHoldings):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func tradeErrorMessage(err error) string {
	switch {
	case errors.Is(err, market.ErrInstrumentNotFound):
		return "Stock not found"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return "User data not found. Please register first."
	case errors.Is(err, ledger.ErrInsufficientCapital):
		return "Insufficient capital to buy any stocks"
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		return "Insufficient stock holdings"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "amount must be a positive integer"
	default:
		return "internal error"
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
