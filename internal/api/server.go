package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// StateReader exposes the last published snapshot.
type StateReader interface {
	State() domain.PublishedState
}

// MarketReader exposes the market tracker cache.
type MarketReader interface {
	Latest() domain.MarketObservation
}

// HistoryReader exposes stored cycles (nil if storage is disabled).
type HistoryReader interface {
	RecentCycles(ctx context.Context, limit int) ([]domain.CycleRecord, error)
}

// Server is the read-only HTTP API consumed by the frontend.
type Server struct {
	httpServer *http.Server
	states     StateReader
	market     MarketReader
	history    HistoryReader
	logger     *slog.Logger
}

// New creates a server bound to addr. market and history may be nil.
func New(addr string, states StateReader, market MarketReader, history HistoryReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		states:  states,
		market:  market,
		history: history,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/lottery", s.handleLottery)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("api server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("api: encode response", "err", err)
	}
}

// GET / — liveness.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Lottery Bot Online"))
}

// GET /api/lottery — current snapshot for the frontend.
func (s *Server) handleLottery(w http.ResponseWriter, _ *http.Request) {
	st := s.states.State()
	market := st.Market
	if s.market != nil {
		if latest := s.market.Latest(); latest.ObservedAt.After(market.ObservedAt) {
			market = latest
		}
	}
	s.writeJSON(w, http.StatusOK, newLotteryResponse(st, market))
}

// GET /api/history?limit=N — stored cycles, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history storage disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.RecentCycles(r.Context(), limit)
	if err != nil {
		s.logger.Warn("api: history query failed", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}

	out := make([]cycleResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newCycleResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}
