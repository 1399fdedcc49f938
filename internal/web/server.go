package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/memory"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/scheduler"
	"github.com/camuig/evo-trader/internal/storage"
	"github.com/camuig/evo-trader/internal/strategy"
)

// Controller is the orchestrator surface the API drives.
type Controller interface {
	Start(ctx context.Context)
	Stop()
	State() scheduler.State
	LastResult() (scheduler.CycleResult, bool)
}

// History is the persisted trail of cycles and trades.
type History interface {
	RecentCycles(ctx context.Context, limit int) ([]storage.CycleLog, error)
	GetRecentTrades(ctx context.Context, limit int) ([]storage.Trade, error)
	GetTodayPnL(ctx context.Context) (float64, error)
}

type Deps struct {
	Control    Controller
	Engine     *decision.Engine
	Gate       *risk.Gate
	Population *strategy.Population
	Memories   *memory.Cache
	History    History
	Hub        *Hub
}

type Server struct {
	httpServer *http.Server
	deps       Deps
	config     *config.Config
	logger     *logger.Logger
	// baseCtx outlives requests; control/start runs the scheduler under it.
	baseCtx context.Context
}

func NewServer(cfg *config.Config, deps Deps, log *logger.Logger) *Server {
	s := &Server{
		deps:    deps,
		config:  cfg,
		logger:  log.Named("web"),
		baseCtx: context.Background(),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/cycles", s.handleCycles)
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/memories", s.handleMemories)
	mux.HandleFunc("PUT /api/risk-profile", s.handleRiskProfile)
	mux.HandleFunc("POST /api/control/{action}", s.handleControl)
	if s.deps.Hub != nil {
		mux.HandleFunc("GET /ws", s.deps.Hub.ServeWS)
	}
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
