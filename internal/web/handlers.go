package web

import (
	"io"
	"net/http"
	"strconv"

	json "github.com/bytedance/sonic"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/memory"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/scheduler"
	"github.com/camuig/evo-trader/internal/strategy"
)

const maxBodyBytes = 64 << 10

type statusResponse struct {
	State       scheduler.State        `json:"state"`
	Mode        string                 `json:"mode"`
	LastCycle   *scheduler.CycleResult `json:"last_cycle,omitempty"`
	Personality decision.Personality   `json:"personality"`
	RiskProfile risk.Profile           `json:"risk_profile"`
	Positions   []risk.Position        `json:"positions"`
	Portfolio   risk.PortfolioRisk     `json:"portfolio"`
	Population  strategy.Summary       `json:"population"`
	Memories    int                    `json:"memories"`
	DailyPnL    float64                `json:"daily_pnl"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:       s.deps.Control.State(),
		Mode:        "LIVE",
		Personality: s.deps.Engine.Personality(),
		RiskProfile: s.deps.Gate.Profile(),
		Positions:   s.deps.Gate.Positions(),
		Portfolio:   s.deps.Gate.GetPortfolioRisk(),
	}
	if s.config.IsSandbox() {
		resp.Mode = "SANDBOX"
	}
	if last, ok := s.deps.Control.LastResult(); ok {
		resp.LastCycle = &last
	}
	if s.deps.Population != nil {
		resp.Population = s.deps.Population.Summary()
	}
	if s.deps.Memories != nil {
		resp.Memories = s.deps.Memories.Len()
	}
	if s.deps.History != nil {
		if pnl, err := s.deps.History.GetTodayPnL(r.Context()); err == nil {
			resp.DailyPnL = pnl
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	if s.deps.History == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}

	cycles, err := s.deps.History.RecentCycles(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent cycles", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load cycles")
		return
	}
	s.writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	if s.deps.History == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}

	trades, err := s.deps.History.GetRecentTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent trades", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// limitParam reads ?limit=, defaulting to 20 and capping at 500.
func (s *Server) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 20, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, 500), true
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memories == nil {
		s.writeJSON(w, http.StatusOK, []memory.TradeMemory{})
		return
	}
	memories := s.deps.Memories.Query(memory.Filter{
		AssetID: r.URL.Query().Get("asset"),
		Limit:   100,
	})
	if memories == nil {
		memories = []memory.TradeMemory{}
	}
	s.writeJSON(w, http.StatusOK, memories)
}

func (s *Server) handleRiskProfile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	p := s.deps.Gate.Profile()
	if err := json.Unmarshal(body, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.deps.Gate.SetProfile(p); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("risk profile updated via api")
	s.writeJSON(w, http.StatusOK, s.deps.Gate.Profile())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("action") {
	case "start":
		s.deps.Control.Start(s.baseCtx)
	case "stop":
		s.deps.Control.Stop()
	default:
		s.writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]scheduler.State{"state": s.deps.Control.State()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
