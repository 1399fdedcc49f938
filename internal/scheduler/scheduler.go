package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/strategy"
)

var ErrCycleInProgress = errors.New("cycle already in progress")

type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

type Discovery interface {
	DiscoverCandidates(ctx context.Context, limit int) ([]market.Candidate, error)
}

type MarketData interface {
	GetSnapshot(ctx context.Context, assetID string) (market.Snapshot, error)
}

type Wallet interface {
	AvailableBalance(ctx context.Context) (float64, error)
}

type Execution interface {
	Execute(ctx context.Context, order market.Order) (*market.ExecutionResult, error)
}

// StopCanceller is implemented by executions that leave protective stop
// orders on the broker after a BUY.
type StopCanceller interface {
	CancelStops(ctx context.Context, assetID string)
}

// Holdings reports the units the account actually holds per asset.
type Holdings interface {
	HeldUnits(ctx context.Context) (map[string]float64, error)
}

// Recorder persists cycle results and portfolio snapshots.
type Recorder interface {
	SaveCycle(ctx context.Context, res CycleResult) error
	SavePortfolioSnapshot(ctx context.Context, pr risk.PortfolioRisk, positions []risk.Position) error
}

type GeneStore interface {
	SaveGenes(ctx context.Context, genes []strategy.Gene, summary strategy.Summary) error
}

type Notifier interface {
	NotifyTrade(ev TradeEvent)
	NotifyCycle(res CycleResult)
	NotifyStatus(message string)
}

// Publisher fans finished cycles out to live subscribers.
type Publisher interface {
	Publish(res CycleResult)
}

type Config struct {
	Interval              time.Duration
	MaxTradesPerCycle     int
	DiscoveryLimit        int
	MinDecisionConfidence float64
	MaxCandidateRisk      market.RiskLevel
	MinCandidateLiquidity float64
	MaxSlippagePct        float64
	ExecutionTimeout      time.Duration
	Concurrency           int
	// TradingHours enables the MOEX session guard when set.
	TradingHours *time.Location
}

// Deps are the collaborators of one trading context. Holdings, Recorder,
// Genes, Notifier and Publisher are optional. Without Holdings the ledger is
// never reconciled against the account.
type Deps struct {
	Engine     *decision.Engine
	Gate       *risk.Gate
	Population *strategy.Population
	Discovery  Discovery
	Market     MarketData
	Wallet     Wallet
	Execution  Execution
	Holdings   Holdings
	Recorder   Recorder
	Genes      GeneStore
	Notifier   Notifier
	Publisher  Publisher
}

// Scheduler is the orchestrator: a Stopped/Running state machine that runs
// one trading cycle per interval. Cycles never overlap.
type Scheduler struct {
	cfg    Config
	deps   Deps
	logger *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
	stop  chan struct{} // closed by Stop; nil while stopped
	done  chan struct{}

	cycling atomic.Bool

	lastMu sync.RWMutex
	last   *CycleResult
}

func New(cfg Config, deps Deps, log *logger.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxTradesPerCycle <= 0 {
		cfg.MaxTradesPerCycle = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		logger: log.Named("scheduler"),
		now:    time.Now,
		state:  StateStopped,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start runs one cycle immediately and then one per interval until Stop or
// ctx cancellation. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.logger.Info("start ignored: already running")
		return
	}
	s.state = StateRunning
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval.String())
	s.notifyStatus("scheduler started")
}

// Stop lets the in-flight cycle finish its current candidate and schedules
// no further cycles. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		s.logger.Info("stop ignored: already stopped")
		return
	}
	s.state = StateStopped
	close(s.stop)
	s.stop = nil

	s.logger.Info("scheduler stopping")
	s.notifyStatus("scheduler stopped")
}

// Wait blocks until the loop started by the last Start has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// LastResult returns the most recent finished cycle.
func (s *Scheduler) LastResult() (CycleResult, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return CycleResult{}, false
	}
	return *s.last, true
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.stop != nil && s.stop == stop {
				s.state = StateStopped
				s.stop = nil
			}
			s.mu.Unlock()
			s.logger.Info("scheduler stopped", "reason", ctx.Err())
			return
		case <-stop:
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if isClosed(stop) {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if loc := s.cfg.TradingHours; loc != nil && !isWithinTradingHours(s.now().In(loc)) {
		s.logger.Info("outside trading hours, skipping cycle")
		return
	}
	if _, err := s.RunCycle(ctx); errors.Is(err, ErrCycleInProgress) {
		s.logger.Warn("previous cycle still running, skipping tick")
	}
}

// RunCycle executes one cycle synchronously. It returns ErrCycleInProgress
// when another cycle is executing.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	if !s.cycling.CompareAndSwap(false, true) {
		return CycleResult{}, ErrCycleInProgress
	}
	defer s.cycling.Store(false)

	s.mu.Lock()
	halt := s.stop
	s.mu.Unlock()

	res := s.runCycle(ctx, halt)
	s.finish(ctx, &res)
	return res, nil
}

func (s *Scheduler) runCycle(ctx context.Context, halt <-chan struct{}) (res CycleResult) {
	start := s.now()
	res = CycleResult{ID: uuid.NewString(), StartedAt: start}
	s.logger.Info("starting cycle", "id", res.ID)

	defer func() {
		res.FinishedAt = s.now()
		res.Timings.Total = res.FinishedAt.Sub(start)
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in cycle", "panic", fmt.Sprint(r))
			res.addError("panic: %v", r)
			res.Aborted = true
		}
	}()

	t := s.now()
	s.reconcile(ctx, &res)
	s.reviewPositions(ctx, &res)
	res.Timings.Review = s.now().Sub(t)

	if !s.trade(ctx, halt, &res) {
		return res
	}

	t = s.now()
	s.evolve(ctx, &res)
	res.Timings.Evolve = s.now().Sub(t)
	return res
}

// trade runs discovery through the candidate loop. It reports false when the
// cycle was aborted or there was nothing to do.
func (s *Scheduler) trade(ctx context.Context, halt <-chan struct{}, res *CycleResult) bool {
	t := s.now()
	candidates, err := s.deps.Discovery.DiscoverCandidates(ctx, s.cfg.DiscoveryLimit)
	res.Timings.Discovery = s.now().Sub(t)
	if err != nil {
		s.logger.Error("discovery failed", "error", err)
		res.addError("discovery: %v", err)
		res.Aborted = true
		return false
	}
	res.Discovered = len(candidates)
	if len(candidates) == 0 {
		s.logger.Info("no candidates discovered")
		return res.PositionsClosed > 0
	}

	t = s.now()
	filtered := s.filter(candidates)
	res.Filtered = len(filtered)
	res.Timings.Filter = s.now().Sub(t)

	balance, err := s.deps.Wallet.AvailableBalance(ctx)
	if err != nil {
		s.logger.Error("balance snapshot failed", "error", err)
		res.addError("balance: %v", err)
		res.Aborted = true
		return false
	}
	res.Balance = balance
	s.deps.Gate.SetBalance(balance)

	loopStart := s.now()
	window := s.prepareWindow()
loop:
	for start := 0; start < len(filtered); start += window {
		if !s.canContinue(halt, res) {
			break
		}
		batch := filtered[start:min(start+window, len(filtered))]

		t = s.now()
		preps := s.prepare(ctx, batch)
		res.Timings.Prepare += s.now().Sub(t)

		for i, c := range batch {
			if !s.canContinue(halt, res) {
				break loop
			}
			s.processCandidate(ctx, c, preps[i], balance, res)
		}
	}
	res.Timings.Candidates = s.now().Sub(loopStart) - res.Timings.Prepare
	return true
}

// canContinue reports whether the candidate loop may take another candidate.
func (s *Scheduler) canContinue(halt <-chan struct{}, res *CycleResult) bool {
	if isClosed(halt) {
		if !res.Stopped {
			s.logger.Info("stop requested, ending cycle early")
		}
		res.Stopped = true
		return false
	}
	if res.Executed >= s.cfg.MaxTradesPerCycle {
		s.logger.Info("max trades per cycle reached", "max", s.cfg.MaxTradesPerCycle)
		return false
	}
	return true
}

// prepareWindow is how many candidates are prepared ahead of the sequential
// loop. Further windows are prepared only while trades are still allowed.
func (s *Scheduler) prepareWindow() int {
	return max(s.cfg.MaxTradesPerCycle+s.cfg.Concurrency, 1)
}

// filter drops candidates above the risk ceiling or below the liquidity floor.
func (s *Scheduler) filter(candidates []market.Candidate) []market.Candidate {
	maxRank := s.cfg.MaxCandidateRisk.Rank()
	return lo.Filter(candidates, func(c market.Candidate, _ int) bool {
		if c.RiskLevel.Rank() > maxRank {
			s.logger.Debug("candidate filtered: risk", "asset", c.AssetID, "risk", c.RiskLevel)
			return false
		}
		if c.Liquidity < s.cfg.MinCandidateLiquidity {
			s.logger.Debug("candidate filtered: liquidity", "asset", c.AssetID, "liquidity", c.Liquidity)
			return false
		}
		return true
	})
}

type preparation struct {
	prep *decision.Preparation
	err  error
}

// prepare fetches snapshots and decision groundwork concurrently. Nothing here
// touches the ledger.
func (s *Scheduler) prepare(ctx context.Context, candidates []market.Candidate) []preparation {
	out := make([]preparation, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					out[i].err = fmt.Errorf("panic: %v", r)
				}
			}()
			snap, err := s.deps.Market.GetSnapshot(ctx, c.AssetID)
			if err != nil {
				out[i].err = err
				return nil
			}
			snap.AssetID = c.AssetID
			out[i].prep = s.deps.Engine.Prepare(ctx, snap, c.Confidence)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Scheduler) processCandidate(ctx context.Context, c market.Candidate, p preparation, balance float64, res *CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic processing candidate", "asset", c.AssetID, "panic", fmt.Sprint(r))
			res.addError("%s: panic: %v", c.AssetID, r)
		}
	}()

	if p.err != nil {
		res.addError("%s: snapshot: %v", c.AssetID, p.err)
		return
	}
	snap := p.prep.Snapshot
	s.logger.Debug("similar memories", "asset", c.AssetID, "count", len(p.prep.Memories))

	d := s.deps.Engine.DecidePrepared(ctx, p.prep, balance)
	res.Decided++
	res.Decisions = append(res.Decisions, d)
	if d.Fallback {
		res.addError("%s: %s", c.AssetID, d.Reasoning)
	}

	if d.Action == market.ActionHold || d.Confidence < s.cfg.MinDecisionConfidence {
		s.logger.Debug("candidate skipped", "asset", c.AssetID, "action", d.Action, "confidence", d.Confidence)
		return
	}

	pos, held := s.deps.Gate.Position(c.AssetID)
	switch {
	case d.Action == market.ActionSell && held:
		executed, clean := s.closePosition(ctx, pos, snap, "decision: "+d.Reasoning, res)
		if executed {
			res.Executed++
			if clean {
				res.Succeeded++
			}
		}
	case d.Action == market.ActionSell:
		s.logger.Debug("SELL skipped: no position", "asset", c.AssetID)
	case held:
		s.logger.Info("BUY skipped: position already open", "asset", c.AssetID)
	default:
		s.openPosition(ctx, d, snap, balance, res)
	}
}

func (s *Scheduler) openPosition(ctx context.Context, d decision.Decision, snap market.Snapshot, balance float64, res *CycleResult) {
	assessment, reservation := s.deps.Gate.AssessAndReserve(risk.Request{
		AssetID:       d.AssetID,
		Action:        market.ActionBuy,
		Amount:        d.Amount,
		Confidence:    d.Confidence,
		WalletBalance: balance,
		Liquidity:     snap.Liquidity,
		Volatility:    snap.Volatility,
	})
	if !assessment.Approved {
		res.Rejected++
		reason := fmt.Sprintf("%s: %s", d.AssetID, strings.Join(assessment.Reasons, "; "))
		res.Rejections = append(res.Rejections, reason)
		s.logger.Info("trade rejected", "asset", d.AssetID, "score", assessment.RiskScore, "reasons", assessment.Reasons)
		return
	}

	fill, err := s.execute(ctx, market.Order{
		AssetID:       d.AssetID,
		Action:        market.ActionBuy,
		Amount:        assessment.AdjustedAmount,
		ExpectedPrice: snap.Price,
		MaxSlippage:   s.cfg.MaxSlippagePct,
	})
	if err != nil {
		s.deps.Gate.Release(reservation)
		res.addError("%s: execution: %v", d.AssetID, err)
		return
	}
	res.Executed++

	clean := true
	memoryID, err := s.deps.Engine.RecordEntry(ctx, decision.Entry{
		Decision:   d,
		Snapshot:   snap,
		Amount:     fill.AmountOut,
		EntryPrice: fill.ActualPrice,
	})
	if err != nil {
		clean = false
		res.addError("%s: memory: %v", d.AssetID, err)
	}

	err = s.deps.Gate.Confirm(reservation, risk.Position{
		AssetID:      d.AssetID,
		EntryPrice:   fill.ActualPrice,
		Amount:       fill.AmountOut,
		Units:        fill.Filled,
		CurrentPrice: fill.ActualPrice,
		OpenedAt:     s.now(),
		MemoryID:     memoryID,
		StrategyID:   d.StrategyID,
		Confidence:   d.Confidence,
	})
	if err != nil {
		clean = false
		res.addError("%s: ledger: %v", d.AssetID, err)
	}
	if clean {
		res.Succeeded++
	}

	s.recordTrade(res, TradeEvent{
		Time:       s.now(),
		AssetID:    d.AssetID,
		Action:     market.ActionBuy,
		Amount:     fill.AmountOut,
		Price:      fill.ActualPrice,
		Units:      fill.Filled,
		TxRef:      fill.TxRef,
		Reason:     d.Reasoning,
		MemoryID:   memoryID,
		StrategyID: d.StrategyID,
	})
}

// closePosition sells pos and finalizes its memory. executed reports whether
// the order filled; clean whether the bookkeeping that follows also succeeded.
func (s *Scheduler) closePosition(ctx context.Context, pos risk.Position, snap market.Snapshot, reason string, res *CycleResult) (executed, clean bool) {
	fill, err := s.execute(ctx, market.Order{
		AssetID:       pos.AssetID,
		Action:        market.ActionSell,
		Amount:        pos.Units * snap.Price,
		Units:         pos.Units,
		ExpectedPrice: snap.Price,
		MaxSlippage:   s.cfg.MaxSlippagePct,
	})
	if err != nil {
		res.addError("%s: close: %v", pos.AssetID, err)
		return false, false
	}
	return true, s.settle(ctx, pos, snap, fill, reason, res)
}

// settle removes pos from the ledger after it was sold at fill, finalizes its
// memory and records the SELL. It reports whether every step succeeded.
func (s *Scheduler) settle(ctx context.Context, pos risk.Position, snap market.Snapshot, fill *market.ExecutionResult, reason string, res *CycleResult) bool {
	res.PositionsClosed++
	clean := true

	closed, err := s.deps.Gate.ClosePosition(pos.AssetID)
	if err != nil {
		clean = false
		res.addError("%s: ledger: %v", pos.AssetID, err)
		closed = pos
	}

	_, err = s.deps.Engine.LearnFromTrade(ctx, decision.TradeOutcome{
		AssetID:    closed.AssetID,
		Action:     market.ActionBuy,
		Amount:     closed.Amount,
		EntryPrice: closed.EntryPrice,
		ExitPrice:  fill.ActualPrice,
		Snapshot:   snap,
		StrategyID: closed.StrategyID,
		Confidence: closed.Confidence,
		RiskLevel:  market.RiskMedium,
		PendingID:  closed.MemoryID,
	})
	if err != nil {
		clean = false
		s.logger.Error("learn from closed position", "asset", pos.AssetID, "error", err)
		res.addError("%s: learn: %v", pos.AssetID, err)
	}

	pnlPct := 0.0
	if closed.EntryPrice > 0 {
		pnlPct = (fill.ActualPrice - closed.EntryPrice) / closed.EntryPrice * 100
	}
	s.recordTrade(res, TradeEvent{
		Time:       s.now(),
		AssetID:    pos.AssetID,
		Action:     market.ActionSell,
		Amount:     fill.AmountOut,
		Price:      fill.ActualPrice,
		Units:      fill.Filled,
		TxRef:      fill.TxRef,
		PnL:        fill.AmountOut - closed.Amount,
		PnLPercent: pnlPct,
		Reason:     reason,
		MemoryID:   closed.MemoryID,
		StrategyID: closed.StrategyID,
	})
	return clean
}

// execute bounds the call with the execution timeout and folds an
// unsuccessful result into an error.
func (s *Scheduler) execute(ctx context.Context, order market.Order) (*market.ExecutionResult, error) {
	if s.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
		defer cancel()
	}
	fill, err := s.deps.Execution.Execute(ctx, order)
	if err != nil {
		return nil, err
	}
	if fill == nil || !fill.Success {
		msg := "execution failed"
		if fill != nil && fill.Error != "" {
			msg = fill.Error
		}
		return nil, errors.New(msg)
	}
	return fill, nil
}

// reconcile settles ledger positions the account no longer holds, which is
// what a broker-side stop order filling between cycles looks like. The exit
// is booked at the current market price and leftover stop orders are
// cancelled. No order is sent.
func (s *Scheduler) reconcile(ctx context.Context, res *CycleResult) {
	if s.deps.Holdings == nil {
		return
	}
	positions := s.deps.Gate.Positions()
	if len(positions) == 0 {
		return
	}

	held, err := s.deps.Holdings.HeldUnits(ctx)
	if err != nil {
		s.logger.Error("holdings unavailable, skipping reconciliation", "error", err)
		res.addError("reconcile: %v", err)
		return
	}

	for _, pos := range positions {
		if held[pos.AssetID] > 0 {
			continue
		}

		exit := pos.CurrentPrice
		if exit <= 0 {
			exit = pos.EntryPrice
		}
		snap, err := s.deps.Market.GetSnapshot(ctx, pos.AssetID)
		if err != nil {
			res.addError("%s: reconcile snapshot: %v", pos.AssetID, err)
		} else if snap.Price > 0 {
			exit = snap.Price
		}
		snap.AssetID = pos.AssetID

		s.logger.Warn("position no longer held, settling ledger",
			"asset", pos.AssetID, "units", pos.Units, "exit_price", exit)
		if sc, ok := s.deps.Execution.(StopCanceller); ok {
			sc.CancelStops(ctx, pos.AssetID)
		}

		s.settle(ctx, pos, snap, &market.ExecutionResult{
			Success:     true,
			ActualPrice: exit,
			AmountOut:   pos.Units * exit,
			Filled:      pos.Units,
		}, "closed outside the engine (broker stop order)", res)
	}
}

// reviewPositions closes ledger positions that hit stop-loss or take-profit.
// Failures here never abort the cycle.
func (s *Scheduler) reviewPositions(ctx context.Context, res *CycleResult) {
	for _, pos := range s.deps.Gate.Positions() {
		snap, err := s.deps.Market.GetSnapshot(ctx, pos.AssetID)
		if err != nil {
			res.addError("%s: review snapshot: %v", pos.AssetID, err)
			continue
		}
		snap.AssetID = pos.AssetID

		signal, err := s.deps.Gate.UpdatePosition(pos.AssetID, snap.Price)
		if err != nil {
			res.addError("%s: review: %v", pos.AssetID, err)
			continue
		}
		if !signal.ShouldClose {
			continue
		}

		s.logger.Info("closing position", "asset", pos.AssetID, "reason", signal.Reason)
		if current, ok := s.deps.Gate.Position(pos.AssetID); ok {
			pos = current
		}
		s.closePosition(ctx, pos, snap, signal.Reason, res)
	}
}

func (s *Scheduler) evolve(ctx context.Context, res *CycleResult) {
	if res.Executed == 0 && res.PositionsClosed == 0 {
		return
	}

	if p, _, ok := s.deps.Engine.EvolvePersonality(ctx); ok {
		res.Personality = &p
	}

	if s.deps.Population == nil {
		return
	}
	metrics := s.deps.Population.EvolveStrategies()
	res.Evolution = &metrics

	if s.deps.Genes != nil {
		if err := s.deps.Genes.SaveGenes(ctx, s.deps.Population.Genes(), s.deps.Population.Summary()); err != nil {
			res.addError("save genes: %v", err)
		}
	}
}

func (s *Scheduler) recordTrade(res *CycleResult, ev TradeEvent) {
	res.Trades = append(res.Trades, ev)
	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyTrade(ev)
	}
}

// finish stores, persists and publishes a completed cycle.
func (s *Scheduler) finish(ctx context.Context, res *CycleResult) {
	res.Portfolio = s.deps.Gate.GetPortfolioRisk()

	if r := s.deps.Recorder; r != nil {
		if err := r.SavePortfolioSnapshot(ctx, res.Portfolio, s.deps.Gate.Positions()); err != nil {
			s.logger.Error("save portfolio snapshot", "error", err)
		}
		if err := r.SaveCycle(ctx, *res); err != nil {
			s.logger.Error("save cycle", "error", err)
		}
	}

	stored := *res
	s.lastMu.Lock()
	s.last = &stored
	s.lastMu.Unlock()

	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(stored)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyCycle(stored)
	}

	s.logger.Info("cycle completed", "id", res.ID, "summary", res.Summary())
}

func (s *Scheduler) notifyStatus(msg string) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyStatus(msg)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// isWithinTradingHours reports whether t falls in the MOEX main session,
// 10:00 to 18:50 on weekdays.
func isWithinTradingHours(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 600 && minutes <= 1130
}
