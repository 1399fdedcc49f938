package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/strategy"
)

type memStore struct {
	mu          sync.Mutex
	items       map[string]memory.TradeMemory
	order       []string
	finalizeErr error
}

func (s *memStore) Store(_ context.Context, m memory.TradeMemory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = fmt.Sprintf("mem-%d", len(s.order)+1)
	s.items[m.ID] = m
	s.order = append(s.order, m.ID)
	return m.ID, nil
}

func (s *memStore) FetchAll(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *memStore) Fetch(_ context.Context, id string) (*memory.TradeMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) Query(_ context.Context, f memory.Filter) ([]memory.TradeMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.TradeMemory
	for _, id := range s.order {
		if f.Match(s.items[id]) {
			out = append(out, s.items[id])
		}
	}
	return out, nil
}

func (s *memStore) Finalize(_ context.Context, id string, f memory.Finalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	m, ok := s.items[id]
	if !ok {
		return memory.ErrNotFound
	}
	final, err := m.Apply(f)
	if err != nil {
		return err
	}
	s.items[id] = final
	return nil
}

type buyEverything struct{}

func (buyEverything) Reason(_ context.Context, p decision.Prompt) (*decision.Proposal, error) {
	return &decision.Proposal{
		Action:     market.ActionBuy,
		Amount:     100_000,
		Confidence: 0.9,
		Reasoning:  "test buy " + p.AssetID,
		RiskLevel:  market.RiskLow,
	}, nil
}

type fakeDiscovery struct {
	candidates []market.Candidate
	err        error
}

func (f fakeDiscovery) DiscoverCandidates(context.Context, int) ([]market.Candidate, error) {
	return f.candidates, f.err
}

type fakeMarket struct{ price float64 }

func (f fakeMarket) GetSnapshot(_ context.Context, asset string) (market.Snapshot, error) {
	return market.Snapshot{
		AssetID:        asset,
		Price:          f.price,
		Volume24h:      2e9,
		Liquidity:      1e9,
		PriceChange24h: 1,
		Volatility:     1,
		Trend:          market.TrendBullish,
		BuyPressure:    0.6,
		SellPressure:   0.4,
	}, nil
}

type countingMarket struct {
	fakeMarket
	mu    sync.Mutex
	calls []string
}

func (c *countingMarket) GetSnapshot(ctx context.Context, asset string) (market.Snapshot, error) {
	c.mu.Lock()
	c.calls = append(c.calls, asset)
	c.mu.Unlock()
	return c.fakeMarket.GetSnapshot(ctx, asset)
}

type fakeWallet struct{ balance float64 }

func (f fakeWallet) AvailableBalance(context.Context) (float64, error) { return f.balance, nil }

type fakeExecution struct {
	mu        sync.Mutex
	failOn    string
	orders    []market.Order
	cancelled []string
	hook      func(market.Order)
}

func (f *fakeExecution) CancelStops(_ context.Context, asset string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, asset)
}

type fakeHoldings struct {
	held map[string]float64
	err  error
}

func (f fakeHoldings) HeldUnits(context.Context) (map[string]float64, error) { return f.held, f.err }

func (f *fakeExecution) Execute(_ context.Context, o market.Order) (*market.ExecutionResult, error) {
	if f.hook != nil {
		f.hook(o)
	}
	f.mu.Lock()
	f.orders = append(f.orders, o)
	f.mu.Unlock()

	if o.AssetID == f.failOn {
		return &market.ExecutionResult{Error: "insufficient lots"}, nil
	}
	units := o.Units
	if units == 0 {
		units = o.Amount / o.ExpectedPrice
	}
	return &market.ExecutionResult{
		Success:     true,
		ActualPrice: o.ExpectedPrice,
		AmountOut:   units * o.ExpectedPrice,
		Filled:      units,
		TxRef:       "tx-" + o.AssetID,
	}, nil
}

func (f *fakeExecution) ordered() []market.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]market.Order(nil), f.orders...)
}

type fixture struct {
	sched *Scheduler
	gate  *risk.Gate
	exec  *fakeExecution
	store *memStore
}

func candidates(ids ...string) []market.Candidate {
	out := make([]market.Candidate, len(ids))
	for i, id := range ids {
		out[i] = market.Candidate{AssetID: id, Price: 100, Liquidity: 1e9, Volume24h: 1e9, RiskLevel: market.RiskLow, Confidence: 0.7}
	}
	return out
}

func newFixture(t *testing.T, disc Discovery, exec *fakeExecution) *fixture {
	t.Helper()
	log := logger.Discard()

	store := &memStore{items: map[string]memory.TradeMemory{}}
	cache := memory.NewCache()
	pop := strategy.NewPopulation(strategy.DefaultConfig(), cache, rand.New(rand.NewSource(1)), log)
	engine := decision.NewEngine(decision.DefaultConfig(), cache, store, pop, buyEverything{}, log,
		decision.WithRand(rand.New(rand.NewSource(2))))
	gate := risk.NewGate(risk.DefaultProfile(), log)

	cfg := Config{
		Interval:              time.Hour,
		MaxTradesPerCycle:     5,
		DiscoveryLimit:        10,
		MinDecisionConfidence: 0.5,
		MaxCandidateRisk:      market.RiskHigh,
		MaxSlippagePct:        2,
		ExecutionTimeout:      time.Second,
		Concurrency:           2,
	}
	s := New(cfg, Deps{
		Engine:     engine,
		Gate:       gate,
		Population: pop,
		Discovery:  disc,
		Market:     fakeMarket{price: 100},
		Wallet:     fakeWallet{balance: 1_000_000},
		Execution:  exec,
	}, log)
	return &fixture{sched: s, gate: gate, exec: exec, store: store}
}

func TestRunCycleNoCandidates(t *testing.T) {
	exec := &fakeExecution{}
	f := newFixture(t, fakeDiscovery{}, exec)

	res, err := f.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Discovered != 0 || res.Decided != 0 || res.Executed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 0 || res.Aborted {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(exec.ordered()) != 0 {
		t.Fatal("no orders expected")
	}
	if _, ok := f.sched.LastResult(); !ok {
		t.Fatal("last result not stored")
	}
}

func TestRunCycleExecutionFailureIsolated(t *testing.T) {
	exec := &fakeExecution{failOn: "GAZP"}
	f := newFixture(t, fakeDiscovery{candidates: candidates("SBER", "GAZP", "LKOH")}, exec)

	res, err := f.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if res.Discovered != 3 || res.Filtered != 3 || res.Decided != 3 {
		t.Fatalf("counts = %+v", res)
	}
	if res.Executed != 2 || res.Succeeded != 2 {
		t.Fatalf("executed = %d succeeded = %d", res.Executed, res.Succeeded)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "GAZP") {
		t.Fatalf("errors = %v", res.Errors)
	}

	orders := exec.ordered()
	if len(orders) != 3 || orders[2].AssetID != "LKOH" {
		t.Fatalf("orders = %+v", orders)
	}

	if _, ok := f.gate.Position("GAZP"); ok {
		t.Fatal("failed trade must not open a position")
	}
	for _, id := range []string{"SBER", "LKOH"} {
		pos, ok := f.gate.Position(id)
		if !ok || pos.MemoryID == "" {
			t.Fatalf("%s position = %+v", id, pos)
		}
	}
	if got := f.gate.TotalExposure(); got != 100_000 {
		t.Fatalf("exposure = %v, want reservations released", got)
	}
	if len(f.store.order) != 2 {
		t.Fatalf("stored memories = %d", len(f.store.order))
	}
	if res.Evolution == nil {
		t.Fatal("strategies should evolve after trades")
	}
}

func TestRunCycleDiscoveryErrorAborts(t *testing.T) {
	exec := &fakeExecution{}
	f := newFixture(t, fakeDiscovery{err: errors.New("iss down")}, exec)

	res, err := f.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted || len(res.Errors) != 1 || res.Decided != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunCycleFiltersRiskyCandidates(t *testing.T) {
	cands := candidates("SBER", "PUMP", "THIN")
	cands[1].RiskLevel = market.RiskCritical
	cands[2].Liquidity = 0
	f := newFixture(t, fakeDiscovery{candidates: cands}, &fakeExecution{})
	f.sched.cfg.MinCandidateLiquidity = 1000

	res, _ := f.sched.RunCycle(context.Background())
	if res.Discovered != 3 || res.Filtered != 1 || res.Executed != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunCycleClosesPositionOnStopLoss(t *testing.T) {
	exec := &fakeExecution{}
	f := newFixture(t, fakeDiscovery{}, exec)
	err := f.gate.TrackPosition(risk.Position{AssetID: "SBER", EntryPrice: 120, Amount: 1200, Units: 10, CurrentPrice: 120})
	if err != nil {
		t.Fatal(err)
	}

	res, _ := f.sched.RunCycle(context.Background())
	if res.PositionsClosed != 1 || len(res.Trades) != 1 || res.Trades[0].Action != market.ActionSell {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := f.gate.Position("SBER"); ok {
		t.Fatal("position should be closed")
	}
	if res.Trades[0].PnLPercent >= 0 {
		t.Fatalf("pnl = %v", res.Trades[0].PnLPercent)
	}
}

func TestRunCycleLearnFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, fakeDiscovery{}, &fakeExecution{})
	f.store.finalizeErr = errors.New("disk full")
	err := f.gate.TrackPosition(risk.Position{
		AssetID: "SBER", EntryPrice: 120, Amount: 1200, Units: 10, CurrentPrice: 120, MemoryID: "mem-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Aborted || res.PositionsClosed != 1 || len(res.Trades) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "learn") {
		t.Fatalf("errors = %v", res.Errors)
	}
	if _, ok := f.gate.Position("SBER"); ok {
		t.Fatal("position should be closed despite the learning failure")
	}
	if last, ok := f.sched.LastResult(); !ok || last.ID != res.ID {
		t.Fatal("cycle result not stored")
	}
}

func TestRunCycleSettlesPositionClosedAtBroker(t *testing.T) {
	exec := &fakeExecution{}
	f := newFixture(t, fakeDiscovery{}, exec)
	f.sched.deps.Holdings = fakeHoldings{held: map[string]float64{"GAZP": 5}}

	ctx := context.Background()
	memID, err := f.sched.deps.Engine.RecordEntry(ctx, decision.Entry{
		Decision:   decision.Decision{AssetID: "SBER", Action: market.ActionBuy, Confidence: 0.8, RiskLevel: market.RiskLow},
		Amount:     1100,
		EntryPrice: 110,
	})
	if err != nil {
		t.Fatal(err)
	}
	positions := []risk.Position{
		{AssetID: "SBER", EntryPrice: 110, Amount: 1100, Units: 10, CurrentPrice: 104, MemoryID: memID},
		{AssetID: "GAZP", EntryPrice: 100, Amount: 500, Units: 5, CurrentPrice: 100},
	}
	for _, p := range positions {
		if err := f.gate.TrackPosition(p); err != nil {
			t.Fatal(err)
		}
	}

	res, err := f.sched.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 0 || res.PositionsClosed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if orders := exec.ordered(); len(orders) != 0 {
		t.Fatalf("no order should reach the broker, got %+v", orders)
	}
	if len(exec.cancelled) != 1 || exec.cancelled[0] != "SBER" {
		t.Fatalf("cancelled stops = %v", exec.cancelled)
	}
	if _, ok := f.gate.Position("SBER"); ok {
		t.Fatal("SBER should be gone from the ledger")
	}
	if _, ok := f.gate.Position("GAZP"); !ok {
		t.Fatal("GAZP is still held and must stay open")
	}
	if got := f.gate.TotalExposure(); got != 500 {
		t.Fatalf("exposure = %v, want 500", got)
	}

	if len(res.Trades) != 1 || res.Trades[0].Price != 100 || res.Trades[0].PnL != -100 || res.Trades[0].TxRef != "" {
		t.Fatalf("trades = %+v", res.Trades)
	}
	m := f.store.items[memID]
	if m.Outcome != memory.OutcomeLoss || m.ExitPrice == nil || *m.ExitPrice != 100 {
		t.Fatalf("memory = %+v", m)
	}
}

func TestRunCycleReconcileErrorKeepsLedger(t *testing.T) {
	exec := &fakeExecution{}
	f := newFixture(t, fakeDiscovery{}, exec)
	f.sched.deps.Holdings = fakeHoldings{err: errors.New("portfolio timeout")}
	if err := f.gate.TrackPosition(risk.Position{AssetID: "SBER", EntryPrice: 100, Amount: 1000, Units: 10, CurrentPrice: 100}); err != nil {
		t.Fatal(err)
	}

	res, _ := f.sched.RunCycle(context.Background())
	if res.Aborted || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "reconcile") {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := f.gate.Position("SBER"); !ok {
		t.Fatal("position must survive an unavailable portfolio")
	}
	if len(exec.cancelled) != 0 {
		t.Fatalf("cancelled = %v", exec.cancelled)
	}
}

func TestRunCyclePreparesOnlyAWindow(t *testing.T) {
	tests := []struct {
		name      string
		held      []string
		snapshots int
		executed  int
		asset     string
	}{
		// window = 1 trade + 2 workers; the first candidate fills the quota
		{name: "quota filled in first window", snapshots: 3, executed: 1, asset: "A"},
		// A, B, C are held (3 review snapshots), so D in the second window trades
		{name: "next window after skips", held: []string{"A", "B", "C"}, snapshots: 3 + 3 + 3, executed: 1, asset: "D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecution{}
			f := newFixture(t, fakeDiscovery{candidates: candidates("A", "B", "C", "D", "E", "F", "G", "H")}, exec)
			mkt := &countingMarket{fakeMarket: fakeMarket{price: 100}}
			f.sched.deps.Market = mkt
			f.sched.cfg.MaxTradesPerCycle = 1
			f.sched.cfg.Concurrency = 2

			for _, id := range tt.held {
				if err := f.gate.TrackPosition(risk.Position{AssetID: id, EntryPrice: 100, Amount: 1000, Units: 10}); err != nil {
					t.Fatal(err)
				}
			}

			res, err := f.sched.RunCycle(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Executed != tt.executed {
				t.Fatalf("executed = %d, want %d", res.Executed, tt.executed)
			}
			if orders := exec.ordered(); len(orders) != 1 || orders[0].AssetID != tt.asset {
				t.Fatalf("orders = %+v", orders)
			}
			if len(mkt.calls) != tt.snapshots {
				t.Fatalf("snapshot calls = %v, want %d", mkt.calls, tt.snapshots)
			}
		})
	}
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	exec := &fakeExecution{hook: func(market.Order) {
		once.Do(func() { close(entered) })
		<-release
	}}
	f := newFixture(t, fakeDiscovery{candidates: candidates("SBER")}, exec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.sched.RunCycle(context.Background())
	}()

	<-entered
	if _, err := f.sched.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("err = %v, want ErrCycleInProgress", err)
	}
	close(release)
	<-done

	if _, err := f.sched.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle after completion: %v", err)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	f := newFixture(t, fakeDiscovery{}, &fakeExecution{})
	ctx := context.Background()

	f.sched.Start(ctx)
	f.sched.Start(ctx)
	if f.sched.State() != StateRunning {
		t.Fatalf("state = %s", f.sched.State())
	}

	f.sched.Stop()
	f.sched.Stop()
	f.sched.Wait()
	if f.sched.State() != StateStopped {
		t.Fatalf("state = %s", f.sched.State())
	}
}

func TestStopHaltsCandidateLoop(t *testing.T) {
	exec := &fakeExecution{}
	f := newFixture(t, fakeDiscovery{candidates: candidates("SBER", "GAZP", "LKOH")}, exec)
	exec.hook = func(market.Order) { f.sched.Stop() }

	f.sched.Start(context.Background())
	f.sched.Wait()

	res, ok := f.sched.LastResult()
	if !ok {
		t.Fatal("no cycle recorded")
	}
	if !res.Stopped || res.Executed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(exec.ordered()) != 1 {
		t.Fatalf("orders = %d", len(exec.ordered()))
	}
}

func TestIsWithinTradingHours(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	tests := []struct {
		t    time.Time
		want bool
	}{
		{time.Date(2026, 4, 1, 10, 0, 0, 0, msk), true},
		{time.Date(2026, 4, 1, 18, 50, 0, 0, msk), true},
		{time.Date(2026, 4, 1, 18, 51, 0, 0, msk), false},
		{time.Date(2026, 4, 1, 9, 59, 0, 0, msk), false},
		{time.Date(2026, 4, 4, 12, 0, 0, 0, msk), false},
	}
	for _, tt := range tests {
		if got := isWithinTradingHours(tt.t); got != tt.want {
			t.Errorf("isWithinTradingHours(%s) = %v, want %v", tt.t, got, tt.want)
		}
	}
}
