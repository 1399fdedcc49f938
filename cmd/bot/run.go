package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camuig/evo-trader/internal/ai"
	"github.com/camuig/evo-trader/internal/broker"
	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/executor"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/memory"
	"github.com/camuig/evo-trader/internal/moex"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/scheduler"
	"github.com/camuig/evo-trader/internal/storage"
	"github.com/camuig/evo-trader/internal/strategy"
	"github.com/camuig/evo-trader/internal/telegram"
	"github.com/camuig/evo-trader/internal/web"
)

const drainTimeout = 30 * time.Second

func runBot(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log := logger.New(cfg.Logging.Level)

	mode := "LIVE"
	if cfg.IsSandbox() {
		mode = "SANDBOX"
	}
	log.Info("starting evo-trader", "mode", mode, "dry_run", cfg.Trading.DryRun, "llm", cfg.UseLLM())

	db, err := storage.NewDatabase(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	repo := storage.NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := memory.NewCache()
	n, err := cache.Load(ctx, repo)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	log.Info("memories loaded", "count", n)

	population := strategy.NewPopulation(cfg.Strategy, cache, rand.New(rand.NewSource(time.Now().UnixNano())), log)
	genes, state, err := repo.LoadGenes(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}
	if state != nil {
		population.Restore(genes, state.Generation, state.MutationRate)
		log.Info("strategy population restored", "generation", state.Generation, "size", len(genes))
	}

	personality := cfg.Decision.InitialPersonality
	if saved, err := repo.LatestPersonality(ctx); err != nil {
		return fmt.Errorf("load personality: %w", err)
	} else if saved != nil {
		personality = *saved
	}

	var reasoner decision.Reasoner = ai.NewHeuristicReasoner()
	if cfg.UseLLM() {
		reasoner = ai.NewDeepSeekReasoner(cfg, log)
	}

	moexClient := moex.NewClient(cfg.MOEX.BaseURL, cfg.MOEX.Board, cfg.MOEXTimeout(), log)

	engine := decision.NewEngine(cfg.Decision, cache, repo, population, reasoner, log,
		decision.WithPersonality(personality),
		decision.WithSentiment(moex.NewNewsSentiment(moexClient, cfg.NewsCacheTTL())),
		decision.WithPersonalitySink(repo),
	)

	gate := risk.NewGate(cfg.Risk, log)
	if err := restoreLedger(ctx, repo, gate, log); err != nil {
		return err
	}

	bc, err := broker.NewBrokerClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("broker client init: %w", err)
	}
	log.Info("broker connected", "account_id", bc.AccountID())

	notifier := telegram.NewNotifier(cfg, log)
	exec := executor.NewExecutor(bc, gate, cfg.Trading.DryRun, log)

	deps := scheduler.Deps{
		Engine:     engine,
		Gate:       gate,
		Population: population,
		Discovery:  moex.NewDiscoverer(moexClient, bc),
		Market:     bc,
		Wallet:     bc,
		Execution:  exec,
		Recorder:   repo,
		Genes:      repo,
		Notifier:   notifier,
	}
	// Dry-run fills never reach the account, so there is nothing to reconcile.
	if !cfg.Trading.DryRun {
		deps.Holdings = bc
	}

	var hub *web.Hub
	if cfg.Web.Enabled {
		hub = web.NewHub(log)
		deps.Publisher = hub
		go hub.Run(ctx)
	}

	sched := scheduler.New(schedulerConfig(cfg), deps, log)

	watcher := config.NewWatcher(configPath, 0, gate.SetProfile, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warn("config watcher disabled", "error", err)
	}

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = web.NewServer(cfg, web.Deps{
			Control:    sched,
			Engine:     engine,
			Gate:       gate,
			Population: population,
			Memories:   cache,
			History:    repo,
			Hub:        hub,
		}, log)
		go func() {
			if err := webServer.Start(ctx); err != nil {
				log.Error("web server error", "error", err)
			}
		}()
	}

	sched.Start(ctx)
	notifier.NotifyStatus(fmt.Sprintf("Evo-Trader запущен (%s)", mode))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	sched.Stop()
	drained := make(chan struct{})
	go func() {
		sched.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warn("cycle still running, cancelling")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if webServer != nil {
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Error("web server shutdown error", "error", err)
		}
	}

	if err := bc.Stop(); err != nil {
		log.Error("broker client stop error", "error", err)
	}

	notifier.NotifyStatus("🛑 Evo-Trader остановлен")
	log.Info("evo-trader stopped")
	return nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	sc := scheduler.Config{
		Interval:              cfg.TradingInterval(),
		MaxTradesPerCycle:     cfg.Trading.MaxTradesPerCycle,
		DiscoveryLimit:        cfg.Trading.DiscoveryLimit,
		MinDecisionConfidence: cfg.Trading.MinDecisionConfidence,
		MaxCandidateRisk:      cfg.MaxCandidateRisk(),
		MinCandidateLiquidity: cfg.Trading.MinCandidateLiquidity,
		MaxSlippagePct:        cfg.Trading.MaxSlippagePct,
		ExecutionTimeout:      cfg.ExecutionTimeout(),
		Concurrency:           cfg.Trading.CandleConcurrency,
	}
	if cfg.Trading.MarketHoursOnly {
		sc.TradingHours = cfg.MOEXLocation()
	}
	return sc
}

// restoreLedger re-opens the positions of the last persisted snapshot so their
// pending memories are finalized when they close.
func restoreLedger(ctx context.Context, repo *storage.Repository, gate *risk.Gate, log *logger.Logger) error {
	positions, err := repo.LatestPositions(ctx)
	if err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}
	for _, p := range positions {
		if err := gate.TrackPosition(p); err != nil {
			return fmt.Errorf("restore positions: %w", err)
		}
	}
	if len(positions) > 0 {
		log.Info("ledger restored", "positions", len(positions))
	}
	return nil
}
