package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
	"github.com/camuig/evo-trader/internal/strategy"
)

// FallbackConfidence is reported on the HOLD returned when the reasoner fails.
const FallbackConfidence = 0.1

var errInvalidProposal = errors.New("invalid proposal")

// Prompt is what the reasoner sees for one candidate.
type Prompt struct {
	Text           string
	AssetID        string
	Personality    Personality
	AIConfidence   float64
	TechnicalScore float64
	Sentiment      float64
	AvailableFunds float64
	Regime         string
	Strategy       *strategy.Gene
	Snapshot       market.Snapshot
}

// Proposal is the reasoner's raw, untrusted answer.
type Proposal struct {
	Action     market.Action    `json:"action"`
	Amount     float64          `json:"amount"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	StrategyID string           `json:"strategy_id"`
	RiskLevel  market.RiskLevel `json:"risk_level"`
}

// Reasoner turns a prompt into a proposal. Implementations may block on the network.
type Reasoner interface {
	Reason(ctx context.Context, p Prompt) (*Proposal, error)
}

// PersonalitySink persists personality changes.
type PersonalitySink interface {
	SavePersonality(ctx context.Context, p Personality, stats PerformanceStats) error
}

type Decision struct {
	AssetID      string           `json:"asset_id"`
	Action       market.Action    `json:"action"`
	Amount       float64          `json:"amount"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
	StrategyID   string           `json:"strategy_id,omitempty"`
	RiskLevel    market.RiskLevel `json:"risk_level"`
	Regime       string           `json:"regime,omitempty"`
	Memories     int              `json:"memories"`
	AIConfidence float64          `json:"ai_confidence"`
	Fallback     bool             `json:"fallback"`
}

// Preparation is the read-only groundwork for a decision. It can be computed
// for many candidates concurrently.
type Preparation struct {
	Snapshot     market.Snapshot
	Memories     []memory.Match
	MemoryRate   float64
	MemoryOK     bool
	Technical    float64
	Sentiment    float64
	AIConfidence float64
	Regime       *strategy.Regime
	Strategies   []strategy.Gene
}

type Config struct {
	Similarity         memory.SimilarityConfig `yaml:"similarity"`
	Technical          TechnicalConfig         `yaml:"technical"`
	Evolution          EvolutionConfig         `yaml:"evolution"`
	RegimeStrategies   int                     `yaml:"regime_strategies"`
	ReasonTimeout      time.Duration           `yaml:"reason_timeout"`
	StoreTimeout       time.Duration           `yaml:"store_timeout"`
	SentimentTimeout   time.Duration           `yaml:"sentiment_timeout"`
	InitialPersonality Personality             `yaml:"personality"`
}

func DefaultConfig() Config {
	return Config{
		Similarity:         memory.DefaultSimilarityConfig(),
		Technical:          DefaultTechnicalConfig(),
		Evolution:          DefaultEvolutionConfig(),
		RegimeStrategies:   3,
		ReasonTimeout:      60 * time.Second,
		StoreTimeout:       10 * time.Second,
		SentimentTimeout:   10 * time.Second,
		InitialPersonality: DefaultPersonality(),
	}
}

// Engine makes and learns from trading decisions.
type Engine struct {
	cfg        Config
	cache      *memory.Cache
	store      memory.Store
	population *strategy.Population
	reasoner   Reasoner
	sentiment  SentimentSource
	sink       PersonalitySink
	logger     *logger.Logger
	now        func() time.Time

	mu          sync.Mutex
	personality Personality
	rng         *rand.Rand
}

type Option func(*Engine)

func WithSentiment(s SentimentSource) Option {
	return func(e *Engine) { e.sentiment = s }
}

func WithPersonalitySink(s PersonalitySink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithRand injects the source behind exploration so tests are reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPersonality restores a previously persisted personality.
func WithPersonality(p Personality) Option {
	return func(e *Engine) { e.personality = p.Clamp() }
}

func NewEngine(cfg Config, cache *memory.Cache, store memory.Store, population *strategy.Population, reasoner Reasoner, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		cache:       cache,
		store:       store,
		population:  population,
		reasoner:    reasoner,
		logger:      log,
		now:         time.Now,
		personality: cfg.InitialPersonality.Clamp(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

func (e *Engine) Personality() Personality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.personality
}

func (e *Engine) SetPersonality(p Personality) {
	e.mu.Lock()
	e.personality = p.Clamp()
	e.mu.Unlock()
}

// FindSimilar retrieves the closest past trades for the snapshot.
func (e *Engine) FindSimilar(s market.Snapshot) []memory.Match {
	return memory.FindSimilar(e.cache.All(), s, e.cfg.Similarity, e.now())
}

// Prepare gathers memories, scores and regime strategies for a snapshot.
// It never fails: each missing input degrades to a neutral value.
func (e *Engine) Prepare(ctx context.Context, s market.Snapshot, discoveryConfidence float64) *Preparation {
	prep := &Preparation{Snapshot: s, Sentiment: NeutralSentiment}

	prep.Memories = e.FindSimilar(s)
	prep.MemoryRate, prep.MemoryOK = memory.SuccessRate(prep.Memories)

	prep.Technical = TechnicalScore(s, e.cfg.Technical)
	prep.Sentiment = e.fetchSentiment(ctx, s.AssetID)

	confidence := CombineConfidence(prep.Technical, prep.Sentiment, discoveryConfidence)
	if prep.MemoryOK {
		confidence = blendMemory(confidence, prep.MemoryRate, e.Personality().MemoryWeight)
	}
	prep.AIConfidence = confidence

	if e.population != nil {
		if regime, ok := e.population.DetectMarketRegime(s); ok {
			prep.Regime = regime
		}
		prep.Strategies = e.population.BestForRegime(prep.Regime, e.cfg.RegimeStrategies)
	}
	return prep
}

func (e *Engine) fetchSentiment(ctx context.Context, assetID string) float64 {
	if e.sentiment == nil {
		return NeutralSentiment
	}
	if e.cfg.SentimentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SentimentTimeout)
		defer cancel()
	}
	v, err := e.sentiment.Sentiment(ctx, assetID)
	if err != nil || math.IsNaN(v) {
		e.logger.Warn("sentiment unavailable, using neutral", "asset", assetID, "error", err)
		return NeutralSentiment
	}
	return clamp01(v)
}

// Decide runs the full pipeline for one asset.
func (e *Engine) Decide(ctx context.Context, assetID string, s market.Snapshot, availableFunds float64) Decision {
	s.AssetID = assetID
	return e.DecidePrepared(ctx, e.Prepare(ctx, s, 0), availableFunds)
}

// DecidePrepared consults the reasoner and applies the personality filter.
// Reasoner failures never escape: they become a low-confidence HOLD.
func (e *Engine) DecidePrepared(ctx context.Context, prep *Preparation, availableFunds float64) Decision {
	personality := e.Personality()
	gene := e.pickStrategy(prep.Strategies, personality.ExplorationRate)

	regimeName := ""
	if prep.Regime != nil {
		regimeName = prep.Regime.Name
	}

	prompt := Prompt{
		Text:           buildContext(prep, personality, availableFunds),
		AssetID:        prep.Snapshot.AssetID,
		Personality:    personality,
		AIConfidence:   prep.AIConfidence,
		TechnicalScore: prep.Technical,
		Sentiment:      prep.Sentiment,
		AvailableFunds: availableFunds,
		Regime:         regimeName,
		Strategy:       gene,
		Snapshot:       prep.Snapshot,
	}

	base := Decision{
		AssetID:      prep.Snapshot.AssetID,
		Regime:       regimeName,
		Memories:     len(prep.Memories),
		AIConfidence: prep.AIConfidence,
	}
	if gene != nil {
		base.StrategyID = gene.ID
	}

	proposal, err := e.reason(ctx, prompt)
	if err != nil {
		e.logger.Warn("reasoner failed, holding", "asset", base.AssetID, "error", err)
		base.Action = market.ActionHold
		base.Confidence = FallbackConfidence
		base.RiskLevel = market.RiskMedium
		base.Reasoning = fmt.Sprintf("fallback hold: reasoner unavailable (%v)", err)
		base.Fallback = true
		return base
	}

	d := base
	d.Action = proposal.Action
	d.Amount = proposal.Amount
	d.Confidence = proposal.Confidence
	d.Reasoning = proposal.Reasoning
	d.RiskLevel = proposal.RiskLevel
	if proposal.StrategyID != "" && lo.ContainsBy(prep.Strategies, func(g strategy.Gene) bool { return g.ID == proposal.StrategyID }) {
		d.StrategyID = proposal.StrategyID
	}

	d = applyPersonality(d, personality, availableFunds)
	e.logger.Debug("decision made",
		"asset", d.AssetID,
		"action", d.Action,
		"amount", d.Amount,
		"confidence", d.Confidence,
		"strategy", d.StrategyID,
	)
	return d
}

func (e *Engine) reason(ctx context.Context, prompt Prompt) (*Proposal, error) {
	if e.reasoner == nil {
		return nil, errors.New("no reasoner configured")
	}
	if e.cfg.ReasonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ReasonTimeout)
		defer cancel()
	}
	p, err := e.reasoner.Reason(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return validateProposal(p)
}

// validateProposal rejects structurally broken output and clamps the rest.
func validateProposal(p *Proposal) (*Proposal, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty", errInvalidProposal)
	}
	action, ok := market.ParseAction(string(p.Action))
	if !ok {
		return nil, fmt.Errorf("%w: action %q", errInvalidProposal, p.Action)
	}
	if math.IsNaN(p.Confidence) || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return nil, fmt.Errorf("%w: non-finite numbers", errInvalidProposal)
	}
	out := *p
	out.Action = action
	out.Confidence = clamp01(p.Confidence)
	out.Amount = math.Max(0, p.Amount)
	out.RiskLevel = market.ParseRiskLevel(string(p.RiskLevel))
	return &out, nil
}

// applyPersonality scales the amount by risk tolerance and holds when
// confidence falls short of the personality floor.
func applyPersonality(d Decision, p Personality, funds float64) Decision {
	if d.Action == market.ActionHold {
		d.Amount = 0
		return d
	}

	d.Amount *= p.RiskTolerance

	floor := p.RequiredConfidence()
	if d.Confidence < floor {
		d.Reasoning = fmt.Sprintf("confidence %.2f below required %.2f; holding. %s", d.Confidence, floor, d.Reasoning)
		d.Action = market.ActionHold
		d.Amount = 0
		return d
	}

	d.Amount = math.Min(d.Amount, math.Max(funds, 0))
	return d
}

// pickStrategy returns the best regime strategy, or with probability
// explorationRate a random one among them.
func (e *Engine) pickStrategy(genes []strategy.Gene, explorationRate float64) *strategy.Gene {
	if len(genes) == 0 {
		return nil
	}
	e.mu.Lock()
	explore := e.rng.Float64() < explorationRate
	idx := e.rng.Intn(len(genes))
	e.mu.Unlock()

	g := genes[0]
	if explore {
		g = genes[idx]
	}
	return &g
}
