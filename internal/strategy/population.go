package strategy

import (
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
)

// History supplies the finalized trades attributed to a gene.
type History interface {
	ByStrategy(strategyID string) []memory.TradeMemory
}

type Config struct {
	Size            int           `yaml:"size"`
	Elite           int           `yaml:"elite"`
	TournamentSize  int           `yaml:"tournament_size"`
	CrossoverRate   float64       `yaml:"crossover_rate"`
	MutationRate    float64       `yaml:"mutation_rate"`
	MinMutationRate float64       `yaml:"min_mutation_rate"`
	MaxMutationRate float64       `yaml:"max_mutation_rate"`
	ParamJitter     float64       `yaml:"param_jitter"`
	WeightJitter    float64       `yaml:"weight_jitter"`
	TriggerChance   float64       `yaml:"trigger_chance"`
	LowDiversity    float64       `yaml:"low_diversity"`
	HighDiversity   float64       `yaml:"high_diversity"`
	FitnessFloor    float64       `yaml:"fitness_floor"`
	MinTrades       int           `yaml:"min_trades"`
	Fitness         FitnessConfig `yaml:"fitness"`
	Regimes         []Regime      `yaml:"regimes"`
}

func DefaultConfig() Config {
	return Config{
		Size:            20,
		Elite:           4,
		TournamentSize:  3,
		CrossoverRate:   0.7,
		MutationRate:    0.1,
		MinMutationRate: 0.02,
		MaxMutationRate: 0.5,
		ParamJitter:     0.2,
		WeightJitter:    0.15,
		TriggerChance:   0.1,
		LowDiversity:    0.3,
		HighDiversity:   0.7,
		FitnessFloor:    0.2,
		MinTrades:       5,
		Fitness:         DefaultFitnessConfig(),
		Regimes:         DefaultRegimes(),
	}
}

func (c Config) Validate() error {
	if c.Size < 2 {
		return fmt.Errorf("strategy.size must be at least 2")
	}
	if c.Elite < 0 || c.Elite >= c.Size {
		return fmt.Errorf("strategy.elite must be in [0, size)")
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("strategy.crossover_rate must be in [0,1]")
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("strategy.mutation_rate must be in [0,1]")
	}
	return validateRegimes(c.Regimes)
}

// Summary is the operator view of the population.
type Summary struct {
	Generation   int     `json:"generation"`
	Size         int     `json:"size"`
	AvgFitness   float64 `json:"avg_fitness"`
	BestFitness  float64 `json:"best_fitness"`
	BestGeneID   string  `json:"best_gene_id"`
	BestGeneType Type    `json:"best_gene_type"`
	MutationRate float64 `json:"mutation_rate"`
	Diversity    float64 `json:"diversity"`
}

// Population maintains the strategy genes. All methods are safe for concurrent use.
type Population struct {
	mu           sync.RWMutex
	cfg          Config
	genes        []Gene
	generation   int
	mutationRate float64
	rng          *rand.Rand
	history      History
	logger       *logger.Logger
	now          func() time.Time
}

// NewPopulation seeds a fresh population. rng drives every random choice so a
// seeded source gives reproducible evolution.
func NewPopulation(cfg Config, history History, rng *rand.Rand, log *logger.Logger) *Population {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	p := &Population{
		cfg:          cfg,
		mutationRate: cfg.MutationRate,
		rng:          rng,
		history:      history,
		logger:       log,
		now:          time.Now,
	}
	p.genes = p.seed(cfg.Size)
	return p
}

func (p *Population) seed(n int) []Gene {
	now := p.now()
	genes := make([]Gene, 0, n)
	for i := 0; i < n; i++ {
		genes = append(genes, newSeedGene(allTypes[i%len(allTypes)], p.rng, now))
	}
	return genes
}

// Restore replaces the population with persisted genes.
func (p *Population) Restore(genes []Gene, generation int, mutationRate float64) {
	if len(genes) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.genes = lo.Map(genes, func(g Gene, _ int) Gene { return g.Clone() })
	p.generation = generation
	if mutationRate > 0 {
		p.mutationRate = mutationRate
	}
}

func (p *Population) Genes() []Gene {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Map(p.genes, func(g Gene, _ int) Gene { return g.Clone() })
}

func (p *Population) Get(id string) (Gene, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := lo.Find(p.genes, func(g Gene) bool { return g.ID == id })
	if !ok {
		return Gene{}, false
	}
	return g.Clone(), true
}

func (p *Population) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.genes)
}

func (p *Population) Generation() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

func (p *Population) MutationRate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mutationRate
}

// DetectMarketRegime returns the first configured regime matching the snapshot.
func (p *Population) DetectMarketRegime(s market.Snapshot) (*Regime, bool) {
	for _, r := range p.cfg.Regimes {
		if r.Matches(s) {
			r := r
			return &r, true
		}
	}
	return nil, false
}

// BestForRegime returns up to n genes suited to the regime, best fitness first.
// With no regime, or no gene of a preferred type, the overall best are returned.
func (p *Population) BestForRegime(regime *Regime, n int) []Gene {
	p.mu.RLock()
	candidates := lo.Map(p.genes, func(g Gene, _ int) Gene { return g.Clone() })
	p.mu.RUnlock()

	if regime != nil && len(regime.Strategies) > 0 {
		preferred := lo.Filter(candidates, func(g Gene, _ int) bool {
			return slices.Contains(regime.Strategies, g.Type)
		})
		if len(preferred) > 0 {
			candidates = preferred
		}
	}

	sortByFitness(candidates)
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// UpdateFitness recomputes one gene's fitness from its trade history.
func (p *Population) UpdateFitness(strategyID string) {
	if strategyID == "" || p.history == nil {
		return
	}
	history := p.history.ByStrategy(strategyID)
	fitness, trades := Fitness(history, p.cfg.Fitness, p.now())

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.genes {
		if p.genes[i].ID == strategyID {
			p.genes[i].Fitness = fitness
			p.genes[i].TradeCount = trades
			return
		}
	}
}

func (p *Population) recomputeFitnessLocked() {
	if p.history == nil {
		return
	}
	now := p.now()
	for i := range p.genes {
		p.genes[i].Fitness, p.genes[i].TradeCount = Fitness(p.history.ByStrategy(p.genes[i].ID), p.cfg.Fitness, now)
	}
}

func (p *Population) Summary() Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Summary{
		Generation:   p.generation,
		Size:         len(p.genes),
		MutationRate: p.mutationRate,
		Diversity:    Diversity(p.genes),
	}
	if len(p.genes) == 0 {
		return s
	}
	sorted := lo.Map(p.genes, func(g Gene, _ int) Gene { return g })
	sortByFitness(sorted)
	s.BestFitness = sorted[0].Fitness
	s.BestGeneID = sorted[0].ID
	s.BestGeneType = sorted[0].Type
	s.AvgFitness = lo.SumBy(p.genes, func(g Gene) float64 { return g.Fitness }) / float64(len(p.genes))
	return s
}

func sortByFitness(genes []Gene) {
	sort.SliceStable(genes, func(i, j int) bool {
		if genes[i].Fitness != genes[j].Fitness {
			return genes[i].Fitness > genes[j].Fitness
		}
		return genes[i].ID < genes[j].ID
	})
}
