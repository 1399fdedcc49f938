package strategy

import (
	"math"
	"slices"

	"github.com/samber/lo"
)

// minActive is the smallest population evolution will work with before
// topping up with fresh seed genes.
const minActive = 2

// Metrics describes one evolution step.
type Metrics struct {
	Generation      int     `json:"generation"`
	AvgFitness      float64 `json:"avg_fitness"`
	BestFitness     float64 `json:"best_fitness"`
	Diversity       float64 `json:"diversity"`
	ConvergenceRate float64 `json:"convergence_rate"`
	MutationRate    float64 `json:"mutation_rate"`
	Retired         int     `json:"retired"`
}

// EvolveStrategies produces the next generation. It never fails: genes
// without history keep neutral fitness and take part in selection.
func (p *Population) EvolveStrategies() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recomputeFitnessLocked()

	active, retired := p.retireLocked()
	if len(active) < minActive {
		active = append(active, p.seed(minActive-len(active))...)
	}
	sortByFitness(active)

	target := p.cfg.Size
	elite := min(p.cfg.Elite, len(active), target)

	next := make([]Gene, 0, target)
	for _, g := range active[:elite] {
		next = append(next, g.Clone())
	}

	p.generation++
	now := p.now()
	for len(next) < target {
		var child Gene
		if p.rng.Float64() < p.cfg.CrossoverRate {
			a := p.tournament(active)
			b := p.tournament(active)
			child = p.crossover(a, b)
		} else {
			parent := p.tournament(active)
			child = parent.Clone()
			child.Parents = []string{parent.ID}
		}
		if p.rng.Float64() < p.mutationRate {
			p.mutate(&child)
		}
		child.ID = newID(p.rng)
		child.Fitness = NeutralFitness
		child.TradeCount = 0
		child.Generation = p.generation
		child.CreatedAt = now
		next = append(next, child)
	}
	p.genes = next

	diversity := Diversity(p.genes)
	p.tuneMutationRate(diversity)

	fitness := lo.Map(p.genes, func(g Gene, _ int) float64 { return g.Fitness })
	m := Metrics{
		Generation:      p.generation,
		AvgFitness:      mean(fitness),
		BestFitness:     lo.Max(fitness),
		Diversity:       diversity,
		ConvergenceRate: 1 / (variance(fitness) + 0.001),
		MutationRate:    p.mutationRate,
		Retired:         retired,
	}
	if p.logger != nil {
		p.logger.Info("strategies evolved",
			"generation", m.Generation,
			"avg_fitness", m.AvgFitness,
			"best_fitness", m.BestFitness,
			"diversity", m.Diversity,
			"mutation_rate", m.MutationRate,
			"retired", m.Retired,
		)
	}
	return m
}

// retireLocked drops genes that have traded enough to be judged and still sit under the floor.
func (p *Population) retireLocked() ([]Gene, int) {
	active := make([]Gene, 0, len(p.genes))
	retired := 0
	for _, g := range p.genes {
		if p.cfg.MinTrades > 0 && g.TradeCount >= p.cfg.MinTrades && g.Fitness < p.cfg.FitnessFloor {
			retired++
			continue
		}
		active = append(active, g)
	}
	return active, retired
}

func (p *Population) tournament(genes []Gene) Gene {
	size := max(p.cfg.TournamentSize, 1)
	best := genes[p.rng.Intn(len(genes))]
	for i := 1; i < size; i++ {
		g := genes[p.rng.Intn(len(genes))]
		if g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

func (p *Population) crossover(a, b Gene) Gene {
	child := Gene{
		Type:       a.Type,
		Parameters: make(map[string]float64),
		Weights:    make(map[string]float64),
		Parents:    lo.Uniq([]string{a.ID, b.ID}),
	}
	if p.rng.Float64() < 0.5 {
		child.Type = b.Type
	}

	// Keys are iterated in sorted order so a seeded rng reproduces the same child.
	for _, k := range sortedKeys(a.Parameters, b.Parameters) {
		child.Parameters[k] = p.blend(a.Parameters, b.Parameters, k)
	}
	for _, k := range sortedKeys(a.Weights, b.Weights) {
		child.Weights[k] = p.blend(a.Weights, b.Weights, k)
	}
	normalizeWeights(child.Weights)

	child.Triggers = lo.Uniq(append(append([]string(nil), a.Triggers...), b.Triggers...))
	return child
}

func (p *Population) blend(a, b map[string]float64, key string) float64 {
	va, okA := a[key]
	vb, okB := b[key]
	switch {
	case okA && !okB:
		return va
	case okB && !okA:
		return vb
	}
	t := p.rng.Float64()
	return t*va + (1-t)*vb
}

func (p *Population) mutate(g *Gene) {
	for _, k := range sortedKeys(g.Parameters) {
		g.Parameters[k] *= 1 + p.cfg.ParamJitter*(2*p.rng.Float64()-1)
	}
	for _, k := range sortedKeys(g.Weights) {
		g.Weights[k] *= 1 + p.cfg.WeightJitter*(2*p.rng.Float64()-1)
	}
	normalizeWeights(g.Weights)

	if p.rng.Float64() >= p.cfg.TriggerChance {
		return
	}
	if len(g.Triggers) > 1 && p.rng.Float64() < 0.5 {
		i := p.rng.Intn(len(g.Triggers))
		g.Triggers = slices.Delete(g.Triggers, i, i+1)
		return
	}
	missing := lo.Without(TriggerPool, g.Triggers...)
	if len(missing) > 0 {
		g.Triggers = append(g.Triggers, missing[p.rng.Intn(len(missing))])
	}
}

func (p *Population) tuneMutationRate(diversity float64) {
	switch {
	case diversity < p.cfg.LowDiversity:
		p.mutationRate = math.Min(p.mutationRate*1.5, p.cfg.MaxMutationRate)
	case diversity > p.cfg.HighDiversity:
		p.mutationRate = math.Max(p.mutationRate*0.8, p.cfg.MinMutationRate)
	}
}

// Diversity is the mean pairwise distance across the population, in [0,1].
func Diversity(genes []Gene) float64 {
	if len(genes) < 2 {
		return 0
	}
	var total float64
	var pairs int
	for i := 0; i < len(genes); i++ {
		for j := i + 1; j < len(genes); j++ {
			total += distance(genes[i], genes[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

// distance is a flat 0.5 for differing types plus up to 0.5 for parameter and weight spread.
func distance(a, b Gene) float64 {
	var d float64
	if a.Type != b.Type {
		d += 0.5
	}

	var sum float64
	var n int
	for _, k := range sortedKeys(a.Parameters, b.Parameters) {
		va, vb := a.Parameters[k], b.Parameters[k]
		scale := math.Max(math.Abs(va), math.Abs(vb))
		if scale > 0 {
			sum += math.Abs(va-vb) / scale
		}
		n++
	}
	for _, k := range sortedKeys(a.Weights, b.Weights) {
		sum += math.Abs(a.Weights[k] - b.Weights[k])
		n++
	}
	if n > 0 {
		d += 0.5 * math.Min(1, sum/float64(n))
	}
	return d
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return lo.Sum(xs) / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var v float64
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return v / float64(len(xs))
}
