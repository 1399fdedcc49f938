package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/scheduler"
	"github.com/camuig/evo-trader/internal/strategy"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Cycles

// SaveCycle persists the cycle summary and its executed trades.
func (r *Repository) SaveCycle(ctx context.Context, res scheduler.CycleResult) error {
	errs, err := json.MarshalString(res.Errors)
	if err != nil {
		return fmt.Errorf("encode cycle errors: %w", err)
	}
	full, err := json.MarshalString(res)
	if err != nil {
		return fmt.Errorf("encode cycle: %w", err)
	}

	log := &CycleLog{
		CycleID:         res.ID,
		StartedAt:       res.StartedAt,
		DurationMs:      res.Timings.Total.Milliseconds(),
		Discovered:      res.Discovered,
		Filtered:        res.Filtered,
		Decided:         res.Decided,
		Rejected:        res.Rejected,
		Executed:        res.Executed,
		Succeeded:       res.Succeeded,
		PositionsClosed: res.PositionsClosed,
		Aborted:         res.Aborted,
		Errors:          errs,
		ResultJSON:      full,
	}
	trades := lo.Map(res.Trades, func(t scheduler.TradeEvent, _ int) Trade {
		return Trade{
			CycleID:    res.ID,
			AssetID:    t.AssetID,
			Action:     string(t.Action),
			Price:      t.Price,
			Amount:     t.Amount,
			Units:      t.Units,
			TxRef:      t.TxRef,
			MemoryID:   t.MemoryID,
			StrategyID: t.StrategyID,
			Reason:     t.Reason,
			PnL:        t.PnL,
		}
	})

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(log).Error; err != nil {
			return fmt.Errorf("save cycle log: %w", err)
		}
		if len(trades) > 0 {
			if err := tx.Create(&trades).Error; err != nil {
				return fmt.Errorf("save trades: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) RecentCycles(ctx context.Context, limit int) ([]CycleLog, error) {
	var logs []CycleLog
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// LatestCycle returns nil without error when no cycle has been recorded.
func (r *Repository) LatestCycle(ctx context.Context) (*scheduler.CycleResult, error) {
	var log CycleLog
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res scheduler.CycleResult
	if err := json.UnmarshalString(log.ResultJSON, &res); err != nil {
		return nil, fmt.Errorf("decode cycle %s: %w", log.CycleID, err)
	}
	return &res, nil
}

// Trades

func (r *Repository) GetRecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	var trades []Trade
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

func (r *Repository) GetTodayPnL(ctx context.Context) (float64, error) {
	today := time.Now().Truncate(24 * time.Hour)
	var total float64
	err := r.db.WithContext(ctx).Model(&Trade{}).
		Where("action = ? AND created_at >= ?", "SELL", today).
		Select("COALESCE(SUM(pnl), 0)").Scan(&total).Error
	return total, err
}

// Strategy population

// SaveGenes replaces the stored population.
func (r *Repository) SaveGenes(ctx context.Context, genes []strategy.Gene, summary strategy.Summary) error {
	recs := make([]GeneRecord, 0, len(genes))
	for i, g := range genes {
		rec, err := geneToRecord(g, i)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&GeneRecord{}).Error; err != nil {
			return fmt.Errorf("clear genes: %w", err)
		}
		if len(recs) > 0 {
			if err := tx.Create(&recs).Error; err != nil {
				return fmt.Errorf("save genes: %w", err)
			}
		}
		state := &PopulationState{
			Generation:   summary.Generation,
			MutationRate: summary.MutationRate,
			Size:         summary.Size,
			AvgFitness:   summary.AvgFitness,
			BestFitness:  summary.BestFitness,
		}
		return tx.Create(state).Error
	})
}

// LoadGenes returns the stored population; an empty slice means cold start.
func (r *Repository) LoadGenes(ctx context.Context) ([]strategy.Gene, *PopulationState, error) {
	var recs []GeneRecord
	if err := r.db.WithContext(ctx).Order("position ASC").Find(&recs).Error; err != nil {
		return nil, nil, fmt.Errorf("load genes: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil, nil
	}

	genes := make([]strategy.Gene, 0, len(recs))
	for _, rec := range recs {
		g, err := recordToGene(rec)
		if err != nil {
			return nil, nil, err
		}
		genes = append(genes, g)
	}

	var state PopulationState
	err := r.db.WithContext(ctx).Order("id DESC").First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return genes, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load population state: %w", err)
	}
	return genes, &state, nil
}

func geneToRecord(g strategy.Gene, position int) (GeneRecord, error) {
	params, err := json.MarshalString(g.Parameters)
	if err != nil {
		return GeneRecord{}, fmt.Errorf("encode gene %s: %w", g.ID, err)
	}
	weights, err := json.MarshalString(g.Weights)
	if err != nil {
		return GeneRecord{}, fmt.Errorf("encode gene %s: %w", g.ID, err)
	}
	triggers, err := json.MarshalString(g.Triggers)
	if err != nil {
		return GeneRecord{}, fmt.Errorf("encode gene %s: %w", g.ID, err)
	}
	parents, err := json.MarshalString(g.Parents)
	if err != nil {
		return GeneRecord{}, fmt.Errorf("encode gene %s: %w", g.ID, err)
	}
	return GeneRecord{
		ID:         g.ID,
		CreatedAt:  g.CreatedAt,
		Type:       string(g.Type),
		Parameters: params,
		Weights:    weights,
		Triggers:   triggers,
		Parents:    parents,
		Fitness:    g.Fitness,
		Generation: g.Generation,
		TradeCount: g.TradeCount,
		Position:   position,
	}, nil
}

func recordToGene(rec GeneRecord) (strategy.Gene, error) {
	g := strategy.Gene{
		ID:         rec.ID,
		Type:       strategy.Type(rec.Type),
		Fitness:    rec.Fitness,
		Generation: rec.Generation,
		TradeCount: rec.TradeCount,
		CreatedAt:  rec.CreatedAt,
	}
	for _, field := range []struct {
		raw string
		dst any
	}{
		{rec.Parameters, &g.Parameters},
		{rec.Weights, &g.Weights},
		{rec.Triggers, &g.Triggers},
		{rec.Parents, &g.Parents},
	} {
		if field.raw == "" {
			continue
		}
		if err := json.UnmarshalString(field.raw, field.dst); err != nil {
			return strategy.Gene{}, fmt.Errorf("decode gene %s: %w", rec.ID, err)
		}
	}
	return g, nil
}

// Personality

func (r *Repository) SavePersonality(ctx context.Context, p decision.Personality, stats decision.PerformanceStats) error {
	snap := &PersonalitySnapshot{
		RiskTolerance:       p.RiskTolerance,
		Aggressiveness:      p.Aggressiveness,
		LearningRate:        p.LearningRate,
		MemoryWeight:        p.MemoryWeight,
		ExplorationRate:     p.ExplorationRate,
		ConfidenceThreshold: p.ConfidenceThreshold,
		Trades:              stats.Trades,
		SuccessRate:         stats.SuccessRate,
		AvgReturn:           stats.AvgReturn,
		Volatility:          stats.Volatility,
		Sharpe:              stats.Sharpe,
	}
	return r.db.WithContext(ctx).Create(snap).Error
}

// LatestPersonality returns nil without error on cold start.
func (r *Repository) LatestPersonality(ctx context.Context) (*decision.Personality, error) {
	var snap PersonalitySnapshot
	err := r.db.WithContext(ctx).Order("id DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision.Personality{
		RiskTolerance:       snap.RiskTolerance,
		Aggressiveness:      snap.Aggressiveness,
		LearningRate:        snap.LearningRate,
		MemoryWeight:        snap.MemoryWeight,
		ExplorationRate:     snap.ExplorationRate,
		ConfidenceThreshold: snap.ConfidenceThreshold,
	}, nil
}

// Portfolio Snapshots

func (r *Repository) SavePortfolioSnapshot(ctx context.Context, pr risk.PortfolioRisk, positions []risk.Position) error {
	positionsJSON, err := json.MarshalString(positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	snapshot := &PortfolioSnapshot{
		Balance:         pr.LastKnownBalance,
		Exposure:        pr.TotalExposure,
		ExposurePercent: pr.ExposurePercent,
		DrawdownPercent: pr.DrawdownPercent,
		RiskLevel:       string(pr.Level),
		PositionsCount:  len(positions),
		PositionsJSON:   positionsJSON,
	}
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *Repository) GetLatestSnapshot(ctx context.Context) (*PortfolioSnapshot, error) {
	var snapshot PortfolioSnapshot
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// LatestPositions returns the ledger positions of the newest snapshot, or nil
// when nothing was persisted yet.
func (r *Repository) LatestPositions(ctx context.Context) ([]risk.Position, error) {
	snapshot, err := r.GetLatestSnapshot(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if snapshot.PositionsJSON == "" {
		return nil, nil
	}
	var positions []risk.Position
	if err := json.UnmarshalString(snapshot.PositionsJSON, &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}
