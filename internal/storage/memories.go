package storage

import (
	"context"
	"errors"
	"fmt"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
)

// Repository also satisfies memory.Store.
var _ memory.Store = (*Repository)(nil)

func (r *Repository) Store(ctx context.Context, m memory.TradeMemory) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	rec, err := toRecord(m)
	if err != nil {
		return "", err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return m.ID, nil
}

func (r *Repository) FetchAll(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&TradeMemoryRecord{}).
		Order("timestamp ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *Repository) Fetch(ctx context.Context, id string) (*memory.TradeMemory, error) {
	var rec TradeMemoryRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch memory %s: %w", id, err)
	}
	m, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Query returns matching memories oldest first; Limit keeps the newest n.
func (r *Repository) Query(ctx context.Context, f memory.Filter) ([]memory.TradeMemory, error) {
	q := r.db.WithContext(ctx).Model(&TradeMemoryRecord{})
	if f.AssetID != "" {
		q = q.Where("asset_id = ?", f.AssetID)
	}
	if f.StrategyID != "" {
		q = q.Where("strategy_id = ?", f.StrategyID)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", string(f.Outcome))
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	q = q.Order("timestamp DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []TradeMemoryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}

	out := make([]memory.TradeMemory, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		m, err := fromRecord(recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Finalize moves a PENDING memory to its outcome exactly once.
func (r *Repository) Finalize(ctx context.Context, id string, f memory.Finalization) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec TradeMemoryRecord
		err := tx.Where("id = ?", id).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return memory.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load memory %s: %w", id, err)
		}
		if rec.Outcome != string(memory.OutcomePending) {
			return memory.ErrAlreadyFinalized
		}

		lessons, err := json.MarshalString(f.Lessons)
		if err != nil {
			return fmt.Errorf("encode lessons: %w", err)
		}
		exit := f.ExitPrice
		return tx.Model(&rec).Updates(map[string]any{
			"exit_price":  &exit,
			"outcome":     string(f.Outcome),
			"profit_loss": f.ProfitLoss,
			"lessons":     lessons,
		}).Error
	})
}

func toRecord(m memory.TradeMemory) (*TradeMemoryRecord, error) {
	lessons, err := json.MarshalString(m.Lessons)
	if err != nil {
		return nil, fmt.Errorf("encode lessons: %w", err)
	}
	return &TradeMemoryRecord{
		ID:             m.ID,
		Timestamp:      m.Timestamp,
		AssetID:        m.AssetID,
		Action:         string(m.Action),
		Amount:         m.Amount,
		EntryPrice:     m.EntryPrice,
		ExitPrice:      m.ExitPrice,
		Outcome:        string(m.Outcome),
		ProfitLoss:     m.ProfitLoss,
		Confidence:     m.Confidence,
		StrategyID:     m.StrategyID,
		RiskLevel:      string(m.RiskLevel),
		Lessons:        lessons,
		Volume24h:      m.Market.Volume24h,
		Liquidity:      m.Market.Liquidity,
		PriceChange24h: m.Market.PriceChange24h,
		BuyPressure:    m.Market.BuyPressure,
		SellPressure:   m.Market.SellPressure,
		Trend:          string(m.Market.Trend),
	}, nil
}

func fromRecord(rec TradeMemoryRecord) (memory.TradeMemory, error) {
	var lessons []string
	if rec.Lessons != "" {
		if err := json.UnmarshalString(rec.Lessons, &lessons); err != nil {
			return memory.TradeMemory{}, fmt.Errorf("decode lessons of %s: %w", rec.ID, err)
		}
	}
	return memory.TradeMemory{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp,
		AssetID:    rec.AssetID,
		Action:     market.Action(rec.Action),
		Amount:     rec.Amount,
		EntryPrice: rec.EntryPrice,
		ExitPrice:  rec.ExitPrice,
		Outcome:    memory.Outcome(rec.Outcome),
		ProfitLoss: rec.ProfitLoss,
		Confidence: rec.Confidence,
		StrategyID: rec.StrategyID,
		RiskLevel:  market.RiskLevel(rec.RiskLevel),
		Lessons:    lessons,
		Market: memory.Conditions{
			Volume24h:      rec.Volume24h,
			Liquidity:      rec.Liquidity,
			PriceChange24h: rec.PriceChange24h,
			BuyPressure:    rec.BuyPressure,
			SellPressure:   rec.SellPressure,
			Trend:          market.Trend(rec.Trend),
		},
	}, nil
}
