package storage

import "time"

// TradeMemoryRecord is the durable form of memory.TradeMemory.
type TradeMemoryRecord struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Timestamp  time.Time `gorm:"index;not null" json:"timestamp"`
	AssetID    string    `gorm:"index;not null" json:"asset_id"`
	Action     string    `gorm:"not null" json:"action"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  *float64  `json:"exit_price"`
	Outcome    string    `gorm:"index;not null" json:"outcome"` // PROFIT, LOSS, PENDING
	ProfitLoss float64   `json:"profit_loss"`
	Confidence float64   `json:"confidence"`
	StrategyID string    `gorm:"index" json:"strategy_id"`
	RiskLevel  string    `json:"risk_level"`
	Lessons    string    `gorm:"type:text" json:"lessons"`

	Volume24h      float64 `json:"volume_24h"`
	Liquidity      float64 `json:"liquidity"`
	PriceChange24h float64 `json:"price_change_24h"`
	BuyPressure    float64 `json:"buy_pressure"`
	SellPressure   float64 `json:"sell_pressure"`
	Trend          string  `json:"trend"`
}

// Trade is the execution journal.
type Trade struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CycleID    string  `gorm:"index" json:"cycle_id"`
	AssetID    string  `gorm:"index;not null" json:"asset_id"`
	Action     string  `gorm:"not null" json:"action"` // BUY or SELL
	Price      float64 `gorm:"not null" json:"price"`
	Amount     float64 `json:"amount"`
	Units      float64 `json:"units"`
	TxRef      string  `json:"tx_ref"`
	MemoryID   string  `json:"memory_id"`
	StrategyID string  `json:"strategy_id"`
	Reason     string  `json:"reason"`

	PnL float64 `gorm:"column:pnl" json:"pnl"`
}

type CycleLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CycleID         string    `gorm:"uniqueIndex" json:"cycle_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationMs      int64     `json:"duration_ms"`
	Discovered      int       `json:"discovered"`
	Filtered        int       `json:"filtered"`
	Decided         int       `json:"decided"`
	Rejected        int       `json:"rejected"`
	Executed        int       `json:"executed"`
	Succeeded       int       `json:"succeeded"`
	PositionsClosed int       `json:"positions_closed"`
	Aborted         bool      `json:"aborted"`
	Errors          string    `gorm:"type:text" json:"errors"`
	ResultJSON      string    `gorm:"type:text" json:"result_json"`
}

type GeneRecord struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Type       string  `gorm:"not null" json:"type"`
	Parameters string  `gorm:"type:text" json:"parameters"`
	Weights    string  `gorm:"type:text" json:"weights"`
	Triggers   string  `gorm:"type:text" json:"triggers"`
	Parents    string  `gorm:"type:text" json:"parents"`
	Fitness    float64 `json:"fitness"`
	Generation int     `json:"generation"`
	TradeCount int     `json:"trade_count"`
	Position   int     `json:"position"`
}

type PopulationState struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Generation   int     `json:"generation"`
	MutationRate float64 `json:"mutation_rate"`
	Size         int     `json:"size"`
	AvgFitness   float64 `json:"avg_fitness"`
	BestFitness  float64 `json:"best_fitness"`
}

type PersonalitySnapshot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RiskTolerance       float64 `json:"risk_tolerance"`
	Aggressiveness      float64 `json:"aggressiveness"`
	LearningRate        float64 `json:"learning_rate"`
	MemoryWeight        float64 `json:"memory_weight"`
	ExplorationRate     float64 `json:"exploration_rate"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	Trades      int     `json:"trades"`
	SuccessRate float64 `json:"success_rate"`
	AvgReturn   float64 `json:"avg_return"`
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
}

type PortfolioSnapshot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Balance         float64 `json:"balance"`
	Exposure        float64 `json:"exposure"`
	ExposurePercent float64 `json:"exposure_percent"`
	DrawdownPercent float64 `json:"drawdown_percent"`
	RiskLevel       string  `json:"risk_level"`
	PositionsCount  int     `json:"positions_count"`
	PositionsJSON   string  `gorm:"type:text" json:"positions_json"`
}
