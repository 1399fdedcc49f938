package risk

import "fmt"

// Profile is the operator-tunable risk policy.
type Profile struct {
	MaxPositionSizePercent  float64 `yaml:"max_position_size_percent" json:"max_position_size_percent"`
	MaxTotalExposurePercent float64 `yaml:"max_total_exposure_percent" json:"max_total_exposure_percent"`
	MinConfidenceThreshold  float64 `yaml:"min_confidence_threshold" json:"min_confidence_threshold"`
	MaxPriceImpactPercent   float64 `yaml:"max_price_impact_percent" json:"max_price_impact_percent"`
	MinLiquidity            float64 `yaml:"min_liquidity" json:"min_liquidity"`
	MaxVolatility           float64 `yaml:"max_volatility" json:"max_volatility"`
	StopLossPercent         float64 `yaml:"stop_loss_percent" json:"stop_loss_percent"`
	TakeProfitPercent       float64 `yaml:"take_profit_percent" json:"take_profit_percent"`
}

func DefaultProfile() Profile {
	return Profile{
		MaxPositionSizePercent:  10,
		MaxTotalExposurePercent: 50,
		MinConfidenceThreshold:  0.6,
		MaxPriceImpactPercent:   3,
		MinLiquidity:            10_000_000,
		MaxVolatility:           10,
		StopLossPercent:         5,
		TakeProfitPercent:       10,
	}
}

func (p Profile) Validate() error {
	if p.MaxPositionSizePercent <= 0 || p.MaxPositionSizePercent > 100 {
		return fmt.Errorf("max_position_size_percent must be in (0,100]")
	}
	if p.MaxTotalExposurePercent <= 0 || p.MaxTotalExposurePercent > 100 {
		return fmt.Errorf("max_total_exposure_percent must be in (0,100]")
	}
	if p.MinConfidenceThreshold < 0 || p.MinConfidenceThreshold > 1 {
		return fmt.Errorf("min_confidence_threshold must be in [0,1]")
	}
	if p.MaxPriceImpactPercent <= 0 {
		return fmt.Errorf("max_price_impact_percent must be positive")
	}
	if p.MinLiquidity < 0 {
		return fmt.Errorf("min_liquidity must not be negative")
	}
	if p.MaxVolatility <= 0 {
		return fmt.Errorf("max_volatility must be positive")
	}
	if p.StopLossPercent <= 0 || p.TakeProfitPercent <= 0 {
		return fmt.Errorf("stop_loss_percent and take_profit_percent must be positive")
	}
	return nil
}
