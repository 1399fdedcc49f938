package broker

import (
	"context"
	"fmt"
	"math"
	"time"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"

	"github.com/camuig/evo-trader/internal/market"
)

const (
	snapshotWindow = 7 * 24 * time.Hour
	trendThreshold = 1.0 // percent
)

type candle struct {
	Time   time.Time
	Open   float64
	Close  float64
	Volume float64 // lots
}

// GetSnapshot builds a market snapshot for ticker from a week of hourly candles.
func (bc *BrokerClient) GetSnapshot(ctx context.Context, ticker string) (market.Snapshot, error) {
	inst, err := bc.ResolveInstrument(ctx, ticker)
	if err != nil {
		return market.Snapshot{}, err
	}

	now := time.Now()
	md := bc.Client.NewMarketDataServiceClient()
	resp, err := md.GetCandles(
		inst.UID,
		pb.CandleInterval_CANDLE_INTERVAL_HOUR,
		now.Add(-snapshotWindow), now,
		pb.GetCandlesRequest_CANDLE_SOURCE_EXCHANGE,
		0,
	)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("candles %s: %w", ticker, err)
	}

	raw := resp.GetCandles()
	candles := make([]candle, 0, len(raw))
	for _, c := range raw {
		candles = append(candles, candle{
			Time:   c.GetTime().AsTime(),
			Open:   quotationToDecimal(c.GetOpen()).InexactFloat64(),
			Close:  quotationToDecimal(c.GetClose()).InexactFloat64(),
			Volume: float64(c.GetVolume() * inst.Lot),
		})
	}

	snap, ok := snapshotFromCandles(ticker, candles, now)
	if !ok {
		return market.Snapshot{}, fmt.Errorf("no candles for %s", ticker)
	}
	return snap, nil
}

// snapshotFromCandles derives the snapshot fields. Volume and liquidity are
// turnover in RUB: the last 24h and the average day of the window.
// Volatility is the standard deviation of hourly returns scaled to a day, in percent.
func snapshotFromCandles(ticker string, candles []candle, now time.Time) (market.Snapshot, bool) {
	if len(candles) == 0 {
		return market.Snapshot{}, false
	}

	last := findCloseAtOffset(candles, now, 0)
	price3h := findCloseAtOffset(candles, now, 3*time.Hour)
	price1d := findCloseAtOffset(candles, now, 24*time.Hour)
	price3d := findCloseAtOffset(candles, now, 3*24*time.Hour)

	cutoff := now.Add(-24 * time.Hour)
	var (
		turnover24h, turnoverAll float64
		upVolume, downVolume     float64
		hoursInDay               int
		returns                  []float64
	)
	for i, c := range candles {
		turnover := c.Volume * c.Close
		turnoverAll += turnover
		if c.Time.After(cutoff) {
			turnover24h += turnover
			hoursInDay++
			switch {
			case c.Close > c.Open:
				upVolume += c.Volume
			case c.Close < c.Open:
				downVolume += c.Volume
			}
		}
		if i > 0 && candles[i-1].Close > 0 {
			returns = append(returns, (c.Close-candles[i-1].Close)/candles[i-1].Close)
		}
	}

	days := now.Sub(candles[0].Time).Hours() / 24
	if days < 1 {
		days = 1
	}

	snap := market.Snapshot{
		AssetID:        ticker,
		Price:          last,
		Volume24h:      turnover24h,
		Liquidity:      turnoverAll / days,
		PriceChange24h: pctChange(price1d, last),
		Volatility:     stdDev(returns) * math.Sqrt(float64(max(hoursInDay, 1))) * 100,
		BuyPressure:    0.5,
		SellPressure:   0.5,
		Trend:          classifyTrend(pctChange(price3h, last), pctChange(price1d, last), pctChange(price3d, last)),
		TakenAt:        now,
	}
	if total := upVolume + downVolume; total > 0 {
		snap.BuyPressure = upVolume / total
		snap.SellPressure = downVolume / total
	}
	return snap, true
}

func classifyTrend(change3h, change1d, change3d float64) market.Trend {
	switch {
	case change1d >= trendThreshold && change3h >= 0 && change3d >= 0:
		return market.TrendBullish
	case change1d <= -trendThreshold && change3h <= 0 && change3d <= 0:
		return market.TrendBearish
	default:
		return market.TrendNeutral
	}
}

// findCloseAtOffset finds the close price of the candle closest to (now - offset).
func findCloseAtOffset(candles []candle, now time.Time, offset time.Duration) float64 {
	target := now.Add(-offset)
	var best *candle
	var bestDiff time.Duration

	for i := range candles {
		diff := absDuration(candles[i].Time.Sub(target))
		if best == nil || diff < bestDiff {
			best = &candles[i]
			bestDiff = diff
		}
	}

	if best == nil {
		return 0
	}
	return best.Close
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
