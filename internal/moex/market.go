package moex

import (
	"context"
	"fmt"
	"math"

	"github.com/camuig/evo-trader/internal/market"
)

var marketColumns = []string{"SECID", "VALTODAY", "LAST", "LASTTOPREVPRICE"}

type issMarketResponse struct {
	Marketdata issTable `json:"marketdata"`
}

// TradableFilter narrows tickers to those the broker can trade.
type TradableFilter interface {
	TradableTickers(ctx context.Context, tickers []string) ([]string, error)
}

// Discoverer ranks the board by turnover and turns the leaders into candidates.
type Discoverer struct {
	client   *Client
	tradable TradableFilter
}

func NewDiscoverer(c *Client, tradable TradableFilter) *Discoverer {
	return &Discoverer{client: c, tradable: tradable}
}

// DiscoverCandidates returns at most limit candidates, highest turnover first.
func (d *Discoverer) DiscoverCandidates(ctx context.Context, limit int) ([]market.Candidate, error) {
	// Over-fetch: some leaders are dropped by the tradable filter.
	tickers, err := d.client.FetchTopTickers(ctx, limit*2)
	if err != nil {
		return nil, err
	}

	if d.tradable != nil && len(tickers) > 0 {
		names := make([]string, len(tickers))
		for i, t := range tickers {
			names[i] = t.Ticker
		}
		ok, err := d.tradable.TradableTickers(ctx, names)
		if err != nil {
			return nil, fmt.Errorf("filter tradable: %w", err)
		}
		allowed := make(map[string]bool, len(ok))
		for _, t := range ok {
			allowed[t] = true
		}
		kept := tickers[:0]
		for _, t := range tickers {
			if allowed[t.Ticker] {
				kept = append(kept, t)
			}
		}
		tickers = kept
	}

	if len(tickers) > limit {
		tickers = tickers[:limit]
	}

	out := make([]market.Candidate, len(tickers))
	for i, t := range tickers {
		out[i] = market.Candidate{
			AssetID:        t.Ticker,
			Price:          t.LastPrice,
			Liquidity:      t.ValToday,
			Volume24h:      t.ValToday,
			PriceChange24h: t.ChangePct,
			RiskLevel:      riskFromChange(t.ChangePct),
			Confidence:     rankConfidence(i, len(tickers)),
		}
	}
	d.client.logger.Info("candidates discovered", "count", len(out))
	return out, nil
}

func (c *Client) FetchTopTickers(ctx context.Context, limit int) ([]MarketTicker, error) {
	var iss issMarketResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("board", c.board).
		SetQueryParams(map[string]string{
			"iss.meta":           "off",
			"iss.only":           "marketdata",
			"marketdata.columns": "SECID,VALTODAY,LAST,LASTTOPREVPRICE",
			"sort_column":        "VALTODAY",
			"sort_order":         "desc",
		}).
		SetResult(&iss).
		Get("/engines/stock/markets/shares/boards/{board}/securities.json")
	if err != nil {
		return nil, fmt.Errorf("fetch top tickers: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("MOEX ISS returned status %d", resp.StatusCode())
	}

	idx, err := iss.Marketdata.index(marketColumns...)
	if err != nil {
		return nil, err
	}

	var result []MarketTicker
	for _, row := range iss.Marketdata.Data {
		if len(row) < len(marketColumns) {
			continue
		}

		ticker, _ := row[idx["SECID"]].(string)
		if ticker == "" {
			continue
		}

		lastPrice := toFloat64(row[idx["LAST"]])
		if lastPrice == 0 {
			continue // trading halted
		}

		result = append(result, MarketTicker{
			Ticker:    ticker,
			ValToday:  toFloat64(row[idx["VALTODAY"]]),
			LastPrice: lastPrice,
			ChangePct: toFloat64(row[idx["LASTTOPREVPRICE"]]),
		})

		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

// riskFromChange maps the absolute daily move to a risk level.
func riskFromChange(changePct float64) market.RiskLevel {
	switch a := math.Abs(changePct); {
	case a < 3:
		return market.RiskLow
	case a < 7:
		return market.RiskMedium
	case a < 15:
		return market.RiskHigh
	default:
		return market.RiskCritical
	}
}

// rankConfidence decays linearly from 0.8 for the leader to 0.5 for the last.
func rankConfidence(rank, n int) float64 {
	if n <= 1 {
		return 0.8
	}
	v := 0.8 - 0.3*float64(rank)/float64(n-1)
	return math.Round(v*1e4) / 1e4
}
