package moex

import "time"

type MarketTicker struct {
	Ticker    string
	ValToday  float64 // turnover in RUB for the day
	LastPrice float64
	ChangePct float64 // last vs previous close, percent
}

type NewsItem struct {
	ID        int64
	Title     string
	Published time.Time
}
