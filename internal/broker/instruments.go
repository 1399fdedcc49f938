package broker

import (
	"context"
	"fmt"
	"sync"
)

// Instrument is the broker view of a ticker.
type Instrument struct {
	Ticker string
	UID    string
	Lot    int64
}

var instrumentCache sync.Map // uid -> Instrument

func (bc *BrokerClient) instrumentByUID(uid string) (Instrument, error) {
	if cached, ok := instrumentCache.Load(uid); ok {
		return cached.(Instrument), nil
	}

	instruments := bc.Client.NewInstrumentsServiceClient()
	resp, err := instruments.InstrumentByUid(uid)
	if err != nil {
		return Instrument{}, fmt.Errorf("instrument by uid %s: %w", uid, err)
	}

	inst := resp.GetInstrument()
	lot := int64(inst.GetLot())
	if lot < 1 {
		lot = 1
	}
	out := Instrument{Ticker: inst.GetTicker(), UID: uid, Lot: lot}
	instrumentCache.Store(uid, out)
	return out, nil
}

// ResolveInstrument maps a ticker to its instrument UID and lot size.
func (bc *BrokerClient) ResolveInstrument(ctx context.Context, ticker string) (Instrument, error) {
	if err := ctx.Err(); err != nil {
		return Instrument{}, err
	}
	uid, err := bc.ResolveTickerToUID(ticker)
	if err != nil {
		return Instrument{}, err
	}
	return bc.instrumentByUID(uid)
}

// ResolveTickerToUID resolves a ticker to its instrument UID using the instruments service.
func (bc *BrokerClient) ResolveTickerToUID(ticker string) (string, error) {
	instruments := bc.Client.NewInstrumentsServiceClient()
	resp, err := instruments.FindInstrument(ticker)
	if err != nil {
		return "", fmt.Errorf("find instrument %s: %w", ticker, err)
	}

	found := resp.GetInstruments()
	for _, inst := range found {
		if inst.GetTicker() == ticker {
			return inst.GetUid(), nil
		}
	}
	if len(found) > 0 {
		return found[0].GetUid(), nil
	}

	return "", fmt.Errorf("instrument not found: %s", ticker)
}

// TradableTickers keeps the tickers available for API market orders.
// Tickers the broker cannot resolve are dropped.
func (bc *BrokerClient) TradableTickers(ctx context.Context, tickers []string) ([]string, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	uids := make([]string, 0, len(tickers))
	uidToTicker := make(map[string]string, len(tickers))
	for _, t := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		uid, err := bc.ResolveTickerToUID(t)
		if err != nil {
			bc.logger.Debug("resolve ticker failed, skipping", "ticker", t, "error", err)
			continue
		}
		uids = append(uids, uid)
		uidToTicker[uid] = t
	}
	if len(uids) == 0 {
		return nil, nil
	}

	md := bc.Client.NewMarketDataServiceClient()
	resp, err := md.GetTradingStatuses(uids)
	if err != nil {
		return nil, fmt.Errorf("trading statuses: %w", err)
	}

	tradable := make(map[string]bool, len(uids))
	for _, s := range resp.GetTradingStatuses() {
		tradable[s.GetInstrumentUid()] = s.GetApiTradeAvailableFlag() && s.GetMarketOrderAvailableFlag()
	}

	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		if tradable[uid] {
			out = append(out, uidToTicker[uid])
		}
	}
	return out, nil
}
