package aggregator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/skalibog/convergd/pkg/models"
)

// Свечей на расчет VWAP одного таймфрейма.
const vwapCandleLimit = 100

// cached читает значение из кэша либо выполняет запрос к источнику с
// ограниченным таймаутом. Разные вызовы могут спрашивать один ключ с
// разными окнами свежести.
func cached[T any](ctx context.Context, a *Aggregator, key string, ttl time.Duration, useCache bool, fetch func(context.Context) (T, error)) (T, error) {
	if useCache {
		if v, ok := a.cache.Get(key, ttl); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout())
	defer cancel()

	v, err := fetch(fetchCtx)
	if err != nil {
		var zero T
		return zero, err
	}
	a.cache.Set(key, v)
	return v, nil
}

func (a *Aggregator) getOrderBook(ctx context.Context, req Request) (*models.OrderBook, error) {
	depth := a.cfg.Analysis.OrderBook.Depth
	key := fmt.Sprintf("orderbook:%s:%d", req.Symbol, depth)
	return cached(ctx, a, key, ttl(a.cfg.Cache.OrderBookTTL), req.UseCache,
		func(ctx context.Context) (*models.OrderBook, error) {
			return a.market.GetOrderBook(ctx, req.Symbol, depth)
		})
}

func (a *Aggregator) getKlines(ctx context.Context, req Request, interval string, limit int) ([]*models.Candle, error) {
	key := fmt.Sprintf("klines:%s:%s:%d", req.Symbol, interval, limit)
	return cached(ctx, a, key, ttl(a.cfg.Cache.CandlesTTL), req.UseCache,
		func(ctx context.Context) ([]*models.Candle, error) {
			return a.market.GetKlines(ctx, req.Symbol, interval, limit)
		})
}

func (a *Aggregator) getMarkPrice(ctx context.Context, req Request) (float64, error) {
	key := "mark:" + req.Symbol
	return cached(ctx, a, key, ttl(a.cfg.Cache.BasisTTL), req.UseCache,
		func(ctx context.Context) (float64, error) {
			return a.market.GetMarkPrice(ctx, req.Symbol)
		})
}

func (a *Aggregator) collectOrderBook(ctx context.Context, req Request) (*models.OrderBookMetrics, error) {
	book, err := a.getOrderBook(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.orderBook.Analyze(book)
}

func (a *Aggregator) collectFunding(ctx context.Context, req Request) (*models.FundingMetrics, error) {
	current, err := cached(ctx, a, "funding:"+req.Symbol, ttl(a.cfg.Cache.FundingTTL), req.UseCache,
		func(ctx context.Context) (*models.FundingRate, error) {
			return a.market.GetFundingRate(ctx, req.Symbol)
		})
	if err != nil {
		return nil, err
	}

	lookback := a.cfg.Analysis.Funding.LookbackHours
	fundingHistory, err := cached(ctx, a, fmt.Sprintf("funding-history:%s:%d", req.Symbol, lookback),
		ttl(a.cfg.Cache.FundingTTL), req.UseCache,
		func(ctx context.Context) ([]*models.FundingRate, error) {
			return a.market.GetFundingHistory(ctx, req.Symbol, lookback)
		})
	if err != nil {
		// История обогащает метрику, но не обязательна для нее
		fundingHistory = nil
	}

	return a.funding.Analyze(current, fundingHistory)
}

func (a *Aggregator) collectOpenInterest(ctx context.Context, req Request) (*models.OIMetrics, error) {
	oi, err := cached(ctx, a, "oi:"+req.Symbol, ttl(a.cfg.Cache.OITTL), req.UseCache,
		func(ctx context.Context) (*models.OpenInterest, error) {
			return a.market.GetOpenInterest(ctx, req.Symbol)
		})
	if err != nil {
		return nil, err
	}

	price, err := a.getMarkPrice(ctx, req)
	if err != nil {
		return nil, err
	}

	return a.openInterest.Analyze(req.Symbol, oi, price)
}

func (a *Aggregator) collectBasis(ctx context.Context, req Request) (*models.BasisMetrics, error) {
	spot, err := cached(ctx, a, "index:"+req.Symbol, ttl(a.cfg.Cache.BasisTTL), req.UseCache,
		func(ctx context.Context) (float64, error) {
			return a.market.GetIndexPrice(ctx, req.Symbol)
		})
	if err != nil {
		return nil, err
	}

	perp, err := a.getMarkPrice(ctx, req)
	if err != nil {
		return nil, err
	}

	return a.basis.Analyze(spot, perp)
}

func (a *Aggregator) collectTradeFlow(ctx context.Context, req Request) (*models.TradeFlowMetrics, error) {
	limit := a.cfg.Analysis.TradeFlow.AvgVolumePeriods + a.cfg.Analysis.TradeFlow.LookbackCandles
	candles, err := a.getKlines(ctx, req, "1m", limit)
	if err != nil {
		return nil, err
	}
	return a.tradeFlow.Analyze(candles)
}

func (a *Aggregator) collectVWAP(ctx context.Context, req Request) ([]models.VWAPMetrics, error) {
	metrics := make([]models.VWAPMetrics, 0, len(req.Timeframes))
	for _, timeframe := range req.Timeframes {
		candles, err := a.getKlines(ctx, req, timeframe, vwapCandleLimit)
		if err != nil {
			return nil, err
		}
		m, err := a.vwap.Analyze(timeframe, candles)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, *m)
	}
	return metrics, nil
}

func (a *Aggregator) collectMicrostructure(ctx context.Context, req Request) (*models.MicrostructureMetrics, error) {
	book, err := a.getOrderBook(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := a.microstructure.Observe(req.Symbol, book); err != nil {
		return nil, err
	}
	return a.microstructure.Analyze(req.Symbol)
}

func (a *Aggregator) collectLiquidation(ctx context.Context, req Request) (*models.LiquidationMetrics, error) {
	lookback := time.Duration(a.cfg.Analysis.Liquidation.LookbackMinutes) * time.Minute
	trades, err := cached(ctx, a, "trades:"+req.Symbol, ttl(a.cfg.Cache.TradeFlowTTL), req.UseCache,
		func(ctx context.Context) ([]*models.Trade, error) {
			return a.market.GetRecentTrades(ctx, req.Symbol, lookback)
		})
	if err != nil {
		return nil, err
	}

	return a.liquidation.Analyze(trades, a.oiDropOverWindow(ctx, req, lookback))
}

// oiDropOverWindow оценивает изменение OI за окно детектора по истории
// наблюдений, nil когда истории на такую глубину еще нет
func (a *Aggregator) oiDropOverWindow(ctx context.Context, req Request, lookback time.Duration) *float64 {
	oi, err := cached(ctx, a, "oi:"+req.Symbol, ttl(a.cfg.Cache.OITTL), req.UseCache,
		func(ctx context.Context) (*models.OpenInterest, error) {
			return a.market.GetOpenInterest(ctx, req.Symbol)
		})
	if err != nil {
		return nil
	}
	price, err := a.getMarkPrice(ctx, req)
	if err != nil {
		return nil
	}

	current, err := parseOI(oi, price)
	if err != nil {
		return nil
	}

	ref, ok := a.store.LookupAtOrBefore(req.Symbol, a.now().Add(-lookback))
	if !ok || ref.OI == 0 {
		return nil
	}
	pct := (current - ref.OI) / ref.OI * 100
	return &pct
}

func parseOI(oi *models.OpenInterest, price float64) (float64, error) {
	v, err := strconv.ParseFloat(oi.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное значение открытого интереса: %w", err)
	}
	return v * price, nil
}

func (a *Aggregator) collectArbitrage(ctx context.Context, req Request) (*models.ArbitrageMetrics, error) {
	primary, err := a.getMarkPrice(ctx, req)
	if err != nil {
		return nil, err
	}

	reference, err := cached(ctx, a, "spot:"+req.Symbol, ttl(a.cfg.Cache.BasisTTL), req.UseCache,
		func(ctx context.Context) (float64, error) {
			return a.market.GetSpotPrice(ctx, req.Symbol)
		})
	if err != nil {
		return nil, err
	}

	return a.arbitrage.Analyze(primary, reference)
}
