package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// MarketData источник рыночных данных для калькуляторов метрик.
// Ядро зависит только от формы данных, не от конкретного транспорта.
type MarketData interface {
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error)
	GetFundingHistory(ctx context.Context, symbol string, lookbackHours int) ([]*models.FundingRate, error)
	GetOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error)
	// GetMarkPrice возвращает цену перпетуала на основной площадке
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	// GetIndexPrice возвращает спотовый референс перпетуала
	GetIndexPrice(ctx context.Context, symbol string) (float64, error)
	// GetSpotPrice возвращает цену на референсной площадке для арбитража
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)
	GetRecentTrades(ctx context.Context, symbol string, lookback time.Duration) ([]*models.Trade, error)
}

// BinanceClient клиент для взаимодействия с Binance
type BinanceClient struct {
	futures *futures.Client
	spot    *binance.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.Testnet {
		futures.UseTestnet = true
		// Для спот-клиента нужно изменить базовый URL
		spotClient.SetApiEndpoint("https://testnet.binance.vision")
	}

	return &BinanceClient{
		futures: futuresClient,
		spot:    spotClient,
	}, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}

	return candles, nil
}

// GetOrderBook получает стакан заявок
func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	ob, err := c.futures.NewDepthService().
		Symbol(symbol).
		Limit(depth).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	orderBook := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, len(ob.Bids)),
		Asks:      make([]models.OrderBookLevel, len(ob.Asks)),
	}

	for i, bid := range ob.Bids {
		orderBook.Bids[i] = models.OrderBookLevel{
			Price:  bid.Price,
			Amount: bid.Quantity,
		}
	}

	for i, ask := range ob.Asks {
		orderBook.Asks[i] = models.OrderBookLevel{
			Price:  ask.Price,
			Amount: ask.Quantity,
		}
	}

	return orderBook, nil
}

// GetFundingRate получает текущую ставку финансирования
func (c *BinanceClient) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	rates, err := c.futures.NewPremiumIndexService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ставки финансирования: %w", err)
	}

	if len(rates) == 0 {
		return nil, fmt.Errorf("не найдены данные о ставке финансирования для %s", symbol)
	}

	rate := &models.FundingRate{
		Symbol:          symbol,
		Rate:            rates[0].LastFundingRate,
		Timestamp:       time.Now(),
		NextFundingTime: time.Unix(rates[0].NextFundingTime/1000, 0),
	}

	return rate, nil
}

// GetFundingHistory получает историю ставок финансирования за окно наблюдения
func (c *BinanceClient) GetFundingHistory(ctx context.Context, symbol string, lookbackHours int) ([]*models.FundingRate, error) {
	start := time.Now().Add(-time.Duration(lookbackHours) * time.Hour)

	entries, err := c.futures.NewFundingRateService().
		Symbol(symbol).
		StartTime(start.UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории финансирования: %w", err)
	}

	rates := make([]*models.FundingRate, len(entries))
	for i, e := range entries {
		rates[i] = &models.FundingRate{
			Symbol:    symbol,
			Rate:      e.FundingRate,
			Timestamp: time.Unix(e.FundingTime/1000, 0),
		}
	}

	return rates, nil
}

// GetOpenInterest получает текущий открытый интерес
func (c *BinanceClient) GetOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	oi, err := c.futures.NewGetOpenInterestService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения открытого интереса: %w", err)
	}

	openInterest := &models.OpenInterest{
		Symbol:    symbol,
		Value:     oi.OpenInterest,
		Timestamp: time.Now(),
	}

	return openInterest, nil
}

// GetMarkPrice получает текущую цену перпетуала
func (c *BinanceClient) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	rates, err := c.futures.NewPremiumIndexService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения цены перпетуала: %w", err)
	}
	if len(rates) == 0 {
		return 0, fmt.Errorf("не найдена цена перпетуала для %s", symbol)
	}

	price, err := strconv.ParseFloat(rates[0].MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка парсинга цены перпетуала: %w", err)
	}
	return price, nil
}

// GetIndexPrice получает спотовый референс перпетуала
func (c *BinanceClient) GetIndexPrice(ctx context.Context, symbol string) (float64, error) {
	rates, err := c.futures.NewPremiumIndexService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения индексной цены: %w", err)
	}
	if len(rates) == 0 {
		return 0, fmt.Errorf("не найдена индексная цена для %s", symbol)
	}

	price, err := strconv.ParseFloat(rates[0].IndexPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка парсинга индексной цены: %w", err)
	}
	return price, nil
}

// GetSpotPrice получает цену на спотовом рынке, он служит референсной
// площадкой для межбиржевого монитора
func (c *BinanceClient) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.spot.NewListPricesService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения спотовой цены: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("не найдена спотовая цена для %s", symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка парсинга спотовой цены: %w", err)
	}
	return price, nil
}

// GetRecentTrades получает недавние сделки за окно наблюдения
func (c *BinanceClient) GetRecentTrades(ctx context.Context, symbol string, lookback time.Duration) ([]*models.Trade, error) {
	start := time.Now().Add(-lookback)

	aggTrades, err := c.futures.NewAggTradesService().
		Symbol(symbol).
		StartTime(start.UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ленты сделок: %w", err)
	}

	trades := make([]*models.Trade, 0, len(aggTrades))
	for _, t := range aggTrades {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			continue
		}
		trades = append(trades, &models.Trade{
			Symbol:       symbol,
			Price:        price,
			Quantity:     qty,
			Timestamp:    time.Unix(t.Timestamp/1000, t.Timestamp%1000*int64(time.Millisecond)),
			IsBuyerMaker: t.IsBuyerMaker,
		})
	}

	return trades, nil
}
