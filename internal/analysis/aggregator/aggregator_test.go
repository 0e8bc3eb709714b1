package aggregator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skalibog/convergd/internal/cache"
	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/internal/history"
	"github.com/skalibog/convergd/pkg/models"
)

// fakeMarket детерминированный источник рыночных данных для тестов
type fakeMarket struct {
	orderBookCalls atomic.Int64
	markPriceCalls atomic.Int64

	orderBookErr error
	fundingErr   error
}

func (f *fakeMarket) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	f.orderBookCalls.Add(1)
	if f.orderBookErr != nil {
		return nil, f.orderBookErr
	}
	book := &models.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for i := 0; i < depth; i++ {
		book.Bids = append(book.Bids, models.OrderBookLevel{
			Price:  fmt.Sprintf("%.2f", 102.0-float64(i)*0.01),
			Amount: "12",
		})
		book.Asks = append(book.Asks, models.OrderBookLevel{
			Price:  fmt.Sprintf("%.2f", 102.01+float64(i)*0.01),
			Amount: "4",
		})
	}
	return book, nil
}

func (f *fakeMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	start := time.Now().Add(-time.Duration(limit) * time.Minute)
	candles := make([]*models.Candle, limit)
	for i := range candles {
		price := 100.0 + float64(i)*0.02
		candles[i] = &models.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price + 0.01, Low: price - 0.01, Close: price + 0.02,
			Volume: 100,
		}
	}
	return candles, nil
}

func (f *fakeMarket) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	if f.fundingErr != nil {
		return nil, f.fundingErr
	}
	return &models.FundingRate{Symbol: symbol, Rate: "0.0004", Timestamp: time.Now()}, nil
}

func (f *fakeMarket) GetFundingHistory(ctx context.Context, symbol string, lookbackHours int) ([]*models.FundingRate, error) {
	return []*models.FundingRate{
		{Symbol: symbol, Rate: "0.0002"},
		{Symbol: symbol, Rate: "0.0003"},
		{Symbol: symbol, Rate: "0.0004"},
	}, nil
}

func (f *fakeMarket) GetOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	return &models.OpenInterest{Symbol: symbol, Value: "10000", Timestamp: time.Now()}, nil
}

func (f *fakeMarket) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	f.markPriceCalls.Add(1)
	return 102.3, nil
}

func (f *fakeMarket) GetIndexPrice(ctx context.Context, symbol string) (float64, error) {
	return 100.0, nil
}

func (f *fakeMarket) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	return 100.0, nil
}

func (f *fakeMarket) GetRecentTrades(ctx context.Context, symbol string, lookback time.Duration) ([]*models.Trade, error) {
	base := time.Now().Add(-lookback)
	var trades []*models.Trade
	for i := 0; i < 20; i++ {
		trades = append(trades, &models.Trade{
			Symbol:       symbol,
			Price:        102.0 + float64(i%2)*0.1,
			Quantity:     1,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			IsBuyerMaker: i%2 == 0,
		})
	}
	return trades, nil
}

func newTestAggregator(t *testing.T, market *fakeMarket) *Aggregator {
	t.Helper()
	cfg := config.Default()
	cfg.Analysis.MaxParallel = 1
	cfg.Trading.Timeframes = []string{"5m", "15m"}

	store, err := history.New(filepath.Join(t.TempDir(), "oi.json"), 48*time.Hour)
	if err != nil {
		t.Fatalf("создание хранилища: %v", err)
	}
	return New(cfg, market, cache.New(), store, nil)
}

func TestAggregateEndToEnd(t *testing.T) {
	market := &fakeMarket{}
	a := newTestAggregator(t, market)

	result, err := a.Aggregate(context.Background(), Request{Symbol: "BTCUSDT", UseCache: true})
	if err != nil {
		t.Fatalf("агрегация: %v", err)
	}

	if result.RequestID == "" {
		t.Fatal("идентификатор запроса должен заполняться")
	}
	if result.Symbol != "BTCUSDT" {
		t.Fatalf("инструмент %q", result.Symbol)
	}

	if result.Metrics.OrderBook == nil {
		t.Fatal("метрика стакана должна собираться")
	}
	if result.Metrics.OrderBook.Strength != "strong_buy" {
		t.Fatalf("стакан %q, ожидался strong_buy", result.Metrics.OrderBook.Strength)
	}
	if result.Metrics.Funding == nil || !result.Metrics.Funding.IsExtreme {
		t.Fatalf("финансирование %+v, ожидался экстремум", result.Metrics.Funding)
	}
	if result.Metrics.Basis == nil || result.Metrics.Basis.Strength != "extreme_premium" {
		t.Fatalf("базис %+v, ожидался extreme_premium", result.Metrics.Basis)
	}
	if len(result.Metrics.VWAPByTimeframe) != 2 {
		t.Fatalf("VWAP по %d таймфреймам, ожидалось 2", len(result.Metrics.VWAPByTimeframe))
	}
	if result.Metrics.OpenInterest == nil {
		t.Fatal("метрика OI должна собираться")
	}
	if result.Metrics.Liquidation == nil || result.Metrics.Liquidation.CascadeDetected {
		t.Fatalf("ликвидации %+v, каскада быть не должно", result.Metrics.Liquidation)
	}
	if result.Metrics.Arbitrage == nil || result.Metrics.Arbitrage.Status != "premium" {
		t.Fatalf("арбитраж %+v, ожидалась премия", result.Metrics.Arbitrage)
	}

	// Микроструктуре нужно несколько снимков, на первом цикле она
	// закономерно недоступна
	fail, ok := result.Failures[MetricMicrostructure]
	if !ok {
		t.Fatalf("ожидался отказ микроструктуры, отказы: %v", result.Failures)
	}
	if fail.Kind != models.ErrInsufficientHistory {
		t.Fatalf("род отказа %q, ожидался insufficient_history", fail.Kind)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("лишние отказы: %v", result.Failures)
	}

	if result.Summary == nil {
		t.Fatal("сводка должна считаться всегда")
	}
	if result.Summary.Score < 0 || result.Summary.Score > 100 {
		t.Fatalf("балл %d вне [0, 100]", result.Summary.Score)
	}
}

func TestFailedMetricDegradesGracefully(t *testing.T) {
	market := &fakeMarket{orderBookErr: fmt.Errorf("посторонний ответ биржи")}
	a := newTestAggregator(t, market)

	result, err := a.Aggregate(context.Background(), Request{Symbol: "BTCUSDT", UseCache: false})
	if err != nil {
		t.Fatalf("агрегация должна переживать отказ метрики: %v", err)
	}

	if _, ok := result.Failures[MetricOrderBook]; !ok {
		t.Fatalf("ожидался отказ стакана, отказы: %v", result.Failures)
	}
	if result.Metrics.OrderBook != nil {
		t.Fatal("отказавшая метрика не должна заполняться")
	}
	// Остальные метрики выжили, сводка посчитана по подмножеству
	if result.Metrics.Funding == nil || result.Metrics.Basis == nil {
		t.Fatal("прочие метрики должны собираться")
	}
	if result.Summary == nil {
		t.Fatal("сводка должна считаться на частичных данных")
	}
	if !contains(result.Summary.Unavailable, "order_book") {
		t.Fatalf("недоступные %v, ожидался order_book", result.Summary.Unavailable)
	}
}

func TestTimeoutClassified(t *testing.T) {
	market := &fakeMarket{fundingErr: context.DeadlineExceeded}
	a := newTestAggregator(t, market)

	result, err := a.Aggregate(context.Background(), Request{Symbol: "BTCUSDT", UseCache: false})
	if err != nil {
		t.Fatalf("агрегация: %v", err)
	}

	fail, ok := result.Failures[MetricFunding]
	if !ok {
		t.Fatalf("ожидался отказ финансирования, отказы: %v", result.Failures)
	}
	if fail.Kind != models.ErrUpstreamTimeout {
		t.Fatalf("род отказа %q, ожидался upstream_timeout", fail.Kind)
	}
}

func TestCacheShieldsUpstream(t *testing.T) {
	market := &fakeMarket{}
	a := newTestAggregator(t, market)

	if _, err := a.Aggregate(context.Background(), Request{Symbol: "BTCUSDT", UseCache: true}); err != nil {
		t.Fatalf("первый цикл: %v", err)
	}
	firstBook := market.orderBookCalls.Load()
	firstMark := market.markPriceCalls.Load()

	// Стакан нужен двум метрикам, но последовательный цикл с кэшем
	// ходит к источнику один раз
	if firstBook != 1 {
		t.Fatalf("обращений к стакану %d, ожидалось 1", firstBook)
	}
	if firstMark != 1 {
		t.Fatalf("обращений к цене %d, ожидалось 1", firstMark)
	}

	// Второй цикл внутри окон свежести не трогает источник
	if _, err := a.Aggregate(context.Background(), Request{Symbol: "BTCUSDT", UseCache: true}); err != nil {
		t.Fatalf("второй цикл: %v", err)
	}
	if market.orderBookCalls.Load() != firstBook {
		t.Fatal("повторный цикл не должен перечитывать стакан")
	}
	if market.markPriceCalls.Load() != firstMark {
		t.Fatal("повторный цикл не должен перечитывать цену")
	}
}

func TestSelectiveMetrics(t *testing.T) {
	market := &fakeMarket{}
	a := newTestAggregator(t, market)

	result, err := a.Aggregate(context.Background(), Request{
		Symbol:   "BTCUSDT",
		Metrics:  []string{MetricOrderBook, MetricBasis},
		UseCache: false,
	})
	if err != nil {
		t.Fatalf("агрегация: %v", err)
	}

	if result.Metrics.OrderBook == nil || result.Metrics.Basis == nil {
		t.Fatal("запрошенные метрики должны собираться")
	}
	if result.Metrics.Funding != nil || result.Metrics.Liquidation != nil {
		t.Fatal("незапрошенные метрики не должны собираться")
	}
	if market.markPriceCalls.Load() == 0 {
		t.Fatal("базису нужна цена перпетуала")
	}
}

func TestEmptySymbolRejected(t *testing.T) {
	a := newTestAggregator(t, &fakeMarket{})

	if _, err := a.Aggregate(context.Background(), Request{}); err == nil {
		t.Fatal("пустой инструмент должен отклоняться")
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
