package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/convergd/internal/analysis/arbitrage"
	"github.com/skalibog/convergd/internal/analysis/basis"
	"github.com/skalibog/convergd/internal/analysis/convergence"
	"github.com/skalibog/convergd/internal/analysis/funding"
	"github.com/skalibog/convergd/internal/analysis/liquidation"
	"github.com/skalibog/convergd/internal/analysis/microstructure"
	"github.com/skalibog/convergd/internal/analysis/oianalysis"
	"github.com/skalibog/convergd/internal/analysis/orderbook"
	"github.com/skalibog/convergd/internal/analysis/tradeflow"
	"github.com/skalibog/convergd/internal/analysis/vwap"
	"github.com/skalibog/convergd/internal/cache"
	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/internal/exchange"
	"github.com/skalibog/convergd/internal/history"
	"github.com/skalibog/convergd/internal/storage"
	"github.com/skalibog/convergd/pkg/logger"
	"github.com/skalibog/convergd/pkg/models"
)

// Имена метрик, по которым агрегатор принимает выборочные запросы.
const (
	MetricOrderBook      = "order_book"
	MetricFunding        = "funding"
	MetricOpenInterest   = "open_interest"
	MetricBasis          = "basis"
	MetricTradeFlow      = "trade_flow"
	MetricVWAP           = "vwap"
	MetricMicrostructure = "microstructure"
	MetricLiquidation    = "liquidation"
	MetricArbitrage      = "arbitrage"
)

// AllMetrics порядок сборки результата
var AllMetrics = []string{
	MetricOrderBook,
	MetricFunding,
	MetricOpenInterest,
	MetricBasis,
	MetricTradeFlow,
	MetricVWAP,
	MetricMicrostructure,
	MetricLiquidation,
	MetricArbitrage,
}

// Request параметры одного запроса агрегации
type Request struct {
	Symbol     string
	Timeframes []string
	Metrics    []string // пустой список означает все метрики
	UseCache   bool
}

// Aggregator собирает метрики инструмента параллельно и сводит их в балл.
// Отказ одного калькулятора не прерывает остальные: метрика помечается
// недоступной, а балл считается по выжившему подмножеству.
type Aggregator struct {
	cfg     *config.Config
	market  exchange.MarketData
	cache   *cache.Cache
	store   *history.Store
	archive storage.Storage // nil когда хранилище выключено

	orderBook      *orderbook.Analyzer
	tradeFlow      *tradeflow.Analyzer
	funding        *funding.Analyzer
	basis          *basis.Analyzer
	openInterest   *oianalysis.Analyzer
	vwap           *vwap.Analyzer
	microstructure *microstructure.Analyzer
	liquidation    *liquidation.Analyzer
	arbitrage      *arbitrage.Analyzer
	engine         *convergence.Engine

	now func() time.Time
}

// New создает новый агрегатор
func New(cfg *config.Config, market exchange.MarketData, c *cache.Cache, store *history.Store, archive storage.Storage) *Aggregator {
	return &Aggregator{
		cfg:            cfg,
		market:         market,
		cache:          c,
		store:          store,
		archive:        archive,
		orderBook:      orderbook.NewAnalyzer(cfg.Analysis.OrderBook),
		tradeFlow:      tradeflow.NewAnalyzer(cfg.Analysis.TradeFlow),
		funding:        funding.NewAnalyzer(cfg.Analysis.Funding),
		basis:          basis.NewAnalyzer(cfg.Analysis.Basis),
		openInterest:   oianalysis.NewAnalyzer(cfg.Analysis.OpenInterest, store),
		vwap:           vwap.NewAnalyzer(cfg.Analysis.VWAP),
		microstructure: microstructure.NewAnalyzer(cfg.Analysis.Microstructure),
		liquidation:    liquidation.NewAnalyzer(cfg.Analysis.Liquidation),
		arbitrage:      arbitrage.NewAnalyzer(cfg.Analysis.Arbitrage),
		engine:         convergence.NewEngine(cfg.Analysis.Convergence),
		now:            time.Now,
	}
}

// Aggregate выполняет один цикл анализа инструмента
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*models.AggregationResult, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("не указан инструмент")
	}
	if len(req.Timeframes) == 0 {
		req.Timeframes = a.cfg.Trading.Timeframes
	}
	requested := requestedSet(req.Metrics)

	result := &models.AggregationResult{
		Symbol:    req.Symbol,
		RequestID: uuid.NewString(),
		Timestamp: a.now(),
		Failures:  make(map[string]*models.MetricError),
	}

	logger.Debug("запуск цикла агрегации",
		zap.String("symbol", req.Symbol),
		zap.String("request_id", result.RequestID))

	type outcome struct {
		metric string
		apply  func(*models.MetricSet)
		err    *models.MetricError
	}
	outcomes := make([]outcome, 0, len(AllMetrics))

	var g errgroup.Group
	if limit := a.cfg.Analysis.MaxParallel; limit > 0 {
		g.SetLimit(limit)
	}
	results := make(chan outcome, len(AllMetrics))

	run := func(metric string, collect func(context.Context) (func(*models.MetricSet), error)) {
		if !requested[metric] {
			return
		}
		g.Go(func() error {
			apply, err := collect(ctx)
			if err != nil {
				results <- outcome{metric: metric, err: models.ClassifyFetchError(metric, err)}
				return nil
			}
			results <- outcome{metric: metric, apply: apply}
			return nil
		})
	}

	run(MetricOrderBook, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectOrderBook(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.OrderBook = m }, nil
	})
	run(MetricFunding, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectFunding(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.Funding = m }, nil
	})
	run(MetricOpenInterest, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectOpenInterest(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.OpenInterest = m }, nil
	})
	run(MetricBasis, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectBasis(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.Basis = m }, nil
	})
	run(MetricTradeFlow, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectTradeFlow(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.TradeFlow = m }, nil
	})
	run(MetricVWAP, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectVWAP(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.VWAPByTimeframe = m }, nil
	})
	run(MetricMicrostructure, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectMicrostructure(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.Microstructure = m }, nil
	})
	run(MetricLiquidation, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectLiquidation(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.Liquidation = m }, nil
	})
	run(MetricArbitrage, func(ctx context.Context) (func(*models.MetricSet), error) {
		m, err := a.collectArbitrage(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(set *models.MetricSet) { set.Arbitrage = m }, nil
	})

	_ = g.Wait()
	close(results)
	for o := range results {
		outcomes = append(outcomes, o)
	}

	// Результат собирается детерминированно по имени метрики,
	// порядок завершения горутин на него не влияет
	for _, name := range AllMetrics {
		for _, o := range outcomes {
			if o.metric != name {
				continue
			}
			if o.err != nil {
				result.Failures[name] = o.err
				if o.err.Kind == models.ErrPersistenceFailure {
					logger.Error("отказ хранилища истории",
						zap.String("symbol", req.Symbol),
						zap.String("metric", name),
						zap.Error(o.err))
				} else {
					logger.Warn("метрика недоступна",
						zap.String("symbol", req.Symbol),
						zap.String("metric", name),
						zap.String("kind", string(o.err.Kind)),
						zap.Error(o.err))
				}
				continue
			}
			o.apply(&result.Metrics)
		}
	}

	result.Summary = a.engine.Score(req.Symbol, result.Timestamp, &result.Metrics)

	if a.archive != nil {
		if err := a.archive.SaveResult(ctx, result.Summary); err != nil {
			logger.Warn("не удалось сохранить результат в архив",
				zap.String("symbol", req.Symbol),
				zap.Error(err))
		}
	}

	logger.Info("цикл агрегации завершен",
		zap.String("symbol", req.Symbol),
		zap.Int("score", result.Summary.Score),
		zap.String("grade", result.Summary.Grade),
		zap.String("recommendation", result.Summary.Recommendation),
		zap.Int("failures", len(result.Failures)))

	return result, nil
}

func requestedSet(metrics []string) map[string]bool {
	set := make(map[string]bool, len(AllMetrics))
	if len(metrics) == 0 {
		for _, m := range AllMetrics {
			set[m] = true
		}
		return set
	}
	for _, m := range metrics {
		set[m] = true
	}
	return set
}

func (a *Aggregator) fetchTimeout() time.Duration {
	seconds := a.cfg.Analysis.FetchTimeoutSeconds
	if seconds <= 0 {
		seconds = 10
	}
	return time.Duration(seconds) * time.Second
}

func ttl(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
