package orderbook

import (
	"fmt"
	"strconv"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer анализатор дисбаланса стакана заявок
type Analyzer struct {
	cfg config.OrderBookConfig
}

// NewAnalyzer создает новый анализатор стакана
func NewAnalyzer(cfg config.OrderBookConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze считает дисбаланс объема bid/ask по верхним уровням стакана.
// Дисбаланс нормирован в [-1, 1]: положительный означает перевес покупателей.
func (a *Analyzer) Analyze(book *models.OrderBook) (*models.OrderBookMetrics, error) {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"пустой стакан", nil)
	}

	depth := a.cfg.Depth
	if depth <= 0 || depth > len(book.Bids) {
		depth = len(book.Bids)
	}
	askDepth := depth
	if askDepth > len(book.Asks) {
		askDepth = len(book.Asks)
	}

	var bidVolume, askVolume float64
	for i := 0; i < depth; i++ {
		amount, err := strconv.ParseFloat(book.Bids[i].Amount, 64)
		if err != nil {
			return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
				fmt.Sprintf("некорректный объем bid на уровне %d", i), err)
		}
		bidVolume += amount
	}
	for i := 0; i < askDepth; i++ {
		amount, err := strconv.ParseFloat(book.Asks[i].Amount, 64)
		if err != nil {
			return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
				fmt.Sprintf("некорректный объем ask на уровне %d", i), err)
		}
		askVolume += amount
	}

	total := bidVolume + askVolume
	if total == 0 {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"нулевой суммарный объем стакана", nil)
	}

	imbalance := (bidVolume - askVolume) / total

	topBid, err := strconv.ParseFloat(book.Bids[0].Price, 64)
	if err != nil {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"некорректная цена лучшего bid", err)
	}
	topAsk, err := strconv.ParseFloat(book.Asks[0].Price, 64)
	if err != nil {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"некорректная цена лучшего ask", err)
	}
	if topBid >= topAsk {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			fmt.Sprintf("пересекающийся стакан: bid %.8f >= ask %.8f", topBid, topAsk), nil)
	}

	spread := topAsk - topBid
	mid := (topAsk + topBid) / 2
	spreadBps := spread / mid * 10000

	return &models.OrderBookMetrics{
		Imbalance:     imbalance,
		Strength:      a.classify(imbalance),
		TopBid:        topBid,
		TopAsk:        topAsk,
		Spread:        spread,
		SpreadBps:     spreadBps,
		BidVolume:     bidVolume,
		AskVolume:     askVolume,
		DepthAnalyzed: depth,
	}, nil
}

// classify бакетизирует дисбаланс по порогам конфигурации
func (a *Analyzer) classify(imbalance float64) string {
	abs := imbalance
	if abs < 0 {
		abs = -abs
	}

	var side string
	if imbalance > 0 {
		side = "buy"
	} else {
		side = "sell"
	}

	switch {
	case abs > a.cfg.VeryStrongThreshold:
		return "very_strong_" + side
	case abs > a.cfg.StrongThreshold:
		return "strong_" + side
	case abs > a.cfg.NeutralThreshold:
		return "moderate_" + side
	default:
		return "neutral"
	}
}
