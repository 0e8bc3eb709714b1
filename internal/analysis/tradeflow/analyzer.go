package tradeflow

import (
	"fmt"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer анализатор агрессии потока сделок по свечам
type Analyzer struct {
	cfg config.TradeFlowConfig
}

// NewAnalyzer создает новый анализатор потока сделок
func NewAnalyzer(cfg config.TradeFlowConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze оценивает направленное давление: изменение цены за окно,
// взвешенное отношением объема окна к среднему объему. Результат
// ограничен диапазоном [-1, 1].
func (a *Analyzer) Analyze(candles []*models.Candle) (*models.TradeFlowMetrics, error) {
	need := a.cfg.AvgVolumePeriods + a.cfg.LookbackCandles
	if len(candles) < need {
		return nil, models.NewMetricError(models.ErrInsufficientHistory,
			fmt.Sprintf("нужно %d свечей, получено %d", need, len(candles)), nil)
	}

	recent := candles[len(candles)-a.cfg.LookbackCandles:]
	base := candles[len(candles)-need : len(candles)-a.cfg.LookbackCandles]

	var baseVolume float64
	for _, c := range base {
		baseVolume += c.Volume
	}
	avgVolume := baseVolume / float64(len(base))
	if avgVolume == 0 {
		return nil, models.NewMetricError(models.ErrInsufficientHistory,
			"нулевой средний объем за базовый период", nil)
	}

	var windowVolume float64
	for _, c := range recent {
		windowVolume += c.Volume
	}
	volumeRatio := windowVolume / float64(len(recent)) / avgVolume

	open := recent[0].Open
	closePrice := recent[len(recent)-1].Close
	if open == 0 {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"нулевая цена открытия окна", nil)
	}
	priceChangePct := (closePrice - open) / open * 100

	imbalance := priceChangePct * volumeRatio
	if imbalance > 1 {
		imbalance = 1
	}
	if imbalance < -1 {
		imbalance = -1
	}

	return &models.TradeFlowMetrics{
		Imbalance:      imbalance,
		Strength:       a.classify(imbalance),
		PriceChangePct: priceChangePct,
		VolumeRatio:    volumeRatio,
	}, nil
}

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
	case abs > a.cfg.StrongThreshold:
		return "strong_" + side
	case abs > a.cfg.NeutralThreshold:
		return "moderate_" + side
	default:
		return "neutral"
	}
}
