package vwap

import (
	"fmt"
	"math"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer анализатор отклонения цены от VWAP
type Analyzer struct {
	cfg config.VWAPConfig
}

// NewAnalyzer создает новый анализатор VWAP
func NewAnalyzer(cfg config.VWAPConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze считает VWAP по типичной цене (H+L+C)/3 за весь набор свечей и
// z-score отклонения закрытия от VWAP относительно разброса закрытий
func (a *Analyzer) Analyze(timeframe string, candles []*models.Candle) (*models.VWAPMetrics, error) {
	if len(candles) < 2 {
		return nil, models.NewMetricError(models.ErrInsufficientHistory,
			fmt.Sprintf("недостаточно свечей для VWAP %s: %d", timeframe, len(candles)), nil)
	}

	var pvSum, volSum float64
	closes := make([]float64, len(candles))
	for i, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pvSum += typical * c.Volume
		volSum += c.Volume
		closes[i] = c.Close
	}
	if volSum == 0 {
		return nil, models.NewMetricError(models.ErrInsufficientHistory,
			fmt.Sprintf("нулевой объем за период VWAP %s", timeframe), nil)
	}

	vwapValue := pvSum / volSum
	currentPrice := candles[len(candles)-1].Close
	deviationPct := (currentPrice - vwapValue) / vwapValue * 100

	var mean float64
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))

	var variance float64
	for _, c := range closes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(closes))
	stddev := math.Sqrt(variance)

	var zScore float64
	if stddev > 0 {
		zScore = (currentPrice - vwapValue) / stddev
	}

	volumeRatio := 1.0
	if periods := a.cfg.AvgVolumePeriods; len(candles) > periods && periods > 0 {
		var baseVolume float64
		for _, c := range candles[len(candles)-1-periods : len(candles)-1] {
			baseVolume += c.Volume
		}
		avg := baseVolume / float64(periods)
		if avg > 0 {
			volumeRatio = candles[len(candles)-1].Volume / avg
		}
	}

	return &models.VWAPMetrics{
		Timeframe:      timeframe,
		VWAP:           vwapValue,
		CurrentPrice:   currentPrice,
		DeviationPct:   deviationPct,
		ZScore:         zScore,
		DeviationLevel: a.classify(zScore),
		VolumeRatio:    volumeRatio,
	}, nil
}

func (a *Analyzer) classify(zScore float64) string {
	abs := math.Abs(zScore)
	switch {
	case abs > a.cfg.ExtremeZ:
		return "extreme"
	case abs > a.cfg.HighZ:
		return "high"
	case abs > a.cfg.ModerateZ:
		return "moderate"
	default:
		return "low"
	}
}
