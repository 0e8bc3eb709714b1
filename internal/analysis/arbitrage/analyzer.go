package arbitrage

import (
	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer монитор расхождения цены перпетуала с референсной площадкой
type Analyzer struct {
	cfg config.ArbitrageConfig
}

// NewAnalyzer создает новый арбитражный монитор
func NewAnalyzer(cfg config.ArbitrageConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze сравнивает цену перпетуала на основной площадке с референсной.
// Устойчивая премия означает давление на лонгов через финансирование,
// то есть медвежье давление на выравнивание, дисконт наоборот.
func (a *Analyzer) Analyze(primaryPrice, referencePrice float64) (*models.ArbitrageMetrics, error) {
	if primaryPrice <= 0 || referencePrice <= 0 {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"неположительная цена площадки", nil)
	}

	deviationPct := (primaryPrice - referencePrice) / referencePrice * 100

	metrics := &models.ArbitrageMetrics{
		PrimaryPrice:   primaryPrice,
		ReferencePrice: referencePrice,
		DeviationPct:   deviationPct,
		Status:         "neutral",
		Pressure:       "neutral",
		NetProfitPct:   abs(deviationPct) - 2*a.cfg.FeePct,
	}

	switch {
	case deviationPct > a.cfg.ThresholdPct:
		metrics.Status = "premium"
		metrics.Pressure = "bearish"
	case deviationPct < -a.cfg.ThresholdPct:
		metrics.Status = "discount"
		metrics.Pressure = "bullish"
	}

	// Возможность есть только когда спред переживает комиссии обеих ног
	metrics.ArbOpportunity = metrics.Status != "neutral" && metrics.NetProfitPct > 0

	return metrics, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
