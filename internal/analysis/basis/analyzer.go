package basis

import (
	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer анализатор базиса перпетуала к спотовому референсу
type Analyzer struct {
	cfg config.BasisConfig
}

// NewAnalyzer создает новый анализатор базиса
func NewAnalyzer(cfg config.BasisConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze считает процентный базис (перпетуал минус спот) и бакетизирует
// его по порогам конфигурации
func (a *Analyzer) Analyze(spotPrice, perpPrice float64) (*models.BasisMetrics, error) {
	if spotPrice <= 0 || perpPrice <= 0 {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"неположительная цена спота или перпетуала", nil)
	}

	basisPct := (perpPrice - spotPrice) / spotPrice * 100

	return &models.BasisMetrics{
		SpotPrice:      spotPrice,
		PerpPrice:      perpPrice,
		BasisPct:       basisPct,
		Strength:       a.classify(basisPct),
		ArbOpportunity: basisPct > a.cfg.ExtremeThresholdPct || basisPct < -a.cfg.ExtremeThresholdPct,
	}, nil
}

func (a *Analyzer) classify(basisPct float64) string {
	switch {
	case basisPct > a.cfg.ExtremeThresholdPct:
		return "extreme_premium"
	case basisPct > a.cfg.NeutralThresholdPct:
		return "premium"
	case basisPct < -a.cfg.ExtremeThresholdPct:
		return "extreme_discount"
	case basisPct < -a.cfg.NeutralThresholdPct:
		return "discount"
	default:
		return "neutral"
	}
}
