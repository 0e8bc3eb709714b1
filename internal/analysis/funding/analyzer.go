package funding

import (
	"strconv"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Периодов финансирования в году при 8-часовом цикле: 3 * 365.
const periodsPerYear = 1095

// Analyzer анализатор ставки финансирования перпетуала
type Analyzer struct {
	cfg config.FundingConfig
}

// NewAnalyzer создает новый анализатор финансирования
func NewAnalyzer(cfg config.FundingConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze аннуализирует текущую ставку и классифицирует настроение рынка.
// history может быть пустой, тогда среднее и тренд не заполняются.
func (a *Analyzer) Analyze(current *models.FundingRate, history []*models.FundingRate) (*models.FundingMetrics, error) {
	if current == nil {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"нет текущей ставки финансирования", nil)
	}

	rate, err := strconv.ParseFloat(current.Rate, 64)
	if err != nil {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"некорректная ставка финансирования", err)
	}

	annualized := rate * periodsPerYear * 100

	metrics := &models.FundingMetrics{
		Rate8h:        rate,
		AnnualizedPct: annualized,
		Sentiment:     a.classify(annualized),
		IsExtreme:     annualized > a.cfg.ExtremeThresholdPct || annualized < -a.cfg.ExtremeThresholdPct,
		Trend:         "stable",
	}

	if len(history) > 0 {
		var sum float64
		rates := make([]float64, 0, len(history))
		for _, h := range history {
			v, err := strconv.ParseFloat(h.Rate, 64)
			if err != nil {
				continue
			}
			rates = append(rates, v)
			sum += v
		}
		if len(rates) > 0 {
			avg := sum / float64(len(rates)) * periodsPerYear * 100
			metrics.HistoricalAvg = &avg
			metrics.Trend = trend(rates)
		}
	}

	return metrics, nil
}

// classify бакетизирует аннуализированную ставку в проценты годовых
func (a *Analyzer) classify(annualizedPct float64) string {
	switch {
	case annualizedPct > a.cfg.ExtremeThresholdPct:
		return "extreme_bullish"
	case annualizedPct > a.cfg.SentimentThresholdPct:
		return "bullish"
	case annualizedPct < -a.cfg.ExtremeThresholdPct:
		return "extreme_bearish"
	case annualizedPct < -a.cfg.SentimentThresholdPct:
		return "bearish"
	default:
		return "neutral"
	}
}

// trend определяет направление по трем последним ставкам: монотонный рост
// означает increasing, монотонное падение decreasing, иначе stable
func trend(rates []float64) string {
	if len(rates) < 3 {
		return "stable"
	}
	last := rates[len(rates)-3:]
	if last[0] < last[1] && last[1] < last[2] {
		return "increasing"
	}
	if last[0] > last[1] && last[1] > last[2] {
		return "decreasing"
	}
	return "stable"
}
