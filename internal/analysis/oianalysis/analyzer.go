package oianalysis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/internal/history"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer анализатор дивергенции открытого интереса и цены
type Analyzer struct {
	cfg   config.OpenInterestConfig
	store *history.Store
	now   func() time.Time
}

// NewAnalyzer создает новый анализатор открытого интереса
func NewAnalyzer(cfg config.OpenInterestConfig, store *history.Store) *Analyzer {
	return &Analyzer{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}
}

// Analyze записывает текущее наблюдение в историю и сравнивает OI с ценой
// на границе окна дивергенции. Классификация требует превышения обоих
// порогов строго, граничные значения остаются в категории neutral.
func (a *Analyzer) Analyze(symbol string, oi *models.OpenInterest, currentPrice float64) (*models.OIMetrics, error) {
	if oi == nil {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"нет данных открытого интереса", nil)
	}
	if currentPrice <= 0 {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"неположительная текущая цена", nil)
	}

	value, err := strconv.ParseFloat(oi.Value, 64)
	if err != nil {
		return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
			"некорректное значение открытого интереса", err)
	}

	now := a.now()
	currentUSD := value * currentPrice

	obs := models.OIObservation{
		Timestamp: now,
		OI:        currentUSD,
		Price:     currentPrice,
	}
	if err := a.store.Record(symbol, obs); err != nil {
		// Без пишущейся истории следующие циклы потеряют дивергенцию,
		// поэтому ошибка поднимается наружу, а не глотается
		return nil, models.NewMetricError(models.ErrPersistenceFailure,
			fmt.Sprintf("не удалось записать историю OI для %s", symbol), err)
	}

	metrics := &models.OIMetrics{
		CurrentUSD:     currentUSD,
		CurrentPrice:   currentPrice,
		DivergenceType: "neutral",
	}

	metrics.Change1hPct = a.changeSince(symbol, now, time.Hour, currentUSD)
	metrics.Change4hPct = a.changeSince(symbol, now, 4*time.Hour, currentUSD)
	metrics.Change24hPct = a.changeSince(symbol, now, 24*time.Hour, currentUSD)

	window := time.Duration(a.cfg.WindowHours) * time.Hour
	ref, ok := a.store.LookupAtOrBefore(symbol, now.Add(-window))
	if !ok {
		// Холодный старт: истории еще нет, дивергенция недоступна
		return metrics, nil
	}
	if ref.OI == 0 || ref.Price == 0 {
		return metrics, nil
	}

	oiChangePct := (currentUSD - ref.OI) / ref.OI * 100
	priceChangePct := (currentPrice - ref.Price) / ref.Price * 100
	metrics.WindowPct = &oiChangePct
	metrics.PriceChangePct = &priceChangePct
	metrics.DivergenceType = a.classify(oiChangePct, priceChangePct)

	return metrics, nil
}

// changeSince процентное изменение OI относительно наблюдения на границе
// интервала, nil если истории на такую глубину еще нет
func (a *Analyzer) changeSince(symbol string, now time.Time, age time.Duration, currentUSD float64) *float64 {
	ref, ok := a.store.LookupAtOrBefore(symbol, now.Add(-age))
	if !ok || ref.OI == 0 {
		return nil
	}
	pct := (currentUSD - ref.OI) / ref.OI * 100
	return &pct
}

func (a *Analyzer) classify(oiChangePct, priceChangePct float64) string {
	oiUp := oiChangePct > a.cfg.OIThresholdPct
	oiDown := oiChangePct < -a.cfg.OIThresholdPct
	priceUp := priceChangePct > a.cfg.PriceThresholdPct
	priceDown := priceChangePct < -a.cfg.PriceThresholdPct

	switch {
	case oiUp && priceUp:
		// Новые деньги подтверждают рост
		return "strong_bullish"
	case oiUp && priceDown:
		// Новые деньги давят цену вниз
		return "strong_bearish"
	case oiDown && priceUp:
		// Рост на закрытии шортов, топлива мало
		return "weak_bullish"
	case oiDown && priceDown:
		// Падение на закрытии лонгов
		return "weak_bearish"
	default:
		return "neutral"
	}
}
