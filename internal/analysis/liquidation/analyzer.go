package liquidation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Analyzer детектор каскадов принудительных закрытий позиций.
// Биржа не отдает ленту ликвидаций по REST, поэтому каскад
// восстанавливается по всплескам агрессивных сделок на ухудшающихся
// ценах в сочетании с резким падением открытого интереса.
type Analyzer struct {
	cfg config.LiquidationConfig
}

// burst серия агрессивных сделок одной стороны на ухудшающихся ценах
type burst struct {
	sellSide    bool
	start       time.Time
	end         time.Time
	notionalUSD float64
	trades      []*models.Trade
}

// NewAnalyzer создает новый детектор ликвидаций
func NewAnalyzer(cfg config.LiquidationConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze ищет всплески в ленте сделок. oiChangePct изменение OI за окно
// наблюдения, nil когда истории OI еще нет: без подтверждения падением OI
// всплеск считается импульсом, а не каскадом.
func (a *Analyzer) Analyze(trades []*models.Trade, oiChangePct *float64) (*models.LiquidationMetrics, error) {
	if len(trades) == 0 {
		return nil, models.NewMetricError(models.ErrInsufficientHistory,
			"пустая лента сделок", nil)
	}

	sorted := make([]*models.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	bursts := a.findBursts(sorted)

	metrics := &models.LiquidationMetrics{Direction: "neutral"}

	for _, b := range bursts {
		metrics.NotionalUSD += b.notionalUSD
		if b.sellSide {
			metrics.LongLiqUSD += b.notionalUSD
		} else {
			metrics.ShortLiqUSD += b.notionalUSD
		}
	}

	if metrics.ShortLiqUSD > 0 {
		metrics.Ratio = metrics.LongLiqUSD / metrics.ShortLiqUSD
	} else if metrics.LongLiqUSD > 0 {
		metrics.Ratio = math.Inf(1)
	}

	oiDropped := oiChangePct != nil && *oiChangePct < -a.cfg.OIDropThresholdPct
	if len(bursts) > 0 && oiDropped {
		metrics.CascadeDetected = true
		if metrics.LongLiqUSD > metrics.ShortLiqUSD {
			metrics.Direction = "long_squeeze_bearish"
		} else if metrics.ShortLiqUSD > metrics.LongLiqUSD {
			metrics.Direction = "short_squeeze_bullish"
		}
	}

	metrics.StopHuntZones = a.stopHuntZones(bursts)

	return metrics, nil
}

// findBursts выделяет серии из cascade_count и более сделок одной
// агрессивной стороны на монотонно ухудшающихся ценах, уложившиеся в
// окно cascade_window_seconds
func (a *Analyzer) findBursts(trades []*models.Trade) []burst {
	var bursts []burst
	window := time.Duration(a.cfg.CascadeWindowSeconds) * time.Second

	i := 0
	for i < len(trades) {
		run := []*models.Trade{trades[i]}
		sellSide := trades[i].IsBuyerMaker

		j := i + 1
		for j < len(trades) {
			t := trades[j]
			if t.IsBuyerMaker != sellSide {
				break
			}
			prev := run[len(run)-1]
			// Ухудшение цены: вниз при продавце-агрессоре, вверх при покупателе
			worsening := (sellSide && t.Price <= prev.Price) ||
				(!sellSide && t.Price >= prev.Price)
			if !worsening {
				break
			}
			if t.Timestamp.Sub(run[0].Timestamp) > window {
				break
			}
			run = append(run, t)
			j++
		}

		if len(run) >= a.cfg.CascadeCount {
			b := burst{
				sellSide: sellSide,
				start:    run[0].Timestamp,
				end:      run[len(run)-1].Timestamp,
				trades:   run,
			}
			for _, t := range run {
				b.notionalUSD += t.Price * t.Quantity
			}
			bursts = append(bursts, b)
		}

		if j > i+1 {
			i = j
		} else {
			i++
		}
	}

	return bursts
}

// stopHuntZones агрегирует объем всплесков по ценовым уровням, уровни с
// нотионалом ниже порога отбрасываются как шум
func (a *Analyzer) stopHuntZones(bursts []burst) []models.PriceZone {
	volumes := make(map[float64]float64)
	for _, b := range bursts {
		for _, t := range b.trades {
			zone := zonePrice(t.Price)
			volumes[zone] += t.Price * t.Quantity
		}
	}

	var zones []models.PriceZone
	for price, vol := range volumes {
		if vol < a.cfg.StopHuntFloorUSD {
			continue
		}
		zones = append(zones, models.PriceZone{Price: price, VolumeUSD: vol})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].VolumeUSD > zones[j].VolumeUSD })
	return zones
}

// zonePrice округляет цену до уровня с двумя значащими шагами,
// чтобы соседние сделки сливались в одну зону
func zonePrice(price float64) float64 {
	if price <= 0 {
		return 0
	}
	magnitude := math.Pow(10, math.Floor(math.Log10(price))-2)
	return math.Round(price/magnitude) * magnitude
}

// String для отладочных логов
func (b burst) String() string {
	side := "buy"
	if b.sellSide {
		side = "sell"
	}
	return fmt.Sprintf("%s burst %d trades %.0f USD", side, len(b.trades), b.notionalUSD)
}
