package convergence

import (
	"fmt"
	"strings"
	"time"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Имена компонентов сводного балла в порядке сборки результата.
const (
	componentOrderBook    = "order_book"
	componentTradeFlow    = "trade_flow"
	componentVWAP         = "vwap"
	componentFundingBasis = "funding_basis"
	componentOpenInterest = "open_interest"
	componentVolume       = "volume"
)

// Engine сводит метрики независимых сигналов в один балл от 0 до 100.
// Балл растет, когда сигналы согласны по направлению, расхождение
// финансирования с базисом штрафуется, а не игнорируется.
type Engine struct {
	cfg config.ConvergenceConfig
}

// NewEngine создает новый движок сведения сигналов
func NewEngine(cfg config.ConvergenceConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score всегда возвращает результат: отсутствующие метрики дают нулевой
// вклад и попадают в список недоступных, балл считается по выжившим
func (e *Engine) Score(symbol string, now time.Time, set *models.MetricSet) *models.ConvergenceResult {
	result := &models.ConvergenceResult{
		Symbol:         symbol,
		Timestamp:      now,
		Recommendation: "no_trade_low_conviction",
	}
	if set == nil {
		set = &models.MetricSet{}
	}

	raw := 0
	add := func(component string, points int, direction string) {
		raw += points
		result.Contributions = append(result.Contributions, models.Contribution{
			Component: component,
			Points:    points,
			Direction: direction,
		})
		if points > 0 {
			result.AlignedSignals = append(result.AlignedSignals, component)
		} else if points < 0 {
			result.ConflictingSignals = append(result.ConflictingSignals, component)
		}
	}
	unavailable := func(component string) {
		result.Unavailable = append(result.Unavailable, component)
	}

	// Стакан: сильный дисбаланс засчитывается, нейтральный дает ноль
	if ob := set.OrderBook; ob != nil {
		if strings.HasPrefix(ob.Strength, "strong_") || strings.HasPrefix(ob.Strength, "very_strong_") {
			add(componentOrderBook, e.cfg.OrderBookWeight, sideDirection(ob.Imbalance))
		}
	} else {
		unavailable(componentOrderBook)
	}

	// Поток сделок
	if tf := set.TradeFlow; tf != nil {
		if strings.HasPrefix(tf.Strength, "strong_") {
			add(componentTradeFlow, e.cfg.TradeFlowWeight, sideDirection(tf.Imbalance))
		}
	} else {
		unavailable(componentTradeFlow)
	}

	// VWAP: строгое единогласие всех таймфреймов, частичное согласие
	// не засчитывается вовсе
	if len(set.VWAPByTimeframe) >= 2 {
		if dir, ok := vwapUnanimity(set.VWAPByTimeframe); ok {
			add(componentVWAP, e.cfg.VWAPWeight, dir)
		}
	} else {
		unavailable(componentVWAP)
	}

	// Финансирование и базис оцениваются парой: совпадение экстремумов
	// подтверждает сигнал, противоречие выдает ложное чтение
	if set.Funding != nil && set.Basis != nil {
		basisLeaning := set.Basis.Strength != "neutral"
		basisExtreme := strings.HasPrefix(set.Basis.Strength, "extreme_")
		sameDirection := (set.Funding.AnnualizedPct > 0) == (set.Basis.BasisPct > 0)
		switch {
		case set.Funding.IsExtreme && basisExtreme && sameDirection:
			add(componentFundingBasis, e.cfg.FundingBasisBonus, sideDirection(set.Funding.AnnualizedPct))
		case set.Funding.IsExtreme && basisLeaning && !sameDirection:
			// Расхождение похоже на ложное чтение и штрафуется,
			// а не просто не вознаграждается
			add(componentFundingBasis, -e.cfg.FundingBasisPenalty, "neutral")
		}
	} else {
		unavailable(componentFundingBasis)
	}

	// Открытый интерес: сильная дивергенция весит полный вес,
	// слабая уменьшенный
	if oi := set.OpenInterest; oi != nil {
		switch {
		case strings.HasPrefix(oi.DivergenceType, "strong_"):
			add(componentOpenInterest, e.cfg.OIWeightStrong, divergenceDirection(oi.DivergenceType))
		case strings.HasPrefix(oi.DivergenceType, "weak_"):
			add(componentOpenInterest, e.cfg.OIWeightWeak, divergenceDirection(oi.DivergenceType))
		}
	} else {
		unavailable(componentOpenInterest)
	}

	// Тонкий объем режет достижимый балл независимо от прочих сигналов
	if tf := set.TradeFlow; tf != nil && tf.VolumeRatio < e.cfg.LowVolumeRatio {
		add(componentVolume, -e.cfg.VolumePenalty, "neutral")
	}

	result.Score = clamp(raw, 0, 100)
	result.Grade = e.grade(result.Score)
	result.Recommendation = e.recommend(result.Grade, result.Contributions)
	result.Reasoning = e.reasoning(result, raw)
	result.CurrentPrice = currentPrice(set)

	return result
}

// grade ступенчатая функция балла, границы включительные
func (e *Engine) grade(score int) string {
	switch {
	case score >= e.cfg.APlusThreshold:
		return "A+"
	case score >= e.cfg.AThreshold:
		return "A"
	case score >= e.cfg.BThreshold:
		return "B"
	default:
		return "C"
	}
}

// recommend выводит рекомендацию из грейда и направленного большинства
// среди положительных вкладов. Равенство быков и медведей дает
// нейтральную рекомендацию независимо от грейда.
func (e *Engine) recommend(grade string, contributions []models.Contribution) string {
	var bulls, bears int
	for _, c := range contributions {
		if c.Points <= 0 {
			continue
		}
		switch c.Direction {
		case "bullish":
			bulls++
		case "bearish":
			bears++
		}
	}

	if bulls == bears {
		if grade == "A+" || grade == "A" || grade == "B" {
			return "neutral_mixed_signals"
		}
		return "no_trade_low_conviction"
	}

	long := bulls > bears
	switch grade {
	case "A+":
		if long {
			return "high_conviction_long"
		}
		return "high_conviction_short"
	case "A":
		if long {
			return "moderate_long"
		}
		return "moderate_short"
	case "B":
		return "neutral_mixed_signals"
	default:
		return "no_trade_low_conviction"
	}
}

func (e *Engine) reasoning(result *models.ConvergenceResult, raw int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "балл %d (до ограничения %d), грейд %s", result.Score, raw, result.Grade)
	if len(result.AlignedSignals) > 0 {
		fmt.Fprintf(&sb, "; согласны: %s", strings.Join(result.AlignedSignals, ", "))
	}
	if len(result.ConflictingSignals) > 0 {
		fmt.Fprintf(&sb, "; противоречат: %s", strings.Join(result.ConflictingSignals, ", "))
	}
	if len(result.Unavailable) > 0 {
		fmt.Fprintf(&sb, "; недоступны: %s", strings.Join(result.Unavailable, ", "))
	}
	return sb.String()
}

// vwapUnanimity проверяет, что все таймфреймы отклонены в одну сторону
// на уровне high или extreme
func vwapUnanimity(metrics []models.VWAPMetrics) (string, bool) {
	dir := ""
	for _, m := range metrics {
		if m.DeviationLevel != "high" && m.DeviationLevel != "extreme" {
			return "", false
		}
		d := sideDirection(m.DeviationPct)
		if d == "neutral" {
			return "", false
		}
		if dir == "" {
			dir = d
		} else if dir != d {
			return "", false
		}
	}
	return dir, dir != ""
}

func divergenceDirection(divergenceType string) string {
	if strings.HasSuffix(divergenceType, "_bullish") {
		return "bullish"
	}
	if strings.HasSuffix(divergenceType, "_bearish") {
		return "bearish"
	}
	return "neutral"
}

func sideDirection(v float64) string {
	switch {
	case v > 0:
		return "bullish"
	case v < 0:
		return "bearish"
	default:
		return "neutral"
	}
}

func currentPrice(set *models.MetricSet) float64 {
	switch {
	case len(set.VWAPByTimeframe) > 0:
		return set.VWAPByTimeframe[0].CurrentPrice
	case set.OpenInterest != nil:
		return set.OpenInterest.CurrentPrice
	case set.Basis != nil:
		return set.Basis.PerpPrice
	case set.OrderBook != nil:
		return (set.OrderBook.TopBid + set.OrderBook.TopAsk) / 2
	default:
		return 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
