package microstructure

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// Снимков нужно хотя бы три, чтобы увидеть появление-исчезновение-возврат.
const minSnapshots = 3

type level struct {
	price float64
	size  float64
}

type snapshot struct {
	ts   time.Time
	bids []level
	asks []level
}

// Analyzer анализатор микроструктуры стакана. Накапливает снимки стакана
// между циклами и ищет в них мерцающие стенки и айсберг-ордера.
type Analyzer struct {
	cfg config.MicrostructureConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string][]snapshot
}

// NewAnalyzer создает новый анализатор микроструктуры
func NewAnalyzer(cfg config.MicrostructureConfig) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string][]snapshot),
	}
}

// Observe добавляет снимок стакана в скользящее окно инструмента
func (a *Analyzer) Observe(symbol string, book *models.OrderBook) error {
	if book == nil {
		return models.NewMetricError(models.ErrUpstreamMalformedData,
			"пустой снимок стакана", nil)
	}

	snap := snapshot{ts: a.now()}
	var err error
	if snap.bids, err = parseLevels(book.Bids); err != nil {
		return err
	}
	if snap.asks, err = parseLevels(book.Asks); err != nil {
		return err
	}

	cutoff := snap.ts.Add(-time.Duration(a.cfg.WindowSeconds) * time.Second)

	a.mu.Lock()
	defer a.mu.Unlock()

	window := append(a.windows[symbol], snap)
	for len(window) > 0 && window[0].ts.Before(cutoff) {
		window = window[1:]
	}
	a.windows[symbol] = window
	return nil
}

// Analyze оценивает накопленное окно снимков инструмента
func (a *Analyzer) Analyze(symbol string) (*models.MicrostructureMetrics, error) {
	a.mu.Lock()
	window := make([]snapshot, len(a.windows[symbol]))
	copy(window, a.windows[symbol])
	a.mu.Unlock()

	if len(window) < minSnapshots {
		return nil, models.NewMetricError(models.ErrInsufficientHistory,
			fmt.Sprintf("накоплено %d снимков стакана, нужно %d", len(window), minSnapshots), nil)
	}

	metrics := &models.MicrostructureMetrics{
		SnapshotsAnalyzed: len(window),
	}

	metrics.FakeWalls = append(
		a.findFakeWalls(window, "bid"),
		a.findFakeWalls(window, "ask")...)
	metrics.Icebergs = append(
		a.findIcebergs(window, "bid"),
		a.findIcebergs(window, "ask")...)
	metrics.BidWall = a.wallDynamics(window, "bid")
	metrics.AskWall = a.wallDynamics(window, "ask")

	switch {
	case len(window) >= 10:
		metrics.Confidence = "high"
	case len(window) >= 5:
		metrics.Confidence = "medium"
	default:
		metrics.Confidence = "low"
	}

	return metrics, nil
}

// findFakeWalls ищет крупные уровни, которые исчезают и возвращаются в
// пределах мерцающего интервала. Настоящая стенка стоит на месте,
// спуфинговая мигает.
func (a *Analyzer) findFakeWalls(window []snapshot, side string) []models.FakeWall {
	type track struct {
		present     bool
		lastSeen    time.Time
		appearances int
		sizeSum     float64
		sizeCount   int
	}
	tracks := make(map[float64]*track)

	flickerGap := time.Duration(a.cfg.FlickerGapSeconds * float64(time.Second))

	for _, snap := range window {
		levels := sideLevels(snap, side)
		seen := make(map[float64]bool)
		for _, lv := range levels {
			if lv.size < a.cfg.MinWallSize {
				continue
			}
			seen[lv.price] = true
			t := tracks[lv.price]
			if t == nil {
				t = &track{}
				tracks[lv.price] = t
			}
			if !t.present {
				// Повторное появление после короткого пропадания и есть мерцание
				if t.appearances == 0 || snap.ts.Sub(t.lastSeen) <= flickerGap {
					t.appearances++
				}
			}
			t.present = true
			t.lastSeen = snap.ts
			t.sizeSum += lv.size
			t.sizeCount++
		}
		for price, t := range tracks {
			if !seen[price] {
				t.present = false
			}
		}
	}

	var walls []models.FakeWall
	for price, t := range tracks {
		if t.appearances < 2 {
			continue
		}
		confidence := "medium"
		if t.appearances >= 3 {
			confidence = "high"
		}
		walls = append(walls, models.FakeWall{
			Side:        side,
			Price:       price,
			AvgSize:     t.sizeSum / float64(t.sizeCount),
			Appearances: t.appearances,
			Confidence:  confidence,
		})
	}
	sort.Slice(walls, func(i, j int) bool { return walls[i].AvgSize > walls[j].AvgSize })
	return walls
}

// findIcebergs ищет уровни, объем которых многократно восстанавливается
// после просадки: видимая часть съедается, но заявка пополняется
func (a *Analyzer) findIcebergs(window []snapshot, side string) []models.IcebergLevel {
	type track struct {
		lastSize  float64
		refills   int
		sizeSum   float64
		sizeCount int
	}
	tracks := make(map[float64]*track)

	for _, snap := range window {
		for _, lv := range sideLevels(snap, side) {
			t := tracks[lv.price]
			if t == nil {
				tracks[lv.price] = &track{lastSize: lv.size, sizeSum: lv.size, sizeCount: 1}
				continue
			}
			if t.lastSize > 0 && lv.size >= t.lastSize*a.cfg.RefillRatio {
				t.refills++
			}
			t.lastSize = lv.size
			t.sizeSum += lv.size
			t.sizeCount++
		}
	}

	var icebergs []models.IcebergLevel
	for price, t := range tracks {
		if t.refills < a.cfg.RefillThreshold {
			continue
		}
		icebergs = append(icebergs, models.IcebergLevel{
			Side:    side,
			Price:   price,
			Refills: t.refills,
			AvgSize: t.sizeSum / float64(t.sizeCount),
		})
	}
	sort.Slice(icebergs, func(i, j int) bool { return icebergs[i].Refills > icebergs[j].Refills })
	return icebergs
}

// wallDynamics сравнивает крупнейшую стенку первого и последнего снимка
func (a *Analyzer) wallDynamics(window []snapshot, side string) *models.WallDynamics {
	first := largestWall(sideLevels(window[0], side))
	last := largestWall(sideLevels(window[len(window)-1], side))
	if first == nil || last == nil {
		return nil
	}

	movementPct := (last.price - first.price) / first.price * 100

	signal := "holding"
	switch {
	case side == "bid" && movementPct > 0, side == "ask" && movementPct < 0:
		signal = "advancing"
	case side == "bid" && movementPct < 0, side == "ask" && movementPct > 0:
		signal = "retreating"
	}

	return &models.WallDynamics{
		Price:       last.price,
		Size:        last.size,
		MovementPct: movementPct,
		Signal:      signal,
	}
}

func largestWall(levels []level) *level {
	var best *level
	for i := range levels {
		if best == nil || levels[i].size > best.size {
			best = &levels[i]
		}
	}
	return best
}

func sideLevels(snap snapshot, side string) []level {
	if side == "bid" {
		return snap.bids
	}
	return snap.asks
}

func parseLevels(raw []models.OrderBookLevel) ([]level, error) {
	levels := make([]level, 0, len(raw))
	for _, l := range raw {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
				"некорректная цена уровня стакана", err)
		}
		size, err := strconv.ParseFloat(l.Amount, 64)
		if err != nil {
			return nil, models.NewMetricError(models.ErrUpstreamMalformedData,
				"некорректный объем уровня стакана", err)
		}
		levels = append(levels, level{price: price, size: size})
	}
	return levels, nil
}
