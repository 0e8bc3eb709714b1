package orderbook

import (
	"fmt"
	"testing"
	"time"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

func testConfig() config.OrderBookConfig {
	return config.OrderBookConfig{
		Depth:               10,
		StrongThreshold:     0.4,
		VeryStrongThreshold: 0.6,
		NeutralThreshold:    0.2,
	}
}

// makeBook строит стакан с равными по объему уровнями на каждой стороне
func makeBook(bidTotal, askTotal float64, levels int) *models.OrderBook {
	book := &models.OrderBook{
		Symbol:    "BTCUSDT",
		Timestamp: time.Now(),
	}
	for i := 0; i < levels; i++ {
		book.Bids = append(book.Bids, models.OrderBookLevel{
			Price:  fmt.Sprintf("%.2f", 50000.0-float64(i)),
			Amount: fmt.Sprintf("%.4f", bidTotal/float64(levels)),
		})
		book.Asks = append(book.Asks, models.OrderBookLevel{
			Price:  fmt.Sprintf("%.2f", 50001.0+float64(i)),
			Amount: fmt.Sprintf("%.4f", askTotal/float64(levels)),
		})
	}
	return book
}

func TestImbalanceStrongBuy(t *testing.T) {
	a := NewAnalyzer(testConfig())

	// 120 против 40 на глубине 10 дает (120-40)/160 = 0.5
	m, err := a.Analyze(makeBook(120, 40, 10))
	if err != nil {
		t.Fatalf("анализ стакана: %v", err)
	}

	if m.Imbalance < 0.499 || m.Imbalance > 0.501 {
		t.Fatalf("дисбаланс %.4f, ожидалось 0.5", m.Imbalance)
	}
	if m.Strength != "strong_buy" {
		t.Fatalf("классификация %q, ожидалось strong_buy", m.Strength)
	}
}

func TestImbalanceBounds(t *testing.T) {
	a := NewAnalyzer(testConfig())

	cases := []struct {
		bid, ask float64
	}{
		{1, 1000000},
		{1000000, 1},
		{50, 50},
		{0.0001, 0.0001},
	}
	for _, tc := range cases {
		m, err := a.Analyze(makeBook(tc.bid, tc.ask, 10))
		if err != nil {
			t.Fatalf("анализ стакана %v/%v: %v", tc.bid, tc.ask, err)
		}
		if m.Imbalance < -1 || m.Imbalance > 1 {
			t.Fatalf("дисбаланс %v вне [-1, 1] для %v/%v", m.Imbalance, tc.bid, tc.ask)
		}
	}
}

func TestEqualVolumesAreNeutral(t *testing.T) {
	a := NewAnalyzer(testConfig())

	m, err := a.Analyze(makeBook(80, 80, 10))
	if err != nil {
		t.Fatalf("анализ стакана: %v", err)
	}
	if m.Imbalance != 0 {
		t.Fatalf("дисбаланс %v при равных объемах, ожидался ровно 0", m.Imbalance)
	}
	if m.Strength != "neutral" {
		t.Fatalf("классификация %q, ожидалось neutral", m.Strength)
	}
}

func TestVeryStrongSell(t *testing.T) {
	a := NewAnalyzer(testConfig())

	// (10-90)/100 = -0.8, сильнее порога 0.6
	m, err := a.Analyze(makeBook(10, 90, 10))
	if err != nil {
		t.Fatalf("анализ стакана: %v", err)
	}
	if m.Strength != "very_strong_sell" {
		t.Fatalf("классификация %q, ожидалось very_strong_sell", m.Strength)
	}
}

func TestSpreadMetrics(t *testing.T) {
	a := NewAnalyzer(testConfig())

	m, err := a.Analyze(makeBook(50, 50, 10))
	if err != nil {
		t.Fatalf("анализ стакана: %v", err)
	}
	if m.TopBid != 50000 || m.TopAsk != 50001 {
		t.Fatalf("лучшие цены %v/%v, ожидались 50000/50001", m.TopBid, m.TopAsk)
	}
	if m.Spread != 1 {
		t.Fatalf("спред %v, ожидался 1", m.Spread)
	}
	if m.SpreadBps < 0.19 || m.SpreadBps > 0.21 {
		t.Fatalf("спред %v bps, ожидалось около 0.2", m.SpreadBps)
	}
}

func TestCrossedBookRejected(t *testing.T) {
	a := NewAnalyzer(testConfig())

	book := makeBook(50, 50, 2)
	book.Asks[0].Price = "49999.00"

	_, err := a.Analyze(book)
	var me *models.MetricError
	if err == nil {
		t.Fatal("пересекающийся стакан должен отклоняться")
	}
	if !asMetricError(err, &me) || me.Kind != models.ErrUpstreamMalformedData {
		t.Fatalf("ожидалась ошибка malformed data, получено %v", err)
	}
}

func TestEmptyBookRejected(t *testing.T) {
	a := NewAnalyzer(testConfig())

	if _, err := a.Analyze(&models.OrderBook{Symbol: "BTCUSDT"}); err == nil {
		t.Fatal("пустой стакан должен отклоняться")
	}
	if _, err := a.Analyze(nil); err == nil {
		t.Fatal("nil стакан должен отклоняться")
	}
}

func TestMalformedAmountRejected(t *testing.T) {
	a := NewAnalyzer(testConfig())

	book := makeBook(50, 50, 2)
	book.Bids[1].Amount = "мусор"

	if _, err := a.Analyze(book); err == nil {
		t.Fatal("нечисловой объем должен отклоняться")
	}
}

func asMetricError(err error, target **models.MetricError) bool {
	me, ok := err.(*models.MetricError)
	if ok {
		*target = me
	}
	return ok
}
