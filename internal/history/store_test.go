package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skalibog/convergd/pkg/models"
)

// Часы фиксируются, чтобы отсечка по возрасту не съедала тестовые записи.
var testNow = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oi_history.json")
	s, err := New(path, 24*time.Hour)
	if err != nil {
		t.Fatalf("создание хранилища: %v", err)
	}
	s.now = func() time.Time { return testNow }
	return s
}

func TestColdStart(t *testing.T) {
	s := newTestStore(t)

	// Пустая история не ошибка, просто нет наблюдений
	if _, ok := s.LookupAtOrBefore("BTCUSDT", time.Now()); ok {
		t.Fatal("пустое хранилище не должно ничего находить")
	}
	if s.Len("BTCUSDT") != 0 {
		t.Fatal("пустое хранилище должно быть пустым")
	}
}

func TestRecordAndLookupRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	obs := models.OIObservation{Timestamp: ts, OI: 1_000_000, Price: 50_000}
	if err := s.Record("BTCUSDT", obs); err != nil {
		t.Fatalf("запись наблюдения: %v", err)
	}

	// Поиск на собственной метке времени возвращает само наблюдение
	got, ok := s.LookupAtOrBefore("BTCUSDT", ts)
	if !ok {
		t.Fatal("наблюдение должно находиться на своей метке времени")
	}
	if !got.Timestamp.Equal(ts) || got.OI != 1_000_000 || got.Price != 50_000 {
		t.Fatalf("получено %+v, ожидалось исходное наблюдение", got)
	}
}

func TestLookupReturnsNearestPrior(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		obs := models.OIObservation{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			OI:        float64(100 + i),
			Price:     float64(1000 + i),
		}
		if err := s.Record("ETHUSDT", obs); err != nil {
			t.Fatalf("запись наблюдения %d: %v", i, err)
		}
	}

	got, ok := s.LookupAtOrBefore("ETHUSDT", base.Add(2*time.Hour+30*time.Minute))
	if !ok {
		t.Fatal("наблюдение должно находиться")
	}
	if got.OI != 102 {
		t.Fatalf("получено OI %.0f, ожидалось ближайшее прошлое 102", got.OI)
	}

	if _, ok := s.LookupAtOrBefore("ETHUSDT", base.Add(-time.Minute)); ok {
		t.Fatal("до первого наблюдения ничего не должно находиться")
	}
}

func TestRecordRejectsTimestampRegression(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Record("BTCUSDT", models.OIObservation{Timestamp: ts, OI: 1, Price: 1}); err != nil {
		t.Fatalf("первая запись: %v", err)
	}
	err := s.Record("BTCUSDT", models.OIObservation{Timestamp: ts.Add(-time.Hour), OI: 2, Price: 2})
	if err == nil {
		t.Fatal("запись с откатом времени должна отклоняться")
	}

	// Равная метка времени допустима: порядок неубывающий
	if err := s.Record("BTCUSDT", models.OIObservation{Timestamp: ts, OI: 3, Price: 3}); err != nil {
		t.Fatalf("запись с равной меткой времени: %v", err)
	}
}

func TestPruneBeyondLookback(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	old := models.OIObservation{Timestamp: base.Add(-30 * time.Hour), OI: 1, Price: 1}
	if err := s.Record("BTCUSDT", old); err != nil {
		t.Fatalf("запись старого наблюдения: %v", err)
	}
	fresh := models.OIObservation{Timestamp: base, OI: 2, Price: 2}
	if err := s.Record("BTCUSDT", fresh); err != nil {
		t.Fatalf("запись свежего наблюдения: %v", err)
	}

	if got := s.Len("BTCUSDT"); got != 1 {
		t.Fatalf("после отсечки осталось %d наблюдений, ожидалось 1", got)
	}
	if _, ok := s.LookupAtOrBefore("BTCUSDT", base.Add(-25*time.Hour)); ok {
		t.Fatal("наблюдение старше окна должно быть отсечено")
	}
}

func TestSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oi_history.json")
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s1, err := New(path, 24*time.Hour)
	if err != nil {
		t.Fatalf("создание хранилища: %v", err)
	}
	s1.now = func() time.Time { return testNow }
	obs := models.OIObservation{Timestamp: ts, OI: 777, Price: 42}
	if err := s1.Record("BTCUSDT", obs); err != nil {
		t.Fatalf("запись наблюдения: %v", err)
	}

	// Новый экземпляр поверх того же файла видит записанное
	s2, err := New(path, 24*time.Hour)
	if err != nil {
		t.Fatalf("повторное открытие хранилища: %v", err)
	}
	got, ok := s2.LookupAtOrBefore("BTCUSDT", ts)
	if !ok || got.OI != 777 {
		t.Fatalf("после перезапуска получено %+v, ожидалось OI 777", got)
	}
}

func TestCorruptFileReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oi_history.json")
	if err := os.WriteFile(path, []byte("{не json"), 0o644); err != nil {
		t.Fatalf("подготовка файла: %v", err)
	}

	if _, err := New(path, 24*time.Hour); err == nil {
		t.Fatal("испорченный файл должен давать ошибку, а не тихий холодный старт")
	}
}

func TestConcurrentInstruments(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	done := make(chan error, 2)
	write := func(symbol string) {
		for i := 0; i < 50; i++ {
			obs := models.OIObservation{
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				OI:        float64(i),
				Price:     float64(i),
			}
			if err := s.Record(symbol, obs); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}

	go write("BTCUSDT")
	go write("ETHUSDT")

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("конкурентная запись: %v", err)
		}
	}

	if s.Len("BTCUSDT") != 50 || s.Len("ETHUSDT") != 50 {
		t.Fatalf("потеряны записи: btc=%d eth=%d", s.Len("BTCUSDT"), s.Len("ETHUSDT"))
	}
}
