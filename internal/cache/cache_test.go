package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetWithinTTL(t *testing.T) {
	c := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("btc:orderbook", 42)

	c.now = func() time.Time { return base.Add(4 * time.Second) }
	v, ok := c.Get("btc:orderbook", 5*time.Second)
	if !ok {
		t.Fatal("значение моложе ttl должно находиться")
	}
	if v.(int) != 42 {
		t.Fatalf("получено %v, ожидалось 42", v)
	}
}

func TestGetAtExactTTLBoundary(t *testing.T) {
	c := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("btc:mark", 102.3)

	// Возраст ровно в ttl еще свежий: вытеснение строго после порога
	c.now = func() time.Time { return base.Add(5 * time.Second) }
	v, ok := c.Get("btc:mark", 5*time.Second)
	if !ok {
		t.Fatal("значение возрастом ровно в ttl должно отдаваться")
	}
	if v.(float64) != 102.3 {
		t.Fatalf("получено %v, ожидалось 102.3", v)
	}
}

func TestGetAfterTTLExpires(t *testing.T) {
	c := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("btc:funding", "0.0001")

	// Просроченное значение не отдается и удаляется при чтении
	c.now = func() time.Time { return base.Add(6 * time.Second) }
	if _, ok := c.Get("btc:funding", 5*time.Second); ok {
		t.Fatal("просроченное значение не должно отдаваться")
	}

	// Повторный запрос с большим ttl тоже промахивается: запись удалена
	if _, ok := c.Get("btc:funding", time.Hour); ok {
		t.Fatal("запись должна быть удалена при первом просроченном чтении")
	}
}

func TestDistinctTTLPerCall(t *testing.T) {
	c := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("eth:oi", 1.5)

	// Один и тот же ключ спрашивается с разными окнами свежести
	c.now = func() time.Time { return base.Add(10 * time.Second) }
	if _, ok := c.Get("eth:oi", 5*time.Minute); !ok {
		t.Fatal("длинное окно свежести должно находить значение")
	}
	if _, ok := c.Get("eth:oi", 5*time.Second); ok {
		t.Fatal("короткое окно свежести не должно находить то же значение")
	}
}

func TestSetOverwrites(t *testing.T) {
	c := New()
	c.Set("key", 1)
	c.Set("key", 2)

	v, ok := c.Get("key", time.Minute)
	if !ok || v.(int) != 2 {
		t.Fatalf("получено %v, ожидалось перезаписанное значение 2", v)
	}
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Set("key", 1)
	c.Invalidate("key")

	if _, ok := c.Get("key", time.Minute); ok {
		t.Fatal("инвалидированный ключ не должен находиться")
	}
}

func TestStats(t *testing.T) {
	c := New()
	c.Set("a", 1)
	c.Get("a", time.Minute)
	c.Get("b", time.Minute)

	stats := c.Stats()
	if stats.Sets != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("неожиданные счетчики: %+v", stats)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("sym%d:%d", n, j%10)
				c.Set(key, j)
				c.Get(key, time.Minute)
				if j%50 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}

	wg.Wait()
}
