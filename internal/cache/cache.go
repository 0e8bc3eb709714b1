// internal/cache/cache.go
package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const shardCount = 32

// entry хранимое значение с моментом записи
type entry struct {
	value     interface{}
	createdAt time.Time
}

// shard сегмент кэша со своим мьютексом, чтобы разные
// инструменты и метрики не конкурировали за одну блокировку
type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Cache кэш со свежестью, задаваемой на каждое чтение.
// Просроченная запись удаляется при обращении и считается отсутствующей,
// фонового вытеснения нет.
type Cache struct {
	shards [shardCount]*shard
	now    func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// Stats счетчики обращений к кэшу
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Entries int
}

// New создает пустой кэш
func New() *Cache {
	c := &Cache{now: time.Now}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get возвращает значение, если его возраст не превышает ttl.
// Проверка возраста и вытеснение выполняются под блокировкой сегмента,
// поэтому параллельный Set того же ключа не теряется.
func (c *Cache) Get(key string, ttl time.Duration) (interface{}, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.now().Sub(e.createdAt) > ttl {
		delete(s.entries, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Set записывает значение, перезаписывая прежнее, и ставит текущее время
func (c *Cache) Set(key string, value interface{}) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry{value: value, createdAt: c.now()}
	s.mu.Unlock()
	c.sets.Add(1)
}

// Invalidate удаляет ключ из кэша
func (c *Cache) Invalidate(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Stats возвращает текущие счетчики
func (c *Cache) Stats() Stats {
	entries := 0
	for _, s := range c.shards {
		s.mu.Lock()
		entries += len(s.entries)
		s.mu.Unlock()
	}
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Entries: entries,
	}
}
