// internal/history/store.go
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/skalibog/convergd/pkg/models"
)

// Store долговременная история открытого интереса по инструментам.
// Записи добавляются в конец, прореживаются за пределами максимального
// окна наблюдения и переживают перезапуск процесса: файл перезаписывается
// атомарно через временный файл и rename.
type Store struct {
	path        string
	maxLookback time.Duration
	now         func() time.Time

	mu      sync.RWMutex // защищает data
	fileMu  sync.Mutex   // сериализует запись файла
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // по инструменту, записи одного инструмента сериализуются
	data    map[string][]models.OIObservation
}

// New открывает хранилище. Отсутствующий файл означает холодный старт
// без истории, нечитаемый - ошибку персистентности.
func New(path string, maxLookback time.Duration) (*Store, error) {
	s := &Store{
		path:        path,
		maxLookback: maxLookback,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
		data:        make(map[string][]models.OIObservation),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, models.NewMetricError(models.ErrPersistenceFailure,
			"файл истории открытого интереса нечитаем", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, models.NewMetricError(models.ErrPersistenceFailure,
				"файл истории открытого интереса поврежден", err)
		}
	}

	return s, nil
}

func (s *Store) instrumentLock(instrument string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[instrument]
	if !ok {
		l = &sync.Mutex{}
		s.locks[instrument] = l
	}
	return l
}

// Record добавляет наблюдение, сохраняя монотонность времени по инструменту,
// прореживает устаревшие записи и сбрасывает историю на диск
func (s *Store) Record(instrument string, obs models.OIObservation) error {
	l := s.instrumentLock(instrument)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	entries := s.data[instrument]
	if n := len(entries); n > 0 && obs.Timestamp.Before(entries[n-1].Timestamp) {
		s.mu.Unlock()
		return fmt.Errorf("наблюдение %s нарушает порядок времени: %s раньше %s",
			instrument, obs.Timestamp.Format(time.RFC3339), entries[n-1].Timestamp.Format(time.RFC3339))
	}
	entries = append(entries, obs)

	// Прореживание за пределами максимального окна
	cutoff := s.now().Add(-s.maxLookback)
	trimmed := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			trimmed = append(trimmed, e)
		}
	}
	s.data[instrument] = trimmed
	s.mu.Unlock()

	return s.flush()
}

// LookupAtOrBefore возвращает самое позднее наблюдение не позже указанного
// момента. Для инструмента без истории отвечает отсутствием, не ошибкой.
func (s *Store) LookupAtOrBefore(instrument string, t time.Time) (models.OIObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.data[instrument]
	if len(entries) == 0 {
		return models.OIObservation{}, false
	}

	// Записи упорядочены по времени, ищем первую позже t
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp.After(t)
	})
	if idx == 0 {
		return models.OIObservation{}, false
	}
	return entries[idx-1], true
}

// Len возвращает число наблюдений по инструменту
func (s *Store) Len(instrument string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[instrument])
}

// flush атомарно перезаписывает файл истории
func (s *Store) flush() error {
	s.mu.RLock()
	raw, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return models.NewMetricError(models.ErrPersistenceFailure,
			"не удалось сериализовать историю открытого интереса", err)
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.NewMetricError(models.ErrPersistenceFailure,
				"не удалось создать каталог истории", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return models.NewMetricError(models.ErrPersistenceFailure,
			"не удалось записать файл истории", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return models.NewMetricError(models.ErrPersistenceFailure,
			"не удалось заменить файл истории", err)
	}
	return nil
}
