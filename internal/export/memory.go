package export

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps exported feeds in process. Used by tests and previews.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Save(_ context.Context, name string, data []byte) (Info, error) {
	key, err := cleanName(name)
	if err != nil {
		return Info{}, err
	}
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.files[key] = cp
	m.mu.Unlock()
	return Info{Name: key, Location: "memory://" + key, Size: int64(len(cp)), SavedAt: time.Now().UTC()}, nil
}

// Get returns a copy of the stored document.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Names lists stored names in order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for k := range m.files {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
