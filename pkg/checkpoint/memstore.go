package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore keeps checkpoints in memory. Steps are stored encoded so reads go
// through the same codec as the persistent stores.
type MemStore struct {
	mu     sync.RWMutex
	header *Header
	steps  map[int][]byte
	obs    observer
	cache  stepCache
}

func NewMemStore(opts ...Option) *MemStore {
	return &MemStore{steps: make(map[int][]byte), obs: newObserver("memory", opts)}
}

func (m *MemStore) Header(_ context.Context) (Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.header == nil {
		return Header{}, ErrNoHeader
	}
	return *m.header, nil
}

func (m *MemStore) WriteHeader(_ context.Context, h Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.header = &h
	return nil
}

func (m *MemStore) LastStep(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := -1
	for index := range m.steps {
		last = max(last, index)
	}
	if last < 0 {
		return 0, ErrStepNotFound
	}
	return last, nil
}

func (m *MemStore) Step(ctx context.Context, index int) (s *Step, err error) {
	start := time.Now()
	defer func() { m.obs.done("read", start, err) }()
	return m.cache.get(ctx, index, m.load)
}

func (m *MemStore) load(_ context.Context, index int) (*Step, error) {
	m.mu.RLock()
	buf, ok := m.steps[index]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStepNotFound, index)
	}
	m.obs.bytes("in", len(buf))
	return DecodeStep(buf)
}

func (m *MemStore) Surface(ctx context.Context, step int) (int, error) {
	s, err := m.Step(ctx, step)
	if err != nil {
		return 0, err
	}
	return s.Surface, nil
}

func (m *MemStore) GridPoint(ctx context.Context, step, xi int) ([]Entry, error) {
	s, err := m.Step(ctx, step)
	if err != nil {
		return nil, err
	}
	return gridPoint(s, xi)
}

func (m *MemStore) WriteStep(_ context.Context, s *Step) (err error) {
	start := time.Now()
	defer func() { m.obs.done("write", start, err) }()
	buf, err := EncodeStep(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.steps[s.Index] = buf
	m.mu.Unlock()
	m.cache.forget(s.Index)
	m.obs.bytes("out", len(buf))
	return nil
}
