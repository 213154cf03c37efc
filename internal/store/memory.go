package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wrkportal/sheetengine/internal/core"
)

// Memory is an in-process store. It is used by tests and by servers
// started without a database.
type Memory struct {
	mu       sync.RWMutex
	sources  map[string]core.TableSource
	merges   map[string]core.MergeSpec
	settings map[string]core.FileSettings

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ core.Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		sources:  make(map[string]core.TableSource),
		merges:   make(map[string]core.MergeSpec),
		settings: make(map[string]core.FileSettings),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Memory) GetSource(_ context.Context, id string) (core.TableSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[id]
	if !ok {
		return core.TableSource{}, core.ErrNotFound("table not found: %s", id)
	}
	return cloneSource(src), nil
}

func (m *Memory) PutSource(_ context.Context, src core.TableSource) error {
	if err := src.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.ID] = cloneSource(src)
	return nil
}

func (m *Memory) ListSources(_ context.Context) ([]core.SourceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.SourceInfo, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteSource(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
	return nil
}

func (m *Memory) PutMerge(_ context.Context, spec core.MergeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges[spec.DerivedID] = cloneMerge(spec)
	return nil
}

func (m *Memory) GetMerge(_ context.Context, derivedID string) (core.MergeSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.merges[derivedID]
	if !ok {
		return core.MergeSpec{}, core.ErrNotFound("merge not found: %s", derivedID)
	}
	return cloneMerge(spec), nil
}

func (m *Memory) ListMerges(_ context.Context) ([]core.MergeSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.MergeSpec, 0, len(m.merges))
	for _, spec := range m.merges {
		out = append(out, cloneMerge(spec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DerivedID < out[j].DerivedID })
	return out, nil
}

func (m *Memory) DeleteMerge(_ context.Context, derivedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.merges, derivedID)
	return nil
}

func (m *Memory) LoadSettings(_ context.Context, id string) (*core.FileSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[id]
	if !ok {
		return nil, nil
	}
	out := s.Clone()
	return &out, nil
}

func (m *Memory) SaveSettings(_ context.Context, id string, s core.FileSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[id] = s.Clone()
	return nil
}

// UpdateSettings holds a per-id lock across read, modify and write so
// concurrent updates of one table never lose each other's changes.
func (m *Memory) UpdateSettings(ctx context.Context, id string, fn func(*core.FileSettings) error) (core.FileSettings, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.LoadSettings(ctx, id)
	if err != nil {
		return core.FileSettings{}, err
	}
	next, err := core.ApplySettingsUpdate(ctx, current, fn)
	if err != nil {
		return core.FileSettings{}, err
	}
	if err := m.SaveSettings(ctx, id, next); err != nil {
		return core.FileSettings{}, err
	}
	return next, nil
}

func (m *Memory) DeleteSettings(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, id)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}
