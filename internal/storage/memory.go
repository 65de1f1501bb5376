package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps mappings and clicks in process memory. A single mutex
// serialises every write, so the code check and the insert are one step.
type MemoryStorage struct {
	mu       sync.RWMutex
	byCode   map[string]string
	mappings map[string]*Mapping
	clicks   map[string][]ClickEvent
}

func CreateMemoryStorage() (*MemoryStorage, error) {
	return &MemoryStorage{
		byCode:   make(map[string]string),
		mappings: make(map[string]*Mapping),
		clicks:   make(map[string][]ClickEvent),
	}, nil
}

func (m *MemoryStorage) InsertIfAbsent(_ context.Context, record Mapping) (*Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[record.Code]; exists {
		return nil, ErrCodeTaken
	}

	stored := record
	m.byCode[record.Code] = record.ID
	m.mappings[record.ID] = &stored

	result := stored
	return &result, nil
}

func (m *MemoryStorage) Lookup(_ context.Context, code string) (*Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byCode[code]
	if !exists {
		return nil, ErrNotFound
	}

	result := *m.mappings[id]
	return &result, nil
}

func (m *MemoryStorage) Update(_ context.Context, code string, upd MappingUpdate, callerID string) (*Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, exists := m.byCode[code]
	if !exists {
		return nil, ErrNotFound
	}

	record := m.mappings[id]
	if record.OwnerID != callerID {
		return nil, ErrForbidden
	}

	if upd.Code != code {
		if _, taken := m.byCode[upd.Code]; taken {
			return nil, ErrCodeTaken
		}
		delete(m.byCode, code)
		m.byCode[upd.Code] = id
		record.Code = upd.Code
	}
	record.Custom = upd.Custom
	record.Destination = upd.Destination

	result := *record
	return &result, nil
}

func (m *MemoryStorage) Delete(_ context.Context, code string, callerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, exists := m.byCode[code]
	if !exists {
		return ErrNotFound
	}
	if m.mappings[id].OwnerID != callerID {
		return ErrForbidden
	}

	m.remove(id)
	return nil
}

func (m *MemoryStorage) DeleteOwner(_ context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, record := range m.mappings {
		if record.OwnerID == ownerID {
			m.remove(id)
			deleted++
		}
	}

	return deleted, nil
}

// remove drops a mapping and its clicks. Callers hold the write lock.
func (m *MemoryStorage) remove(id string) {
	delete(m.byCode, m.mappings[id].Code)
	delete(m.mappings, id)
	delete(m.clicks, id)
}

func (m *MemoryStorage) ListByOwner(_ context.Context, ownerID string) ([]Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(r *Mapping) bool { return r.OwnerID == ownerID }), nil
}

func (m *MemoryStorage) ListAll(_ context.Context) ([]Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(*Mapping) bool { return true }), nil
}

func (m *MemoryStorage) collect(keep func(*Mapping) bool) []Mapping {
	records := make([]Mapping, 0)
	for _, r := range m.mappings {
		if keep(r) {
			records = append(records, *r)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Code < records[j].Code
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records
}

// AppendClicks stores the events whose mapping still exists and silently
// skips the rest.
func (m *MemoryStorage) AppendClicks(_ context.Context, events []ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range events {
		if _, exists := m.mappings[e.MappingID]; !exists {
			continue
		}
		m.clicks[e.MappingID] = append(m.clicks[e.MappingID], e)
	}

	return nil
}

func (m *MemoryStorage) ClicksByMapping(_ context.Context, f ClickFilter) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for id, record := range m.mappings {
		if !matches(record, f) {
			continue
		}
		counts[id] = int64(len(m.clicks[id]))
	}

	return counts, nil
}

func (m *MemoryStorage) ClicksByRegion(_ context.Context, f ClickFilter) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for id, record := range m.mappings {
		if !matches(record, f) {
			continue
		}
		for _, e := range m.clicks[id] {
			counts[e.Region]++
		}
	}

	return counts, nil
}

func (m *MemoryStorage) ListClicks(_ context.Context, f ClickFilter) ([]ClickEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]ClickEvent, 0)
	for id, record := range m.mappings {
		if matches(record, f) {
			events = append(events, m.clicks[id]...)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})

	return events, nil
}

func matches(r *Mapping, f ClickFilter) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.MappingID != "" && r.ID != f.MappingID {
		return false
	}
	return true
}

func (m *MemoryStorage) PingContext(_ context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
