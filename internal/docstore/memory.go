package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process Store used for development and tests.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]map[string]map[string]any
	notify Notifier
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:   make(map[string]map[string]map[string]any),
		notify: NewLocalNotifier(),
	}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return toDocument(id, doc)
}

func (m *Memory) Find(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.data[collection]))
	for id := range m.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := []Document{}
	for _, id := range ids {
		doc := m.data[collection][id]
		ok, err := matches(doc, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		d, err := toDocument(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, collection, id string, v any) (string, error) {
	id = newID(id)
	doc, err := encode(id, v)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	if _, exists := m.data[collection][id]; exists {
		m.mu.Unlock()
		return "", ErrAlreadyExists
	}
	m.put(collection, id, doc)
	m.mu.Unlock()
	_ = m.notify.Notify(ctx, collection)
	return id, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, v any) error {
	doc, err := encode(id, v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.put(collection, id, doc)
	m.mu.Unlock()
	return m.notify.Notify(ctx, collection)
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	norm, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	doc, ok := m.data[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	next := make(map[string]any, len(doc)+len(norm))
	for k, v := range doc {
		next[k] = v
	}
	for k, v := range norm {
		next[k] = v
	}
	m.put(collection, id, next)
	m.mu.Unlock()
	return m.notify.Notify(ctx, collection)
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.data[collection][id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.data[collection], id)
	m.mu.Unlock()
	return m.notify.Notify(ctx, collection)
}

func (m *Memory) Watch(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error) {
	return watchByRequery(ctx, m, m.notify, collection, filters)
}

func (m *Memory) Close() error { return nil }

// put must be called with mu held.
func (m *Memory) put(collection, id string, doc map[string]any) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][id] = doc
}

func toDocument(id string, doc map[string]any) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: raw}, nil
}
