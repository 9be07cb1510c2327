package visitor

import "sync"

// Manager is the in-memory registry of visitors, keyed by visitor code.
type Manager struct {
	mu       sync.RWMutex
	visitors map[string]*Visitor
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{visitors: make(map[string]*Visitor)}
}

// Get returns the visitor for a code, or nil when unknown.
func (m *Manager) Get(code string) *Visitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visitors[code]
}

// GetOrCreate returns the visitor for a code, creating it on first use.
func (m *Manager) GetOrCreate(code string) *Visitor {
	m.mu.RLock()
	v, ok := m.visitors[code]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.visitors[code]; ok {
		return v
	}
	v = New(code)
	m.visitors[code] = v
	return v
}

// Put registers a visitor restored from a durable store and returns the
// instance now held for its code. When another goroutine registered the
// code first, the existing visitor wins and is returned; replacing it
// would lose any mutations already applied to it.
func (m *Manager) Put(v *Visitor) *Visitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.visitors[v.code]; ok {
		return existing
	}
	m.visitors[v.code] = v
	return v
}

// Forget drops a visitor from the registry.
func (m *Manager) Forget(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.visitors, code)
}

// Count returns the number of tracked visitors.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visitors)
}

// Each calls fn for every tracked visitor. The registry lock is not held
// during the calls; fn sees visitors present at iteration start.
func (m *Manager) Each(fn func(*Visitor)) {
	m.mu.RLock()
	snapshot := make([]*Visitor, 0, len(m.visitors))
	for _, v := range m.visitors {
		snapshot = append(snapshot, v)
	}
	m.mu.RUnlock()

	for _, v := range snapshot {
		fn(v)
	}
}
