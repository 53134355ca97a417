package diary

import "sync"

// Table is an insertion-ordered id → value map safe for concurrent use.
// Iteration follows first-insertion order, which is what ranking output
// order depends on.
type Table[V any] struct {
	mu   sync.RWMutex
	keys []string
	vals map[string]V
}

// NewTable returns an empty table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{vals: make(map[string]V)}
}

// Get returns the value for id.
func (t *Table[V]) Get(id string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vals[id]
	return v, ok
}

// Has reports whether id is present.
func (t *Table[V]) Has(id string) bool {
	_, ok := t.Get(id)
	return ok
}

// Set stores v under id, replacing any previous value. Loaders use it.
func (t *Table[V]) Set(id string, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.vals[id]; !ok {
		t.keys = append(t.keys, id)
	}
	t.vals[id] = v
}

// Merge stores v only when id is absent and reports whether it did.
// Concurrent merges of the same id are idempotent.
func (t *Table[V]) Merge(id string, v V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.vals[id]; ok {
		return false
	}
	t.keys = append(t.keys, id)
	t.vals[id] = v
	return true
}

// Len returns the number of entries.
func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// Keys returns a snapshot of ids in insertion order.
func (t *Table[V]) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Entry is one id/value pair of a table snapshot.
type Entry[V any] struct {
	ID    string
	Value V
}

// Entries returns a snapshot in insertion order.
func (t *Table[V]) Entries() []Entry[V] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry[V], 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, Entry[V]{ID: k, Value: t.vals[k]})
	}
	return out
}

// Reset drops every entry.
func (t *Table[V]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = nil
	t.vals = make(map[string]V)
}

// TeacherInfo is the richer reference record kept for teachers.
type TeacherInfo struct {
	ShortName string `json:"short_name"`
	FullName  string `json:"full_name"`
	Subjects  string `json:"subjects"`
	Email     string `json:"email"`
	Position  string `json:"position"`
}

// RefCache holds the long-lived reference lookups of one session.
type RefCache struct {
	Subjects  *Table[string]
	Students  *Table[string]
	Teachers  *Table[TeacherInfo]
	WorkTypes *Table[string]
}

// NewRefCache returns empty reference tables.
func NewRefCache() *RefCache {
	return &RefCache{
		Subjects:  NewTable[string](),
		Students:  NewTable[string](),
		Teachers:  NewTable[TeacherInfo](),
		WorkTypes: NewTable[string](),
	}
}

// SubjectName returns the cached subject name or the unknown-subject label.
func (r *RefCache) SubjectName(id string) string {
	if name, ok := r.Subjects.Get(id); ok {
		return name
	}
	return UnknownSubject
}

// WorkTypeName resolves a work type id through the cache.
func (r *RefCache) WorkTypeName(id string) string {
	if name, ok := r.WorkTypes.Get(id); ok {
		return name
	}
	return UnknownWorkType
}
