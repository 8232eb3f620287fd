package ingest

// Store is the in-memory session map abstraction. The Repository layers
// locking and lifecycle rules on top; callers of Repository never touch a
// Store directly. Implementations are not required to be concurrency-safe.
type Store interface {
	Get(id SessionID) (*Session, bool)
	Set(s *Session)
	Delete(id SessionID)
	List() []SessionID
}

// InMemoryStore is the default map-backed Store.
type InMemoryStore struct {
	sessions map[SessionID]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[SessionID]*Session),
	}
}

// Get implements Store.Get.
func (st *InMemoryStore) Get(id SessionID) (*Session, bool) {
	s, ok := st.sessions[id]
	return s, ok
}

// Set implements Store.Set.
func (st *InMemoryStore) Set(s *Session) {
	st.sessions[s.ID] = s
}

// Delete implements Store.Delete.
func (st *InMemoryStore) Delete(id SessionID) {
	delete(st.sessions, id)
}

// List implements Store.List.
func (st *InMemoryStore) List() []SessionID {
	ids := make([]SessionID, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}
