package ingest

// Persister is the persistence adapter: it serializes the full session store
// to durable storage and restores it at process start. Save is best-effort;
// callers log failures and continue, they never fail the ingestion path over
// a persistence error. Load on a missing backend should return an empty
// Snapshot and no error; a corrupt backend may return an error, which
// callers treat as a cold start.
type Persister interface {
	Save(snap Snapshot) error
	Load() (Snapshot, error)
}

// NopPersister discards saves and loads nothing. Used when persistence is
// disabled and in tests.
type NopPersister struct{}

// Save implements Persister.Save.
func (NopPersister) Save(Snapshot) error { return nil }

// Load implements Persister.Load.
func (NopPersister) Load() (Snapshot, error) { return Snapshot{}, nil }
