package storage

import "fmt"

// NewStore selects the snapshot backend by name. An empty kind means
// the in-memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported snapshot store backend: %q (want memory or sqlite)", kind)
	}
}

// CloseIfSupported closes backends holding external resources; the
// memory store has none and passes through.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
