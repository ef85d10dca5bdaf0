package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/prepvoice/internal/persistence"
)

// ErrBackendNotRegistered is returned by [Registry.CreateBackend] when no
// factory has been registered for the requested backend kind.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// BackendFactory builds a persistence service from its config entry.
type BackendFactory func(BackendEntry) (persistence.Service, error)

// Registry maps backend kinds to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[BackendKind]BackendFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[BackendKind]BackendFactory),
	}
}

// RegisterBackend registers a factory for kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterBackend(kind BackendKind, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = factory
}

// CreateBackend instantiates the backend described by entry.
// Returns [ErrBackendNotRegistered] if no factory exists for entry.Kind.
func (r *Registry) CreateBackend(entry BackendEntry) (persistence.Service, error) {
	r.mu.RLock()
	factory, ok := r.backends[entry.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, entry.Kind)
	}
	svc, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create backend %q: %w", entry.Name, err)
	}
	return svc, nil
}

// BuildPersistence creates every configured backend and chains them behind a
// [persistence.Failover] in config order. It returns nil when no backends are
// configured.
func (r *Registry) BuildPersistence(cfg PersistenceConfig) (*persistence.Failover, error) {
	if len(cfg.Backends) == 0 {
		return nil, nil
	}
	var f *persistence.Failover
	for i, entry := range cfg.Backends {
		svc, err := r.CreateBackend(entry)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			f = persistence.NewFailover(entry.Name, svc, persistence.WithBreaker(persistence.BreakerConfig{
				MaxFailures:  cfg.Breaker.MaxFailures,
				ResetTimeout: cfg.Breaker.ResetTimeout,
			}))
			continue
		}
		f.Add(entry.Name, svc)
	}
	return f, nil
}
