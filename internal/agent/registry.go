package agent

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownProducer is returned when a requested producer is not registered.
var ErrUnknownProducer = errors.New("agent: unknown producer") //nolint:gochecknoglobals // sentinel error

// ProducerFactory creates a Producer from options.
type ProducerFactory func(opts Options) (Producer, error)

// Registry manages producer factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProducerFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProducerFactory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, factory ProducerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the producer registered under name.
func (r *Registry) Create(name string, opts Options) (Producer, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", name, ErrUnknownProducer)
	}

	producer, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", name, err)
	}

	return producer, nil
}

// Available returns registered producer names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}
