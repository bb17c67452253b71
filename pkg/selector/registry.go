package selector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

var errRequired = errors.New("is required")

// Factory builds a fresh selector.
type Factory func() any

// Registry maps selector identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding "simple" and "field".
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("simple", func() any { return SimpleTopicSelector{} })
	r.Register("field", func() any { return &FieldTopicSelector{} })
	return r
}

// Default is the registry used by the source task.
var Default = NewRegistry()

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds and, when it needs configuration, starts the named selector.
func (r *Registry) New(name string, cfg config.SourceConfig) (TopicSelector, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	known := make([]string, 0, len(r.factories))
	for k := range r.factories {
		known = append(known, k)
	}
	r.mu.RUnlock()

	if !ok {
		sort.Strings(known)
		return nil, &types.ConfigurationError{
			Key:   config.KeyTopicSelector,
			Value: name,
			Err:   fmt.Errorf("unknown selector, expected one of %v", known),
		}
	}
	v := f()
	sel, ok := v.(TopicSelector)
	if !ok {
		return nil, &types.ConfigurationError{
			Key:   config.KeyTopicSelector,
			Value: name,
			Err:   fmt.Errorf("%T must implement TopicSelector", v),
		}
	}
	if s, ok := sel.(Starter); ok {
		if err := s.Start(cfg); err != nil {
			return nil, err
		}
	}
	return sel, nil
}
