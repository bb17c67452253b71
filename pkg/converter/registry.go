package converter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// Factory builds a fresh converter instance. The result is checked against the
// capability the caller asked for, so a factory registered under the wrong
// direction is reported at configuration time.
type Factory func() any

// Registry maps converter identifiers to factories.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Factory
	sinks   map[string]Factory
}

// NewRegistry returns a registry pre-populated with the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{
		sources: make(map[string]Factory),
		sinks:   make(map[string]Factory),
	}
	r.RegisterSource("string", func() any { return StringPayloadConverter{} })
	r.RegisterSource("bytes", func() any { return BytesPayloadConverter{} })
	r.RegisterSink("string", func() any { return StringSinkConverter{} })
	r.RegisterSink("template", func() any { return NewTemplatePayloadConverter() })
	return r
}

// Default is the registry used by the source and sink tasks.
var Default = NewRegistry()

// RegisterSource adds or replaces a source converter factory.
func (r *Registry) RegisterSource(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = f
}

// RegisterSink adds or replaces a sink converter factory.
func (r *Registry) RegisterSink(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = f
}

// NewSource builds the named source converter.
func (r *Registry) NewSource(name string) (PayloadToSourceRecordConverter, error) {
	v, err := r.build(r.sources, name)
	if err != nil {
		return nil, err
	}
	c, ok := v.(PayloadToSourceRecordConverter)
	if !ok {
		return nil, &types.ConfigurationError{
			Key:   config.KeyPayloadConverter,
			Value: name,
			Err:   fmt.Errorf("%T must implement PayloadToSourceRecordConverter", v),
		}
	}
	return c, nil
}

// NewSink builds the named sink converter. Converters implementing Starter are
// returned unstarted.
func (r *Registry) NewSink(name string) (SinkRecordToPayloadConverter, error) {
	v, err := r.build(r.sinks, name)
	if err != nil {
		return nil, err
	}
	c, ok := v.(SinkRecordToPayloadConverter)
	if !ok {
		return nil, &types.ConfigurationError{
			Key:   config.KeyPayloadConverter,
			Value: name,
			Err:   fmt.Errorf("%T must implement SinkRecordToPayloadConverter", v),
		}
	}
	return c, nil
}

func (r *Registry) build(m map[string]Factory, name string) (any, error) {
	r.mu.RLock()
	f, ok := m[name]
	known := make([]string, 0, len(m))
	for k := range m {
		known = append(known, k)
	}
	r.mu.RUnlock()

	if !ok {
		sort.Strings(known)
		return nil, &types.ConfigurationError{
			Key:   config.KeyPayloadConverter,
			Value: name,
			Err:   fmt.Errorf("unknown converter, expected one of %v", known),
		}
	}
	return f(), nil
}
