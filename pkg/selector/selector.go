// Package selector decides which destination topics a converted record is
// routed to.
package selector

import (
	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/tidwall/gjson"
)

// TopicSelector chooses the topics for a record from the configured set. An
// empty result drops the record.
type TopicSelector interface {
	Select(topics []string, record types.DestinationRecord) ([]string, error)
}

// Starter is implemented by selectors that read configuration.
type Starter interface {
	Start(cfg config.SourceConfig) error
}

// SimpleTopicSelector routes every record to every configured topic.
type SimpleTopicSelector struct{}

// Select returns topics unchanged.
func (SimpleTopicSelector) Select(topics []string, _ types.DestinationRecord) ([]string, error) {
	return topics, nil
}

// FieldTopicSelector routes a record to the configured topic named by a field
// of its JSON value. Records whose field names no configured topic, or whose
// value is not JSON, are dropped.
type FieldTopicSelector struct {
	path string
}

// NewFieldTopicSelector builds a selector reading the gjson path. Use Start to
// configure it from properties instead.
func NewFieldTopicSelector(path string) *FieldTopicSelector {
	return &FieldTopicSelector{path: path}
}

func (s *FieldTopicSelector) Start(cfg config.SourceConfig) error {
	if cfg.SelectorField == "" {
		return &types.ConfigurationError{Key: config.KeyTopicSelectorField, Err: errRequired}
	}
	s.path = cfg.SelectorField
	return nil
}

func (s *FieldTopicSelector) Select(topics []string, record types.DestinationRecord) ([]string, error) {
	if s.path == "" {
		return nil, &types.NotInitializedError{Component: "FieldTopicSelector"}
	}
	value, err := record.ValueBytes()
	if err != nil || !gjson.ValidBytes(value) {
		return []string{}, nil
	}
	field := gjson.GetBytes(value, s.path)
	if !field.Exists() {
		return []string{}, nil
	}
	want := field.String()
	selected := []string{}
	for _, t := range topics {
		if t == want {
			selected = append(selected, t)
		}
	}
	return selected, nil
}
