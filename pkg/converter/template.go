package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"text/template"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/tidwall/gjson"
)

// TemplatePayloadConverter renders each record through a text/template loaded
// by Start. The template sees:
//
//	.topic .partition .offset .key .timestamp .schema .headers .value .global
//
// where .value is the record value parsed as a JSON object and .global holds the
// template.vars property.
type TemplatePayloadConverter struct {
	ready atomic.Pointer[CompiledTemplate]
}

// NewTemplatePayloadConverter returns a converter that must be started before use.
func NewTemplatePayloadConverter() *TemplatePayloadConverter {
	return &TemplatePayloadConverter{}
}

// Start loads and compiles cfg.TemplateFile. The compiled template is published
// atomically, so any goroutine that observes it also observes it fully built.
func (c *TemplatePayloadConverter) Start(cfg config.SinkConfig) error {
	if cfg.TemplateFile == "" {
		return &types.ConfigurationError{Key: config.KeyTemplateFile, Err: errors.New("is required")}
	}
	text, err := os.ReadFile(cfg.TemplateFile)
	if err != nil {
		return &types.ConfigurationError{Key: config.KeyTemplateFile, Value: cfg.TemplateFile, Err: err}
	}
	compiled, err := CompileTemplate(filepath.Base(cfg.TemplateFile), string(text), cfg.TemplateVars)
	if err != nil {
		return &types.ConfigurationError{Key: config.KeyTemplateFile, Value: cfg.TemplateFile, Err: err}
	}
	c.ready.Store(compiled)
	return nil
}

// Convert renders record. It fails with a NotInitializedError before Start.
func (c *TemplatePayloadConverter) Convert(_ context.Context, record types.InboundRecord) (types.Payload[string], error) {
	compiled := c.ready.Load()
	if compiled == nil {
		return types.Payload[string]{}, &types.NotInitializedError{Component: "TemplatePayloadConverter"}
	}
	return compiled.Render(record)
}

// CompiledTemplate is a parsed template plus its global variables. It is never
// modified after CompileTemplate returns.
type CompiledTemplate struct {
	tmpl    *template.Template
	globals map[string]string
}

// CompileTemplate parses text. Missing map keys are render errors.
func CompileTemplate(name, text string, globals map[string]string) (*CompiledTemplate, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"toJSON": toJSON}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	g := make(map[string]string, len(globals))
	for k, v := range globals {
		g[k] = v
	}
	return &CompiledTemplate{tmpl: tmpl, globals: g}, nil
}

// Render executes the template for one record. Nothing is returned unless the
// whole template rendered.
func (t *CompiledTemplate) Render(record types.InboundRecord) (types.Payload[string], error) {
	if !gjson.ValidBytes(record.Value) {
		return types.Payload[string]{}, &types.ConversionError{ID: record.ID(), Err: errors.New("value is not valid JSON")}
	}
	parsed := gjson.ParseBytes(record.Value)
	if !parsed.IsObject() {
		return types.Payload[string]{}, &types.ConversionError{ID: record.ID(), Err: fmt.Errorf("value must be a JSON object, got %s", parsed.Type)}
	}
	value, err := decodeObject(record.Value)
	if err != nil {
		return types.Payload[string]{}, &types.ConversionError{ID: record.ID(), Err: err}
	}

	var key any
	if record.Key != nil {
		key = string(record.Key)
	}
	data := map[string]any{
		"topic":     record.Topic,
		"partition": record.Partition,
		"offset":    record.Offset,
		"key":       key,
		"timestamp": record.Timestamp,
		"schema":    record.Schema,
		"headers":   record.Headers,
		"value":     value,
		"global":    t.globals,
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return types.Payload[string]{}, &types.ConversionError{ID: record.ID(), Err: fmt.Errorf("render template: %w", err)}
	}
	return types.NewStringPayload(buf.String()), nil
}

// decodeObject keeps numbers as json.Number so they render exactly as sent.
func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return obj, nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
