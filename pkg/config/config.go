package config

import (
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// Property keys shared by both connector directions.
const (
	KeyURL              = "url"
	KeyMethod           = "method"
	KeyProperties       = "properties"
	KeyPayloadConverter = "payload.converter"
	KeyRequestTimeout   = "request.timeout.ms"
	KeyAuthType         = "auth.type"
	KeyAuthUsername     = "auth.username"
	KeyAuthPassword     = "auth.password"
	KeyAuthToken        = "auth.token"
	KeyRequestIDHeader  = "request.id.header"
)

// Source-only property keys.
const (
	KeyPollInterval       = "poll.interval.ms"
	KeyData               = "data"
	KeyDestinationTopics  = "destination.topics"
	KeyTopicSelector      = "topic.selector"
	KeyTopicSelectorField = "topic.selector.field"
	KeyDedupe             = "dedupe.enabled"
)

// Sink-only property keys.
const (
	KeyTemplateFile = "template.file"
	KeyTemplateVars = "template.vars"
	KeyContentType  = "content.type"
)

// Defaults.
const (
	DefaultPollInterval     = 60000 * time.Millisecond
	DefaultMethod           = types.MethodPost
	DefaultRequestTimeout   = 30 * time.Second
	DefaultTopicSelector    = "simple"
	DefaultPayloadConverter = "string"
	DefaultAuthType         = "none"
)

// HTTPConfig is the configuration bundle a RequestExecutor is built from.
type HTTPConfig struct {
	URL             string              `prop:"url" validate:"required,url"`
	Method          types.Method        `prop:"method" validate:"required,httpmethod"`
	Headers         map[string][]string `prop:"properties"`
	RequestTimeout  time.Duration       `prop:"request.timeout.ms" validate:"gt=0"`
	AuthType        string              `prop:"auth.type" validate:"oneof=none basic bearer"`
	AuthUsername    string              `prop:"auth.username" validate:"required_if=AuthType basic"`
	AuthPassword    string              `prop:"auth.password"`
	AuthToken       string              `prop:"auth.token" validate:"required_if=AuthType bearer"`
	RequestIDHeader string              `prop:"request.id.header"`
}

// SourceConfig configures a REST source task.
type SourceConfig struct {
	HTTPConfig
	PollInterval     time.Duration `prop:"poll.interval.ms" validate:"gte=0"`
	Data             string        `prop:"data"`
	Topics           []string      `prop:"destination.topics" validate:"required,min=1,dive,required"`
	TopicSelector    string        `prop:"topic.selector" validate:"required"`
	SelectorField    string        `prop:"topic.selector.field" validate:"required_if=TopicSelector field"`
	PayloadConverter string        `prop:"payload.converter" validate:"required"`
	Dedupe           bool          `prop:"dedupe.enabled"`
}

// SinkConfig configures a REST sink task.
type SinkConfig struct {
	HTTPConfig
	PayloadConverter string            `prop:"payload.converter" validate:"required"`
	TemplateFile     string            `prop:"template.file" validate:"required_if=PayloadConverter template"`
	TemplateVars     map[string]string `prop:"template.vars"`
	ContentType      string            `prop:"content.type"`
}

// LoadSource parses and validates source properties.
func LoadSource(props Properties) (*SourceConfig, error) {
	httpCfg, err := loadHTTP(props)
	if err != nil {
		return nil, err
	}
	cfg := &SourceConfig{
		HTTPConfig:       *httpCfg,
		Data:             props.String(KeyData, ""),
		Topics:           props.List(KeyDestinationTopics),
		TopicSelector:    props.String(KeyTopicSelector, DefaultTopicSelector),
		SelectorField:    props.String(KeyTopicSelectorField, ""),
		PayloadConverter: props.String(KeyPayloadConverter, DefaultPayloadConverter),
	}
	if cfg.PollInterval, err = props.Millis(KeyPollInterval, DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.Dedupe, err = props.Bool(KeyDedupe, false); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSink parses and validates sink properties.
func LoadSink(props Properties) (*SinkConfig, error) {
	httpCfg, err := loadHTTP(props)
	if err != nil {
		return nil, err
	}
	cfg := &SinkConfig{
		HTTPConfig:       *httpCfg,
		PayloadConverter: props.String(KeyPayloadConverter, DefaultPayloadConverter),
		TemplateFile:     props.String(KeyTemplateFile, ""),
		ContentType:      props.String(KeyContentType, ""),
	}
	if cfg.TemplateVars, err = ParsePairs(KeyTemplateVars, props.List(KeyTemplateVars)); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadHTTP(props Properties) (*HTTPConfig, error) {
	headers, err := ParseHeaders(KeyProperties, props.List(KeyProperties))
	if err != nil {
		return nil, err
	}
	timeout, err := props.Millis(KeyRequestTimeout, DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	return &HTTPConfig{
		URL: props.String(KeyURL, ""),
		// Left unparsed so the validator reports a bad method against its key.
		Method:          types.Method(props.String(KeyMethod, string(DefaultMethod))),
		Headers:         headers,
		RequestTimeout:  timeout,
		AuthType:        props.String(KeyAuthType, DefaultAuthType),
		AuthUsername:    props.String(KeyAuthUsername, ""),
		AuthPassword:    props.String(KeyAuthPassword, ""),
		AuthToken:       props.String(KeyAuthToken, ""),
		RequestIDHeader: props.String(KeyRequestIDHeader, ""),
	}, nil
}
