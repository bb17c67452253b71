package config

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// Properties is the flat key/value configuration a host hands to a connector task.
// List values are comma separated.
type Properties map[string]string

func (p Properties) lookup(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// String returns the value for key, or def when unset or blank.
func (p Properties) String(key, def string) string {
	if v, ok := p.lookup(key); ok {
		return v
	}
	return def
}

// Int64 parses key as an integer.
func (p Properties) Int64(key string, def int64) (int64, error) {
	v, ok := p.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &types.ConfigurationError{Key: key, Value: v, Err: fmt.Errorf("must be an integer")}
	}
	return n, nil
}

// Millis parses key as a millisecond duration that must not be negative.
func (p Properties) Millis(key string, def time.Duration) (time.Duration, error) {
	n, err := p.Int64(key, def.Milliseconds())
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &types.ConfigurationError{Key: key, Value: strconv.FormatInt(n, 10), Err: fmt.Errorf("must be >= 0")}
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Bool parses key as a boolean.
func (p Properties) Bool(key string, def bool) (bool, error) {
	v, ok := p.lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &types.ConfigurationError{Key: key, Value: v, Err: fmt.Errorf("must be a boolean")}
	}
	return b, nil
}

// List splits key on commas, trimming blanks.
func (p Properties) List(key string) []string {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseHeaders turns "name:value" entries into a header mapping. Every entry
// must contain exactly one ':' and a non-empty name; key names the property
// the entries came from.
func ParseHeaders(key string, entries []string) (map[string][]string, error) {
	headers := make(map[string][]string, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 2 {
			return nil, &types.ConfigurationError{Key: key, Value: entry, Err: fmt.Errorf("expected exactly one ':' in name:value entry")}
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, &types.ConfigurationError{Key: key, Value: entry, Err: fmt.Errorf("header name is empty")}
		}
		canonical := http.CanonicalHeaderKey(name)
		headers[canonical] = append(headers[canonical], strings.TrimSpace(parts[1]))
	}
	return headers, nil
}

// ParsePairs is ParseHeaders for plain string maps, where the last value wins.
func ParsePairs(key string, entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, &types.ConfigurationError{Key: key, Value: entry, Err: fmt.Errorf("expected a name:value entry")}
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out, nil
}
