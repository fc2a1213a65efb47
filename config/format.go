// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

// ErrUnknownFormat is returned for sources whose format cannot be determined.
var ErrUnknownFormat = errors.New("unknown configuration format")

// Format names a configuration file format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// DecodeFunc decodes raw configuration data into v.
type DecodeFunc func(data []byte, v any) error

var decoders = map[Format]DecodeFunc{
	FormatYAML: func(data []byte, v any) error { return yaml.Unmarshal(data, v) },
	FormatJSON: json.Unmarshal,
	FormatTOML: toml.Unmarshal,
}

// RegisterFormat registers a decoder for an additional format. It is not safe
// for concurrent use and should be called from init functions.
func RegisterFormat(f Format, fn DecodeFunc) {
	decoders[Format(strings.ToLower(string(f)))] = fn
}

// ParseFormat parses a format name such as "yaml", ".yml" or "TOML".
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if name == "yml" {
		name = string(FormatYAML)
	}
	if _, ok := decoders[Format(name)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}

	return Format(name), nil
}

// FormatOf detects the format of a file from its extension.
func FormatOf(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnknownFormat, path)
	}

	return ParseFormat(ext)
}

// decodeMap decodes data into a generic map. Empty input yields an empty map.
func decodeMap(data []byte, f Format) (map[string]any, error) {
	fn, ok := decoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	values := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := fn(data, &values); err != nil {
		return nil, err
	}

	return normalizeKeys(values), nil
}

// normalizeKeys lowercases map keys recursively so sources merge regardless
// of key case.
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = normalizeValue(v)
	}

	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeKeys(val)
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[strings.ToLower(fmt.Sprint(k))] = normalizeValue(item)
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeKeys(item)
		}
		return out
	default:
		return v
	}
}
