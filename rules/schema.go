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

package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"rivaas.dev/upload/sink"
)

// Schema is the structural description of a rule set, as found in
// configuration files.
//
// Example (YAML):
//
//	unknown: reject
//	fields:
//	  - name: note
//	    required: true
//	  - name: files
//	    multiple: true
//	    contentTypes: [text/plain, "image/*"]
//	  - name: batch
//	    contentTypes: [multipart/mixed]
//	    fields:
//	      - name: manifest
//	        required: true
type Schema struct {
	Unknown string        `json:"unknown" yaml:"unknown" toml:"unknown" mapstructure:"unknown"`
	Fields  []FieldSchema `json:"fields" yaml:"fields" toml:"fields" mapstructure:"fields"`
}

// FieldSchema describes one rule. A field with nested fields and no content
// types is a multipart/mixed container.
type FieldSchema struct {
	Name         string        `json:"name" yaml:"name" toml:"name" mapstructure:"name"`
	Required     bool          `json:"required" yaml:"required" toml:"required" mapstructure:"required"`
	Multiple     bool          `json:"multiple" yaml:"multiple" toml:"multiple" mapstructure:"multiple"`
	ContentTypes []string      `json:"contentTypes" yaml:"contentTypes" toml:"contentTypes" mapstructure:"contentTypes"`
	Storage      string        `json:"storage" yaml:"storage" toml:"storage" mapstructure:"storage"`
	Fields       []FieldSchema `json:"fields" yaml:"fields" toml:"fields" mapstructure:"fields"`
}

// Empty reports whether the schema declares nothing.
func (s Schema) Empty() bool {
	return s.Unknown == "" && len(s.Fields) == 0
}

// Build converts the schema into a [Set].
func (s Schema) Build() (*Set, error) {
	policy, err := ParseUnknownPolicy(s.Unknown)
	if err != nil {
		return nil, err
	}
	rs := make([]*Rule, 0, len(s.Fields))
	for _, f := range s.Fields {
		r, rerr := f.rule()
		if rerr != nil {
			return nil, rerr
		}
		rs = append(rs, r)
	}

	return NewSet(policy, rs...)
}

func (f FieldSchema) rule() (*Rule, error) {
	kind, err := sink.ParseKind(f.Storage)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidRule, f.Name, err)
	}
	r := &Rule{
		Name:          f.Name,
		Required:      f.Required,
		AllowMultiple: f.Multiple,
		ContentTypes:  append([]string(nil), f.ContentTypes...),
		Sink:          kind,
	}
	if len(f.Fields) > 0 && len(r.ContentTypes) == 0 {
		r.ContentTypes = []string{"multipart/mixed"}
	}
	for _, child := range f.Fields {
		c, cerr := child.rule()
		if cerr != nil {
			return nil, cerr
		}
		r.Children = append(r.Children, c)
	}

	return r, nil
}

// ParseSchema decodes a schema in the given format ("yaml", "yml", "json" or
// "toml") and builds the set. Unknown keys are rejected.
func ParseSchema(data []byte, format string) (*Set, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		return LoadSchemaYAML(data)
	case "toml":
		return LoadSchemaTOML(data)
	case "json":
		return LoadSchemaJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported schema format %q", ErrInvalidRule, format)
	}
}

// LoadSchemaYAML builds a set from a YAML description.
func LoadSchemaYAML(data []byte) (*Set, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: yaml: %w", ErrInvalidRule, err)
	}

	return s.Build()
}

// LoadSchemaJSON builds a set from a JSON description.
func LoadSchemaJSON(data []byte) (*Set, error) {
	var s Schema
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrInvalidRule, err)
	}

	return s.Build()
}

// LoadSchemaTOML builds a set from a TOML description. Nested fields use
// arrays of tables:
//
//	unknown = "reject"
//
//	[[fields]]
//	name = "note"
//	required = true
func LoadSchemaTOML(data []byte) (*Set, error) {
	var s Schema
	md, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, fmt.Errorf("%w: toml: %w", ErrInvalidRule, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: toml: unknown key %q", ErrInvalidRule, undecoded[0].String())
	}

	return s.Build()
}
