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

// Package openapi derives upload rule sets from OpenAPI 3 documents.
//
// The multipart/form-data (or multipart/mixed) request body schema of an
// operation maps onto rules as follows:
//
//   - every property becomes a rule; names listed in "required" are required
//   - array properties may repeat
//   - encoding.<property>.contentType restricts the accepted content types
//   - strings with format "binary" are stored on disk
//   - a property whose encoding is a multipart type and whose schema is an
//     object becomes a container; its properties become the children
//
// Example:
//
//	set, err := openapi.Load(ctx, specBytes, http.MethodPost, "/documents", rules.UnknownReject)
package openapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"rivaas.dev/upload/rules"
	"rivaas.dev/upload/sink"
)

// Static errors for rule derivation.
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrNoMultipartBody   = errors.New("operation has no multipart request body")
)

// bodyTypes lists the request body media types rules can be derived from, in
// order of preference.
var bodyTypes = []string{"multipart/form-data", "multipart/mixed"}

// Load parses an OpenAPI document and derives the rule set for the operation
// at method and path.
func Load(ctx context.Context, data []byte, method, path string, policy rules.UnknownPolicy) (*rules.Set, error) {
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}

	return FromDocument(doc, method, path, policy)
}

// FromDocument derives the rule set for the operation at method and path.
func FromDocument(doc *openapi3.T, method, path string, policy rules.UnknownPolicy) (*rules.Set, error) {
	if doc == nil || doc.Paths == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrOperationNotFound, method, path)
	}
	item := doc.Paths.Find(path)
	if item == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrOperationNotFound, method, path)
	}
	op := item.GetOperation(strings.ToUpper(method))
	if op == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrOperationNotFound, method, path)
	}

	return FromOperation(op, policy)
}

// FromOperation derives the rule set from the request body of op.
func FromOperation(op *openapi3.Operation, policy rules.UnknownPolicy) (*rules.Set, error) {
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil, ErrNoMultipartBody
	}
	content := op.RequestBody.Value.Content
	for _, ct := range bodyTypes {
		mt := content.Get(ct)
		if mt == nil || mt.Schema == nil || mt.Schema.Value == nil {
			continue
		}

		return rules.NewSet(policy, objectRules(mt.Schema.Value, mt.Encoding)...)
	}

	return nil, ErrNoMultipartBody
}

func objectRules(schema *openapi3.Schema, encoding map[string]*openapi3.Encoding) []*rules.Rule {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*rules.Rule, 0, len(names))
	for _, name := range names {
		ref := schema.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		out = append(out, propertyRule(name, ref.Value, slices.Contains(schema.Required, name), encoding[name]))
	}

	return out
}

func propertyRule(name string, prop *openapi3.Schema, required bool, enc *openapi3.Encoding) *rules.Rule {
	var opts []rules.Option
	if required {
		opts = append(opts, rules.Required())
	}

	item := prop
	if hasType(prop, openapi3.TypeArray) {
		opts = append(opts, rules.Multiple())
		if prop.Items != nil && prop.Items.Value != nil {
			item = prop.Items.Value
		}
	}
	if hasType(item, openapi3.TypeString) && item.Format == "binary" {
		opts = append(opts, rules.Sink(sink.Disk))
	}

	var types []string
	if enc != nil {
		for ct := range strings.SplitSeq(enc.ContentType, ",") {
			if ct = strings.TrimSpace(ct); ct != "" {
				types = append(types, ct)
			}
		}
	}
	if len(types) > 0 {
		opts = append(opts, rules.ContentTypes(types...))
	}
	if isMultipart(types) && hasType(item, openapi3.TypeObject) && len(item.Properties) > 0 {
		opts = append(opts, rules.Children(objectRules(item, nil)...))
	}

	return rules.New(name, opts...)
}

func hasType(s *openapi3.Schema, typ string) bool {
	if s == nil || s.Type == nil {
		return false
	}

	return slices.Contains(s.Type.Slice(), typ)
}

func isMultipart(types []string) bool {
	return slices.ContainsFunc(types, func(ct string) bool {
		return strings.HasPrefix(strings.ToLower(ct), "multipart/")
	})
}
