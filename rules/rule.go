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
	"strings"

	"rivaas.dev/upload/sink"
)

// Rule describes the expectations for one named part.
//
// A rule is a container when one of its content types is a multipart type.
// Its children then describe the parts nested inside the container and are
// addressed with Scope set to the container's name once the rule is added to
// a [Set].
type Rule struct {
	Name          string
	Required      bool
	AllowMultiple bool
	ContentTypes  []string  // Accepted media types; empty accepts any
	Scope         string    // Name of the enclosing container rule, set by NewSet
	Sink          sink.Kind // Storage override; sink.Auto dispatches on filename
	Children      []*Rule

	parent *Rule
}

// Option configures a [Rule].
type Option func(*Rule)

// New creates a rule for the part called name.
//
// Example:
//
//	rules.New("avatar", rules.Required(), rules.ContentTypes("image/*"), rules.Sink(sink.Disk))
func New(name string, opts ...Option) *Rule {
	r := &Rule{Name: name}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Required marks the part as mandatory.
func Required() Option {
	return func(r *Rule) {
		r.Required = true
	}
}

// Multiple allows the part to appear more than once.
func Multiple() Option {
	return func(r *Rule) {
		r.AllowMultiple = true
	}
}

// ContentTypes restricts the accepted media types. Entries may use the
// "type/*" and "*/*" wildcards. Matching is case-insensitive.
func ContentTypes(types ...string) Option {
	return func(r *Rule) {
		r.ContentTypes = append(r.ContentTypes, types...)
	}
}

// Children declares the rules for parts nested inside a container.
func Children(children ...*Rule) Option {
	return func(r *Rule) {
		r.Children = append(r.Children, children...)
	}
}

// Sink forces where the part body is stored.
func Sink(kind sink.Kind) Option {
	return func(r *Rule) {
		r.Sink = kind
	}
}

// IsContainer reports whether the rule describes a nested multipart part.
func (r *Rule) IsContainer() bool {
	for _, ct := range r.ContentTypes {
		if strings.HasPrefix(mediaType(ct), "multipart/") {
			return true
		}
	}

	return false
}

// Path returns the scope-qualified rule name, e.g. "batch.manifest".
func (r *Rule) Path() string {
	return qualify(r.Scope, r.Name)
}

// Accepts reports whether contentType satisfies the rule. Parameters are
// ignored.
func (r *Rule) Accepts(contentType string) bool {
	if len(r.ContentTypes) == 0 {
		return true
	}
	mt := mediaType(contentType)
	for _, allowed := range r.ContentTypes {
		if matchMediaType(mediaType(allowed), mt) {
			return true
		}
	}

	return false
}

func matchMediaType(pattern, mt string) bool {
	switch {
	case pattern == "*/*" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "/*"):
		return strings.HasPrefix(mt, pattern[:len(pattern)-1])
	default:
		return pattern == mt
	}
}

func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}

	return strings.ToLower(strings.TrimSpace(ct))
}

func (r *Rule) clone() *Rule {
	c := *r
	c.ContentTypes = append([]string(nil), r.ContentTypes...)
	c.Children = make([]*Rule, 0, len(r.Children))
	for _, child := range r.Children {
		c.Children = append(c.Children, child.clone())
	}

	return &c
}
