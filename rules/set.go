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
	"fmt"
	"slices"
	"strings"
)

// UnknownPolicy decides what happens to parts no rule describes.
type UnknownPolicy int

const (
	// UnknownAccept keeps parts without a rule.
	UnknownAccept UnknownPolicy = iota
	// UnknownReject fails the parse on the first part without a rule.
	UnknownReject
)

// String returns the policy name.
func (p UnknownPolicy) String() string {
	if p == UnknownReject {
		return "reject"
	}

	return "accept"
}

// ParseUnknownPolicy parses "accept" or "reject". The empty string is
// [UnknownAccept].
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "accept":
		return UnknownAccept, nil
	case "reject":
		return UnknownReject, nil
	default:
		return UnknownAccept, fmt.Errorf("%w: unknown part policy %q", ErrInvalidRule, s)
	}
}

type key struct {
	scope string
	name  string
}

// Set is an immutable, flattened collection of rules. It is safe for
// concurrent use; per-parse state lives in a [Tracker].
type Set struct {
	policy UnknownPolicy
	rules  []*Rule
	index  map[key]*Rule
}

// NewSet flattens the given rule trees and indexes them by scope and name.
// The rules are copied; later changes to them do not affect the set.
//
// Errors:
//   - [ErrInvalidRule]: two rules share a scope and name, or a rule declares
//     children without a multipart content type
func NewSet(policy UnknownPolicy, rules ...*Rule) (*Set, error) {
	s := &Set{
		policy: policy,
		index:  make(map[key]*Rule),
	}
	for _, r := range rules {
		if r == nil {
			continue
		}
		if err := s.add(r.clone(), nil); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// MustNew is like [NewSet] but panics on error.
func MustNew(policy UnknownPolicy, rules ...*Rule) *Set {
	s, err := NewSet(policy, rules...)
	if err != nil {
		panic(err)
	}

	return s
}

func (s *Set) add(r, parent *Rule) error {
	r.parent = parent
	r.Scope = ""
	if parent != nil {
		r.Scope = parent.Name
	}
	k := key{scope: r.Scope, name: r.Name}
	if _, dup := s.index[k]; dup {
		return fmt.Errorf("%w: duplicate rule %q", ErrInvalidRule, r.Path())
	}
	if len(r.Children) > 0 && !r.IsContainer() {
		return fmt.Errorf("%w: rule %q has children but no multipart content type", ErrInvalidRule, r.Path())
	}
	s.index[k] = r
	s.rules = append(s.rules, r)
	for _, child := range r.Children {
		if err := s.add(child, r); err != nil {
			return err
		}
	}

	return nil
}

// Policy returns the unknown-part policy.
func (s *Set) Policy() UnknownPolicy {
	if s == nil {
		return UnknownAccept
	}

	return s.policy
}

// Rules returns every rule, containers followed by their children, in
// declaration order.
func (s *Set) Rules() []*Rule {
	if s == nil {
		return nil
	}

	return append([]*Rule(nil), s.rules...)
}

// Len returns the number of flattened rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.rules)
}

// Lookup returns the rule for name inside scope.
func (s *Set) Lookup(scope, name string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.index[key{scope: scope, name: name}]

	return r, ok
}

// Tracker returns fresh per-parse state for the set. A nil set yields a
// tracker that accepts every part.
func (s *Set) Tracker() *Tracker {
	return &Tracker{set: s, seen: make(map[*Rule]int)}
}

// Tracker applies a [Set] to the parts of a single parse. It is not safe for
// concurrent use.
//
// Counts of a container's children belong to one container instance: each
// time the container matches again its descendants start from zero, and
// their requirements are checked when the instance is left.
type Tracker struct {
	set  *Set
	seen map[*Rule]int

	// open lists the container instances not yet left, outermost first.
	open []*Rule
}

// Check decides the rule for one part. It returns the matching rule, or nil
// when no rule describes the part and unknown parts are accepted. A matching
// container opens a new instance; a previous instance of the same container
// that was never left is left first.
//
// Errors:
//   - [ErrDisallowedContentType]: the content type is not accepted
//   - [ErrDuplicateNotAllowed]: a single-occurrence part repeats
//   - [ErrUnexpectedPart]: no rule matches under [UnknownReject]
//   - [*MissingError]: the previous instance of the container lacks a
//     required child
func (t *Tracker) Check(scope, name, contentType string) (*Rule, error) {
	r, ok := t.set.Lookup(scope, name)
	if !ok {
		if t.set.Policy() == UnknownReject {
			return nil, &Violation{Name: name, Scope: scope, ContentType: contentType, Err: ErrUnexpectedPart}
		}

		return nil, nil
	}
	if !r.Accepts(contentType) {
		return nil, &Violation{
			Name:        name,
			Scope:       scope,
			ContentType: contentType,
			Allowed:     r.ContentTypes,
			Err:         ErrDisallowedContentType,
		}
	}
	if t.seen[r] > 0 && !r.AllowMultiple {
		return nil, &Violation{Name: name, Scope: scope, ContentType: contentType, Err: ErrDuplicateNotAllowed}
	}
	if len(r.Children) > 0 {
		if err := t.Leave(r); err != nil {
			return nil, err
		}
		t.reset(r)
		t.open = append(t.open, r)
	}
	t.seen[r]++

	return r, nil
}

// Leave closes the open instance of container r together with every
// instance opened inside it, innermost first. It reports the required
// children each closed instance lacks. Leaving a rule that is not open is a
// no-op.
func (t *Tracker) Leave(r *Rule) error {
	if r == nil {
		return nil
	}
	i := slices.Index(t.open, r)
	if i < 0 {
		return nil
	}

	var missing []string
	for j := len(t.open) - 1; j >= i; j-- {
		for _, child := range t.open[j].Children {
			if child.Required && t.seen[child] == 0 {
				missing = append(missing, child.Path())
			}
		}
	}
	t.open = t.open[:i]
	if len(missing) == 0 {
		return nil
	}

	return &MissingError{Names: missing}
}

// reset clears the counts of every descendant of r.
func (t *Tracker) reset(r *Rule) {
	for _, child := range r.Children {
		delete(t.seen, child)
		t.reset(child)
	}
}

// Seen returns how many parts matched the rule for name inside scope. For
// children the count covers the current or last instance of the container.
func (t *Tracker) Seen(scope, name string) int {
	r, ok := t.set.Lookup(scope, name)
	if !ok {
		return 0
	}

	return t.seen[r]
}

// Finish reports every required rule that matched no part as a single
// [*MissingError]: top-level rules, and children of container instances
// that were never left. Children of a container that never appeared are
// only reported through the container itself. Finish does not change the
// tracker.
func (t *Tracker) Finish() error {
	var missing []string
	for _, r := range t.set.Rules() {
		if !r.Required || t.seen[r] > 0 {
			continue
		}
		if r.parent != nil && !slices.Contains(t.open, r.parent) {
			continue
		}
		missing = append(missing, r.Path())
	}
	if len(missing) == 0 {
		return nil
	}

	return &MissingError{Names: missing}
}
