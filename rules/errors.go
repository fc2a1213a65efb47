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
	"errors"
	"fmt"
	"strings"
)

// Static errors for rule validation.
var (
	ErrDisallowedContentType = errors.New("content type not allowed")
	ErrDuplicateNotAllowed   = errors.New("duplicate part not allowed")
	ErrUnexpectedPart        = errors.New("unexpected part")
	ErrMissingRequired       = errors.New("missing required part")
	ErrInvalidRule           = errors.New("invalid rule")
)

// Violation reports a part that broke a rule.
//
// Use [errors.Is] with the static errors to tell violations apart:
//
//	var v *rules.Violation
//	if errors.As(err, &v) && errors.Is(err, rules.ErrDuplicateNotAllowed) {
//	    log.Printf("field %s sent twice", v.Path())
//	}
type Violation struct {
	Name        string   // Part name
	Scope       string   // Enclosing container name, "" at top level
	ContentType string   // Declared content type of the part
	Allowed     []string // Accepted content types, for ErrDisallowedContentType
	Err         error    // One of the static errors
}

// Path returns the scope-qualified part name.
func (v *Violation) Path() string {
	return qualify(v.Scope, v.Name)
}

// Error returns a formatted error message.
func (v *Violation) Error() string {
	switch {
	case errors.Is(v.Err, ErrDisallowedContentType):
		return fmt.Sprintf("part %q: content type %q not allowed (allowed: %s)",
			v.Path(), v.ContentType, strings.Join(v.Allowed, ", "))
	case errors.Is(v.Err, ErrDuplicateNotAllowed):
		return fmt.Sprintf("part %q: only one occurrence allowed", v.Path())
	case errors.Is(v.Err, ErrUnexpectedPart):
		return fmt.Sprintf("part %q: no rule accepts this part", v.Path())
	default:
		return fmt.Sprintf("part %q: %v", v.Path(), v.Err)
	}
}

// Unwrap returns the static error.
func (v *Violation) Unwrap() error {
	return v.Err
}

// MissingError lists every required part that never appeared. It is reported
// once per parse.
type MissingError struct {
	Names []string // Scope-qualified names, in declaration order
}

// Error returns a formatted error message.
func (e *MissingError) Error() string {
	if len(e.Names) == 1 {
		return "missing required part: " + e.Names[0]
	}

	return "missing required parts: " + strings.Join(e.Names, ", ")
}

// Is reports whether target is [ErrMissingRequired].
func (e *MissingError) Is(target error) bool {
	return target == ErrMissingRequired
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}

	return scope + "." + name
}
