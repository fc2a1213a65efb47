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

package limit

import (
	"errors"
	"fmt"
)

// Unlimited disables a ceiling. Any negative value has the same effect.
const Unlimited int64 = -1

// ErrLimitExceeded is matched by every [*Error] via [errors.Is].
var ErrLimitExceeded = errors.New("limit exceeded")

// Kind names the ceiling that was violated.
type Kind string

const (
	// KindBody is the request body ceiling.
	KindBody Kind = "body"
	// KindPart is the raw body ceiling of a single part.
	KindPart Kind = "part"
	// KindField is the ceiling of a field value held in memory.
	KindField Kind = "field"
	// KindHeader is the header block ceiling of a single part.
	KindHeader Kind = "header"
	// KindDecompressed is the decoded output ceiling of a single part.
	KindDecompressed Kind = "decompressed"
	// KindParts is the part count ceiling of a whole parse.
	KindParts Kind = "parts"
	// KindDepth is the multipart nesting depth ceiling.
	KindDepth Kind = "depth"
)

// Error reports a violated ceiling.
//
// Read is the amount observed when the ceiling was crossed: bytes for byte
// ceilings, parts for [KindParts], levels for [KindDepth].
type Error struct {
	Kind  Kind
	Limit int64
	Read  int64
}

// Error returns a human-readable description of the violation.
func (e *Error) Error() string {
	switch e.Kind {
	case KindParts:
		return fmt.Sprintf("too many parts: limit is %d, observed %d", e.Limit, e.Read)
	case KindDepth:
		return fmt.Sprintf("multipart nesting too deep: limit is %d, observed %d", e.Limit, e.Read)
	default:
		return fmt.Sprintf("%s size limit of %d bytes exceeded (read %d)", e.Kind, e.Limit, e.Read)
	}
}

// Is reports whether target is [ErrLimitExceeded].
func (e *Error) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Budget tracks consumption against a ceiling.
//
// Budget is not safe for concurrent use.
type Budget struct {
	kind  Kind
	limit int64
	used  int64
	err   *Error
}

// NewBudget returns a budget of limit units. A negative limit never trips.
func NewBudget(limit int64, kind Kind) *Budget {
	return &Budget{kind: kind, limit: limit}
}

// Spend records n units and returns an [*Error] once the total passes the
// ceiling. After the first violation Spend always returns the same error and
// no longer changes the counter.
func (b *Budget) Spend(n int64) error {
	if b.err != nil {
		return b.err
	}
	b.used += n
	if b.limit >= 0 && b.used > b.limit {
		b.err = &Error{Kind: b.kind, Limit: b.limit, Read: b.used}
		return b.err
	}

	return nil
}

// Used returns the units spent so far.
func (b *Budget) Used() int64 {
	return b.used
}

// Limit returns the ceiling.
func (b *Budget) Limit() int64 {
	return b.limit
}

// Kind returns the ceiling kind.
func (b *Budget) Kind() Kind {
	return b.kind
}

// Remaining returns the units left before the ceiling, or [Unlimited].
func (b *Budget) Remaining() int64 {
	if b.limit < 0 {
		return Unlimited
	}
	if b.used >= b.limit {
		return 0
	}

	return b.limit - b.used
}

// Err returns the violation, if any. The return value is a plain error so
// that a nil budget error compares equal to nil.
func (b *Budget) Err() error {
	if b.err == nil {
		return nil
	}

	return b.err
}
