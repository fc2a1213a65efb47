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

package framer

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"rivaas.dev/upload/limit"
)

// Default framing limits.
const (
	DefaultMaxParts        = 1000
	DefaultMaxHeaderBytes  = 16 << 10
	DefaultMaxNestingDepth = 1
	DefaultBufferSize      = 64 << 10

	// NoNesting as MaxNestingDepth rejects every multipart part inside the
	// body. Zero cannot express this because it selects the default.
	NoNesting = -2

	// maxBoundaryLen is the RFC 2046 ceiling on boundary length.
	maxBoundaryLen = 70

	// minBufferSize keeps room for a delimiter plus its trailer.
	minBufferSize = 4 << 10
)

// ErrMalformed is matched by every framing violation.
var ErrMalformed = errors.New("malformed multipart body")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// State is a framer state.
type State int

const (
	StatePreamble State = iota
	StateHeaders
	StateBody
	StateEpilogue
	StateDone
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePreamble:
		return "preamble"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateEpilogue:
		return "epilogue"
	case StateDone:
		return "done"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Config holds the framing limits. Negative values disable a limit; zero
// values select the defaults. MaxNestingDepth additionally accepts
// [NoNesting].
type Config struct {
	MaxParts        int64 // Parts across the whole body, nested ones included
	MaxHeaderBytes  int64 // Header block bytes per part
	MaxNestingDepth int   // Multipart levels below the top-level body
	BufferSize      int   // Read buffer per multipart level
}

func (c Config) withDefaults() Config {
	if c.MaxParts == 0 {
		c.MaxParts = DefaultMaxParts
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	switch c.MaxNestingDepth {
	case 0:
		c.MaxNestingDepth = DefaultMaxNestingDepth
	case NoNesting:
		c.MaxNestingDepth = 0
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	c.BufferSize = max(c.BufferSize, minBufferSize)

	return c
}

// Framer yields the parts of one multipart body.
//
// Framer is not safe for concurrent use.
type Framer struct {
	cfg    Config
	levels []*level
	parts  *limit.Budget
	state  State
	err    error
}

// level is one multipart body: the top-level request body or the body of a
// container part.
type level struct {
	br        *bufio.Reader
	dash      []byte // "--" + boundary
	nlDash    []byte // "\n--" + boundary
	depth     int
	scope     string
	started   bool
	current   *Part
	container *Part
}

func newLevel(r io.Reader, boundary string, depth int, scope string, size int) *level {
	return &level{
		br:     bufio.NewReaderSize(r, size),
		dash:   []byte("--" + boundary),
		nlDash: []byte("\n--" + boundary),
		depth:  depth,
		scope:  scope,
	}
}

// New returns a Framer over r for the given boundary.
func New(r io.Reader, boundary string, cfg Config) (*Framer, error) {
	if err := validateBoundary(boundary); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	return &Framer{
		cfg:    cfg,
		levels: []*level{newLevel(r, boundary, 0, "", cfg.BufferSize)},
		parts:  limit.NewBudget(cfg.MaxParts, limit.KindParts),
	}, nil
}

func validateBoundary(boundary string) error {
	if boundary == "" {
		return malformed("missing boundary")
	}
	if len(boundary) > maxBoundaryLen {
		return malformed("boundary longer than %d bytes", maxBoundaryLen)
	}

	return nil
}

// State returns the current framer state.
func (f *Framer) State() State {
	return f.state
}

// Parts returns the number of parts seen so far, containers included.
func (f *Framer) Parts() int64 {
	return f.parts.Used()
}

// Next returns the next part. Unread bytes of the previous part are
// discarded. Next returns [io.EOF] once the closing boundary of the top-level
// body has been read and the epilogue drained.
func (f *Framer) Next() (*Part, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.state == StateDone {
		return nil, io.EOF
	}

	part, err := f.next()
	if err == io.EOF {
		f.state = StateDone
		return nil, io.EOF
	}
	if err != nil {
		f.state = StateFaulted
		f.err = err

		return nil, err
	}

	return part, nil
}

func (f *Framer) next() (*Part, error) {
	for {
		lv := f.levels[len(f.levels)-1]

		if lv.current != nil {
			if err := lv.current.drain(); err != nil {
				return nil, err
			}
			lv.current = nil
		}

		var (
			final bool
			err   error
		)
		if !lv.started {
			f.state = StatePreamble
			final, err = lv.skipPreamble()
			lv.started = true
		} else {
			final, err = lv.consumeDelimiter()
		}
		if err != nil {
			return nil, err
		}

		if final {
			f.state = StateEpilogue
			if _, err := io.Copy(io.Discard, lv.br); err != nil {
				return nil, err
			}
			if len(f.levels) == 1 {
				return nil, io.EOF
			}
			// The parent's current part is the container whose body this
			// level consumed; the next iteration closes it.
			f.levels = f.levels[:len(f.levels)-1]

			continue
		}

		f.state = StateHeaders
		part, err := f.readPart(lv)
		if err != nil {
			return nil, err
		}
		lv.current = part
		f.state = StateBody

		return part, nil
	}
}

func (f *Framer) readPart(lv *level) (*Part, error) {
	if err := f.parts.Spend(1); err != nil {
		return nil, err
	}

	header, err := readHeader(lv.br, limit.NewBudget(f.cfg.MaxHeaderBytes, limit.KindHeader))
	if err != nil {
		return nil, err
	}

	part, err := newPart(header)
	if err != nil {
		return nil, err
	}
	part.Scope = lv.scope
	part.Depth = lv.depth
	part.Index = int(f.parts.Used() - 1)
	part.r = &partReader{lv: lv}

	if !part.isMultipart() {
		return part, nil
	}

	boundary := part.Params["boundary"]
	if err := validateBoundary(boundary); err != nil {
		return nil, fmt.Errorf("part %q: %w", part.Name, err)
	}

	depth := lv.depth + 1
	if f.cfg.MaxNestingDepth >= 0 && depth > f.cfg.MaxNestingDepth {
		return nil, &limit.Error{
			Kind:  limit.KindDepth,
			Limit: int64(f.cfg.MaxNestingDepth),
			Read:  int64(depth),
		}
	}

	part.container = true
	nested := newLevel(part.r, boundary, depth, part.Name, f.cfg.BufferSize)
	nested.container = part
	f.levels = append(f.levels, nested)

	return part, nil
}

// skipPreamble discards lines up to and including the first boundary line.
func (lv *level) skipPreamble() (final bool, err error) {
	keep := len(lv.dash) + 2 + maxBoundaryPadding
	for {
		line, truncated, err := readLine(lv.br, nil, keep)
		if len(line) > 0 && !truncated {
			if ok, fin := lv.matchBoundaryLine(line, err == io.EOF); ok {
				return fin, nil
			}
		}
		if err == io.EOF {
			return false, malformed("no opening boundary")
		}
		if err != nil {
			return false, err
		}
	}
}

// consumeDelimiter reads the delimiter the previous part stopped at.
func (lv *level) consumeDelimiter() (final bool, err error) {
	keep := len(lv.dash) + 2 + maxBoundaryPadding

	line, truncated, err := readLine(lv.br, nil, keep)
	if err != nil && err != io.EOF {
		return false, err
	}
	if !truncated && len(trimEOL(line)) == 0 && err == nil {
		// CRLF that ends the previous body belongs to the delimiter.
		line, truncated, err = readLine(lv.br, nil, keep)
		if err != nil && err != io.EOF {
			return false, err
		}
	}

	if !truncated {
		if ok, fin := lv.matchBoundaryLine(line, err == io.EOF); ok {
			return fin, nil
		}
	}

	return false, malformed("expected boundary delimiter")
}

// maxBoundaryPadding bounds the linear whitespace accepted after a boundary.
const maxBoundaryPadding = 256

// matchBoundaryLine reports whether line is a delimiter or close-delimiter.
// Only linear whitespace may follow either. A plain delimiter must be
// newline-terminated; a close-delimiter may end at EOF.
func (lv *level) matchBoundaryLine(line []byte, atEOF bool) (ok, final bool) {
	trimmed := trimEOL(line)
	if len(trimmed) < len(lv.dash) || string(trimmed[:len(lv.dash)]) != string(lv.dash) {
		return false, false
	}

	rest := trimmed[len(lv.dash):]
	if len(rest) >= 2 && rest[0] == '-' && rest[1] == '-' {
		if !isLWSP(rest[2:]) {
			return false, false
		}

		return true, true
	}
	if !isLWSP(rest) {
		return false, false
	}
	if atEOF && len(trimmed) == len(line) {
		return false, false
	}

	return true, false
}
