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
	"bytes"
	"io"
	"net/textproto"
	"strings"
)

// Part is one part of a multipart body. Its body is read through
// [Part.Read] and ends at the next delimiter.
type Part struct {
	Name        string               // Content-Disposition name parameter
	FileName    string               // Base name of the filename parameter, if any
	Disposition string               // Content-Disposition type (form-data, attachment, ...)
	ContentType string               // Lower-cased media type without parameters
	Params      map[string]string    // Content-Type parameters
	Charset     string               // Content-Type charset parameter
	Encoding    string               // Content-Encoding header
	Header      textproto.MIMEHeader // All part headers
	Scope       string               // Name of the enclosing container part, "" at top level
	Depth       int                  // 0 for parts of the top-level body
	Index       int                  // Ordinal across the whole body, containers included

	container bool
	r         *partReader
}

// IsContainer reports whether the part holds a nested multipart body. The
// nested parts are returned by the following calls to [Framer.Next]; reading
// a container directly yields no data.
func (p *Part) IsContainer() bool {
	return p.container
}

// HasFileName reports whether the part declared a non-empty filename.
func (p *Part) HasFileName() bool {
	return p.FileName != ""
}

// Read reads the part body.
func (p *Part) Read(b []byte) (int, error) {
	if p.container || p.r == nil {
		return 0, io.EOF
	}

	return p.r.Read(b)
}

func (p *Part) isMultipart() bool {
	return strings.HasPrefix(p.ContentType, "multipart/")
}

func (p *Part) drain() error {
	if p.r == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, p.r)

	return err
}

// partReader reads one part body from its level up to the next delimiter.
// The delimiter itself stays buffered for [level.consumeDelimiter].
type partReader struct {
	lv    *level
	total int64
	done  bool
	err   error
}

func (pr *partReader) Read(p []byte) (int, error) {
	if pr.err != nil {
		return 0, pr.err
	}
	if pr.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	br := pr.lv.br
	peek, err := br.Peek(br.Size())
	eof := err == io.EOF
	if err != nil && !eof {
		pr.err = err
		return 0, err
	}

	safe, found := pr.scan(peek, eof)
	if safe == 0 {
		switch {
		case found:
			pr.done = true
			return 0, io.EOF
		case eof:
			pr.err = malformed("missing closing boundary")
		default:
			pr.err = malformed("delimiter line exceeds read buffer")
		}

		return 0, pr.err
	}

	n := copy(p, peek[:safe])
	if _, err := br.Discard(n); err != nil {
		pr.err = err
		return 0, err
	}
	pr.total += int64(n)

	return n, nil
}

// scan returns how many leading bytes of buf are body data and whether a
// confirmed delimiter follows them.
func (pr *partReader) scan(buf []byte, eof bool) (int, bool) {
	dash, nlDash := pr.lv.dash, pr.lv.nlDash

	// A body may be empty with the delimiter directly after the header
	// block's blank line.
	if pr.total == 0 {
		switch {
		case bytes.HasPrefix(buf, dash):
			if m := boundaryAt(buf[len(dash):], eof); m != matchNo {
				return 0, m == matchYes
			}
		case !eof && bytes.HasPrefix(dash, buf):
			return 0, false
		}
	}

	off := 0
	for {
		i := bytes.Index(buf[off:], nlDash)
		if i < 0 {
			break
		}
		i += off

		start := i
		if start > 0 && buf[start-1] == '\r' {
			start--
		}
		switch boundaryAt(buf[i+len(nlDash):], eof) {
		case matchYes:
			return start, true
		case matchMore:
			return start, false
		}
		off = i + 1
	}

	if eof {
		return len(buf), false
	}

	// Hold back a tail that may be the start of a delimiter.
	safe := len(buf) - len(nlDash)
	if safe > 0 && buf[safe-1] == '\r' {
		safe--
	}

	return max(safe, 0), false
}

type match int

const (
	matchNo match = iota
	matchYes
	matchMore
)

// boundaryAt decides whether the bytes after "--boundary" complete a
// delimiter: optional "--" for the close-delimiter, then optional linear
// whitespace and a line break. A close-delimiter may also end at EOF.
func boundaryAt(rest []byte, eof bool) match {
	more := matchMore
	if eof {
		more = matchNo
	}

	if len(rest) == 0 {
		return more
	}
	if rest[0] == '-' {
		if len(rest) == 1 {
			return more
		}
		if rest[1] == '-' {
			return closeAt(rest[2:], eof)
		}

		return matchNo
	}

	return lineEndAt(rest, more)
}

// closeAt matches what may follow a close-delimiter.
func closeAt(rest []byte, eof bool) match {
	if eof && isLWSP(trimEOL(rest)) {
		return matchYes
	}

	return lineEndAt(rest, matchMore)
}

// lineEndAt matches optional linear whitespace and a line break. more is
// returned when rest ends before the line does.
func lineEndAt(rest []byte, more match) match {
	rest = bytes.TrimLeft(rest, " \t")
	switch {
	case len(rest) == 0:
		return more
	case rest[0] == '\n':
		return matchYes
	case rest[0] == '\r':
		if len(rest) == 1 {
			return more
		}
		if rest[1] == '\n' {
			return matchYes
		}
	}

	return matchNo
}
