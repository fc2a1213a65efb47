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

package decode

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"rivaas.dev/upload/limit"
)

// Static errors for decoding.
var (
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
	ErrDecode              = errors.New("corrupt encoded content")
)

// Error reports corrupt encoded data.
type Error struct {
	Encoding string // Encoding whose decoder failed
	Err      error  // Decoder error
}

// Error returns a formatted error message.
func (e *Error) Error() string {
	return fmt.Sprintf("decoding %s content: %v", e.Encoding, e.Err)
}

// Unwrap returns the decoder error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is [ErrDecode].
func (e *Error) Is(target error) bool {
	return target == ErrDecode
}

// Policy controls when [Wrap] installs a decoder.
type Policy struct {
	// Enabled turns decompression on.
	Enabled bool

	// Allowed lists the encodings that may be decoded. Names are matched
	// case-insensitively.
	Allowed []string

	// RejectUnknown fails parts whose encoding cannot be decoded instead of
	// passing their bytes through.
	RejectUnknown bool

	// MaxBytes bounds the decoded output. Negative means unlimited.
	MaxBytes int64
}

func (p Policy) allows(encoding string) bool {
	return slices.ContainsFunc(p.Allowed, func(a string) bool {
		return Normalize(a) == encoding
	})
}

// Wrap returns a reader over src that undoes encoding according to p.
//
// The boolean result reports whether a decoder was installed. Closing the
// returned reader releases decoder resources; it never closes src.
//
// A Content-Encoding list such as "gzip, br" is undone from the last coding
// to the first, and every coding in the list must be decodable.
func Wrap(src io.Reader, encoding string, p Policy) (io.ReadCloser, bool, error) {
	codings := parseCodings(encoding)
	if len(codings) == 0 {
		return io.NopCloser(src), false, nil
	}

	openers := make([]Opener, len(codings))
	for i, coding := range codings {
		open, ok := lookup(coding)
		if !p.Enabled || !ok || !p.allows(coding) {
			if p.RejectUnknown {
				return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, strings.TrimSpace(encoding))
			}

			return io.NopCloser(src), false, nil
		}
		openers[i] = open
	}

	source := &sourceReader{r: src}
	var (
		current io.Reader = source
		closers []io.Closer
	)
	for i := len(codings) - 1; i >= 0; i-- {
		dec, err := openers[i](current)
		if err != nil {
			closeAll(closers)
			return nil, false, source.classify(codings[i], err)
		}
		closers = append(closers, dec)
		current = &decodingReader{r: dec, source: source, encoding: codings[i]}
	}

	return &stack{
		Reader:  limit.NewReader(current, p.MaxBytes, limit.KindDecompressed),
		closers: closers,
	}, true, nil
}

// parseCodings splits a Content-Encoding value, dropping identity codings.
func parseCodings(encoding string) []string {
	var codings []string
	for token := range strings.SplitSeq(encoding, ",") {
		token = Normalize(token)
		if token == "" || token == "identity" {
			continue
		}
		codings = append(codings, token)
	}

	return codings
}

// sourceReader remembers the last error of the raw part stream so decoder
// errors can be told apart from transport errors.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}

	return n, err
}

func (s *sourceReader) classify(encoding string, err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	if s.err != nil && errors.Is(err, s.err) {
		return s.err
	}
	if errors.Is(err, ErrDecode) {
		return err
	}

	return &Error{Encoding: encoding, Err: err}
}

type decodingReader struct {
	r        io.Reader
	source   *sourceReader
	encoding string
}

func (d *decodingReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil {
		err = d.source.classify(d.encoding, err)
	}

	return n, err
}

type stack struct {
	io.Reader
	closers []io.Closer
}

func (s *stack) Close() error {
	return closeAll(s.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
