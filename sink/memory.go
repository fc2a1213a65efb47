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

package sink

import (
	"bytes"
	"context"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// MemorySink reads part bodies into memory.
type MemorySink struct {
	// DefaultCharset applies when a part declares none. Empty means UTF-8.
	DefaultCharset string
}

// Store drains r into a buffer and decodes it using info.Charset. Unknown
// charsets leave the bytes as they are.
func (m MemorySink) Store(ctx context.Context, r io.Reader, info Info) (*Result, error) {
	var buf bytes.Buffer
	n, err := copyChunks(ctx, &buf, r)
	if err != nil {
		return nil, err
	}
	charset := info.Charset
	if charset == "" {
		charset = m.DefaultCharset
	}

	return &Result{
		Kind:  Memory,
		Size:  n,
		Bytes: buf.Bytes(),
		Text:  DecodeText(buf.Bytes(), charset),
	}, nil
}

// DecodeText converts b from charset to a UTF-8 string. Empty, UTF-8 and
// unrecognized charsets return the bytes unchanged.
func DecodeText(b []byte, charset string) string {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" || cs == "us-ascii" {
		return string(b)
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return string(b)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return string(b)
	}

	return string(out)
}
