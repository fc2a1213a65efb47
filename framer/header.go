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
	"bytes"
	"errors"
	"io"
	"mime"
	"net/textproto"
	"path"
	"strings"

	"rivaas.dev/upload/limit"
)

// readLine reads one line including its terminator. Bytes past keep (when
// keep > 0) are consumed but not returned, and truncated is set. Every
// consumed byte is charged to budget when it is non-nil.
func readLine(br *bufio.Reader, budget *limit.Budget, keep int) (line []byte, truncated bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if budget != nil {
			if spendErr := budget.Spend(int64(len(chunk))); spendErr != nil {
				return nil, false, spendErr
			}
		}

		if keep > 0 && len(line)+len(chunk) > keep {
			truncated = true
			line = append(line, chunk[:max(keep-len(line), 0)]...)
		} else {
			line = append(line, chunk...)
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		return line, truncated, err
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

func isLWSP(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' {
			return false
		}
	}

	return true
}

// readHeader reads a part header block up to and including the blank line
// that ends it.
func readHeader(br *bufio.Reader, budget *limit.Budget) (textproto.MIMEHeader, error) {
	header := make(textproto.MIMEHeader)
	var lastKey string

	for {
		line, _, err := readLine(br, budget, 0)
		if err != nil {
			if err == io.EOF {
				return nil, malformed("unterminated part header")
			}
			return nil, err
		}

		trimmed := trimEOL(line)
		if len(trimmed) == 0 {
			return header, nil
		}

		// Folded continuation of the previous header.
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if lastKey == "" {
				return nil, malformed("header continuation without a header")
			}
			values := header[lastKey]
			values[len(values)-1] += " " + strings.TrimSpace(string(trimmed))

			continue
		}

		colon := bytes.IndexByte(trimmed, ':')
		if colon <= 0 {
			return nil, malformed("invalid header line %q", truncate(trimmed, 64))
		}
		key := string(bytes.TrimRight(trimmed[:colon], " \t"))
		if strings.ContainsAny(key, " \t") {
			return nil, malformed("invalid header name %q", key)
		}
		key = textproto.CanonicalMIMEHeaderKey(key)
		header.Add(key, strings.TrimSpace(string(trimmed[colon+1:])))
		lastKey = key
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}

	return string(b)
}

// newPart builds a part from its headers.
func newPart(header textproto.MIMEHeader) (*Part, error) {
	p := &Part{
		Header:   header,
		Encoding: strings.TrimSpace(header.Get("Content-Encoding")),
	}

	if cd := header.Get("Content-Disposition"); cd != "" {
		disposition, params, err := mime.ParseMediaType(cd)
		if err != nil {
			return nil, malformed("invalid Content-Disposition %q: %v", cd, err)
		}
		p.Disposition = disposition
		p.Name = params["name"]
		p.FileName = baseName(params["filename"])
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
		if p.FileName != "" {
			contentType = "application/octet-stream"
		}
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return nil, malformed("invalid Content-Type %q: %v", contentType, err)
	}
	p.ContentType = mediaType
	p.Params = params
	p.Charset = params["charset"]

	return p, nil
}

// baseName strips any client-side directory from a filename.
func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	return name
}
