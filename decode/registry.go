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
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Opener returns a decoding reader over src.
type Opener func(src io.Reader) (io.ReadCloser, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{
		"gzip":    openGzip,
		"x-gzip":  openGzip,
		"deflate": openDeflate,
		"br":      openBrotli,
		"zstd":    openZstd,
	}
)

// Register makes an encoding available to [Wrap]. Names are matched
// case-insensitively. Registering an existing name replaces its opener.
func Register(name string, open Opener) {
	if open == nil {
		panic("decode: nil opener for " + name)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[Normalize(name)] = open
}

// Supported reports whether an opener is registered for name.
func Supported(name string) bool {
	_, ok := lookup(name)
	return ok
}

func lookup(name string) (Opener, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	open, ok := registry[Normalize(name)]

	return open, ok
}

// Normalize lower-cases and trims an encoding token.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func openGzip(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

// openDeflate accepts both the zlib-wrapped stream required by RFC 9110 and
// the raw DEFLATE stream many clients send instead.
func openDeflate(src io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(src)
	header, err := br.Peek(2)
	if err != nil && len(header) < 2 {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(br)
	}

	return flate.NewReader(br), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

func openBrotli(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(src)), nil
}

func openZstd(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		return nil, err
	}

	return dec.IOReadCloser(), nil
}
