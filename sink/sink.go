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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Kind selects where a part body is stored.
type Kind int

const (
	// Auto stores parts with a filename on disk and everything else in memory.
	Auto Kind = iota
	// Memory keeps the body in a buffer.
	Memory
	// Disk writes the body to a temporary file.
	Disk
)

// ErrStorage wraps failures of the storage medium itself, as opposed to
// errors returned by the reader being drained.
var ErrStorage = errors.New("storage failure")

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Memory:
		return "memory"
	case Disk:
		return "disk"
	default:
		return "auto"
	}
}

// ParseKind parses "auto", "memory" or "disk". The empty string is [Auto].
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "memory":
		return Memory, nil
	case "disk", "file":
		return Disk, nil
	default:
		return Auto, fmt.Errorf("unknown sink kind %q", s)
	}
}

// Choose returns the sink for a part. A non-[Auto] override always wins;
// otherwise parts with a filename go to disk.
func Choose(hasFilename bool, override Kind) Kind {
	if override != Auto {
		return override
	}
	if hasFilename {
		return Disk
	}

	return Memory
}

// Sink stores one part body.
type Sink interface {
	Store(ctx context.Context, r io.Reader, info Info) (*Result, error)
}

var (
	_ Sink = DiskSink{}
	_ Sink = MemorySink{}
)

// Info carries the part metadata a sink may use.
type Info struct {
	FileName string // Client file name; disk sinks keep its extension
	Charset  string // Declared charset; memory sinks decode text with it
}

// Result describes a stored part body.
type Result struct {
	Kind Kind
	Size int64

	// Disk only.
	Path          string
	Hash          string // Lowercase hex digest, empty when hashing is off
	HashAlgorithm HashAlgorithm

	// Memory only.
	Bytes []byte
	Text  string // Bytes decoded with the part charset
}

const chunkSize = 32 << 10

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, chunkSize)
		return &b
	},
}

// copyChunks copies src to dst, checking ctx before every read. Errors from
// dst are wrapped with [ErrStorage]; errors from src are returned as is.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	bp, ok := chunkPool.Get().(*[]byte)
	if !ok {
		b := make([]byte, chunkSize)
		bp = &b
	}
	defer chunkPool.Put(bp)
	buf := *bp

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, fmt.Errorf("%w: %w", ErrStorage, werr)
			}
			if w != n {
				return written, fmt.Errorf("%w: %w", ErrStorage, io.ErrShortWrite)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
