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

import "io"

// Reader enforces a byte ceiling on an underlying reader.
//
// Unlike [io.LimitReader], which reports a clean EOF at the ceiling, Reader
// fails with an [*Error] as soon as the source offers a byte past it. A source
// holding exactly the ceiling reads to EOF without error.
//
// Reader is not safe for concurrent use.
type Reader struct {
	src    io.Reader
	budget *Budget
}

// NewReader returns a Reader that lets at most limit bytes through from src.
// A negative limit only counts bytes.
func NewReader(src io.Reader, limit int64, kind Kind) *Reader {
	return &Reader{
		src:    src,
		budget: NewBudget(limit, kind),
	}
}

// Read reads from the source without letting more than the ceiling through.
//
// When the ceiling is crossed, Read returns the bytes that still fit together
// with the [*Error]. The excess pulled from the source is included in [Reader.N]
// so diagnostics reflect true consumption.
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.budget.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	remaining := r.budget.Remaining()
	if remaining >= 0 && int64(len(p)) > remaining {
		// One byte past the ceiling is enough to tell "exactly at the
		// limit" from "over the limit".
		p = p[:remaining+1]
	}

	n, err := r.src.Read(p)
	if spendErr := r.budget.Spend(int64(n)); spendErr != nil {
		return int(remaining), spendErr
	}

	return n, err
}

// N returns the number of bytes consumed from the source.
func (r *Reader) N() int64 {
	return r.budget.Used()
}

// Limit returns the ceiling.
func (r *Reader) Limit() int64 {
	return r.budget.Limit()
}

// Err returns the violation, if the reader has been poisoned.
func (r *Reader) Err() error {
	return r.budget.Err()
}
