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

// Package limit enforces byte and count ceilings on streams.
//
// A [Reader] wraps any [io.Reader] and fails deterministically once more than
// its ceiling has been pulled from the source. A [Budget] exposes the same
// arithmetic for scanners that account for bytes they have already buffered,
// such as the header scanner of a multipart framer.
//
// Both are poisoned by the first violation: every later call returns the same
// [*Error], and the byte counter stays at the value that crossed the ceiling so
// the failure can be diagnosed.
//
// Example:
//
//	r := limit.NewReader(body, 10<<20, limit.KindBody)
//	if _, err := io.Copy(dst, r); err != nil {
//	    var le *limit.Error
//	    if errors.As(err, &le) {
//	        log.Printf("%s limit %d exceeded after %d bytes", le.Kind, le.Limit, le.Read)
//	    }
//	}
package limit
