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

// Package decode stacks a bounded decompressor on top of a part body.
//
// Decoding only happens when it is enabled and the declared encoding is on the
// allow list. Anything else is either rejected with [ErrUnsupportedEncoding]
// or passed through untouched, depending on [Policy.RejectUnknown]. Callers
// that accept passthrough receive still-encoded bytes.
//
// Decoded output is bounded by a [limit.Reader] of kind
// [limit.KindDecompressed], so a small compressed part cannot expand without
// bound. Corrupt compressed data surfaces as [*Error], which matches
// [ErrDecode]; failures of the underlying stream (limit violations,
// cancellation, framing errors) pass through unchanged.
//
// Built-in encodings: gzip, x-gzip, deflate, br, zstd and identity. Use
// [Register] to add more.
package decode
