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

// Package framer splits a MIME multipart body into parts.
//
// A [Framer] pulls parts from a single stream one at a time. It discards the
// preamble and epilogue, bounds every part header block, counts parts across
// the whole body and frames multipart parts recursively with an explicit depth
// counter:
//
//	Preamble → PartHeaders → PartBody → (PartHeaders → PartBody)* → Epilogue → Done
//
// Any framing violation moves the framer to the terminal Faulted state; the
// error is returned from that call to [Framer.Next] and every later one.
//
// A part whose content type is multipart/* is a container. The container part
// is returned first so callers can validate it, followed by the parts of its
// body. Those carry the container name as their [Part.Scope] and a depth one
// greater than the container.
//
// Example:
//
//	f, err := framer.New(body, boundary, framer.Config{MaxParts: 100})
//	if err != nil {
//	    return err
//	}
//	for {
//	    part, err := f.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    if part.IsContainer() {
//	        continue
//	    }
//	    io.Copy(dst, part)
//	}
package framer
