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

// Package sink stores part bodies.
//
// Parts that carry a filename stream to a uniquely named temporary file
// ([DiskSink]); other parts are read into memory and decoded to text
// ([MemorySink]). Both implement [Sink]. [Choose] makes that decision, honoring an explicit override
// from a rule.
//
// Disk sinks can hash the content while writing it:
//
//	d := sink.DiskSink{Dir: os.TempDir(), Hash: sink.SHA256}
//	res, err := d.Store(ctx, part, sink.Info{FileName: part.FileName})
//	if err != nil {
//	    return err // the partial file is already gone
//	}
//	fmt.Println(res.Path, res.Size, res.Hash)
//
// Sinks read until EOF. Callers bound the reader (see package limit) before
// handing it to a sink.
package sink
