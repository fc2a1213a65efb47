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

package upload

import (
	"time"

	"rivaas.dev/upload/sink"
)

// Events provides hooks for observability without coupling.
type Events struct {
	// PartStored is called after a part body has been stored.
	PartStored func(part PartInfo)

	// Done is called at the end of every parse with statistics, also on
	// failure.
	Done func(stats Stats)
}

// PartInfo describes a stored part.
type PartInfo struct {
	Name        string
	Scope       string
	FileName    string
	ContentType string
	Encoding    string
	Sink        sink.Kind
	Size        int64
}

// Stats summarizes one parse.
type Stats struct {
	ParseID     string        // Unique, sortable identifier of the parse
	ContentType string        // Media type of the request body
	Parts       int           // Parts seen, containers and url-encoded pairs included
	Fields      int           // Values stored in memory
	Files       int           // Files written
	BodyBytes   int64         // Request body bytes read
	StoredBytes int64         // Bytes stored by sinks
	Duration    time.Duration // Wall time of the parse
	Err         error         // *FormError of a failed parse, nil on success
}

// ChainEvents returns hooks that call each non-nil hook of events in order.
//
// Example:
//
//	upload.WithEvents(upload.ChainEvents(recorder.Events(), auditEvents))
func ChainEvents(events ...Events) Events {
	var out Events
	for _, e := range events {
		if e.PartStored != nil {
			prev, next := out.PartStored, e.PartStored
			out.PartStored = func(part PartInfo) {
				if prev != nil {
					prev(part)
				}
				next(part)
			}
		}
		if e.Done != nil {
			prev, next := out.Done, e.Done
			out.Done = func(stats Stats) {
				if prev != nil {
					prev(stats)
				}
				next(stats)
			}
		}
	}

	return out
}
