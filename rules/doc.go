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

// Package rules validates multipart parts against declared expectations.
//
// A [Rule] names a field and states whether it is required, whether it may
// repeat and which content types it accepts. Rules whose content types include
// a multipart type are containers: their children describe the parts nested
// inside them. [NewSet] flattens a rule tree once, before any parsing, so every
// child is addressed by its container name (its scope) and its own name.
//
// Rules are declared programmatically:
//
//	set, err := rules.NewSet(rules.UnknownReject,
//	    rules.New("note", rules.Required()),
//	    rules.New("files", rules.Multiple(), rules.ContentTypes("text/plain", "image/*")),
//	    rules.New("batch", rules.ContentTypes("multipart/mixed"), rules.Children(
//	        rules.New("manifest", rules.Required(), rules.ContentTypes("application/json")),
//	    )),
//	)
//
// or loaded from a structural description with [ParseSchema],
// [LoadSchemaYAML], [LoadSchemaJSON] or [LoadSchemaTOML]. A [Tracker] applies
// a set to one parse; counts of a container's children are kept per
// container instance.
package rules
