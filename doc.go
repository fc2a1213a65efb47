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

// Package upload parses multipart and url-encoded request bodies into
// validated, resource-bounded payloads.
//
// A [Parser] drives the whole pipeline for one body at a time: the boundary
// framer (package framer) splits the body into parts, the rule engine
// (package rules) accepts or rejects each part, optional decoding (package
// decode) undoes a part's Content-Encoding, and a sink (package sink) stores
// the body in memory or in a temporary file.
//
// # Limits
//
// Every dimension an attacker controls is bounded: the request body, each
// part body, each in-memory value, each header block, the decoded size of
// each part, the number of parts and the nesting depth of multipart parts.
// A zero limit selects the package default and a negative limit disables it.
//
// # Payloads
//
// multipart/form-data and application/x-www-form-urlencoded bodies become a
// [*NamedPayload]; other multipart types such as multipart/mixed become an
// [*OrderedPayload] that keeps wire order. [WithPayloadMode] overrides the
// choice.
//
// # Errors
//
// The first failure aborts the parse, removes every temporary file the parse
// created and is returned as a [*FormError] whose Kind classifies it.
// FormError implements the rivaas error interfaces (HTTPStatus, Code and
// Details).
//
// # Example
//
//	p := upload.MustNew(
//	    upload.WithUploadDir(dir),
//	    upload.WithComputeHash(true),
//	    upload.WithRules(rules.MustNew(rules.UnknownReject,
//	        rules.New("note", rules.Required()),
//	        rules.New("files", rules.Multiple()),
//	    )),
//	)
//
//	payload, err := p.Parse(ctx, body, contentType)
//	if err != nil {
//	    return err
//	}
//	form := payload.(*upload.NamedPayload)
//	for _, f := range form.Uploads["files"] {
//	    fmt.Println(f.FileName, f.Size, f.Hash)
//	}
package upload
