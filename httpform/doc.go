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

// Package httpform adapts the upload parser to net/http.
//
// [Parse] parses a request with a [upload.Parser], rejecting bodies whose
// declared Content-Length already exceeds the request limit. [Middleware]
// does the same for every request, stores the payload in the request
// context and answers failures with RFC 9457 problem details:
//
//	parser := upload.MustNew(upload.WithMaxRequestBodyBytes(10 << 20))
//
//	mux := http.NewServeMux()
//	mux.Handle("POST /upload", httpform.Middleware(parser)(http.HandlerFunc(
//	    func(w http.ResponseWriter, r *http.Request) {
//	        payload, _ := httpform.PayloadFrom(r.Context())
//	        for _, f := range payload.Files() {
//	            _ = f.MoveTo(filepath.Join("/srv/files", f.FileName))
//	        }
//	    },
//	)))
package httpform
