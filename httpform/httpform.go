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

package httpform

import (
	"context"
	"fmt"
	"net/http"

	"rivaas.dev/upload"
	"rivaas.dev/upload/limit"
)

type contextKey struct{}

// Parse parses the body of r with p. The request context bounds the parse:
// once it is done the body is closed, which also ends a read that is
// blocked on a slow client.
//
// A declared Content-Length above the parser's MaxRequestBodyBytes is
// rejected before the body is read. The header is advisory: the body limit
// is still enforced on the bytes actually read.
func Parse(r *http.Request, p *upload.Parser) (upload.Payload, error) {
	if err := checkContentLength(r, p.Options().MaxRequestBodyBytes); err != nil {
		return nil, err
	}
	if r.Body != nil {
		body := r.Body
		stop := context.AfterFunc(r.Context(), func() {
			_ = body.Close()
		})
		defer stop()
	}

	return p.Parse(r.Context(), r.Body, r.Header.Get("Content-Type"))
}

func checkContentLength(r *http.Request, ceiling int64) error {
	if ceiling < 0 || r.ContentLength <= ceiling {
		return nil
	}
	le := &limit.Error{Kind: limit.KindBody, Limit: ceiling, Read: r.ContentLength}

	return &upload.FormError{
		Kind:     upload.KindLimitExceeded,
		Limit:    limit.KindBody,
		Ceiling:  ceiling,
		Observed: r.ContentLength,
		Detail:   fmt.Sprintf("declared Content-Length %d exceeds %d bytes", r.ContentLength, ceiling),
		Err:      le,
	}
}

// NewContext returns a copy of ctx carrying payload.
func NewContext(ctx context.Context, payload upload.Payload) context.Context {
	return context.WithValue(ctx, contextKey{}, payload)
}

// PayloadFrom returns the payload stored by [Middleware].
//
// Example:
//
//	payload, ok := httpform.PayloadFrom(r.Context())
//	if !ok {
//	    http.Error(w, "no upload", http.StatusBadRequest)
//	    return
//	}
func PayloadFrom(ctx context.Context) (upload.Payload, bool) {
	payload, ok := ctx.Value(contextKey{}).(upload.Payload)
	return payload, ok
}

// NamedFrom returns the stored payload when it is a [*upload.NamedPayload].
func NamedFrom(ctx context.Context) (*upload.NamedPayload, bool) {
	payload, ok := PayloadFrom(ctx)
	if !ok {
		return nil, false
	}
	named, ok := payload.(*upload.NamedPayload)

	return named, ok
}
