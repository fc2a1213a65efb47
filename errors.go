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
	"context"
	"errors"
	"fmt"
	"net/http"

	"rivaas.dev/upload/decode"
	"rivaas.dev/upload/framer"
	"rivaas.dev/upload/limit"
	"rivaas.dev/upload/rules"
)

// Static errors for parsing.
var (
	ErrUnsupportedContentType = errors.New("unsupported request content type")
	ErrMalformedForm          = errors.New("malformed url-encoded form")
)

// Kind classifies a parse failure.
type Kind string

// Failure kinds.
const (
	KindLimitExceeded                 Kind = "limit_exceeded"
	KindUnsupportedEncoding           Kind = "unsupported_encoding"
	KindDecodeError                   Kind = "decode_error"
	KindDisallowedContentType         Kind = "disallowed_content_type"
	KindDuplicateNotAllowed           Kind = "duplicate_not_allowed"
	KindMissingRequiredPart           Kind = "missing_required_part"
	KindUnexpectedPart                Kind = "unexpected_part"
	KindMalformedMultipart            Kind = "malformed_multipart"
	KindUnsupportedRequestContentType Kind = "unsupported_request_content_type"
	KindCanceled                      Kind = "canceled"
	KindIO                            Kind = "io_error"
)

// StatusClientClosedRequest is reported for canceled parses.
const StatusClientClosedRequest = 499

// FormError is the single error returned by a failed parse.
//
// Use [errors.As] to inspect it:
//
//	var fe *upload.FormError
//	if errors.As(err, &fe) && fe.Kind == upload.KindLimitExceeded {
//	    log.Printf("%s limit %d exceeded (observed %d)", fe.Limit, fe.Ceiling, fe.Observed)
//	}
//
// The underlying cause stays reachable: errors.Is(err, limit.ErrLimitExceeded)
// and errors.Is(err, context.Canceled) work as expected.
type FormError struct {
	Kind     Kind       // Failure class
	Limit    limit.Kind // Violated limit, for KindLimitExceeded
	Ceiling  int64      // Configured ceiling, for KindLimitExceeded
	Observed int64      // Observed bytes or count, for KindLimitExceeded
	Part     string     // Scope-qualified part name, when known
	Missing  []string   // Missing part names, for KindMissingRequiredPart
	Detail   string     // Human-readable description
	Err      error      // Underlying error
}

// Error returns a formatted error message.
func (e *FormError) Error() string {
	return fmt.Sprintf("upload: %s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying error.
func (e *FormError) Unwrap() error {
	return e.Err
}

// HTTPStatus implements rivaas.dev/errors.ErrorType.
func (e *FormError) HTTPStatus() int {
	switch e.Kind {
	case KindLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedEncoding, KindUnsupportedRequestContentType, KindDisallowedContentType:
		return http.StatusUnsupportedMediaType
	case KindCanceled:
		return StatusClientClosedRequest
	case KindIO:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Code implements rivaas.dev/errors.ErrorCode.
func (e *FormError) Code() string {
	return string(e.Kind)
}

// Details implements rivaas.dev/errors.ErrorDetails.
func (e *FormError) Details() any {
	d := map[string]any{"kind": string(e.Kind)}
	if e.Part != "" {
		d["part"] = e.Part
	}
	if e.Kind == KindLimitExceeded {
		d["limit"] = string(e.Limit)
		d["ceiling"] = e.Ceiling
		d["observed"] = e.Observed
	}
	if len(e.Missing) > 0 {
		d["missing"] = e.Missing
	}

	return d
}

// KindOf returns the failure kind of err, or "" when err is not a
// [*FormError].
func KindOf(err error) Kind {
	var fe *FormError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return ""
}

// inPart attributes the error to a part unless it already names one.
func (e *FormError) inPart(path string) *FormError {
	if e.Part == "" && path != "" {
		e.Part = path
		e.Detail = fmt.Sprintf("part %q: %s", path, e.Detail)
	}

	return e
}

// classify converts any error raised during a parse into a [*FormError].
func classify(err error) *FormError {
	var fe *FormError
	if errors.As(err, &fe) {
		return fe
	}

	fe = &FormError{Kind: KindIO, Detail: err.Error(), Err: err}

	var (
		le *limit.Error
		v  *rules.Violation
		me *rules.MissingError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fe.Kind = KindCanceled
	case errors.As(err, &le):
		fe.Kind = KindLimitExceeded
		fe.Limit = le.Kind
		fe.Ceiling = le.Limit
		fe.Observed = le.Read
	case errors.As(err, &me):
		fe.Kind = KindMissingRequiredPart
		fe.Missing = me.Names
	case errors.As(err, &v):
		fe.Part = v.Path()
		switch {
		case errors.Is(err, rules.ErrDisallowedContentType):
			fe.Kind = KindDisallowedContentType
		case errors.Is(err, rules.ErrDuplicateNotAllowed):
			fe.Kind = KindDuplicateNotAllowed
		default:
			fe.Kind = KindUnexpectedPart
		}
	case errors.Is(err, decode.ErrUnsupportedEncoding):
		fe.Kind = KindUnsupportedEncoding
	case errors.Is(err, decode.ErrDecode):
		fe.Kind = KindDecodeError
	case errors.Is(err, framer.ErrMalformed), errors.Is(err, ErrMalformedForm):
		fe.Kind = KindMalformedMultipart
	case errors.Is(err, ErrUnsupportedContentType):
		fe.Kind = KindUnsupportedRequestContentType
	}

	return fe
}
