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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// ProblemContentType is the media type of problem responses.
const ProblemContentType = "application/problem+json; charset=utf-8"

// Problem is an RFC 9457 problem detail.
type Problem struct {
	Type       string
	Title      string
	Status     int
	Detail     string
	Instance   string
	Extensions map[string]any
}

// MarshalJSON writes extensions inline next to the standard members.
func (p Problem) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":   p.Type,
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Detail != "" {
		m["detail"] = p.Detail
	}
	if p.Instance != "" {
		m["instance"] = p.Instance
	}
	for k, v := range p.Extensions {
		switch k {
		case "type", "title", "status", "detail", "instance":
		default:
			m[k] = v
		}
	}

	return json.Marshal(m)
}

type statusError interface {
	HTTPStatus() int
}

type codedError interface {
	Code() string
}

type detailedError interface {
	Details() any
}

// NewProblem builds the problem detail for err. baseURL prefixes the error
// code to form the problem type; without it the bare code is used.
func NewProblem(r *http.Request, err error, baseURL string) Problem {
	status := http.StatusInternalServerError
	var se statusError
	if errors.As(err, &se) {
		status = se.HTTPStatus()
	}

	p := Problem{
		Type:       "about:blank",
		Title:      statusText(status),
		Status:     status,
		Detail:     err.Error(),
		Instance:   r.URL.Path,
		Extensions: map[string]any{"error_id": uuid.Must(uuid.NewV7()).String()},
	}

	var ce codedError
	if errors.As(err, &ce) {
		p.Extensions["code"] = ce.Code()
		p.Type = ce.Code()
		if baseURL != "" {
			p.Type = baseURL + "/" + ce.Code()
		}
	}
	var de detailedError
	if errors.As(err, &de) {
		p.Extensions["errors"] = de.Details()
	}

	return p
}

// WriteProblem writes err as an RFC 9457 response.
func WriteProblem(w http.ResponseWriter, r *http.Request, err error, baseURL string) {
	p := NewProblem(r, err, baseURL)
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	if status == 499 {
		return "Client Closed Request"
	}

	return "Error"
}
