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

// Package metrics records upload parser metrics with OpenTelemetry.
//
// A [Recorder] turns the parser's [upload.Events] into counters and
// histograms. By default the instruments are exported to a dedicated
// Prometheus registry served by [Recorder.Handler]; OTLP, stdout and
// user-supplied meter providers are also supported.
//
//	recorder := metrics.MustNew()
//	defer recorder.Shutdown(context.Background())
//
//	parser := upload.MustNew(upload.WithEvents(recorder.Events()))
//
//	handler, _ := recorder.Handler()
//	http.Handle("/metrics", handler)
//
// Recorded instruments:
//
//	upload.parses          counter    outcome, error kind, content type
//	upload.parse.duration  histogram  seconds
//	upload.body.size       histogram  request body bytes read
//	upload.parts           counter    stored parts by sink
//	upload.part.size       histogram  stored bytes by sink
package metrics
