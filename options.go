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
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/upload/framer"
	"rivaas.dev/upload/rules"
	"rivaas.dev/upload/sink"
)

const (
	// DefaultMaxRequestBodyBytes bounds the whole request body (100 MiB).
	DefaultMaxRequestBodyBytes = 100 << 20

	// DefaultMaxPartBodyBytes bounds the raw body of a single part (100 MiB).
	DefaultMaxPartBodyBytes = 100 << 20

	// DefaultMaxFieldValueBytes bounds a value kept in memory (1 MiB).
	DefaultMaxFieldValueBytes = 1 << 20

	// DefaultMaxDecompressedBytes bounds the decoded output of one part (100 MiB).
	DefaultMaxDecompressedBytes = 100 << 20

	// DefaultMaxParts bounds the number of parts, nested parts included.
	DefaultMaxParts = framer.DefaultMaxParts

	// DefaultMaxHeaderBytes bounds the header block of one part (16 KiB).
	DefaultMaxHeaderBytes = framer.DefaultMaxHeaderBytes

	// DefaultMaxNestingDepth allows one level of multipart inside multipart.
	DefaultMaxNestingDepth = framer.DefaultMaxNestingDepth

	// NoNesting passed to [WithMaxNestingDepth] rejects any multipart part
	// inside the body.
	NoNesting = framer.NoNesting

	// DefaultHashAlgorithm is used when hashing is enabled without an algorithm.
	DefaultHashAlgorithm = sink.SHA256
)

// DefaultAllowedEncodings lists the part encodings decoded when decompression
// is enabled and no explicit list is configured.
var DefaultAllowedEncodings = []string{"gzip", "x-gzip", "deflate", "br", "zstd"}

// PayloadMode selects the shape of the parsed payload.
type PayloadMode int

const (
	// ModeAuto builds a [NamedPayload] for multipart/form-data and
	// url-encoded bodies and an [OrderedPayload] for other multipart types.
	ModeAuto PayloadMode = iota
	// ModeNamed always builds a [NamedPayload].
	ModeNamed
	// ModeOrdered builds an [OrderedPayload] for every multipart body.
	ModeOrdered
)

// String returns the mode name.
func (m PayloadMode) String() string {
	switch m {
	case ModeNamed:
		return "named"
	case ModeOrdered:
		return "ordered"
	default:
		return "auto"
	}
}

// ParsePayloadMode parses "auto", "named" or "ordered". The empty string is
// [ModeAuto].
func ParsePayloadMode(s string) (PayloadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "named":
		return ModeNamed, nil
	case "ordered":
		return ModeOrdered, nil
	default:
		return ModeAuto, fmt.Errorf("%w: payload mode %q", ErrInvalidOption, s)
	}
}

// Options configures a [Parser].
//
// Limits follow one convention: zero selects the package default and a
// negative value disables the limit. Options are resolved once by [New] and
// never change afterwards.
type Options struct {
	UploadDir     string             // Directory for temporary files; empty means os.TempDir()
	ComputeHash   bool               // Hash file parts while writing them
	HashAlgorithm sink.HashAlgorithm // Digest used when ComputeHash is set

	EnableDecompression   bool     // Decode parts carrying an allowed Content-Encoding
	AllowedEncodings      []string // Encodings that may be decoded
	RejectUnknownEncoding bool     // Fail parts whose encoding cannot be decoded

	// RejectUnknownRequestContentType fails bodies that are neither multipart
	// nor url-encoded. When false such bodies yield an empty NamedPayload
	// without being read.
	RejectUnknownRequestContentType bool

	MaxRequestBodyBytes  int64
	MaxPartBodyBytes     int64
	MaxFieldValueBytes   int64
	MaxDecompressedBytes int64
	MaxParts             int64
	MaxHeaderBytes       int64
	MaxNestingDepth      int

	Rules       *rules.Set  // Part rules; nil accepts every part
	PayloadMode PayloadMode // Payload shape

	Logger         *slog.Logger         // Structured logger; nil discards
	TracerProvider trace.TracerProvider // Span source; nil disables tracing
	Events         Events               // Observability hooks
}

// Option configures a [Parser].
type Option func(*Options)

// WithUploadDir sets the directory for temporary files.
//
// Example:
//
//	upload.New(upload.WithUploadDir("/var/lib/app/uploads"))
func WithUploadDir(dir string) Option {
	return func(o *Options) {
		o.UploadDir = dir
	}
}

// WithComputeHash enables hashing of file parts.
func WithComputeHash(enabled bool) Option {
	return func(o *Options) {
		o.ComputeHash = enabled
	}
}

// WithHashAlgorithm selects the digest for file parts and enables hashing.
//
// Example:
//
//	upload.New(upload.WithHashAlgorithm(sink.SHA512))
func WithHashAlgorithm(alg sink.HashAlgorithm) Option {
	return func(o *Options) {
		o.HashAlgorithm = alg
		o.ComputeHash = true
	}
}

// WithDecompression enables decoding of parts with a Content-Encoding header.
func WithDecompression(enabled bool) Option {
	return func(o *Options) {
		o.EnableDecompression = enabled
	}
}

// WithAllowedEncodings replaces the set of encodings that may be decoded.
func WithAllowedEncodings(encodings ...string) Option {
	return func(o *Options) {
		o.AllowedEncodings = slices.Clone(encodings)
	}
}

// WithRejectUnknownEncoding fails parts whose encoding is not decoded instead
// of passing their raw bytes through.
func WithRejectUnknownEncoding(reject bool) Option {
	return func(o *Options) {
		o.RejectUnknownEncoding = reject
	}
}

// WithRejectUnknownRequestContentType controls how bodies of other content
// types are treated. Rejection is the default.
func WithRejectUnknownRequestContentType(reject bool) Option {
	return func(o *Options) {
		o.RejectUnknownRequestContentType = reject
	}
}

// WithMaxRequestBodyBytes bounds the whole request body.
//
// Example:
//
//	upload.New(upload.WithMaxRequestBodyBytes(50 << 20))
func WithMaxRequestBodyBytes(n int64) Option {
	return func(o *Options) {
		o.MaxRequestBodyBytes = n
	}
}

// WithMaxPartBodyBytes bounds the raw body of each part.
func WithMaxPartBodyBytes(n int64) Option {
	return func(o *Options) {
		o.MaxPartBodyBytes = n
	}
}

// WithMaxFieldValueBytes bounds values kept in memory.
func WithMaxFieldValueBytes(n int64) Option {
	return func(o *Options) {
		o.MaxFieldValueBytes = n
	}
}

// WithMaxDecompressedBytes bounds the decoded output of each part.
func WithMaxDecompressedBytes(n int64) Option {
	return func(o *Options) {
		o.MaxDecompressedBytes = n
	}
}

// WithMaxParts bounds the number of parts, nested parts included. For
// url-encoded bodies it bounds the number of pairs.
func WithMaxParts(n int64) Option {
	return func(o *Options) {
		o.MaxParts = n
	}
}

// WithMaxHeaderBytes bounds the header block of each part.
func WithMaxHeaderBytes(n int64) Option {
	return func(o *Options) {
		o.MaxHeaderBytes = n
	}
}

// WithMaxNestingDepth bounds how deep multipart parts may nest below the
// request body. Zero selects the default of one level, not "no nesting";
// use [NoNesting] to reject every nested multipart part. Nested levels are
// still counted against the part limit when the depth is unlimited.
func WithMaxNestingDepth(depth int) Option {
	return func(o *Options) {
		o.MaxNestingDepth = depth
	}
}

// WithRules sets the part rules.
//
// Example:
//
//	set := rules.MustNew(rules.UnknownReject,
//	    rules.New("avatar", rules.Required(), rules.ContentTypes("image/*")),
//	)
//	upload.New(upload.WithRules(set))
func WithRules(set *rules.Set) Option {
	return func(o *Options) {
		o.Rules = set
	}
}

// WithPayloadMode selects the payload shape.
func WithPayloadMode(mode PayloadMode) Option {
	return func(o *Options) {
		o.PayloadMode = mode
	}
}

// WithLogger sets the slog.Logger for parse diagnostics.
// If not provided, nothing is logged.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	upload.New(upload.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTracerProvider enables an "upload.Parse" span per parse.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// WithEvents sets observability hooks.
//
// Example:
//
//	upload.WithEvents(upload.Events{
//	    Done: func(stats upload.Stats) {
//	        log.Printf("parsed %d parts in %s", stats.Parts, stats.Duration)
//	    },
//	})
func WithEvents(events Events) Option {
	return func(o *Options) {
		o.Events = events
	}
}

func defaultOptions() *Options {
	return &Options{
		HashAlgorithm:                   DefaultHashAlgorithm,
		AllowedEncodings:                slices.Clone(DefaultAllowedEncodings),
		RejectUnknownRequestContentType: true,
	}
}

// resolve replaces zero limits with defaults.
func (o *Options) resolve() {
	o.MaxRequestBodyBytes = orDefault(o.MaxRequestBodyBytes, DefaultMaxRequestBodyBytes)
	o.MaxPartBodyBytes = orDefault(o.MaxPartBodyBytes, DefaultMaxPartBodyBytes)
	o.MaxFieldValueBytes = orDefault(o.MaxFieldValueBytes, DefaultMaxFieldValueBytes)
	o.MaxDecompressedBytes = orDefault(o.MaxDecompressedBytes, DefaultMaxDecompressedBytes)
	o.MaxParts = orDefault(o.MaxParts, DefaultMaxParts)
	o.MaxHeaderBytes = orDefault(o.MaxHeaderBytes, DefaultMaxHeaderBytes)
	if o.MaxNestingDepth == 0 {
		o.MaxNestingDepth = DefaultMaxNestingDepth
	}
	if o.ComputeHash && o.HashAlgorithm == "" {
		o.HashAlgorithm = DefaultHashAlgorithm
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}

	return v
}
