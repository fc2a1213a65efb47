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
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"rivaas.dev/upload/decode"
	"rivaas.dev/upload/framer"
	"rivaas.dev/upload/limit"
	"rivaas.dev/upload/rules"
	"rivaas.dev/upload/sink"
)

const (
	tracerName = "rivaas.dev/upload"
	spanName   = "upload.Parse"

	mediaFormData   = "multipart/form-data"
	mediaURLEncoded = "application/x-www-form-urlencoded"
)

// ErrInvalidOption is returned by [New] for inconsistent options.
var ErrInvalidOption = errors.New("invalid upload option")

// Parser parses request bodies with a fixed set of [Options].
//
// A Parser is immutable and safe for concurrent use. Every call to
// [Parser.Parse] works on its own state.
type Parser struct {
	opts   Options
	decode decode.Policy
	disk   sink.DiskSink
	memory sink.MemorySink
	tracer trace.Tracer
}

// New creates a parser.
//
// Example:
//
//	p, err := upload.New(
//	    upload.WithUploadDir("/tmp/uploads"),
//	    upload.WithComputeHash(true),
//	    upload.WithMaxParts(20),
//	)
//
// Errors:
//   - [ErrInvalidOption]: unknown hash algorithm or encoding
func New(opts ...Option) (*Parser, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.resolve()

	if o.ComputeHash {
		if _, err := sink.NewHash(o.HashAlgorithm); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}
	}
	for _, enc := range o.AllowedEncodings {
		if !decode.Supported(enc) {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidOption, decode.ErrUnsupportedEncoding, enc)
		}
	}

	p := &Parser{
		opts: *o,
		decode: decode.Policy{
			Enabled:       o.EnableDecompression,
			Allowed:       o.AllowedEncodings,
			RejectUnknown: o.RejectUnknownEncoding,
			MaxBytes:      o.MaxDecompressedBytes,
		},
		disk:   sink.DiskSink{Dir: o.UploadDir},
		memory: sink.MemorySink{},
	}
	if o.ComputeHash {
		p.disk.Hash = o.HashAlgorithm
	}
	tp := o.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	p.tracer = tp.Tracer(tracerName)

	return p, nil
}

// MustNew is like [New] but panics on error.
func MustNew(opts ...Option) *Parser {
	p, err := New(opts...)
	if err != nil {
		panic(err)
	}

	return p
}

// Options returns a copy of the resolved options.
func (p *Parser) Options() Options {
	return p.opts
}

// Parse parses a request body with one-off options.
//
// Example:
//
//	payload, err := upload.Parse(ctx, r.Body, r.Header.Get("Content-Type"),
//	    upload.WithMaxRequestBodyBytes(10<<20))
func Parse(ctx context.Context, body io.Reader, contentType string, opts ...Option) (Payload, error) {
	p, err := New(opts...)
	if err != nil {
		return nil, err
	}

	return p.Parse(ctx, body, contentType)
}

// Parse reads body, declared with contentType, into a [Payload].
//
// multipart/form-data and application/x-www-form-urlencoded bodies produce a
// [*NamedPayload]; other multipart bodies produce an [*OrderedPayload] unless
// [WithPayloadMode] says otherwise. The caller owns the temporary files of a
// returned payload.
//
// On failure no payload is returned, every temporary file created by the call
// has been removed and the error is a [*FormError].
func (p *Parser) Parse(ctx context.Context, body io.Reader, contentType string) (Payload, error) {
	start := time.Now()
	id := ulid.Make().String()

	ctx, span := p.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("upload.parse_id", id),
		attribute.String("upload.content_type", contentType),
	))
	defer span.End()

	r := &run{
		p:       p,
		opts:    &p.opts,
		log:     p.opts.Logger.With("parse_id", id),
		tracker: p.opts.Rules.Tracker(),
		stats:   Stats{ParseID: id},
	}
	payload, err := r.parse(ctx, body, contentType)

	r.stats.Duration = time.Since(start)
	if r.body != nil {
		r.stats.BodyBytes = r.body.N()
	}
	span.SetAttributes(
		attribute.Int("upload.parts", r.stats.Parts),
		attribute.Int("upload.files", r.stats.Files),
		attribute.Int64("upload.body_bytes", r.stats.BodyBytes),
	)

	if err != nil {
		r.cleanup()
		fe := classify(err)
		r.stats.Err = fe
		span.RecordError(fe)
		span.SetStatus(codes.Error, string(fe.Kind))
		r.log.WarnContext(ctx, "upload rejected",
			"kind", fe.Kind,
			"part", fe.Part,
			"error", fe.Detail,
			"parts", r.stats.Parts,
			"body_bytes", r.stats.BodyBytes,
		)
		p.done(r.stats)

		return nil, fe
	}

	r.log.DebugContext(ctx, "upload parsed",
		"content_type", r.stats.ContentType,
		"parts", r.stats.Parts,
		"files", r.stats.Files,
		"fields", r.stats.Fields,
		"body_bytes", r.stats.BodyBytes,
		"duration", r.stats.Duration,
	)
	p.done(r.stats)

	return payload, nil
}

func (p *Parser) done(stats Stats) {
	if p.opts.Events.Done != nil {
		p.opts.Events.Done(stats)
	}
}

// run holds the state of a single parse.
type run struct {
	p       *Parser
	opts    *Options
	log     *slog.Logger
	body    *limit.Reader
	tracker *rules.Tracker
	stats   Stats

	// files lists the temporary files written so far.
	files []*File

	// named is the payload under construction in named mode.
	named *NamedPayload

	// open[d] receives the parts found at depth d. In named mode open[0] is
	// nil and top-level parts go to named.
	open []*OrderedPayload

	// containers[d] is the rule of the open container at depth d, nil when
	// no rule describes it.
	containers []*rules.Rule
}

func (r *run) parse(ctx context.Context, body io.Reader, contentType string) (Payload, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = ""
	}
	r.stats.ContentType = mt

	switch {
	case mt == mediaURLEncoded:
		return r.parseURLEncoded(ctx, r.bodyReader(ctx, body))
	case strings.HasPrefix(mt, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%w: %s body without boundary parameter", framer.ErrMalformed, mt)
		}

		return r.parseMultipart(ctx, r.bodyReader(ctx, body), mt, boundary)
	case r.opts.RejectUnknownRequestContentType:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	default:
		r.log.DebugContext(ctx, "request content type not parsed", "content_type", contentType)
		return newNamedPayload(), nil
	}
}

func (r *run) bodyReader(ctx context.Context, body io.Reader) io.Reader {
	if body == nil {
		body = strings.NewReader("")
	}
	r.body = limit.NewReader(&ctxReader{ctx: ctx, r: body}, r.opts.MaxRequestBodyBytes, limit.KindBody)

	return r.body
}

func (r *run) mode(mt string) PayloadMode {
	if r.opts.PayloadMode != ModeAuto {
		return r.opts.PayloadMode
	}
	if mt == mediaFormData {
		return ModeNamed
	}

	return ModeOrdered
}

func (r *run) parseMultipart(ctx context.Context, body io.Reader, mt, boundary string) (Payload, error) {
	fr, err := framer.New(body, boundary, framer.Config{
		MaxParts:        r.opts.MaxParts,
		MaxHeaderBytes:  r.opts.MaxHeaderBytes,
		MaxNestingDepth: r.opts.MaxNestingDepth,
	})
	if err != nil {
		return nil, err
	}

	var payload Payload
	if r.mode(mt) == ModeNamed {
		r.named = newNamedPayload()
		r.open = []*OrderedPayload{nil}
		payload = r.named
	} else {
		root := &OrderedPayload{ContentType: mt}
		r.open = []*OrderedPayload{root}
		payload = root
	}

	for {
		part, nerr := fr.Next()
		if errors.Is(nerr, io.EOF) {
			break
		}
		if nerr != nil {
			return nil, nerr
		}
		r.stats.Parts++

		if lerr := r.leaveContainers(part.Depth); lerr != nil {
			return nil, lerr
		}
		rule, cerr := r.tracker.Check(part.Scope, part.Name, part.ContentType)
		if cerr != nil {
			return nil, cerr
		}
		if part.IsContainer() {
			r.openContainer(part, rule)
			continue
		}
		if serr := r.store(ctx, part, rule); serr != nil {
			fe := classify(serr)
			// Read-ahead may trip the body ceiling while a valid part is stored.
			if fe.Limit != limit.KindBody {
				fe = fe.inPart(partPath(part))
			}

			return nil, fe
		}
	}

	if err = r.leaveContainers(0); err != nil {
		return nil, err
	}
	if err = r.tracker.Finish(); err != nil {
		return nil, err
	}

	return payload, nil
}

// leaveContainers closes the containers that cannot hold a part at depth.
func (r *run) leaveContainers(depth int) error {
	for len(r.containers) > depth {
		last := r.containers[len(r.containers)-1]
		r.containers = r.containers[:len(r.containers)-1]
		if err := r.tracker.Leave(last); err != nil {
			return err
		}
	}

	return nil
}

func (r *run) openContainer(part *framer.Part, rule *rules.Rule) {
	r.containers = append(r.containers, rule)
	c := &OrderedPayload{ContentType: part.ContentType}
	d := part.Depth
	if d == 0 && r.named != nil {
		r.named.addContainer(part.Name, c)
	} else {
		r.open[d].Entries = append(r.open[d].Entries, &Entry{
			Name:        part.Name,
			ContentType: part.ContentType,
			Header:      part.Header,
			Nested:      c,
		})
	}
	r.open = append(r.open[:d+1], c)
}

// store routes one part body through the part limit, the decoder and a sink.
func (r *run) store(ctx context.Context, part *framer.Part, rule *rules.Rule) error {
	override := sink.Auto
	if rule != nil {
		override = rule.Sink
	}
	kind := sink.Choose(part.HasFileName(), override)

	raw := limit.NewReader(part, r.opts.MaxPartBodyBytes, limit.KindPart)
	dec, decoded, err := decode.Wrap(raw, part.Encoding, r.p.decode)
	if err != nil {
		return err
	}
	defer dec.Close()

	var res *sink.Result
	if kind == sink.Disk {
		res, err = r.p.disk.Store(ctx, dec, sink.Info{FileName: part.FileName})
	} else {
		field := limit.NewReader(dec, r.opts.MaxFieldValueBytes, limit.KindField)
		res, err = r.p.memory.Store(ctx, field, sink.Info{Charset: part.Charset})
	}
	if err != nil {
		return err
	}

	r.add(part, res, decoded)
	r.stats.StoredBytes += res.Size
	if fn := r.opts.Events.PartStored; fn != nil {
		fn(PartInfo{
			Name:        part.Name,
			Scope:       part.Scope,
			FileName:    part.FileName,
			ContentType: part.ContentType,
			Encoding:    part.Encoding,
			Sink:        res.Kind,
			Size:        res.Size,
		})
	}
	r.log.DebugContext(ctx, "part stored",
		"part", partPath(part),
		"content_type", part.ContentType,
		"sink", res.Kind.String(),
		"size", res.Size,
	)

	return nil
}

func (r *run) add(part *framer.Part, res *sink.Result, decoded bool) {
	var file *File
	if res.Kind == sink.Disk || part.HasFileName() {
		file = &File{
			FieldName:       part.Name,
			FileName:        part.FileName,
			ContentType:     part.ContentType,
			ContentEncoding: part.Encoding,
			Decoded:         decoded,
			Size:            res.Size,
			Path:            res.Path,
			Hash:            res.Hash,
			HashAlgorithm:   res.HashAlgorithm,
			Header:          part.Header,
			data:            res.Bytes,
		}
		if res.Kind == sink.Disk {
			r.files = append(r.files, file)
		}
		r.stats.Files++
	} else {
		r.stats.Fields++
	}

	d := part.Depth
	if d == 0 && r.named != nil {
		if file != nil {
			r.named.addFile(part.Name, file)
		} else {
			r.named.addValue(part.Name, res.Text)
		}

		return
	}

	e := &Entry{
		Name:        part.Name,
		ContentType: part.ContentType,
		Size:        res.Size,
		Header:      part.Header,
		File:        file,
	}
	if file == nil {
		e.Text, e.Bytes = res.Text, res.Bytes
	}
	r.open[d].Entries = append(r.open[d].Entries, e)
}

// cleanup removes the temporary files of a failed parse.
func (r *run) cleanup() {
	for _, f := range r.files {
		if err := f.Remove(); err != nil {
			r.log.Warn("removing temporary file", "path", f.Path, "error", err)
		}
	}
	r.files = nil
}

func partPath(part *framer.Part) string {
	if part.Scope == "" {
		return part.Name
	}

	return part.Scope + "." + part.Name
}

// ctxReader fails reads once ctx is done. A read that fails after ctx is
// done, for example because the source was closed on cancellation, reports
// the context error.
type ctxReader struct {
	ctx context.Context //nolint:containedctx // bound to a single parse
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		if cerr := c.ctx.Err(); cerr != nil {
			return n, cerr
		}
	}

	return n, err
}
