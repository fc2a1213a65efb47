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

//go:build !integration

package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/upload/limit"
	"rivaas.dev/upload/rules"
	"rivaas.dev/upload/sink"
)

const scenarioFormData = "--B\r\n" +
	"Content-Disposition: form-data; name=\"note\"\r\n\r\n" +
	"Batch upload\r\n" +
	"--B\r\n" +
	"Content-Disposition: form-data; name=\"files\"; filename=\"one.txt\"\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"file-1\r\n" +
	"--B--\r\n"

const scenarioMixed = "--X\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"hello\r\n" +
	"--X\r\n" +
	"Content-Type: application/json\r\n\r\n" +
	"{\"a\":1}\r\n" +
	"--X--\r\n"

const nestedFormData = "--outer\r\n" +
	"Content-Disposition: form-data; name=\"title\"\r\n\r\n" +
	"Report\r\n" +
	"--outer\r\n" +
	"Content-Disposition: form-data; name=\"batch\"\r\n" +
	"Content-Type: multipart/mixed; boundary=inner\r\n\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"one\r\n" +
	"--inner\r\n" +
	"Content-Disposition: attachment; filename=\"two.txt\"\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"two\r\n" +
	"--inner--\r\n" +
	"\r\n--outer--\r\n"

const twoLevelFormData = "--b0\r\n" +
	"Content-Disposition: form-data; name=\"l1\"\r\n" +
	"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
	"--b1\r\n" +
	"Content-Disposition: form-data; name=\"l2\"\r\n" +
	"Content-Type: multipart/mixed; boundary=b2\r\n\r\n" +
	"--b2\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"deep\r\n" +
	"--b2--\r\n" +
	"\r\n--b1--\r\n" +
	"\r\n--b0--\r\n"

type formPart struct {
	name, fileName, contentType, encoding string
	body                                  string
}

// formBody builds a multipart/form-data body with boundary "B".
func formBody(parts ...formPart) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--B\r\n")
		b.WriteString("Content-Disposition: form-data; name=\"" + p.name + "\"")
		if p.fileName != "" {
			b.WriteString("; filename=\"" + p.fileName + "\"")
		}
		b.WriteString("\r\n")
		if p.contentType != "" {
			b.WriteString("Content-Type: " + p.contentType + "\r\n")
		}
		if p.encoding != "" {
			b.WriteString("Content-Encoding: " + p.encoding + "\r\n")
		}
		b.WriteString("\r\n" + p.body + "\r\n")
	}
	b.WriteString("--B--\r\n")

	return b.String()
}

const formContentType = "multipart/form-data; boundary=B"

func gzipped(t *testing.T, s string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.String()
}

func requireFormError(t *testing.T, err error, kind Kind) *FormError {
	t.Helper()

	require.Error(t, err)
	var fe *FormError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, kind, fe.Kind, "error: %v", err)

	return fe
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestParse_FormDataScenario(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	payload, err := Parse(context.Background(), strings.NewReader(scenarioFormData), formContentType,
		WithUploadDir(dir), WithComputeHash(true))
	require.NoError(t, err)

	form, ok := payload.(*NamedPayload)
	require.True(t, ok, "expected *NamedPayload, got %T", payload)

	assert.Equal(t, "Batch upload", form.Value("note"))
	assert.Equal(t, []string{"note", "files"}, form.Names())

	require.Len(t, form.Uploads["files"], 1)
	f := form.File("files")
	assert.Equal(t, "one.txt", f.FileName)
	assert.Equal(t, int64(6), f.Size)
	assert.Equal(t, "text/plain", f.ContentType)
	assert.Equal(t, dir, filepath.Dir(f.Path))
	assert.Equal(t, ".txt", filepath.Ext(f.Path))

	sum := sha256.Sum256([]byte("file-1"))
	assert.Equal(t, hex.EncodeToString(sum[:]), f.Hash)
	assert.Equal(t, sink.SHA256, f.HashAlgorithm)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "file-1", string(data))

	require.NoError(t, payload.Cleanup())
	assertEmptyDir(t, dir)
}

func TestParse_URLEncodedScenario(t *testing.T) {
	t.Parallel()

	payload, err := Parse(context.Background(), strings.NewReader("name=Kestrun&role=admin&role=maintainer"),
		"application/x-www-form-urlencoded")
	require.NoError(t, err)

	form, ok := payload.(*NamedPayload)
	require.True(t, ok)
	assert.Equal(t, "Kestrun", form.Value("name"))
	assert.Equal(t, []string{"admin", "maintainer"}, form.Fields["role"])
	assert.Equal(t, []string{"name", "role"}, form.Names())
	assert.Empty(t, form.Files())
}

func TestParse_MixedScenario(t *testing.T) {
	t.Parallel()

	payload, err := Parse(context.Background(), strings.NewReader(scenarioMixed), "multipart/mixed; boundary=X")
	require.NoError(t, err)

	ordered, ok := payload.(*OrderedPayload)
	require.True(t, ok, "expected *OrderedPayload, got %T", payload)
	require.Equal(t, 2, ordered.Len())
	assert.Equal(t, []string{"text/plain", "application/json"}, ordered.ContentTypes())
	assert.Equal(t, "hello", ordered.Entries[0].Text)
	assert.Equal(t, `{"a":1}`, ordered.Entries[1].Text)
	assert.Equal(t, int64(7), ordered.Entries[1].Size)
}

func TestParse_OrderPreservation(t *testing.T) {
	t.Parallel()

	types := []string{"text/plain", "application/json", "image/png", "application/xml", "text/csv"}
	sizes := []int{70000, 1, 0, 4096, 12}

	var b strings.Builder
	for i, ct := range types {
		fmt.Fprintf(&b, "--m\r\nContent-Type: %s\r\n\r\n%s\r\n", ct, strings.Repeat("x", sizes[i]))
	}
	b.WriteString("--m--\r\n")

	payload, err := Parse(context.Background(), strings.NewReader(b.String()), "multipart/mixed; boundary=m")
	require.NoError(t, err)

	ordered := payload.(*OrderedPayload)
	assert.Equal(t, types, ordered.ContentTypes())
	for i, e := range ordered.Entries {
		assert.Equal(t, int64(sizes[i]), e.Size)
	}
}

func TestParse_PayloadModeOverride(t *testing.T) {
	t.Parallel()

	payload, err := Parse(context.Background(), strings.NewReader(scenarioFormData), formContentType,
		WithUploadDir(t.TempDir()), WithPayloadMode(ModeOrdered))
	require.NoError(t, err)
	defer payload.Cleanup()

	ordered, ok := payload.(*OrderedPayload)
	require.True(t, ok)
	require.Equal(t, 2, ordered.Len())
	assert.Equal(t, "note", ordered.Entries[0].Name)
	assert.Equal(t, "Batch upload", ordered.Entries[0].Text)
	require.NotNil(t, ordered.Entries[1].File)
	assert.Equal(t, "one.txt", ordered.Entries[1].File.FileName)

	payload, err = Parse(context.Background(), strings.NewReader(scenarioMixed), "multipart/mixed; boundary=X",
		WithPayloadMode(ModeNamed))
	require.NoError(t, err)
	form, ok := payload.(*NamedPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"hello", `{"a":1}`}, form.Fields[""])
}

func TestParse_Limits(t *testing.T) {
	t.Parallel()

	single := formBody(formPart{name: "doc", fileName: "doc.bin", body: "0123456789"})
	field := formBody(formPart{name: "note", body: "Batch upload"})
	compressed := formBody(formPart{name: "z", fileName: "z.txt", encoding: "gzip", body: gzipped(t, strings.Repeat("a", 1000))})

	tests := []struct {
		name     string
		body     string
		ok       []Option
		exceeded []Option
		kind     limit.Kind
	}{
		{
			name:     "request body",
			body:     scenarioFormData,
			ok:       []Option{WithMaxRequestBodyBytes(int64(len(scenarioFormData)))},
			exceeded: []Option{WithMaxRequestBodyBytes(int64(len(scenarioFormData) - 1))},
			kind:     limit.KindBody,
		},
		{
			name:     "part body",
			body:     single,
			ok:       []Option{WithMaxPartBodyBytes(10)},
			exceeded: []Option{WithMaxPartBodyBytes(9)},
			kind:     limit.KindPart,
		},
		{
			name:     "field value",
			body:     field,
			ok:       []Option{WithMaxFieldValueBytes(12)},
			exceeded: []Option{WithMaxFieldValueBytes(11)},
			kind:     limit.KindField,
		},
		{
			name:     "part count",
			body:     scenarioFormData,
			ok:       []Option{WithMaxParts(2)},
			exceeded: []Option{WithMaxParts(1)},
			kind:     limit.KindParts,
		},
		{
			name:     "header bytes",
			body:     field,
			ok:       []Option{WithMaxHeaderBytes(1024)},
			exceeded: []Option{WithMaxHeaderBytes(10)},
			kind:     limit.KindHeader,
		},
		{
			name:     "decompressed bytes",
			body:     compressed,
			ok:       []Option{WithDecompression(true), WithMaxDecompressedBytes(1000)},
			exceeded: []Option{WithDecompression(true), WithMaxDecompressedBytes(999)},
			kind:     limit.KindDecompressed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			payload, err := Parse(context.Background(), strings.NewReader(tt.body), formContentType,
				append(tt.ok, WithUploadDir(dir))...)
			require.NoError(t, err)
			require.NoError(t, payload.Cleanup())

			_, err = Parse(context.Background(), strings.NewReader(tt.body), formContentType,
				append(tt.exceeded, WithUploadDir(dir))...)
			fe := requireFormError(t, err, KindLimitExceeded)
			assert.Equal(t, tt.kind, fe.Limit)
			assert.Greater(t, fe.Observed, fe.Ceiling)
			require.ErrorIs(t, err, limit.ErrLimitExceeded)
			if tt.kind == limit.KindBody {
				assert.Empty(t, fe.Part, "the body limit belongs to no part")
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestParse_BodyLimitNotAttributedToPart(t *testing.T) {
	t.Parallel()

	// Every byte budget below the body size trips while some part is stored
	// or framed; none of those parts is at fault.
	for ceiling := int64(1); ceiling < int64(len(scenarioFormData)); ceiling += 7 {
		_, err := Parse(context.Background(), strings.NewReader(scenarioFormData), formContentType,
			WithUploadDir(t.TempDir()), WithMaxRequestBodyBytes(ceiling))
		fe := requireFormError(t, err, KindLimitExceeded)
		assert.Equal(t, limit.KindBody, fe.Limit)
		assert.Empty(t, fe.Part, "ceiling %d", ceiling)
		assert.NotContains(t, fe.Error(), "part \"")
	}

	_, err := Parse(context.Background(), strings.NewReader(formBody(formPart{name: "note", body: "0123456789"})), formContentType,
		WithMaxPartBodyBytes(5))
	fe := requireFormError(t, err, KindLimitExceeded)
	assert.Equal(t, "note", fe.Part)
}

func TestParse_UnlimitedLimits(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), strings.NewReader(scenarioFormData), formContentType,
		WithUploadDir(t.TempDir()),
		WithMaxRequestBodyBytes(-1),
		WithMaxPartBodyBytes(-1),
		WithMaxFieldValueBytes(-1),
		WithMaxParts(-1),
		WithMaxHeaderBytes(-1),
	)
	require.NoError(t, err)
}

func TestParse_URLEncodedLimits(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), strings.NewReader("a=1&b=2&c=3"), mediaURLEncoded, WithMaxParts(2))
	fe := requireFormError(t, err, KindLimitExceeded)
	assert.Equal(t, limit.KindParts, fe.Limit)

	_, err = Parse(context.Background(), strings.NewReader("a=hello%20world"), mediaURLEncoded, WithMaxFieldValueBytes(11))
	require.NoError(t, err)

	_, err = Parse(context.Background(), strings.NewReader("a=hello%20world"), mediaURLEncoded, WithMaxFieldValueBytes(10))
	fe = requireFormError(t, err, KindLimitExceeded)
	assert.Equal(t, limit.KindField, fe.Limit)
	assert.Equal(t, "a", fe.Part)

	_, err = Parse(context.Background(), strings.NewReader("a=%zz"), mediaURLEncoded)
	requireFormError(t, err, KindMalformedMultipart)
}

func TestParse_NestingDepth(t *testing.T) {
	t.Parallel()

	t.Run("container in named payload", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		payload, err := Parse(context.Background(), strings.NewReader(nestedFormData),
			"multipart/form-data; boundary=outer", WithUploadDir(dir))
		require.NoError(t, err)

		form := payload.(*NamedPayload)
		assert.Equal(t, "Report", form.Value("title"))
		require.Len(t, form.Containers["batch"], 1)

		batch := form.Containers["batch"][0]
		assert.Equal(t, "multipart/mixed", batch.ContentType)
		require.Equal(t, 2, batch.Len())
		assert.Equal(t, "one", batch.Entries[0].Text)
		require.NotNil(t, batch.Entries[1].File)
		assert.Equal(t, "two.txt", batch.Entries[1].File.FileName)

		require.Len(t, form.Files(), 1)
		require.NoError(t, payload.Cleanup())
		assertEmptyDir(t, dir)
	})

	t.Run("exactly at max depth", func(t *testing.T) {
		t.Parallel()

		payload, err := Parse(context.Background(), strings.NewReader(twoLevelFormData),
			"multipart/form-data; boundary=b0", WithMaxNestingDepth(2))
		require.NoError(t, err)

		l1 := payload.(*NamedPayload).Containers["l1"][0]
		require.Equal(t, 1, l1.Len())
		l2 := l1.Entries[0].Nested
		require.NotNil(t, l2)
		require.Equal(t, 1, l2.Len())
		assert.Equal(t, "deep", l2.Entries[0].Text)
	})

	t.Run("nesting forbidden", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(context.Background(), strings.NewReader(nestedFormData),
			"multipart/form-data; boundary=outer", WithMaxNestingDepth(NoNesting))
		fe := requireFormError(t, err, KindLimitExceeded)
		assert.Equal(t, limit.KindDepth, fe.Limit)
		assert.Equal(t, int64(0), fe.Ceiling)
		assert.Equal(t, int64(1), fe.Observed)

		_, err = Parse(context.Background(), strings.NewReader(nestedFormData),
			"multipart/form-data; boundary=outer", WithMaxNestingDepth(0))
		require.NoError(t, err, "zero selects the default depth")
	})

	t.Run("one level deeper", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(context.Background(), strings.NewReader(twoLevelFormData),
			"multipart/form-data; boundary=b0", WithMaxNestingDepth(1))
		fe := requireFormError(t, err, KindLimitExceeded)
		assert.Equal(t, limit.KindDepth, fe.Limit)
		assert.Equal(t, int64(1), fe.Ceiling)
		assert.Equal(t, int64(2), fe.Observed)
	})
}

func TestParse_Rules(t *testing.T) {
	t.Parallel()

	set := rules.MustNew(rules.UnknownReject,
		rules.New("note", rules.Required()),
		rules.New("files", rules.Multiple(), rules.ContentTypes("text/plain")),
		rules.New("extra"),
	)

	tests := []struct {
		name   string
		body   string
		kind   Kind
		status int
		part   string
	}{
		{
			name: "accepted",
			body: scenarioFormData,
		},
		{
			name:   "disallowed content type",
			body:   formBody(formPart{name: "note", body: "x"}, formPart{name: "files", fileName: "a.png", contentType: "image/png", body: "png"}),
			kind:   KindDisallowedContentType,
			status: 415,
			part:   "files",
		},
		{
			name:   "duplicate",
			body:   formBody(formPart{name: "note", body: "x"}, formPart{name: "note", body: "y"}),
			kind:   KindDuplicateNotAllowed,
			status: 400,
			part:   "note",
		},
		{
			name:   "unexpected",
			body:   formBody(formPart{name: "note", body: "x"}, formPart{name: "other", body: "y"}),
			kind:   KindUnexpectedPart,
			status: 400,
			part:   "other",
		},
		{
			name:   "missing",
			body:   formBody(formPart{name: "extra", body: "x"}),
			kind:   KindMissingRequiredPart,
			status: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			payload, err := Parse(context.Background(), strings.NewReader(tt.body), formContentType,
				WithUploadDir(dir), WithRules(set))
			if tt.kind == "" {
				require.NoError(t, err)
				require.NoError(t, payload.Cleanup())
				return
			}

			fe := requireFormError(t, err, tt.kind)
			assert.Equal(t, tt.status, fe.HTTPStatus())
			assert.Equal(t, tt.part, fe.Part)
			assert.Nil(t, payload)
			assertEmptyDir(t, dir)
		})
	}
}

// batchPart builds a form-data container part named batch holding the given
// inner parts, each given as name and body.
func batchPart(boundary string, inner ...[2]string) string {
	var b strings.Builder
	b.WriteString("--B\r\n")
	b.WriteString("Content-Disposition: form-data; name=\"batch\"\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")
	for _, p := range inner {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Disposition: form-data; name=\"" + p[0] + "\"\r\n\r\n")
		b.WriteString(p[1] + "\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n\r\n")

	return b.String()
}

func TestParse_RepeatedContainer(t *testing.T) {
	t.Parallel()

	set := rules.MustNew(rules.UnknownReject,
		rules.New("batch", rules.Multiple(), rules.ContentTypes("multipart/mixed"), rules.Children(
			rules.New("manifest", rules.Required()),
			rules.New("data", rules.Multiple()),
		)),
	)

	t.Run("each batch with its manifest", func(t *testing.T) {
		t.Parallel()

		body := batchPart("i1", [2]string{"manifest", "m1"}, [2]string{"data", "d1"}) +
			batchPart("i2", [2]string{"manifest", "m2"}) +
			"--B--\r\n"
		payload, err := Parse(context.Background(), strings.NewReader(body), formContentType, WithRules(set))
		require.NoError(t, err)

		batches := payload.(*NamedPayload).Containers["batch"]
		require.Len(t, batches, 2)
		assert.Equal(t, "m1", batches[0].Entries[0].Text)
		assert.Equal(t, "m2", batches[1].Entries[0].Text)
	})

	t.Run("second batch without manifest", func(t *testing.T) {
		t.Parallel()

		body := batchPart("i1", [2]string{"manifest", "m1"}) +
			batchPart("i2", [2]string{"data", "d2"}) +
			"--B--\r\n"
		_, err := Parse(context.Background(), strings.NewReader(body), formContentType, WithRules(set))
		fe := requireFormError(t, err, KindMissingRequiredPart)
		assert.Equal(t, []string{"batch.manifest"}, fe.Missing)
	})

	t.Run("first batch without manifest", func(t *testing.T) {
		t.Parallel()

		body := batchPart("i1", [2]string{"data", "d1"}) +
			batchPart("i2", [2]string{"manifest", "m2"}) +
			"--B--\r\n"
		_, err := Parse(context.Background(), strings.NewReader(body), formContentType, WithRules(set))
		fe := requireFormError(t, err, KindMissingRequiredPart)
		assert.Equal(t, []string{"batch.manifest"}, fe.Missing)
	})

	t.Run("manifest twice in one batch", func(t *testing.T) {
		t.Parallel()

		body := batchPart("i1", [2]string{"manifest", "m1"}, [2]string{"manifest", "again"}) + "--B--\r\n"
		_, err := Parse(context.Background(), strings.NewReader(body), formContentType, WithRules(set))
		fe := requireFormError(t, err, KindDuplicateNotAllowed)
		assert.Equal(t, "batch.manifest", fe.Part)
	})
}

func TestParse_MissingRequiredAggregated(t *testing.T) {
	t.Parallel()

	set := rules.MustNew(rules.UnknownAccept,
		rules.New("a", rules.Required()),
		rules.New("b", rules.Required()),
	)
	_, err := Parse(context.Background(), strings.NewReader(formBody(formPart{name: "c", body: "x"})), formContentType,
		WithRules(set))

	fe := requireFormError(t, err, KindMissingRequiredPart)
	assert.Equal(t, []string{"a", "b"}, fe.Missing)
	require.ErrorIs(t, err, rules.ErrMissingRequired)
}

func TestParse_RuleSinkOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	set := rules.MustNew(rules.UnknownAccept,
		rules.New("blob", rules.Sink(sink.Disk)),
		rules.New("small", rules.Sink(sink.Memory)),
	)
	body := formBody(
		formPart{name: "blob", body: "stored on disk"},
		formPart{name: "small", fileName: "small.txt", body: "kept in memory"},
	)

	payload, err := Parse(context.Background(), strings.NewReader(body), formContentType, WithUploadDir(dir), WithRules(set))
	require.NoError(t, err)
	form := payload.(*NamedPayload)

	blob := form.File("blob")
	require.NotNil(t, blob)
	assert.False(t, blob.InMemory())
	assert.Empty(t, blob.FileName)

	small := form.File("small")
	require.NotNil(t, small)
	assert.True(t, small.InMemory())

	rc, err := small.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "kept in memory", string(data))

	require.NoError(t, payload.Cleanup())
	assertEmptyDir(t, dir)
}

func TestParse_CleanupOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := formBody(
		formPart{name: "first", fileName: "a.txt", body: "aaaa"},
		formPart{name: "second", fileName: "b.txt", body: "bbbb"},
		formPart{name: "third", fileName: "c.txt", body: strings.Repeat("c", 100)},
	)

	_, err := Parse(context.Background(), strings.NewReader(body), formContentType,
		WithUploadDir(dir), WithMaxPartBodyBytes(50))
	fe := requireFormError(t, err, KindLimitExceeded)
	assert.Equal(t, "third", fe.Part)
	assertEmptyDir(t, dir)
}

func TestParse_Decompression(t *testing.T) {
	t.Parallel()

	encoded := formBody(formPart{name: "doc", fileName: "doc.txt", encoding: "gzip", body: gzipped(t, "plain text")})

	t.Run("decoded when enabled", func(t *testing.T) {
		t.Parallel()

		payload, err := Parse(context.Background(), strings.NewReader(encoded), formContentType,
			WithUploadDir(t.TempDir()), WithDecompression(true))
		require.NoError(t, err)
		defer payload.Cleanup()

		f := payload.(*NamedPayload).File("doc")
		assert.True(t, f.Decoded)
		assert.Equal(t, "gzip", f.ContentEncoding)
		assert.Equal(t, int64(len("plain text")), f.Size)
	})

	t.Run("raw bytes when disabled", func(t *testing.T) {
		t.Parallel()

		payload, err := Parse(context.Background(), strings.NewReader(encoded), formContentType,
			WithUploadDir(t.TempDir()))
		require.NoError(t, err)
		defer payload.Cleanup()

		f := payload.(*NamedPayload).File("doc")
		assert.False(t, f.Decoded)
		assert.Equal(t, int64(len(gzipped(t, "plain text"))), f.Size)
	})

	t.Run("rejected when not allowed", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(context.Background(), strings.NewReader(encoded), formContentType,
			WithUploadDir(t.TempDir()), WithDecompression(true),
			WithAllowedEncodings("br"), WithRejectUnknownEncoding(true))
		fe := requireFormError(t, err, KindUnsupportedEncoding)
		assert.Equal(t, 415, fe.HTTPStatus())
		assert.Equal(t, "doc", fe.Part)
	})

	t.Run("corrupt stream", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		corrupt := formBody(formPart{name: "doc", fileName: "doc.txt", encoding: "gzip", body: "definitely not gzip"})
		_, err := Parse(context.Background(), strings.NewReader(corrupt), formContentType,
			WithUploadDir(dir), WithDecompression(true))
		requireFormError(t, err, KindDecodeError)
		assertEmptyDir(t, dir)
	})
}

type countingReader struct {
	reads int
}

func (c *countingReader) Read([]byte) (int, error) {
	c.reads++
	return 0, io.EOF
}

func TestParse_RequestContentType(t *testing.T) {
	t.Parallel()

	t.Run("rejected by default", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(context.Background(), strings.NewReader("{}"), "application/json")
		fe := requireFormError(t, err, KindUnsupportedRequestContentType)
		assert.Equal(t, 415, fe.HTTPStatus())
		require.ErrorIs(t, err, ErrUnsupportedContentType)
	})

	t.Run("empty payload without reading when accepted", func(t *testing.T) {
		t.Parallel()

		body := &countingReader{}
		payload, err := Parse(context.Background(), body, "application/json",
			WithRejectUnknownRequestContentType(false))
		require.NoError(t, err)
		assert.Empty(t, payload.(*NamedPayload).Names())
		assert.Zero(t, body.reads)
	})

	t.Run("multipart without boundary", func(t *testing.T) {
		t.Parallel()

		_, err := Parse(context.Background(), strings.NewReader(scenarioFormData), "multipart/form-data")
		requireFormError(t, err, KindMalformedMultipart)
	})

	t.Run("missing closing boundary", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		truncated := strings.TrimSuffix(scenarioFormData, "\r\n--B--\r\n")
		_, err := Parse(context.Background(), strings.NewReader(truncated), formContentType, WithUploadDir(dir))
		requireFormError(t, err, KindMalformedMultipart)
		assertEmptyDir(t, dir)
	})
}

// cancelingReader cancels its context after after bytes have been read.
type cancelingReader struct {
	r      io.Reader
	after  int
	read   int
	cancel context.CancelFunc
}

func (c *cancelingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	if c.read >= c.after {
		c.cancel()
	}

	return n, err
}

func TestParse_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("before start", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Parse(ctx, strings.NewReader(scenarioFormData), formContentType, WithUploadDir(t.TempDir()))
		fe := requireFormError(t, err, KindCanceled)
		assert.Equal(t, StatusClientClosedRequest, fe.HTTPStatus())
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("mid stream removes files", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		body := formBody(
			formPart{name: "first", fileName: "a.bin", body: strings.Repeat("a", 1000)},
			formPart{name: "second", fileName: "b.bin", body: strings.Repeat("b", 512<<10)},
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		src := &cancelingReader{r: strings.NewReader(body), after: 200 << 10, cancel: cancel}
		_, err := Parse(ctx, src, formContentType, WithUploadDir(dir))
		requireFormError(t, err, KindCanceled)
		require.ErrorIs(t, err, context.Canceled)
		assertEmptyDir(t, dir)
	})
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New(WithHashAlgorithm("crc7"))
	require.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(WithAllowedEncodings("lzma"))
	require.ErrorIs(t, err, ErrInvalidOption)

	assert.Panics(t, func() { MustNew(WithHashAlgorithm("crc7")) })
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	o := MustNew().Options()
	assert.Equal(t, int64(DefaultMaxRequestBodyBytes), o.MaxRequestBodyBytes)
	assert.Equal(t, int64(DefaultMaxPartBodyBytes), o.MaxPartBodyBytes)
	assert.Equal(t, int64(DefaultMaxFieldValueBytes), o.MaxFieldValueBytes)
	assert.Equal(t, int64(DefaultMaxParts), o.MaxParts)
	assert.Equal(t, int64(DefaultMaxHeaderBytes), o.MaxHeaderBytes)
	assert.Equal(t, DefaultMaxNestingDepth, o.MaxNestingDepth)
	assert.True(t, o.RejectUnknownRequestContentType)
	assert.False(t, o.EnableDecompression)
	assert.Equal(t, DefaultAllowedEncodings, o.AllowedEncodings)

	o = MustNew(WithMaxParts(-1), WithHashAlgorithm(sink.XXH64)).Options()
	assert.Equal(t, int64(-1), o.MaxParts)
	assert.True(t, o.ComputeHash)
	assert.Equal(t, sink.XXH64, o.HashAlgorithm)
}
