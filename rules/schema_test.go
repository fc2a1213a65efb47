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

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/upload/sink"
)

const yamlSchema = `
unknown: reject
fields:
  - name: note
    required: true
  - name: files
    multiple: true
    contentTypes: [text/plain, "image/*"]
    storage: disk
  - name: batch
    fields:
      - name: manifest
        required: true
        contentTypes: [application/json]
`

const jsonSchema = `{
  "unknown": "reject",
  "fields": [
    {"name": "note", "required": true},
    {"name": "files", "multiple": true, "contentTypes": ["text/plain", "image/*"], "storage": "disk"},
    {"name": "batch", "fields": [
      {"name": "manifest", "required": true, "contentTypes": ["application/json"]}
    ]}
  ]
}`

const tomlSchema = `
unknown = "reject"

[[fields]]
name = "note"
required = true

[[fields]]
name = "files"
multiple = true
contentTypes = ["text/plain", "image/*"]
storage = "disk"

[[fields]]
name = "batch"

  [[fields.fields]]
  name = "manifest"
  required = true
  contentTypes = ["application/json"]
`

func TestParseSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		data   string
	}{
		{format: "yaml", data: yamlSchema},
		{format: ".yml", data: yamlSchema},
		{format: "json", data: jsonSchema},
		{format: "toml", data: tomlSchema},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			set, err := ParseSchema([]byte(tt.data), tt.format)
			require.NoError(t, err)

			assert.Equal(t, UnknownReject, set.Policy())
			require.Equal(t, 4, set.Len())

			files, ok := set.Lookup("", "files")
			require.True(t, ok)
			assert.True(t, files.AllowMultiple)
			assert.Equal(t, sink.Disk, files.Sink)

			batch, ok := set.Lookup("", "batch")
			require.True(t, ok)
			assert.True(t, batch.IsContainer())
			assert.Equal(t, []string{"multipart/mixed"}, batch.ContentTypes)

			manifest, ok := set.Lookup("batch", "manifest")
			require.True(t, ok)
			assert.True(t, manifest.Required)
		})
	}
}

func TestParseSchema_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		data   string
	}{
		{name: "unknown yaml key", format: "yaml", data: "fields:\n  - name: a\n    requird: true\n"},
		{name: "unknown json key", format: "json", data: `{"fieldz": []}`},
		{name: "unknown toml key", format: "toml", data: "unknwn = \"reject\"\n"},
		{name: "bad storage", format: "yaml", data: "fields:\n  - name: a\n    storage: tape\n"},
		{name: "bad policy", format: "json", data: `{"unknown": "sometimes"}`},
		{name: "duplicate", format: "yaml", data: "fields:\n  - name: a\n  - name: a\n"},
		{name: "unsupported format", format: "ini", data: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseSchema([]byte(tt.data), tt.format)
			require.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestLoadSchemaYAML_Empty(t *testing.T) {
	t.Parallel()

	set, err := LoadSchemaYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, UnknownAccept, set.Policy())
}
