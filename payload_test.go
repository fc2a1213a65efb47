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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diskFile(t *testing.T, dir, content string) *File {
	t.Helper()

	path := filepath.Join(dir, "upload.tmp")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return &File{FieldName: "doc", FileName: "doc.txt", Size: int64(len(content)), Path: path}
}

func TestFile_OpenMoveRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := diskFile(t, dir, "content")

	rc, err := f.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "content", string(data))

	dst := filepath.Join(dir, "kept.txt")
	require.NoError(t, f.MoveTo(dst))
	assert.Equal(t, dst, f.Path)
	_, err = os.Stat(filepath.Join(dir, "upload.tmp"))
	require.ErrorIs(t, err, os.ErrNotExist)

	assert.True(t, f.Moved())
	require.NoError(t, f.Remove())
	_, err = os.Stat(dst)
	require.NoError(t, err, "moved files are left in place")

	g := diskFile(t, dir, "other")
	require.NoError(t, g.Remove())
	require.NoError(t, g.Remove(), "second remove is a no-op")
	_, err = os.Stat(g.Path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFile_InMemory(t *testing.T) {
	t.Parallel()

	f := &File{FieldName: "note", FileName: "note.txt", Size: 5, data: []byte("hello")}
	assert.True(t, f.InMemory())
	require.NoError(t, f.Remove())

	dst := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, f.MoveTo(dst))
	assert.False(t, f.InMemory())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("copied"), 0o600))

	dst := filepath.Join(dir, "dst")
	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "copied", string(data))

	require.Error(t, copyFile(src, dst), "destination is never overwritten")
}

func TestNamedPayload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := newNamedPayload()
	p.addValue("b", "1")
	p.addFile("a", diskFile(t, dir, "x"))
	p.addValue("b", "2")

	nested := &OrderedPayload{Entries: []*Entry{{File: &File{data: []byte("m")}}}}
	p.addContainer("c", nested)

	assert.Equal(t, []string{"b", "a", "c"}, p.Names())
	assert.Equal(t, "1", p.Value("b"))
	assert.Empty(t, p.Value("missing"))
	assert.Nil(t, p.File("missing"))
	assert.Len(t, p.Files(), 2)

	require.NoError(t, p.Cleanup())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOrderedPayload_Files(t *testing.T) {
	t.Parallel()

	inner := &OrderedPayload{Entries: []*Entry{{ContentType: "text/plain"}, {File: &File{FileName: "b"}}}}
	p := &OrderedPayload{Entries: []*Entry{
		{File: &File{FileName: "a"}},
		{ContentType: "multipart/mixed", Nested: inner},
		{File: &File{FileName: "c"}},
	}}

	var names []string
	for _, f := range p.Files() {
		names = append(names, f.FileName)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, []string{"", "multipart/mixed", ""}, p.ContentTypes())
}
