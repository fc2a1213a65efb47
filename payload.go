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
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/textproto"
	"os"
	"syscall"

	"rivaas.dev/upload/sink"
)

// Payload is the result of a successful parse: a [*NamedPayload] or an
// [*OrderedPayload].
type Payload interface {
	// Files returns every file in the payload, nested ones included.
	Files() []*File

	// Cleanup removes the temporary files still owned by the payload.
	Cleanup() error
}

var (
	_ Payload = (*NamedPayload)(nil)
	_ Payload = (*OrderedPayload)(nil)
)

// File is a file-like part. Disk-backed files live at Path until the caller
// moves or removes them; the caller owns that file once Parse returns.
type File struct {
	FieldName       string               // Part name
	FileName        string               // Client file name, base name only
	ContentType     string               // Declared media type
	ContentEncoding string               // Declared Content-Encoding
	Decoded         bool                 // Whether the stored bytes were decoded
	Size            int64                // Stored bytes
	Path            string               // Temporary file, empty for in-memory files
	Hash            string               // Lowercase hex digest, empty when hashing is off
	HashAlgorithm   sink.HashAlgorithm   // Digest algorithm of Hash
	Header          textproto.MIMEHeader // Part headers

	data  []byte
	moved bool
}

// InMemory reports whether the file content is held in memory.
func (f *File) InMemory() bool {
	return f.Path == ""
}

// Open returns a reader over the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.InMemory() {
		return io.NopCloser(bytes.NewReader(f.data)), nil
	}

	return os.Open(f.Path)
}

// Moved reports whether the file was claimed with [File.MoveTo].
func (f *File) Moved() bool {
	return f.moved
}

// Remove deletes the temporary file. Removing a file twice, or an in-memory
// file, is not an error. A file claimed with [File.MoveTo] is left in place.
func (f *File) Remove() error {
	if f.InMemory() || f.moved {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// MoveTo moves the file content to dst. It renames when possible and copies
// across file systems. After a successful move Path refers to dst and the
// file no longer belongs to the payload: Cleanup leaves it alone.
func (f *File) MoveTo(dst string) error {
	if f.InMemory() {
		if err := os.WriteFile(dst, f.data, 0o600); err != nil {
			return err
		}
		f.Path, f.data, f.moved = dst, nil, true

		return nil
	}

	err := os.Rename(f.Path, dst)
	if err == nil {
		f.Path, f.moved = dst, true
		return nil
	}
	var le *os.LinkError
	if !errors.As(err, &le) || !errors.Is(le.Err, syscall.EXDEV) {
		return err
	}

	if err = copyFile(f.Path, dst); err != nil {
		return err
	}
	if err = os.Remove(f.Path); err != nil {
		return err
	}
	f.Path, f.moved = dst, true

	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	_, err = io.Copy(out, in)

	return err
}

// NamedPayload holds form-data semantics: values and files addressed by
// field name. Repeated names collect in order.
type NamedPayload struct {
	Fields     map[string][]string          // Text values
	Uploads    map[string][]*File           // File parts
	Containers map[string][]*OrderedPayload // Nested multipart parts

	names []string
}

func newNamedPayload() *NamedPayload {
	return &NamedPayload{
		Fields:     make(map[string][]string),
		Uploads:    make(map[string][]*File),
		Containers: make(map[string][]*OrderedPayload),
	}
}

// Value returns the first value of the field, or "".
func (p *NamedPayload) Value(name string) string {
	if v := p.Fields[name]; len(v) > 0 {
		return v[0]
	}

	return ""
}

// File returns the first file of the field, or nil.
func (p *NamedPayload) File(name string) *File {
	if f := p.Uploads[name]; len(f) > 0 {
		return f[0]
	}

	return nil
}

// Names returns the distinct field names in the order they first appeared.
func (p *NamedPayload) Names() []string {
	return append([]string(nil), p.names...)
}

// Files returns every file in the payload in arrival order per name.
func (p *NamedPayload) Files() []*File {
	var files []*File
	for _, name := range p.names {
		files = append(files, p.Uploads[name]...)
		for _, c := range p.Containers[name] {
			files = append(files, c.Files()...)
		}
	}

	return files
}

// Cleanup removes every temporary file in the payload.
func (p *NamedPayload) Cleanup() error {
	return removeAll(p.Files())
}

func (p *NamedPayload) see(name string) {
	if _, ok := p.Fields[name]; ok {
		return
	}
	if _, ok := p.Uploads[name]; ok {
		return
	}
	if _, ok := p.Containers[name]; ok {
		return
	}
	p.names = append(p.names, name)
}

func (p *NamedPayload) addValue(name, value string) {
	p.see(name)
	p.Fields[name] = append(p.Fields[name], value)
}

func (p *NamedPayload) addFile(name string, f *File) {
	p.see(name)
	p.Uploads[name] = append(p.Uploads[name], f)
}

func (p *NamedPayload) addContainer(name string, c *OrderedPayload) {
	p.see(name)
	p.Containers[name] = append(p.Containers[name], c)
}

// Entry is one part of an [OrderedPayload]. Exactly one of Text, File or
// Nested describes the content.
type Entry struct {
	Name        string               // Part name, often empty for multipart/mixed
	ContentType string               // Declared media type
	Size        int64                // Stored bytes
	Header      textproto.MIMEHeader // Part headers

	Text   string          // Decoded text of in-memory parts
	Bytes  []byte          // Raw stored bytes of in-memory parts
	File   *File           // File parts
	Nested *OrderedPayload // Nested multipart parts
}

// OrderedPayload holds multipart/mixed semantics: parts in wire order.
type OrderedPayload struct {
	ContentType string   // Media type of the multipart body
	Entries     []*Entry // Parts in wire order
}

// Len returns the number of entries.
func (p *OrderedPayload) Len() int {
	return len(p.Entries)
}

// ContentTypes returns the content type of every entry in order.
func (p *OrderedPayload) ContentTypes() []string {
	out := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.ContentType
	}

	return out
}

// Files returns every file in wire order, nested ones included.
func (p *OrderedPayload) Files() []*File {
	var files []*File
	for _, e := range p.Entries {
		switch {
		case e.File != nil:
			files = append(files, e.File)
		case e.Nested != nil:
			files = append(files, e.Nested.Files()...)
		}
	}

	return files
}

// Cleanup removes every temporary file in the payload.
func (p *OrderedPayload) Cleanup() error {
	return removeAll(p.Files())
}

func removeAll(files []*File) error {
	var errs []error
	for _, f := range files {
		if err := f.Remove(); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", f.Path, err))
		}
	}

	return errors.Join(errs...)
}
