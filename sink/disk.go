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

package sink

import (
	"context"
	"crypto/md5" //nolint:gosec // offered for legacy clients, not for integrity
	"crypto/sha1" //nolint:gosec // offered for legacy clients, not for integrity
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// HashAlgorithm names a content digest.
type HashAlgorithm string

// Supported hash algorithms.
const (
	SHA256 HashAlgorithm = "sha256"
	SHA512 HashAlgorithm = "sha512"
	SHA1   HashAlgorithm = "sha1"
	MD5    HashAlgorithm = "md5"
	XXH64  HashAlgorithm = "xxh64"
)

// ErrUnsupportedHash is returned for unknown hash algorithm names.
var ErrUnsupportedHash = errors.New("unsupported hash algorithm")

// maxExtLen bounds the extension kept from client file names.
const maxExtLen = 16

// NewHash returns a fresh hash for alg.
func NewHash(alg HashAlgorithm) (hash.Hash, error) {
	switch HashAlgorithm(strings.ToLower(string(alg))) {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil //nolint:gosec // see import
	case MD5:
		return md5.New(), nil //nolint:gosec // see import
	case XXH64:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, alg)
	}
}

// DiskSink streams part bodies into temporary files.
//
// File names are random (a UUID in hex) plus the client's extension reduced
// to lowercase letters and digits. Files are created exclusively with mode
// 0600. The sink never reuses or overwrites a file.
type DiskSink struct {
	// Dir is the directory for temporary files. Empty means os.TempDir().
	Dir string

	// Hash selects the digest computed while writing. Empty disables hashing.
	Hash HashAlgorithm
}

// Store drains r into a new temporary file. Only the extension of
// info.FileName is used.
//
// On any failure, including cancellation of ctx, the partial file is removed
// before Write returns. Reader errors are returned unchanged; file system
// errors match [ErrStorage].
func (d DiskSink) Store(ctx context.Context, r io.Reader, info Info) (*Result, error) {
	var h hash.Hash
	if d.Hash != "" {
		var err error
		if h, err = NewHash(d.Hash); err != nil {
			return nil, err
		}
	}

	dir := d.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	path := filepath.Join(dir, TempName(info.FileName))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	var dst io.Writer = f
	if h != nil {
		dst = io.MultiWriter(f, h)
	}
	n, err := copyChunks(ctx, dst, r)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", ErrStorage, cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	res := &Result{Kind: Disk, Path: path, Size: n}
	if h != nil {
		res.Hash = hex.EncodeToString(h.Sum(nil))
		res.HashAlgorithm = HashAlgorithm(strings.ToLower(string(d.Hash)))
	}

	return res, nil
}

// TempName returns a fresh random file name carrying the sanitized
// extension of filename.
func TempName(filename string) string {
	id := uuid.New()
	return hex.EncodeToString(id[:]) + sanitizeExt(filepath.Ext(strings.ReplaceAll(filename, `\`, "/")))
}

func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, c := range strings.ToLower(ext) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
		if b.Len() == maxExtLen {
			break
		}
	}
	if b.Len() == 0 {
		return ""
	}

	return "." + b.String()
}
