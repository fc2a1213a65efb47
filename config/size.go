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

package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// ErrInvalidSize is returned for size values that cannot be parsed.
var ErrInvalidSize = errors.New("invalid size")

// Unlimited disables a size limit.
const Unlimited ByteSize = -1

// ByteSize is a byte count that decodes from integers or from strings such
// as "10MB", "1.5 GiB" or "unlimited".
type ByteSize int64

// Int64 returns the size as an int64.
func (s ByteSize) Int64() int64 {
	return int64(s)
}

// String formats the size with IEC units.
func (s ByteSize) String() string {
	if s < 0 {
		return "unlimited"
	}

	return humanize.IBytes(uint64(s))
}

// ParseByteSize converts v to a [ByteSize]. Strings use SI or IEC units
// ("10MB" is 10,000,000 bytes, "10MiB" is 10,485,760); bare numbers are bytes.
// Any negative number, "unlimited" and "none" yield [Unlimited].
func ParseByteSize(v any) (ByteSize, error) {
	s, ok := v.(string)
	if !ok {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSize, v)
		}
		return clampSize(n), nil
	}

	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "unlimited", "none":
		return Unlimited, nil
	}
	if n, err := cast.ToInt64E(s); err == nil {
		return clampSize(n), nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSize, s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
	}

	return ByteSize(n), nil
}

func clampSize(n int64) ByteSize {
	if n < 0 {
		return Unlimited
	}

	return ByteSize(n)
}

// byteSizeHook decodes any supported representation into a [ByteSize] field.
func byteSizeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(ByteSize(0))

	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}

		return ParseByteSize(data)
	}
}
