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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"rivaas.dev/upload/limit"
)

// parseURLEncoded reads key=value pairs separated by '&' without buffering
// more than one pair. Pairs count against MaxParts and decoded values
// against MaxFieldValueBytes.
func (r *run) parseURLEncoded(ctx context.Context, body io.Reader) (Payload, error) {
	payload := newNamedPayload()
	pairs := limit.NewBudget(r.opts.MaxParts, limit.KindParts)
	maxRaw := rawPairLimit(r.opts.MaxFieldValueBytes, r.opts.MaxHeaderBytes)

	br := bufio.NewReader(body)
	var pair []byte
	for {
		chunk, err := br.ReadSlice('&')
		pair = append(pair, chunk...)
		if maxRaw >= 0 && int64(len(pair)) > maxRaw {
			return nil, &limit.Error{Kind: limit.KindField, Limit: r.opts.MaxFieldValueBytes, Read: int64(len(pair))}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return nil, err
		}

		pair = bytes.TrimSuffix(pair, []byte("&"))
		if len(pair) > 0 {
			if serr := pairs.Spend(1); serr != nil {
				return nil, serr
			}
			r.stats.Parts++
			if aerr := r.addPair(ctx, payload, pair); aerr != nil {
				return nil, aerr
			}
		}
		pair = pair[:0]
		if eof {
			break
		}
	}

	if err := r.tracker.Finish(); err != nil {
		return nil, err
	}

	return payload, nil
}

func (r *run) addPair(ctx context.Context, payload *NamedPayload, pair []byte) error {
	rawKey, rawValue, _ := bytes.Cut(pair, []byte("="))
	key, err := url.QueryUnescape(string(rawKey))
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", ErrMalformedForm, rawKey, err)
	}
	value, err := url.QueryUnescape(string(rawValue))
	if err != nil {
		return fmt.Errorf("%w: value of %q: %w", ErrMalformedForm, key, err)
	}
	if ceiling := r.opts.MaxFieldValueBytes; ceiling >= 0 && int64(len(value)) > ceiling {
		return classify(&limit.Error{Kind: limit.KindField, Limit: ceiling, Read: int64(len(value))}).inPart(key)
	}
	if _, err = r.tracker.Check("", key, "text/plain"); err != nil {
		return err
	}

	payload.addValue(key, value)
	r.stats.Fields++
	r.log.DebugContext(ctx, "field parsed", "part", key, "size", len(value))

	return nil
}

// rawPairLimit bounds the encoded size of one pair: a percent-encoded value
// takes up to three bytes per decoded byte, and keys are bounded like header
// blocks.
func rawPairLimit(maxValue, maxKey int64) int64 {
	if maxValue < 0 || maxKey < 0 {
		return limit.Unlimited
	}

	return 3*maxValue + maxKey + 1
}
