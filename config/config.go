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
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"

	"rivaas.dev/upload"
	"rivaas.dev/upload/decode"
	"rivaas.dev/upload/rules"
	"rivaas.dev/upload/sink"
)

// tagName is the struct tag read when binding configuration values.
const tagName = "config"

// Config holds upload parser settings.
type Config struct {
	UploadDir     string `config:"upload_dir"`
	ComputeHash   bool   `config:"compute_hash"`
	HashAlgorithm string `config:"hash_algorithm"`
	PayloadMode   string `config:"payload_mode" validate:"omitempty,oneof=auto named ordered"`

	RejectUnknownRequestContentType bool `config:"reject_unknown_request_content_type"`

	Limits        Limits        `config:"limits"`
	Decompression Decompression `config:"decompression"`
	Rules         rules.Schema  `config:"rules"`
}

// Limits holds size and count ceilings. Zero selects the parser default and
// -1 disables the limit, except for NestingDepth where zero forbids nested
// multipart parts.
type Limits struct {
	RequestBody  ByteSize `config:"request_body"`
	PartBody     ByteSize `config:"part_body"`
	FieldValue   ByteSize `config:"field_value"`
	Decompressed ByteSize `config:"decompressed"`
	Headers      ByteSize `config:"headers"`
	Parts        int64    `config:"parts" validate:"gte=-1"`
	NestingDepth int      `config:"nesting_depth" validate:"gte=-1"`
}

// Decompression controls Content-Encoding handling of parts.
type Decompression struct {
	Enabled          bool     `config:"enabled"`
	AllowedEncodings []string `config:"allowed_encodings" validate:"dive,required"`
	RejectUnknown    bool     `config:"reject_unknown"`
}

// defaultValues mirrors the parser defaults in configuration form.
func defaultValues() map[string]any {
	return map[string]any{
		"upload_dir":                          "",
		"compute_hash":                        false,
		"hash_algorithm":                      string(upload.DefaultHashAlgorithm),
		"payload_mode":                        upload.ModeAuto.String(),
		"reject_unknown_request_content_type": true,
		"limits": map[string]any{
			"request_body":  int64(upload.DefaultMaxRequestBodyBytes),
			"part_body":     int64(upload.DefaultMaxPartBodyBytes),
			"field_value":   int64(upload.DefaultMaxFieldValueBytes),
			"decompressed":  int64(upload.DefaultMaxDecompressedBytes),
			"headers":       int64(upload.DefaultMaxHeaderBytes),
			"parts":         int64(upload.DefaultMaxParts),
			"nesting_depth": upload.DefaultMaxNestingDepth,
		},
		"decompression": map[string]any{
			"enabled":           false,
			"allowed_encodings": encodingValues(upload.DefaultAllowedEncodings),
			"reject_unknown":    false,
		},
	}
}

func encodingValues(encodings []string) []any {
	out := make([]any, len(encodings))
	for i, enc := range encodings {
		out[i] = enc
	}

	return out
}

// Default returns the configuration matching the parser defaults.
func Default() *Config {
	cfg, err := bind("defaults", defaultValues())
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load reads and merges configuration files in order. Later files override
// earlier ones key by key. The format of each file is detected from its
// extension.
//
// Errors:
//   - [*Error] wrapping [ErrUnknownFormat], a read or decode failure, or a
//     validation failure
func Load(paths ...string) (*Config, error) {
	values := defaultValues()
	for _, path := range paths {
		format, err := FormatOf(path)
		if err != nil {
			return nil, newError(path, "load", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, newError(path, "load", err)
		}
		if err = mergeSource(values, path, data, format); err != nil {
			return nil, err
		}
	}

	cfg, err := bind(strings.Join(paths, ","), values)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes configuration data in the given format ("yaml", "json" or
// "toml") over the defaults.
//
// Example:
//
//	cfg, err := config.Parse([]byte("limits:\n  part_body: 5MB\n"), "yaml")
func Parse(data []byte, format string) (*Config, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, newError(format, "load", err)
	}
	values := defaultValues()
	if err = mergeSource(values, string(f), data, f); err != nil {
		return nil, err
	}

	return bind(string(f), values)
}

func mergeSource(dst map[string]any, source string, data []byte, f Format) error {
	src, err := decodeMap(data, f)
	if err != nil {
		return newError(source, "decode", err)
	}
	if err = mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return newError(source, "merge", err)
	}

	return nil
}

// bind validates merged values, decodes them into a Config and validates the
// result.
func bind(source string, values map[string]any) (*Config, error) {
	if err := validateDocument(source, values); err != nil {
		return nil, err
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(decoderConfig(cfg))
	if err != nil {
		return nil, newError(source, "decode", err)
	}
	if err = decoder.Decode(values); err != nil {
		return nil, newError(source, "decode", err)
	}
	if err = cfg.validate(source); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decoderConfig(target any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		TagName:          tagName,
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			byteSizeHook(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
}

// Validate checks that every value can be turned into parser options.
func (c *Config) Validate() error {
	return c.validate("config")
}

func (c *Config) validate(source string) error {
	if err := c.validateStruct(source); err != nil {
		return err
	}
	if _, err := sink.NewHash(c.hashAlgorithm()); err != nil {
		return newFieldError(source, "hash_algorithm", "validate", err)
	}
	if _, err := upload.ParsePayloadMode(c.PayloadMode); err != nil {
		return newFieldError(source, "payload_mode", "validate", err)
	}
	for _, enc := range c.Decompression.AllowedEncodings {
		if !decode.Supported(enc) {
			return newFieldError(source, "decompression.allowed_encodings", "validate",
				fmt.Errorf("%w: %q", decode.ErrUnsupportedEncoding, enc))
		}
	}
	if _, err := c.Rules.Build(); err != nil {
		return newFieldError(source, "rules", "validate", err)
	}

	return nil
}

func (l Limits) nestingDepth() int {
	if l.NestingDepth == 0 {
		return upload.NoNesting
	}

	return l.NestingDepth
}

func (c *Config) hashAlgorithm() sink.HashAlgorithm {
	alg := strings.ToLower(strings.TrimSpace(c.HashAlgorithm))
	if alg == "" {
		return upload.DefaultHashAlgorithm
	}

	return sink.HashAlgorithm(alg)
}

// Options converts the configuration into parser options.
func (c *Config) Options() ([]upload.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	mode, _ := upload.ParsePayloadMode(c.PayloadMode)

	encodings := make([]string, 0, len(c.Decompression.AllowedEncodings))
	for _, enc := range c.Decompression.AllowedEncodings {
		encodings = append(encodings, decode.Normalize(enc))
	}

	opts := []upload.Option{
		upload.WithUploadDir(c.UploadDir),
		upload.WithComputeHash(c.ComputeHash),
		upload.WithPayloadMode(mode),
		upload.WithRejectUnknownRequestContentType(c.RejectUnknownRequestContentType),
		upload.WithDecompression(c.Decompression.Enabled),
		upload.WithAllowedEncodings(encodings...),
		upload.WithRejectUnknownEncoding(c.Decompression.RejectUnknown),
		upload.WithMaxRequestBodyBytes(c.Limits.RequestBody.Int64()),
		upload.WithMaxPartBodyBytes(c.Limits.PartBody.Int64()),
		upload.WithMaxFieldValueBytes(c.Limits.FieldValue.Int64()),
		upload.WithMaxDecompressedBytes(c.Limits.Decompressed.Int64()),
		upload.WithMaxHeaderBytes(c.Limits.Headers.Int64()),
		upload.WithMaxParts(c.Limits.Parts),
		upload.WithMaxNestingDepth(c.Limits.nestingDepth()),
	}
	if c.ComputeHash {
		opts = append(opts, upload.WithHashAlgorithm(c.hashAlgorithm()))
	}
	if !c.Rules.Empty() {
		set, err := c.Rules.Build()
		if err != nil {
			return nil, newFieldError("config", "rules", "validate", err)
		}
		opts = append(opts, upload.WithRules(set))
	}

	return opts, nil
}

// NewParser builds a parser from the configuration. Extra options are
// applied after the configured ones.
func (c *Config) NewParser(extra ...upload.Option) (*upload.Parser, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}

	return upload.New(append(opts, extra...)...)
}
