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
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidValue is wrapped by struct validation failures.
var ErrInvalidValue = errors.New("invalid configuration value")

// schemaJSON describes the configuration document after key normalization,
// which is why rule keys appear in lower case.
//
//go:embed schema.json
var schemaJSON []byte

const schemaName = "upload-config.json"

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err = compiler.AddResource(schemaName, doc); err != nil {
		return nil, err
	}

	return compiler.Compile(schemaName)
})

// validateDocument checks merged values against the document schema.
func validateDocument(source string, values map[string]any) error {
	schema, err := documentSchema()
	if err != nil {
		return newError(schemaName, "load", err)
	}
	if err = schema.Validate(values); err != nil {
		return newError(source, "validate", err)
	}

	return nil
}

var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their configuration keys.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get(tagName)
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}

		return name
	})

	return v
})

// validateStruct applies the `validate` tags of [Config].
func (c *Config) validateStruct(source string) error {
	err := structValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return newError(source, "validate", err)
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")

	return newFieldError(source, field, "validate",
		fmt.Errorf("%w: %v does not satisfy %q", ErrInvalidValue, fe.Value(), fe.Tag()))
}
