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

// Package config loads upload parser settings from YAML, JSON or TOML files.
//
// Sizes accept plain integers or human-readable strings such as "10MB" or
// "512KiB"; "unlimited" and -1 disable a limit. Several sources can be loaded
// at once: later sources override earlier ones key by key, on top of the
// package defaults.
//
// Example configuration (YAML):
//
//	upload_dir: /var/lib/app/uploads
//	compute_hash: true
//	hash_algorithm: sha256
//	limits:
//	  request_body: 50MB
//	  part_body: 20MB
//	  field_value: 64KiB
//	  parts: 200
//	decompression:
//	  enabled: true
//	  allowed_encodings: [gzip, br]
//	rules:
//	  unknown: reject
//	  fields:
//	    - name: note
//	      required: true
//	    - name: files
//	      multiple: true
//	      contentTypes: ["image/*"]
//
// Typical use:
//
//	cfg, err := config.Load("upload.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	parser, err := cfg.NewParser(upload.WithLogger(logger))
package config
