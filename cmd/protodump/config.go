// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// protodump config.toml key mapping to dump settings.
type fileConfig struct {
	MaxDepth      int  `toml:"max_depth"`
	StringPreview int  `toml:"string_preview"`
	DecodeNested  bool `toml:"decode_nested"`
	ShowOffsets   bool `toml:"show_offsets"`
}

type dumpConfig struct {
	MaxDepth      int
	StringPreview int
	DecodeNested  bool
	ShowOffsets   bool
}

func defaultDumpConfig() dumpConfig {
	return dumpConfig{
		MaxDepth:      8,
		StringPreview: 40,
		DecodeNested:  true,
	}
}

// protodump loader for TOML config with default overlay.
func loadDumpConfig(path string) (dumpConfig, error) {
	cfg := defaultDumpConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return dumpConfig{}, fmt.Errorf("load protodump config: %w", err)
	}
	if meta.IsDefined("max_depth") {
		cfg.MaxDepth = raw.MaxDepth
	}
	if meta.IsDefined("string_preview") {
		cfg.StringPreview = raw.StringPreview
	}
	if meta.IsDefined("decode_nested") {
		cfg.DecodeNested = raw.DecodeNested
	}
	if meta.IsDefined("show_offsets") {
		cfg.ShowOffsets = raw.ShowOffsets
	}
	if cfg.MaxDepth < 1 {
		return dumpConfig{}, fmt.Errorf("load protodump config: max_depth must be positive")
	}
	return cfg, nil
}
