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

// protodump walks a protobuf wire stream tag-by-tag and prints its raw
// structure without needing the schema. Length-delimited payloads that parse
// cleanly as messages are descended into; everything else is shown as a
// string preview or hex.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/protorec/protorec"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config file")
	verbose := flag.Bool("v", false, "debug logging")
	flat := flag.Bool("flat", false, "do not descend into length-delimited payloads")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	cfg := defaultDumpConfig()
	if *configPath != "" {
		loaded, err := loadDumpConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("bad config")
		}
		cfg = loaded
		log.Debug().Str("path", *configPath).Msg("config loaded")
	}
	if *flat {
		cfg.DecodeNested = false
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: protodump [-config file.toml] [-flat] [-v] file...")
		os.Exit(2)
	}

	exit := 0
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("read failed")
			exit = 1
			continue
		}
		log.Debug().Str("file", path).Int("bytes", len(data)).Msg("dumping")
		if flag.NArg() > 1 {
			fmt.Printf("== %s\n", path)
		}
		if err := dump(os.Stdout, data, 0, cfg); err != nil {
			log.Error().Err(err).Str("file", path).Msg("malformed stream")
			exit = 1
		}
	}
	os.Exit(exit)
}

// dump walks one message payload. depth counts nested descents.
func dump(w io.Writer, data []byte, depth int, cfg dumpConfig) error {
	buf := protorec.NewByteBuffer(data)
	indent := strings.Repeat("  ", depth)
	for buf.Remaining() > 0 {
		offset := buf.ReaderIndex()
		raw, err := protorec.ReadRawField(buf)
		if err != nil {
			return err
		}
		prefix := indent
		if cfg.ShowOffsets {
			prefix = fmt.Sprintf("%s%04x: ", indent, offset)
		}
		switch raw.Type {
		case protorec.WireVarint:
			zig := int64(raw.Value>>1) ^ -int64(raw.Value&1)
			fmt.Fprintf(w, "%s%d: varint %d (zigzag %d)\n", prefix, raw.Number, raw.Value, zig)
		case protorec.WireFixed32:
			fmt.Fprintf(w, "%s%d: fixed32 %d (float %g)\n", prefix, raw.Number,
				uint32(raw.Value), math.Float32frombits(uint32(raw.Value)))
		case protorec.WireFixed64:
			fmt.Fprintf(w, "%s%d: fixed64 %d (double %g)\n", prefix, raw.Number,
				raw.Value, math.Float64frombits(raw.Value))
		case protorec.WireBytes:
			if cfg.DecodeNested && depth < cfg.MaxDepth && looksLikeMessage(raw.Payload) {
				fmt.Fprintf(w, "%s%d: message (%d bytes) {\n", prefix, raw.Number, len(raw.Payload))
				if err := dump(w, raw.Payload, depth+1, cfg); err != nil {
					return err
				}
				fmt.Fprintf(w, "%s}\n", indent)
			} else {
				fmt.Fprintf(w, "%s%d: bytes (%d) %s\n", prefix, raw.Number,
					len(raw.Payload), preview(raw.Payload, cfg.StringPreview))
			}
		}
	}
	return nil
}

// looksLikeMessage reports whether the payload walks cleanly as a tag
// stream. It is a heuristic: short valid UTF-8 strings can false-positive,
// which is why the string preview is printed for leaves.
func looksLikeMessage(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	buf := protorec.NewByteBuffer(p)
	for buf.Remaining() > 0 {
		if _, err := protorec.ReadRawField(buf); err != nil {
			return false
		}
	}
	return true
}

func preview(p []byte, limit int) string {
	if utf8.Valid(p) {
		s := string(p)
		if len(s) > limit {
			s = s[:limit] + "..."
		}
		return fmt.Sprintf("%q", s)
	}
	if len(p) > limit/2 {
		return fmt.Sprintf("%x...", p[:limit/2])
	}
	return fmt.Sprintf("%x", p)
}
