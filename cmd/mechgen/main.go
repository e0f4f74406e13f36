// Copyright 2025 mechgen Authors
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

// Command mechgen compiles NMODL mechanism models into CoreNEURON C++
// modules.
//
// Usage:
//
//	mechgen generate -o out hh.json expsyn.json    # one <file>.cpp per model
//	mechgen generate --localize -j 8 models/*.json
//	mechgen analyze hh.json                        # localization report
//	mechgen analyze --var m hh.json                # def-use chains of m
//
// Models are the JSON documents read by package modelio. Flag defaults can
// be overridden from the environment: MECHGEN_OUTPUT, MECHGEN_JOBS,
// MECHGEN_VERBOSE and MECHGEN_FLOAT_TYPE.
package main

import (
	"os"
)

// version is set at link time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
