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

package codegen

import "fmt"

// Options configures one Generate call.
type Options struct {
	// FloatType is the C type of per-instance floating point storage that
	// is not shared with the simulator. Defaults to "double".
	FloatType string

	// Backend selects target specific annotations. Defaults to CPU.
	Backend Backend

	// OptimizeIonVarCopies routes ion writes through a per-instance
	// IonCurVar struct instead of direct ion storage updates.
	OptimizeIonVarCopies bool

	// Timestamp is written into the header when non-empty.
	Timestamp string

	// Version is the generator version written into the header.
	Version string
}

func (o Options) withDefaults() Options {
	if o.FloatType == "" {
		o.FloatType = "double"
	}
	if o.Backend == nil {
		o.Backend = CPU{}
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	return o
}

// Validate reports unsupported option values.
func (o Options) Validate() error {
	switch o.FloatType {
	case "", "double", "float":
	default:
		return fmt.Errorf("unsupported float type %q", o.FloatType)
	}
	return nil
}

// Backend supplies the target specific parts of the generated module. Only
// the CPU backend is implemented; accelerator backends plug in here.
type Backend interface {
	// Name is written into the module header.
	Name() string

	// Includes returns extra include lines.
	Includes() []string

	// LoopHint returns the lines emitted before a per-instance kernel loop.
	LoopHint() []string

	// DirectUpdate returns the lines emitted before a direct (non
	// shadowed) accumulation into shared node storage.
	DirectUpdate() []string
}

// CPU is the C++ backend.
type CPU struct{}

func (CPU) Name() string { return "C++ (api-compatibility)" }

func (CPU) Includes() []string { return nil }

func (CPU) LoopHint() []string { return []string{"#pragma ivdep", "#pragma omp simd"} }

// DirectUpdate is empty on CPU: a density mechanism owns one instance per
// node, so direct updates never race.
func (CPU) DirectUpdate() []string { return nil }

// BackendByName returns the backend registered under name.
func BackendByName(name string) (Backend, error) {
	switch name {
	case "", "cpu", "c++":
		return CPU{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (only \"cpu\" is available)", name)
	}
}
