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

package ast

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ajroetker/mechgen/mech/symtab"
)

// BlockKind identifies a top-level block.
type BlockKind int

const (
	KindInitial BlockKind = iota
	KindBreakpoint
	KindConstructor
	KindDestructor
	KindDerivative
	KindLinear
	KindNonLinear
	KindDiscrete
	KindPartial
	KindNetReceive
	KindTerminal
	KindBefore
	KindAfter
	KindFunction
	KindProcedure
)

var blockKindNames = [...]string{
	"INITIAL", "BREAKPOINT", "CONSTRUCTOR", "DESTRUCTOR", "DERIVATIVE",
	"LINEAR", "NONLINEAR", "DISCRETE", "PARTIAL", "NET_RECEIVE", "TERMINAL",
	"BEFORE", "AFTER", "FUNCTION", "PROCEDURE",
}

// String returns the NMODL keyword of the block kind.
func (k BlockKind) String() string {
	if int(k) < len(blockKindNames) {
		return blockKindNames[k]
	}
	return fmt.Sprintf("BlockKind(%d)", int(k))
}

// ParseBlockKind maps an NMODL keyword (case-insensitive) to a BlockKind.
func ParseBlockKind(s string) (BlockKind, error) {
	for i, n := range blockKindNames {
		if strings.EqualFold(n, s) {
			return BlockKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown block kind %q", s)
}

// Param is a formal argument of a function, procedure or NET_RECEIVE.
type Param struct {
	Name string
	Unit string
}

// TopBlock is a top-level model block, including FUNCTION and PROCEDURE
// definitions.
type TopBlock struct {
	Kind   BlockKind
	Name   string
	Params []Param
	Body   *Block

	// Event is the BEFORE/AFTER event type (BREAKPOINT, SOLVE, INITIAL, STEP).
	Event string

	// Initial is the INITIAL sub-block of a NET_RECEIVE.
	Initial *Block
}

// Ion is one USEION statement.
type Ion struct {
	Name    string
	Reads   []string
	Writes  []string
	Valence *float64
}

// IsIonicCurrent reports whether v is this ion's current (i<ion>).
func (ion Ion) IsIonicCurrent(v string) bool { return v == "i"+ion.Name }

// IsIntraConc reports whether v is the intracellular concentration (<ion>i).
func (ion Ion) IsIntraConc(v string) bool { return v == ion.Name+"i" }

// IsExtraConc reports whether v is the extracellular concentration (<ion>o).
func (ion Ion) IsExtraConc(v string) bool { return v == ion.Name+"o" }

// IsRevPotential reports whether v is the reversal potential (e<ion>).
func (ion Ion) IsRevPotential(v string) bool { return v == "e"+ion.Name }

// IsConc reports whether v is either concentration.
func (ion Ion) IsConc(v string) bool { return ion.IsIntraConc(v) || ion.IsExtraConc(v) }

// ReadsVar reports whether the ion reads v.
func (ion Ion) ReadsVar(v string) bool { return slices.Contains(ion.Reads, v) }

// WritesVar reports whether the ion writes v.
func (ion Ion) WritesVar(v string) bool { return slices.Contains(ion.Writes, v) }

// WritesConc reports whether the ion writes a concentration.
func (ion Ion) WritesConc() bool {
	return slices.ContainsFunc(ion.Writes, ion.IsConc)
}

// WritesCurrent reports whether the ion writes its ionic current.
func (ion Ion) WritesCurrent() bool {
	return slices.ContainsFunc(ion.Writes, ion.IsIonicCurrent)
}

// Conductance is a CONDUCTANCE hint: variable is the conductance of the
// current of ion (empty for nonspecific currents).
type Conductance struct {
	Variable string
	Ion      string
}

// Factor is a unit factor definition.
type Factor struct {
	Name  string
	Value string
}

// Model is one compiled mechanism: the symbol table, top-level blocks and
// the metadata the front end collected.
type Model struct {
	// File is the model file base name without extension; it names the
	// registration function.
	File string

	// Suffix is the mechanism name (SUFFIX or POINT_PROCESS name).
	Suffix string

	PointProcess   bool
	ArtificialCell bool
	Vectorize      bool
	ThreadSafe     bool

	Symbols *symtab.Table
	Blocks  []*TopBlock

	Ions         []Ion
	Currents     []string
	Conductances []Conductance
	Factors      []Factor

	// TopVerbatim holds top-level VERBATIM blocks in source order.
	TopVerbatim []string

	// StateUpdate is the already-lowered body of nrn_state: the solution of
	// every SOLVE statement in BREAKPOINT.
	StateUpdate *Block

	// ChangedDt, when set, is the variable tracking dt changes for nrn_init.
	ChangedDt string
}

// Block returns the first top-level block of the given kind.
func (m *Model) Block(kind BlockKind) *TopBlock {
	for _, b := range m.Blocks {
		if b.Kind == kind {
			return b
		}
	}
	return nil
}

// BlocksOf returns every top-level block of the given kind in source order.
func (m *Model) BlocksOf(kind BlockKind) []*TopBlock {
	var out []*TopBlock
	for _, b := range m.Blocks {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// Callable returns the FUNCTION or PROCEDURE with the given name.
func (m *Model) Callable(name string) *TopBlock {
	for _, b := range m.Blocks {
		if (b.Kind == KindFunction || b.Kind == KindProcedure) && b.Name == name {
			return b
		}
	}
	return nil
}

// NamedBlock returns the non-callable block with the given name, used to
// resolve SOLVE targets.
func (m *Model) NamedBlock(name string) *TopBlock {
	for _, b := range m.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Ion returns the ion with the given name.
func (m *Model) Ion(name string) (Ion, bool) {
	for _, ion := range m.Ions {
		if ion.Name == name {
			return ion, true
		}
	}
	return Ion{}, false
}

// Scope returns the model-level scope.
func (m *Model) Scope() *symtab.Scope {
	return m.Symbols.Global()
}

// ConductanceFor returns the conductance variable declared for an ion (or
// for the nonspecific current when ion is empty).
func (m *Model) ConductanceFor(ion string) (string, bool) {
	for _, c := range m.Conductances {
		if c.Ion == ion {
			return c.Variable, true
		}
	}
	return "", false
}

// NetReceiveArgs returns the number of NET_RECEIVE arguments, 0 without one.
func (m *Model) NetReceiveArgs() int {
	if b := m.Block(KindNetReceive); b != nil {
		return len(b.Params)
	}
	return 0
}
