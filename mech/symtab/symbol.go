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

// Package symtab holds the per-model symbol arena.
//
// Symbols live in one Table and are referenced everywhere else by their ID.
// The storage category of a symbol is never stored: it is recomputed from the
// tag set by CategoryOf, so a symbol can only ever be in one category.
package symtab

import (
	"fmt"
	"math/bits"
	"strings"
)

// ID is the stable index of a symbol in its Table.
type ID int

// NoID is returned by lookups that find nothing.
const NoID ID = -1

// Tag is a bit set of semantic properties attached to a symbol.
type Tag uint64

const (
	// RangeParameter is a PARAMETER declared RANGE: one value per instance.
	RangeParameter Tag = 1 << iota
	// RangeAssigned is an ASSIGNED variable declared RANGE.
	RangeAssigned
	// RangeState is a STATE variable (always per instance).
	RangeState
	// Global is a per-model value shared by all instances.
	Global
	// Assigned is a non-RANGE ASSIGNED variable; still stored per instance.
	Assigned
	// State marks any STATE variable.
	State
	// Parameter marks any PARAMETER.
	Parameter
	// Constant is a CONSTANT block entry.
	Constant
	// Local is a LOCAL declared in a block or at top level.
	Local
	// Argument is a function, procedure or NET_RECEIVE argument.
	Argument
	// Pointer is a POINTER variable.
	Pointer
	// BbcorePointer is a BBCOREPOINTER variable.
	BbcorePointer
	// IonRead is read from an ion (USEION ... READ).
	IonRead
	// IonWrite is written to an ion (USEION ... WRITE).
	IonWrite
	// External is provided by the simulator (EXTERNAL, celsius, ...).
	External
	// ToBeSolved marks states targeted by a SOLVE statement.
	ToBeSolved
	// TableDependent is listed in a DEPEND clause of a TABLE statement.
	TableDependent
	// TableVar is listed as a tabulated variable of a TABLE statement.
	TableVar
	// Prime is a derivative name (x').
	Prime
	// NonspecificCurrent is a NONSPECIFIC_CURRENT.
	NonspecificCurrent
	// ElectrodeCurrent is an ELECTRODE_CURRENT.
	ElectrodeCurrent
	// Section is a section-level quantity such as diam or area.
	Section
	// Function is a FUNCTION name.
	Function
	// Procedure is a PROCEDURE name.
	Procedure

	// Dstate is the synthesized derivative slot D<state>.
	Dstate
	// Bookkeeping is a synthesized per-instance float slot (v_unused, g_unused, tsave).
	Bookkeeping
	// IonIndex is a synthesized ion_<var> handle into ion storage.
	IonIndex
	// IonStyle is the synthesized style_<ion> integer.
	IonStyle
	// NodeArea is the synthesized node_area handle.
	NodeArea
	// PointProcessRef is the synthesized point_process handle.
	PointProcessRef
	// TQItem is the synthesized event queue item handle.
	TQItem
	// WatchSlot is a synthesized watch<i> state slot.
	WatchSlot
	// Diam is the synthesized diam handle.
	Diam
	// Area is the synthesized area handle.
	Area
	// Shadow is a synthesized per-instance scratch slot staged before reduction.
	Shadow
	// GlobalBookkeeping is a synthesized global slot (mech_type, ion types, reset).
	GlobalBookkeeping
	// TableStorage is synthesized table storage (usetable, tmin_, mfac_, t_).
	TableStorage
	// ForNetConData is the synthesized FOR_NETCONS permutation handle.
	ForNetConData
)

var tagNames = [...]string{
	"range-parameter", "range-assigned", "range-state", "global", "assigned",
	"state", "parameter", "constant", "local", "argument", "pointer",
	"bbcore-pointer", "ion-read", "ion-write", "external", "to-be-solved",
	"table-dependent", "table-var", "prime", "nonspecific-current",
	"electrode-current", "section", "function", "procedure",
	"dstate", "bookkeeping", "ion-index", "ion-style", "node-area",
	"point-process", "tqitem", "watch", "diam", "area", "shadow",
	"global-bookkeeping", "table-storage", "fornetcon",
}

// Has reports whether every bit of o is set in t.
func (t Tag) Has(o Tag) bool { return t&o == o }

// Any reports whether at least one bit of o is set in t.
func (t Tag) Any(o Tag) bool { return t&o != 0 }

// String renders the tag set as a '|' separated list.
func (t Tag) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for t != 0 {
		i := bits.TrailingZeros64(uint64(t))
		if i < len(tagNames) {
			parts = append(parts, tagNames[i])
		} else {
			parts = append(parts, fmt.Sprintf("bit%d", i))
		}
		t &^= 1 << i
	}
	return strings.Join(parts, "|")
}

// ParseTag converts a tag name as printed by String back into a Tag.
func ParseTag(name string) (Tag, error) {
	for i, n := range tagNames {
		if n == name {
			return 1 << i, nil
		}
	}
	return 0, fmt.Errorf("unknown symbol tag %q", name)
}

// Symbol is one named model quantity.
type Symbol struct {
	// ID is the index of this symbol in its Table.
	ID ID

	// Name is the model-level name. Unique per scope.
	Name string

	// Length is the array length; 1 means scalar.
	Length int

	// Order is the definition order used to sort per-instance storage.
	Order int

	// Tags is the set of semantic properties.
	Tags Tag

	// Default is the declared default value, if any.
	Default *float64

	// Localized is set by the localization pass on the original symbol when
	// it was demoted to a local in at least one block.
	Localized bool

	// WriteCount is the number of assignments seen by the front end.
	WriteCount int

	// NumValues is the number of table entries for TableVar symbols.
	NumValues int
}

// IsArray reports whether the symbol is an array.
func (s *Symbol) IsArray() bool { return s.Length > 1 }

// IsLocal reports whether references to the symbol are per-call locals.
func (s *Symbol) IsLocal() bool { return s.Tags.Any(Local | Argument) }

func (s *Symbol) String() string {
	if s.IsArray() {
		return fmt.Sprintf("%s[%d] (%v)", s.Name, s.Length, s.Tags)
	}
	return fmt.Sprintf("%s (%v)", s.Name, s.Tags)
}
