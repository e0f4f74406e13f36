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

package symtab

import "fmt"

// Category is the storage placement of a symbol in generated code.
type Category int

const (
	// CategoryNone is for locals, arguments, methods and unknown names.
	CategoryNone Category = iota

	// CategoryFloat is a packed per-instance floating point array
	// addressed as offset*stride + instance id.
	CategoryFloat

	// CategoryIndex is a parallel integer/pointer array.
	CategoryIndex

	// CategoryGlobal is one value per model in the shared global struct.
	CategoryGlobal

	// CategoryShadow is a per-instance scratch slot reduced after the kernel loop.
	CategoryShadow
)

// String returns a human-readable name for the Category.
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "None"
	case CategoryFloat:
		return "Float"
	case CategoryIndex:
		return "Index"
	case CategoryGlobal:
		return "Global"
	case CategoryShadow:
		return "Shadow"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// IndexKind refines CategoryIndex.
type IndexKind int

const (
	// IndexPointer dereferences the stored index into simulator storage.
	IndexPointer IndexKind = iota
	// IndexPlain is a per-model offset (style_<ion>).
	IndexPlain
	// IndexInteger is a raw per-instance integer.
	IndexInteger
)

// String returns a human-readable name for the IndexKind.
func (k IndexKind) String() string {
	switch k {
	case IndexPointer:
		return "Pointer"
	case IndexPlain:
		return "Plain"
	case IndexInteger:
		return "Integer"
	default:
		return fmt.Sprintf("IndexKind(%d)", k)
	}
}

const (
	floatTags = RangeParameter | RangeAssigned | RangeState | Assigned | State | Dstate | Bookkeeping
	indexTags = IonIndex | IonStyle | NodeArea | PointProcessRef | TQItem | WatchSlot |
		ForNetConData | Pointer | BbcorePointer | Diam | Area
	globalTags = Global | Parameter | Constant | GlobalBookkeeping | TableStorage
)

// CategoryOf computes the storage category from a tag set.
//
// Local and Argument always win: a local shadowing a range variable is a
// per-call value. After that Shadow, Index, Float and Global are tried in
// that order; synthesized tags are disjoint from user tags so at most one of
// the storage groups applies to a well-formed symbol.
func CategoryOf(t Tag) Category {
	switch {
	case t.Any(Local | Argument | Function | Procedure):
		return CategoryNone
	case t.Has(Shadow):
		return CategoryShadow
	case t.Any(indexTags):
		return CategoryIndex
	case t.Any(floatTags):
		return CategoryFloat
	case t.Any(globalTags):
		return CategoryGlobal
	default:
		return CategoryNone
	}
}

// IndexKindOf refines an index symbol; it is only meaningful when
// CategoryOf(t) == CategoryIndex.
func IndexKindOf(t Tag, artificialCell bool) IndexKind {
	switch {
	case t.Has(IonStyle):
		return IndexPlain
	case t.Has(WatchSlot), t.Has(ForNetConData):
		return IndexInteger
	case t.Has(PointProcessRef), t.Has(TQItem):
		if artificialCell {
			return IndexPointer
		}
		return IndexInteger
	default:
		return IndexPointer
	}
}
