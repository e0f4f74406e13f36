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

import "testing"

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		tags Tag
		want Category
	}{
		{"range parameter", RangeParameter | Parameter, CategoryFloat},
		{"state", RangeState | State, CategoryFloat},
		{"plain assigned", Assigned, CategoryFloat},
		{"global parameter", Global | Parameter, CategoryGlobal},
		{"constant", Constant, CategoryGlobal},
		{"local shadows range", Local | RangeParameter, CategoryNone},
		{"argument", Argument, CategoryNone},
		{"function", Function, CategoryNone},
		{"ion index", IonIndex, CategoryIndex},
		{"pointer", Pointer, CategoryIndex},
		{"section diam", Section | Diam, CategoryIndex},
		{"shadow beats index", Shadow | IonIndex, CategoryShadow},
		{"index beats float", Pointer | Assigned, CategoryIndex},
		{"float beats global", RangeParameter | Global, CategoryFloat},
		{"external", External, CategoryNone},
		{"none", 0, CategoryNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.tags); got != tt.want {
				t.Errorf("CategoryOf(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestIndexKindOf(t *testing.T) {
	tests := []struct {
		tags       Tag
		artificial bool
		want       IndexKind
	}{
		{IonStyle, false, IndexPlain},
		{WatchSlot, true, IndexInteger},
		{PointProcessRef, false, IndexInteger},
		{PointProcessRef, true, IndexPointer},
		{TQItem, false, IndexInteger},
		{IonIndex, false, IndexPointer},
		{BbcorePointer, false, IndexPointer},
	}
	for _, tt := range tests {
		if got := IndexKindOf(tt.tags, tt.artificial); got != tt.want {
			t.Errorf("IndexKindOf(%v, %v) = %v, want %v", tt.tags, tt.artificial, got, tt.want)
		}
	}
}

func TestTagStringRoundTrip(t *testing.T) {
	tags := RangeState | IonRead | TableStorage
	if got, want := tags.String(), "range-state|ion-read|table-storage"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	for _, name := range []string{"range-state", "ion-read", "table-storage"} {
		tag, err := ParseTag(name)
		if err != nil {
			t.Fatalf("ParseTag(%q): %v", name, err)
		}
		if !tags.Has(tag) {
			t.Errorf("ParseTag(%q) = %v, not in %v", name, tag, tags)
		}
	}
	if _, err := ParseTag("rangey"); err == nil {
		t.Error("ParseTag(rangey) succeeded, want error")
	}
	if Tag(0).String() != "none" {
		t.Errorf("Tag(0).String() = %q", Tag(0).String())
	}
}

func TestScopeShadowing(t *testing.T) {
	tab := NewTable()
	g := tab.Global()
	x := g.MustDefine(Symbol{Name: "x", Tags: RangeParameter})
	inner := g.NewChild()
	if got := inner.Lookup("x"); got != x {
		t.Fatalf("inner.Lookup(x) = %v, want model-level symbol", got)
	}
	if inner.LookupLocal("x") != nil {
		t.Error("LookupLocal found an outer symbol")
	}
	lx, err := inner.Define(Symbol{Name: "x", Tags: Local})
	if err != nil {
		t.Fatalf("Define shadowing local: %v", err)
	}
	if got := inner.Lookup("x"); got != lx || !got.IsLocal() {
		t.Errorf("inner.Lookup(x) = %v, want the local", got)
	}
	if got := tab.Lookup("x"); got != x {
		t.Errorf("tab.Lookup(x) = %v, want model-level symbol", got)
	}
	if _, err := inner.Define(Symbol{Name: "x"}); err == nil {
		t.Error("duplicate Define in same scope succeeded")
	}
	if tab.Len() != 2 || tab.Get(lx.ID) != lx {
		t.Errorf("arena holds %d symbols", tab.Len())
	}
}

func TestWithTagsOrdering(t *testing.T) {
	tab := NewTable()
	g := tab.Global()
	g.MustDefine(Symbol{Name: "b", Tags: Assigned, Order: 5})
	g.MustDefine(Symbol{Name: "a", Tags: Assigned | IonRead, Order: 1})
	g.MustDefine(Symbol{Name: "c", Tags: Assigned, Order: 2})
	g.MustDefine(Symbol{Name: "p", Tags: Parameter, Order: 3})

	got := tab.WithTags(Assigned, IonRead)
	var names []string
	for _, s := range got {
		names = append(names, s.Name)
	}
	if len(names) != 2 || names[0] != "c" || names[1] != "b" {
		t.Errorf("WithTags(Assigned, IonRead) = %v, want [c b]", names)
	}
}
