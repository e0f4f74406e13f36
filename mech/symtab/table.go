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

import (
	"fmt"
	"slices"
)

// Table is the symbol arena of one model.
//
// A Table is not safe for concurrent mutation; each model compilation owns
// its own Table.
type Table struct {
	symbols []*Symbol
	global  *Scope
}

// NewTable creates an empty table with its model-level scope.
func NewTable() *Table {
	t := &Table{}
	t.global = &Scope{table: t, names: make(map[string]ID)}
	return t
}

// Global returns the model-level scope.
func (t *Table) Global() *Scope { return t.global }

// Len returns the number of symbols in the arena.
func (t *Table) Len() int { return len(t.symbols) }

// Get returns the symbol with the given id. It panics on an invalid id,
// which can only come from a different table.
func (t *Table) Get(id ID) *Symbol {
	return t.symbols[id]
}

// All returns every symbol in arena order.
func (t *Table) All() []*Symbol {
	return slices.Clone(t.symbols)
}

// Lookup finds a model-level symbol by name.
func (t *Table) Lookup(name string) *Symbol {
	return t.global.Lookup(name)
}

// WithTags returns model-level symbols having any of the bits in with and none
// of the bits in without, ordered by definition order.
func (t *Table) WithTags(with, without Tag) []*Symbol {
	var out []*Symbol
	for _, id := range t.global.order {
		s := t.symbols[id]
		if s.Tags.Any(with) && !s.Tags.Any(without) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b *Symbol) int { return a.Order - b.Order })
	return out
}

func (t *Table) add(s Symbol) *Symbol {
	s.ID = ID(len(t.symbols))
	if s.Length < 1 {
		s.Length = 1
	}
	sym := &s
	t.symbols = append(t.symbols, sym)
	return sym
}

// Scope is one lexical level: the model level or a statement block.
type Scope struct {
	table  *Table
	parent *Scope
	names  map[string]ID
	order  []ID
}

// NewChild creates a nested scope, used for statement blocks.
func (s *Scope) NewChild() *Scope {
	return &Scope{table: s.table, parent: s, names: make(map[string]ID)}
}

// Parent returns the enclosing scope, or nil at model level.
func (s *Scope) Parent() *Scope { return s.parent }

// Table returns the arena owning this scope.
func (s *Scope) Table() *Table { return s.table }

// Define inserts a new symbol in this scope. Defining a name twice in the
// same scope is an error; shadowing an outer name is allowed.
func (s *Scope) Define(sym Symbol) (*Symbol, error) {
	if _, ok := s.names[sym.Name]; ok {
		return nil, fmt.Errorf("symbol %q already defined in scope", sym.Name)
	}
	if sym.Order == 0 {
		sym.Order = s.table.Len() + 1
	}
	out := s.table.add(sym)
	s.names[sym.Name] = out.ID
	s.order = append(s.order, out.ID)
	return out, nil
}

// MustDefine is Define for front-end construction code and tests.
func (s *Scope) MustDefine(sym Symbol) *Symbol {
	out, err := s.Define(sym)
	if err != nil {
		panic(err)
	}
	return out
}

// LookupLocal finds a name in this scope only.
func (s *Scope) LookupLocal(name string) *Symbol {
	if id, ok := s.names[name]; ok {
		return s.table.symbols[id]
	}
	return nil
}

// Lookup finds a name in this scope or any enclosing scope.
func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if id, ok := sc.names[name]; ok {
			return sc.table.symbols[id]
		}
	}
	return nil
}

// Symbols returns this scope's own symbols in definition order.
func (s *Scope) Symbols() []*Symbol {
	out := make([]*Symbol, len(s.order))
	for i, id := range s.order {
		out[i] = s.table.symbols[id]
	}
	return out
}
