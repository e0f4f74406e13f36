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

// Package modelio decodes the JSON hand-off format produced by a front end
// into an ast.Model.
//
// A model document carries the metadata flags, the symbol table, the ion
// and current declarations, the top-level blocks and the lowered state
// update:
//
//	{
//	  "file": "hh", "suffix": "hh", "vectorize": true,
//	  "symbols": [{"name": "gnabar", "tags": ["parameter", "range-parameter"], "default": 0.12}],
//	  "ions": [{"name": "na", "read": ["ena"], "write": ["ina"]}],
//	  "currents": ["ina"],
//	  "blocks": [{"kind": "BREAKPOINT", "body": [{"kind": "assign", "lhs": "ina", "rhs": ...}]}],
//	  "functions": [{"name": "rate", "params": [{"name": "v"}], "body": [...]}],
//	  "state_update": [...]
//	}
//
// Statements and expressions are objects tagged by "kind". As a shorthand
// an expression may also be a JSON string (a variable name), a number or a
// boolean. Unknown kinds and unknown fields are decode errors.
package modelio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

type modelJSON struct {
	File           string            `json:"file"`
	Suffix         string            `json:"suffix"`
	PointProcess   bool              `json:"point_process"`
	ArtificialCell bool              `json:"artificial_cell"`
	Vectorize      bool              `json:"vectorize"`
	ThreadSafe     bool              `json:"thread_safe"`
	Symbols        []symbolJSON      `json:"symbols"`
	Ions           []ionJSON         `json:"ions"`
	Currents       []string          `json:"currents"`
	Conductances   []conductanceJSON `json:"conductances"`
	Factors        []factorJSON      `json:"factors"`
	TopVerbatim    []string          `json:"top_verbatim"`
	ChangedDt      string            `json:"changed_dt"`
	Blocks         []blockJSON       `json:"blocks"`
	Functions      []blockJSON       `json:"functions"`
	Procedures     []blockJSON       `json:"procedures"`
	StateUpdate    []json.RawMessage `json:"state_update"`
}

type symbolJSON struct {
	Name       string   `json:"name"`
	Tags       []string `json:"tags"`
	Length     int      `json:"length"`
	Order      int      `json:"order"`
	Default    *float64 `json:"default"`
	WriteCount int      `json:"write_count"`
	NumValues  int      `json:"num_values"`
}

type ionJSON struct {
	Name    string   `json:"name"`
	Read    []string `json:"read"`
	Write   []string `json:"write"`
	Valence *float64 `json:"valence"`
}

type conductanceJSON struct {
	Variable string `json:"variable"`
	Ion      string `json:"ion"`
}

type factorJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type paramJSON struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type blockJSON struct {
	Kind    string            `json:"kind"`
	Name    string            `json:"name"`
	Params  []paramJSON       `json:"params"`
	Event   string            `json:"event"`
	Body    []json.RawMessage `json:"body"`
	Initial []json.RawMessage `json:"initial"`
}

// Load decodes the model file at path. A model without a "file" field is
// named after the file.
func Load(path string) (*ast.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m.File == "" {
		m.File = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// Decode reads one model document from r.
func Decode(r io.Reader) (*ast.Model, error) {
	var doc modelJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc.Suffix == "" {
		return nil, fmt.Errorf("model has no suffix")
	}
	d := &decoder{}
	return d.model(&doc)
}

// decoder tracks the scope new LOCAL declarations are defined in.
type decoder struct {
	scope *symtab.Scope
}

func (d *decoder) model(doc *modelJSON) (*ast.Model, error) {
	m := &ast.Model{
		File:           doc.File,
		Suffix:         doc.Suffix,
		PointProcess:   doc.PointProcess,
		ArtificialCell: doc.ArtificialCell,
		Vectorize:      doc.Vectorize,
		ThreadSafe:     doc.ThreadSafe,
		Symbols:        symtab.NewTable(),
		Currents:       doc.Currents,
		TopVerbatim:    doc.TopVerbatim,
		ChangedDt:      doc.ChangedDt,
	}
	for _, s := range doc.Symbols {
		var tags symtab.Tag
		for _, name := range s.Tags {
			t, err := symtab.ParseTag(name)
			if err != nil {
				return nil, fmt.Errorf("symbol %s: %w", s.Name, err)
			}
			tags |= t
		}
		_, err := m.Scope().Define(symtab.Symbol{
			Name: s.Name, Length: s.Length, Order: s.Order, Tags: tags,
			Default: s.Default, WriteCount: s.WriteCount, NumValues: s.NumValues,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, ion := range doc.Ions {
		m.Ions = append(m.Ions, ast.Ion{Name: ion.Name, Reads: ion.Read, Writes: ion.Write, Valence: ion.Valence})
	}
	for _, c := range doc.Conductances {
		m.Conductances = append(m.Conductances, ast.Conductance{Variable: c.Variable, Ion: c.Ion})
	}
	for _, f := range doc.Factors {
		m.Factors = append(m.Factors, ast.Factor{Name: f.Name, Value: f.Value})
	}

	// Callables are visible to every block; define the ones the symbol list
	// left out.
	for _, group := range []struct {
		blocks []blockJSON
		tag    symtab.Tag
	}{{doc.Functions, symtab.Function}, {doc.Procedures, symtab.Procedure}} {
		for _, b := range group.blocks {
			if m.Scope().LookupLocal(b.Name) == nil {
				m.Scope().MustDefine(symtab.Symbol{Name: b.Name, Tags: group.tag})
			}
		}
	}

	for _, b := range doc.Blocks {
		kind, err := ast.ParseBlockKind(b.Kind)
		if err != nil {
			return nil, err
		}
		tb, err := d.topBlock(m, kind, b)
		if err != nil {
			return nil, err
		}
		m.Blocks = append(m.Blocks, tb)
	}
	for _, b := range doc.Functions {
		tb, err := d.topBlock(m, ast.KindFunction, b)
		if err != nil {
			return nil, err
		}
		m.Blocks = append(m.Blocks, tb)
	}
	for _, b := range doc.Procedures {
		tb, err := d.topBlock(m, ast.KindProcedure, b)
		if err != nil {
			return nil, err
		}
		m.Blocks = append(m.Blocks, tb)
	}
	if doc.StateUpdate != nil {
		d.scope = m.Scope()
		su, err := d.block(doc.StateUpdate)
		if err != nil {
			return nil, fmt.Errorf("state_update: %w", err)
		}
		m.StateUpdate = su
	}
	return m, nil
}

func (d *decoder) topBlock(m *ast.Model, kind ast.BlockKind, b blockJSON) (*ast.TopBlock, error) {
	tb := &ast.TopBlock{Kind: kind, Name: b.Name, Event: b.Event}
	label := kind.String()
	if b.Name != "" {
		label += " " + b.Name
	}
	bodyScope := m.Scope().NewChild()
	for _, p := range b.Params {
		tb.Params = append(tb.Params, ast.Param{Name: p.Name, Unit: p.Unit})
		if _, err := bodyScope.Define(symtab.Symbol{Name: p.Name, Tags: symtab.Argument}); err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
	}

	d.scope = bodyScope
	body, err := d.stmts(b.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	tb.Body = &ast.Block{Stmts: body, Scope: bodyScope}

	if b.Initial != nil {
		if kind != ast.KindNetReceive {
			return nil, fmt.Errorf("%s: only NET_RECEIVE has an INITIAL block", label)
		}
		d.scope = bodyScope
		tb.Initial, err = d.block(b.Initial)
		if err != nil {
			return nil, fmt.Errorf("%s INITIAL: %w", label, err)
		}
	}
	return tb, nil
}

// block decodes a nested statement block with a scope of its own.
func (d *decoder) block(raw []json.RawMessage) (*ast.Block, error) {
	if raw == nil {
		return nil, nil
	}
	outer := d.scope
	b := ast.NewBlock(outer)
	d.scope = b.Scope
	defer func() { d.scope = outer }()
	stmts, err := d.stmts(raw)
	if err != nil {
		return nil, err
	}
	b.Stmts = stmts
	return b, nil
}

func (d *decoder) stmts(raw []json.RawMessage) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, 0, len(raw))
	for i, r := range raw {
		s, err := d.stmt(r)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// strict unmarshals raw into v, rejecting unknown fields.
func strict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
