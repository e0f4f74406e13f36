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

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// Var is one storage slot of the generated module: a float column, an
// index column or a member of the global struct.
type Var struct {
	Name string

	// Length is the array length of a per-instance slot, or the innermost
	// dimension of a global array.
	Length int

	// Rows is the outer dimension of two dimensional table storage.
	Rows int

	Tags symtab.Tag

	// Kind refines index slots.
	Kind symtab.IndexKind

	// VData marks handles into the simulator's void* table.
	VData bool

	// Constant qualifies the instance member as const.
	Constant bool

	// Semantic is the registration name of an index slot.
	Semantic string

	// Type and Init describe global struct members.
	Type string
	Init string

	// Array declares a global member as an array even at length 1.
	Array bool

	// Symbol is the user symbol backing the slot, nil when synthesized.
	Symbol *symtab.Symbol

	order int
}

// Category returns the storage category of the slot.
func (v *Var) Category() symtab.Category { return symtab.CategoryOf(v.Tags) }

// IsArray reports whether a per-instance slot holds more than one value.
func (v *Var) IsArray() bool { return v.Length > 1 }

// Semantic is one (index, semantic, width) registration triple.
type Semantic struct {
	Index int
	Name  string
	Size  int
}

// External is a simulator-owned variable referenced through the instance.
type External struct {
	Name string
	Type string
}

// TableFunc is a FUNCTION or PROCEDURE carrying a TABLE statement.
type TableFunc struct {
	Block *ast.TopBlock
	Table *ast.Table
}

// Catalog is the storage layout of one model. It is derived once per
// Generate call and never written back into the symbol table.
type Catalog struct {
	Model *ast.Model

	Floats  []*Var
	Ints    []*Var
	Globals []*Var
	Shadows []*Var

	Externals []External
	Semantics []Semantic

	// Ions is the model's ion list with implicit concentration reads
	// appended to ImplicitReads.
	Ions          []ast.Ion
	ImplicitReads map[string][]string

	// Primes are the states with a D<state> slot, in definition order.
	Primes     []*symtab.Symbol
	PrimesSize int

	Tables        []TableFunc
	Watches       []ast.WatchClause
	DerivImplicit []*ast.TopBlock

	NetSendUsed   bool
	NetEventUsed  bool
	NetMoveUsed   bool
	ForNetConUsed bool
	WriteConc     bool

	// IonVarStruct is set when ion writes go through the IonCurVar copy.
	IonVarStruct bool

	// TQItemIndex is the semantic index of tqitem, -1 without.
	TQItemIndex int

	// FirstPointerIndex is the semantic index of the first pointer, -1
	// without.
	FirstPointerIndex int

	// ForNetConIndex is the semantic index of the FOR_NETCONS handle.
	ForNetConIndex int

	floatPos  map[string]int
	intPos    map[string]int
	floatByN  map[string]*Var
	intByN    map[string]*Var
	globalByN map[string]*Var
	shadowByN map[string]*Var

	verbatimTokens map[string]bool
}

// storageless are user tags that never get a per-instance float column.
const storageless = symtab.Global | symtab.Pointer | symtab.BbcorePointer | symtab.External |
	symtab.Section | symtab.Local | symtab.Argument | symtab.Function | symtab.Procedure |
	symtab.Constant

var externalTypes = []External{
	{Name: "celsius", Type: "double"},
	{Name: "secondorder", Type: "int"},
	{Name: "pi", Type: "double"},
}

// NewCatalog derives the storage layout of m.
func NewCatalog(m *ast.Model, opts Options) (c *Catalog, err error) {
	if m == nil || m.Symbols == nil {
		return nil, &InternalError{Category: CategoryUnknown, Msg: "model has no symbol table"}
	}
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, recoverInternal(m.Suffix, r)
		}
	}()
	return buildCatalog(m, opts.withDefaults()), nil
}

func buildCatalog(m *ast.Model, opts Options) *Catalog {
	c := &Catalog{
		Model:             m,
		TQItemIndex:       -1,
		FirstPointerIndex: -1,
		ForNetConIndex:    -1,
		ImplicitReads:     map[string][]string{},
	}
	c.scan()
	c.IonVarStruct = opts.OptimizeIonVarCopies && lo.SomeBy(c.Ions, func(ion ast.Ion) bool { return len(ion.Writes) > 0 })
	c.buildFloats()
	c.buildInts()
	c.buildGlobals()
	c.buildShadows()
	for _, e := range externalTypes {
		if m.Symbols.Lookup(e.Name) != nil {
			c.Externals = append(c.Externals, e)
		}
	}
	return c
}

// bodies returns every emitted statement block of the model.
func (c *Catalog) bodies() []*ast.Block {
	var out []*ast.Block
	for _, tb := range c.Model.Blocks {
		if tb.Body != nil {
			out = append(out, tb.Body)
		}
		if tb.Initial != nil {
			out = append(out, tb.Initial)
		}
	}
	if c.Model.StateUpdate != nil {
		out = append(out, c.Model.StateUpdate)
	}
	return out
}

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// scan collects the model-wide facts the layout depends on.
func (c *Catalog) scan() {
	m := c.Model
	c.verbatimTokens = map[string]bool{}
	addTokens := func(text string) {
		for _, tok := range identifierRe.FindAllString(text, -1) {
			c.verbatimTokens[tok] = true
		}
	}
	for _, text := range m.TopVerbatim {
		addTokens(text)
	}

	var solvedDerivImplicit []string
	for _, body := range c.bodies() {
		for _, call := range ast.Find[*ast.Call](body, nil) {
			switch call.Name {
			case "net_send":
				c.NetSendUsed = true
			case "net_event":
				c.NetEventUsed = true
			case "net_move":
				c.NetMoveUsed = true
			}
		}
		for _, v := range ast.Find[*ast.Verbatim](body, nil) {
			addTokens(v.Text)
		}
		for _, w := range ast.Find[*ast.Watch](body, nil) {
			c.Watches = append(c.Watches, w.Clauses...)
		}
		if len(ast.Find[*ast.ForNetCon](body, nil)) > 0 {
			c.ForNetConUsed = true
		}
		for _, cb := range ast.Find[*ast.DerivImplicitCallback](body, nil) {
			solvedDerivImplicit = append(solvedDerivImplicit, cb.Block)
		}
	}
	for _, name := range lo.Uniq(solvedDerivImplicit) {
		tb := m.NamedBlock(name)
		if tb == nil {
			fail(m.Suffix, CategoryVariable, "derivimplicit block %s is not defined", name)
		}
		c.DerivImplicit = append(c.DerivImplicit, tb)
	}
	if len(c.DerivImplicit) > 0 && !m.Vectorize {
		fail(m.Suffix, CategoryUnsolved, "derivimplicit requires a thread safe model")
	}

	for _, tb := range m.Blocks {
		if tb.Kind != ast.KindFunction && tb.Kind != ast.KindProcedure {
			continue
		}
		tables := ast.Find[*ast.Table](tb.Body, nil)
		switch len(tables) {
		case 0:
		case 1:
			c.Tables = append(c.Tables, TableFunc{Block: tb, Table: tables[0]})
		default:
			fail(m.Suffix, CategoryTable, "%s %s has %d TABLE statements", tb.Kind, tb.Name, len(tables))
		}
	}

	c.Ions = slices.Clone(m.Ions)
	for _, ion := range c.Ions {
		has := func(suffix string) bool {
			name := ion.Name + suffix
			return ion.ReadsVar(name) || ion.WritesVar(name)
		}
		switch in, out := has("i"), has("o"); {
		case in && !out:
			c.ImplicitReads[ion.Name] = []string{ion.Name + "o"}
		case out && !in:
			c.ImplicitReads[ion.Name] = []string{ion.Name + "i"}
		}
		if ion.WritesConc() {
			c.WriteConc = true
		}
	}
}

// ThreadCallbacks reports whether per-thread Newton workspace is needed.
func (c *Catalog) ThreadCallbacks() bool {
	return c.Model.Vectorize && len(c.DerivImplicit) > 0
}

// IsIonVariable reports whether name is read or written by any ion.
func (c *Catalog) IsIonVariable(name string) bool {
	return lo.SomeBy(c.Ions, func(ion ast.Ion) bool { return ion.ReadsVar(name) || ion.WritesVar(name) })
}

// IsIonReadVariable reports whether an ion reads name.
func (c *Catalog) IsIonReadVariable(name string) bool {
	return lo.SomeBy(c.Ions, func(ion ast.Ion) bool { return ion.ReadsVar(name) })
}

// IsIonWriteVariable reports whether an ion writes name.
func (c *Catalog) IsIonWriteVariable(name string) bool {
	return lo.SomeBy(c.Ions, func(ion ast.Ion) bool { return ion.WritesVar(name) })
}

// IsCurrent reports whether name is a current written by the model.
func (c *Catalog) IsCurrent(name string) bool {
	return slices.Contains(c.Model.Currents, name)
}

// collides fails when a synthesized name is already a user symbol.
func (c *Catalog) collides(name string) {
	if c.Model.Symbols.Lookup(name) != nil {
		fail(c.Model.Suffix, CategoryCollision, "synthesized variable %s collides with a model symbol", name)
	}
}

// ---------------------------------------------------------------------------
// Float variables
// ---------------------------------------------------------------------------

func (c *Catalog) buildFloats() {
	tab := c.Model.Symbols
	withoutNonCurrentIonVars := func(syms []*symtab.Symbol) []*symtab.Symbol {
		return lo.Filter(syms, func(s *symtab.Symbol, _ int) bool {
			return !c.IsIonVariable(s.Name) || c.IsCurrent(s.Name)
		})
	}
	fromSymbol := func(s *symtab.Symbol) *Var {
		return &Var{Name: s.Name, Length: s.Length, Tags: s.Tags, Symbol: s, order: s.Order}
	}

	rangeParams := withoutNonCurrentIonVars(tab.WithTags(symtab.RangeParameter, storageless|symtab.State))
	rangeAssigned := withoutNonCurrentIonVars(tab.WithTags(symtab.RangeAssigned, storageless|symtab.State|symtab.RangeParameter))
	rangeStates := withoutNonCurrentIonVars(tab.WithTags(symtab.State|symtab.RangeState, storageless))
	seen := map[string]bool{}
	for _, group := range [][]*symtab.Symbol{rangeParams, rangeAssigned, rangeStates} {
		for _, s := range group {
			seen[s.Name] = true
			c.Floats = append(c.Floats, fromSymbol(s))
		}
	}

	// Non-range assigned variables and D<state> slots share one ordering.
	var assigned []*Var
	for _, s := range tab.WithTags(symtab.Assigned|symtab.IonRead|symtab.IonWrite|symtab.State|symtab.RangeParameter|symtab.RangeAssigned, storageless) {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		assigned = append(assigned, fromSymbol(s))
	}
	for _, s := range tab.WithTags(symtab.State, storageless) {
		name := "D" + s.Name
		if seen[name] {
			continue
		}
		c.collides(name)
		seen[name] = true
		c.Primes = append(c.Primes, s)
		c.PrimesSize += s.Length
		assigned = append(assigned, &Var{Name: name, Length: s.Length, Tags: symtab.Dstate, order: s.Order})
	}
	slices.SortStableFunc(assigned, func(a, b *Var) int { return a.order - b.order })
	c.Floats = append(c.Floats, assigned...)

	if c.Model.Vectorize {
		c.collides("v_unused")
		c.Floats = append(c.Floats, &Var{Name: "v_unused", Length: 1, Tags: symtab.Bookkeeping})
	}
	if c.Model.Block(ast.KindBreakpoint) != nil {
		name := "g_unused"
		if !c.Model.Vectorize {
			name = "g"
		}
		if !seen[name] {
			if name == "g_unused" {
				c.collides(name)
			}
			if c.Model.Symbols.Lookup(name) == nil {
				c.Floats = append(c.Floats, &Var{Name: name, Length: 1, Tags: symtab.Bookkeeping})
			}
		}
	}
	if c.Model.Block(ast.KindNetReceive) != nil {
		c.collides("tsave")
		c.Floats = append(c.Floats, &Var{Name: "tsave", Length: 1, Tags: symtab.Bookkeeping})
	}

	c.floatPos, c.floatByN = map[string]int{}, map[string]*Var{}
	pos := 0
	for _, v := range c.Floats {
		v.Constant = c.isConstant(v)
		c.floatPos[v.Name] = pos
		c.floatByN[v.Name] = v
		pos += v.Length
	}
}

// isConstant reports whether the instance member of v can be const:
// a parameter never written, not shared with an ion and not visible to
// foreign code.
func (c *Catalog) isConstant(v *Var) bool {
	s := v.Symbol
	if s == nil || !s.Tags.Has(symtab.Parameter) || s.WriteCount > 0 {
		return false
	}
	return !c.IsIonVariable(s.Name) && !c.verbatimTokens[s.Name]
}

// ---------------------------------------------------------------------------
// Index variables
// ---------------------------------------------------------------------------

func (c *Catalog) buildInts() {
	m := c.Model
	artificial := m.ArtificialCell
	add := func(name string, tags symtab.Tag, semantic string) *Var {
		v := &Var{Name: name, Length: 1, Tags: tags, Kind: symtab.IndexKindOf(tags, artificial), Semantic: semantic}
		v.VData = v.Kind == symtab.IndexPointer && tags.Any(symtab.PointProcessRef|symtab.TQItem)
		c.Ints = append(c.Ints, v)
		return v
	}

	if m.PointProcess {
		c.collides("node_area")
		c.collides("point_process")
		add("node_area", symtab.NodeArea, "area").Constant = true
		pp := add("point_process", symtab.PointProcessRef, "pntproc")
		pp.Constant = !artificial
	}

	for _, ion := range c.Ions {
		semantic := ion.Name + "_ion"
		byName := map[string]*Var{}
		for _, r := range append(slices.Clone(ion.Reads), c.ImplicitReads[ion.Name]...) {
			v := add("ion_"+r, symtab.IonIndex, semantic)
			v.Constant = true
			byName[v.Name] = v
		}
		didv, style := false, false
		for _, w := range ion.Writes {
			if v, ok := byName["ion_"+w]; ok {
				v.Constant = false
			} else {
				byName["ion_"+w] = add("ion_"+w, symtab.IonIndex, semantic)
			}
			didv = didv || ion.IsIonicCurrent(w)
			style = style || ion.IsConc(w)
		}
		if didv {
			add("ion_di"+ion.Name+"dv", symtab.IonIndex, semantic)
		}
		if style {
			add("ion_"+ion.Name+"_erev", symtab.IonIndex, semantic)
			add("style_"+ion.Name, symtab.IonStyle, "#"+semantic).Constant = true
		}
	}

	for _, s := range m.Symbols.WithTags(symtab.Pointer|symtab.BbcorePointer, symtab.Local|symtab.Argument) {
		semantic := "pointer"
		if s.Tags.Has(symtab.BbcorePointer) {
			semantic = "bbcorepointer"
		}
		c.Ints = append(c.Ints, &Var{
			Name: s.Name, Length: s.Length, Tags: s.Tags, Kind: symtab.IndexPointer,
			VData: s.Tags.Has(symtab.BbcorePointer), Semantic: semantic, Symbol: s,
		})
	}

	if c.sectionUsed("diam") {
		add("diam", symtab.Diam, "diam")
	}
	if c.sectionUsed("area") {
		add("area", symtab.Area, "area")
	}

	if c.NetSendUsed || len(c.Watches) > 0 {
		c.collides("tqitem")
		tq := add("tqitem", symtab.TQItem, "netsend")
		tq.Constant = !artificial
	}

	if len(c.Watches) > 0 {
		// One slot more than there are clauses; slot 0 is never armed.
		for i := range len(c.Watches) + 1 {
			name := fmt.Sprintf("watch%d", i)
			c.collides(name)
			add(name, symtab.WatchSlot, "watch")
		}
	}

	if c.ForNetConUsed {
		c.collides("fornetcon_data")
		add("fornetcon_data", symtab.ForNetConData, "fornetcon")
	}

	c.intPos, c.intByN = map[string]int{}, map[string]*Var{}
	pos := 0
	for _, v := range c.Ints {
		c.intPos[v.Name] = pos
		c.intByN[v.Name] = v
		c.Semantics = append(c.Semantics, Semantic{Index: pos, Name: v.Semantic, Size: v.Length})
		switch {
		case v.Tags.Any(symtab.Pointer|symtab.BbcorePointer) && c.FirstPointerIndex < 0:
			c.FirstPointerIndex = pos
		case v.Tags.Has(symtab.ForNetConData):
			c.ForNetConIndex = pos
		case v.Tags.Has(symtab.TQItem):
			c.TQItemIndex = pos
		}
		pos += v.Length
	}
}

func (c *Catalog) sectionUsed(name string) bool {
	s := c.Model.Symbols.Lookup(name)
	return s != nil && !s.IsLocal()
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

func formatValue(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func (c *Catalog) buildGlobals() {
	m := c.Model
	addInt := func(name, init string) {
		c.collides(name)
		c.Globals = append(c.Globals, &Var{Name: name, Length: 1, Tags: symtab.GlobalBookkeeping, Type: "int", Init: init})
	}

	for _, ion := range c.Ions {
		addInt(ion.Name+"_type", "")
	}
	if m.PointProcess {
		addInt("point_type", "")
	}
	for _, s := range m.Symbols.WithTags(symtab.State, storageless) {
		name := s.Name + "0"
		if m.Symbols.Lookup(name) != nil {
			continue
		}
		c.Globals = append(c.Globals, &Var{Name: name, Length: 1, Tags: symtab.GlobalBookkeeping, Type: "double"})
	}
	for _, s := range m.Symbols.WithTags(symtab.Local, 0) {
		c.Globals = append(c.Globals, &Var{Name: s.Name, Length: s.Length, Tags: symtab.Global, Type: "double", Symbol: s})
	}
	addInt("reset", "")
	addInt("mech_type", "")

	userGlobals := m.Symbols.WithTags(symtab.Global, symtab.Pointer|symtab.BbcorePointer|symtab.External|symtab.Local|symtab.Argument|symtab.Function|symtab.Procedure)
	params := m.Symbols.WithTags(symtab.Parameter, symtab.RangeParameter|symtab.RangeAssigned|symtab.Assigned|
		symtab.State|symtab.Global|symtab.Pointer|symtab.BbcorePointer|symtab.IonRead|symtab.IonWrite|
		symtab.External|symtab.Section|symtab.Local|symtab.Argument|symtab.Constant)
	for _, s := range append(userGlobals, params...) {
		init := formatValue(s.Default)
		if s.IsArray() {
			init = ""
		}
		c.Globals = append(c.Globals, &Var{Name: s.Name, Length: s.Length, Tags: s.Tags | symtab.Global, Type: "double", Init: init, Symbol: s})
	}
	for _, s := range m.Symbols.WithTags(symtab.Constant, symtab.Local|symtab.Argument) {
		c.Globals = append(c.Globals, &Var{Name: s.Name, Length: s.Length, Tags: s.Tags, Type: "double", Init: formatValue(s.Default), Symbol: s})
	}

	if c.PrimesSize > 0 {
		list := func(prefix string) string {
			var pos []string
			for _, s := range c.Primes {
				for i := range s.Length {
					pos = append(pos, strconv.Itoa(c.floatPos[prefix+s.Name]+i))
				}
			}
			return strings.Join(pos, ", ")
		}
		names := []string{"slist1", "dlist1"}
		if len(c.DerivImplicit) > 0 {
			names = append(names, "slist2")
		}
		for _, name := range names {
			prefix := ""
			if name == "dlist1" {
				prefix = "D"
			}
			c.collides(name)
			c.Globals = append(c.Globals, &Var{Name: name, Length: c.PrimesSize, Tags: symtab.GlobalBookkeeping, Type: "int", Init: list(prefix), Array: true})
		}
	}

	if len(c.Tables) > 0 {
		c.collides("usetable")
		c.Globals = append(c.Globals, &Var{Name: "usetable", Length: 1, Tags: symtab.TableStorage, Type: "double", Init: "1"})
		for _, t := range c.Tables {
			for _, prefix := range []string{"tmin_", "mfac_"} {
				name := prefix + t.Block.Name
				c.collides(name)
				c.Globals = append(c.Globals, &Var{Name: name, Length: 1, Tags: symtab.TableStorage, Type: "double"})
			}
		}
		for _, t := range c.Tables {
			num := t.Table.With + 1
			if t.Block.Kind == ast.KindFunction {
				c.Globals = append(c.Globals, &Var{Name: "t_" + t.Block.Name, Length: num, Tags: symtab.TableStorage, Type: "double", Array: true})
				continue
			}
			for _, name := range t.Table.Vars {
				s := m.Symbols.Lookup(name)
				if s == nil {
					fail(m.Suffix, CategoryTable, "table variable %s of %s is not defined", name, t.Block.Name)
				}
				v := &Var{Name: "t_" + name, Length: num, Tags: symtab.TableStorage, Type: "double", Array: true}
				if s.IsArray() {
					v.Rows = s.Length
				}
				c.Globals = append(c.Globals, v)
			}
		}
	}

	if c.ThreadCallbacks() {
		c.collides("ext_call_thread")
		c.Globals = append(c.Globals, &Var{Name: "ext_call_thread", Length: 3, Tags: symtab.GlobalBookkeeping, Type: "ThreadDatum", Array: true})
	}

	c.globalByN = map[string]*Var{}
	for _, v := range c.Globals {
		c.globalByN[v.Name] = v
	}
}

// ---------------------------------------------------------------------------
// Shadows
// ---------------------------------------------------------------------------

// buildShadows adds the point process scratch arrays staged per instance and
// reduced into the node matrix after the current kernel loop.
func (c *Catalog) buildShadows() {
	c.shadowByN = map[string]*Var{}
	if !c.Model.PointProcess || c.Model.Block(ast.KindBreakpoint) == nil {
		return
	}
	for _, name := range []string{"shadow_rhs", "shadow_d"} {
		c.collides(name)
		v := &Var{Name: name, Length: 1, Tags: symtab.Shadow}
		c.Shadows = append(c.Shadows, v)
		c.shadowByN[name] = v
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Float returns the float slot of name and its column offset.
func (c *Catalog) Float(name string) (*Var, int, bool) {
	v, ok := c.floatByN[name]
	return v, c.floatPos[name], ok
}

// Int returns the index slot of name and its column offset.
func (c *Catalog) Int(name string) (*Var, int, bool) {
	v, ok := c.intByN[name]
	return v, c.intPos[name], ok
}

// Global returns the global struct member name.
func (c *Catalog) Global(name string) (*Var, bool) {
	v, ok := c.globalByN[name]
	return v, ok
}

// Shadow returns the shadow slot name.
func (c *Catalog) Shadow(name string) (*Var, bool) {
	v, ok := c.shadowByN[name]
	return v, ok
}

// External reports whether name is a simulator variable of the model.
func (c *Catalog) External(name string) (External, bool) {
	return lo.Find(c.Externals, func(e External) bool { return e.Name == name })
}

// FloatSize is the number of float columns per instance.
func (c *Catalog) FloatSize() int {
	return lo.SumBy(c.Floats, func(v *Var) int { return v.Length })
}

// IntSize is the number of index columns per instance.
func (c *Catalog) IntSize() int {
	return lo.SumBy(c.Semantics, func(s Semantic) int { return s.Size })
}

// Table returns the table of a FUNCTION or PROCEDURE.
func (c *Catalog) Table(name string) (TableFunc, bool) {
	return lo.Find(c.Tables, func(t TableFunc) bool { return t.Block.Name == name })
}

// IonCurVarMembers lists the IonCurVar fields: every ion write followed by
// the currents not owned by an ion.
func (c *Catalog) IonCurVarMembers() []string {
	var out []string
	for _, ion := range c.Ions {
		out = append(out, ion.Writes...)
	}
	for _, cur := range c.Model.Currents {
		if !c.IsIonVariable(cur) {
			out = append(out, cur)
		}
	}
	return out
}
