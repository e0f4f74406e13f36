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

// Package localize demotes model-level variables to block locals.
//
// A RANGE or GLOBAL variable whose first access in every analyzable block is
// a write (or that a block does not touch at all) carries no value from one
// callback to the next. Each block that writes it gets its own LOCAL copy,
// which the code generator emits as a plain stack variable instead of a
// strided load and store.
package localize

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/defuse"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// candidateTags select variables that may be localized; excludedTags veto.
const (
	candidateTags = symtab.RangeParameter | symtab.RangeAssigned | symtab.RangeState | symtab.Global
	excludedTags  = symtab.External | symtab.IonRead | symtab.IonWrite | symtab.Pointer |
		symtab.BbcorePointer | symtab.Prime | symtab.NonspecificCurrent |
		symtab.ElectrodeCurrent | symtab.Section | symtab.Local | symtab.Argument
)

// analyzableKinds are the top-level blocks every candidate is checked in.
var analyzableKinds = []ast.BlockKind{
	ast.KindInitial, ast.KindBreakpoint, ast.KindConstructor, ast.KindDestructor,
	ast.KindDerivative, ast.KindLinear, ast.KindNonLinear, ast.KindDiscrete,
	ast.KindPartial, ast.KindNetReceive, ast.KindTerminal, ast.KindBefore, ast.KindAfter,
}

// Option configures a Run.
type Option func(*config)

type config struct {
	ignoreVerbatim bool
}

// WithIgnoreVerbatim treats VERBATIM code as not touching any variable.
func WithIgnoreVerbatim() Option {
	return func(c *config) { c.ignoreVerbatim = true }
}

// Error reports an internal failure of the pass on one model.
type Error struct {
	Model    string
	Variable string
	Err      error
}

func (e *Error) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("localize %s: variable %s: %v", e.Model, e.Variable, e.Err)
	}
	return fmt.Sprintf("localize %s: %v", e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// BlockResult is the evaluation of one variable in one block.
type BlockResult struct {
	Label string
	State defuse.State
}

// VariableReport is the outcome for one candidate.
type VariableReport struct {
	Name      string
	Blocks    []BlockResult
	Localized bool

	// Reason explains why the variable was kept, empty when localized.
	Reason string
}

// Report lists every candidate in definition order.
type Report struct {
	Variables []VariableReport
}

// Localized returns the names of localized variables.
func (r Report) Localized() []string {
	return lo.FilterMap(r.Variables, func(v VariableReport, _ int) (string, bool) {
		return v.Name, v.Localized
	})
}

// unit is one separately emitted block body.
type unit struct {
	label string
	body  *ast.Block
}

// Run localizes every eligible variable of m in place. It returns the
// per-variable report; an error means the model could not be analyzed and
// was left in an unspecified state.
func Run(m *ast.Model, opts ...Option) (report Report, err error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if m == nil || m.Symbols == nil {
		return Report{}, &Error{Err: fmt.Errorf("model has no symbol table")}
	}

	var current string
	defer func() {
		if r := recover(); r != nil {
			report = Report{}
			err = &Error{Model: m.Suffix, Variable: current, Err: fmt.Errorf("%v", r)}
		}
	}()

	units := collectUnits(m)
	var aopts []defuse.Option
	if cfg.ignoreVerbatim {
		aopts = append(aopts, defuse.WithIgnoreVerbatim())
	}

	for _, sym := range m.Symbols.WithTags(candidateTags, excludedTags) {
		current = sym.Name
		vr := VariableReport{Name: sym.Name}
		if !cfg.ignoreVerbatim && usedInTopVerbatim(m, sym.Name) {
			vr.Reason = "referenced in top-level VERBATIM"
			report.Variables = append(report.Variables, vr)
			continue
		}
		for _, u := range units {
			state := evalUnit(u, sym, m.Scope(), aopts)
			vr.Blocks = append(vr.Blocks, BlockResult{Label: u.label, State: state})
		}
		if b, found := lo.Find(vr.Blocks, func(b BlockResult) bool { return b.State == defuse.Use }); found {
			vr.Reason = "used in " + b.Label
			report.Variables = append(report.Variables, vr)
			continue
		}
		for i, u := range units {
			switch vr.Blocks[i].State {
			case defuse.Def, defuse.ConditionalDef:
				if insertLocal(m, u.body, sym) {
					vr.Localized = true
				}
			}
		}
		if vr.Localized {
			sym.Localized = true
		} else {
			vr.Reason = "never written"
		}
		report.Variables = append(report.Variables, vr)
	}
	return report, nil
}

// collectUnits lists the analyzable bodies: the fixed block kinds, the
// NET_RECEIVE INITIAL sub-block, every PROCEDURE reached by SOLVE and the
// lowered state update.
func collectUnits(m *ast.Model) []unit {
	var units []unit
	for _, tb := range m.Blocks {
		if !slices.Contains(analyzableKinds, tb.Kind) {
			continue
		}
		label := defuse.BlockLabel(tb.Kind)
		if tb.Body != nil {
			units = append(units, unit{label: label, body: tb.Body})
		}
		if tb.Initial != nil {
			units = append(units, unit{label: label + ".INITIAL", body: tb.Initial})
		}
	}

	var solved []string
	for _, tb := range m.Blocks {
		for _, s := range ast.Find[*ast.Solve](tb.Body, nil) {
			solved = append(solved, s.Block)
		}
	}
	for _, name := range lo.Uniq(solved) {
		if p := m.Callable(name); p != nil && p.Kind == ast.KindProcedure && p.Body != nil {
			units = append(units, unit{label: "ProcedureBlock(" + name + ")", body: p.Body})
		}
	}

	if m.StateUpdate != nil {
		units = append(units, unit{label: "SolveBlock", body: m.StateUpdate})
	}
	return units
}

// evalUnit evaluates sym in one body. Arrays are analyzed element by
// element: any element read first makes the block a Use, and the block is
// a Def only when every element is.
func evalUnit(u unit, sym *symtab.Symbol, scope *symtab.Scope, opts []defuse.Option) defuse.State {
	opts = append([]defuse.Option{defuse.WithName(u.label)}, opts...)
	if !sym.IsArray() {
		return defuse.Analyze(u.body, sym.Name, scope, opts...).Eval()
	}
	states := make([]defuse.State, sym.Length)
	for i := range sym.Length {
		variable := fmt.Sprintf("%s[%d]", sym.Name, i)
		states[i] = defuse.Analyze(u.body, variable, scope, opts...).Eval()
	}
	switch {
	case slices.Contains(states, defuse.Use):
		return defuse.Use
	case lo.EveryBy(states, func(s defuse.State) bool { return s == defuse.Def }):
		return defuse.Def
	case slices.Contains(states, defuse.Def), slices.Contains(states, defuse.ConditionalDef):
		return defuse.ConditionalDef
	default:
		return defuse.None
	}
}

// insertLocal declares sym as a LOCAL of body. It is a no-op when the
// block already declares a local of that name.
func insertLocal(m *ast.Model, body *ast.Block, sym *symtab.Symbol) bool {
	scope := body.EnsureScope(m.Scope())
	if scope.LookupLocal(sym.Name) != nil {
		return false
	}
	if _, err := scope.Define(symtab.Symbol{Name: sym.Name, Length: sym.Length, Tags: symtab.Local}); err != nil {
		panic(err)
	}
	decl := &ast.LocalDecl{Vars: []ast.LocalVar{{Name: sym.Name, Length: sym.Length}}}
	body.Stmts = append([]ast.Stmt{decl}, body.Stmts...)
	return true
}

// usedInTopVerbatim reports whether a top-level VERBATIM block mentions name
// as an identifier.
func usedInTopVerbatim(m *ast.Model, name string) bool {
	if len(m.TopVerbatim) == 0 {
		return false
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	return lo.SomeBy(m.TopVerbatim, func(text string) bool {
		return re.MatchString(text) || strings.Contains(text, "_p_"+name)
	})
}
