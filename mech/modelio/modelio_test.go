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

package modelio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

const channel = `{
  "file": "hh",
  "suffix": "hh",
  "vectorize": true,
  "symbols": [
    {"name": "gnabar", "tags": ["parameter", "range-parameter"], "default": 0.12},
    {"name": "m", "tags": ["state", "range-state"]},
    {"name": "ena", "tags": ["assigned", "ion-read"]},
    {"name": "ina", "tags": ["range-assigned", "ion-write"], "write_count": 1}
  ],
  "ions": [{"name": "na", "read": ["ena"], "write": ["ina"], "valence": 1}],
  "currents": ["ina"],
  "conductances": [{"variable": "gna", "ion": "na"}],
  "factors": [{"name": "FARADAY", "value": "96485.3"}],
  "blocks": [
    {"kind": "breakpoint", "body": [
      {"kind": "local", "vars": [{"name": "gna"}, {"name": "buf", "length": 3}]},
      {"kind": "assign", "lhs": "gna", "rhs": {"kind": "binary", "op": "*", "lhs": "gnabar", "rhs": "m"}},
      {"kind": "if", "cond": {"kind": "binary", "op": ">", "lhs": "v", "rhs": -20.5},
        "then": [{"kind": "assign", "lhs": {"kind": "indexed", "name": "buf", "index": 0}, "rhs": true}],
        "else_ifs": [{"cond": false, "then": []}],
        "else": [{"kind": "verbatim", "text": "return 0;"}]}
    ]},
    {"kind": "NET_RECEIVE", "params": [{"name": "w"}], "body": [], "initial": [
      {"kind": "local", "vars": [{"name": "k"}]}
    ]}
  ],
  "functions": [
    {"name": "rate", "params": [{"name": "x"}], "body": [
      {"kind": "assign", "lhs": "rate", "rhs": {"kind": "call", "name": "exp", "args": [{"kind": "number", "text": "1e-3"}]}}
    ]}
  ],
  "state_update": [
    {"kind": "for", "var": "i", "from": 0, "to": 2, "body": [{"kind": "expr", "expr": "i"}]}
  ]
}`

func TestDecodeModel(t *testing.T) {
	m, err := Decode(strings.NewReader(channel))
	require.NoError(t, err)

	assert.Equal(t, "hh", m.Suffix)
	assert.True(t, m.Vectorize)
	assert.Equal(t, []string{"ina"}, m.Currents)
	require.Len(t, m.Ions, 1)
	assert.Equal(t, []string{"ena"}, m.Ions[0].Reads)
	assert.Equal(t, 1.0, *m.Ions[0].Valence)
	assert.Equal(t, []ast.Conductance{{Variable: "gna", Ion: "na"}}, m.Conductances)
	assert.Equal(t, []ast.Factor{{Name: "FARADAY", Value: "96485.3"}}, m.Factors)

	gnabar := m.Symbols.Lookup("gnabar")
	require.NotNil(t, gnabar)
	assert.True(t, gnabar.Tags.Has(symtab.Parameter|symtab.RangeParameter))
	assert.Equal(t, 0.12, *gnabar.Default)
	assert.Equal(t, 1, gnabar.Length)
	assert.Equal(t, 1, m.Symbols.Lookup("ina").WriteCount)

	// Callables are defined even when the symbol list omits them.
	rate := m.Symbols.Lookup("rate")
	require.NotNil(t, rate)
	assert.True(t, rate.Tags.Has(symtab.Function))
	assert.NotNil(t, m.Callable("rate"))
}

func TestDecodeBlocksAndScopes(t *testing.T) {
	m, err := Decode(strings.NewReader(channel))
	require.NoError(t, err)

	bp := m.Block(ast.KindBreakpoint)
	require.NotNil(t, bp)
	require.Len(t, bp.Body.Stmts, 3)
	require.NotNil(t, bp.Body.Scope)
	buf := bp.Body.Scope.LookupLocal("buf")
	require.NotNil(t, buf)
	assert.Equal(t, 3, buf.Length)
	assert.True(t, buf.IsLocal())
	assert.Nil(t, m.Symbols.Lookup("gna"), "LOCALs stay out of the model scope")

	ifs := bp.Body.Stmts[2].(*ast.If)
	cond := ifs.Cond.(*ast.Binary)
	assert.Equal(t, ast.OpGT, cond.Op)
	assert.Equal(t, &ast.Number{Text: "-20.5", Value: -20.5}, cond.Rhs)
	assign := ifs.Then.Stmts[0].(*ast.ExprStmt).X.(*ast.Binary)
	assert.Equal(t, &ast.IndexedName{Name: "buf", Index: &ast.Integer{Value: 0}}, assign.Lhs)
	assert.Equal(t, &ast.Boolean{Value: true}, assign.Rhs)
	require.Len(t, ifs.ElseIfs, 1)
	assert.Empty(t, ifs.ElseIfs[0].Then.Stmts)
	require.NotNil(t, ifs.Else)
	assert.Equal(t, &ast.Verbatim{Text: "return 0;"}, ifs.Else.Stmts[0])
	assert.Same(t, bp.Body.Scope, ifs.Then.Scope.Parent())

	nr := m.Block(ast.KindNetReceive)
	require.NotNil(t, nr)
	assert.Equal(t, []ast.Param{{Name: "w"}}, nr.Params)
	require.NotNil(t, nr.Initial)
	assert.NotNil(t, nr.Initial.Scope.LookupLocal("k"))
	assert.NotNil(t, nr.Initial.Scope.Lookup("w"), "arguments are visible in INITIAL")

	fn := m.Callable("rate")
	call := fn.Body.Stmts[0].(*ast.ExprStmt).X.(*ast.Binary).Rhs.(*ast.Call)
	assert.Equal(t, "exp", call.Name)
	assert.Equal(t, &ast.Number{Text: "1e-3", Value: 1e-3}, call.Args[0])

	require.NotNil(t, m.StateUpdate)
	loop := m.StateUpdate.Stmts[0].(*ast.For)
	assert.Equal(t, "i", loop.Var)
	assert.Nil(t, loop.By)
	assert.Equal(t, &ast.Integer{Value: 2}, loop.To)
}

func TestDecodeSolvers(t *testing.T) {
	doc := `{"suffix": "kin", "state_update": [
	  {"kind": "nonlinear_solver", "n": 2,
	   "variables": [{"kind": "local", "vars": [{"name": "a"}]}],
	   "setup_x": [{"kind": "assign", "lhs": "a", "rhs": 1}],
	   "functor": [{"kind": "assign", "lhs": "a", "rhs": 2}],
	   "update_states": []},
	  {"kind": "linear_solver", "n": 1},
	  {"kind": "derivimplicit", "block": "states"},
	  {"kind": "opaque", "form": "conserve", "exprs": ["a"]},
	  {"kind": "watch", "clauses": [{"cond": "v", "value": 2}]},
	  {"kind": "for_netcon", "params": ["w"], "body": []},
	  {"kind": "table", "names": ["a"], "from": 0, "to": 1, "with": 10}
	]}`
	m, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	stmts := m.StateUpdate.Stmts
	require.Len(t, stmts, 7)

	ns := stmts[0].(*ast.NonLinearSolver)
	assert.Equal(t, 2, ns.N)
	require.NotNil(t, ns.Variables.Scope.LookupLocal("a"))
	assert.Same(t, ns.Variables.Scope, ns.Functor.Scope.Parent())
	assert.Nil(t, ns.Initialize)
	assert.NotNil(t, ns.UpdateStates)

	ls := stmts[1].(*ast.LinearSolver)
	assert.Equal(t, 1, ls.N)
	assert.NotNil(t, ls.Variables)

	assert.Equal(t, &ast.DerivImplicitCallback{Block: "states"}, stmts[2])
	assert.Equal(t, ast.OpaqueConserve, stmts[3].(*ast.Opaque).Form)
	assert.Len(t, stmts[4].(*ast.Watch).Clauses, 1)
	assert.Equal(t, []string{"w"}, stmts[5].(*ast.ForNetCon).Params)
	assert.Equal(t, 10, stmts[6].(*ast.Table).With)
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		want string
	}{
		{"no suffix", `{}`, "no suffix"},
		{"unknown field", `{"suffix": "x", "colour": 1}`, "unknown field"},
		{"unknown tag", `{"suffix": "x", "symbols": [{"name": "a", "tags": ["bogus"]}]}`, "unknown symbol tag"},
		{"duplicate symbol", `{"suffix": "x", "symbols": [{"name": "a"}, {"name": "a"}]}`, "already defined"},
		{"unknown block", `{"suffix": "x", "blocks": [{"kind": "NOPE"}]}`, "unknown block kind"},
		{"unknown statement", `{"suffix": "x", "state_update": [{"kind": "goto"}]}`, `unknown statement kind "goto"`},
		{"unknown expression", `{"suffix": "x", "state_update": [{"kind": "expr", "expr": {"kind": "lambda"}}]}`, `unknown expression kind "lambda"`},
		{"missing expression", `{"suffix": "x", "state_update": [{"kind": "expr"}]}`, "missing expression"},
		{"unknown operator", `{"suffix": "x", "state_update": [{"kind": "expr", "expr": {"kind": "binary", "op": "%", "lhs": 1, "rhs": 2}}]}`, "unknown binary operator"},
		{"duplicate local", `{"suffix": "x", "state_update": [{"kind": "local", "vars": [{"name": "a"}, {"name": "a"}]}]}`, "already defined"},
		{"zero table", `{"suffix": "x", "state_update": [{"kind": "table", "from": 0, "to": 1}]}`, "positive WITH"},
		{"functor on linear", `{"suffix": "x", "state_update": [{"kind": "linear_solver", "n": 1, "functor": []}]}`, "no functor"},
		{"initial outside NET_RECEIVE", `{"suffix": "x", "blocks": [{"kind": "INITIAL", "initial": []}]}`, "only NET_RECEIVE"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadNamesModelAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"suffix": "cad"}`), 0o644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cad", m.File)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
