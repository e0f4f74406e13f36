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

package defuse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// Small AST builders.

func name(n string) ast.Expr { return &ast.Name{Name: n} }
func num(v int) ast.Expr     { return &ast.Integer{Value: v} }
func elem(n string, idx ast.Expr) ast.Expr {
	return &ast.IndexedName{Name: n, Index: idx}
}
func add(l, r ast.Expr) ast.Expr { return &ast.Binary{Op: ast.OpAdd, Lhs: l, Rhs: r} }
func eq(l, r ast.Expr) ast.Expr  { return &ast.Binary{Op: ast.OpEQ, Lhs: l, Rhs: r} }
func set(l, r ast.Expr) ast.Stmt {
	return &ast.ExprStmt{X: &ast.Binary{Op: ast.OpAssign, Lhs: l, Rhs: r}}
}
func call(n string, args ...ast.Expr) ast.Stmt {
	return &ast.ExprStmt{X: &ast.Call{Name: n, Args: args}}
}
func blk(stmts ...ast.Stmt) *ast.Block { return &ast.Block{Stmts: stmts} }

// localBlk creates a block declaring the given locals in its own scope.
func localBlk(parent *symtab.Scope, locals []string, stmts ...ast.Stmt) *ast.Block {
	b := ast.NewBlock(parent)
	decl := &ast.LocalDecl{}
	for _, l := range locals {
		b.Scope.MustDefine(symtab.Symbol{Name: l, Tags: symtab.Local})
		decl.Vars = append(decl.Vars, ast.LocalVar{Name: l, Length: 1})
	}
	b.Stmts = append([]ast.Stmt{decl}, stmts...)
	return b
}

func newScope(t *testing.T, names ...string) *symtab.Scope {
	t.Helper()
	tab := symtab.NewTable()
	for _, n := range names {
		tab.Global().MustDefine(symtab.Symbol{Name: n, Tags: symtab.RangeParameter | symtab.Parameter})
	}
	return tab.Global()
}

func derivative(b *ast.Block, variable string, scope *symtab.Scope, opts ...Option) Chain {
	return Analyze(b, variable, scope, append([]Option{WithName("DerivativeBlock")}, opts...)...)
}

func TestAssignmentOrder(t *testing.T) {
	scope := newScope(t, "tau", "beta")
	b := blk(
		set(name("tau"), num(1)),
		set(name("tau"), add(num(1), name("tau"))),
	)
	chain := derivative(b, "tau", scope)
	assert.Equal(t, `{"DerivativeBlock":[{"name":"D"},{"name":"U"},{"name":"D"}]}`, chain.JSON(true))
	assert.Equal(t, Def, chain.Eval())
	require.Len(t, chain.Instances, 3)
	assert.Equal(t, "tau = 1", ast.FormatExpr(chain.Instances[0].Expr))
	assert.Equal(t, "tau = 1 + tau", ast.FormatExpr(chain.Instances[1].Expr))
	assert.Same(t, chain.Instances[1].Expr, chain.Instances[2].Expr)
}

func TestVerbatimIsUse(t *testing.T) {
	scope := newScope(t, "tau")
	b := blk(
		&ast.Verbatim{Text: " "},
		set(name("tau"), num(1)),
		&ast.Verbatim{Text: " "},
	)
	chain := derivative(b, "tau", scope)
	assert.Equal(t, `{"DerivativeBlock":[{"name":"U"},{"name":"D"},{"name":"U"}]}`, chain.JSON(true))
	assert.Equal(t, Use, chain.Eval())
	assert.Nil(t, chain.Instances[0].Expr)

	ignored := derivative(b, "tau", scope, WithIgnoreVerbatim())
	assert.Equal(t, `{"DerivativeBlock":[{"name":"D"}]}`, ignored.JSON(true))
	assert.Equal(t, Def, ignored.Eval())
}

func TestArrayElements(t *testing.T) {
	scope := newScope(t)
	for _, s := range []string{"m", "h", "n", "o"} {
		scope.MustDefine(symtab.Symbol{Name: s, Length: 3, Tags: symtab.RangeState | symtab.State})
	}
	b := ast.NewBlock(scope)
	b.Scope.MustDefine(symtab.Symbol{Name: "tau", Length: 3, Tags: symtab.Local})
	i := name("i")
	b.Stmts = []ast.Stmt{
		&ast.LocalDecl{Vars: []ast.LocalVar{{Name: "tau", Length: 3}}},
		set(elem("tau", num(0)), num(1)),
		set(elem("tau", num(2)), add(add(num(1), elem("tau", num(1))), elem("tau", num(2)))),
		set(elem("m", num(0)), elem("m", num(1))),
		set(elem("h", num(1)), add(elem("m", num(0)), elem("h", num(0)))),
		set(elem("o", i), num(1)),
		set(elem("n", add(i, num(1))), add(num(1), elem("n", i))),
	}
	tests := []struct {
		variable string
		want     string
	}{
		{"m[0]", `[{"name":"D"},{"name":"U"}]`},
		{"m[1]", `[{"name":"U"}]`},
		{"h[1]", `[{"name":"D"}]`},
		{"tau[0]", `[{"name":"LD"}]`},
		{"tau[1]", `[{"name":"LU"}]`},
		{"tau[2]", `[{"name":"LU"},{"name":"LD"}]`},
		{"n[0]", `[{"name":"U"},{"name":"D"}]`},
		{"n[1]", `[{"name":"U"},{"name":"D"}]`},
		{"o[0]", `[{"name":"D"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.variable, func(t *testing.T) {
			chain := derivative(b, tt.variable, scope)
			assert.Equal(t, `{"DerivativeBlock":`+tt.want+`}`, chain.JSON(true))
		})
	}
}

func TestConditionals(t *testing.T) {
	tests := []struct {
		name string
		// build returns the block under test; scope has tau and beta as RANGE.
		build    func(scope *symtab.Scope) *ast.Block
		variable string
		want     string
		eval     State
	}{
		{
			name: "use in condition",
			build: func(*symtab.Scope) *ast.Block {
				return blk(&ast.If{Cond: eq(name("tau"), num(0)), Then: blk()})
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"U"}]}]}]`,
			eval:     Use,
		},
		{
			name: "local def in if, global def in else",
			build: func(scope *symtab.Scope) *ast.Block {
				return blk(&ast.If{
					Cond: num(1),
					Then: localBlk(scope, []string{"tau"}, set(name("tau"), num(1))),
					Else: blk(set(name("tau"), num(1))),
				})
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"LD"}]},{"ELSE":[{"name":"D"}]}]}]`,
			eval:     ConditionalDef,
		},
		{
			name: "use then def in both branches",
			build: func(*symtab.Scope) *ast.Block {
				return blk(&ast.If{
					Cond: eq(name("tau"), num(0)),
					Then: blk(set(name("tau"), add(num(1), name("tau")))),
					Else: blk(set(name("tau"), add(num(2), name("tau")))),
				})
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"U"},{"name":"U"},{"name":"D"}]},{"ELSE":[{"name":"U"},{"name":"D"}]}]}]`,
			eval:     Use,
		},
		{
			name: "empty if, use in else",
			build: func(*symtab.Scope) *ast.Block {
				return blk(&ast.If{
					Cond: num(1),
					Then: blk(),
					Else: blk(set(name("tau"), add(num(1), name("tau")))),
				})
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"name":"IF"},{"ELSE":[{"name":"U"},{"name":"D"}]}]}]`,
			eval:     Use,
		},
		{
			name: "def in both branches",
			build: func(*symtab.Scope) *ast.Block {
				return blk(&ast.If{
					Cond: num(1),
					Then: blk(set(name("tau"), num(11)), call("exp", name("tau"))),
					Else: blk(set(name("tau"), num(1))),
				})
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"D"},{"name":"U"}]},{"ELSE":[{"name":"D"}]}]}]`,
			eval:     Def,
		},
		{
			name: "nested conditional without else",
			build: func(*symtab.Scope) *ast.Block {
				return blk(&ast.If{
					Cond: num(1),
					Then: blk(&ast.If{
						Cond: num(11),
						Then: blk(set(name("tau"), num(11)), call("exp", name("tau"))),
					}),
					ElseIfs: []*ast.ElseIf{{Cond: num(1), Then: blk(set(name("tau"), num(1)))}},
				})
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"IF":[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"D"},{"name":"U"}]}]}]},{"ELSEIF":[{"name":"D"}]}]}]`,
			eval:     ConditionalDef,
		},
		{
			name: "conditional def overridden by later use",
			build: func(*symtab.Scope) *ast.Block {
				return blk(
					&ast.If{Cond: num(1), Then: blk(set(name("tau"), num(1)))},
					set(name("tau"), add(num(1), name("tau"))),
					&ast.If{
						Cond:    num(0),
						Then:    blk(set(name("beta"), num(1))),
						ElseIfs: []*ast.ElseIf{{Cond: num(2), Then: blk(set(name("tau"), num(1)))}},
					},
				)
			},
			variable: "tau",
			want:     `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"D"}]}]},{"name":"U"},{"name":"D"},{"CONDITIONAL_BLOCK":[{"name":"IF"},{"ELSEIF":[{"name":"D"}]}]}]`,
			eval:     Use,
		},
		{
			name: "variable not mentioned",
			build: func(scope *symtab.Scope) *ast.Block {
				return localBlk(scope, []string{"tau"}, &ast.If{
					Cond: eq(name("beta"), num(0)),
					Then: blk(set(name("tau"), num(1))),
					Else: blk(set(name("beta"), num(0))),
				})
			},
			variable: "alpha",
			want:     `[{"CONDITIONAL_BLOCK":[{"name":"IF"},{"name":"ELSE"}]}]`,
			eval:     None,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := newScope(t, "tau", "beta")
			chain := derivative(tt.build(scope), tt.variable, scope)
			assert.Equal(t, `{"DerivativeBlock":`+tt.want+`}`, chain.JSON(true))
			assert.Equal(t, tt.eval, chain.Eval(), "Eval() of %s", chain)
		})
	}
}

func TestLocalVariables(t *testing.T) {
	tab := symtab.NewTable()
	tab.Global().MustDefine(symtab.Symbol{Name: "x", Tags: symtab.Global | symtab.Parameter})
	scope := tab.Global()

	// LOCAL a, b; a = 1; IF (x == 1) { LOCAL c; c = 1 }
	b := localBlk(scope, []string{"a", "b"})
	b.Stmts = append(b.Stmts,
		set(name("a"), num(1)),
		&ast.If{Cond: eq(name("x"), num(1)), Then: localBlk(b.Scope, []string{"c"}, set(name("c"), num(1)))},
	)

	tests := []struct {
		variable string
		want     string
		eval     State
	}{
		{"x", `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"U"}]}]}]`, Use},
		{"a", `[{"name":"LD"},{"CONDITIONAL_BLOCK":[{"name":"IF"}]}]`, LocalDef},
		{"b", `[{"CONDITIONAL_BLOCK":[{"name":"IF"}]}]`, None},
		{"c", `[{"CONDITIONAL_BLOCK":[{"IF":[{"name":"LD"}]}]}]`, ConditionalDef},
	}
	for _, tt := range tests {
		t.Run(tt.variable, func(t *testing.T) {
			chain := derivative(b, tt.variable, scope)
			assert.Equal(t, `{"DerivativeBlock":`+tt.want+`}`, chain.JSON(true))
			assert.Equal(t, tt.eval, chain.Eval())
		})
	}
}

func TestOpaqueConstructs(t *testing.T) {
	scope := newScope(t, "tau")
	scope.MustDefine(symtab.Symbol{Name: "rates", Tags: symtab.Procedure})

	tests := []struct {
		name string
		b    *ast.Block
	}{
		{"procedure call argument", blk(call("rates", name("tau")))},
		{"counted loop", blk(&ast.For{Var: "i", From: num(0), To: num(3), Body: blk(set(name("tau"), num(1)))})},
		{"conserve", blk(&ast.Opaque{Form: ast.OpaqueConserve, Exprs: []ast.Expr{add(name("tau"), name("x"))}})},
		{"table", blk(&ast.Table{Vars: []string{"y"}, Depends: []string{"tau"}, From: num(0), To: num(1), With: 10})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := derivative(tt.b, "tau", scope)
			assert.Equal(t, Use, chain.Eval(), "chain %s", chain)
		})
	}

	// An external function leaves its arguments analyzable.
	chain := derivative(blk(set(name("tau"), num(0)), call("exp", name("tau"))), "tau", scope)
	assert.Equal(t, Def, chain.Eval())
}

func TestDeterminism(t *testing.T) {
	scope := newScope(t, "tau")
	b := blk(
		&ast.If{
			Cond: eq(name("v"), num(0)),
			Then: blk(set(name("tau"), num(1))),
			ElseIfs: []*ast.ElseIf{
				{Cond: num(1), Then: blk(set(name("tau"), name("tau")))},
			},
			Else: blk(&ast.Verbatim{}),
		},
		set(name("tau"), num(2)),
	)
	first := derivative(b, "tau", scope)
	for range 5 {
		again := derivative(b, "tau", scope)
		if diff := cmp.Diff(first.JSON(false), again.JSON(false)); diff != "" {
			t.Fatalf("chain changed between runs (-first +again):\n%s", diff)
		}
		assert.Equal(t, first.Eval(), again.Eval())
	}
}

// A group with a Use branch is Use wherever that branch sits.
func TestUseBranchIsAbsolute(t *testing.T) {
	branches := []func() *ast.Block{
		func() *ast.Block { return blk(set(name("tau"), num(1))) },
		func() *ast.Block { return blk() },
		func() *ast.Block { return blk(set(name("beta"), num(1))) },
	}
	useBranch := func() *ast.Block { return blk(set(name("beta"), name("tau"))) }

	for pos := 0; pos <= len(branches); pos++ {
		var all []*ast.Block
		for i, mk := range branches {
			if i == pos {
				all = append(all, useBranch())
			}
			all = append(all, mk())
		}
		if pos == len(branches) {
			all = append(all, useBranch())
		}
		stmt := &ast.If{Cond: num(1), Then: all[0], Else: all[len(all)-1]}
		for _, b := range all[1 : len(all)-1] {
			stmt.ElseIfs = append(stmt.ElseIfs, &ast.ElseIf{Cond: num(1), Then: b})
		}
		chain := derivative(blk(stmt), "tau", newScope(t, "tau", "beta"))
		assert.Equal(t, Use, chain.Eval(), "use branch at %d: %s", pos, chain)
	}
}

func TestElseMakesDefinitionTotal(t *testing.T) {
	scope := newScope(t, "tau")
	withElse := blk(&ast.If{
		Cond: num(1),
		Then: blk(set(name("tau"), num(1))),
		Else: blk(set(name("tau"), num(2))),
	})
	assert.Equal(t, Def, derivative(withElse, "tau", scope).Eval())

	withoutElse := blk(&ast.If{Cond: num(1), Then: blk(set(name("tau"), num(1)))})
	assert.Equal(t, ConditionalDef, derivative(withoutElse, "tau", scope).Eval())

	noneBranch := blk(&ast.If{
		Cond:    num(1),
		Then:    blk(set(name("tau"), num(1))),
		ElseIfs: []*ast.ElseIf{{Cond: num(0), Then: blk()}},
		Else:    blk(set(name("tau"), num(2))),
	})
	assert.Equal(t, ConditionalDef, derivative(noneBranch, "tau", scope).Eval())
}

func TestBlockLabel(t *testing.T) {
	tests := map[ast.BlockKind]string{
		ast.KindDerivative: "DerivativeBlock",
		ast.KindNetReceive: "NetReceiveBlock",
		ast.KindNonLinear:  "NonlinearBlock",
		ast.KindInitial:    "InitialBlock",
	}
	for kind, want := range tests {
		if got := BlockLabel(kind); got != want {
			t.Errorf("BlockLabel(%v) = %q, want %q", kind, got, want)
		}
	}
}

func TestAnalyzeBlockLabelsByKind(t *testing.T) {
	scope := newScope(t, "tau")
	tb := &ast.TopBlock{
		Kind:    ast.KindNetReceive,
		Initial: blk(set(name("tau"), num(0))),
		Body:    blk(set(name("tau"), add(name("tau"), num(1)))),
	}
	chain := AnalyzeBlock(tb, "tau", scope)
	assert.Equal(t, `{"NetReceiveBlock":[{"name":"U"},{"name":"D"}]}`, chain.JSON(true))
	assert.Equal(t, Use, chain.Eval())
}
