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
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// Option configures one analysis.
type Option func(*analyzer)

// WithIgnoreVerbatim stops VERBATIM blocks from counting as a use.
func WithIgnoreVerbatim() Option {
	return func(a *analyzer) { a.ignoreVerbatim = true }
}

// WithName sets the chain label.
func WithName(name string) Option {
	return func(a *analyzer) { a.chainName = name }
}

// analyzer holds the traversal state of one Analyze call.
type analyzer struct {
	chainName      string
	ignoreVerbatim bool

	// variable as requested, and split into base name and constant index.
	variable string
	base     string
	index    int
	indexed  bool

	scope *symtab.Scope
	chain *[]Instance

	// lhs is set while visiting an assignment target.
	lhs bool
	// opaque is set inside constructs the analysis does not look into.
	opaque bool
	// stmt is the outermost expression of the current statement.
	stmt ast.Expr
}

// Analyze builds the def-use chain of variable in block. scope is the scope
// enclosing the block; nested block scopes are followed as the traversal
// descends. variable may carry a constant index, as in "m[1]".
//
// Analyze never fails: constructs the analysis cannot see through
// conservatively record a Use. It panics on a node type it does not know.
func Analyze(block *ast.Block, variable string, scope *symtab.Scope, opts ...Option) Chain {
	a := &analyzer{chainName: "StatementBlock", variable: variable, scope: scope}
	for _, opt := range opts {
		opt(a)
	}
	a.base = variable
	if name, rest, ok := strings.Cut(variable, "["); ok {
		if idx, err := strconv.Atoi(strings.TrimSuffix(rest, "]")); err == nil {
			a.base, a.index, a.indexed = name, idx, true
		}
	}

	chain := Chain{Name: a.chainName, Variable: variable}
	if scope != nil {
		sym := scope.Lookup(a.base)
		chain.Local = sym == nil || sym.IsLocal()
	}
	a.chain = &chain.Instances
	a.block(block)
	return chain
}

// AnalyzeBlock analyzes the body of a top-level block, labeling the chain
// after its kind (INITIAL becomes "InitialBlock").
func AnalyzeBlock(tb *ast.TopBlock, variable string, scope *symtab.Scope, opts ...Option) Chain {
	opts = append([]Option{WithName(BlockLabel(tb.Kind))}, opts...)
	return Analyze(tb.Body, variable, scope, opts...)
}

var titleCaser = cases.Title(language.English)

// BlockLabel returns the CamelCase label of a block kind, "NetReceiveBlock"
// for NET_RECEIVE.
func BlockLabel(kind ast.BlockKind) string {
	var sb strings.Builder
	for _, part := range strings.Split(strings.ToLower(kind.String()), "_") {
		sb.WriteString(titleCaser.String(part))
	}
	sb.WriteString("Block")
	return sb.String()
}

// sub runs f with a fresh chain and returns what it collected.
func (a *analyzer) sub(f func()) []Instance {
	saved := a.chain
	var out []Instance
	a.chain = &out
	f()
	a.chain = saved
	return out
}

func (a *analyzer) push(s State) {
	*a.chain = append(*a.chain, Instance{State: s, Expr: a.stmt})
}

// withOpaque visits f with every matching reference recorded as a Use.
func (a *analyzer) withOpaque(f func()) {
	saved := a.opaque
	a.opaque = true
	f()
	a.opaque = saved
}

func (a *analyzer) block(b *ast.Block) {
	if b == nil {
		return
	}
	saved := a.scope
	if b.Scope != nil {
		a.scope = b.Scope
	}
	for _, s := range b.Stmts {
		a.statement(s)
	}
	a.scope = saved
}

func (a *analyzer) statement(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		a.block(s)
	case *ast.ExprStmt:
		a.stmt = s.X
		a.expr(s.X)
		a.stmt = nil
	case *ast.LocalDecl, *ast.Solve, *ast.DerivImplicitCallback:
	case *ast.If:
		a.ifStatement(s)
	case *ast.While:
		a.condition(s.Cond)
		a.block(s.Body)
	case *ast.For:
		a.withOpaque(func() {
			a.reference(s.Var, false)
			a.condition(s.From)
			a.condition(s.To)
			if s.By != nil {
				a.condition(s.By)
			}
			a.block(s.Body)
		})
	case *ast.Verbatim:
		if !a.ignoreVerbatim {
			a.push(Use)
		}
	case *ast.Table:
		for _, name := range s.Vars {
			a.reference(name, false)
		}
		for _, name := range s.Depends {
			a.reference(name, false)
		}
		a.condition(s.From)
		a.condition(s.To)
	case *ast.Watch:
		for _, c := range s.Clauses {
			a.condition(c.Cond)
			a.condition(c.Value)
		}
	case *ast.Opaque:
		a.withOpaque(func() {
			for _, e := range s.Exprs {
				a.condition(e)
			}
		})
	case *ast.LinearSolver:
		for _, b := range []*ast.Block{s.Variables, s.Initialize, s.SetupX, s.UpdateStates, s.Finalize} {
			a.block(b)
		}
	case *ast.NonLinearSolver:
		for _, b := range []*ast.Block{s.Variables, s.Initialize, s.SetupX, s.Functor, s.UpdateStates, s.Finalize} {
			a.block(b)
		}
	case *ast.ForNetCon:
		a.block(s.Body)
	default:
		panic(fmt.Sprintf("defuse: unexpected statement type %T", s))
	}
}

// condition visits an expression that forms its own statement context.
func (a *analyzer) condition(e ast.Expr) {
	saved := a.stmt
	a.stmt = e
	a.expr(e)
	a.stmt = saved
}

func (a *analyzer) ifStatement(s *ast.If) {
	group := Instance{State: ConditionalGroup, Expr: a.stmt}
	group.Children = a.sub(func() {
		then := Instance{State: If}
		then.Children = a.sub(func() {
			a.condition(s.Cond)
			a.block(s.Then)
		})
		*a.chain = append(*a.chain, then)
		for _, ei := range s.ElseIfs {
			branch := Instance{State: ElseIf}
			branch.Children = a.sub(func() {
				a.condition(ei.Cond)
				a.block(ei.Then)
			})
			*a.chain = append(*a.chain, branch)
		}
		if s.Else != nil {
			branch := Instance{State: Else}
			branch.Children = a.sub(func() { a.block(s.Else) })
			*a.chain = append(*a.chain, branch)
		}
	})
	*a.chain = append(*a.chain, group)
}

func (a *analyzer) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.Name:
		a.reference(e.Name, a.lhs)
	case *ast.IndexedName:
		target := a.lhs
		if idx, ok := e.Index.(*ast.Integer); ok {
			if !a.indexed || idx.Value == a.index {
				a.reference(e.Name, target)
			}
		} else {
			// Unknown index: any element may be touched.
			a.reference(e.Name, target)
		}
		a.lhs = false
		a.expr(e.Index)
		a.lhs = target
	case *ast.QualifiedName, *ast.PrimeName, *ast.Number, *ast.Integer, *ast.Boolean, *ast.String:
	case *ast.Unary:
		a.expr(e.X)
	case *ast.Paren:
		a.expr(e.X)
	case *ast.Binary:
		a.expr(e.Rhs)
		saved := a.lhs
		if e.Op == ast.OpAssign {
			a.lhs = true
		}
		a.expr(e.Lhs)
		a.lhs = saved
	case *ast.Call:
		visitArgs := func() {
			for _, arg := range e.Args {
				a.expr(arg)
			}
		}
		if a.isModelCallable(e.Name) {
			a.withOpaque(visitArgs)
		} else {
			visitArgs()
		}
	default:
		panic(fmt.Sprintf("defuse: unexpected expression type %T", e))
	}
}

// isModelCallable reports whether name is a FUNCTION or PROCEDURE of the
// model that was not inlined.
func (a *analyzer) isModelCallable(name string) bool {
	if a.scope == nil {
		return false
	}
	sym := a.scope.Lookup(name)
	return sym != nil && sym.Tags.Any(symtab.Function|symtab.Procedure) && !sym.Tags.Has(symtab.External)
}

// reference records an access to name when it is the analyzed variable.
func (a *analyzer) reference(name string, target bool) {
	if name == a.base {
		a.record(target)
	}
}

func (a *analyzer) record(target bool) {
	local := false
	if a.scope != nil {
		if sym := a.scope.Lookup(a.base); sym != nil {
			local = sym.IsLocal()
		}
	}
	switch {
	case a.opaque:
		a.push(Use)
	case target && local:
		a.push(LocalDef)
	case target:
		a.push(Def)
	case local:
		a.push(LocalUse)
	default:
		a.push(Use)
	}
}
