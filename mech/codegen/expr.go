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
	"strconv"
	"strings"

	"github.com/ajroetker/mechgen/mech/ast"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// body prints the statements of b, entering its scope.
func (g *generator) body(b *ast.Block) {
	if b == nil {
		return
	}
	saved := g.fr.scope
	if b.Scope != nil {
		g.fr.scope = b.Scope
	}
	for _, s := range b.Stmts {
		g.stmt(s)
	}
	g.fr.scope = saved
}

func (g *generator) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		g.open("")
		g.body(s)
		g.close("")
	case *ast.ExprStmt:
		g.line(g.expr(s.X) + ";")
	case *ast.LocalDecl:
		g.localDecl(s)
	case *ast.If:
		g.open(fmt.Sprintf("if (%s)", g.expr(s.Cond)))
		g.body(s.Then)
		for _, ei := range s.ElseIfs {
			g.closeOpen(fmt.Sprintf("else if (%s)", g.expr(ei.Cond)))
			g.body(ei.Then)
		}
		if s.Else != nil {
			g.closeOpen("else")
			g.body(s.Else)
		}
		g.close("")
	case *ast.While:
		g.open(fmt.Sprintf("while (%s)", g.expr(s.Cond)))
		g.body(s.Body)
		g.close("")
	case *ast.For:
		step := s.Var + "++"
		if s.By != nil {
			step = fmt.Sprintf("%s += %s", s.Var, g.expr(s.By))
		}
		g.open(fmt.Sprintf("for (int %s = %s; %s <= %s; %s)", s.Var, g.expr(s.From), s.Var, g.expr(s.To), step))
		g.body(s.Body)
		g.close("")
	case *ast.Verbatim:
		g.verbatim(s.Text)
	case *ast.Table, *ast.Solve:
		// Tables are emitted with their function; SOLVE is already lowered.
	case *ast.Watch:
		base := g.watchIndex[s]
		for i := range s.Clauses {
			g.writef("nrn_watch_activate(inst, id, pnodecount, %d, v, watch_remove);\n", base+i)
		}
	case *ast.Opaque:
		fail(g.m.Suffix, CategoryUnsolved, "%s statement reached code generation", s.Form)
	case *ast.LinearSolver:
		g.linearSolver(s)
	case *ast.NonLinearSolver:
		g.nonLinearSolver(s)
	case *ast.DerivImplicitCallback:
		g.writef("%s(%s);\n", g.method(s.Block), "id, pnodecount, data, indexes, thread, nt, ml, v")
	case *ast.ForNetCon:
		g.forNetCon(s)
	default:
		fail(g.m.Suffix, CategoryUnknown, "unexpected statement type %T", s)
	}
}

func (g *generator) localDecl(s *ast.LocalDecl) {
	names := make([]string, len(s.Vars))
	for i, v := range s.Vars {
		if v.Length > 1 {
			names[i] = fmt.Sprintf("%s[%d]", v.Name, v.Length)
		} else {
			names[i] = v.Name
		}
	}
	g.writef("double %s;\n", strings.Join(names, ", "))
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (g *generator) expr(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.Name:
		return g.resolve(e.Name)
	case *ast.IndexedName:
		return fmt.Sprintf("%s[static_cast<int>(%s)]", g.resolve(e.Name), g.expr(e.Index))
	case *ast.QualifiedName:
		return e.Qualifier + "." + e.Name
	case *ast.PrimeName:
		fail(g.m.Suffix, CategoryUnsolved, "derivative %s' was not solved", e.Name)
	case *ast.Number:
		return numberText(e)
	case *ast.Integer:
		return strconv.Itoa(e.Value)
	case *ast.Boolean:
		return strconv.FormatBool(e.Value)
	case *ast.String:
		return strconv.Quote(e.Value)
	case *ast.Unary:
		return e.Op.String() + g.expr(e.X)
	case *ast.Paren:
		return "(" + g.expr(e.X) + ")"
	case *ast.Binary:
		if e.Op == ast.OpPow {
			return fmt.Sprintf("pow(%s, %s)", g.expr(e.Lhs), g.expr(e.Rhs))
		}
		return fmt.Sprintf("%s %s %s", g.expr(e.Lhs), e.Op, g.expr(e.Rhs))
	case *ast.Call:
		return g.call(e)
	default:
		fail(g.m.Suffix, CategoryUnknown, "unexpected expression type %T", e)
	}
	return ""
}

// numberText keeps the source spelling; synthesized numbers always carry a
// decimal point or exponent so they stay floating point in C++.
func numberText(n *ast.Number) string {
	if n.Text != "" {
		return n.Text
	}
	s := strconv.FormatFloat(n.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func (g *generator) call(c *ast.Call) string {
	switch c.Name {
	case "net_send":
		return g.netSendCall(c)
	case "net_move":
		return g.netMoveCall(c)
	case "net_event":
		return g.netEventCall(c)
	}

	args := make([]string, 0, len(c.Args)+1)
	name := c.Name
	switch {
	case g.m.Callable(c.Name) != nil:
		name = g.method(c.Name)
		args = append(args, g.internalArgs())
	case c.Name == "at_time":
		args = append(args, "nt")
	}
	for _, a := range c.Args {
		args = append(args, g.expr(a))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

// ---------------------------------------------------------------------------
// Foreign code
// ---------------------------------------------------------------------------

var verbatimTokenRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*`)

// verbatimNames maps the legacy variable names of foreign code.
var verbatimNames = map[string]string{
	"_nt":           "nt",
	"_p":            "data",
	"_ppvar":        "indexes",
	"_thread":       "thread",
	"_iml":          "id",
	"_cntml_padded": "pnodecount",
	"_cntml":        "nodecount",
	"_tqitem":       "tqitem",
}

func (g *generator) verbatim(text string) {
	g.line("// VERBATIM")
	for _, l := range strings.Split(g.verbatimText(text), "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		g.line(strings.TrimSpace(l))
	}
	g.line("// ENDVERBATIM")
}

// verbatimText renames the identifiers of foreign code to their generated
// counterparts.
func (g *generator) verbatimText(text string) string {
	var sb strings.Builder
	last := 0
	callSeen := false
	for _, loc := range verbatimTokenRe.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		sb.WriteString(text[last:loc[0]])
		last = loc[1]
		if g.m.Callable(token) != nil && strings.HasPrefix(strings.TrimLeft(text[loc[1]:], " \t"), "(") {
			callSeen = true
		}
		sb.WriteString(g.verbatimToken(token, &callSeen))
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func (g *generator) verbatimToken(token string, callSeen *bool) string {
	if g.m.Callable(token) != nil {
		return g.method(token)
	}
	switch token {
	case "_threadargs_":
		if *callSeen {
			*callSeen = false
			return g.internalArgs()
		}
		return g.threadArgs()
	case "_threadargsproto_":
		return g.externalParams(false)
	case "_STRIDE":
		return "pnodecount+id"
	}
	if mapped, ok := verbatimNames[token]; ok {
		if token == "_tqitem" {
			return "&" + g.resolveVerbatim(mapped)
		}
		return mapped
	}
	name := token
	if rest, ok := strings.CutPrefix(token, "_p_"); ok {
		name = rest
	}
	resolved := g.resolveVerbatim(name)
	if resolved == name {
		return token
	}
	return resolved
}

// resolveVerbatim resolves a foreign code name; top-level foreign code has
// no instance to address storage through.
func (g *generator) resolveVerbatim(name string) string {
	if r, ok := g.fr.renames[name]; ok {
		return r
	}
	if g.isLocal(name) {
		return name
	}
	ctx := g.fr.ctx
	ctx.UseInstance = !g.fr.topVerbatim
	return g.res.Resolve(name, ctx)
}

// topVerbatim prints model level foreign code outside the namespace.
func (g *generator) topVerbatim() {
	if len(g.m.TopVerbatim) == 0 {
		return
	}
	g.close("  // namespace coreneuron")
	g.blank()
	g.blank()
	g.line("using namespace coreneuron;")
	g.withFrame(frame{topVerbatim: true}, func() {
		for _, text := range g.m.TopVerbatim {
			g.blank()
			g.blank()
			g.verbatim(text)
		}
	})
	g.blank()
	g.blank()
	g.open("namespace coreneuron")
}
