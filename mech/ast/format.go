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

package ast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Format renders n back as NMODL-like source. It is meant for diagnostics
// and tests, not for round-tripping.
func Format(n Node) string {
	p := &printer{buf: &bytes.Buffer{}}
	switch n := n.(type) {
	case Expr:
		p.expr(n)
	case Stmt:
		p.stmt(n)
	default:
		panic(fmt.Sprintf("ast.Format: unexpected node type %T", n))
	}
	return strings.TrimRight(p.buf.String(), "\n")
}

type printer struct {
	buf    *bytes.Buffer
	indent int
}

func (p *printer) line(format string, args ...any) {
	for range p.indent {
		p.buf.WriteString("    ")
	}
	fmt.Fprintf(p.buf, format, args...)
	p.buf.WriteByte('\n')
}

func (p *printer) block(head string, b *Block) {
	p.line("%s{", head)
	p.indent++
	if b != nil {
		for _, s := range b.Stmts {
			p.stmt(s)
		}
	}
	p.indent--
	p.line("}")
}

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *Block:
		p.block("", s)
	case *ExprStmt:
		p.line("%s", FormatExpr(s.X))
	case *LocalDecl:
		names := make([]string, len(s.Vars))
		for i, v := range s.Vars {
			names[i] = v.Name
			if v.Length > 1 {
				names[i] = fmt.Sprintf("%s[%d]", v.Name, v.Length)
			}
		}
		p.line("LOCAL %s", strings.Join(names, ", "))
	case *If:
		p.line("IF (%s) {", FormatExpr(s.Cond))
		p.body(s.Then)
		for _, ei := range s.ElseIfs {
			p.line("} ELSE IF (%s) {", FormatExpr(ei.Cond))
			p.body(ei.Then)
		}
		if s.Else != nil {
			p.line("} ELSE {")
			p.body(s.Else)
		}
		p.line("}")
	case *While:
		p.block(fmt.Sprintf("WHILE (%s) ", FormatExpr(s.Cond)), s.Body)
	case *For:
		head := fmt.Sprintf("FROM %s = %s TO %s ", s.Var, FormatExpr(s.From), FormatExpr(s.To))
		if s.By != nil {
			head += fmt.Sprintf("BY %s ", FormatExpr(s.By))
		}
		p.block(head, s.Body)
	case *Verbatim:
		p.line("VERBATIM%sENDVERBATIM", s.Text)
	case *Table:
		head := "TABLE " + strings.Join(s.Vars, ", ")
		if len(s.Depends) > 0 {
			head += " DEPEND " + strings.Join(s.Depends, ", ")
		}
		p.line("%s FROM %s TO %s WITH %d", head, FormatExpr(s.From), FormatExpr(s.To), s.With)
	case *Watch:
		parts := make([]string, len(s.Clauses))
		for i, c := range s.Clauses {
			parts[i] = fmt.Sprintf("(%s) %s", FormatExpr(c.Cond), FormatExpr(c.Value))
		}
		p.line("WATCH %s", strings.Join(parts, ", "))
	case *Solve:
		if s.Method != "" {
			p.line("SOLVE %s METHOD %s", s.Block, s.Method)
		} else {
			p.line("SOLVE %s", s.Block)
		}
	case *Opaque:
		args := make([]string, len(s.Exprs))
		for i, e := range s.Exprs {
			args[i] = FormatExpr(e)
		}
		p.line("<%s %s>", s.Form, strings.Join(args, ", "))
	case *LinearSolver:
		p.line("<linear solver N=%d>", s.N)
	case *NonLinearSolver:
		p.line("<nonlinear solver N=%d>", s.N)
	case *DerivImplicitCallback:
		p.line("<derivimplicit %s>", s.Block)
	case *ForNetCon:
		p.block(fmt.Sprintf("FOR_NETCONS(%s) ", strings.Join(s.Params, ", ")), s.Body)
	default:
		panic(fmt.Sprintf("ast.Format: unexpected statement type %T", s))
	}
}

func (p *printer) body(b *Block) {
	p.indent++
	if b != nil {
		for _, s := range b.Stmts {
			p.stmt(s)
		}
	}
	p.indent--
}

func (p *printer) expr(e Expr) {
	p.buf.WriteString(FormatExpr(e))
}

// FormatExpr renders an expression in NMODL syntax.
func FormatExpr(e Expr) string {
	switch e := e.(type) {
	case nil:
		return ""
	case *Name:
		return e.Name
	case *IndexedName:
		return fmt.Sprintf("%s[%s]", e.Name, FormatExpr(e.Index))
	case *QualifiedName:
		return e.Qualifier + "." + e.Name
	case *PrimeName:
		return e.Name + strings.Repeat("'", max(e.Order, 1))
	case *Number:
		if e.Text != "" {
			return e.Text
		}
		return strconv.FormatFloat(e.Value, 'g', -1, 64)
	case *Integer:
		return strconv.Itoa(e.Value)
	case *Boolean:
		return strconv.FormatBool(e.Value)
	case *String:
		return strconv.Quote(e.Value)
	case *Unary:
		return e.Op.String() + FormatExpr(e.X)
	case *Binary:
		return fmt.Sprintf("%s %s %s", FormatExpr(e.Lhs), e.Op, FormatExpr(e.Rhs))
	case *Paren:
		return "(" + FormatExpr(e.X) + ")"
	case *Call:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = FormatExpr(a)
		}
		return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
	default:
		panic(fmt.Sprintf("ast.FormatExpr: unexpected expression type %T", e))
	}
}
