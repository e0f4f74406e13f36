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
	"encoding/json"
	"fmt"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// stmtJSON is the union of every statement kind's fields.
type stmtJSON struct {
	Kind string `json:"kind"`

	// expr, assign
	Expr json.RawMessage `json:"expr"`
	Lhs  json.RawMessage `json:"lhs"`
	Rhs  json.RawMessage `json:"rhs"`

	// local
	Vars []localJSON `json:"vars"`

	// if, while, for, block, for_netcon
	Cond    json.RawMessage   `json:"cond"`
	Then    []json.RawMessage `json:"then"`
	ElseIfs []elseIfJSON      `json:"else_ifs"`
	Else    []json.RawMessage `json:"else"`
	Body    []json.RawMessage `json:"body"`
	Var     string            `json:"var"`
	From    json.RawMessage   `json:"from"`
	To      json.RawMessage   `json:"to"`
	By      json.RawMessage   `json:"by"`

	// verbatim
	Text string `json:"text"`

	// table
	Names   []string `json:"names"`
	Depends []string `json:"depends"`
	With    int      `json:"with"`

	// watch
	Clauses []clauseJSON `json:"clauses"`

	// solve, derivimplicit
	Block  string `json:"block"`
	Method string `json:"method"`

	// opaque
	Form  string            `json:"form"`
	Exprs []json.RawMessage `json:"exprs"`

	// linear_solver, nonlinear_solver
	N            int               `json:"n"`
	Variables    []json.RawMessage `json:"variables"`
	Initialize   []json.RawMessage `json:"initialize"`
	SetupX       []json.RawMessage `json:"setup_x"`
	Functor      []json.RawMessage `json:"functor"`
	UpdateStates []json.RawMessage `json:"update_states"`
	Finalize     []json.RawMessage `json:"finalize"`

	// for_netcon
	Params []string `json:"params"`
}

type localJSON struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

type elseIfJSON struct {
	Cond json.RawMessage   `json:"cond"`
	Then []json.RawMessage `json:"then"`
}

type clauseJSON struct {
	Cond  json.RawMessage `json:"cond"`
	Value json.RawMessage `json:"value"`
}

func (d *decoder) stmt(raw json.RawMessage) (ast.Stmt, error) {
	var s stmtJSON
	if err := strict(raw, &s); err != nil {
		return nil, err
	}
	switch s.Kind {
	case "expr":
		x, err := d.expr(s.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{X: x}, nil
	case "assign":
		lhs, err := d.expr(s.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := d.expr(s.Rhs)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{X: &ast.Binary{Op: ast.OpAssign, Lhs: lhs, Rhs: rhs}}, nil
	case "local":
		return d.local(s.Vars)
	case "if":
		return d.ifStmt(&s)
	case "while":
		cond, err := d.expr(s.Cond)
		if err != nil {
			return nil, err
		}
		b, err := d.block(nonNil(s.Body))
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: cond, Body: b}, nil
	case "for":
		return d.forStmt(&s)
	case "block":
		return d.block(nonNil(s.Body))
	case "verbatim":
		return &ast.Verbatim{Text: s.Text}, nil
	case "table":
		from, err := d.expr(s.From)
		if err != nil {
			return nil, err
		}
		to, err := d.expr(s.To)
		if err != nil {
			return nil, err
		}
		if s.With <= 0 {
			return nil, fmt.Errorf("table needs a positive WITH, got %d", s.With)
		}
		return &ast.Table{Vars: s.Names, Depends: s.Depends, From: from, To: to, With: s.With}, nil
	case "watch":
		w := &ast.Watch{}
		for _, c := range s.Clauses {
			cond, err := d.expr(c.Cond)
			if err != nil {
				return nil, err
			}
			value, err := d.expr(c.Value)
			if err != nil {
				return nil, err
			}
			w.Clauses = append(w.Clauses, ast.WatchClause{Cond: cond, Value: value})
		}
		return w, nil
	case "solve":
		return &ast.Solve{Block: s.Block, Method: s.Method}, nil
	case "opaque":
		form, err := ast.ParseOpaqueForm(s.Form)
		if err != nil {
			return nil, err
		}
		exprs, err := d.exprs(s.Exprs)
		if err != nil {
			return nil, err
		}
		return &ast.Opaque{Form: form, Exprs: exprs}, nil
	case "linear_solver":
		return d.linearSolver(&s)
	case "nonlinear_solver":
		return d.nonLinearSolver(&s)
	case "derivimplicit":
		return &ast.DerivImplicitCallback{Block: s.Block}, nil
	case "for_netcon":
		b, err := d.block(nonNil(s.Body))
		if err != nil {
			return nil, err
		}
		return &ast.ForNetCon{Params: s.Params, Body: b}, nil
	case "":
		return nil, fmt.Errorf("statement without kind")
	default:
		return nil, fmt.Errorf("unknown statement kind %q", s.Kind)
	}
}

// nonNil turns an absent statement list into an empty one, for statements
// whose body is mandatory.
func nonNil(raw []json.RawMessage) []json.RawMessage {
	if raw == nil {
		return []json.RawMessage{}
	}
	return raw
}

// local defines the declared names in the enclosing block scope.
func (d *decoder) local(vars []localJSON) (ast.Stmt, error) {
	decl := &ast.LocalDecl{}
	for _, v := range vars {
		length := max(v.Length, 1)
		if _, err := d.scope.Define(symtab.Symbol{Name: v.Name, Length: length, Tags: symtab.Local}); err != nil {
			return nil, err
		}
		decl.Vars = append(decl.Vars, ast.LocalVar{Name: v.Name, Length: length})
	}
	return decl, nil
}

func (d *decoder) ifStmt(s *stmtJSON) (ast.Stmt, error) {
	cond, err := d.expr(s.Cond)
	if err != nil {
		return nil, err
	}
	then, err := d.block(nonNil(s.Then))
	if err != nil {
		return nil, err
	}
	out := &ast.If{Cond: cond, Then: then}
	for _, ei := range s.ElseIfs {
		c, err := d.expr(ei.Cond)
		if err != nil {
			return nil, err
		}
		b, err := d.block(nonNil(ei.Then))
		if err != nil {
			return nil, err
		}
		out.ElseIfs = append(out.ElseIfs, &ast.ElseIf{Cond: c, Then: b})
	}
	if out.Else, err = d.block(s.Else); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *decoder) forStmt(s *stmtJSON) (ast.Stmt, error) {
	if s.Var == "" {
		return nil, fmt.Errorf("for loop without variable")
	}
	from, err := d.expr(s.From)
	if err != nil {
		return nil, err
	}
	to, err := d.expr(s.To)
	if err != nil {
		return nil, err
	}
	out := &ast.For{Var: s.Var, From: from, To: to}
	if s.By != nil {
		if out.By, err = d.expr(s.By); err != nil {
			return nil, err
		}
	}
	out.Body, err = d.block(nonNil(s.Body))
	return out, err
}

type solverPart struct {
	dst **ast.Block
	src []json.RawMessage
}

// solverBlocks decodes the sibling blocks of a lowered solver.
// The variables block scope encloses the others so its locals stay
// visible.
func (d *decoder) solverBlocks(s *stmtJSON, variables **ast.Block, parts ...solverPart) error {
	if s.N <= 0 {
		return fmt.Errorf("%s needs a positive size, got %d", s.Kind, s.N)
	}
	vars, err := d.block(nonNil(s.Variables))
	if err != nil {
		return err
	}
	*variables = vars
	outer := d.scope
	d.scope = vars.Scope
	defer func() { d.scope = outer }()
	for _, p := range parts {
		if *p.dst, err = d.block(p.src); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) linearSolver(s *stmtJSON) (ast.Stmt, error) {
	if s.Functor != nil {
		return nil, fmt.Errorf("linear_solver has no functor")
	}
	ls := &ast.LinearSolver{N: s.N}
	err := d.solverBlocks(s, &ls.Variables,
		solverPart{&ls.Initialize, s.Initialize},
		solverPart{&ls.SetupX, s.SetupX},
		solverPart{&ls.UpdateStates, s.UpdateStates},
		solverPart{&ls.Finalize, s.Finalize},
	)
	if err != nil {
		return nil, err
	}
	return ls, nil
}

func (d *decoder) nonLinearSolver(s *stmtJSON) (ast.Stmt, error) {
	if s.Functor == nil {
		return nil, fmt.Errorf("nonlinear_solver without functor")
	}
	ns := &ast.NonLinearSolver{N: s.N}
	err := d.solverBlocks(s, &ns.Variables,
		solverPart{&ns.Initialize, s.Initialize},
		solverPart{&ns.SetupX, s.SetupX},
		solverPart{&ns.Functor, s.Functor},
		solverPart{&ns.UpdateStates, s.UpdateStates},
		solverPart{&ns.Finalize, s.Finalize},
	)
	if err != nil {
		return nil, err
	}
	return ns, nil
}
