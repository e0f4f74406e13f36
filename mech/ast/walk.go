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

import "fmt"

// Inspect traverses the tree rooted at n in depth-first source order. It
// calls f(node) for every node; children are visited only when f returns
// true. Nil blocks and expressions are skipped.
//
// An unknown node type panics: the node set is closed.
func Inspect(n Node, f func(Node) bool) {
	if isNil(n) || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if !isNil(c) {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *Name, *QualifiedName, *PrimeName, *Number, *Integer, *Boolean, *String,
		*Verbatim, *Solve, *DerivImplicitCallback, *LocalDecl:
	case *IndexedName:
		add(n.Index)
	case *Unary:
		add(n.X)
	case *Binary:
		add(n.Lhs, n.Rhs)
	case *Paren:
		add(n.X)
	case *Call:
		for _, a := range n.Args {
			add(a)
		}
	case *Block:
		for _, s := range n.Stmts {
			add(s)
		}
	case *ExprStmt:
		add(n.X)
	case *If:
		add(n.Cond, n.Then)
		for _, ei := range n.ElseIfs {
			add(ei.Cond, ei.Then)
		}
		add(n.Else)
	case *While:
		add(n.Cond, n.Body)
	case *For:
		add(n.From, n.To, n.By, n.Body)
	case *Table:
		add(n.From, n.To)
	case *Watch:
		for _, c := range n.Clauses {
			add(c.Cond, c.Value)
		}
	case *Opaque:
		for _, e := range n.Exprs {
			add(e)
		}
	case *LinearSolver:
		add(n.Variables, n.Initialize, n.SetupX, n.UpdateStates, n.Finalize)
	case *NonLinearSolver:
		add(n.Variables, n.Initialize, n.SetupX, n.Functor, n.UpdateStates, n.Finalize)
	case *ForNetCon:
		add(n.Body)
	default:
		panic(fmt.Sprintf("ast: unexpected node type %T", n))
	}
	return out
}

// isNil reports whether n is nil. Optional blocks are typed nil pointers.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	b, ok := n.(*Block)
	return ok && b == nil
}

// Find returns every node under n for which pred holds, in source order.
func Find[T Node](n Node, pred func(T) bool) []T {
	var out []T
	Inspect(n, func(c Node) bool {
		if t, ok := c.(T); ok && (pred == nil || pred(t)) {
			out = append(out, t)
		}
		return true
	})
	return out
}

// Uses reports whether n references the variable name anywhere, including
// array element and derivative references.
func Uses(n Node, name string) bool {
	found := false
	Inspect(n, func(c Node) bool {
		if found {
			return false
		}
		switch c := c.(type) {
		case *Name:
			found = c.Name == name
		case *IndexedName:
			found = c.Name == name
		case *PrimeName:
			found = c.Name == name
		}
		return !found
	})
	return found
}
