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

// Package ast defines the symbol-resolved syntax tree of one mechanism model
// as handed over by the front end.
//
// The node set is closed: Node, Expr and Stmt carry unexported marker
// methods, so only this package can add node kinds. Every consumer switches
// over the concrete types and treats an unknown type as an internal error,
// which makes a new node kind fail loudly everywhere it is not handled yet.
package ast

import (
	"fmt"

	"github.com/ajroetker/mechgen/mech/symtab"
)

// Node is any syntax tree node.
type Node interface {
	node()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// BinaryOp is a binary operator. OpAssign is an expression in the grammar.
type BinaryOp int

const (
	OpAssign BinaryOp = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpLT
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
	OpAnd
	OpOr
)

var binaryOpText = [...]string{"=", "+", "-", "*", "/", "^", "<", "<=", ">", ">=", "==", "!=", "&&", "||"}

// String returns the source spelling of the operator.
func (op BinaryOp) String() string {
	if int(op) < len(binaryOpText) {
		return binaryOpText[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// ParseBinaryOp maps a source spelling to a BinaryOp.
func ParseBinaryOp(s string) (BinaryOp, error) {
	for i, t := range binaryOpText {
		if t == s {
			return BinaryOp(i), nil
		}
	}
	return 0, fmt.Errorf("unknown binary operator %q", s)
}

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

// String returns the source spelling of the operator.
func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpNot:
		return "!"
	default:
		return fmt.Sprintf("UnaryOp(%d)", int(op))
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Name is a plain variable reference.
type Name struct {
	Name string
}

// IndexedName is an array element reference, name[index].
type IndexedName struct {
	Name  string
	Index Expr
}

// QualifiedName is a member reference into an external namespace,
// qualifier.name. It never names a model variable.
type QualifiedName struct {
	Qualifier string
	Name      string
}

// PrimeName is a derivative reference x'. It must have been lowered by the
// solver passes before code generation.
type PrimeName struct {
	Name  string
	Order int
}

// Number is a floating point literal. Text keeps the source spelling.
type Number struct {
	Text  string
	Value float64
}

// Integer is an integer literal.
type Integer struct {
	Value int
}

// Boolean is a boolean literal.
type Boolean struct {
	Value bool
}

// String is a string literal (only allowed as a call argument).
type String struct {
	Value string
}

// Unary is a unary expression.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// Binary is a binary expression, including assignment.
type Binary struct {
	Op  BinaryOp
	Lhs Expr
	Rhs Expr
}

// Paren is a parenthesized expression.
type Paren struct {
	X Expr
}

// Call is a function call. Event calls (net_send, net_event, net_move) are
// also represented as calls.
type Call struct {
	Name string
	Args []Expr
}

func (*Name) node()          {}
func (*IndexedName) node()   {}
func (*QualifiedName) node() {}
func (*PrimeName) node()     {}
func (*Number) node()        {}
func (*Integer) node()       {}
func (*Boolean) node()       {}
func (*String) node()        {}
func (*Unary) node()         {}
func (*Binary) node()        {}
func (*Paren) node()         {}
func (*Call) node()          {}

func (*Name) expr()          {}
func (*IndexedName) expr()   {}
func (*QualifiedName) expr() {}
func (*PrimeName) expr()     {}
func (*Number) expr()        {}
func (*Integer) expr()       {}
func (*Boolean) expr()       {}
func (*String) expr()        {}
func (*Unary) expr()         {}
func (*Binary) expr()        {}
func (*Paren) expr()         {}
func (*Call) expr()          {}

// IsAssign reports whether e is an assignment expression.
func IsAssign(e Expr) bool {
	b, ok := e.(*Binary)
	return ok && b.Op == OpAssign
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Block is a statement block with its own scope. Scope may be nil for
// blocks that declare nothing; the localization pass creates it on demand.
type Block struct {
	Stmts []Stmt
	Scope *symtab.Scope
}

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	X Expr
}

// LocalVar is one entry of a LOCAL statement.
type LocalVar struct {
	Name   string
	Length int
}

// LocalDecl is a LOCAL statement.
type LocalDecl struct {
	Vars []LocalVar
}

// ElseIf is one ELSE IF branch.
type ElseIf struct {
	Cond Expr
	Then *Block
}

// If is an IF statement with optional ELSE IF branches and ELSE.
type If struct {
	Cond    Expr
	Then    *Block
	ElseIfs []*ElseIf
	Else    *Block
}

// While is a WHILE loop.
type While struct {
	Cond Expr
	Body *Block
}

// For is a counted FROM i = a TO b BY c loop. By may be nil.
type For struct {
	Var  string
	From Expr
	To   Expr
	By   Expr
	Body *Block
}

// Verbatim is inline foreign code.
type Verbatim struct {
	Text string
}

// Table is a TABLE statement.
type Table struct {
	Vars    []string
	Depends []string
	From    Expr
	To      Expr
	With    int
}

// WatchClause is one (condition) value pair of a WATCH statement.
type WatchClause struct {
	Cond  Expr
	Value Expr
}

// Watch is a WATCH statement inside NET_RECEIVE or INITIAL.
type Watch struct {
	Clauses []WatchClause
}

// Solve is a SOLVE statement. It is kept for block discovery; the solver
// passes have already produced the lowered state update.
type Solve struct {
	Block  string
	Method string
}

// OpaqueForm names grammar constructs the analysis does not look into.
type OpaqueForm int

const (
	OpaqueReaction OpaqueForm = iota
	OpaqueLinEquation
	OpaqueNonLinEquation
	OpaqueConserve
	OpaquePartialBoundary
	OpaqueCompartment
	OpaqueLag
)

var opaqueNames = [...]string{"reaction", "lin-equation", "nonlin-equation", "conserve", "partial-boundary", "compartment", "lag"}

// String returns the form name.
func (f OpaqueForm) String() string {
	if int(f) < len(opaqueNames) {
		return opaqueNames[f]
	}
	return fmt.Sprintf("OpaqueForm(%d)", int(f))
}

// ParseOpaqueForm maps a form name to an OpaqueForm.
func ParseOpaqueForm(s string) (OpaqueForm, error) {
	for i, n := range opaqueNames {
		if n == s {
			return OpaqueForm(i), nil
		}
	}
	return 0, fmt.Errorf("unknown opaque form %q", s)
}

// Opaque is a construct such as a kinetic reaction or a CONSERVE statement
// whose semantics are resolved by the solver passes. Exprs lists the
// expressions it references.
type Opaque struct {
	Form  OpaqueForm
	Exprs []Expr
}

// LinearSolver is an already lowered linear system of size N solved in
// place: X = J^-1 F.
type LinearSolver struct {
	N            int
	Variables    *Block
	Initialize   *Block
	SetupX       *Block
	UpdateStates *Block
	Finalize     *Block
}

// NonLinearSolver is an already lowered nonlinear system of size N solved
// by Newton iteration. Functor computes the residual F and Jacobian J.
type NonLinearSolver struct {
	N            int
	Variables    *Block
	Initialize   *Block
	SetupX       *Block
	Functor      *Block
	UpdateStates *Block
	Finalize     *Block
}

// DerivImplicitCallback invokes the Newton kernel generated for a
// DERIVATIVE block solved with the derivimplicit method.
type DerivImplicitCallback struct {
	Block string
}

// ForNetCon is a FOR_NETCONS loop inside NET_RECEIVE.
type ForNetCon struct {
	Params []string
	Body   *Block
}

func (*Block) node()                 {}
func (*ExprStmt) node()              {}
func (*LocalDecl) node()             {}
func (*If) node()                    {}
func (*While) node()                 {}
func (*For) node()                   {}
func (*Verbatim) node()              {}
func (*Table) node()                 {}
func (*Watch) node()                 {}
func (*Solve) node()                 {}
func (*Opaque) node()                {}
func (*LinearSolver) node()          {}
func (*NonLinearSolver) node()       {}
func (*DerivImplicitCallback) node() {}
func (*ForNetCon) node()             {}

func (*Block) stmt()                 {}
func (*ExprStmt) stmt()              {}
func (*LocalDecl) stmt()             {}
func (*If) stmt()                    {}
func (*While) stmt()                 {}
func (*For) stmt()                   {}
func (*Verbatim) stmt()              {}
func (*Table) stmt()                 {}
func (*Watch) stmt()                 {}
func (*Solve) stmt()                 {}
func (*Opaque) stmt()                {}
func (*LinearSolver) stmt()          {}
func (*NonLinearSolver) stmt()       {}
func (*DerivImplicitCallback) stmt() {}
func (*ForNetCon) stmt()             {}

// NewBlock creates a block with a fresh scope nested in parent.
func NewBlock(parent *symtab.Scope, stmts ...Stmt) *Block {
	b := &Block{Stmts: stmts}
	if parent != nil {
		b.Scope = parent.NewChild()
	}
	return b
}

// EnsureScope returns the block scope, creating it under parent if needed.
func (b *Block) EnsureScope(parent *symtab.Scope) *symtab.Scope {
	if b.Scope == nil {
		b.Scope = parent.NewChild()
	}
	return b.Scope
}
