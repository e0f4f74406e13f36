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

// Package defuse builds and evaluates def-use chains: for one variable and
// one statement block, the ordered list of its uses and definitions shaped
// after the block's control flow.
//
// Evaluation answers a single question: is the first effective access to the
// variable in the block a read (Use), a write on every path (Def), a write
// on some paths (ConditionalDef), or absent (None)? A Use in any branch of a
// conditional is absolute. A Def is only upgraded from ConditionalDef when
// the conditional has an ELSE and no branch leaves the variable untouched;
// there is deliberately no finer reasoning about a Def preceding a Use inside
// one branch.
package defuse

import (
	"encoding/json"
	"fmt"

	"github.com/ajroetker/mechgen/mech/ast"
)

// State is the state of a chain entry or the result of an evaluation.
type State int

const (
	// None means the variable is not accessed.
	None State = iota
	// Use is a read of a non-local variable.
	Use
	// Def is a write of a non-local variable.
	Def
	// ConditionalDef is a write on some but not all paths.
	ConditionalDef
	// LocalUse is a read of a local or argument.
	LocalUse
	// LocalDef is a write of a local or argument.
	LocalDef
	// ConditionalGroup holds the branches of one IF statement.
	ConditionalGroup
	// If is the IF branch (condition and then-block) of a group.
	If
	// ElseIf is one ELSE IF branch of a group.
	ElseIf
	// Else is the ELSE branch of a group.
	Else
)

// String returns the short state names used in chain dumps.
func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case Use:
		return "U"
	case Def:
		return "D"
	case ConditionalDef:
		return "CD"
	case LocalUse:
		return "LU"
	case LocalDef:
		return "LD"
	case ConditionalGroup:
		return "CONDITIONAL_BLOCK"
	case If:
		return "IF"
	case ElseIf:
		return "ELSEIF"
	case Else:
		return "ELSE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Instance is one chain entry: a leaf access or a compound node holding
// nested chains.
type Instance struct {
	State    State
	Children []Instance

	// Expr is the outermost expression enclosing the access, nil for
	// verbatim code and compound entries.
	Expr ast.Expr
}

// Chain is the def-use chain of one variable in one block.
type Chain struct {
	// Name labels the analyzed block, e.g. "DerivativeBlock".
	Name string

	// Variable is the analyzed variable, possibly with a constant index.
	Variable string

	// Local is set when the variable itself is a local or argument at the
	// top of the analyzed block (or unknown there). Local chains evaluate
	// LocalUse and LocalDef like Use and Def.
	Local bool

	Instances []Instance
}

// Eval returns the effective access of the variable: None, Use, Def,
// ConditionalDef, or for local chains LocalUse or LocalDef.
func (c Chain) Eval() State {
	return evalChain(c.Instances, c.Local)
}

func isUse(s State, local bool) bool {
	return s == Use || (local && s == LocalUse)
}

func isDef(s State, local bool) bool {
	return s == Def || (local && s == LocalDef)
}

// evalChain returns the first Use or Def; ConditionalDef is kept while the
// scan continues, so a later entry may still override it.
func evalChain(insts []Instance, local bool) State {
	result := None
	for _, inst := range insts {
		s := inst.eval(local)
		if isUse(s, local) || isDef(s, local) {
			return s
		}
		if s == ConditionalDef {
			result = ConditionalDef
		}
	}
	return result
}

func (inst Instance) eval(local bool) State {
	switch inst.State {
	case If, ElseIf, Else:
		return evalChain(inst.Children, local)
	case ConditionalGroup:
		return inst.evalGroup(local)
	default:
		return inst.State
	}
}

// evalGroup evaluates the branches of one IF statement.
func (inst Instance) evalGroup(local bool) State {
	result := None
	sawNone := false
	for _, branch := range inst.Children {
		s := branch.eval(local)
		if isUse(s, local) {
			return s
		}
		if s == None {
			sawNone = true
		}
		if isDef(s, local) || s == ConditionalDef {
			result = ConditionalDef
			if branch.State == Else && !sawNone {
				if local {
					return LocalDef
				}
				return Def
			}
		}
	}
	return result
}

// jsonNode renders one instance the way chain dumps expect: leaves and
// childless compounds as {"name":"<STATE>"}, compounds as {"<STATE>":[...]}.
func (inst Instance) jsonNode() map[string]any {
	if len(inst.Children) == 0 {
		return map[string]any{"name": inst.State.String()}
	}
	children := make([]map[string]any, len(inst.Children))
	for i, c := range inst.Children {
		children[i] = c.jsonNode()
	}
	return map[string]any{inst.State.String(): children}
}

// JSON renders the chain as {"<Name>":[...]}. compact drops whitespace;
// otherwise the output is indented by two spaces.
func (c Chain) JSON(compact bool) string {
	children := make([]map[string]any, len(c.Instances))
	for i, inst := range c.Instances {
		children[i] = inst.jsonNode()
	}
	doc := map[string]any{c.Name: children}
	var (
		out []byte
		err error
	)
	if compact {
		out, err = json.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		// Only strings and slices of maps are marshaled.
		panic(fmt.Sprintf("defuse: marshal chain: %v", err))
	}
	return string(out)
}

func (c Chain) String() string {
	return c.JSON(true)
}
