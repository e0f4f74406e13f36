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
	"strings"
	"testing"
)

func assign(lhs string, rhs Expr) Stmt {
	return &ExprStmt{X: &Binary{Op: OpAssign, Lhs: &Name{Name: lhs}, Rhs: rhs}}
}

func TestInspectOrder(t *testing.T) {
	// IF (v > 0) { x = 1 } ELSE { x = y }
	stmt := &If{
		Cond: &Binary{Op: OpGT, Lhs: &Name{Name: "v"}, Rhs: &Integer{Value: 0}},
		Then: &Block{Stmts: []Stmt{assign("x", &Integer{Value: 1})}},
		Else: &Block{Stmts: []Stmt{assign("x", &Name{Name: "y"})}},
	}
	var names []string
	Inspect(stmt, func(n Node) bool {
		if nm, ok := n.(*Name); ok {
			names = append(names, nm.Name)
		}
		return true
	})
	got := strings.Join(names, ",")
	if want := "v,x,x,y"; got != want {
		t.Errorf("Inspect names = %q, want %q", got, want)
	}
}

func TestInspectSkipsNilBlocks(t *testing.T) {
	stmt := &If{Cond: &Boolean{Value: true}, Then: &Block{}}
	count := 0
	Inspect(stmt, func(Node) bool { count++; return true })
	if count != 3 {
		t.Errorf("Inspect visited %d nodes, want 3", count)
	}
}

func TestUses(t *testing.T) {
	body := &Block{Stmts: []Stmt{
		assign("a", &IndexedName{Name: "m", Index: &Integer{Value: 1}}),
		&ExprStmt{X: &Call{Name: "f", Args: []Expr{&PrimeName{Name: "s", Order: 1}}}},
	}}
	tests := []struct {
		name string
		want bool
	}{
		{"a", true},
		{"m", true},
		{"s", true},
		{"f", false},
		{"z", false},
	}
	for _, tt := range tests {
		if got := Uses(body, tt.name); got != tt.want {
			t.Errorf("Uses(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	stmt := &If{
		Cond:    &Binary{Op: OpLT, Lhs: &Name{Name: "v"}, Rhs: &Unary{Op: OpNeg, X: &Number{Text: "65"}}},
		Then:    &Block{Stmts: []Stmt{assign("x", &Integer{Value: 1})}},
		ElseIfs: []*ElseIf{{Cond: &Boolean{Value: false}, Then: &Block{}}},
		Else:    &Block{Stmts: []Stmt{&LocalDecl{Vars: []LocalVar{{Name: "q", Length: 2}}}}},
	}
	want := strings.Join([]string{
		"IF (v < -65) {",
		"    x = 1",
		"} ELSE IF (false) {",
		"} ELSE {",
		"    LOCAL q[2]",
		"}",
	}, "\n")
	if got := Format(stmt); got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}
}

func TestParseBlockKind(t *testing.T) {
	for _, s := range []string{"INITIAL", "net_receive", "Derivative"} {
		k, err := ParseBlockKind(s)
		if err != nil {
			t.Fatalf("ParseBlockKind(%q): %v", s, err)
		}
		if !strings.EqualFold(k.String(), s) {
			t.Errorf("ParseBlockKind(%q) = %v", s, k)
		}
	}
	if _, err := ParseBlockKind("KINETIC_X"); err == nil {
		t.Error("ParseBlockKind(KINETIC_X) succeeded, want error")
	}
}

func TestIonPredicates(t *testing.T) {
	na := Ion{Name: "na", Reads: []string{"ena"}, Writes: []string{"ina"}}
	if !na.WritesCurrent() || na.WritesConc() {
		t.Errorf("na ion: WritesCurrent=%v WritesConc=%v", na.WritesCurrent(), na.WritesConc())
	}
	ca := Ion{Name: "ca", Reads: []string{"cai"}, Writes: []string{"cai", "ica"}}
	if !ca.WritesConc() || !ca.IsIntraConc("cai") || !ca.ReadsVar("cai") {
		t.Errorf("ca ion predicates wrong")
	}
}
