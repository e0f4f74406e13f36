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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

func ptr(f float64) *float64 { return &f }

// newChannel builds a small sodium channel: one range parameter, one state,
// a read reversal potential, a written current and a global.
func newChannel() *ast.Model {
	m := &ast.Model{
		File:      "nachan",
		Suffix:    "nachan",
		Vectorize: true,
		Symbols:   symtab.NewTable(),
		Ions:      []ast.Ion{{Name: "na", Reads: []string{"ena"}, Writes: []string{"ina"}}},
		Currents:  []string{"ina"},
	}
	s := m.Scope()
	s.MustDefine(symtab.Symbol{Name: "gbar", Tags: symtab.Parameter | symtab.RangeParameter, Default: ptr(0.12)})
	s.MustDefine(symtab.Symbol{Name: "m", Tags: symtab.State | symtab.RangeState})
	s.MustDefine(symtab.Symbol{Name: "ena", Tags: symtab.Assigned | symtab.IonRead})
	s.MustDefine(symtab.Symbol{Name: "ina", Tags: symtab.RangeAssigned | symtab.IonWrite, WriteCount: 1})
	s.MustDefine(symtab.Symbol{Name: "celsius", Tags: symtab.External})
	s.MustDefine(symtab.Symbol{Name: "tau", Tags: symtab.Global | symtab.Parameter, Default: ptr(2.5)})
	return m
}

func varNames(vars []*Var) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Name
	}
	return out
}

func TestCatalogFloatLayout(t *testing.T) {
	c, err := NewCatalog(newChannel(), Options{})
	require.NoError(t, err)

	want := []string{"gbar", "ina", "m", "Dm", "ena", "v_unused"}
	if diff := cmp.Diff(want, varNames(c.Floats)); diff != "" {
		t.Errorf("float layout mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, c.FloatSize())

	gbar, pos, ok := c.Float("gbar")
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	assert.True(t, gbar.Constant)

	ina, _, _ := c.Float("ina")
	assert.False(t, ina.Constant)

	_, pos, ok = c.Float("Dm")
	require.True(t, ok)
	assert.Equal(t, 3, pos)
	assert.Len(t, c.Primes, 1)
}

func TestCatalogIndexLayout(t *testing.T) {
	c, err := NewCatalog(newChannel(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ion_ena", "ion_ina", "ion_dinadv"}, varNames(c.Ints))
	assert.Equal(t, []Semantic{
		{Index: 0, Name: "na_ion", Size: 1},
		{Index: 1, Name: "na_ion", Size: 1},
		{Index: 2, Name: "na_ion", Size: 1},
	}, c.Semantics)
	assert.Equal(t, 3, c.IntSize())

	ena, _, _ := c.Int("ion_ena")
	assert.True(t, ena.Constant)
	assert.Equal(t, symtab.IndexPointer, ena.Kind)
	ina, _, _ := c.Int("ion_ina")
	assert.False(t, ina.Constant)

	assert.Equal(t, -1, c.TQItemIndex)
	assert.Equal(t, -1, c.FirstPointerIndex)
}

func TestCatalogImplicitConcentrationRead(t *testing.T) {
	m := newChannel()
	m.Ions = []ast.Ion{{Name: "ca", Reads: []string{"cai"}, Writes: []string{"ica"}}}
	m.Currents = nil
	c, err := NewCatalog(m, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cao"}, c.ImplicitReads["ca"])
	assert.Equal(t, []string{"ion_cai", "ion_cao", "ion_ica", "ion_dicadv"}, varNames(c.Ints))
}

func TestCatalogGlobals(t *testing.T) {
	c, err := NewCatalog(newChannel(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"na_type", "m0", "reset", "mech_type", "tau", "slist1", "dlist1"}, varNames(c.Globals))
	tau, ok := c.Global("tau")
	require.True(t, ok)
	assert.Equal(t, "2.5", tau.Init)
	slist, _ := c.Global("slist1")
	assert.Equal(t, "2", slist.Init)
	dlist, _ := c.Global("dlist1")
	assert.Equal(t, "3", dlist.Init)

	assert.Equal(t, []External{{Name: "celsius", Type: "double"}}, c.Externals)
	assert.Empty(t, c.Shadows)
}

func TestCatalogPointProcess(t *testing.T) {
	m := newChannel()
	m.PointProcess = true
	m.Blocks = []*ast.TopBlock{
		{Kind: ast.KindBreakpoint, Body: &ast.Block{}},
		{Kind: ast.KindNetReceive, Params: []ast.Param{{Name: "w"}}, Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ExprStmt{X: &ast.Call{Name: "net_send", Args: []ast.Expr{&ast.Integer{Value: 1}, &ast.Integer{Value: 2}}}},
		}}},
	}
	c, err := NewCatalog(m, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"node_area", "point_process", "ion_ena", "ion_ina", "ion_dinadv", "tqitem"}, varNames(c.Ints))
	assert.Equal(t, 5, c.TQItemIndex)
	assert.Equal(t, "netsend", c.Semantics[5].Name)
	assert.True(t, c.NetSendUsed)
	assert.Equal(t, []string{"gbar", "ina", "m", "Dm", "ena", "v_unused", "g_unused", "tsave"}, varNames(c.Floats))
	assert.Equal(t, []string{"shadow_rhs", "shadow_d"}, varNames(c.Shadows))
	assert.Contains(t, varNames(c.Globals), "point_type")
}

func TestCatalogCollision(t *testing.T) {
	m := newChannel()
	m.Scope().MustDefine(symtab.Symbol{Name: "v_unused", Tags: symtab.Global})
	_, err := NewCatalog(m, Options{})
	var ie *InternalError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, CategoryCollision, ie.Category)
	assert.Equal(t, "nachan", ie.Model)
}

func TestCatalogTwoTables(t *testing.T) {
	m := newChannel()
	tbl := func() ast.Stmt {
		return &ast.Table{Depends: []string{"celsius"}, From: &ast.Integer{Value: -100}, To: &ast.Integer{Value: 100}, With: 200}
	}
	m.Blocks = []*ast.TopBlock{{Kind: ast.KindFunction, Name: "rate", Body: &ast.Block{Stmts: []ast.Stmt{tbl(), tbl()}}}}
	_, err := NewCatalog(m, Options{})
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, CategoryTable, ie.Category)
}

func TestCatalogIonVarStruct(t *testing.T) {
	c, err := NewCatalog(newChannel(), Options{OptimizeIonVarCopies: true})
	require.NoError(t, err)
	assert.True(t, c.IonVarStruct)
	assert.Equal(t, []string{"ina"}, c.IonCurVarMembers())

	c, err = NewCatalog(newChannel(), Options{})
	require.NoError(t, err)
	assert.False(t, c.IonVarStruct)
}
