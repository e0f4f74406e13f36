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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

func TestResolveForms(t *testing.T) {
	c, err := NewCatalog(newChannel(), Options{})
	require.NoError(t, err)
	r := NewResolver(c)
	inst := Context{UseInstance: true}
	raw := Context{}

	for _, tc := range []struct {
		name string
		ctx  Context
		want string
	}{
		{"gbar", inst, "inst->gbar[id]"},
		{"gbar", raw, "data[0*pnodecount + id]"},
		{"m", raw, "data[2*pnodecount + id]"},
		{"ion_ena", inst, "inst->ion_ena[indexes[0*pnodecount + id]]"},
		{"ion_ena", raw, "nt->_data[indexes[0*pnodecount + id]]"},
		{"tau", inst, "inst->global->tau"},
		{"tau", raw, "nachan_global.tau"},
		{"celsius", inst, "*(inst->celsius)"},
		{"celsius", raw, "celsius"},
		{"dt", inst, "nt->_dt"},
		{"t", inst, "nt->_t"},
		{"t", Context{UseInstance: true, InNetReceive: true}, "t"},
		{"exp", inst, "exp"},
		{"undeclared", inst, "undeclared"},
	} {
		assert.Equal(t, tc.want, r.Resolve(tc.name, tc.ctx), "Resolve(%q, %+v)", tc.name, tc.ctx)
	}
}

func TestResolveArrays(t *testing.T) {
	m := newChannel()
	m.Scope().MustDefine(symtab.Symbol{Name: "rates", Tags: symtab.RangeAssigned, Length: 3})
	c, err := NewCatalog(m, Options{})
	require.NoError(t, err)
	r := NewResolver(c)

	_, pos, ok := c.Float("rates")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	assert.Equal(t, "(inst->rates+id*3)", r.Resolve("rates", Context{UseInstance: true}))
	assert.Equal(t, "(data + 2*pnodecount + id*3)", r.Resolve("rates", Context{}))
	// m moves past the three columns of rates.
	assert.Equal(t, "data[5*pnodecount + id]", r.Resolve("m", Context{}))
}

func TestResolveIonVarAliases(t *testing.T) {
	c, err := NewCatalog(newChannel(), Options{OptimizeIonVarCopies: true})
	require.NoError(t, err)
	r := NewResolver(c)
	inst := Context{UseInstance: true}

	// The alias wins over the float slot of the written current.
	assert.Equal(t, "ionvar.ina", r.Resolve("ina", inst))
	// Read variables go straight to the ion storage handle.
	assert.Equal(t, "inst->ion_ena[indexes[0*pnodecount + id]]", r.Resolve("ena", inst))
	assert.Equal(t, "inst->gbar[id]", r.Resolve("gbar", inst))
}

func TestResolveIndexKinds(t *testing.T) {
	m := newChannel()
	m.Ions = []ast.Ion{{Name: "ca", Reads: []string{"cai"}, Writes: []string{"cai"}}}
	m.Currents = nil
	m.PointProcess = true
	m.Blocks = []*ast.TopBlock{
		{Kind: ast.KindBreakpoint, Body: &ast.Block{}},
		{Kind: ast.KindNetReceive, Params: []ast.Param{{Name: "w"}}, Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Watch{Clauses: []ast.WatchClause{{Cond: &ast.Name{Name: "m"}, Value: &ast.Integer{Value: 2}}}},
		}}},
	}
	c, err := NewCatalog(m, Options{})
	require.NoError(t, err)
	r := NewResolver(c)
	inst := Context{UseInstance: true}

	// node_area, point_process, ion_cai, ion_cao, ion_ca_erev, style_ca,
	// tqitem, watch0, watch1.
	assert.Equal(t, "inst->node_area[indexes[0*pnodecount + id]]", r.Resolve("node_area", inst))
	assert.Equal(t, "indexes[1*pnodecount+id]", r.Resolve("point_process", Context{}))
	assert.Equal(t, "inst->style_ca[5]", r.Resolve("style_ca", inst))
	assert.Equal(t, "indexes[5]", r.Resolve("style_ca", Context{}))
	assert.Equal(t, "inst->watch1[8*pnodecount+id]", r.Resolve("watch1", inst))
	assert.Equal(t, "indexes[6*pnodecount+id]", r.Resolve("tqitem", Context{}))
	assert.Equal(t, "shadow_rhs[id]", r.Resolve("shadow_rhs", inst))

	m.ArtificialCell = true
	c, err = NewCatalog(m, Options{})
	require.NoError(t, err)
	assert.Equal(t, "nt->_vdata[indexes[1*pnodecount + id]]", NewResolver(c).Resolve("point_process", Context{}))
}
