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
	"strings"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// registration prints _<file>_reg, which binds every entry point and
// publishes the index layout to the simulator.
func (g *generator) registration() {
	m := g.m
	g.withFrame(frame{}, func() {
		g.blank()
		g.blank()
		g.line("/** register channel with the simulator */")
		g.open(fmt.Sprintf("void _%s_reg()", m.File))
		g.blank()
		g.writef("int mech_type = nrn_get_mechtype(\"%s\");\n", m.Suffix)
		g.writef("%s = mech_type;\n", g.resolveStorage("mech_type"))
		g.open("if (mech_type == -1)")
		g.line("return;")
		g.close("")
		g.blank()
		g.line("_nrn_layout_reg(mech_type, 0);")

		orNull := func(required bool, name string) string {
			if required {
				return g.method(name)
			}
			return "nullptr"
		}
		args := strings.Join([]string{
			"mechanism_info",
			g.method("nrn_alloc"),
			orNull(g.nrnCurRequired(), "nrn_cur"),
			"nullptr",
			orNull(g.nrnStateRequired(), "nrn_state"),
			g.method("nrn_init"),
			g.method("nrn_private_constructor"),
			g.method("nrn_private_destructor"),
			"first_pointer_var_index()",
		}, ", ")
		threadObjects := 0
		if g.cat.ThreadCallbacks() {
			threadObjects = 3
		}
		ctor, dtor := m.Block(ast.KindConstructor) != nil, m.Block(ast.KindDestructor) != nil
		if m.PointProcess {
			g.writef("point_register_mech(%s, %s, %s, %d);\n", args,
				orNull(ctor, "nrn_constructor"), orNull(dtor, "nrn_destructor"), threadObjects)
		} else {
			g.writef("register_mech(%s, %d);\n", args, threadObjects)
			if ctor {
				g.writef("register_constructor(%s);\n", g.method("nrn_constructor"))
			}
		}
		for _, ion := range g.cat.Ions {
			g.writef("%s = nrn_get_mechtype(\"%s_ion\");\n", g.resolveStorage(ion.Name+"_type"), ion.Name)
		}
		g.blank()

		if g.cat.ThreadCallbacks() {
			g.writef("thread_mem_init(%s);\n", g.resolveStorage("ext_call_thread"))
			g.line("_nrn_thread_reg0(mech_type, thread_mem_cleanup);")
			g.line("_nrn_thread_reg1(mech_type, thread_mem_init);")
		}
		if len(g.cat.Tables) > 0 {
			g.writef("_nrn_thread_table_reg(mech_type, %s);\n", g.method("check_table_thread"))
		}
		if len(m.Symbols.WithTags(symtab.BbcorePointer, symtab.Local|symtab.Argument)) > 0 {
			g.line("hoc_reg_bbcore_read(mech_type, bbcore_read);")
			g.line("hoc_reg_bbcore_write(mech_type, bbcore_write);")
		}
		g.line("hoc_register_prop_size(mech_type, float_variables_size(), int_variables_size());")
		for _, s := range g.cat.Semantics {
			g.writef("hoc_register_dparam_semantics(mech_type, %d, \"%s\");\n", s.Index, s.Name)
		}
		if len(g.cat.Watches) > 0 {
			g.writef("hoc_register_watch_check(%s, mech_type);\n", g.method("nrn_watch_check"))
		}
		if g.cat.WriteConc {
			g.line("nrn_writes_conc(mech_type, 0);")
		}
		if g.cat.NetEventUsed {
			g.line("add_nrn_has_net_event(mech_type);")
		}
		if m.ArtificialCell {
			g.writef("add_nrn_artcell(mech_type, %d);\n", g.cat.TQItemIndex)
		}
		nr := m.Block(ast.KindNetReceive)
		if nr != nil && !m.ArtificialCell {
			g.writef("hoc_register_net_receive_buffering(%s, mech_type);\n", g.method("net_buf_receive"))
		}
		if m.NetReceiveArgs() != 0 {
			init := "nullptr"
			if nr.Initial != nil {
				init = "net_init"
			}
			g.writef("set_pnt_receive(mech_type, %s, %s, num_net_receive_args());\n", g.method("net_receive"), init)
		}
		if g.cat.ForNetConUsed {
			g.writef("add_nrn_fornetcons(mech_type, %d);\n", g.cat.ForNetConIndex)
		}
		if g.cat.NetEventUsed || g.cat.NetSendUsed {
			g.line("hoc_register_net_send_buffering(mech_type);")
		}
		for i, tb := range g.beforeAfter() {
			g.writef("hoc_reg_ba(mech_type, %s, %d);\n", g.method(fmt.Sprintf("nrn_before_after_%d", i)), g.baRegisterType(tb))
		}
		g.line("hoc_register_var(hoc_scalar_double, hoc_vector_double, NULL);")
		g.close("")
	})
}
