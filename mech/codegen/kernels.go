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

// kernelKind selects the prologue of a per-instance kernel.
type kernelKind int

const (
	kernelInitial kernelKind = iota
	kernelEquation
	kernelState
	kernelConstructor
	kernelDestructor
	kernelWatch
	kernelBeforeAfter
)

// kernelOpen prints the signature and the local views of the simulator
// data shared by every kernel.
func (g *generator) kernelOpen(name string, kind kernelKind) {
	args := "NrnThread* nt, Memb_list* ml, int type"
	if kind == kernelWatch {
		args = "NrnThread* nt, Memb_list* ml"
	}
	g.open(fmt.Sprintf("void %s(%s)", name, args))
	if kind == kernelConstructor || kind == kernelDestructor {
		g.line("#ifndef CORENEURON_BUILD")
	}
	g.line("int nodecount = ml->nodecount;")
	g.line("int pnodecount = ml->_nodecount_padded;")
	g.line("const int* node_index = ml->nodeindices;")
	g.line("double* data = ml->data;")
	g.line("const double* voltage = nt->_actual_v;")
	if kind == kernelEquation {
		g.line("double* vec_rhs = nt->_actual_rhs;")
		g.line("double* vec_d = nt->_actual_d;")
		if g.m.PointProcess {
			g.line("double* shadow_rhs = nt->_shadow_rhs;")
			g.line("double* shadow_d = nt->_shadow_d;")
		}
	}
	g.line("Datum* indexes = ml->pdata;")
	g.line("ThreadDatum* thread = ml->_thread;")
	if kind == kernelInitial {
		g.blank()
		g.line("setup_instance(nt, ml);")
	}
	g.castInstance()
	g.blank()
}

// loopOpen starts the iteration over every instance of the kernel.
func (g *generator) loopOpen() {
	g.line("int start = 0;")
	g.line("int end = nodecount;")
	g.lines(g.opts.Backend.LoopHint())
	g.open("for (int id = start; id < end; id++)")
}

// voltage prints the node voltage of the current instance.
func (g *generator) voltage() {
	g.line("int node_id = node_index[id];")
	g.line("double v = voltage[node_id];")
	g.vUnused()
}

func (g *generator) vUnused() {
	if !g.m.Vectorize {
		return
	}
	g.line("#if NRN_PRCELLSTATE")
	g.line("inst->v_unused[id] = v;")
	g.line("#endif")
}

func (g *generator) gUnused() {
	name := "g_unused"
	if !g.m.Vectorize {
		name = "g"
	}
	g.line("#if NRN_PRCELLSTATE")
	g.writef("inst->%s[id] = g;\n", name)
	g.line("#endif")
}

func (g *generator) ionVar() {
	if g.cat.IonVarStruct {
		g.line("IonCurVar ionvar;")
	}
}

// ---------------------------------------------------------------------------
// Ion copies
// ---------------------------------------------------------------------------

// ionReads copies ion storage into the model variables before a kernel
// body. With IonCurVar only written concentrations are copied, into the
// struct.
func (g *generator) ionReads() {
	for _, ion := range g.cat.Ions {
		if g.cat.IonVarStruct {
			for _, w := range ion.Writes {
				if ion.IsConc(w) {
					g.writef("ionvar.%s = %s;\n", w, g.resolveStorage("ion_"+w))
				}
			}
			continue
		}
		for _, r := range ion.Reads {
			g.writef("%s = %s;\n", g.resolveStorage(r), g.resolveStorage("ion_"+r))
		}
		for _, w := range ion.Writes {
			if ion.IsConc(w) {
				g.writef("%s = %s;\n", g.resolveStorage(w), g.resolveStorage("ion_"+w))
			}
		}
	}
}

// ionWrites copies model variables back into ion storage after a kernel
// body. Currents are accumulated only by the current kernel; INITIAL
// additionally reports written concentrations to the simulator.
func (g *generator) ionWrites(kind kernelKind) {
	for _, ion := range g.cat.Ions {
		concentration := ""
		for _, w := range ion.Writes {
			lhs := g.resolveStorage("ion_" + w)
			if ion.IsIonicCurrent(w) {
				if kind != kernelEquation {
					continue
				}
				rhs := g.breakpointCurrent(w)
				if g.m.PointProcess {
					rhs += fmt.Sprintf("*(1.e2/%s)", g.resolveStorage("node_area"))
				}
				g.writef("%s += %s;\n", lhs, rhs)
				continue
			}
			if !ion.IsRevPotential(w) {
				concentration = w
			}
			g.writef("%s = %s;\n", lhs, g.resolveStorage(w))
		}
		if kind == kernelInitial && concentration != "" {
			g.wroteConc(ion, concentration)
		}
	}
}

func (g *generator) wroteConc(ion ast.Ion, concentration string) {
	var index int
	switch {
	case ion.IsIntraConc(concentration):
		index = 1
	case ion.IsExtraConc(concentration):
		index = 2
	default:
		fail(g.m.Suffix, CategoryIon, "ion %s writes %s which is no concentration", ion.Name, concentration)
	}
	typ := ion.Name + "_type"
	g.writef("int %s = %s;\n", typ, g.resolveStorage(typ))
	g.writef("nrn_wrote_conc(%[1]s, &(%[2]s), %[3]d, %[4]s, nrn_ion_global_map, %[5]s, nt->_ml_list[%[1]s]->_nodecount_padded);\n",
		typ, g.resolveStorage("ion_"+concentration), index, g.resolveStorage("style_"+ion.Name), g.resolveStorage("celsius"))
}

// breakpointCurrent returns a current as seen after the BREAKPOINT body:
// the block local when one was declared there, the storage otherwise.
func (g *generator) breakpointCurrent(name string) string {
	if bp := g.m.Block(ast.KindBreakpoint); bp != nil && bp.Body != nil && bp.Body.Scope != nil {
		if bp.Body.Scope.LookupLocal(name) != nil {
			return name
		}
	}
	return g.resolveStorage(name)
}

// initialStates returns the states whose value is copied from <state>0
// at initialization.
func (g *generator) initialStates() []*symtab.Symbol {
	var out []*symtab.Symbol
	for _, s := range g.m.Symbols.WithTags(symtab.State, storageless) {
		if s.IsArray() || g.isIonConc(s.Name) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (g *generator) isIonConc(name string) bool {
	for _, ion := range g.cat.Ions {
		if ion.IsConc(name) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// CONSTRUCTOR and DESTRUCTOR
// ---------------------------------------------------------------------------

func (g *generator) constructor() {
	g.lifecycle("nrn_constructor", kernelConstructor, g.m.Block(ast.KindConstructor))
}

func (g *generator) destructor() {
	g.lifecycle("nrn_destructor", kernelDestructor, g.m.Block(ast.KindDestructor))
}

func (g *generator) lifecycle(name string, kind kernelKind, tb *ast.TopBlock) {
	g.withFrame(g.kernelFrame(), func() {
		g.blank()
		g.blank()
		g.kernelOpen(g.method(name), kind)
		if tb != nil {
			g.body(tb.Body)
		}
		g.line("#endif")
		g.close("")
	})
}

// ---------------------------------------------------------------------------
// INITIAL
// ---------------------------------------------------------------------------

func (g *generator) nrnInit() {
	g.withFrame(g.kernelFrame(), func() {
		g.blank()
		g.blank()
		g.line("/** initialize channel */")
		g.kernelOpen(g.method("nrn_init"), kernelInitial)
		if g.cat.ThreadCallbacks() {
			g.blank()
			g.line("int& deriv_advance_flag = *deriv1_advance(thread);")
			g.line("deriv_advance_flag = 0;")
			g.line("auto ns = newtonspace1(thread);")
			g.line("auto& th = thread[dith1()];")
			g.open("if (*ns == nullptr)")
			g.writef("int vec_size = 2*%d*pnodecount*sizeof(double);\n", g.cat.PrimesSize)
			g.line("double* vec = makevector(vec_size);")
			g.line("th.pval = vec;")
			g.writef("*ns = nrn_cons_newtonspace(%d, pnodecount);\n", g.cat.PrimesSize)
			g.close("")
		}

		g.open("if (_nrn_skip_initmodel == 0)")
		dt := g.resolveStorage("dt")
		if g.m.ChangedDt != "" {
			g.writef("double _save_prev_dt = %s;\n", dt)
			g.writef("%s = %s;\n", dt, g.m.ChangedDt)
		}
		g.loopOpen()
		if g.m.Block(ast.KindNetReceive) != nil {
			g.writef("%s = -1e20;\n", g.resolveStorage("tsave"))
		}
		g.initialBlock()
		g.close("")
		if g.m.ChangedDt != "" {
			g.writef("%s = _save_prev_dt;\n", dt)
		}
		g.close("")

		if g.cat.ThreadCallbacks() {
			g.line("deriv_advance_flag = 1;")
		}
		if g.cat.NetSendUsed && !g.m.ArtificialCell {
			g.sendEventMove()
		}
		g.close("")
	})
}

func (g *generator) initialBlock() {
	if g.m.ArtificialCell {
		g.line("double v = 0.0;")
	} else {
		g.voltage()
	}
	g.ionVar()
	g.ionReads()
	for _, s := range g.initialStates() {
		g.writef("%s = %s;\n", g.resolveStorage(s.Name), g.resolveStorage(s.Name+"0"))
	}
	if tb := g.m.Block(ast.KindInitial); tb != nil {
		g.body(tb.Body)
	}
	g.ionWrites(kernelInitial)
}

// ---------------------------------------------------------------------------
// BREAKPOINT: currents
// ---------------------------------------------------------------------------

// electrodeCurrent reports whether the model injects an electrode current,
// which flips the sign of the matrix update.
func (g *generator) electrodeCurrent() bool {
	return len(g.m.Symbols.WithTags(symtab.ElectrodeCurrent, 0)) > 0
}

func (g *generator) rhsOp() string {
	if g.electrodeCurrent() {
		return "+="
	}
	return "-="
}

func (g *generator) dOp() string {
	if g.electrodeCurrent() {
		return "-="
	}
	return "+="
}

func (g *generator) nrnCurRequired() bool {
	return g.m.Block(ast.KindBreakpoint) != nil && len(g.m.Currents) > 0
}

// nrnCurrent prints the function evaluating the total current at a given
// voltage, used to differentiate the current numerically.
func (g *generator) nrnCurrent(bp *ast.TopBlock) {
	g.blank()
	g.blank()
	g.open(fmt.Sprintf("inline double %s(%s)", g.method("nrn_current"), g.internalParams()))
	g.line("double current = 0.0;")
	g.body(bp.Body)
	for _, cur := range g.m.Currents {
		g.writef("current += %s;\n", g.breakpointCurrent(cur))
	}
	g.line("return current;")
	g.close("")
}

func (g *generator) nrnCur() {
	if !g.nrnCurRequired() {
		return
	}
	bp := g.m.Block(ast.KindBreakpoint)
	pp := g.m.PointProcess
	g.withFrame(g.kernelFrame(), func() {
		if len(g.m.Conductances) == 0 {
			g.nrnCurrent(bp)
		}

		g.blank()
		g.blank()
		g.line("/** update current */")
		g.kernelOpen(g.method("nrn_cur"), kernelEquation)
		g.loopOpen()
		g.voltage()
		g.ionVar()
		g.ionReads()
		if len(g.m.Conductances) == 0 {
			g.nonConductanceKernel()
		} else {
			g.conductanceKernel(bp)
		}
		g.ionWrites(kernelEquation)
		if pp {
			g.writef("double mfactor = 1.e2/%s;\n", g.resolveStorage("node_area"))
			g.line("g = g*mfactor;")
			g.line("rhs = rhs*mfactor;")
		}
		g.gUnused()

		if pp {
			g.writef("%s = rhs;\n", g.resolveStorage("shadow_rhs"))
			g.writef("%s = g;\n", g.resolveStorage("shadow_d"))
		} else {
			g.lines(g.opts.Backend.DirectUpdate())
			g.writef("vec_rhs[node_id] %s rhs;\n", g.rhsOp())
			g.lines(g.opts.Backend.DirectUpdate())
			g.writef("vec_d[node_id] %s g;\n", g.dOp())
			g.fastImem()
		}
		g.close("")

		if pp {
			g.open("for (int id = start; id < end; id++)")
			g.line("int node_id = node_index[id];")
			g.lines(g.opts.Backend.DirectUpdate())
			g.writef("vec_rhs[node_id] %s %s;\n", g.rhsOp(), g.resolveStorage("shadow_rhs"))
			g.lines(g.opts.Backend.DirectUpdate())
			g.writef("vec_d[node_id] %s %s;\n", g.dOp(), g.resolveStorage("shadow_d"))
			g.close("")
			g.fastImem()
		}
		g.close("")
	})
}

func (g *generator) conductanceKernel(bp *ast.TopBlock) {
	g.body(bp.Body)
	rhs := make([]string, len(g.m.Currents))
	for i, cur := range g.m.Currents {
		rhs[i] = g.breakpointCurrent(cur)
	}
	g.writef("double rhs = %s;\n", strings.Join(rhs, "+"))
	conductances := make([]string, len(g.m.Conductances))
	for i, c := range g.m.Conductances {
		conductances[i] = g.breakpointCurrent(c.Variable)
	}
	g.writef("double g = %s;\n", strings.Join(conductances, "+"))
	for _, c := range g.m.Conductances {
		if c.Ion == "" {
			continue
		}
		g.writef("%s += %s;\n", g.resolveStorage("ion_di"+c.Ion+"dv"), g.resolveStorage(c.Variable))
	}
}

func (g *generator) nonConductanceKernel() {
	current := g.method("nrn_current")
	g.writef("double g = %s(%s+0.001);\n", current, g.internalArgs())
	for _, ion := range g.cat.Ions {
		for _, w := range ion.Writes {
			if ion.IsIonicCurrent(w) {
				g.writef("double di%s = %s;\n", ion.Name, g.resolveStorage(w))
			}
		}
	}
	g.writef("double rhs = %s(%s);\n", current, g.internalArgs())
	g.line("g = (g-rhs)/0.001;")
	for _, ion := range g.cat.Ions {
		for _, w := range ion.Writes {
			if !ion.IsIonicCurrent(w) {
				continue
			}
			rhs := fmt.Sprintf("(di%s-%s)/0.001", ion.Name, g.resolveStorage(w))
			if g.m.PointProcess {
				rhs += "*1.e2/" + g.resolveStorage("node_area")
			}
			g.writef("%s += %s;\n", g.resolveStorage("ion_di"+ion.Name+"dv"), rhs)
		}
	}
}

// fastImem saves the membrane current contribution when the simulator
// records it. Point processes read it back from the shadow arrays.
func (g *generator) fastImem() {
	if !g.electrodeCurrent() {
		return
	}
	rhs, d := "rhs", "g"
	g.open("if (nt->nrn_fast_imem)")
	if g.m.PointProcess {
		rhs, d = g.resolveStorage("shadow_rhs"), g.resolveStorage("shadow_d")
		g.open("for (int id = start; id < end; id++)")
		g.line("int node_id = node_index[id];")
	}
	g.lines(g.opts.Backend.DirectUpdate())
	g.writef("nt->nrn_fast_imem->nrn_sav_rhs[node_id] %s %s;\n", g.rhsOp(), rhs)
	g.lines(g.opts.Backend.DirectUpdate())
	g.writef("nt->nrn_fast_imem->nrn_sav_d[node_id] %s %s;\n", g.dOp(), d)
	if g.m.PointProcess {
		g.close("")
	}
	g.close("")
}

// ---------------------------------------------------------------------------
// BREAKPOINT: states
// ---------------------------------------------------------------------------

func (g *generator) nrnStateRequired() bool {
	if g.m.ArtificialCell {
		return false
	}
	return g.m.StateUpdate != nil || g.m.Block(ast.KindBreakpoint) != nil
}

func (g *generator) nrnState() {
	if !g.nrnStateRequired() {
		return
	}
	g.withFrame(g.kernelFrame(), func() {
		g.blank()
		g.blank()
		g.line("/** update state */")
		g.kernelOpen(g.method("nrn_state"), kernelState)
		g.loopOpen()
		g.voltage()
		g.ionVar()
		g.ionReads()
		g.body(g.m.StateUpdate)
		if bp := g.m.Block(ast.KindBreakpoint); bp != nil && len(g.m.Currents) == 0 {
			g.body(bp.Body)
		}
		g.ionWrites(kernelState)
		g.close("")
		g.close("")
	})
}

// ---------------------------------------------------------------------------
// BEFORE and AFTER
// ---------------------------------------------------------------------------

// beforeAfter returns the BEFORE and AFTER blocks in source order; the
// position of a block names its kernel.
func (g *generator) beforeAfter() []*ast.TopBlock {
	var out []*ast.TopBlock
	for _, tb := range g.m.Blocks {
		if tb.Kind == ast.KindBefore || tb.Kind == ast.KindAfter {
			out = append(out, tb)
		}
	}
	return out
}

func (g *generator) beforeAfterBlocks() {
	for i, tb := range g.beforeAfter() {
		g.withFrame(g.kernelFrame(), func() {
			g.blank()
			g.blank()
			g.writef("/** %s of block type %s # %d */\n", tb.Kind, tb.Event, i)
			g.kernelOpen(g.method(fmt.Sprintf("nrn_before_after_%d", i)), kernelBeforeAfter)
			g.loopOpen()
			g.voltage()
			g.ionVar()
			g.ionReads()
			g.open("")
			g.body(tb.Body)
			g.close("")
			g.blank()
			g.ionWrites(kernelState)
			g.close("")
			g.close("")
		})
	}
}

// baRegisterType is the registration code of a BEFORE/AFTER block: 10 or
// 20 for the position plus 1 to 4 for the event it is attached to.
func (g *generator) baRegisterType(tb *ast.TopBlock) int {
	code := 10
	if tb.Kind == ast.KindAfter {
		code = 20
	}
	switch strings.ToUpper(tb.Event) {
	case "BREAKPOINT":
		return code + 1
	case "SOLVE":
		return code + 2
	case "INITIAL":
		return code + 3
	case "STEP":
		return code + 4
	}
	fail(g.m.Suffix, CategoryUnknown, "%s block with unknown event type %q", tb.Kind, tb.Event)
	return 0
}
