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

// Package codegen emits the C++ kernel module of one mechanism model for
// the CoreNEURON simulator.
//
// Generate walks the model once, in a fixed order: metadata header,
// storage structs, allocation callbacks, user functions, event handling and
// finally the per-instance kernels and the registration function. Every
// model name is turned into a storage expression by the Resolver, which in
// turn relies on the Catalog (the per-model storage layout). Internal
// failures are raised as *InternalError and abort the whole model; no
// partial output is ever returned.
package codegen

import (
	"fmt"
	"strings"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/symtab"
)

// Generate returns the C++ module implementing m.
func Generate(m *ast.Model, opts Options) (out string, err error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	opts = opts.withDefaults()
	if m == nil || m.Symbols == nil {
		return "", &InternalError{Category: CategoryUnknown, Msg: "model has no symbol table"}
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = "", recoverInternal(m.Suffix, r)
		}
	}()

	cat := buildCatalog(m, opts)
	g := &generator{
		printer: newPrinter(),
		m:       m,
		opts:    opts,
		cat:     cat,
		res:     NewResolver(cat),
		fr:      &frame{ctx: Context{UseInstance: true}},
	}
	g.watchIndex = watchIndexes(cat)
	g.module()
	return g.String(), nil
}

// generator is the state of one Generate call.
type generator struct {
	printer

	m    *ast.Model
	opts Options
	cat  *Catalog
	res  *Resolver

	// fr is the emission frame of the function being printed.
	fr *frame

	// watchIndex maps a WATCH statement to the slot of its first clause.
	watchIndex map[*ast.Watch]int
}

// frame is the emission context of one generated function.
type frame struct {
	ctx   Context
	scope *symtab.Scope

	// renames takes precedence over every other resolution: arguments,
	// return variables and NET_RECEIVE weights.
	renames map[string]string

	netReceive  bool
	netInit     bool
	topVerbatim bool
}

// withFrame runs body with fr as the current frame.
func (g *generator) withFrame(fr frame, body func()) {
	saved := g.fr
	if fr.renames == nil {
		fr.renames = map[string]string{}
	}
	if fr.scope == nil {
		fr.scope = g.m.Scope()
	}
	g.fr = &fr
	body()
	g.fr = saved
}

// kernelFrame is the frame of a per-instance kernel.
func (g *generator) kernelFrame() frame {
	return frame{ctx: Context{UseInstance: true}}
}

// watchIndexes numbers WATCH clauses in source order from 0. Clause k is
// stored in index slot watch<k+1>, since watch0 is the reserved slot.
func watchIndexes(c *Catalog) map[*ast.Watch]int {
	out := map[*ast.Watch]int{}
	next := 0
	for _, body := range c.bodies() {
		for _, w := range ast.Find[*ast.Watch](body, nil) {
			out[w] = next
			next += len(w.Clauses)
		}
	}
	return out
}

// ----- Names -----

func globalStructName(suffix string) string   { return suffix + "_Store" }
func globalInstanceName(suffix string) string { return suffix + "_global" }
func instanceStructName(suffix string) string { return suffix + "_Instance" }

func (g *generator) method(name string) string { return name + "_" + g.m.Suffix }
func (g *generator) storeType() string         { return globalStructName(g.m.Suffix) }
func (g *generator) storeVar() string          { return globalInstanceName(g.m.Suffix) }
func (g *generator) instanceType() string      { return instanceStructName(g.m.Suffix) }

// resolve renders a model name in the current frame.
func (g *generator) resolve(name string) string {
	if r, ok := g.fr.renames[name]; ok {
		return r
	}
	if g.isLocal(name) {
		return name
	}
	return g.res.Resolve(name, g.fr.ctx)
}

// resolveStorage renders name ignoring locals and renames, for statements
// synthesized by the generator itself.
func (g *generator) resolveStorage(name string) string {
	return g.res.Resolve(name, g.fr.ctx)
}

// isLocal reports whether name is declared in a block scope enclosing the
// current statement. Model level LOCALs are globals.
func (g *generator) isLocal(name string) bool {
	for s := g.fr.scope; s != nil && s != g.m.Scope(); s = s.Parent() {
		if s.LookupLocal(name) != nil {
			return true
		}
	}
	return false
}

// ----- Module layout -----

func (g *generator) module() {
	g.backendInfo()
	g.includes()
	g.blank()
	g.blank()
	g.open("namespace coreneuron")
	g.nmodlConstants()
	g.prcellstateMacros()
	g.mechanismInfo()
	g.dataStructures()
	g.hocGlobals()
	g.getters()
	g.memoryAllocation()
	g.abortRoutine()
	g.threadCallbacks()
	g.instanceSetup()
	g.nrnAlloc()
	g.constructor()
	g.destructor()
	g.functionPrototypes()
	g.topVerbatim()
	g.procedures()
	g.functions()
	g.beforeAfterBlocks()
	g.derivImplicitKernels()
	g.netSendBuffering()
	g.netInit()
	g.watchActivate()
	g.watchCheck()
	g.netReceiveKernel()
	g.netReceive()
	g.netBufReceive()
	g.nrnInit()
	g.nrnCur()
	g.nrnState()
	g.checkTableThread()
	g.registration()
	g.close("  // namespace coreneuron")
}

func (g *generator) backendInfo() {
	g.line("/*********************************************************")
	g.writef("Model Name      : %s\n", g.m.Suffix)
	g.writef("Filename        : %s.mod\n", g.m.File)
	g.writef("NMODL Version   : %s\n", nmodlVersion(g.m))
	g.writef("Vectorized      : %t\n", g.m.Vectorize)
	g.writef("Threadsafe      : %t\n", g.m.ThreadSafe)
	if g.opts.Timestamp != "" {
		g.writef("Created         : %s\n", g.opts.Timestamp)
	}
	g.writef("Simulator       : %s\n", "CoreNEURON")
	g.writef("Backend         : %s\n", g.opts.Backend.Name())
	g.writef("NMODL Compiler  : mechgen %s\n", g.opts.Version)
	g.line("*********************************************************/")
}

// nmodlVersion is the language level written in the header: models using
// event-driven constructs need 7.7.0 semantics.
func nmodlVersion(m *ast.Model) string {
	if m.Block(ast.KindNetReceive) != nil {
		return "7.7.0"
	}
	return "6.2.0"
}

func (g *generator) includes() {
	g.blank()
	g.lines([]string{
		"#include <math.h>",
		"#include <stdio.h>",
		"#include <stdlib.h>",
		"#include <string.h>",
	})
	g.blank()
	for _, h := range []string{
		"gpu/nrn_acc_manager.hpp",
		"mechanism/mech/mod2c_core_thread.hpp",
		"mechanism/register_mech.hpp",
		"nrnconf.h",
		"nrniv/nrniv_decl.h",
		"sim/multicore.hpp",
		"sim/scopmath/newton_thread.hpp",
		"utils/ivocvect.hpp",
		"utils/nrnoc_aux.hpp",
		"utils/randoms/nrnran123.h",
	} {
		g.writef("#include <coreneuron/%s>\n", h)
	}
	linear, newton := g.solversUsed()
	if linear || newton {
		g.line("#include <Eigen/Dense>")
		g.line("#include <Eigen/LU>")
	}
	if newton {
		g.line("#include <newton/newton.hpp>")
	}
	g.lines(g.opts.Backend.Includes())
}

// solversUsed reports whether lowered linear or nonlinear systems appear.
func (g *generator) solversUsed() (linear, newton bool) {
	for _, body := range g.cat.bodies() {
		linear = linear || len(ast.Find[*ast.LinearSolver](body, nil)) > 0
		newton = newton || len(ast.Find[*ast.NonLinearSolver](body, nil)) > 0
	}
	return linear, newton
}

func (g *generator) nmodlConstants() {
	if len(g.m.Factors) == 0 {
		return
	}
	g.blank()
	g.line("/** constants used in nmodl from UNITS */")
	for _, f := range g.m.Factors {
		g.writef("static const double %s = %s;\n", f.Name, f.Value)
	}
}

func (g *generator) prcellstateMacros() {
	g.blank()
	g.lines([]string{
		"#ifndef NRN_PRCELLSTATE",
		"#define NRN_PRCELLSTATE 0",
		"#endif",
	})
}

// mechanismInfo prints the name table NEURON uses to expose the model:
// version, suffix, then range parameters, range assigned, range states and
// pointers, each list terminated by 0.
func (g *generator) mechanismInfo() {
	m := g.m
	tab := m.Symbols
	name := func(s *symtab.Symbol) string {
		n := s.Name
		if !m.PointProcess {
			n += "_" + m.Suffix
		}
		if s.IsArray() {
			n = fmt.Sprintf("%s[%d]", n, s.Length)
		}
		return fmt.Sprintf("\"%s\"", n)
	}
	exclude := storageless &^ symtab.Constant
	groups := [][]*symtab.Symbol{
		tab.WithTags(symtab.RangeParameter, exclude|symtab.State),
		tab.WithTags(symtab.RangeAssigned, exclude|symtab.State|symtab.RangeParameter),
		tab.WithTags(symtab.State, exclude),
		tab.WithTags(symtab.Pointer|symtab.BbcorePointer, symtab.Local|symtab.Argument),
	}

	g.blank()
	g.open("static const char *mechanism_info[] =")
	g.writef("\"%s\",\n", nmodlVersion(m))
	g.writef("\"%s\",\n", m.Suffix)
	for _, group := range groups {
		for _, s := range group {
			g.line(name(s) + ",")
		}
		g.line("0,")
	}
	g.close(";")
}

func (g *generator) getters() {
	g.blank()
	g.blank()
	g.open("static inline int first_pointer_var_index()")
	g.writef("return %d;\n", g.cat.FirstPointerIndex)
	g.close("")
	g.blank()
	g.blank()
	g.open("static inline int first_random_var_index()")
	g.line("return -1;")
	g.close("")
	if nr := g.m.Block(ast.KindNetReceive); nr != nil {
		g.blank()
		g.blank()
		g.open("static inline int num_net_receive_args()")
		g.writef("return %d;\n", len(nr.Params))
		g.close("")
	}
	g.blank()
	g.blank()
	g.open("static inline int float_variables_size()")
	g.writef("return %d;\n", g.cat.FloatSize())
	g.close("")
	g.blank()
	g.blank()
	g.open("static inline int int_variables_size()")
	g.writef("return %d;\n", g.cat.IntSize())
	g.close("")
	g.blank()
	g.blank()
	g.open("static inline int get_mech_type()")
	g.writef("return %s.mech_type;\n", g.storeVar())
	g.close("")
	g.blank()
	g.blank()
	g.open("static inline Memb_list* get_memb_list(NrnThread* nt)")
	g.open("if (!nt->_ml_list)")
	g.line("return nullptr;")
	g.close("")
	g.line("return nt->_ml_list[get_mech_type()];")
	g.close("")
}

func (g *generator) memoryAllocation() {
	g.blank()
	g.blank()
	g.open("static inline void* mem_alloc(size_t num, size_t size, size_t alignment = 64)")
	g.line("size_t aligned_size = ((num*size + alignment - 1) / alignment) * alignment;")
	g.line("void* ptr = aligned_alloc(alignment, aligned_size);")
	g.line("memset(ptr, 0, aligned_size);")
	g.line("return ptr;")
	g.close("")
	g.blank()
	g.blank()
	g.open("static inline void mem_free(void* ptr)")
	g.line("free(ptr);")
	g.close("")
}

func (g *generator) abortRoutine() {
	g.blank()
	g.blank()
	g.open("static inline void coreneuron_abort()")
	g.line("abort();")
	g.close("")
}

// ----- Shared parameter lists -----

// internalParams are the parameters of functions called from a kernel loop.
func (g *generator) internalParams() string {
	params := []string{"int id", "int pnodecount", g.instanceType() + "* inst"}
	if g.cat.IonVarStruct {
		params = append(params, "IonCurVar& ionvar")
	}
	params = append(params, "double* data", "const Datum* indexes", "ThreadDatum* thread", "NrnThread* nt", "double v")
	return strings.Join(params, ", ")
}

// internalArgs are the arguments matching internalParams.
func (g *generator) internalArgs() string {
	args := []string{"id", "pnodecount", "inst"}
	if g.cat.IonVarStruct {
		args = append(args, "ionvar")
	}
	args = append(args, "data", "indexes", "thread", "nt", "v")
	return strings.Join(args, ", ")
}

// externalParams are the parameters of callbacks invoked by the simulator
// outside the instance context.
func (g *generator) externalParams(table bool) string {
	last := "double v"
	if table {
		last = "int tml_id"
	}
	return "int id, int pnodecount, double* data, Datum* indexes, ThreadDatum* thread, NrnThread* nt, Memb_list* ml, " + last
}

// threadArgs are the arguments of foreign code calls made without an
// instance.
func (g *generator) threadArgs() string {
	if g.cat.IonVarStruct {
		return "id, pnodecount, ionvar, data, indexes, thread, nt, ml, v"
	}
	return "id, pnodecount, data, indexes, thread, nt, ml, v"
}

// internalArgNames are reserved parameter names of generated functions.
var internalArgNames = map[string]bool{
	"id": true, "pnodecount": true, "inst": true, "ionvar": true, "data": true,
	"indexes": true, "thread": true, "nt": true, "ml": true, "v": true,
}

// paramName renames a user parameter colliding with a reserved name.
func paramName(name string) string {
	if internalArgNames[name] {
		return "arg_" + name
	}
	return name
}
