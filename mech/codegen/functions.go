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
	"maps"
	"strings"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/defuse"
)

// ---------------------------------------------------------------------------
// FUNCTION and PROCEDURE
// ---------------------------------------------------------------------------

// declaration returns the signature of a model callable emitted as name.
func (g *generator) declaration(tb *ast.TopBlock, name string) string {
	params := []string{g.internalParams()}
	for _, p := range tb.Params {
		params = append(params, "double "+paramName(p.Name))
	}
	ret := "int"
	if tb.Kind == ast.KindFunction {
		ret = g.opts.FloatType
	}
	return fmt.Sprintf("inline %s %s(%s)", ret, g.method(name), strings.Join(params, ", "))
}

func (g *generator) functionPrototypes() {
	callables := append(g.m.BlocksOf(ast.KindFunction), g.m.BlocksOf(ast.KindProcedure)...)
	if len(callables) == 0 {
		return
	}
	g.blank()
	g.blank()
	for _, tb := range callables {
		g.line(g.declaration(tb, tb.Name) + ";")
	}
}

func (g *generator) procedures() {
	for _, tb := range g.m.BlocksOf(ast.KindProcedure) {
		g.callable(tb)
	}
}

func (g *generator) functions() {
	for _, tb := range g.m.BlocksOf(ast.KindFunction) {
		g.callable(tb)
	}
}

// callable prints a FUNCTION or PROCEDURE. One carrying a TABLE statement
// is printed as f_<name>, followed by its table builder and the
// interpolating wrapper under the original name.
func (g *generator) callable(tb *ast.TopBlock) {
	impl := tb.Name
	tf, tabled := g.cat.Table(tb.Name)
	if tabled {
		impl = "f_" + tb.Name
	}
	renames := map[string]string{}
	for _, p := range tb.Params {
		renames[p.Name] = paramName(p.Name)
	}
	if tb.Kind == ast.KindFunction {
		renames[tb.Name] = "ret_" + impl
	}
	fr := g.kernelFrame()
	fr.renames = renames
	g.withFrame(fr, func() {
		g.blank()
		g.blank()
		g.open(g.declaration(tb, impl))
		if tb.Kind == ast.KindFunction {
			g.writef("%s ret_%s = 0.0;\n", g.opts.FloatType, impl)
		} else {
			g.writef("int ret_%s = 0;\n", impl)
		}
		g.body(tb.Body)
		g.writef("return ret_%s;\n", impl)
		g.close("")
	})
	if tabled {
		g.withFrame(g.kernelFrame(), func() {
			g.tableCheck(tf)
			g.tableReplacement(tf)
		})
	}
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

// tableTargets returns the storage of every tabulated variable of a
// procedure with its array length (0 for scalars).
func (g *generator) tableTargets(t *ast.Table) []tableTarget {
	out := make([]tableTarget, 0, len(t.Vars))
	for _, name := range t.Vars {
		s := g.m.Symbols.Lookup(name)
		if s == nil {
			fail(g.m.Suffix, CategoryTable, "table variable %s is not defined", name)
		}
		tt := tableTarget{storage: g.resolveStorage(name), table: g.resolveStorage("t_" + name)}
		if s.IsArray() {
			tt.length = s.Length
		}
		out = append(out, tt)
	}
	return out
}

type tableTarget struct {
	storage string
	table   string
	length  int
}

func (g *generator) tableCheck(tf TableFunc) {
	tb, t := tf.Block, tf.Table
	useTable := g.resolveStorage("usetable")
	tmin := g.resolveStorage("tmin_" + tb.Name)
	mfac := g.resolveStorage("mfac_" + tb.Name)
	impl := g.method("f_" + tb.Name)

	g.blank()
	g.blank()
	g.open(fmt.Sprintf("void check_%s(%s)", g.method(tb.Name), g.internalParams()))
	g.open(fmt.Sprintf("if (%s == 0)", useTable))
	g.line("return;")
	g.close("")
	g.line("static bool make_table = true;")
	for _, d := range t.Depends {
		g.writef("static %s save_%s;\n", g.opts.FloatType, d)
	}
	for _, d := range t.Depends {
		g.open(fmt.Sprintf("if (save_%s != %s)", d, g.resolveStorage(d)))
		g.line("make_table = true;")
		g.close("")
	}
	g.open("if (make_table)")
	g.line("make_table = false;")
	g.writef("%s = %s;\n", tmin, g.expr(t.From))
	g.writef("double tmax = %s;\n", g.expr(t.To))
	g.writef("double dx = (tmax-%s) / %d.;\n", tmin, t.With)
	g.writef("%s = 1./dx;\n", mfac)
	g.writef("double x = %s;\n", tmin)
	g.open(fmt.Sprintf("for (std::size_t i = 0; i < %d; x += dx, i++)", t.With+1))
	if tb.Kind == ast.KindProcedure {
		g.writef("%s(%s, x);\n", impl, g.internalArgs())
		for _, tt := range g.tableTargets(t) {
			if tt.length == 0 {
				g.writef("%s[i] = %s;\n", tt.table, tt.storage)
				continue
			}
			for j := range tt.length {
				g.writef("%s[%d][i] = %s[%d];\n", tt.table, j, tt.storage, j)
			}
		}
	} else {
		g.writef("%s[i] = %s(%s, x);\n", g.resolveStorage("t_"+tb.Name), impl, g.internalArgs())
	}
	g.close("")
	for _, d := range t.Depends {
		g.writef("save_%s = %s;\n", d, g.resolveStorage(d))
	}
	g.close("")
	g.close("")
}

// tableReplacement prints the wrapper that interpolates linearly between
// grid points and clamps to the first or last entry outside the grid.
func (g *generator) tableReplacement(tf TableFunc) {
	tb, t := tf.Block, tf.Table
	if len(tb.Params) == 0 {
		fail(g.m.Suffix, CategoryTable, "%s %s has a TABLE but no argument", tb.Kind, tb.Name)
	}
	arg := paramName(tb.Params[0].Name)
	useTable := g.resolveStorage("usetable")
	tmin := g.resolveStorage("tmin_" + tb.Name)
	mfac := g.resolveStorage("mfac_" + tb.Name)
	impl := g.method("f_" + tb.Name)
	procedure := tb.Kind == ast.KindProcedure

	var targets []tableTarget
	if procedure {
		targets = g.tableTargets(t)
	}
	// each prints one assignment per scalar or array element.
	each := func(format func(storage, table string) string) {
		for _, tt := range targets {
			if tt.length == 0 {
				g.line(format(tt.storage, tt.table))
				continue
			}
			for j := range tt.length {
				g.line(format(fmt.Sprintf("%s[%d]", tt.storage, j), fmt.Sprintf("%s[%d]", tt.table, j)))
			}
		}
	}

	g.blank()
	g.blank()
	g.open(g.declaration(tb, tb.Name))
	g.open(fmt.Sprintf("if (%s == 0)", useTable))
	if procedure {
		g.writef("%s(%s, %s);\n", impl, g.internalArgs(), arg)
		g.line("return 0;")
	} else {
		g.writef("return %s(%s, %s);\n", impl, g.internalArgs(), arg)
	}
	g.close("")

	g.writef("double xi = %s * (%s - %s);\n", mfac, arg, tmin)
	g.open("if (isnan(xi))")
	if procedure {
		each(func(storage, _ string) string { return storage + " = xi;" })
		g.line("return 0;")
	} else {
		g.line("return xi;")
	}
	g.close("")

	g.open(fmt.Sprintf("if (xi <= 0. || xi >= %d.)", t.With))
	g.writef("int index = (xi <= 0.) ? 0 : %d;\n", t.With)
	if procedure {
		each(func(storage, table string) string { return fmt.Sprintf("%s = %s[index];", storage, table) })
		g.line("return 0;")
	} else {
		g.writef("return %s[index];\n", g.resolveStorage("t_"+tb.Name))
	}
	g.close("")

	g.line("int i = int(xi);")
	g.line("double theta = xi - double(i);")
	if procedure {
		each(func(storage, table string) string {
			return fmt.Sprintf("%s = %s[i] + theta*(%s[i+1]-%s[i]);", storage, table, table, table)
		})
		g.line("return 0;")
	} else {
		table := g.resolveStorage("t_" + tb.Name)
		g.writef("return %s[i] + theta * (%s[i+1] - %s[i]);\n", table, table, table)
	}
	g.close("")
}

// checkTableThread rebuilds every table before a simulation step.
func (g *generator) checkTableThread() {
	if len(g.cat.Tables) == 0 {
		return
	}
	g.blank()
	g.blank()
	g.open(fmt.Sprintf("static void %s (%s)", g.method("check_table_thread"), g.externalParams(true)))
	g.line("setup_instance(nt, ml);")
	g.castInstance()
	g.line("double v = 0;")
	if g.cat.IonVarStruct {
		g.line("IonCurVar ionvar;")
	}
	for _, tf := range g.cat.Tables {
		g.writef("check_%s(%s);\n", g.method(tf.Block.Name), g.internalArgs())
	}
	g.close("")
}

// ---------------------------------------------------------------------------
// Derivimplicit
// ---------------------------------------------------------------------------

// derivImplicitKernels prints, per DERIVATIVE block solved implicitly, the
// residual functor handed to the Newton iteration and the kernel driving
// it.
func (g *generator) derivImplicitKernels() {
	for _, tb := range g.cat.DerivImplicit {
		g.derivImplicitKernel(tb)
	}
}

const (
	derivStride   = "*pnodecount+id"
	derivCallArgs = "id, pnodecount, data, indexes, thread, nt, ml, v"
)

func (g *generator) derivImplicitKernel(tb *ast.TopBlock) {
	n := g.cat.PrimesSize
	functor := fmt.Sprintf("_newton_%s_%s", tb.Name, g.m.Suffix)
	g.withFrame(g.kernelFrame(), func() {
		slist1 := g.resolveStorage("slist1")
		dlist1 := g.resolveStorage("dlist1")
		dlist2 := fmt.Sprintf("double* dlist2 = static_cast<double*>(thread[dith1()].pval) + (%d*pnodecount);", n)

		g.blank()
		g.blank()
		g.open("namespace")
		g.open("struct " + functor)
		g.open(fmt.Sprintf("int operator()(%s) const", g.externalParams(false)))
		g.castInstance()
		if g.cat.IonVarStruct {
			g.line("IonCurVar ionvar;")
		}
		g.line("double* savstate1 = static_cast<double*>(thread[dith1()].pval);")
		g.writef("auto const& slist1 = %s;\n", slist1)
		g.writef("auto const& dlist1 = %s;\n", dlist1)
		g.line(dlist2)
		g.body(tb.Body)
		g.line("int counter = -1;")
		g.open(fmt.Sprintf("for (int i=0; i<%d; i++)", n))
		g.open("if (*deriv1_advance(thread))")
		g.writef("dlist2[(++counter)%[1]s] = data[dlist1[i]%[1]s]-(data[slist1[i]%[1]s]-savstate1[i%[1]s])/nt->_dt;\n", derivStride)
		g.closeOpen("else")
		g.writef("dlist2[(++counter)%[1]s] = data[slist1[i]%[1]s]-savstate1[i%[1]s];\n", derivStride)
		g.close("")
		g.close("")
		g.line("return 0;")
		g.close("")
		g.close(";")
		g.close("")

		g.blank()
		g.open(fmt.Sprintf("int %s(%s)", g.method(tb.Name), g.externalParams(false)))
		g.castInstance()
		g.line("double* savstate1 = (double*) thread[dith1()].pval;")
		g.writef("auto const& slist1 = %s;\n", slist1)
		g.writef("auto& slist2 = %s;\n", g.resolveStorage("slist2"))
		g.line(dlist2)
		g.open(fmt.Sprintf("for (int i=0; i<%d; i++)", n))
		g.writef("savstate1[i%[1]s] = data[slist1[i]%[1]s];\n", derivStride)
		g.close("")
		g.writef("int reset = nrn_newton_thread(static_cast<NewtonSpace*>(*newtonspace1(thread)), %d, slist2, %s{}, dlist2, %s);\n",
			n, functor, derivCallArgs)
		g.line("return reset;")
		g.close("")
	})
}

// ---------------------------------------------------------------------------
// Lowered solvers
// ---------------------------------------------------------------------------

// withSolverLocals runs body with the locals declared by a solver's
// variable block visible to its sibling blocks.
func (g *generator) withSolverLocals(variables *ast.Block, body func()) {
	saved := g.fr.renames
	g.fr.renames = maps.Clone(saved)
	for _, name := range solverLocals(variables) {
		g.fr.renames[name] = name
	}
	body()
	g.fr.renames = saved
}

func solverLocals(variables *ast.Block) []string {
	var out []string
	for _, d := range ast.Find[*ast.LocalDecl](variables, nil) {
		for _, v := range d.Vars {
			out = append(out, v.Name)
		}
	}
	return out
}

func (g *generator) linearSolver(s *ast.LinearSolver) {
	ft := g.opts.FloatType
	g.withSolverLocals(s.Variables, func() {
		g.blank()
		g.writef("Eigen::Matrix<%s, %d, 1> nmodl_eigen_xm, nmodl_eigen_fm;\n", ft, s.N)
		g.writef("Eigen::Matrix<%[1]s, %[2]d, %[2]d> nmodl_eigen_jm;\n", ft, s.N)
		g.writef("%s* nmodl_eigen_x = nmodl_eigen_xm.data();\n", ft)
		g.writef("%s* nmodl_eigen_j = nmodl_eigen_jm.data();\n", ft)
		g.writef("%s* nmodl_eigen_f = nmodl_eigen_fm.data();\n", ft)
		g.body(s.Variables)
		g.body(s.Initialize)
		g.body(s.SetupX)
		g.blank()
		if s.N <= 4 {
			g.line("nmodl_eigen_xm = nmodl_eigen_jm.inverse()*nmodl_eigen_fm;")
		} else {
			g.writef("nmodl_eigen_xm = Eigen::PartialPivLU<Eigen::Ref<Eigen::Matrix<%[1]s, %[2]d, %[2]d>>>(nmodl_eigen_jm).solve(nmodl_eigen_fm);\n", ft, s.N)
		}
		g.blank()
		g.body(s.UpdateStates)
		g.body(s.Finalize)
	})
}

func (g *generator) nonLinearSolver(s *ast.NonLinearSolver) {
	ft := g.opts.FloatType
	g.withSolverLocals(s.Variables, func() {
		g.blank()
		g.writef("Eigen::Matrix<%s, %d, 1> nmodl_eigen_xm;\n", ft, s.N)
		g.writef("%s* nmodl_eigen_x = nmodl_eigen_xm.data();\n", ft)
		g.body(s.SetupX)

		g.open("struct functor")
		g.line("NrnThread* nt;")
		g.writef("%s* inst;\n", g.instanceType())
		g.line("int id, pnodecount;")
		g.line("double v;")
		g.line("const Datum* indexes;")
		g.line("double* data;")
		g.line("ThreadDatum* thread;")
		if g.cat.IonVarStruct {
			g.line("IonCurVar ionvar;")
		}
		g.body(s.Variables)
		g.blank()

		g.open("void initialize()")
		g.body(s.Initialize)
		g.close("")
		g.blank()

		g.writef("functor(NrnThread* nt, %s* inst, int id, int pnodecount, double v, const Datum* indexes, "+
			"double* data, ThreadDatum* thread) : nt{nt}, inst{inst}, id{id}, pnodecount{pnodecount}, "+
			"v{v}, indexes{indexes}, data{data}, thread{thread} {}\n", g.instanceType())

		head := fmt.Sprintf("void operator()(const Eigen::Matrix<%[1]s, %[2]d, 1>& nmodl_eigen_xm, "+
			"Eigen::Matrix<%[1]s, %[2]d, 1>& nmodl_eigen_fm, Eigen::Matrix<%[1]s, %[2]d, %[2]d>& nmodl_eigen_jm)", ft, s.N)
		if g.functorIsConst(s) {
			head += " const"
		}
		g.open(head)
		g.writef("const %s* nmodl_eigen_x = nmodl_eigen_xm.data();\n", ft)
		g.writef("%s* nmodl_eigen_j = nmodl_eigen_jm.data();\n", ft)
		g.writef("%s* nmodl_eigen_f = nmodl_eigen_fm.data();\n", ft)
		g.body(s.Functor)
		g.close("")
		g.blank()

		g.open("void finalize()")
		g.body(s.Finalize)
		g.close("")
		g.close(";")

		g.line("// call newton solver")
		g.line("functor newton_functor(nt, inst, id, pnodecount, v, indexes, data, thread);")
		g.line("newton_functor.initialize();")
		g.line("int newton_iterations = nmodl::newton::newton_solver(nmodl_eigen_xm, newton_functor);")
		g.body(s.UpdateStates)
		g.line("newton_functor.finalize();")
	})
}

// functorIsConst reports whether the residual evaluation leaves every
// functor member untouched.
func (g *generator) functorIsConst(s *ast.NonLinearSolver) bool {
	scope := g.fr.scope
	if s.Variables != nil && s.Variables.Scope != nil {
		scope = s.Variables.Scope
	}
	for _, name := range solverLocals(s.Variables) {
		switch defuse.Analyze(s.Functor, name, scope).Eval() {
		case defuse.Def, defuse.LocalDef, defuse.ConditionalDef:
			return false
		}
	}
	return true
}
