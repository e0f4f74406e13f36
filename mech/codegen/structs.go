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

	"github.com/ajroetker/mechgen/mech/symtab"
)

// ----- Storage structs -----

func (g *generator) dataStructures() {
	g.globalStruct()
	g.instanceStruct()
	g.ionVarStruct()
}

func (g *generator) globalStruct() {
	g.blank()
	g.blank()
	g.line("/** all global variables */")
	g.open("struct " + g.storeType())
	for _, v := range g.cat.Globals {
		dims := ""
		switch {
		case v.Rows > 0:
			dims = fmt.Sprintf("[%d][%d]", v.Rows, v.Length)
		case v.Array || v.IsArray():
			dims = fmt.Sprintf("[%d]", v.Length)
		}
		g.writef("%s %s%s{%s};\n", v.Type, v.Name, dims, v.Init)
	}
	g.close(";")
	g.blank()
	for _, trait := range []string{
		"is_trivially_copy_constructible_v",
		"is_trivially_move_constructible_v",
		"is_trivially_copy_assignable_v",
		"is_trivially_move_assignable_v",
		"is_trivially_destructible_v",
	} {
		g.writef("static_assert(std::%s<%s>);\n", trait, g.storeType())
	}
	g.writef("static %s %s;\n", g.storeType(), g.storeVar())
}

func (g *generator) instanceStruct() {
	g.blank()
	g.blank()
	g.line("/** all mechanism instance variables and global variables */")
	g.open("struct " + g.instanceType())
	for _, e := range g.cat.Externals {
		g.writef("%s* %s{&coreneuron::%s};\n", e.Type, e.Name, e.Name)
	}
	for _, v := range g.cat.Floats {
		g.writef("%s%s* %s{};\n", constQualifier(v.Constant), g.opts.FloatType, v.Name)
	}
	for _, v := range g.cat.Ints {
		typ := "int"
		if v.Kind == symtab.IndexPointer {
			typ = "double"
			if v.VData {
				typ = "void*"
			}
		}
		g.writef("%s%s* %s{};\n", constQualifier(v.Constant), typ, v.Name)
	}
	g.writef("%s* global{&%s};\n", g.storeType(), g.storeVar())
	g.close(";")
}

func constQualifier(c bool) string {
	if c {
		return "const "
	}
	return ""
}

// ionVarStruct prints the per-instance copy of ion writes and currents.
func (g *generator) ionVarStruct() {
	if !g.cat.IonVarStruct {
		return
	}
	members := g.cat.IonCurVarMembers()
	g.blank()
	g.blank()
	g.line("/** ion write variables */")
	g.open("struct IonCurVar")
	for _, name := range members {
		g.writef("double %s;\n", name)
	}
	inits := make([]string, len(members))
	for i, name := range members {
		inits[i] = name + "(0)"
	}
	g.writef("IonCurVar() : %s {}\n", strings.Join(inits, ", "))
	g.close(";")
}

// hocGlobals connects user globals to the interpreter.
func (g *generator) hocGlobals() {
	var scalars, vectors []*Var
	for _, v := range g.cat.Globals {
		exposed := v.Symbol != nil && v.Tags.Has(symtab.Global) && !v.Symbol.Tags.Has(symtab.Local)
		if !exposed && v.Name != "usetable" {
			continue
		}
		if v.Array || v.IsArray() {
			vectors = append(vectors, v)
		} else {
			scalars = append(scalars, v)
		}
	}

	g.blank()
	g.blank()
	g.line("/** connect global (scalar) variables to hoc -- */")
	g.open("static DoubScal hoc_scalar_double[] =")
	for _, v := range scalars {
		g.writef("{\"%s_%s\", &%s.%s},\n", v.Name, g.m.Suffix, g.storeVar(), v.Name)
	}
	g.line("{nullptr, nullptr}")
	g.close(";")

	g.blank()
	g.blank()
	g.line("/** connect global (array) variables to hoc -- */")
	g.open("static DoubVec hoc_vector_double[] =")
	for _, v := range vectors {
		g.writef("{\"%s_%s\", %s.%s, %d},\n", v.Name, g.m.Suffix, g.storeVar(), v.Name, v.Length)
	}
	g.line("{nullptr, nullptr, 0}")
	g.close(";")
}

// ----- Thread callbacks -----

// threadCallbacks prints the Newton workspace accessors and the per-thread
// memory callbacks used by derivimplicit kernels.
func (g *generator) threadCallbacks() {
	if !g.cat.ThreadCallbacks() {
		return
	}
	g.blank()
	g.blank()
	g.line("/** thread specific helper routines for derivimplicit */")
	g.blank()
	g.open("static inline int* deriv1_advance(ThreadDatum* thread)")
	g.line("return &(thread[0].i);")
	g.close("")
	g.blank()
	g.open("static inline int dith1()")
	g.line("return 1;")
	g.close("")
	g.blank()
	g.open("static inline void** newtonspace1(ThreadDatum* thread)")
	g.line("return &(thread[2]._pvoid);")
	g.close("")

	g.blank()
	g.blank()
	g.line("/** thread memory allocation callback */")
	g.open("static void thread_mem_init(ThreadDatum* thread)")
	g.line("thread[dith1()].pval = nullptr;")
	g.close("")
	g.blank()
	g.blank()
	g.line("/** thread memory cleanup callback */")
	g.open("static void thread_mem_cleanup(ThreadDatum* thread)")
	g.line("free(thread[dith1()].pval);")
	g.line("nrn_destroy_newtonspace(static_cast<NewtonSpace*>(*newtonspace1(thread)));")
	g.close("")
}

// ----- Instance setup -----

func (g *generator) castInstance() {
	g.writef("auto* const inst = static_cast<%s*>(ml->instance);\n", g.instanceType())
}

func (g *generator) castInstanceAndAssert() {
	g.castInstance()
	g.line("assert(inst);")
	g.line("assert(inst->global);")
	g.writef("assert(inst->global == &%s);\n", g.storeVar())
	g.line("assert(inst->global == ml->global_variables);")
	g.writef("assert(ml->global_variables_size == sizeof(%s));\n", g.storeType())
}

func (g *generator) instanceSetup() {
	narrowed := g.opts.FloatType != "double"
	if narrowed {
		g.blank()
		g.blank()
		g.writef("static inline %s* setup_range_variable(double* variable, int n) {\n", g.opts.FloatType)
		g.indent++
		g.writef("%s* data = (%s*) mem_alloc(n, sizeof(%s));\n", g.opts.FloatType, g.opts.FloatType, g.opts.FloatType)
		g.open("for(size_t i = 0; i < n; i++)")
		g.line("data[i] = variable[i];")
		g.close("")
		g.line("return data;")
		g.close("")
	}

	g.blank()
	g.line("// Allocate instance structure")
	g.open(fmt.Sprintf("static void %s(NrnThread* nt, Memb_list* ml, int type)", g.method("nrn_private_constructor")))
	g.line("assert(!ml->instance);")
	g.line("assert(!ml->global_variables);")
	g.line("assert(ml->global_variables_size == 0);")
	g.writef("auto* const inst = new %s{};\n", g.instanceType())
	g.writef("assert(inst->global == &%s);\n", g.storeVar())
	g.line("ml->instance = inst;")
	g.line("ml->global_variables = inst->global;")
	g.writef("ml->global_variables_size = sizeof(%s);\n", g.storeType())
	g.close("")
	g.blank()

	g.line("// Deallocate the instance structure")
	g.open(fmt.Sprintf("static void %s(NrnThread* nt, Memb_list* ml, int type)", g.method("nrn_private_destructor")))
	g.castInstanceAndAssert()
	if narrowed {
		for _, v := range g.cat.Floats {
			g.writef("mem_free((void*)inst->%s);\n", v.Name)
		}
	}
	g.line("delete inst;")
	g.line("ml->instance = nullptr;")
	g.line("ml->global_variables = nullptr;")
	g.line("ml->global_variables_size = 0;")
	g.close("")
	g.blank()

	g.line("/** initialize mechanism instance variables */")
	g.open("static inline void setup_instance(NrnThread* nt, Memb_list* ml)")
	g.castInstanceAndAssert()
	g.line("int pnodecount = ml->_nodecount_padded;")
	g.line("Datum* indexes = ml->pdata;")
	id := 0
	for _, v := range g.cat.Floats {
		if narrowed {
			g.writef("inst->%s = setup_range_variable(ml->data+%d*pnodecount, pnodecount);\n", v.Name, id)
		} else {
			g.writef("inst->%s = ml->data+%d*pnodecount;\n", v.Name, id)
		}
		id += v.Length
	}
	for _, v := range g.cat.Ints {
		source := "nt->_data"
		switch {
		case v.Kind != symtab.IndexPointer:
			source = "ml->pdata"
		case v.VData:
			source = "nt->_vdata"
		}
		g.writef("inst->%s = %s;\n", v.Name, source)
	}
	g.close("")
}

func (g *generator) nrnAlloc() {
	g.blank()
	g.blank()
	g.line("/** initialize channel */")
	g.open(fmt.Sprintf("static void %s(double* data, Datum* indexes, int type)", g.method("nrn_alloc")))
	g.line("// do nothing")
	g.close("")
}
