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

	"github.com/ajroetker/mechgen/mech/symtab"
)

// Context is the emission context a name is resolved in.
type Context struct {
	// UseInstance addresses storage through the instance struct; it is
	// false only inside top-level foreign code.
	UseInstance bool

	// InNetReceive keeps t as the event time argument.
	InNetReceive bool
}

// Resolver maps model names to their C++ storage expressions.
type Resolver struct {
	cat *Catalog
}

// NewResolver returns a Resolver over the layout of c.
func NewResolver(c *Catalog) *Resolver {
	return &Resolver{cat: c}
}

// Resolve returns the C++ expression accessing name. Names that are not
// storage (locals, arguments, methods, unknown names) are returned as is.
// Resolve has no side effects.
func (r *Resolver) Resolve(name string, ctx Context) string {
	c := r.cat
	name, aliased := r.ionAlias(name)
	if aliased {
		return name
	}

	if v, pos, ok := c.Float(name); ok {
		return floatForm(v, pos, ctx.UseInstance)
	}
	if v, pos, ok := c.Int(name); ok {
		return indexForm(v, pos, ctx.UseInstance)
	}
	if _, ok := c.Global(name); ok {
		if ctx.UseInstance {
			return "inst->global->" + name
		}
		return fmt.Sprintf("%s.%s", globalInstanceName(c.Model.Suffix), name)
	}
	if _, ok := c.Shadow(name); ok {
		return name + "[id]"
	}

	switch {
	case name == "dt":
		return "nt->_dt"
	case name == "t" && !ctx.InNetReceive:
		return "nt->_t"
	}

	if _, ok := c.External(name); ok {
		if ctx.UseInstance {
			return "*(inst->" + name + ")"
		}
		return name
	}
	return name
}

// ionAlias renames ion variables when writes go through IonCurVar. Read
// variables address the ion storage handle, written variables and currents
// the struct member.
func (r *Resolver) ionAlias(name string) (string, bool) {
	c := r.cat
	if !c.IonVarStruct {
		return name, false
	}
	if c.IsIonWriteVariable(name) || c.IsCurrent(name) {
		return "ionvar." + name, true
	}
	if c.IsIonReadVariable(name) {
		return "ion_" + name, false
	}
	return name, false
}

func floatForm(v *Var, pos int, useInstance bool) string {
	switch {
	case useInstance && v.IsArray():
		return fmt.Sprintf("(inst->%s+id*%d)", v.Name, v.Length)
	case useInstance:
		return fmt.Sprintf("inst->%s[id]", v.Name)
	case v.IsArray():
		return fmt.Sprintf("(data + %d*pnodecount + id*%d)", pos, v.Length)
	default:
		return fmt.Sprintf("data[%d*pnodecount + id]", pos)
	}
}

func indexForm(v *Var, pos int, useInstance bool) string {
	switch v.Kind {
	case symtab.IndexPlain:
		if useInstance {
			return fmt.Sprintf("inst->%s[%d]", v.Name, pos)
		}
		return fmt.Sprintf("indexes[%d]", pos)
	case symtab.IndexInteger:
		if useInstance {
			return fmt.Sprintf("inst->%s[%d*pnodecount+id]", v.Name, pos)
		}
		return fmt.Sprintf("indexes[%d*pnodecount+id]", pos)
	default:
		if useInstance {
			return fmt.Sprintf("inst->%s[indexes[%d*pnodecount + id]]", v.Name, pos)
		}
		data := "_data"
		if v.VData {
			data = "_vdata"
		}
		return fmt.Sprintf("nt->%s[indexes[%d*pnodecount + id]]", data, pos)
	}
}
