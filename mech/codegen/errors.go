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
	"fmt"
)

// Category classifies an internal code generation failure.
type Category int

const (
	// CategoryUnknown is any failure not classified below, including
	// unexpected node types.
	CategoryUnknown Category = iota
	// CategoryVariable is a variable absent from every storage category
	// where one was required.
	CategoryVariable
	// CategoryTable is a table statement appearing more than once in a
	// function or procedure.
	CategoryTable
	// CategoryIon is an unhandled ion variable combination.
	CategoryIon
	// CategoryUnsolved is a derivative or other unsolved construct reaching
	// generation.
	CategoryUnsolved
	// CategoryCollision is a synthesized name clashing with a user symbol.
	CategoryCollision
	// CategoryEvent is an event call used outside the blocks allowing it.
	CategoryEvent
)

func (c Category) String() string {
	switch c {
	case CategoryUnknown:
		return "unknown"
	case CategoryVariable:
		return "variable"
	case CategoryTable:
		return "table"
	case CategoryIon:
		return "ion"
	case CategoryUnsolved:
		return "unsolved"
	case CategoryCollision:
		return "collision"
	case CategoryEvent:
		return "event"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// InternalError aborts the generation of one model. Generate never returns
// partial output alongside it.
type InternalError struct {
	Model    string
	Category Category
	Msg      string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("codegen %s: %s error: %s", e.Model, e.Category, e.Msg)
}

// fail raises an InternalError; it is recovered at the Generate boundary.
func fail(model string, cat Category, format string, args ...any) {
	panic(&InternalError{Model: model, Category: cat, Msg: fmt.Sprintf(format, args...)})
}

// recoverInternal turns a panic raised during generation into an error.
// Panics that are not InternalErrors (such as an AST walker meeting an
// unexpected node type) are reported as CategoryUnknown.
func recoverInternal(model string, r any) error {
	switch v := r.(type) {
	case *InternalError:
		return v
	case error:
		var ie *InternalError
		if errors.As(v, &ie) {
			return ie
		}
		return &InternalError{Model: model, Category: CategoryUnknown, Msg: v.Error()}
	default:
		return &InternalError{Model: model, Category: CategoryUnknown, Msg: fmt.Sprint(v)}
	}
}
