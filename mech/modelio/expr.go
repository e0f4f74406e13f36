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

package modelio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ajroetker/mechgen/mech/ast"
)

type exprJSON struct {
	Kind      string            `json:"kind"`
	Name      string            `json:"name"`
	Qualifier string            `json:"qualifier"`
	Index     json.RawMessage   `json:"index"`
	Order     int               `json:"order"`
	Text      string            `json:"text"`
	Value     json.RawMessage   `json:"value"`
	Op        string            `json:"op"`
	X         json.RawMessage   `json:"x"`
	Lhs       json.RawMessage   `json:"lhs"`
	Rhs       json.RawMessage   `json:"rhs"`
	Args      []json.RawMessage `json:"args"`
}

func (d *decoder) exprs(raw []json.RawMessage) ([]ast.Expr, error) {
	out := make([]ast.Expr, 0, len(raw))
	for _, r := range raw {
		e, err := d.expr(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) expr(raw json.RawMessage) (ast.Expr, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("missing expression")
	}
	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, err
		}
		return &ast.Name{Name: name}, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return &ast.Boolean{Value: b}, nil
	case '{':
		return d.taggedExpr(raw)
	default:
		return number(string(raw))
	}
}

// number keeps integral literals as integers and the source spelling of
// everything else.
func number(text string) (ast.Expr, error) {
	if i, err := strconv.Atoi(text); err == nil {
		return &ast.Integer{Value: i}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return &ast.Number{Text: text, Value: f}, nil
}

func (d *decoder) taggedExpr(raw json.RawMessage) (ast.Expr, error) {
	var e exprJSON
	if err := strict(raw, &e); err != nil {
		return nil, err
	}
	switch e.Kind {
	case "name":
		return &ast.Name{Name: e.Name}, nil
	case "indexed":
		idx, err := d.expr(e.Index)
		if err != nil {
			return nil, err
		}
		return &ast.IndexedName{Name: e.Name, Index: idx}, nil
	case "qualified":
		return &ast.QualifiedName{Qualifier: e.Qualifier, Name: e.Name}, nil
	case "prime":
		return &ast.PrimeName{Name: e.Name, Order: max(e.Order, 1)}, nil
	case "number":
		text := e.Text
		if text == "" {
			text = string(e.Value)
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		return &ast.Number{Text: e.Text, Value: f}, nil
	case "integer":
		i, err := strconv.Atoi(string(e.Value))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %s", e.Value)
		}
		return &ast.Integer{Value: i}, nil
	case "string":
		var s string
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, fmt.Errorf("string value: %w", err)
		}
		return &ast.String{Value: s}, nil
	case "unary":
		x, err := d.expr(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "-":
			return &ast.Unary{Op: ast.OpNeg, X: x}, nil
		case "!":
			return &ast.Unary{Op: ast.OpNot, X: x}, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", e.Op)
	case "binary":
		op, err := ast.ParseBinaryOp(e.Op)
		if err != nil {
			return nil, err
		}
		lhs, err := d.expr(e.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := d.expr(e.Rhs)
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: op, Lhs: lhs, Rhs: rhs}, nil
	case "paren":
		x, err := d.expr(e.X)
		if err != nil {
			return nil, err
		}
		return &ast.Paren{X: x}, nil
	case "call":
		args, err := d.exprs(e.Args)
		if err != nil {
			return nil, err
		}
		return &ast.Call{Name: e.Name, Args: args}, nil
	case "":
		return nil, fmt.Errorf("expression without kind")
	default:
		return nil, fmt.Errorf("unknown expression kind %q", e.Kind)
	}
}
