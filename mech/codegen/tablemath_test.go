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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpTableGridPoints(t *testing.T) {
	tb := buildInterpTable(math.Sin, -1, 1, 200)
	assert.Len(t, tb.Values, 201)
	for i := 1; i < 200; i++ {
		x := -1 + float64(i)*0.01
		assert.InDelta(t, math.Sin(x), tb.Lookup(x), 1e-9, "x=%g", x)
	}
}

func TestInterpTableInterpolates(t *testing.T) {
	sq := func(x float64) float64 { return x * x }
	tb := buildInterpTable(sq, 0, 10, 10)
	assert.Equal(t, 9.0, tb.Lookup(3))
	assert.Equal(t, 6.5, tb.Lookup(2.5))
	assert.InDelta(t, 90.5, tb.Lookup(9.5), 1e-12)
}

func TestInterpTableClamps(t *testing.T) {
	sq := func(x float64) float64 { return x * x }
	tb := buildInterpTable(sq, 0, 10, 10)
	assert.Equal(t, 0.0, tb.Lookup(-5))
	assert.Equal(t, 0.0, tb.Lookup(0))
	assert.Equal(t, 100.0, tb.Lookup(10))
	assert.Equal(t, 100.0, tb.Lookup(1e6))
	assert.True(t, math.IsNaN(tb.Lookup(math.NaN())))
}

// interpTable mirrors the arithmetic of check_<name> and the
// interpolating wrapper emitted for a tabulated function.
type interpTable struct {
	Min    float64
	Mfac   float64
	With   int
	Values []float64
}

// buildInterpTable samples f at With+1 points spread uniformly over
// [min, max], accumulating x the way the generated loop does.
func buildInterpTable(f func(float64) float64, min, max float64, with int) interpTable {
	dx := (max - min) / float64(with)
	t := interpTable{Min: min, Mfac: 1. / dx, With: with, Values: make([]float64, with+1)}
	x := min
	for i := range t.Values {
		t.Values[i] = f(x)
		x += dx
	}
	return t
}

// Lookup interpolates linearly between grid points. Arguments outside the
// grid clamp to the first or last sample; NaN propagates.
func (t interpTable) Lookup(x float64) float64 {
	xi := t.Mfac * (x - t.Min)
	if math.IsNaN(xi) {
		return xi
	}
	if xi <= 0 || xi >= float64(t.With) {
		if xi <= 0 {
			return t.Values[0]
		}
		return t.Values[t.With]
	}
	i := int(xi)
	theta := xi - float64(i)
	return t.Values[i] + theta*(t.Values[i+1]-t.Values[i])
}
