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
	"bytes"
	"fmt"
)

// printer accumulates indented C++ text.
type printer struct {
	buf    *bytes.Buffer
	indent int
}

func newPrinter() printer {
	return printer{buf: &bytes.Buffer{}}
}

// writef writes formatted output with the current indentation. The caller
// includes the trailing newline.
func (p *printer) writef(format string, args ...any) {
	for range p.indent {
		p.buf.WriteString("    ")
	}
	fmt.Fprintf(p.buf, format, args...)
}

// writefRaw writes formatted output without indentation (for continuing same line).
func (p *printer) writefRaw(format string, args ...any) {
	fmt.Fprintf(p.buf, format, args...)
}

// line writes text as one indented line; text is not a format string.
func (p *printer) line(text string) {
	p.writef("%s\n", text)
}

// lines writes every entry with line.
func (p *printer) lines(texts []string) {
	for _, t := range texts {
		p.line(t)
	}
}

// blank writes an empty line.
func (p *printer) blank() {
	p.buf.WriteString("\n")
}

// open writes head followed by " {" and indents. An empty head opens a
// bare block.
func (p *printer) open(head string) {
	if head == "" {
		p.writef("{\n")
	} else {
		p.writef("%s {\n", head)
	}
	p.indent++
}

// close dedents and writes the closing brace followed by tail.
func (p *printer) close(tail string) {
	p.indent--
	p.writef("}%s\n", tail)
}

// closeOpen closes a block and opens the next one on the same line, as in
// "} else {".
func (p *printer) closeOpen(head string) {
	p.indent--
	p.writef("} %s {\n", head)
	p.indent++
}

func (p *printer) String() string {
	return p.buf.String()
}
