/*
   x64os: instruction disassembly for the trace output.

   Copyright 2025, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package disassemble

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble one instruction at pc. Returns the text and the number
// of bytes the instruction occupies; undecodable bytes come back as a
// .byte directive of length one so the trace can keep moving.
func Disassemble(code []byte, pc uint64, mode32 bool, symLookup func(uint64) string) (string, int) {
	mode := 64
	if mode32 {
		mode = 32
	}
	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		if len(code) == 0 {
			return "?", 0
		}
		return fmt.Sprintf(".byte 0x%02x", code[0]), 1
	}
	var lookup x86asm.SymLookup
	if symLookup != nil {
		lookup = func(addr uint64) (string, uint64) {
			name := symLookup(addr)
			if name == "" {
				return "", 0
			}
			return name, addr
		}
	}
	return x86asm.GNUSyntax(inst, pc, lookup), inst.Len
}
