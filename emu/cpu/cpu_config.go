/*
   CPU: configuration keywords.

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

package cpu

import (
	config "github.com/davidly/x64os/config/configparser"
	mem "github.com/davidly/x64os/emu/memory"
)

// register configuration keywords on initialize.
func init() {
	config.RegisterOption("MEMSIZE", setMemSize)
	config.RegisterSwitch("TRACE", setTrace)
	config.RegisterSwitch("MODE32", setMode32)
}

// Set size of guest memory.
func setMemSize(number string, _ []config.Option) error {
	size, err := config.ParseSize(number)
	if err != nil {
		return err
	}
	mem.SetSize(size)
	return nil
}

// Enable instruction tracing from the configuration.
func setTrace(_ string, _ []config.Option) error {
	sysCPU.trace = true
	return nil
}

// Force 32 bit compatibility mode.
func setMode32(_ string, _ []config.Option) error {
	sysCPU.mode32 = true
	return nil
}
