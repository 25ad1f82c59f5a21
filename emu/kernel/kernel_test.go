/*
 * x64os - System call bridge tests.
 *
 * Copyright 2025, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package kernel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cpu "github.com/davidly/x64os/emu/cpu"
	mem "github.com/davidly/x64os/emu/memory"
)

func newTestKernel() *Kernel {
	mem.SetSize(1024)
	cpu.InitializeCPU()
	return New(false, 0x10000, 0xf0000)
}

// Drive one 64 bit syscall through the upcall.
func call(k *Kernel, number uint64, args ...uint64) uint64 {
	regs := []int{cpu.RDI, cpu.RSI, cpu.RDX, cpu.R10, cpu.R8, cpu.R9}
	cpu.SetReg(cpu.RAX, number)
	for i, arg := range args {
		cpu.SetReg(regs[i], arg)
	}
	k.Syscall()
	return cpu.Reg(cpu.RAX)
}

func TestWriteCapture(t *testing.T) {
	k := newTestKernel()
	var out bytes.Buffer
	k.SetStdout(&out)

	mem.PutBlock(0x2000, []byte("hello\n"))
	result := call(k, 1, 1, 0x2000, 6)
	assert.Equal(t, uint64(6), result)
	assert.Equal(t, "hello\n", out.String())
}

func TestWritevGathers(t *testing.T) {
	k := newTestKernel()
	var out bytes.Buffer
	k.SetStdout(&out)

	mem.PutBlock(0x2000, []byte("ab"))
	mem.PutBlock(0x2010, []byte("cde"))
	// Two iovecs at 0x3000.
	mem.PutQuad(0x3000, 0x2000)
	mem.PutQuad(0x3008, 2)
	mem.PutQuad(0x3010, 0x2010)
	mem.PutQuad(0x3018, 3)
	result := call(k, 20, 1, 0x3000, 2)
	assert.Equal(t, uint64(5), result)
	assert.Equal(t, "abcde", out.String())
}

func TestBrk(t *testing.T) {
	k := newTestKernel()
	base := call(k, 12, 0)
	assert.Equal(t, uint64(0x10000), base)

	grown := call(k, 12, 0x18000)
	assert.Equal(t, uint64(0x18000), grown)

	// Below the base the current break is returned unchanged.
	still := call(k, 12, 0x100)
	assert.Equal(t, uint64(0x18000), still)
}

func TestMmapDistinctRegions(t *testing.T) {
	k := newTestKernel()
	first := call(k, 9, 0, 0x2000)
	second := call(k, 9, 0, 0x2000)
	require.Less(t, first, uint64(0xf0000))
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, second, first+0x2000)

	// munmap always succeeds.
	assert.Zero(t, call(k, 11, first, 0x2000))
}

func TestExit(t *testing.T) {
	k := newTestKernel()
	cpu.SetReg(cpu.RAX, 60)
	cpu.SetReg(cpu.RDI, 3)
	alive := k.Syscall()
	assert.False(t, alive)
	assert.True(t, k.Exited())
	assert.Equal(t, 3, k.ExitCode())
}

func TestUname(t *testing.T) {
	k := newTestKernel()
	assert.Zero(t, call(k, 63, 0x4000))
	sysname, _ := mem.GetString(0x4000)
	assert.Equal(t, "Linux", sysname)
	machine, _ := mem.GetString(0x4000 + 4*65)
	assert.Equal(t, "x86_64", machine)
}

func TestFstatModes(t *testing.T) {
	k := newTestKernel()
	assert.Zero(t, call(k, 5, 1, 0x4000))
	mode, _ := mem.GetWord(0x4000 + 24)
	assert.Equal(t, uint32(0o020620), mode, "stdout is a character device")

	assert.Equal(t, errno(errBadf), call(k, 5, 99, 0x4000))
}

func TestGetrandomFills(t *testing.T) {
	k := newTestKernel()
	assert.Equal(t, uint64(16), call(k, 318, 0x5000, 16))
	data, fail := mem.GetBlock(0x5000, 16)
	require.False(t, fail)
	zero := true
	for _, by := range data {
		if by != 0 {
			zero = false
		}
	}
	assert.False(t, zero, "getrandom left the buffer zeroed")
}

func TestArchPrctlRouting(t *testing.T) {
	k := newTestKernel()
	assert.Zero(t, call(k, 158, archSetFS, 0x7000))
	assert.Equal(t, errno(errInval), call(k, 158, archGetFS, 0))
}

func TestUnknownSyscallENOSYS(t *testing.T) {
	k := newTestKernel()
	assert.Equal(t, errno(errNosys), call(k, 9999))
}

func TestMode32Write(t *testing.T) {
	mem.SetSize(1024)
	cpu.InitializeCPU()
	k := New(true, 0x10000, 0xf0000)
	var out bytes.Buffer
	k.SetStdout(&out)

	mem.PutBlock(0x2000, []byte("xy"))
	cpu.SetReg(cpu.RAX, 4) // i386 write
	cpu.SetReg(cpu.RBX, 1)
	cpu.SetReg(cpu.RCX, 0x2000)
	cpu.SetReg(cpu.RDX, 2)
	require.True(t, k.Syscall())
	assert.Equal(t, "xy", out.String())
	assert.Equal(t, uint64(2), cpu.Reg(cpu.RAX))
}
