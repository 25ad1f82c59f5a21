/*
   x64os: Linux system call bridge.

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

package kernel

import (
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	cpu "github.com/davidly/x64os/emu/cpu"
	mem "github.com/davidly/x64os/emu/memory"
	"github.com/davidly/x64os/util/debug"
)

/*
   The CPU raises a single upcall on SYSCALL (64 bit) or INT 0x80
   (32 bit). The bridge reads the registers per the matching Linux
   ABI, performs the call against the host, and writes the result to
   rAX; errors return as negative errno values. Only the subset a
   statically linked C, Fortran or Rust binary needs is implemented.
*/

// Errno values returned to the guest.
const (
	errPerm  = 1
	errNoent = 2
	errBadf  = 9
	errAgain = 11
	errNomem = 12
	errFault = 14
	errInval = 22
	errNotty = 25
	errNosys = 38
)

// errno converts a positive errno value into the negative uint64 the guest expects.
func errno(e int) uint64 {
	return uint64(-int64(e))
}

// arch_prctl selectors.
const (
	archSetGS = 0x1001
	archSetFS = 0x1002
	archGetFS = 0x1003
	archGetGS = 0x1004
)

type Kernel struct {
	mode32   bool
	brk      uint64 // Current program break
	brkBase  uint64 // Lowest allowed break
	mmapNext uint64 // Next anonymous mapping address
	mmapEnd  uint64

	files    map[int]*os.File
	nextFD   int
	exited   bool
	exitCode int

	stdout io.Writer // Test override for guest fd 1/2
}

// New builds a kernel for a loaded image. The mmap arena sits between
// the program break and the stack.
func New(mode32 bool, brk, stackLimit uint64) *Kernel {
	arena := brk + (stackLimit-brk)/2
	k := &Kernel{
		mode32:   mode32,
		brk:      brk,
		brkBase:  brk,
		mmapNext: (arena + 0xffff) &^ uint64(0xffff),
		mmapEnd:  stackLimit,
		files:    map[int]*os.File{0: os.Stdin, 1: os.Stdout, 2: os.Stderr},
		nextFD:   3,
	}
	return k
}

// Redirect guest stdout/stderr, used by tests.
func (k *Kernel) SetStdout(w io.Writer) {
	k.stdout = w
}

// True once the guest called exit.
func (k *Kernel) Exited() bool {
	return k.exited
}

// Exit code chosen by the guest.
func (k *Kernel) ExitCode() int {
	return k.exitCode
}

// Syscall is the CPU upcall. Returns false to end emulation.
func (k *Kernel) Syscall() bool {
	if k.mode32 {
		return k.syscall32()
	}
	return k.syscall64()
}

// 64 bit ABI: number in RAX, arguments in RDI, RSI, RDX, R10, R8, R9.
func (k *Kernel) syscall64() bool {
	number := cpu.Reg(cpu.RAX)
	arg1 := cpu.Reg(cpu.RDI)
	arg2 := cpu.Reg(cpu.RSI)
	arg3 := cpu.Reg(cpu.RDX)
	arg4 := cpu.Reg(cpu.R10)

	var result uint64
	switch number {
	case 0: // read
		result = k.read(arg1, arg2, arg3)
	case 1: // write
		result = k.write(arg1, arg2, arg3)
	case 2: // open
		result = k.open(arg1, arg2)
	case 3: // close
		result = k.close(arg1)
	case 5: // fstat
		result = k.fstat(arg1, arg2)
	case 8: // lseek
		result = k.lseek(arg1, arg2, arg3)
	case 9: // mmap
		result = k.mmap(arg1, arg2)
	case 10, 11, 28: // mprotect, munmap, madvise
		result = 0
	case 12: // brk
		result = k.setBrk(arg1)
	case 13, 14: // rt_sigaction, rt_sigprocmask
		result = 0
	case 16: // ioctl
		result = k.ioctl(arg1, arg2)
	case 20: // writev
		result = k.writev(arg1, arg2, arg3)
	case 24: // sched_yield
		result = 0
	case 35: // nanosleep
		result = 0
	case 39: // getpid
		result = 1000
	case 60, 231: // exit, exit_group
		k.exited = true
		k.exitCode = int(int32(arg1))
		return false
	case 63: // uname
		result = k.uname(arg1)
	case 89: // readlink
		result = errno(errNoent)
	case 96: // gettimeofday
		result = k.gettimeofday(arg1)
	case 102, 104, 107, 108: // getuid, getgid, geteuid, getegid
		result = 1000
	case 158: // arch_prctl
		result = k.archPrctl(arg1, arg2)
	case 186: // gettid
		result = 1000
	case 201: // time
		result = k.timeOfDay(arg1)
	case 202: // futex
		result = k.futex(arg2)
	case 218: // set_tid_address
		result = 1000
	case 228: // clock_gettime
		result = k.clockGettime(arg2)
	case 257: // openat
		result = k.open(arg2, arg3)
	case 262: // newfstatat
		result = k.fstat(arg1, arg3)
	case 267: // readlinkat
		result = errno(errNoent)
	case 273, 334: // set_robust_list, rseq
		result = 0
	case 302: // prlimit64
		result = 0
	case 318: // getrandom
		result = k.getrandom(arg1, arg2)
	default:
		slog.Warn("unimplemented syscall", "number", number)
		result = errno(errNosys)
	}
	_ = arg4
	debug.Debugf("SYSCALL", debug.DebugSyscall, "%d(%x, %x, %x) = %x",
		number, arg1, arg2, arg3, result)
	cpu.SetReg(cpu.RAX, result)
	return true
}

// 32 bit ABI: number in EAX, arguments in EBX, ECX, EDX, ESI, EDI.
func (k *Kernel) syscall32() bool {
	number := cpu.Reg(cpu.RAX) & 0xffffffff
	arg1 := cpu.Reg(cpu.RBX) & 0xffffffff
	arg2 := cpu.Reg(cpu.RCX) & 0xffffffff
	arg3 := cpu.Reg(cpu.RDX) & 0xffffffff

	var result uint64
	switch number {
	case 1, 252: // exit, exit_group
		k.exited = true
		k.exitCode = int(int32(arg1))
		return false
	case 3: // read
		result = k.read(arg1, arg2, arg3)
	case 4: // write
		result = k.write(arg1, arg2, arg3)
	case 5: // open
		result = k.open(arg1, arg2)
	case 6: // close
		result = k.close(arg1)
	case 13: // time
		result = k.timeOfDay(arg1)
	case 19: // lseek
		result = k.lseek(arg1, arg2, arg3)
	case 20: // getpid
		result = 1000
	case 45: // brk
		result = k.setBrk(arg1)
	case 54: // ioctl
		result = k.ioctl(arg1, arg2)
	case 90, 192: // mmap, mmap2
		result = k.mmap(arg1, arg2)
	case 91: // munmap
		result = 0
	case 122: // uname
		result = k.uname(arg1)
	case 146: // writev
		result = k.writev(arg1, arg2, arg3)
	default:
		slog.Warn("unimplemented 32 bit syscall", "number", number)
		result = errno(errNosys)
	}
	debug.Debugf("SYSCALL", debug.DebugSyscall, "i386 %d(%x, %x, %x) = %x",
		number, arg1, arg2, arg3, result)
	cpu.SetReg(cpu.RAX, result&0xffffffff)
	return true
}

func (k *Kernel) read(fd, buf, count uint64) uint64 {
	file, ok := k.files[int(fd)]
	if !ok {
		return errno(errBadf)
	}
	data := make([]byte, count)
	n, err := file.Read(data)
	if n == 0 && err != nil {
		if err == io.EOF {
			return 0
		}
		return errno(errInval)
	}
	if mem.PutBlock(buf, data[:n]) {
		return errno(errFault)
	}
	return uint64(n)
}

func (k *Kernel) write(fd, buf, count uint64) uint64 {
	data, err := mem.GetBlock(buf, count)
	if err {
		return errno(errFault)
	}
	if (fd == 1 || fd == 2) && k.stdout != nil {
		n, _ := k.stdout.Write(data)
		return uint64(n)
	}
	file, ok := k.files[int(fd)]
	if !ok {
		return errno(errBadf)
	}
	n, werr := file.Write(data)
	if werr != nil {
		return errno(errInval)
	}
	return uint64(n)
}

// writev walks the iovec array; entries are pointer/length pairs of
// the ABI word size.
func (k *Kernel) writev(fd, iov, count uint64) uint64 {
	word := uint64(8)
	if k.mode32 {
		word = 4
	}
	var total uint64
	for i := uint64(0); i < count; i++ {
		var base, length uint64
		if k.mode32 {
			b, err1 := mem.GetWord(iov + i*8)
			l, err2 := mem.GetWord(iov + i*8 + 4)
			if err1 || err2 {
				return errno(errFault)
			}
			base, length = uint64(b), uint64(l)
		} else {
			b, err1 := mem.GetQuad(iov + i*16)
			l, err2 := mem.GetQuad(iov + i*16 + word)
			if err1 || err2 {
				return errno(errFault)
			}
			base, length = b, l
		}
		if length == 0 {
			continue
		}
		n := k.write(fd, base, length)
		if int64(n) < 0 {
			return n
		}
		total += n
	}
	return total
}

func (k *Kernel) open(path, flags uint64) uint64 {
	name, err := mem.GetString(path)
	if err {
		return errno(errFault)
	}
	mode := os.O_RDONLY
	switch flags & 3 {
	case 1:
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case 2:
		mode = os.O_RDWR | os.O_CREATE
	}
	file, oerr := os.OpenFile(name, mode, 0644)
	if oerr != nil {
		return errno(errNoent)
	}
	fd := k.nextFD
	k.nextFD++
	k.files[fd] = file
	return uint64(fd)
}

func (k *Kernel) close(fd uint64) uint64 {
	file, ok := k.files[int(fd)]
	if !ok {
		return errno(errBadf)
	}
	if fd > 2 {
		file.Close()
	}
	delete(k.files, int(fd))
	return 0
}

func (k *Kernel) lseek(fd, offset, whence uint64) uint64 {
	file, ok := k.files[int(fd)]
	if !ok {
		return errno(errBadf)
	}
	pos, err := file.Seek(int64(offset), int(whence))
	if err != nil {
		return errno(errInval)
	}
	return uint64(pos)
}

// fstat fills the fixed layout stat64 structure. Character device
// mode for the standard descriptors, regular file otherwise.
func (k *Kernel) fstat(fd, buf uint64) uint64 {
	file, ok := k.files[int(fd)]
	if !ok {
		return errno(errBadf)
	}
	var size int64
	mode := uint32(0o100644) // S_IFREG
	if fd <= 2 {
		mode = 0o020620 // S_IFCHR
	} else if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	if mem.Clear(buf, 144) {
		return errno(errFault)
	}
	mem.PutQuad(buf+8, fd)            // st_ino
	mem.PutQuad(buf+16, 1)            // st_nlink
	mem.PutWord(buf+24, mode)         // st_mode
	mem.PutWord(buf+28, 1000)         // st_uid
	mem.PutWord(buf+32, 1000)         // st_gid
	mem.PutQuad(buf+48, uint64(size)) // st_size
	mem.PutQuad(buf+56, 4096)         // st_blksize
	mem.PutQuad(buf+64, uint64(size+511)/512)
	return 0
}

func (k *Kernel) setBrk(addr uint64) uint64 {
	if addr == 0 || addr < k.brkBase || addr >= k.mmapEnd {
		return k.brk
	}
	if addr > k.brk {
		mem.Clear(k.brk, addr-k.brk)
	}
	k.brk = addr
	return k.brk
}

// Anonymous mappings carve the arena between the break and the
// stack. The flags and file descriptor are not examined: a file backed
// request also gets zeroed arena memory, not the file's contents.
func (k *Kernel) mmap(addr, length uint64) uint64 {
	if length == 0 {
		return errno(errInval)
	}
	if addr != 0 && addr >= k.brkBase && addr+length < k.mmapEnd {
		return addr
	}
	length = (length + 4095) &^ uint64(4095)
	if k.mmapNext+length >= k.mmapEnd {
		return errno(errNomem)
	}
	base := k.mmapNext
	k.mmapNext += length
	mem.Clear(base, length)
	return base
}

// ioctl answers the terminal probe and nothing else.
func (k *Kernel) ioctl(fd, request uint64) uint64 {
	const tcgets = 0x5401
	if request == tcgets {
		if fd <= 2 && term.IsTerminal(int(fd)) {
			return 0
		}
		return errno(errNotty)
	}
	return errno(errNotty)
}

func (k *Kernel) archPrctl(code, addr uint64) uint64 {
	switch code {
	case archSetFS:
		cpu.SetFSBase(addr)
		return 0
	case archSetGS:
		cpu.SetGSBase(addr)
		return 0
	case archGetFS, archGetGS:
		return errno(errInval)
	}
	return errno(errInval)
}

func (k *Kernel) uname(buf uint64) uint64 {
	fields := []string{"Linux", "x64os", "6.1.0-emu", "#1", "x86_64", ""}
	if k.mode32 {
		fields[4] = "i686"
	}
	for i, field := range fields {
		data := make([]byte, 65)
		copy(data, field)
		if mem.PutBlock(buf+uint64(i*65), data) {
			return errno(errFault)
		}
	}
	return 0
}

func (k *Kernel) gettimeofday(buf uint64) uint64 {
	if buf == 0 {
		return 0
	}
	now := time.Now()
	if k.mode32 {
		mem.PutWord(buf, uint32(now.Unix()))
		mem.PutWord(buf+4, uint32(now.Nanosecond()/1000))
		return 0
	}
	mem.PutQuad(buf, uint64(now.Unix()))
	mem.PutQuad(buf+8, uint64(now.Nanosecond()/1000))
	return 0
}

func (k *Kernel) timeOfDay(buf uint64) uint64 {
	now := uint64(time.Now().Unix())
	if buf != 0 {
		if k.mode32 {
			mem.PutWord(buf, uint32(now))
		} else {
			mem.PutQuad(buf, now)
		}
	}
	return now
}

func (k *Kernel) clockGettime(buf uint64) uint64 {
	if buf == 0 {
		return errno(errFault)
	}
	now := time.Now()
	mem.PutQuad(buf, uint64(now.Unix()))
	mem.PutQuad(buf+8, uint64(now.Nanosecond()))
	return 0
}

// futex: one thread, so a wait can only mean the value already
// changed; report EAGAIN and let the guest re-check.
func (k *Kernel) futex(op uint64) uint64 {
	const futexWait = 0
	if (op & 0x7f) == futexWait {
		return errno(errAgain)
	}
	return 0
}

// Deterministic bytes; the guest only seeds hash tables with them.
func (k *Kernel) getrandom(buf, count uint64) uint64 {
	state := uint64(0x9e3779b97f4a7c15)
	data := make([]byte, count)
	for i := range data {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		data[i] = byte(state)
	}
	if mem.PutBlock(buf, data) {
		return errno(errFault)
	}
	return count
}
