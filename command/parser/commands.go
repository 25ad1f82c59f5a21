/*
 * x64os - Monitor commands.
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

package parser

import (
	"errors"
	"fmt"
	"strings"

	core "github.com/davidly/x64os/emu/core"
	cpu "github.com/davidly/x64os/emu/cpu"
	dis "github.com/davidly/x64os/emu/disassemble"
	mem "github.com/davidly/x64os/emu/memory"
	"github.com/davidly/x64os/util/hex"
)

var cmdList []cmd

func init() {
	cmdList = []cmd{
		{"break", 1, "break <addr>  set breakpoint", doBreak},
		{"continue", 1, "continue  resume execution", doCont},
		{"deposit", 3, "deposit <reg|addr> <hex...>  set a register or memory", doDeposit},
		{"disassemble", 2, "disassemble [addr] [count]", doDisasm},
		{"examine", 1, "examine <addr> [count]  dump memory", doExamine},
		{"go", 1, "go  start execution", doCont},
		{"help", 1, "help  this text", doHelp},
		{"quit", 1, "quit  leave the emulator", doQuit},
		{"registers", 1, "registers  dump the register file", doRegs},
		{"step", 2, "step [count]  single step", doStep},
		{"stop", 2, "stop  pause execution", doStop},
		{"trace", 1, "trace on|off  per instruction trace", doTrace},
		{"unbreak", 1, "unbreak <addr>  clear breakpoint", doUnbreak},
	}
}

func doQuit(_ *cmdLine, _ *core.Core) (bool, error) {
	return true, nil
}

func doCont(_ *cmdLine, c *core.Core) (bool, error) {
	sendPacket(core.Packet{Msg: core.MsgStart})
	return false, nil
}

func doStop(_ *cmdLine, c *core.Core) (bool, error) {
	sendPacket(core.Packet{Msg: core.MsgStop})
	return false, nil
}

func doStep(line *cmdLine, c *core.Core) (bool, error) {
	count := line.scanCount(1)
	sendPacket(core.Packet{Msg: core.MsgStep, Count: count})
	return false, nil
}

func doRegs(_ *cmdLine, _ *core.Core) (bool, error) {
	fmt.Print(cpu.DumpRegs())
	return false, nil
}

func doBreak(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.scanAddr()
	if err != nil {
		return false, err
	}
	c.SetBreak(addr)
	return false, nil
}

func doUnbreak(line *cmdLine, c *core.Core) (bool, error) {
	addr, err := line.scanAddr()
	if err != nil {
		return false, err
	}
	c.ClearBreak(addr)
	return false, nil
}

func doTrace(line *cmdLine, _ *core.Core) (bool, error) {
	switch strings.ToLower(line.scanWord()) {
	case "on":
		cpu.TraceInstructions(true)
	case "off":
		cpu.TraceInstructions(false)
	default:
		return false, errors.New("trace on|off")
	}
	return false, nil
}

// Register names accepted by deposit.
var regIndex = map[string]int{
	"rax": cpu.RAX, "rcx": cpu.RCX, "rdx": cpu.RDX, "rbx": cpu.RBX,
	"rsp": cpu.RSP, "rbp": cpu.RBP, "rsi": cpu.RSI, "rdi": cpu.RDI,
	"r8": cpu.R8, "r9": cpu.R9, "r10": cpu.R10, "r11": cpu.R11,
	"r12": cpu.R12, "r13": cpu.R13, "r14": cpu.R14, "r15": cpu.R15,
}

// Deposit a value into a register, or a list of values into memory.
// The width of each memory value follows its hex digit count: up to
// two digits stores a byte, four a half word, eight a word, more a
// quad word.
func doDeposit(line *cmdLine, _ *core.Core) (bool, error) {
	target := strings.ToLower(line.scanWord())
	if target == "" {
		return false, errors.New("deposit <reg|addr> <hex...>")
	}

	if index, ok := regIndex[target]; ok {
		value, _, err := line.scanHexValue()
		if err != nil {
			return false, err
		}
		cpu.SetReg(index, value)
		return false, nil
	}
	if target == "rip" {
		value, _, err := line.scanHexValue()
		if err != nil {
			return false, err
		}
		cpu.SetPC(value)
		return false, nil
	}

	addr, err := parseHex(target)
	if err != nil {
		return false, err
	}
	stored := false
	for {
		line.skipSpace()
		if line.isEOL() {
			break
		}
		value, digits, err := line.scanHexValue()
		if err != nil {
			return false, err
		}
		var fail bool
		switch {
		case digits <= 2:
			fail = mem.PutByte(addr, uint8(value))
			addr++
		case digits <= 4:
			fail = mem.PutHalf(addr, uint16(value))
			addr += 2
		case digits <= 8:
			fail = mem.PutWord(addr, uint32(value))
			addr += 4
		default:
			fail = mem.PutQuad(addr, value)
			addr += 8
		}
		if fail {
			return false, errors.New("address out of range")
		}
		stored = true
	}
	if !stored {
		return false, errors.New("deposit needs at least one value")
	}
	return false, nil
}

// Sixteen bytes per line with an ASCII column.
func doExamine(line *cmdLine, _ *core.Core) (bool, error) {
	addr, err := line.scanAddr()
	if err != nil {
		return false, err
	}
	count := line.scanCount(64)
	for count > 0 {
		chunk := count
		if chunk > 16 {
			chunk = 16
		}
		data, fail := mem.GetBlock(addr, chunk)
		if fail {
			return false, errors.New("address out of range")
		}
		var out strings.Builder
		hex.FormatAddr(&out, addr)
		out.WriteString("  ")
		hex.FormatBytes(&out, true, data)
		for i := chunk; i < 16; i++ {
			out.WriteString("   ")
		}
		out.WriteByte(' ')
		hex.FormatChars(&out, data)
		fmt.Println(out.String())
		addr += chunk
		count -= chunk
	}
	return false, nil
}

func doDisasm(line *cmdLine, _ *core.Core) (bool, error) {
	addr, err := line.scanAddr()
	if err != nil {
		addr = cpu.PC()
	}
	count := line.scanCount(8)
	for range count {
		raw, fail := mem.GetBlock(addr, 15)
		if fail {
			return false, errors.New("address out of range")
		}
		text, length := dis.Disassemble(raw, addr, false, nil)
		if length == 0 {
			length = 1
		}
		var out strings.Builder
		hex.FormatAddr(&out, addr)
		out.WriteString("  ")
		hex.FormatBytes(&out, false, raw[:length])
		for i := length; i < 12; i++ {
			out.WriteString("  ")
		}
		out.WriteByte(' ')
		out.WriteString(text)
		fmt.Println(out.String())
		addr += uint64(length)
	}
	return false, nil
}

func doHelp(_ *cmdLine, _ *core.Core) (bool, error) {
	for i := range cmdList {
		fmt.Println("  " + cmdList[i].help)
	}
	return false, nil
}

// The core listens on a packet channel; the reader installs it here
// before the prompt loop starts.
var packetChannel chan<- core.Packet

func SetChannel(channel chan<- core.Packet) {
	packetChannel = channel
}

func sendPacket(packet core.Packet) {
	if packetChannel != nil {
		packetChannel <- packet
	}
}
