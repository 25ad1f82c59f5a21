/*
   x64os: emulation core control.

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

package core

import (
	"log/slog"
	"sync"
	"time"

	cpu "github.com/davidly/x64os/emu/cpu"
	kernel "github.com/davidly/x64os/emu/kernel"
)

// Messages the monitor sends to the core.
const (
	MsgStart = 1 + iota
	MsgStop
	MsgStep
	MsgQuit
)

type Packet struct {
	Msg   int
	Count uint64 // Step count for MsgStep
}

type Core struct {
	wg      sync.WaitGroup
	done    chan struct{} // Signal to shutdown emulator.
	running bool          // Indicate when emulator should run or not.
	master  chan Packet
	kernel  *kernel.Kernel
	breaks  map[uint64]bool
}

// Create an instance of the emulation core.
func NewCPU(master chan Packet, k *kernel.Kernel) *Core {
	return &Core{
		master: master,
		kernel: k,
		done:   make(chan struct{}),
		breaks: map[uint64]bool{},
	}
}

// Set or clear a breakpoint.
func (core *Core) SetBreak(addr uint64) {
	core.breaks[addr] = true
}

func (core *Core) ClearBreak(addr uint64) {
	delete(core.breaks, addr)
}

func (core *Core) Breaks() []uint64 {
	list := make([]uint64, 0, len(core.breaks))
	for addr := range core.breaks {
		list = append(list, addr)
	}
	return list
}

// Exit state from the guest.
func (core *Core) ExitCode() int {
	return core.kernel.ExitCode()
}

func (core *Core) Exited() bool {
	return core.kernel.Exited()
}

// Start the core loop. Runs until Stop closes the done channel;
// MsgQuit ends emulation but the loop keeps serving packets.
func (core *Core) Start() {
	core.wg.Add(1)
	defer core.wg.Done()
	for {
		if core.running {
			if !cpu.CycleCPU() {
				core.running = false
				slog.Info("emulation stopped", "instructions", cpu.InstCount())
			} else if core.breaks[cpu.PC()] {
				core.running = false
				slog.Info("breakpoint", "addr", cpu.PC())
			}
			select {
			case <-core.done:
				slog.Info("Shutdown emulation core")
				return
			case packet := <-core.master:
				core.processPacket(packet)
			default:
			}
			continue
		}
		// Idle until the monitor says otherwise.
		select {
		case <-core.done:
			slog.Info("Shutdown emulation core")
			return
		case packet := <-core.master:
			core.processPacket(packet)
		}
	}
}

// Stop a running core.
func (core *Core) Stop() {
	close(core.done)
	done := make(chan struct{})
	go func() {
		core.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for CPU to finish.")
		return
	}
}

// Process a packet sent to the core.
func (core *Core) processPacket(packet Packet) {
	switch packet.Msg {
	case MsgStart:
		core.running = true
	case MsgStop:
		core.running = false
	case MsgStep:
		count := packet.Count
		if count == 0 {
			count = 1
		}
		for range count {
			if !cpu.CycleCPU() {
				break
			}
		}
	case MsgQuit:
		core.running = false
		cpu.EndEmulation()
	}
}
