/*
   x64os: AMD64 user mode emulator for statically linked Linux
   binaries.

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

package main

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/davidly/x64os/command/parser"
	"github.com/davidly/x64os/command/reader"
	config "github.com/davidly/x64os/config/configparser"
	core "github.com/davidly/x64os/emu/core"
	cpu "github.com/davidly/x64os/emu/cpu"
	kernel "github.com/davidly/x64os/emu/kernel"
	loader "github.com/davidly/x64os/emu/loader"
	mem "github.com/davidly/x64os/emu/memory"
	logger "github.com/davidly/x64os/util/logger"

	_ "github.com/davidly/x64os/util/debug"
)

// Stack window for the debug bounds checks.
const stackWindow = 8 * 1024 * 1024

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optMemory := getopt.StringLong("memory", 'm', "256M", "Guest memory size")
	optTrace := getopt.BoolLong("trace", 't', "Trace each instruction")
	optMonitor := getopt.BoolLong("monitor", 'i', "Interactive monitor")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.SetParameters("program [args...]")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logWriter io.Writer
	if *optLogFile != "" {
		if file, err := os.Create(*optLogFile); err == nil {
			logWriter = file
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	log := slog.New(logger.NewHandler(logWriter, &slog.HandlerOptions{Level: programLevel}))
	slog.SetDefault(log)

	if *optConfig != "" {
		if err := config.LoadConfigFile(*optConfig); err != nil {
			log.Error("configuration: " + err.Error())
			os.Exit(1)
		}
	}
	if mem.GetSize() == 0 {
		size, err := config.ParseSize(*optMemory)
		if err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
		mem.SetSize(size)
	}

	args := getopt.Args()
	if len(args) == 0 {
		getopt.Usage()
		os.Exit(1)
	}

	cpu.InitializeCPU()

	environ := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=/root",
		"TERM=" + os.Getenv("TERM"),
		"LANG=C",
	}
	image, err := loader.Load(args[0], args[1:], environ)
	if err != nil {
		log.Error("load: " + err.Error())
		os.Exit(1)
	}
	log.Info("loaded", "program", args[0], "entry", image.Entry, "mode32", image.Mode32)

	stackTop := mem.GetSize() - 4096
	guest := kernel.New(image.Mode32, image.Brk, stackTop-stackWindow)

	cpu.Mode32(image.Mode32)
	cpu.SetPC(image.Entry)
	cpu.SetReg(cpu.RSP, image.StackTop)
	cpu.SetStack(stackTop, stackWindow)
	cpu.SetSyscall(guest.Syscall)
	cpu.SetSymLookup(image.Lookup)
	cpu.SetTraceWriter(os.Stderr)
	if *optTrace {
		cpu.TraceInstructions(true)
	}

	// Allow a control-C to stop the emulation cleanly.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cpu.EndEmulation()
	}()

	if *optMonitor {
		master := make(chan core.Packet, 1)
		emulation := core.NewCPU(master, guest)
		parser.SetChannel(master)
		go emulation.Start()
		reader.ConsoleReader(emulation)
		emulation.Stop()
		os.Exit(guest.ExitCode())
	}

	count := cpu.Run()
	log.Info("emulation finished", "instructions", count, "exit", guest.ExitCode())
	os.Exit(guest.ExitCode())
}
