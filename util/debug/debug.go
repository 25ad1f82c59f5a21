/*
 * x64os - Debug message channels.
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

package debug

import (
	"fmt"
	"os"
	"strings"

	config "github.com/davidly/x64os/config/configparser"
)

// Debug channels.
const (
	DebugCmd     = 1 << iota // Monitor commands.
	DebugInst                // Instruction execution.
	DebugData                // Memory data.
	DebugSyscall             // System call entry and result.
	DebugLoader              // Image loading.
)

var debugOption = map[string]int{
	"CMD":     DebugCmd,
	"INST":    DebugInst,
	"DATA":    DebugData,
	"SYSCALL": DebugSyscall,
	"LOADER":  DebugLoader,
}

var debugMask int

var logFile *os.File

// Generic debug message.
func Debugf(module string, level int, format string, a ...interface{}) {
	if (debugMask&level) != 0 && logFile != nil {
		fmt.Fprintf(logFile, module+": "+format+"\n", a...)
	}
}

// True when a channel is enabled.
func Enabled(level int) bool {
	return (debugMask & level) != 0
}

// register configuration keywords on initialize.
func init() {
	config.RegisterFile("DEBUGFILE", create)
	config.RegisterOption("DEBUG", setMask)
}

// Open the debug output file.
func create(fileName string, _ []config.Option) error {
	if logFile != nil {
		return fmt.Errorf("can't have more than one debug file, previous: %s", logFile.Name())
	}
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("unable to create debug file: %s", fileName)
	}
	logFile = file
	return nil
}

// Enable debug channels from a comma separated list.
func setMask(value string, options []config.Option) error {
	names := []string{value}
	for _, opt := range options {
		names = append(names, opt.Name)
	}
	for _, name := range names {
		mask, ok := debugOption[strings.ToUpper(name)]
		if !ok {
			return fmt.Errorf("unknown debug option: %s", name)
		}
		debugMask |= mask
	}
	if logFile == nil {
		logFile = os.Stderr
	}
	return nil
}
