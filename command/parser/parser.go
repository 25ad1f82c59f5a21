/*
 * x64os - Monitor command parser.
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
	"strconv"
	"strings"
	"unicode"

	core "github.com/davidly/x64os/emu/core"
	"github.com/davidly/x64os/util/debug"
)

// Current command line being scanned.
type cmdLine struct {
	line string
	pos  int
}

type cmd struct {
	name    string
	minLen  int // Shortest accepted abbreviation.
	help    string
	process func(*cmdLine, *core.Core) (bool, error)
}

// Process one command line. Returns true when the monitor should
// exit.
func ProcessCommand(commandLine string, core *core.Core) (bool, error) {
	line := &cmdLine{line: commandLine}
	line.skipSpace()
	if line.isEOL() {
		return false, nil
	}
	name := strings.ToLower(line.scanWord())
	debug.Debugf("CMD", debug.DebugCmd, "%s", commandLine)
	for i := range cmdList {
		command := &cmdList[i]
		if len(name) < command.minLen || !strings.HasPrefix(command.name, name) {
			continue
		}
		return command.process(line, core)
	}
	return false, errors.New("unknown command: " + name)
}

// Complete a partial command name.
func CompleteCmd(commandLine string) []string {
	trimmed := strings.TrimLeft(commandLine, " ")
	if strings.ContainsRune(trimmed, ' ') {
		return nil
	}
	matches := []string{}
	for i := range cmdList {
		if strings.HasPrefix(cmdList[i].name, strings.ToLower(trimmed)) {
			matches = append(matches, cmdList[i].name)
		}
	}
	return matches
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line)
}

// Scan one blank separated word.
func (line *cmdLine) scanWord() string {
	line.skipSpace()
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}

// Parse a hex string, with or without an 0x prefix.
func parseHex(word string) (uint64, error) {
	word = strings.TrimPrefix(strings.ToLower(word), "0x")
	value, err := strconv.ParseUint(word, 16, 64)
	if err != nil {
		return 0, errors.New("bad hex value: " + word)
	}
	return value, nil
}

// Scan a hex address.
func (line *cmdLine) scanAddr() (uint64, error) {
	word := line.scanWord()
	if word == "" {
		return 0, errors.New("missing address")
	}
	return parseHex(word)
}

// Scan a hex value keeping its digit count, which deposit uses to
// pick the store width.
func (line *cmdLine) scanHexValue() (uint64, int, error) {
	word := line.scanWord()
	if word == "" {
		return 0, 0, errors.New("missing value")
	}
	digits := len(strings.TrimPrefix(strings.ToLower(word), "0x"))
	value, err := parseHex(word)
	return value, digits, err
}

// Scan a decimal count, with a default when absent.
func (line *cmdLine) scanCount(missing uint64) uint64 {
	word := line.scanWord()
	if word == "" {
		return missing
	}
	value, err := strconv.ParseUint(word, 10, 64)
	if err != nil {
		return missing
	}
	return value
}
