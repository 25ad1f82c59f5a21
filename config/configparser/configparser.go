/*
 * x64os - Configuration file parser.
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

package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <keyword> [<value>] *(<option>)
 * <keyword> ::= <string>
 * <value> ::= <string> | <number><K|M|G> | '"' *(<letter>) '"'
 * <option> ::= <string> [ '=' <value> ] *(',' <option>)
 */

// Option after the keyword value.
type Option struct {
	Name     string // Name of option.
	EqualOpt string // Value of string after =.
}

const (
	TypeOption = 1 + iota // Keyword takes a value.
	TypeSwitch            // Keyword only sets a flag.
	TypeFile              // Keyword names a file.
)

// Keyword registration list.
type keywordDef struct {
	create func(string, []Option) error
	ty     int
}

var keywords = map[string]keywordDef{}

var lineNumber int

// Register should be called from init functions.
func RegisterOption(name string, fn func(string, []Option) error) {
	keywords[strings.ToUpper(name)] = keywordDef{create: fn, ty: TypeOption}
}

// Register a flag keyword.
func RegisterSwitch(name string, fn func(string, []Option) error) {
	keywords[strings.ToUpper(name)] = keywordDef{create: fn, ty: TypeSwitch}
}

// Register a file keyword.
func RegisterFile(name string, fn func(string, []Option) error) {
	keywords[strings.ToUpper(name)] = keywordDef{create: fn, ty: TypeFile}
}

// Current option line being parsed.
type optionLine struct {
	line string // Current option line.
	pos  int    // Current position in line.
}

// Load a configuration file and run the registered callbacks.
func LoadConfigFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	lineNumber = 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNumber++
		line := optionLine{line: scanner.Text()}
		if err := line.parseLine(); err != nil {
			return fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
	return scanner.Err()
}

// Parse one configuration line.
func (line *optionLine) parseLine() error {
	line.skipSpace()
	if line.isEOL() {
		return nil
	}
	keyword, err := line.getName()
	if err != nil {
		return err
	}
	def, ok := keywords[strings.ToUpper(keyword)]
	if !ok {
		return errors.New("unknown keyword: " + keyword)
	}

	value := ""
	if def.ty != TypeSwitch {
		value, ok = line.parseQuoteString()
		if !ok {
			return errors.New("missing value for: " + keyword)
		}
	}
	options, err := line.parseOptions()
	if err != nil {
		return err
	}
	return def.create(value, options)
}

// Skip blanks.
func (line *optionLine) skipSpace() {
	for line.pos < len(line.line) {
		if !unicode.IsSpace(rune(line.line[line.pos])) {
			break
		}
		line.pos++
	}
}

// At end of line or comment.
func (line *optionLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

// Peek at the next character.
func (line *optionLine) getPeek() byte {
	if line.isEOL() {
		return 0
	}
	return line.line[line.pos]
}

// Collect a name of letters, digits and punctuation that can appear
// in paths.
func (line *optionLine) getName() (string, error) {
	var value strings.Builder
	for !line.isEOL() {
		by := line.line[line.pos]
		if unicode.IsSpace(rune(by)) || by == '=' || by == ',' {
			break
		}
		value.WriteByte(by)
		line.pos++
	}
	if value.Len() == 0 {
		return "", errors.New("empty name")
	}
	return value.String(), nil
}

// Parse a possibly quoted string.
func (line *optionLine) parseQuoteString() (string, bool) {
	line.skipSpace()
	if line.isEOL() {
		return "", false
	}
	if line.getPeek() != '"' {
		name, err := line.getName()
		return name, err == nil
	}
	line.pos++
	var value strings.Builder
	for line.pos < len(line.line) {
		by := line.line[line.pos]
		line.pos++
		if by == '"' {
			return value.String(), true
		}
		value.WriteByte(by)
	}
	return "", false
}

// Parse the comma separated option list after the value.
func (line *optionLine) parseOptions() ([]Option, error) {
	options := []Option{}
	for {
		line.skipSpace()
		if line.isEOL() {
			return options, nil
		}
		name, err := line.getName()
		if err != nil {
			return nil, err
		}
		option := Option{Name: strings.ToUpper(name)}
		line.skipSpace()
		if line.getPeek() == '=' {
			line.pos++
			value, ok := line.parseQuoteString()
			if !ok {
				return nil, errors.New("missing value after = for: " + name)
			}
			option.EqualOpt = value
		}
		options = append(options, option)
		line.skipSpace()
		if line.getPeek() == ',' {
			line.pos++
		}
	}
}

// Parse a size value with an optional K, M or G multiplier. Used by
// the MEMSIZE keyword and the memory size flag.
func ParseSize(number string) (int, error) {
	size := 0
	multiplier := ' '
	for i, digit := range number {
		if !unicode.IsDigit(digit) {
			if i == len(number)-1 {
				multiplier = digit
				break
			}
			return 0, errors.New("size not a number: " + number)
		}
		size = (size * 10) + (int(digit) - '0')
	}

	switch multiplier {
	case 'k', 'K':
	case 'm', 'M':
		size *= 1024
	case 'g', 'G':
		size *= 1024 * 1024
	case ' ':
		// Bare numbers are bytes.
		size /= 1024
	default:
		return 0, errors.New("invalid size multiplier: " + string(multiplier))
	}
	return size, nil
}
