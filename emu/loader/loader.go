/*
   x64os: program image loader.

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

package loader

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/yalue/elf_reader"

	mem "github.com/davidly/x64os/emu/memory"
	"github.com/davidly/x64os/util/debug"
)

// Program header type for loadable segments.
const ptLoad = 1

// Linux AMD64 auxiliary vector tags.
const (
	atNull   = 0
	atPhdr   = 3
	atPhent  = 4
	atPhnum  = 5
	atPagesz = 6
	atEntry  = 9
	atUID    = 11
	atEUID   = 12
	atGID    = 13
	atEGID   = 14
	atClktck = 17
	atSecure = 23
	atRandom = 25
)

// One symbol from the image's .symtab, kept for trace lookups.
type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
}

// Result of loading an image: everything the CPU and kernel need to
// start running it.
type Image struct {
	Entry    uint64 // Initial RIP
	Mode32   bool   // 32 bit executable
	Brk      uint64 // End of the loaded image, initial program break
	StackTop uint64 // Initial RSP
	PhdrAddr uint64 // Virtual address of the program headers
	PhdrEnt  uint64
	PhdrNum  uint64

	symbols []Symbol
}

// Stack sits at the top of guest memory with a guard gap below the
// highest address.
const stackGuard = 4096

// Load reads a statically linked ELF executable into guest memory and
// builds the initial stack per the Linux ABI: argc, argv, envp and
// the auxiliary vector.
func Load(path string, args []string, environ []string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	elf, err := elf_reader.ParseELFFile(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	image := &Image{}
	var phOffset uint64
	switch file := elf.(type) {
	case *elf_reader.ELF64File:
		image.Entry = file.Header.EntryPoint
		image.PhdrEnt = 56
		image.PhdrNum = uint64(file.Header.ProgramHeaderEntries)
		phOffset = file.Header.ProgramHeaderOffset
	case *elf_reader.ELF32File:
		image.Mode32 = true
		image.Entry = uint64(file.Header.EntryPoint)
		image.PhdrEnt = 32
		image.PhdrNum = uint64(file.Header.ProgramHeaderEntries)
		phOffset = uint64(file.Header.ProgramHeaderOffset)
	default:
		return nil, errors.New("unsupported ELF class")
	}

	// Copy every PT_LOAD segment to its virtual address. The guest
	// address space maps one to one onto the memory array.
	count := elf.GetSegmentCount()
	for i := uint16(0); i < count; i++ {
		header, err := elf.GetProgramHeader(i)
		if err != nil {
			return nil, err
		}
		if uint32(header.GetType()) != ptLoad {
			continue
		}
		vaddr := header.GetVirtualAddress()
		memSize := header.GetMemorySize()
		if !mem.CheckAddr(vaddr, memSize) {
			return nil, fmt.Errorf("segment at %x+%x exceeds guest memory", vaddr, memSize)
		}
		fileOff := header.GetFileOffset()
		fileSize := header.GetFileSize()
		if fileOff+fileSize > uint64(len(raw)) {
			return nil, fmt.Errorf("segment at %x+%x exceeds file size", fileOff, fileSize)
		}
		content := raw[fileOff : fileOff+fileSize]
		if uint64(len(content)) > memSize {
			content = content[:memSize]
		}
		mem.PutBlock(vaddr, content)
		debug.Debugf("LOADER", debug.DebugLoader, "segment %x+%x file %x",
			vaddr, memSize, len(content))
		end := vaddr + memSize
		if end > image.Brk {
			image.Brk = end
		}
		// Program headers live inside a segment that covers their
		// file offset; when several do, the last one wins.
		off := header.GetFileOffset()
		if phOffset >= off && phOffset < off+header.GetFileSize() {
			image.PhdrAddr = vaddr + (phOffset - off)
		}
	}
	if image.Brk == 0 {
		return nil, errors.New("no loadable segments")
	}
	// Round the break to a page.
	image.Brk = (image.Brk + 4095) &^ uint64(4095)

	image.loadSymbols(elf)

	if err := image.buildStack(path, args, environ); err != nil {
		return nil, err
	}
	return image, nil
}

// Collect .symtab entries for the trace symbol lookup.
func (image *Image) loadSymbols(elf elf_reader.ELFFile) {
	count := elf.GetSectionCount()
	for i := uint16(1); i < count; i++ {
		name, err := elf.GetSectionName(i)
		if err != nil || name != ".symtab" {
			continue
		}
		symbols, names, err := elf.GetSymbols(i)
		if err != nil {
			return
		}
		for j, symbol := range symbols {
			if j >= len(names) || names[j] == "" {
				continue
			}
			image.symbols = append(image.symbols, Symbol{
				Name:  names[j],
				Value: symbol.GetValue(),
				Size:  symbol.GetSize(),
			})
		}
	}
	sort.Slice(image.symbols, func(a, b int) bool {
		return image.symbols[a].Value < image.symbols[b].Value
	})
}

// Lookup returns the symbol covering an address, or the empty string.
func (image *Image) Lookup(addr uint64) string {
	n := sort.Search(len(image.symbols), func(i int) bool {
		return image.symbols[i].Value > addr
	})
	if n == 0 {
		return ""
	}
	symbol := image.symbols[n-1]
	if symbol.Value == addr {
		return symbol.Name
	}
	if symbol.Size != 0 && addr < symbol.Value+symbol.Size {
		return fmt.Sprintf("%s+%x", symbol.Name, addr-symbol.Value)
	}
	return ""
}

// Word width of the guest ABI.
func (image *Image) wordSize() uint64 {
	if image.Mode32 {
		return 4
	}
	return 8
}

// Build the initial stack. Strings go down from the top, then the
// auxiliary vector, envp, argv and finally argc at the new RSP.
func (image *Image) buildStack(path string, args []string, environ []string) error {
	top := mem.GetSize() - stackGuard
	pos := top

	pushString := func(value string) uint64 {
		pos -= uint64(len(value)) + 1
		mem.PutBlock(pos, append([]byte(value), 0))
		return pos
	}

	argv := make([]uint64, 0, len(args)+1)
	argv = append(argv, pushString(path))
	for _, arg := range args {
		argv = append(argv, pushString(arg))
	}
	envp := make([]uint64, 0, len(environ))
	for _, env := range environ {
		envp = append(envp, pushString(env))
	}

	// Sixteen random bytes for AT_RANDOM. A fixed pattern keeps runs
	// reproducible.
	pos -= 16
	random := pos
	mem.PutBlock(pos, []byte{
		0x9e, 0x37, 0x79, 0xb9, 0x7f, 0x4a, 0x7c, 0x15,
		0xf3, 0x9c, 0xc0, 0x60, 0x5c, 0xed, 0xc8, 0x34,
	})

	auxv := [][2]uint64{
		{atPhdr, image.PhdrAddr},
		{atPhent, image.PhdrEnt},
		{atPhnum, image.PhdrNum},
		{atPagesz, 4096},
		{atEntry, image.Entry},
		{atUID, 1000},
		{atEUID, 1000},
		{atGID, 1000},
		{atEGID, 1000},
		{atSecure, 0},
		{atClktck, 100},
		{atRandom, random},
		{atNull, 0},
	}

	word := image.wordSize()
	vectors := uint64(len(argv)+1+len(envp)+1+1) + uint64(len(auxv))*2
	pos &^= 15
	// Keep the final RSP sixteen byte aligned.
	if (vectors*word)%16 != 0 {
		pos -= 16 - (vectors*word)%16
	}

	putWord := func(value uint64) error {
		pos -= word
		var err bool
		if word == 4 {
			err = mem.PutWord(pos, uint32(value))
		} else {
			err = mem.PutQuad(pos, value)
		}
		if err {
			return errors.New("stack overflow building startup vectors")
		}
		return nil
	}

	// Write back to front so the final write lands argc at RSP.
	for i := len(auxv) - 1; i >= 0; i-- {
		if err := putWord(auxv[i][1]); err != nil {
			return err
		}
		if err := putWord(auxv[i][0]); err != nil {
			return err
		}
	}
	if err := putWord(0); err != nil {
		return err
	}
	for i := len(envp) - 1; i >= 0; i-- {
		if err := putWord(envp[i]); err != nil {
			return err
		}
	}
	if err := putWord(0); err != nil {
		return err
	}
	for i := len(argv) - 1; i >= 0; i-- {
		if err := putWord(argv[i]); err != nil {
			return err
		}
	}
	if err := putWord(uint64(len(argv))); err != nil {
		return err
	}

	image.StackTop = pos
	return nil
}
