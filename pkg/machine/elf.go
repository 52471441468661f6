// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package machine

import (
	"debug/elf"
	"fmt"
	"io"
)

// LoadELF resets the machine, copies every PT_LOAD segment into RAM and sets
// the program counter to the entry point.
func (mc *Machine) LoadELF(reader io.ReaderAt) error {
	file, err := elf.NewFile(reader)

	if err != nil {
		return err
	}

	defer file.Close()

	if file.Machine != elf.EM_RISCV || file.Class != elf.ELFCLASS64 {
		return fmt.Errorf("not a RV64 executable: %s %s", file.Class, file.Machine)
	}

	mc.Reset()

	for _, prog := range file.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		if prog.Filesz > prog.Memsz {
			return fmt.Errorf(
				"segment at %#08x: file size %#x exceeds memory size %#x",
				prog.Paddr,
				prog.Filesz,
				prog.Memsz,
			)
		}

		if !mc.inRAM(prog.Paddr, prog.Memsz) {
			return &AccessFaultError{prog.Paddr, prog.Memsz, true}
		}

		offset := prog.Paddr - mc.State.Base
		segment := mc.State.Memory[offset : offset+prog.Filesz]

		if _, err := prog.ReadAt(segment, 0); err != nil && err != io.EOF {
			return err
		}
	}

	mc.State.Program = file.Entry

	return nil
}
