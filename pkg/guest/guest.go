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

// Package guest builds bare-metal RV64 images that talk to the host through
// the EBREAK semihosting convention: operation code in a0, operand in a1,
// then EBREAK.
package guest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lassandro/rvtrap/pkg/encoding"
	"github.com/lassandro/rvtrap/pkg/machine"
)

// Both trap fields are loaded with `addi rd, x0, imm`, so they are limited to
// 12-bit signed immediates.
const (
	IMM_BITS uint  = 12
	IMM_MIN  int64 = -1 << (IMM_BITS - 1)
	IMM_MAX  int64 = 1<<(IMM_BITS-1) - 1
)

var ErrHalted = errors.New("program already requested halt")

type OversizedImmediateError struct {
	Field    string
	Received int64
}

func (err *OversizedImmediateError) Error() string {
	return fmt.Sprintf(
		"%s exceeds immediate range\n\twant:%d..%d\n\thave:%d",
		err.Field,
		IMM_MIN,
		IMM_MAX,
		err.Received,
	)
}

// Program is a guest image under construction. The zero value is an empty
// program whose entry point is its first instruction.
type Program struct {
	words  []uint32
	halted bool
}

// Trap appends the three-instruction request sequence
//
//	addi a0, x0, op
//	addi a1, x0, arg
//	ebreak
//
// Nothing is appended when either value is out of range.
func (p *Program) Trap(op, arg int64) error {
	if p.halted {
		return ErrHalted
	}

	if !encoding.FitsSigned(op, IMM_BITS) {
		return &OversizedImmediateError{"op", op}
	}

	if !encoding.FitsSigned(arg, IMM_BITS) {
		return &OversizedImmediateError{"arg", arg}
	}

	p.words = append(
		p.words,
		ADDI(machine.REG_A0, machine.REG_ZERO, op),
		ADDI(machine.REG_A1, machine.REG_ZERO, arg),
		machine.INST_EBREAK,
	)

	return nil
}

func (p *Program) PutChar(c byte) error {
	return p.Trap(int64(machine.SEMIHOST_PUTCHAR), int64(c))
}

func (p *Program) PutString(s string) error {
	for i := 0; i < len(s); i++ {
		if err := p.PutChar(s[i]); err != nil {
			return err
		}
	}

	return nil
}

// Halt requests termination with status, then parks the guest in a jump to
// itself in case the host resumes it anyway. No instruction can be added
// after a halt.
func (p *Program) Halt(status int64) error {
	if err := p.Trap(int64(machine.SEMIHOST_HALT), status); err != nil {
		return err
	}

	p.words = append(p.words, machine.INST_IDLE)
	p.halted = true

	return nil
}

// Emit appends raw instruction words.
func (p *Program) Emit(words ...uint32) error {
	if p.halted {
		return ErrHalted
	}

	p.words = append(p.words, words...)

	return nil
}

func (p *Program) Halted() bool {
	return p.halted
}

func (p *Program) Len() int {
	return len(p.words)
}

func (p *Program) Words() []uint32 {
	result := make([]uint32, len(p.words))
	copy(result, p.words)
	return result
}

// Bytes returns the little-endian image, ready to load at the reset entry.
func (p *Program) Bytes() []byte {
	result := make([]byte, 4*len(p.words))

	for i, word := range p.words {
		binary.LittleEndian.PutUint32(result[4*i:], word)
	}

	return result
}

// Fixture is the reference guest: print 'A', then halt with status 0.
func Fixture() *Program {
	var p Program

	if err := p.PutChar('A'); err != nil {
		panic(err)
	}

	if err := p.Halt(0); err != nil {
		panic(err)
	}

	return &p
}
