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
	"errors"
	"fmt"
)

var (
	ErrHalted    = errors.New("machine halted")
	ErrIdle      = errors.New("guest entered idle loop without halting")
	ErrStepLimit = errors.New("step limit reached")
)

type IllegalInstructionError struct {
	Addr uint64
	Bits uint32
}

func (err *IllegalInstructionError) Error() string {
	return fmt.Sprintf("%#08x: Illegal instruction %#08x", err.Addr, err.Bits)
}

type AccessFaultError struct {
	Addr  uint64
	Size  uint64
	Write bool
}

func (err *AccessFaultError) Error() string {
	access := "load"
	if err.Write {
		access = "store"
	}

	return fmt.Sprintf(
		"Access fault: %d byte %s at %#08x", err.Size, access, err.Addr,
	)
}

type MisalignedFetchError struct {
	Addr uint64
}

func (err *MisalignedFetchError) Error() string {
	return fmt.Sprintf("Misaligned instruction fetch at %#08x", err.Addr)
}

type UnknownOperationError struct {
	Addr uint64
	Op   uint64
	Arg  uint64
}

func (err *UnknownOperationError) Error() string {
	return fmt.Sprintf(
		"%#08x: Unknown semihost operation %d (operand %d)",
		err.Addr,
		err.Op,
		int64(err.Arg),
	)
}

type UnsupportedTrapError struct {
	Addr uint64
	Bits uint32
}

func (err *UnsupportedTrapError) Error() string {
	name := "system instruction"

	switch err.Bits {
	case INST_ECALL:
		name = "ECALL"
	case INST_MRET:
		name = "MRET"
	}

	return fmt.Sprintf("%#08x: Unsupported %s", err.Addr, name)
}

type OversizedImageError struct {
	Required uint64
	Received uint64
}

func (err *OversizedImageError) Error() string {
	return fmt.Sprintf(
		"Image exceeds memory size\n\twant:%d\n\thave:%d",
		err.Required,
		err.Received,
	)
}
