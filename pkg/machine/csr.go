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

import "errors"

var errReadOnlyCSR = errors.New("write to read-only CSR")

func (mc *MachineState) LoadCSR(addr uint16) uint64 {
	csr := &mc.CSR

	switch addr {
	case CSR_SIE:
		return csr[CSR_MIE] & csr[CSR_MIDELEG]
	case CSR_SIP:
		return csr[CSR_MIP] & csr[CSR_MIDELEG]
	case CSR_SSTATUS:
		return csr[CSR_MSTATUS] & SSTATUS_MASK
	}

	return csr[addr&(CSR_COUNT-1)]
}

func (mc *MachineState) StoreCSR(addr uint16, value uint64) error {
	csr := &mc.CSR

	// The top two address bits mark read-only registers
	if (addr>>10)&0b11 == 0b11 {
		return errReadOnlyCSR
	}

	switch addr {
	case CSR_SIE:
		csr[CSR_MIE] = (csr[CSR_MIE] &^ csr[CSR_MIDELEG]) | (value & csr[CSR_MIDELEG])
	case CSR_SIP:
		csr[CSR_MIP] = (csr[CSR_MIP] &^ csr[CSR_MIDELEG]) | (value & csr[CSR_MIDELEG])
	case CSR_SSTATUS:
		csr[CSR_MSTATUS] = (csr[CSR_MSTATUS] &^ SSTATUS_MASK) | (value & SSTATUS_MASK)
	default:
		csr[addr&(CSR_COUNT-1)] = value
	}

	return nil
}

// CSRRW  |csr |rs1  |001|rd |1110011|
// CSRRS  |csr |rs1  |010|rd |1110011|
// CSRRC  |csr |rs1  |011|rd |1110011|
// CSRRWI |csr |zimm |101|rd |1110011|
// CSRRSI |csr |zimm |110|rd |1110011|
// CSRRCI |csr |zimm |111|rd |1110011|
func (mc *Machine) csrOp(inst instruction) error {
	addr := uint16(inst.Bits >> 20)

	var operand uint64

	if inst.Funct3&0b100 != 0 {
		operand = uint64(inst.Rs1)
	} else {
		operand = mc.State.Registers[inst.Rs1]
	}

	old := mc.State.LoadCSR(addr)

	var err error

	switch inst.Funct3 & 0b011 {
	case 0b01:
		err = mc.State.StoreCSR(addr, operand)
	case 0b10:
		if inst.Rs1 != 0 {
			err = mc.State.StoreCSR(addr, old|operand)
		}
	case 0b11:
		if inst.Rs1 != 0 {
			err = mc.State.StoreCSR(addr, old&^operand)
		}
	default:
		err = errors.New("invalid CSR operation")
	}

	if err != nil {
		return err
	}

	mc.setReg(inst.Rd, old)

	return nil
}
