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
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/lassandro/rvtrap/pkg/encoding"
)

func (mc *MachineState) Reset(base, size uint64) {
	for i := range mc.Registers {
		mc.Registers[i] = 0
	}

	for i := range mc.CSR {
		mc.CSR[i] = 0
	}

	for i := range mc.UART {
		mc.UART[i] = 0
	}

	if uint64(len(mc.Memory)) == size {
		for i := range mc.Memory {
			mc.Memory[i] = 0
		}
	} else {
		mc.Memory = make([]byte, size)
	}

	mc.Base = base

	// Execution begins at the reset entry, the first byte of RAM
	mc.Program = base
	mc.Registers[REG_SP] = base + size

	// RV64IM
	mc.CSR[CSR_MISA] = 2<<62 | 1<<('I'-'A') | 1<<('M'-'A')

	mc.UART[UART_LSR] |= UART_LSR_TX_IDLE
}

// Reset clears the machine while keeping the configured RAM base and size.
func (mc *Machine) Reset() {
	base := mc.State.Base
	if base == 0 {
		base = MEMSPACE_RAM
	}

	size := uint64(len(mc.State.Memory))
	if size == 0 {
		size = DEFAULT_MEMORY_SIZE
	}

	mc.State.Reset(base, size)

	mc.halted = false
	mc.idle = false
	mc.status = 0
	mc.steps = 0
}

// LoadBin resets the machine and copies a flat image to the start of RAM.
func (mc *Machine) LoadBin(reader io.Reader) error {
	mc.Reset()

	image, err := io.ReadAll(reader)

	if err != nil {
		return err
	}

	if size := uint64(len(mc.State.Memory)); uint64(len(image)) > size {
		return &OversizedImageError{size, uint64(len(image))}
	}

	copy(mc.State.Memory, image)

	return nil
}

func (mc *Machine) inRAM(addr, size uint64) bool {
	end := mc.State.Base + uint64(len(mc.State.Memory))
	return addr >= mc.State.Base && addr < end && size <= end-addr
}

func (mc *Machine) inUART(addr uint64) bool {
	return addr >= MEMSPACE_UART && addr < MEMSPACE_UART+UART_SIZE
}

func (mc *Machine) fetch(addr uint64) (uint32, error) {
	if addr%4 != 0 {
		return 0, &MisalignedFetchError{addr}
	}

	if !mc.inRAM(addr, 4) {
		return 0, &AccessFaultError{addr, 4, false}
	}

	offset := addr - mc.State.Base

	return binary.LittleEndian.Uint32(mc.State.Memory[offset:]), nil
}

func (mc *Machine) read(addr, size uint64) (uint64, error) {
	var result uint64

	switch {
	case mc.inRAM(addr, size):
		mem := mc.State.Memory[addr-mc.State.Base:]

		switch size {
		case 1:
			result = uint64(mem[0])
		case 2:
			result = uint64(binary.LittleEndian.Uint16(mem))
		case 4:
			result = uint64(binary.LittleEndian.Uint32(mem))
		case 8:
			result = binary.LittleEndian.Uint64(mem)
		default:
			return 0, &AccessFaultError{addr, size, false}
		}

	case mc.inUART(addr) && size == 1:
		result = uint64(mc.readUART(addr - MEMSPACE_UART))

	default:
		return 0, &AccessFaultError{addr, size, false}
	}

	if mc.Debugger != nil {
		mc.Debugger.Read(addr, mc)
	}

	return result, nil
}

func (mc *Machine) write(addr, size, value uint64) error {
	switch {
	case mc.inRAM(addr, size):
		mem := mc.State.Memory[addr-mc.State.Base:]

		switch size {
		case 1:
			mem[0] = byte(value)
		case 2:
			binary.LittleEndian.PutUint16(mem, uint16(value))
		case 4:
			binary.LittleEndian.PutUint32(mem, uint32(value))
		case 8:
			binary.LittleEndian.PutUint64(mem, value)
		default:
			return &AccessFaultError{addr, size, true}
		}

	case mc.inUART(addr) && size == 1:
		if err := mc.writeUART(addr-MEMSPACE_UART, byte(value)); err != nil {
			return err
		}

	default:
		return &AccessFaultError{addr, size, true}
	}

	if mc.Debugger != nil {
		mc.Debugger.Write(addr, mc)
	}

	return nil
}

func (mc *Machine) readUART(reg uint64) uint8 {
	switch reg {
	case UART_RHR:
		mc.pollKeyboard()
		mc.State.UART[UART_LSR] &^= UART_LSR_RX_READY
		return mc.State.UART[UART_RHR]

	case UART_LSR:
		mc.pollKeyboard()
		return mc.State.UART[UART_LSR]
	}

	return mc.State.UART[reg]
}

func (mc *Machine) pollKeyboard() {
	if mc.State.UART[UART_LSR]&UART_LSR_RX_READY != 0 {
		return
	}

	if mc.Devices == nil || mc.Devices.Keyboard == nil {
		return
	}

	// A read error other than EOF leaves the receiver empty
	key, err := mc.Devices.Keyboard.ReadByte()

	if err != nil {
		return
	}

	mc.State.UART[UART_RHR] = key
	mc.State.UART[UART_LSR] |= UART_LSR_RX_READY
}

func (mc *Machine) writeUART(reg uint64, value uint8) error {
	if reg == UART_THR {
		return mc.display(value)
	}

	mc.State.UART[reg] = value

	return nil
}

func (mc *Machine) display(value byte) error {
	if mc.Devices == nil || mc.Devices.Display == nil {
		return nil
	}

	if err := mc.Devices.Display.WriteByte(value); err != nil {
		return err
	}

	return mc.Devices.Display.Flush()
}

func (mc *Machine) setReg(reg uint8, value uint64) {
	if reg != REG_ZERO {
		mc.State.Registers[reg] = value
	}
}

// Step executes a single instruction. Faults leave the program counter on
// the faulting instruction.
func (mc *Machine) Step() error {
	if mc.halted {
		return ErrHalted
	}

	pc := mc.State.Program

	instruction, err := mc.fetch(pc)

	if err != nil {
		return err
	}

	if mc.Trace != nil {
		mc.Trace.Printf("%#08x: %08x %s", pc, instruction, Disassemble(instruction))
	}

	next, err := mc.execute(pc, instruction)

	if err != nil {
		return err
	}

	mc.idle = next == pc && !mc.halted && fixedPoint(instruction)
	mc.State.Program = next
	mc.steps++

	if mc.Debugger != nil {
		mc.Debugger.Step(mc)
	}

	return nil
}

// fixedPoint reports whether an instruction that jumped to its own address
// will do so again. A JALR that links into its own base register moves its
// target on every execution.
func fixedPoint(instruction uint32) bool {
	inst := decode(instruction)

	if inst.Opcode == OP_JALR {
		return inst.Rd == REG_ZERO || inst.Rd != inst.Rs1
	}

	return true
}

func (mc *Machine) execute(pc uint64, instruction uint32) (uint64, error) {
	inst := decode(instruction)
	regs := &mc.State.Registers
	next := pc + 4

	rs1 := regs[inst.Rs1]
	rs2 := regs[inst.Rs2]

	switch inst.Opcode {
	// LUI   |imm[31:12]          |rd   |0110111|
	case OP_LUI:
		mc.setReg(inst.Rd, uint64(inst.ImmU))

	// AUIPC |imm[31:12]          |rd   |0010111|
	case OP_AUIPC:
		mc.setReg(inst.Rd, pc+uint64(inst.ImmU))

	// JAL   |imm[20|10:1|11|19:12]|rd  |1101111|
	case OP_JAL:
		mc.setReg(inst.Rd, next)
		next = pc + uint64(inst.ImmJ)

	// JALR  |imm[11:0]  |rs1 |000|rd   |1100111|
	case OP_JALR:
		if inst.Funct3 != 0 {
			return 0, &IllegalInstructionError{pc, instruction}
		}

		target := (rs1 + uint64(inst.ImmI)) &^ 1
		mc.setReg(inst.Rd, next)
		next = target

	// Bxx   |imm[12|10:5]|rs2|rs1|f3 |imm[4:1|11]|1100011|
	case OP_BRANCH:
		var taken bool

		switch inst.Funct3 {
		case 0b000:
			taken = rs1 == rs2
		case 0b001:
			taken = rs1 != rs2
		case 0b100:
			taken = int64(rs1) < int64(rs2)
		case 0b101:
			taken = int64(rs1) >= int64(rs2)
		case 0b110:
			taken = rs1 < rs2
		case 0b111:
			taken = rs1 >= rs2
		default:
			return 0, &IllegalInstructionError{pc, instruction}
		}

		if taken {
			next = pc + uint64(inst.ImmB)
		}

	// Lx    |imm[11:0]  |rs1 |f3 |rd   |0000011|
	case OP_LOAD:
		addr := rs1 + uint64(inst.ImmI)

		var size uint64
		var signed bool

		switch inst.Funct3 {
		case 0b000:
			size, signed = 1, true
		case 0b001:
			size, signed = 2, true
		case 0b010:
			size, signed = 4, true
		case 0b011:
			size, signed = 8, true
		case 0b100:
			size = 1
		case 0b101:
			size = 2
		case 0b110:
			size = 4
		default:
			return 0, &IllegalInstructionError{pc, instruction}
		}

		value, err := mc.read(addr, size)

		if err != nil {
			return 0, err
		}

		if signed && size < 8 {
			value = encoding.SignExtend(value, uint(size*8))
		}

		mc.setReg(inst.Rd, value)

	// Sx    |imm[11:5]|rs2|rs1|f3 |imm[4:0]|0100011|
	case OP_STORE:
		if inst.Funct3 > 0b011 {
			return 0, &IllegalInstructionError{pc, instruction}
		}

		addr := rs1 + uint64(inst.ImmS)

		if err := mc.write(addr, 1<<inst.Funct3, rs2); err != nil {
			return 0, err
		}

	// OP-IMM |imm[11:0] |rs1 |f3 |rd   |0010011|
	case OP_IMM:
		imm := uint64(inst.ImmI)
		shamt := uint64(inst.Bits>>20) & 0x3F
		funct6 := inst.Bits >> 26

		var value uint64

		switch inst.Funct3 {
		case 0b000:
			value = rs1 + imm
		case 0b010:
			value = boolToReg(int64(rs1) < int64(imm))
		case 0b011:
			value = boolToReg(rs1 < imm)
		case 0b100:
			value = rs1 ^ imm
		case 0b110:
			value = rs1 | imm
		case 0b111:
			value = rs1 & imm
		case 0b001:
			if funct6 != 0 {
				return 0, &IllegalInstructionError{pc, instruction}
			}
			value = rs1 << shamt
		case 0b101:
			switch funct6 {
			case 0b000000:
				value = rs1 >> shamt
			case 0b010000:
				value = uint64(int64(rs1) >> shamt)
			default:
				return 0, &IllegalInstructionError{pc, instruction}
			}
		}

		mc.setReg(inst.Rd, value)

	// OP-IMM-32 |imm[11:0] |rs1 |f3 |rd |0011011|
	case OP_IMM_32:
		shamt := uint64(inst.Rs2)
		src := uint32(rs1)

		var value uint32

		switch {
		case inst.Funct3 == 0b000:
			value = src + uint32(inst.ImmI)
		case inst.Funct3 == 0b001 && inst.Funct7 == FUNCT7_BASE:
			value = src << shamt
		case inst.Funct3 == 0b101 && inst.Funct7 == FUNCT7_BASE:
			value = src >> shamt
		case inst.Funct3 == 0b101 && inst.Funct7 == FUNCT7_ALT:
			value = uint32(int32(src) >> shamt)
		default:
			return 0, &IllegalInstructionError{pc, instruction}
		}

		mc.setReg(inst.Rd, encoding.SignExtend(uint64(value), 32))

	// OP    |f7 |rs2 |rs1 |f3 |rd   |0110011|
	case OP_OP:
		value, ok := aluOp(inst.Funct7, inst.Funct3, rs1, rs2)

		if !ok {
			return 0, &IllegalInstructionError{pc, instruction}
		}

		mc.setReg(inst.Rd, value)

	// OP-32 |f7 |rs2 |rs1 |f3 |rd   |0111011|
	case OP_OP_32:
		value, ok := aluOp32(inst.Funct7, inst.Funct3, uint32(rs1), uint32(rs2))

		if !ok {
			return 0, &IllegalInstructionError{pc, instruction}
		}

		mc.setReg(inst.Rd, encoding.SignExtend(uint64(value), 32))

	// FENCE, FENCE.I: single hart, in-order memory
	case OP_MISC_MEM:
		if inst.Funct3 > 0b001 {
			return 0, &IllegalInstructionError{pc, instruction}
		}

	case OP_SYSTEM:
		if inst.Funct3 == 0b000 {
			switch instruction {
			case INST_EBREAK:
				if err := mc.semihost(pc); err != nil {
					return 0, err
				}

				if mc.halted {
					return pc, nil
				}

			case INST_WFI:
				// No interrupt sources; waiting is a no-op

			case INST_ECALL, INST_MRET:
				return 0, &UnsupportedTrapError{pc, instruction}

			default:
				return 0, &IllegalInstructionError{pc, instruction}
			}

			break
		}

		if err := mc.csrOp(inst); err != nil {
			return 0, &IllegalInstructionError{pc, instruction}
		}

	default:
		return 0, &IllegalInstructionError{pc, instruction}
	}

	return next, nil
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

func aluOp(funct7, funct3 uint32, a, b uint64) (uint64, bool) {
	shamt := b & 0x3F

	switch funct7 {
	case FUNCT7_BASE:
		switch funct3 {
		case 0b000:
			return a + b, true
		case 0b001:
			return a << shamt, true
		case 0b010:
			return boolToReg(int64(a) < int64(b)), true
		case 0b011:
			return boolToReg(a < b), true
		case 0b100:
			return a ^ b, true
		case 0b101:
			return a >> shamt, true
		case 0b110:
			return a | b, true
		case 0b111:
			return a & b, true
		}

	case FUNCT7_ALT:
		switch funct3 {
		case 0b000:
			return a - b, true
		case 0b101:
			return uint64(int64(a) >> shamt), true
		}

	case FUNCT7_MULDIV:
		switch funct3 {
		case 0b000:
			return a * b, true
		case 0b001:
			return mulh(int64(a), int64(b)), true
		case 0b010:
			return mulhsu(int64(a), b), true
		case 0b011:
			hi, _ := bits.Mul64(a, b)
			return hi, true
		case 0b100:
			return div(int64(a), int64(b)), true
		case 0b101:
			if b == 0 {
				return ^uint64(0), true
			}
			return a / b, true
		case 0b110:
			return rem(int64(a), int64(b)), true
		case 0b111:
			if b == 0 {
				return a, true
			}
			return a % b, true
		}
	}

	return 0, false
}

func aluOp32(funct7, funct3 uint32, a, b uint32) (uint32, bool) {
	shamt := b & 0x1F

	switch funct7 {
	case FUNCT7_BASE:
		switch funct3 {
		case 0b000:
			return a + b, true
		case 0b001:
			return a << shamt, true
		case 0b101:
			return a >> shamt, true
		}

	case FUNCT7_ALT:
		switch funct3 {
		case 0b000:
			return a - b, true
		case 0b101:
			return uint32(int32(a) >> shamt), true
		}

	case FUNCT7_MULDIV:
		switch funct3 {
		case 0b000:
			return a * b, true
		case 0b100:
			if b == 0 {
				return ^uint32(0), true
			}
			if int32(a) == -1<<31 && int32(b) == -1 {
				return a, true
			}
			return uint32(int32(a) / int32(b)), true
		case 0b101:
			if b == 0 {
				return ^uint32(0), true
			}
			return a / b, true
		case 0b110:
			if b == 0 {
				return a, true
			}
			if int32(a) == -1<<31 && int32(b) == -1 {
				return 0, true
			}
			return uint32(int32(a) % int32(b)), true
		case 0b111:
			if b == 0 {
				return a, true
			}
			return a % b, true
		}
	}

	return 0, false
}

func mulh(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))

	if a < 0 {
		hi -= uint64(b)
	}

	if b < 0 {
		hi -= uint64(a)
	}

	return hi
}

func mulhsu(a int64, b uint64) uint64 {
	hi, _ := bits.Mul64(uint64(a), b)

	if a < 0 {
		hi -= b
	}

	return hi
}

func div(a, b int64) uint64 {
	switch {
	case b == 0:
		return ^uint64(0)
	case a == -1<<63 && b == -1:
		return uint64(a)
	}

	return uint64(a / b)
}

func rem(a, b int64) uint64 {
	switch {
	case b == 0:
		return uint64(a)
	case a == -1<<63 && b == -1:
		return 0
	}

	return uint64(a % b)
}
