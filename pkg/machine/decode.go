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
	"fmt"

	"github.com/lassandro/rvtrap/pkg/encoding"
)

// Fields for all instruction formats; not every field is meaningful for
// every opcode.
type instruction struct {
	Bits   uint32
	Opcode uint32
	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Funct3 uint32
	Funct7 uint32
	ImmI   int64
	ImmS   int64
	ImmB   int64
	ImmU   int64
	ImmJ   int64
}

func decode(bits uint32) (inst instruction) {
	inst.Bits = bits
	inst.Opcode = encoding.Bits(bits, 6, 0)
	inst.Rd = uint8(encoding.Bits(bits, 11, 7))
	inst.Funct3 = encoding.Bits(bits, 14, 12)
	inst.Rs1 = uint8(encoding.Bits(bits, 19, 15))
	inst.Rs2 = uint8(encoding.Bits(bits, 24, 20))
	inst.Funct7 = encoding.Bits(bits, 31, 25)

	inst.ImmI = int64(int32(bits) >> 20)
	inst.ImmS = int64(int32(bits&0xFE000000)>>20) | int64(encoding.Bits(bits, 11, 7))
	inst.ImmB = int64(int32(bits&0x80000000)>>19) |
		int64(encoding.Bits(bits, 7, 7)<<11) |
		int64(encoding.Bits(bits, 30, 25)<<5) |
		int64(encoding.Bits(bits, 11, 8)<<1)
	inst.ImmU = int64(int32(bits & 0xFFFFF000))
	inst.ImmJ = int64(int32(bits&0x80000000)>>11) |
		int64(encoding.Bits(bits, 19, 12)<<12) |
		int64(encoding.Bits(bits, 20, 20)<<11) |
		int64(encoding.Bits(bits, 30, 21)<<1)

	return
}

var AbiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var (
	branchNames = map[uint32]string{
		0b000: "beq", 0b001: "bne", 0b100: "blt",
		0b101: "bge", 0b110: "bltu", 0b111: "bgeu",
	}
	loadNames = map[uint32]string{
		0b000: "lb", 0b001: "lh", 0b010: "lw", 0b011: "ld",
		0b100: "lbu", 0b101: "lhu", 0b110: "lwu",
	}
	storeNames = map[uint32]string{
		0b000: "sb", 0b001: "sh", 0b010: "sw", 0b011: "sd",
	}
	immNames = map[uint32]string{
		0b000: "addi", 0b010: "slti", 0b011: "sltiu",
		0b100: "xori", 0b110: "ori", 0b111: "andi",
	}
	opNames = map[[2]uint32]string{
		{FUNCT7_BASE, 0b000}: "add", {FUNCT7_ALT, 0b000}: "sub",
		{FUNCT7_BASE, 0b001}: "sll", {FUNCT7_BASE, 0b010}: "slt",
		{FUNCT7_BASE, 0b011}: "sltu", {FUNCT7_BASE, 0b100}: "xor",
		{FUNCT7_BASE, 0b101}: "srl", {FUNCT7_ALT, 0b101}: "sra",
		{FUNCT7_BASE, 0b110}: "or", {FUNCT7_BASE, 0b111}: "and",
		{FUNCT7_MULDIV, 0b000}: "mul", {FUNCT7_MULDIV, 0b001}: "mulh",
		{FUNCT7_MULDIV, 0b010}: "mulhsu", {FUNCT7_MULDIV, 0b011}: "mulhu",
		{FUNCT7_MULDIV, 0b100}: "div", {FUNCT7_MULDIV, 0b101}: "divu",
		{FUNCT7_MULDIV, 0b110}: "rem", {FUNCT7_MULDIV, 0b111}: "remu",
	}
	csrNames = map[uint32]string{
		0b001: "csrrw", 0b010: "csrrs", 0b011: "csrrc",
		0b101: "csrrwi", 0b110: "csrrsi", 0b111: "csrrci",
	}
)

// Disassemble renders a single instruction word without pseudo-instruction
// aliases. Unknown encodings render as a .word directive.
func Disassemble(bits uint32) string {
	inst := decode(bits)
	rd, rs1, rs2 := AbiNames[inst.Rd], AbiNames[inst.Rs1], AbiNames[inst.Rs2]
	unknown := fmt.Sprintf(".word %#08x", bits)

	switch inst.Opcode {
	case OP_LUI:
		return fmt.Sprintf("lui %s, %#x", rd, uint32(inst.ImmU)>>12)
	case OP_AUIPC:
		return fmt.Sprintf("auipc %s, %#x", rd, uint32(inst.ImmU)>>12)
	case OP_JAL:
		return fmt.Sprintf("jal %s, %d", rd, inst.ImmJ)
	case OP_JALR:
		return fmt.Sprintf("jalr %s, %d(%s)", rd, inst.ImmI, rs1)
	case OP_BRANCH:
		if name, ok := branchNames[inst.Funct3]; ok {
			return fmt.Sprintf("%s %s, %s, %d", name, rs1, rs2, inst.ImmB)
		}
	case OP_LOAD:
		if name, ok := loadNames[inst.Funct3]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", name, rd, inst.ImmI, rs1)
		}
	case OP_STORE:
		if name, ok := storeNames[inst.Funct3]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", name, rs2, inst.ImmS, rs1)
		}
	case OP_IMM:
		shamt := (bits >> 20) & 0x3F

		switch inst.Funct3 {
		case 0b001:
			return fmt.Sprintf("slli %s, %s, %d", rd, rs1, shamt)
		case 0b101:
			if bits>>26 == 0b010000 {
				return fmt.Sprintf("srai %s, %s, %d", rd, rs1, shamt)
			}
			return fmt.Sprintf("srli %s, %s, %d", rd, rs1, shamt)
		}

		return fmt.Sprintf("%s %s, %s, %d", immNames[inst.Funct3], rd, rs1, inst.ImmI)
	case OP_IMM_32:
		switch inst.Funct3 {
		case 0b000:
			return fmt.Sprintf("addiw %s, %s, %d", rd, rs1, inst.ImmI)
		case 0b001:
			return fmt.Sprintf("slliw %s, %s, %d", rd, rs1, inst.Rs2)
		case 0b101:
			if inst.Funct7 == FUNCT7_ALT {
				return fmt.Sprintf("sraiw %s, %s, %d", rd, rs1, inst.Rs2)
			}
			return fmt.Sprintf("srliw %s, %s, %d", rd, rs1, inst.Rs2)
		}
	case OP_OP:
		if name, ok := opNames[[2]uint32{inst.Funct7, inst.Funct3}]; ok {
			return fmt.Sprintf("%s %s, %s, %s", name, rd, rs1, rs2)
		}
	case OP_OP_32:
		if name, ok := opNames[[2]uint32{inst.Funct7, inst.Funct3}]; ok {
			return fmt.Sprintf("%sw %s, %s, %s", name, rd, rs1, rs2)
		}
	case OP_MISC_MEM:
		if inst.Funct3 == 0b001 {
			return "fence.i"
		}
		return "fence"
	case OP_SYSTEM:
		switch bits {
		case INST_EBREAK:
			return "ebreak"
		case INST_ECALL:
			return "ecall"
		case INST_MRET:
			return "mret"
		case INST_WFI:
			return "wfi"
		}

		if name, ok := csrNames[inst.Funct3]; ok {
			csr := bits >> 20

			if inst.Funct3 >= 0b101 {
				return fmt.Sprintf("%s %s, %#x, %d", name, rd, csr, inst.Rs1)
			}
			return fmt.Sprintf("%s %s, %#x, %s", name, rd, csr, rs1)
		}
	}

	return unknown
}
