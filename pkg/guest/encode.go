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

package guest

import "github.com/lassandro/rvtrap/pkg/machine"

// R-type: funct7[31:25] | rs2[24:20] | rs1[19:15] | funct3[14:12] | rd[11:7] | opcode[6:0]
func EncodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return opcode |
		uint32(rd&0x1F)<<7 |
		(funct3&0x7)<<12 |
		uint32(rs1&0x1F)<<15 |
		uint32(rs2&0x1F)<<20 |
		(funct7&0x7F)<<25
}

// I-type: imm[31:20] | rs1[19:15] | funct3[14:12] | rd[11:7] | opcode[6:0]
func EncodeI(opcode, funct3 uint32, rd, rs1 uint8, imm int64) uint32 {
	return opcode |
		uint32(rd&0x1F)<<7 |
		(funct3&0x7)<<12 |
		uint32(rs1&0x1F)<<15 |
		uint32(imm&0xFFF)<<20
}

// S-type: imm[31:25] | rs2[24:20] | rs1[19:15] | funct3[14:12] | imm[11:7] | opcode[6:0]
func EncodeS(opcode, funct3 uint32, rs1, rs2 uint8, imm int64) uint32 {
	return opcode |
		uint32(imm&0x1F)<<7 |
		(funct3&0x7)<<12 |
		uint32(rs1&0x1F)<<15 |
		uint32(rs2&0x1F)<<20 |
		uint32((imm>>5)&0x7F)<<25
}

// B-type: imm[12|10:5] | rs2 | rs1 | funct3 | imm[4:1|11] | opcode
func EncodeB(funct3 uint32, rs1, rs2 uint8, imm int64) uint32 {
	return machine.OP_BRANCH |
		uint32((imm>>11)&0x1)<<7 |
		uint32((imm>>1)&0xF)<<8 |
		(funct3&0x7)<<12 |
		uint32(rs1&0x1F)<<15 |
		uint32(rs2&0x1F)<<20 |
		uint32((imm>>5)&0x3F)<<25 |
		uint32((imm>>12)&0x1)<<31
}

// U-type: imm[31:12] | rd[11:7] | opcode[6:0]
// imm is the 20-bit upper immediate, not the shifted value.
func EncodeU(opcode uint32, rd uint8, imm int64) uint32 {
	return opcode | uint32(rd&0x1F)<<7 | uint32(imm&0xFFFFF)<<12
}

// J-type: imm[20|10:1|11|19:12] | rd[11:7] | opcode[6:0]
func EncodeJ(rd uint8, imm int64) uint32 {
	return machine.OP_JAL |
		uint32(rd&0x1F)<<7 |
		uint32((imm>>12)&0xFF)<<12 |
		uint32((imm>>11)&0x1)<<20 |
		uint32((imm>>1)&0x3FF)<<21 |
		uint32((imm>>20)&0x1)<<31
}

func ADDI(rd, rs1 uint8, imm int64) uint32 {
	return EncodeI(machine.OP_IMM, 0b000, rd, rs1, imm)
}

func JAL(rd uint8, offset int64) uint32 {
	return EncodeJ(rd, offset)
}
