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

package assembler

import "github.com/lassandro/rvtrap/pkg/machine"

const (
	TOKEN_NONE TokenType = iota
	TOKEN_IDENT
	TOKEN_DIRECTIVE
	TOKEN_STRING
	TOKEN_LITERAL
	TOKEN_CHAR
	TOKEN_LABEL
)

const (
	FORMAT_R FormatType = iota
	FORMAT_I
	FORMAT_SHIFT
	FORMAT_LOAD
	FORMAT_STORE
	FORMAT_BRANCH
	FORMAT_U
	FORMAT_J
	FORMAT_JALR
	FORMAT_FIXED
)

const (
	DIRECTIVE_INVALID DirectiveType = iota
	DIRECTIVE_BYTE
	DIRECTIVE_HALF
	DIRECTIVE_WORD
	DIRECTIVE_DWORD
	DIRECTIVE_ASCIZ
	DIRECTIVE_ALIGN
	DIRECTIVE_END
)

// Immediate widths in bits
const (
	IMM_I     uint = 12
	IMM_U     uint = 20
	IMM_B     uint = 13
	IMM_J     uint = 21
	IMM_SHIFT uint = 6
	IMM_LI    uint = 32
)

const (
	ALIGN_MAX  = 16
	BINARY_MAX = machine.DEFAULT_MEMORY_SIZE
)

// fence iorw, iorw
const INST_FENCE uint32 = 0x0FF0000F

var directives = map[string]DirectiveType{
	".byte":  DIRECTIVE_BYTE,
	".half":  DIRECTIVE_HALF,
	".word":  DIRECTIVE_WORD,
	".dword": DIRECTIVE_DWORD,
	".asciz": DIRECTIVE_ASCIZ,
	".align": DIRECTIVE_ALIGN,
	".end":   DIRECTIVE_END,
}

var instructions = map[string]Opcode{
	"lui":   {FORMAT_U, machine.OP_LUI, 0, 0},
	"auipc": {FORMAT_U, machine.OP_AUIPC, 0, 0},
	"jal":   {FORMAT_J, machine.OP_JAL, 0, 0},
	"jalr":  {FORMAT_JALR, machine.OP_JALR, 0b000, 0},

	"beq":  {FORMAT_BRANCH, machine.OP_BRANCH, 0b000, 0},
	"bne":  {FORMAT_BRANCH, machine.OP_BRANCH, 0b001, 0},
	"blt":  {FORMAT_BRANCH, machine.OP_BRANCH, 0b100, 0},
	"bge":  {FORMAT_BRANCH, machine.OP_BRANCH, 0b101, 0},
	"bltu": {FORMAT_BRANCH, machine.OP_BRANCH, 0b110, 0},
	"bgeu": {FORMAT_BRANCH, machine.OP_BRANCH, 0b111, 0},

	"lb":  {FORMAT_LOAD, machine.OP_LOAD, 0b000, 0},
	"lh":  {FORMAT_LOAD, machine.OP_LOAD, 0b001, 0},
	"lw":  {FORMAT_LOAD, machine.OP_LOAD, 0b010, 0},
	"ld":  {FORMAT_LOAD, machine.OP_LOAD, 0b011, 0},
	"lbu": {FORMAT_LOAD, machine.OP_LOAD, 0b100, 0},
	"lhu": {FORMAT_LOAD, machine.OP_LOAD, 0b101, 0},
	"lwu": {FORMAT_LOAD, machine.OP_LOAD, 0b110, 0},

	"sb": {FORMAT_STORE, machine.OP_STORE, 0b000, 0},
	"sh": {FORMAT_STORE, machine.OP_STORE, 0b001, 0},
	"sw": {FORMAT_STORE, machine.OP_STORE, 0b010, 0},
	"sd": {FORMAT_STORE, machine.OP_STORE, 0b011, 0},

	"addi":  {FORMAT_I, machine.OP_IMM, 0b000, 0},
	"slti":  {FORMAT_I, machine.OP_IMM, 0b010, 0},
	"sltiu": {FORMAT_I, machine.OP_IMM, 0b011, 0},
	"xori":  {FORMAT_I, machine.OP_IMM, 0b100, 0},
	"ori":   {FORMAT_I, machine.OP_IMM, 0b110, 0},
	"andi":  {FORMAT_I, machine.OP_IMM, 0b111, 0},
	"addiw": {FORMAT_I, machine.OP_IMM_32, 0b000, 0},

	"slli": {FORMAT_SHIFT, machine.OP_IMM, 0b001, machine.FUNCT7_BASE},
	"srli": {FORMAT_SHIFT, machine.OP_IMM, 0b101, machine.FUNCT7_BASE},
	"srai": {FORMAT_SHIFT, machine.OP_IMM, 0b101, machine.FUNCT7_ALT},

	"add":  {FORMAT_R, machine.OP_OP, 0b000, machine.FUNCT7_BASE},
	"sub":  {FORMAT_R, machine.OP_OP, 0b000, machine.FUNCT7_ALT},
	"sll":  {FORMAT_R, machine.OP_OP, 0b001, machine.FUNCT7_BASE},
	"slt":  {FORMAT_R, machine.OP_OP, 0b010, machine.FUNCT7_BASE},
	"sltu": {FORMAT_R, machine.OP_OP, 0b011, machine.FUNCT7_BASE},
	"xor":  {FORMAT_R, machine.OP_OP, 0b100, machine.FUNCT7_BASE},
	"srl":  {FORMAT_R, machine.OP_OP, 0b101, machine.FUNCT7_BASE},
	"sra":  {FORMAT_R, machine.OP_OP, 0b101, machine.FUNCT7_ALT},
	"or":   {FORMAT_R, machine.OP_OP, 0b110, machine.FUNCT7_BASE},
	"and":  {FORMAT_R, machine.OP_OP, 0b111, machine.FUNCT7_BASE},
	"mul":  {FORMAT_R, machine.OP_OP, 0b000, machine.FUNCT7_MULDIV},
	"div":  {FORMAT_R, machine.OP_OP, 0b100, machine.FUNCT7_MULDIV},
	"rem":  {FORMAT_R, machine.OP_OP, 0b110, machine.FUNCT7_MULDIV},
	"addw": {FORMAT_R, machine.OP_OP_32, 0b000, machine.FUNCT7_BASE},
	"subw": {FORMAT_R, machine.OP_OP_32, 0b000, machine.FUNCT7_ALT},

	// Fixed encodings carry the whole instruction word in Opcode
	"ebreak": {FORMAT_FIXED, machine.INST_EBREAK, 0, 0},
	"ecall":  {FORMAT_FIXED, machine.INST_ECALL, 0, 0},
	"fence":  {FORMAT_FIXED, INST_FENCE, 0, 0},
}
