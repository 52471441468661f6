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

// Semihosting operation codes, passed in a0 before EBREAK
const (
	SEMIHOST_PUTCHAR uint64 = 0
	SEMIHOST_HALT    uint64 = 1
)

const (
	REG_ZERO uint8 = 0
	REG_RA   uint8 = 1
	REG_SP   uint8 = 2
	REG_A0   uint8 = 10
	REG_A1   uint8 = 11
)

const (
	MEMSPACE_RAM  uint64 = 0x80000000
	MEMSPACE_UART uint64 = 0x10000000

	DEFAULT_MEMORY_SIZE uint64 = 16 << 20
)

// 16550 UART registers, offsets from MEMSPACE_UART
const (
	UART_SIZE uint64 = 0x100

	UART_RHR uint64 = 0b000 // receive holding register (read)
	UART_THR uint64 = 0b000 // transmit holding register (write)
	UART_IER uint64 = 0b001
	UART_FCR uint64 = 0b010
	UART_LCR uint64 = 0b011
	UART_MCR uint64 = 0b100
	UART_LSR uint64 = 0b101

	UART_LSR_RX_READY uint8 = 1 << 0
	UART_LSR_TX_IDLE  uint8 = 1 << 5
)

const (
	OP_LOAD     uint32 = 0b0000011
	OP_MISC_MEM uint32 = 0b0001111
	OP_IMM      uint32 = 0b0010011
	OP_AUIPC    uint32 = 0b0010111
	OP_IMM_32   uint32 = 0b0011011
	OP_STORE    uint32 = 0b0100011
	OP_OP       uint32 = 0b0110011
	OP_LUI      uint32 = 0b0110111
	OP_OP_32    uint32 = 0b0111011
	OP_BRANCH   uint32 = 0b1100011
	OP_JALR     uint32 = 0b1100111
	OP_JAL      uint32 = 0b1101111
	OP_SYSTEM   uint32 = 0b1110011
)

const (
	FUNCT7_BASE   uint32 = 0b0000000
	FUNCT7_ALT    uint32 = 0b0100000
	FUNCT7_MULDIV uint32 = 0b0000001
)

const (
	INST_ECALL  uint32 = 0x00000073
	INST_EBREAK uint32 = 0x00100073
	INST_MRET   uint32 = 0x30200073
	INST_WFI    uint32 = 0x10500073

	// jal x0, 0
	INST_IDLE uint32 = 0x0000006F
)

// Machine level CSRs
const (
	CSR_MSTATUS  uint16 = 0x300
	CSR_MISA     uint16 = 0x301
	CSR_MEDELEG  uint16 = 0x302
	CSR_MIDELEG  uint16 = 0x303
	CSR_MIE      uint16 = 0x304
	CSR_MTVEC    uint16 = 0x305
	CSR_MSCRATCH uint16 = 0x340
	CSR_MEPC     uint16 = 0x341
	CSR_MCAUSE   uint16 = 0x342
	CSR_MTVAL    uint16 = 0x343
	CSR_MIP      uint16 = 0x344
	CSR_MHARTID  uint16 = 0xF14
)

// Supervisor level CSRs
const (
	CSR_SSTATUS uint16 = 0x100
	CSR_SIE     uint16 = 0x104
	CSR_STVEC   uint16 = 0x105
	CSR_SEPC    uint16 = 0x141
	CSR_SIP     uint16 = 0x144
)

// Fields of mstatus visible through sstatus
const SSTATUS_MASK uint64 = 1<<1 | 1<<5 | 1<<6 | 1<<8 | 0b11<<13 | 0b11<<15 |
	1<<18 | 1<<19 | 0b11<<32 | 1<<63

const CSR_COUNT = 1 << 12
