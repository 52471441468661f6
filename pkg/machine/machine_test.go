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

package machine_test

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/lassandro/rvtrap/pkg/guest"
	"github.com/lassandro/rvtrap/pkg/machine"
)

const (
	B          = machine.MEMSPACE_RAM
	testMemory = 0x1000
)

type testMachineState struct {
	Registers map[uint8]uint64
	Program   uint64
	Memory    map[uint64]uint32
}

type testCase struct {
	Name     string
	Steps    uint
	Keyboard string
	Display  string
	Input    testMachineState
	Output   testMachineState
}

func newTestMachine(keyboard string, display *bytes.Buffer) *machine.Machine {
	var mc machine.Machine
	var devices machine.DeviceHandler

	if len(keyboard) > 0 {
		devices.Keyboard = bufio.NewReader(bytes.NewReader([]byte(keyboard)))
	}

	devices.Display = bufio.NewWriter(display)

	mc.Devices = &devices
	mc.State.Reset(B, testMemory)

	return &mc
}

func testMachineSuccess(t *testing.T, test *testCase) {
	if test.Input.Memory == nil {
		panic("No memory map provided")
	}

	var displayBuf bytes.Buffer

	mc := newTestMachine(test.Keyboard, &displayBuf)

	for reg, value := range test.Input.Registers {
		mc.State.Registers[reg] = value
	}

	mc.State.Program = test.Input.Program

	if mc.State.Program == 0 {
		mc.State.Program = B
	}

	for addr, word := range test.Input.Memory {
		binary.LittleEndian.PutUint32(mc.State.Memory[addr-B:], word)
	}

	if test.Steps == 0 {
		test.Steps = 1
	}

	for i := uint(0); i < test.Steps; i++ {
		if err := mc.Step(); err != nil {
			t.Fatalf("Unexpected error\nwant:nil (step %d)\nhave:%v", i, err)
		}
	}

	for reg, want := range test.Output.Registers {
		have := mc.State.Registers[reg]
		if have != want {
			t.Errorf(
				"Register mismatch"+
					"\nwant:%#016x (test.Output.Registers[%s])\nhave:%#016x",
				want,
				machine.AbiNames[reg],
				have,
			)
		}
	}

	if mc.State.Program != test.Output.Program {
		t.Errorf(
			"Program counter mismatch"+
				"\nwant:%#08x (test.Output.Program)\nhave:%#08x",
			test.Output.Program,
			mc.State.Program,
		)
	}

	for addr, want := range test.Output.Memory {
		have := binary.LittleEndian.Uint32(mc.State.Memory[addr-B:])
		if have != want {
			t.Errorf(
				"Memory value mismatch"+
					"\nwant:%#08x (test.Output.Memory[%#08x])\nhave:%#08x",
				want,
				addr,
				have,
			)
		}
	}

	if have := displayBuf.String(); have != test.Display {
		t.Errorf(
			"Display output mismatch"+
				"\nwant:%q (test.Display)\nhave:%q",
			test.Display,
			have,
		)
	}
}

func testSuccess(t *testing.T, tests []testCase) {
	t.Run("Success", func(t *testing.T) {
		for _, test := range tests {
			t.Run(test.Name, func(t *testing.T) {
				testMachineSuccess(t, &test)
			})
		}
	})
}

func opR(funct7, funct3 uint32, rd, rs1, rs2 uint8) uint32 {
	return guest.EncodeR(machine.OP_OP, funct3, funct7, rd, rs1, rs2)
}

func opR32(funct7, funct3 uint32, rd, rs1, rs2 uint8) uint32 {
	return guest.EncodeR(machine.OP_OP_32, funct3, funct7, rd, rs1, rs2)
}

func opI(funct3 uint32, rd, rs1 uint8, imm int64) uint32 {
	return guest.EncodeI(machine.OP_IMM, funct3, rd, rs1, imm)
}

func TestArithmetic(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "ADDI Negative",
			Input: testMachineState{
				Memory: map[uint64]uint32{B: guest.ADDI(5, 0, -1)},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF},
			},
		},
		{
			Name: "ADD",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 2, 6: 3},
				Memory:    map[uint64]uint32{B: opR(0, 0b000, 7, 5, 6)},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{5: 2, 6: 3, 7: 5},
			},
		},
		{
			Name: "ADD Zero Destination",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 1, 6: 1},
				Memory:    map[uint64]uint32{B: opR(0, 0b000, 0, 5, 6)},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{0: 0},
			},
		},
		{
			Name: "SUB Wrap",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0, 6: 1},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_ALT, 0b000, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFFFFFFFFFF},
			},
		},
		{
			Name: "SRAI",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0x8000000000000000},
				Memory:    map[uint64]uint32{B: opI(0b101, 7, 5, 0x400|4)},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xF800000000000000},
			},
		},
		{
			Name: "SLTI Signed",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF},
				Memory:    map[uint64]uint32{B: opI(0b010, 7, 5, 0)},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 1},
			},
		},
		{
			Name: "SLTIU Unsigned",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF, 7: 0xCAFE},
				Memory:    map[uint64]uint32{B: opI(0b011, 7, 5, 0)},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0},
			},
		},
		{
			Name: "ADDIW Sign Extend",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0x7FFFFFFF},
				Memory: map[uint64]uint32{
					B: guest.EncodeI(machine.OP_IMM_32, 0b000, 7, 5, 1),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFF80000000},
			},
		},
		{
			Name: "MUL",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 6, 6: 7},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_MULDIV, 0b000, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 42},
			},
		},
		{
			Name: "MULH Negative",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF, 6: 2},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_MULDIV, 0b001, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFFFFFFFFFF},
			},
		},
		{
			Name: "MULHU",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF, 6: 2},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_MULDIV, 0b011, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 1},
			},
		},
		{
			Name: "DIV By Zero",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 7, 6: 0},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_MULDIV, 0b100, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFFFFFFFFFF},
			},
		},
		{
			Name: "DIV Overflow",
			Input: testMachineState{
				Registers: map[uint8]uint64{
					5: 0x8000000000000000,
					6: 0xFFFFFFFFFFFFFFFF,
				},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_MULDIV, 0b100, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0x8000000000000000},
			},
		},
		{
			Name: "REM Negative",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFF9, 6: 2},
				Memory: map[uint64]uint32{
					B: opR(machine.FUNCT7_MULDIV, 0b110, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFFFFFFFFFF},
			},
		},
		{
			Name: "DIVW",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFF8, 6: 2},
				Memory: map[uint64]uint32{
					B: opR32(machine.FUNCT7_MULDIV, 0b100, 7, 5, 6),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFFFFFFFFFC},
			},
		},
		{
			Name: "LUI Sign Extend",
			Input: testMachineState{
				Memory: map[uint64]uint32{
					B: guest.EncodeU(machine.OP_LUI, 5, 0x80000),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{5: 0xFFFFFFFF80000000},
			},
		},
		{
			Name: "AUIPC",
			Input: testMachineState{
				Memory: map[uint64]uint32{
					B: guest.EncodeU(machine.OP_AUIPC, 5, 1),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{5: B + 0x1000},
			},
		},
	})
}

func TestBranch(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "BEQ Taken",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 1, 6: 1},
				Memory:    map[uint64]uint32{B: guest.EncodeB(0b000, 5, 6, 8)},
			},
			Output: testMachineState{Program: B + 8},
		},
		{
			Name: "BNE Not Taken",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 1, 6: 1},
				Memory:    map[uint64]uint32{B: guest.EncodeB(0b001, 5, 6, 8)},
			},
			Output: testMachineState{Program: B + 4},
		},
		{
			Name: "BLT Signed",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF, 6: 0},
				Memory:    map[uint64]uint32{B: guest.EncodeB(0b100, 5, 6, 16)},
			},
			Output: testMachineState{Program: B + 16},
		},
		{
			Name: "BLTU Unsigned",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 0xFFFFFFFFFFFFFFFF, 6: 0},
				Memory:    map[uint64]uint32{B: guest.EncodeB(0b110, 5, 6, 16)},
			},
			Output: testMachineState{Program: B + 4},
		},
		{
			Name: "BGE Backward",
			Input: testMachineState{
				Program: B + 8,
				Memory: map[uint64]uint32{
					B + 8: guest.EncodeB(0b101, 5, 6, -8),
				},
			},
			Output: testMachineState{Program: B},
		},
	})
}

func TestJump(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name: "JAL",
			Input: testMachineState{
				Memory: map[uint64]uint32{B: guest.JAL(machine.REG_RA, 16)},
			},
			Output: testMachineState{
				Program:   B + 16,
				Registers: map[uint8]uint64{machine.REG_RA: B + 4},
			},
		},
		{
			Name: "JALR Clears Low Bit",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: B + 0x101},
				Memory: map[uint64]uint32{
					B: guest.EncodeI(machine.OP_JALR, 0, machine.REG_RA, 5, -1),
				},
			},
			Output: testMachineState{
				Program:   B + 0x100,
				Registers: map[uint8]uint64{machine.REG_RA: B + 4},
			},
		},
		{
			Name: "JALR Same Register",
			Input: testMachineState{
				Registers: map[uint8]uint64{machine.REG_RA: B + 0x20},
				Memory: map[uint64]uint32{
					B: guest.EncodeI(
						machine.OP_JALR, 0, machine.REG_RA, machine.REG_RA, 0,
					),
				},
			},
			Output: testMachineState{
				Program:   B + 0x20,
				Registers: map[uint8]uint64{machine.REG_RA: B + 4},
			},
		},
	})
}

func TestLoadStore(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:  "SD LD",
			Steps: 2,
			Input: testMachineState{
				Registers: map[uint8]uint64{
					5: B + 0x100,
					6: 0x0123456789ABCDEF,
				},
				Memory: map[uint64]uint32{
					B:     guest.EncodeS(machine.OP_STORE, 0b011, 5, 6, 8),
					B + 4: guest.EncodeI(machine.OP_LOAD, 0b011, 7, 5, 8),
				},
			},
			Output: testMachineState{
				Program:   B + 8,
				Registers: map[uint8]uint64{7: 0x0123456789ABCDEF},
				Memory: map[uint64]uint32{
					B + 0x108: 0x89ABCDEF,
					B + 0x10C: 0x01234567,
				},
			},
		},
		{
			Name: "LB Sign Extend",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: B + 0x100},
				Memory: map[uint64]uint32{
					B:         guest.EncodeI(machine.OP_LOAD, 0b000, 7, 5, 0),
					B + 0x100: 0x000000F0,
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFFFFFFFFF0},
			},
		},
		{
			Name: "LBU",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: B + 0x100},
				Memory: map[uint64]uint32{
					B:         guest.EncodeI(machine.OP_LOAD, 0b100, 7, 5, 0),
					B + 0x100: 0x000000F0,
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xF0},
			},
		},
		{
			Name: "LW Negative Offset",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: B + 0x104},
				Memory: map[uint64]uint32{
					B:         guest.EncodeI(machine.OP_LOAD, 0b010, 7, 5, -4),
					B + 0x100: 0x80000000,
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0xFFFFFFFF80000000},
			},
		},
		{
			Name: "LWU",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: B + 0x100},
				Memory: map[uint64]uint32{
					B:         guest.EncodeI(machine.OP_LOAD, 0b110, 7, 5, 0),
					B + 0x100: 0x80000000,
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0x80000000},
			},
		},
		{
			Name: "SB",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: B + 0x100, 6: 0x1FF},
				Memory: map[uint64]uint32{
					B: guest.EncodeS(machine.OP_STORE, 0b000, 5, 6, 1),
				},
			},
			Output: testMachineState{
				Program: B + 4,
				Memory:  map[uint64]uint32{B + 0x100: 0x0000FF00},
			},
		},
	})
}

func TestCSR(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:  "CSRRW CSRRS mscratch",
			Steps: 2,
			Input: testMachineState{
				Registers: map[uint8]uint64{5: 42, 7: 0xCAFE},
				Memory: map[uint64]uint32{
					B: guest.EncodeI(
						machine.OP_SYSTEM, 0b001, 7, 5, int64(machine.CSR_MSCRATCH),
					),
					B + 4: guest.EncodeI(
						machine.OP_SYSTEM, 0b010, 8, 0, int64(machine.CSR_MSCRATCH),
					),
				},
			},
			Output: testMachineState{
				Program:   B + 8,
				Registers: map[uint8]uint64{7: 0, 8: 42},
			},
		},
		{
			Name: "CSRRS misa",
			Input: testMachineState{
				Memory: map[uint64]uint32{
					B: guest.EncodeI(
						machine.OP_SYSTEM, 0b010, 7, 0, int64(machine.CSR_MISA),
					),
				},
			},
			Output: testMachineState{
				Program:   B + 4,
				Registers: map[uint8]uint64{7: 0x8000000000001100},
			},
		},
	})
}

func TestUART(t *testing.T) {
	uart := machine.MEMSPACE_UART

	testSuccess(t, []testCase{
		{
			Name:    "Transmit",
			Display: "B",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: uart, 6: 'B'},
				Memory: map[uint64]uint32{
					B: guest.EncodeS(machine.OP_STORE, 0b000, 5, 6, 0),
				},
			},
			Output: testMachineState{Program: B + 4},
		},
		{
			Name:     "Receive",
			Steps:    2,
			Keyboard: "z",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: uart},
				Memory: map[uint64]uint32{
					B: guest.EncodeI(
						machine.OP_LOAD, 0b100, 7, 5, int64(machine.UART_LSR),
					),
					B + 4: guest.EncodeI(
						machine.OP_LOAD, 0b100, 8, 5, int64(machine.UART_RHR),
					),
				},
			},
			Output: testMachineState{
				Program: B + 8,
				Registers: map[uint8]uint64{
					7: uint64(machine.UART_LSR_RX_READY | machine.UART_LSR_TX_IDLE),
					8: 'z',
				},
			},
		},
		{
			Name: "Receive Empty",
			Input: testMachineState{
				Registers: map[uint8]uint64{5: uart, 7: 0xCAFE},
				Memory: map[uint64]uint32{
					B: guest.EncodeI(
						machine.OP_LOAD, 0b100, 7, 5, int64(machine.UART_LSR),
					),
				},
			},
			Output: testMachineState{
				Program: B + 4,
				Registers: map[uint8]uint64{
					7: uint64(machine.UART_LSR_TX_IDLE),
				},
			},
		},
	})
}

func TestEBREAK(t *testing.T) {
	testSuccess(t, []testCase{
		{
			Name:    "PutChar",
			Display: "A",
			Input: testMachineState{
				Registers: map[uint8]uint64{
					machine.REG_A0: machine.SEMIHOST_PUTCHAR,
					machine.REG_A1: 'A',
				},
				Memory: map[uint64]uint32{B: machine.INST_EBREAK},
			},
			Output: testMachineState{Program: B + 4},
		},
		{
			Name:    "PutChar Low Byte",
			Display: "A",
			Input: testMachineState{
				Registers: map[uint8]uint64{
					machine.REG_A0: machine.SEMIHOST_PUTCHAR,
					machine.REG_A1: 0x141,
				},
				Memory: map[uint64]uint32{B: machine.INST_EBREAK},
			},
			Output: testMachineState{Program: B + 4},
		},
		{
			Name: "Halt Keeps Program Counter",
			Input: testMachineState{
				Registers: map[uint8]uint64{
					machine.REG_A0: machine.SEMIHOST_HALT,
					machine.REG_A1: 0,
				},
				Memory: map[uint64]uint32{B: machine.INST_EBREAK},
			},
			Output: testMachineState{Program: B},
		},
		{
			Name: "WFI",
			Input: testMachineState{
				Memory: map[uint64]uint32{B: machine.INST_WFI},
			},
			Output: testMachineState{Program: B + 4},
		},
	})
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		Bits uint32
		Want string
	}{
		{0x00000513, "addi a0, zero, 0"},
		{0x04100593, "addi a1, zero, 65"},
		{machine.INST_EBREAK, "ebreak"},
		{machine.INST_IDLE, "jal zero, 0"},
		{0x0020B423, "sd sp, 8(ra)"},
		{0x402081B3, "sub gp, ra, sp"},
		{0xFFFFFFFF, ".word 0xffffffff"},
	}

	for _, test := range tests {
		if have := machine.Disassemble(test.Bits); have != test.Want {
			t.Errorf(
				"Disassembly mismatch (%#08x)\nwant:%s\nhave:%s",
				test.Bits,
				test.Want,
				have,
			)
		}
	}
}
