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

package guest_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/lassandro/rvtrap/pkg/guest"
	"github.com/lassandro/rvtrap/pkg/machine"
)

type testCase struct {
	Name   string
	Build  func(p *guest.Program) error
	Output []uint32
}

func testProgram(t *testing.T, tests []testCase) {
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			var p guest.Program

			if err := test.Build(&p); err != nil {
				t.Fatalf("Unexpected error\nwant:nil\nhave:%v", err)
			}

			have := p.Words()

			if len(have) != len(test.Output) {
				t.Fatalf(
					"Length mismatch\nwant:%d (test.Output)\nhave:%d",
					len(test.Output),
					len(have),
				)
			}

			for i, want := range test.Output {
				if have[i] != want {
					t.Errorf(
						"Instruction mismatch"+
							"\nwant:%#08x (test.Output[%d])\nhave:%#08x",
						want,
						i,
						have[i],
					)
				}
			}
		})
	}
}

func TestTrap(t *testing.T) {
	testProgram(t, []testCase{
		{
			Name:  "PutChar",
			Build: func(p *guest.Program) error { return p.PutChar('A') },
			Output: []uint32{
				0x00000513, // addi a0, x0, 0
				0x04100593, // addi a1, x0, 65
				0x00100073, // ebreak
			},
		},
		{
			Name:  "Halt",
			Build: func(p *guest.Program) error { return p.Halt(0) },
			Output: []uint32{
				0x00100513, // addi a0, x0, 1
				0x00000593, // addi a1, x0, 0
				0x00100073, // ebreak
				0x0000006F, // jal x0, 0
			},
		},
		{
			Name:  "Minimum Operand",
			Build: func(p *guest.Program) error { return p.Trap(0, -2048) },
			Output: []uint32{
				0x00000513, // addi a0, x0, 0
				0x80000593, // addi a1, x0, -2048
				0x00100073, // ebreak
			},
		},
		{
			Name:  "Maximum Operand",
			Build: func(p *guest.Program) error { return p.Trap(0, 2047) },
			Output: []uint32{
				0x00000513, // addi a0, x0, 0
				0x7FF00593, // addi a1, x0, 2047
				0x00100073, // ebreak
			},
		},
		{
			Name:  "Negative Status",
			Build: func(p *guest.Program) error { return p.Halt(-1) },
			Output: []uint32{
				0x00100513, // addi a0, x0, 1
				0xFFF00593, // addi a1, x0, -1
				0x00100073, // ebreak
				0x0000006F, // jal x0, 0
			},
		},
		{
			Name:  "PutString",
			Build: func(p *guest.Program) error { return p.PutString("hi") },
			Output: []uint32{
				0x00000513, 0x06800593, 0x00100073,
				0x00000513, 0x06900593, 0x00100073,
			},
		},
	})
}

func TestOversizedImmediate(t *testing.T) {
	tests := []struct {
		Name  string
		Op    int64
		Arg   int64
		Field string
	}{
		{"Operand Above Range", 0, 2048, "arg"},
		{"Operand Below Range", 0, -2049, "arg"},
		{"Operation Above Range", 4096, 0, "op"},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			var p guest.Program

			err := p.Trap(test.Op, test.Arg)

			var immErr *guest.OversizedImmediateError

			if !errors.As(err, &immErr) {
				t.Fatalf(
					"Error mismatch\nwant:*OversizedImmediateError\nhave:%v",
					err,
				)
			}

			if immErr.Field != test.Field {
				t.Errorf(
					"Field mismatch\nwant:%s\nhave:%s",
					test.Field,
					immErr.Field,
				)
			}

			if p.Len() != 0 {
				t.Errorf("Partial trap emitted\nwant:0\nhave:%d", p.Len())
			}
		})
	}
}

func TestEmitAfterHalt(t *testing.T) {
	var p guest.Program

	if err := p.Halt(3); err != nil {
		t.Fatal(err)
	}

	if !p.Halted() {
		t.Fatal("Program not marked halted")
	}

	length := p.Len()

	if err := p.PutChar('B'); !errors.Is(err, guest.ErrHalted) {
		t.Errorf("Error mismatch\nwant:%v\nhave:%v", guest.ErrHalted, err)
	}

	if err := p.Halt(0); !errors.Is(err, guest.ErrHalted) {
		t.Errorf("Error mismatch\nwant:%v\nhave:%v", guest.ErrHalted, err)
	}

	if err := p.Emit(machine.INST_IDLE); !errors.Is(err, guest.ErrHalted) {
		t.Errorf("Error mismatch\nwant:%v\nhave:%v", guest.ErrHalted, err)
	}

	if p.Len() != length {
		t.Errorf("Program grew after halt\nwant:%d\nhave:%d", length, p.Len())
	}
}

func TestFixture(t *testing.T) {
	image := guest.Fixture().Bytes()

	want := []uint32{
		0x00000513,
		0x04100593,
		0x00100073,
		0x00100513,
		0x00000593,
		0x00100073,
		0x0000006F,
	}

	if len(image) != 4*len(want) {
		t.Fatalf("Image size mismatch\nwant:%d\nhave:%d", 4*len(want), len(image))
	}

	for i, word := range want {
		if have := binary.LittleEndian.Uint32(image[4*i:]); have != word {
			t.Errorf(
				"Image word mismatch\nwant:%#08x ([%d])\nhave:%#08x",
				word,
				i,
				have,
			)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		Name string
		Have uint32
		Want uint32
	}{
		// add x3, x1, x2
		{"R", guest.EncodeR(machine.OP_OP, 0, 0, 3, 1, 2), 0x002081B3},
		// sub x3, x1, x2
		{"R Alt", guest.EncodeR(machine.OP_OP, 0, 0b0100000, 3, 1, 2), 0x402081B3},
		// sd x2, 8(x1)
		{"S", guest.EncodeS(machine.OP_STORE, 0b011, 1, 2, 8), 0x0020B423},
		// sw x2, -4(x1)
		{"S Negative", guest.EncodeS(machine.OP_STORE, 0b010, 1, 2, -4), 0xFE20AE23},
		// beq x1, x2, 8
		{"B", guest.EncodeB(0b000, 1, 2, 8), 0x00208463},
		// bne x1, x2, -8
		{"B Negative", guest.EncodeB(0b001, 1, 2, -8), 0xFE209CE3},
		// lui x5, 0x10000
		{"U", guest.EncodeU(machine.OP_LUI, 5, 0x10000), 0x100002B7},
		// jal ra, 16
		{"J", guest.EncodeJ(1, 16), 0x010000EF},
		// jal x0, -4
		{"J Negative", guest.JAL(0, -4), 0xFFDFF06F},
		// jal x0, 0
		{"Idle", guest.JAL(0, 0), machine.INST_IDLE},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			if test.Have != test.Want {
				t.Errorf(
					"Encoding mismatch\nwant:%#08x\nhave:%#08x",
					test.Want,
					test.Have,
				)
			}
		})
	}
}
