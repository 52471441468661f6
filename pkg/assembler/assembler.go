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

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lassandro/rvtrap/pkg/encoding"
	"github.com/lassandro/rvtrap/pkg/guest"
	"github.com/lassandro/rvtrap/pkg/machine"
)

type refKind uint

const (
	refBranch refKind = iota
	refJump
	refWord
	refDword
)

type labelRef struct {
	Label    string
	Offset   uint64
	Kind     refKind
	Position Cursor
}

type assembly struct {
	base     uint64
	result   []byte
	labels   map[string]uint64
	refs     []labelRef
	errs     []error
	symtable *SymTable
	line     int64
}

var registers = make(map[string]uint8)

func init() {
	for i, name := range machine.AbiNames {
		registers[name] = uint8(i)
		registers[fmt.Sprintf("x%d", i)] = uint8(i)
	}

	registers["fp"] = 8
}

func parseRegister(token *Token) (uint8, bool) {
	if token.Type != TOKEN_IDENT {
		return 0, false
	}

	reg, ok := registers[strings.ToLower(token.Value)]

	return reg, ok
}

// parseLiteral decodes a numeric or character literal that must fit a
// two's complement field of the given width. Hex literals give the raw
// field bits, so 0xFFF in a 12-bit field is -1.
func parseLiteral(token *Token, bits uint) (int64, error) {
	var value int64

	switch token.Type {
	case TOKEN_CHAR:
		s, err := strconv.Unquote(token.Value)

		if err != nil || len(s) != 1 {
			return 0, &InvalidLiteralError{token.Position}
		}

		value = int64(s[0])

	case TOKEN_LITERAL:
		if strings.ContainsAny(token.Value, "xX") {
			raw, err := encoding.DecodeHex(token.Value)

			if err != nil {
				return 0, &InvalidLiteralError{token.Position}
			}

			if bits >= 64 {
				return int64(raw), nil
			}

			if raw >= 1<<bits {
				return 0, &OversizedLiteralError{token.Position, bits, int64(raw)}
			}

			return int64(encoding.SignExtend(raw, bits)), nil
		}

		result, err := encoding.DecodeInt(token.Value)

		if err != nil {
			return 0, &InvalidLiteralError{token.Position}
		}

		value = result

	default:
		return 0, &InvalidOperandError{
			token.Position,
			[]TokenType{TOKEN_LITERAL, TOKEN_CHAR},
			token.Type,
		}
	}

	if bits < 64 && !encoding.FitsSigned(value, bits) {
		return 0, &OversizedLiteralError{token.Position, bits, value}
	}

	return value, nil
}

// Data directives accept both signed and unsigned values of their width.
func parseData(token *Token, bits uint) (uint64, error) {
	value, err := parseLiteral(token, 64)

	if err != nil {
		return 0, err
	}

	if bits < 64 && (value < -(1<<(bits-1)) || value >= 1<<bits) {
		return 0, &OversizedLiteralError{token.Position, bits, value}
	}

	return uint64(value), nil
}

func (asm *assembly) fail(err error) {
	asm.errs = append(asm.errs, err)
}

func (asm *assembly) addr() uint64 {
	return asm.base + uint64(len(asm.result))
}

func (asm *assembly) mark() {
	if asm.symtable != nil {
		asm.symtable.Symbols[asm.addr()] = asm.line
	}
}

func (asm *assembly) emit(keyword *Token, words ...uint32) {
	if len(asm.result)%4 != 0 {
		asm.fail(&MisalignedError{keyword.Position, 4, asm.addr()})
		return
	}

	asm.mark()

	for _, word := range words {
		asm.result = binary.LittleEndian.AppendUint32(asm.result, word)
	}
}

func (asm *assembly) count(keyword *Token, operands []Token, counts ...int) bool {
	for _, count := range counts {
		if len(operands) == count {
			return true
		}
	}

	required := make([]string, len(counts))

	for i, count := range counts {
		required[i] = strconv.Itoa(count)
	}

	asm.fail(&InvalidNumArgumentsError{
		keyword.Position,
		strings.Join(required, " or "),
		len(operands),
	})

	return false
}

func (asm *assembly) register(token *Token) uint8 {
	if token.Type != TOKEN_IDENT {
		asm.fail(&InvalidOperandError{
			token.Position,
			[]TokenType{TOKEN_IDENT},
			token.Type,
		})

		return 0
	}

	reg, ok := parseRegister(token)

	if !ok {
		asm.fail(&InvalidRegisterError{token.Position, token.Value})
	}

	return reg
}

func (asm *assembly) literal(token *Token, bits uint) int64 {
	value, err := parseLiteral(token, bits)

	if err != nil {
		asm.fail(err)
	}

	return value
}

// target resolves a branch or jump operand: a label is patched after the
// last line, a literal is used as the offset directly.
func (asm *assembly) target(token *Token, kind refKind, bits uint) int64 {
	switch token.Type {
	case TOKEN_IDENT:
		asm.refs = append(
			asm.refs,
			labelRef{token.Value, uint64(len(asm.result)), kind, token.Position},
		)

		return 0

	case TOKEN_LITERAL:
		offset := asm.literal(token, bits)

		if offset%2 != 0 {
			asm.fail(&MisalignedError{token.Position, 2, uint64(offset)})
		}

		return offset
	}

	asm.fail(&InvalidOperandError{
		token.Position,
		[]TokenType{TOKEN_IDENT, TOKEN_LITERAL},
		token.Type,
	})

	return 0
}

// statement assembles one tokenized line and reports whether it was .end
func (asm *assembly) statement(tokens []Token) bool {
	for len(tokens) > 0 && tokens[0].Type == TOKEN_LABEL {
		label := &tokens[0]

		if _, exists := asm.labels[label.Value]; exists {
			asm.fail(&RedeclaredLabelError{label.Position, label.Value})
		} else {
			asm.labels[label.Value] = asm.addr()
		}

		tokens = tokens[1:]
	}

	// No need to assemble label-only statements
	if len(tokens) == 0 {
		return false
	}

	keyword := &tokens[0]
	operands := tokens[1:]

	switch keyword.Type {
	case TOKEN_DIRECTIVE:
		return asm.directive(keyword, operands)
	case TOKEN_IDENT:
		asm.instruction(keyword, operands)
	default:
		asm.fail(&InvalidOperandError{
			keyword.Position,
			[]TokenType{TOKEN_IDENT, TOKEN_DIRECTIVE, TOKEN_LABEL},
			keyword.Type,
		})
	}

	return false
}

func (asm *assembly) directive(keyword *Token, operands []Token) bool {
	directive, ok := directives[strings.ToLower(keyword.Value)]

	if !ok {
		asm.fail(&UnknownIdentifierError{keyword.Position, keyword.Value})
		return false
	}

	switch directive {
	// .end
	case DIRECTIVE_END:
		asm.count(keyword, operands, 0)
		return true

	// .byte 1, 'a', 0xFF
	case DIRECTIVE_BYTE, DIRECTIVE_HALF, DIRECTIVE_WORD, DIRECTIVE_DWORD:
		if len(operands) == 0 {
			asm.count(keyword, operands, 1)
			break
		}

		size := map[DirectiveType]uint{
			DIRECTIVE_BYTE:  1,
			DIRECTIVE_HALF:  2,
			DIRECTIVE_WORD:  4,
			DIRECTIVE_DWORD: 8,
		}[directive]

		asm.mark()

		for i := range operands {
			operand := &operands[i]

			var value uint64

			if operand.Type == TOKEN_IDENT && size >= 4 {
				kind := refWord
				if size == 8 {
					kind = refDword
				}

				asm.refs = append(
					asm.refs,
					labelRef{
						operand.Value,
						uint64(len(asm.result)),
						kind,
						operand.Position,
					},
				)
			} else if v, err := parseData(operand, size*8); err != nil {
				asm.fail(err)
			} else {
				value = v
			}

			switch size {
			case 1:
				asm.result = append(asm.result, byte(value))
			case 2:
				asm.result = binary.LittleEndian.AppendUint16(asm.result, uint16(value))
			case 4:
				asm.result = binary.LittleEndian.AppendUint32(asm.result, uint32(value))
			case 8:
				asm.result = binary.LittleEndian.AppendUint64(asm.result, value)
			}
		}

	// .asciz "..."
	case DIRECTIVE_ASCIZ:
		if !asm.count(keyword, operands, 1) {
			break
		}

		if operands[0].Type != TOKEN_STRING {
			asm.fail(&InvalidOperandError{
				operands[0].Position,
				[]TokenType{TOKEN_STRING},
				operands[0].Type,
			})

			break
		}

		s, err := strconv.Unquote(operands[0].Value)

		if err != nil {
			asm.fail(&InvalidStringError{operands[0].Position})
			break
		}

		asm.mark()
		asm.result = append(asm.result, s...)
		asm.result = append(asm.result, 0)

	// .align n, pads with zeros to a 2^n byte boundary
	case DIRECTIVE_ALIGN:
		if !asm.count(keyword, operands, 1) {
			break
		}

		shift, err := parseLiteral(&operands[0], 64)

		if err != nil {
			asm.fail(err)
			break
		}

		if shift < 0 || shift > ALIGN_MAX {
			asm.fail(&OversizedLiteralError{operands[0].Position, 4, shift})
			break
		}

		alignment := 1 << shift

		for len(asm.result)%alignment != 0 {
			asm.result = append(asm.result, 0)
		}
	}

	return false
}

func (asm *assembly) instruction(keyword *Token, operands []Token) {
	name := strings.ToLower(keyword.Value)

	if asm.pseudo(name, keyword, operands) {
		return
	}

	op, ok := instructions[name]

	if !ok {
		asm.fail(&UnknownIdentifierError{keyword.Position, keyword.Value})
		return
	}

	errCount := len(asm.errs)
	refCount := len(asm.refs)

	var word uint32

	switch op.Format {
	// add rd, rs1, rs2
	case FORMAT_R:
		if !asm.count(keyword, operands, 3) {
			return
		}

		rd := asm.register(&operands[0])
		rs1 := asm.register(&operands[1])
		rs2 := asm.register(&operands[2])

		word = guest.EncodeR(op.Opcode, op.Funct3, op.Funct7, rd, rs1, rs2)

	// addi rd, rs1, imm
	case FORMAT_I:
		if !asm.count(keyword, operands, 3) {
			return
		}

		rd := asm.register(&operands[0])
		rs1 := asm.register(&operands[1])
		imm := asm.literal(&operands[2], IMM_I)

		word = guest.EncodeI(op.Opcode, op.Funct3, rd, rs1, imm)

	// slli rd, rs1, shamt
	case FORMAT_SHIFT:
		if !asm.count(keyword, operands, 3) {
			return
		}

		rd := asm.register(&operands[0])
		rs1 := asm.register(&operands[1])
		shamt := asm.literal(&operands[2], 64)

		if shamt < 0 || shamt >= 1<<IMM_SHIFT {
			asm.fail(&OversizedLiteralError{operands[2].Position, IMM_SHIFT, shamt})
		}

		imm := int64(op.Funct7)<<5 | shamt&0x3F
		word = guest.EncodeI(op.Opcode, op.Funct3, rd, rs1, imm)

	// ld rd, offset(rs1)
	// ld rd, (rs1)
	case FORMAT_LOAD:
		if !asm.count(keyword, operands, 2, 3) {
			return
		}

		rd := asm.register(&operands[0])
		offset, rs1 := asm.memory(operands[1:])

		word = guest.EncodeI(op.Opcode, op.Funct3, rd, rs1, offset)

	// sd rs2, offset(rs1)
	// sd rs2, (rs1)
	case FORMAT_STORE:
		if !asm.count(keyword, operands, 2, 3) {
			return
		}

		rs2 := asm.register(&operands[0])
		offset, rs1 := asm.memory(operands[1:])

		word = guest.EncodeS(op.Opcode, op.Funct3, rs1, rs2, offset)

	// beq rs1, rs2, label
	case FORMAT_BRANCH:
		if !asm.count(keyword, operands, 3) {
			return
		}

		rs1 := asm.register(&operands[0])
		rs2 := asm.register(&operands[1])
		offset := asm.target(&operands[2], refBranch, IMM_B)

		word = guest.EncodeB(op.Funct3, rs1, rs2, offset)

	// lui rd, imm20
	case FORMAT_U:
		if !asm.count(keyword, operands, 2) {
			return
		}

		rd := asm.register(&operands[0])
		imm := asm.literal(&operands[1], IMM_U)

		word = guest.EncodeU(op.Opcode, rd, imm)

	// jal label
	// jal rd, label
	case FORMAT_J:
		if !asm.count(keyword, operands, 1, 2) {
			return
		}

		rd := machine.REG_RA

		if len(operands) == 2 {
			rd = asm.register(&operands[0])
		}

		offset := asm.target(&operands[len(operands)-1], refJump, IMM_J)

		word = guest.EncodeJ(rd, offset)

	// jalr rs1
	// jalr rd, rs1, imm
	// jalr rd, imm(rs1)
	case FORMAT_JALR:
		if !asm.count(keyword, operands, 1, 3) {
			return
		}

		if len(operands) == 1 {
			rs1 := asm.register(&operands[0])
			word = guest.EncodeI(op.Opcode, op.Funct3, machine.REG_RA, rs1, 0)
			break
		}

		rd := asm.register(&operands[0])

		var rs1 uint8
		var imm int64

		if operands[1].Type == TOKEN_IDENT {
			rs1 = asm.register(&operands[1])
			imm = asm.literal(&operands[2], IMM_I)
		} else {
			imm, rs1 = asm.memory(operands[1:])
		}

		word = guest.EncodeI(op.Opcode, op.Funct3, rd, rs1, imm)

	// ebreak
	case FORMAT_FIXED:
		if !asm.count(keyword, operands, 0) {
			return
		}

		word = op.Opcode
	}

	// Nothing is emitted for a failed line, so its label references go too
	if len(asm.errs) > errCount {
		asm.refs = asm.refs[:refCount]
		return
	}

	asm.emit(keyword, word)
}

// memory parses the `offset(base)` and `(base)` operand forms, which the
// lexer splits into [offset base] and [base].
func (asm *assembly) memory(operands []Token) (int64, uint8) {
	if len(operands) == 1 {
		return 0, asm.register(&operands[0])
	}

	offset := asm.literal(&operands[0], IMM_I)
	base := asm.register(&operands[1])

	return offset, base
}

// pseudo expands pseudo-instructions and the semihosting macros. It reports
// false when name is not one of them.
func (asm *assembly) pseudo(name string, keyword *Token, operands []Token) bool {
	errCount := len(asm.errs)
	refCount := len(asm.refs)

	var words []uint32

	switch name {
	// nop => addi x0, x0, 0
	case "nop":
		if asm.count(keyword, operands, 0) {
			words = append(words, guest.ADDI(machine.REG_ZERO, machine.REG_ZERO, 0))
		}

	// mv rd, rs => addi rd, rs, 0
	case "mv":
		if asm.count(keyword, operands, 2) {
			rd := asm.register(&operands[0])
			rs := asm.register(&operands[1])
			words = append(words, guest.ADDI(rd, rs, 0))
		}

	// j label => jal x0, label
	case "j":
		if asm.count(keyword, operands, 1) {
			offset := asm.target(&operands[0], refJump, IMM_J)
			words = append(words, guest.JAL(machine.REG_ZERO, offset))
		}

	// ret => jalr x0, 0(ra)
	case "ret":
		if asm.count(keyword, operands, 0) {
			words = append(
				words,
				guest.EncodeI(
					machine.OP_JALR, 0, machine.REG_ZERO, machine.REG_RA, 0,
				),
			)
		}

	// li rd, imm => addi rd, x0, imm
	// li rd, imm => lui rd, hi; addiw rd, rd, lo
	case "li":
		if !asm.count(keyword, operands, 2) {
			break
		}

		rd := asm.register(&operands[0])
		imm := asm.literal(&operands[1], IMM_LI)

		if encoding.FitsSigned(imm, IMM_I) {
			words = append(words, guest.ADDI(rd, machine.REG_ZERO, imm))
			break
		}

		hi := (imm + 0x800) >> 12
		lo := imm - hi<<12

		words = append(
			words,
			guest.EncodeU(machine.OP_LUI, rd, hi),
			guest.EncodeI(machine.OP_IMM_32, 0b000, rd, rd, lo),
		)

	// trap op, arg
	// putc c
	// halt status
	case "trap", "putc", "halt":
		var p guest.Program
		var err error

		switch {
		case name == "trap" && asm.count(keyword, operands, 2):
			op := asm.literal(&operands[0], 64)
			arg := asm.literal(&operands[1], 64)

			if len(asm.errs) == errCount {
				err = asm.request(&operands[0], &operands[1], p.Trap(op, arg))
			}

		case name == "putc" && asm.count(keyword, operands, 1):
			c := asm.literal(&operands[0], 64)

			if len(asm.errs) == errCount {
				err = asm.request(nil, &operands[0], p.Trap(int64(machine.SEMIHOST_PUTCHAR), c))
			}

		case name == "halt" && asm.count(keyword, operands, 1):
			status := asm.literal(&operands[0], 64)

			if len(asm.errs) == errCount {
				err = asm.request(nil, &operands[0], p.Halt(status))
			}
		}

		if err != nil {
			asm.fail(err)
		}

		words = p.Words()

	default:
		return false
	}

	if len(asm.errs) == errCount && len(words) > 0 {
		asm.emit(keyword, words...)
	} else {
		asm.refs = asm.refs[:refCount]
	}

	return true
}

// request converts a trap emission failure into a positioned error
func (asm *assembly) request(op, arg *Token, err error) error {
	var immErr *guest.OversizedImmediateError

	if !errors.As(err, &immErr) {
		return err
	}

	token := arg

	if immErr.Field == "op" && op != nil {
		token = op
	}

	return &OversizedLiteralError{token.Position, guest.IMM_BITS, immErr.Received}
}

func (asm *assembly) resolve() {
	for _, ref := range asm.refs {
		target, exists := asm.labels[ref.Label]

		if !exists {
			asm.fail(&UnknownLabelError{ref.Position, ref.Label})
			continue
		}

		width := uint64(4)
		if ref.Kind == refDword {
			width = 8
		}

		// The referencing line already failed and emitted nothing
		if ref.Offset+width > uint64(len(asm.result)) {
			continue
		}

		data := asm.result[ref.Offset:]
		offset := int64(target - (asm.base + ref.Offset))

		switch ref.Kind {
		case refBranch, refJump:
			bits := IMM_B
			if ref.Kind == refJump {
				bits = IMM_J
			}

			if !encoding.FitsSigned(offset, bits) {
				asm.fail(&OversizedLabelError{ref.Position, 1 << (bits - 1), offset})
				continue
			}

			if offset%2 != 0 {
				asm.fail(&MisalignedError{ref.Position, 2, target})
				continue
			}

			word := binary.LittleEndian.Uint32(data)

			if ref.Kind == refBranch {
				word |= guest.EncodeB(0, 0, 0, offset) &^ machine.OP_BRANCH
			} else {
				word |= guest.EncodeJ(0, offset) &^ machine.OP_JAL
			}

			binary.LittleEndian.PutUint32(data, word)

		case refWord:
			if target > math.MaxUint32 {
				asm.fail(&OversizedLiteralError{ref.Position, 32, int64(target)})
				continue
			}

			binary.LittleEndian.PutUint32(data, uint32(target))

		case refDword:
			binary.LittleEndian.PutUint64(data, target)
		}
	}

	if asm.symtable != nil {
		for label, addr := range asm.labels {
			asm.symtable.Labels[addr] = label
		}
	}
}

// AssembleSource assembles RV64 source into a flat little-endian image whose
// first byte is loaded at base. Errors are collected across the whole input;
// the image is only meaningful when none are returned. When symtable is not
// nil it receives the source offsets of every emitted item and the address
// of every label.
func AssembleSource(input io.Reader, base uint64, symtable *SymTable) ([]byte, []error) {
	asm := assembly{
		base:     base,
		labels:   make(map[string]uint64),
		symtable: symtable,
	}

	if symtable != nil {
		if symtable.Symbols == nil {
			symtable.Symbols = make(map[uint64]int64)
		}

		if symtable.Labels == nil {
			symtable.Labels = make(map[uint64]string)
		}
	}

	var scanner = bufio.NewScanner(input)
	var cursor = Cursor{Line: 1}

	for scanner.Scan() {
		line := scanner.Text()

		tokens, errs := tokenizeLine(line, cursor)

		asm.line = cursor.LineByte

		cursor.Line++
		cursor.Byte += int64(len(line) + 1)
		cursor.LineByte += int64(len(line) + 1)

		// Pass any potential assembler errors if we already had parser errors
		if len(errs) > 0 {
			asm.errs = append(asm.errs, errs...)
			continue
		}

		if len(tokens) == 0 {
			continue
		}

		if asm.statement(tokens) {
			break
		}

		if uint64(len(asm.result)) > BINARY_MAX {
			asm.fail(&OversizedBinaryError{})
			return asm.result, asm.errs
		}
	}

	if err := scanner.Err(); err != nil {
		asm.fail(err)
	}

	asm.resolve()

	return asm.result, asm.errs
}
