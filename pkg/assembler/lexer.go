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
	"strings"
	"unicode"
)

// tokenizeLine splits one source line into tokens. cursor must hold the
// line number and the byte offset of the start of the line.
//
// Operands are separated by whitespace, commas and parentheses, so
// `8(sp)` yields the literal followed by the register. A trailing colon
// turns an identifier into a label. Comments start with ';'.
func tokenizeLine(line string, cursor Cursor) (tokens []Token, errs []error) {
	var builder strings.Builder
	var tokenStart int
	var tokenType = TOKEN_NONE

	var quote rune
	var escaped bool
	var comma *Cursor

	cursor.Size = int64(len(line))

	flush := func() {
		if builder.Len() > 0 {
			tokens = append(tokens, Token{
				Type: tokenType,
				Position: Cursor{
					Line:     cursor.Line,
					Column:   tokenStart,
					Byte:     cursor.Byte + int64(tokenStart-1),
					Size:     int64(builder.Len()),
					LineByte: cursor.Byte,
				},
				Value: builder.String(),
			})

			builder.Reset()
			comma = nil
		}

		tokenType = TOKEN_NONE
	}

scan:
	for column, char := range line {
		cursor.Column = column + 1

		if tokenType == TOKEN_NONE {
			tokenStart = cursor.Column
		}

		// String and character literals take everything up to the closing
		// quote, honoring backslash escapes
		if quote != 0 {
			if char > unicode.MaxASCII {
				errs = append(errs, &OversizedCharacterError{cursor})
			}

			builder.WriteRune(char)

			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == quote:
				quote = 0
				flush()
			}

			continue
		}

		switch {
		// Whitespace
		case unicode.IsSpace(char):
			flush()

		// Comments
		case char == ';':
			flush()
			break scan

		// Operand Separators
		case char == ',':
			if tokenType == TOKEN_NONE && (len(tokens) == 0 || comma != nil) {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
			}

			flush()

			position := cursor
			comma = &position

		case char == '(' || char == ')':
			flush()

		// Labels
		case char == ':':
			if tokenType != TOKEN_IDENT {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				break
			}

			tokenType = TOKEN_LABEL
			flush()

		// String and Character Literals
		case char == '"' || char == '\'':
			if tokenType != TOKEN_NONE {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				break
			}

			if char == '"' {
				tokenType = TOKEN_STRING
			} else {
				tokenType = TOKEN_CHAR
			}

			quote = char
			builder.WriteRune(char)

		// Assembler Directives
		case char == '.':
			if tokenType != TOKEN_NONE {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				break
			}

			tokenType = TOKEN_DIRECTIVE
			builder.WriteRune(char)

		// Base 10 Literal (i.e. #42) and Numeric Sign
		case char == '#' || char == '-':
			if tokenType == TOKEN_NONE {
				tokenType = TOKEN_LITERAL
			} else if tokenType != TOKEN_LITERAL {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
				break
			}

			builder.WriteRune(char)

		// Numeric Literal
		case unicode.IsDigit(char):
			if tokenType == TOKEN_NONE {
				tokenType = TOKEN_LITERAL
			}

			builder.WriteRune(char)

		// Identifier, or the hex digits of a literal
		case char == '_' || unicode.IsLetter(char):
			if char > unicode.MaxASCII {
				errs = append(errs, &OversizedCharacterError{cursor})
				break
			}

			if tokenType == TOKEN_NONE {
				tokenType = TOKEN_IDENT
			}

			builder.WriteRune(char)

		default:
			if char > unicode.MaxASCII {
				errs = append(errs, &OversizedCharacterError{cursor})
			} else {
				errs = append(errs, &UnexpectedCharacterError{cursor, char})
			}
		}
	}

	if quote != 0 {
		cursor.Column = tokenStart
		errs = append(errs, &InvalidStringError{cursor})
	}

	flush()

	if comma != nil {
		errs = append(errs, &UnexpectedCharacterError{*comma, ','})
	}

	return
}
