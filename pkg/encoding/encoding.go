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

package encoding

import (
	"errors"
	"strconv"
	"strings"
)

// Decodes a hexidecimal string in the formats: 0x80000000, x80000000, 0xFF, xFF
func DecodeHex(s string) (uint64, error) {
	if i := strings.IndexAny(s, "xX"); i == 0 {
		s = "0" + s
	} else if i == -1 || i != 1 || s[0] != '0' {
		return 0, errors.New("Invalid hex string")
	}

	result, err := strconv.ParseUint(s, 0, 64)

	if err != nil {
		return 0, err
	}

	return result, nil
}

// Decodes a base-10 string in the formats: #123, 123, -123
func DecodeInt(s string) (int64, error) {
	if i := strings.Index(s, "#"); i == 0 {
		s = s[1:]
	}

	result, err := strconv.ParseInt(s, 10, 64)

	if err != nil {
		return 0, err
	}

	return result, nil
}

// Decodes either a hex or a base-10 string
func DecodeNumber(s string) (int64, error) {
	if strings.ContainsAny(s, "xX") {
		value, err := DecodeHex(s)
		return int64(value), err
	}

	return DecodeInt(s)
}

func SignExtend(value uint64, bitcount uint) uint64 {
	shift := 64 - bitcount
	return uint64(int64(value<<shift) >> shift)
}

func ZeroExtend(value uint64, bitcount uint) uint64 {
	if bitcount >= 64 {
		return value
	}

	return value & ((1 << bitcount) - 1)
}

// Reports whether value is representable as a two's complement integer of
// the given width
func FitsSigned(value int64, bitcount uint) bool {
	limit := int64(1) << (bitcount - 1)
	return value >= -limit && value < limit
}

// Extracts bits [lo, hi] of value, inclusive
func Bits(value uint32, hi, lo uint) uint32 {
	return (value >> lo) & ((1 << (hi - lo + 1)) - 1)
}
