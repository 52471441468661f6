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

package main

import (
	"bufio"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/lassandro/rvtrap/pkg/assembler"
	"github.com/lassandro/rvtrap/pkg/encoding"
	"github.com/lassandro/rvtrap/pkg/guest"
	"github.com/lassandro/rvtrap/pkg/machine"
)

var helpvar bool
var debugvar bool
var fixturevar bool
var outvar string
var basevar string

const usage = "rvtrap-asm [-debug] [-base 0x####] [-out outfile] filename\n" +
	"rvtrap-asm -fixture [-out outfile]"

func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
}

func init() {
	flag.BoolVar(&helpvar, "help", false, "Displays command usage")
	flag.BoolVar(
		&debugvar, "debug", false,
		"Specifies whether to generate debugging information as a symbol "+
			"table. The table will use the output filename with extension "+
			"'.rvdb'",
	)
	flag.BoolVar(
		&fixturevar, "fixture", false,
		"Writes the reference image (putchar 'A', halt 0) instead of "+
			"assembling a file",
	)
	flag.StringVar(
		&outvar, "out", "",
		"Specifies a precise name for the output file, "+
			"overriding the default means of determining it",
	)
	flag.StringVar(
		&basevar, "base", fmt.Sprintf("%#x", machine.MEMSPACE_RAM),
		"Address the image is loaded at",
	)
	flag.Parse()
}

func writeImage(filename string, image []byte) bool {
	if err := os.WriteFile(filename, image, 0666); err != nil {
		log.Println("Error writing output file")
		log.Println(err)
		return false
	}

	return true
}

// Prints each error, underlining the offending token when the source can be
// re-read
func printErrors(errs []error, input io.ReadSeeker) {
	for _, err := range errs {
		tokenErr, ok := err.(assembler.TokenError)

		if !ok || input == os.Stdin {
			log.Println(err)
			continue
		}

		cursor := tokenErr.GetPosition()

		if _, err := input.Seek(cursor.LineByte, io.SeekStart); err != nil {
			log.Println(err)
			continue
		}

		line, _ := bufio.NewReader(input).ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		size := int(cursor.Size)
		if size < 1 {
			size = 1
		}

		underline := strings.Repeat(" ", int(cursor.Byte-cursor.LineByte)) +
			"^" + strings.Repeat("~", size-1)

		log.Printf("%s\n%s\n\033[31m%s\033[0m", err, line, underline)
	}
}

func rvtrap_asm() int {
	if helpvar {
		fmt.Println(usage)
		flag.PrintDefaults()
		return 0
	}

	if fixturevar {
		if outvar == "" {
			outvar = "fixture.bin"
		}

		if !writeImage(outvar, guest.Fixture().Bytes()) {
			return 1
		}

		return 0
	}

	base, err := encoding.DecodeHex(basevar)

	if err != nil {
		log.Printf("Invalid base address '%s'", basevar)
		return 1
	}

	args := flag.Args()

	var infile string
	var input io.ReadSeeker

	if stat, _ := os.Stdin.Stat(); len(args) == 0 &&
		stat.Mode()&os.ModeCharDevice == 0 {
		input = os.Stdin
		log.SetPrefix("\033[1m<stdin>:\033[0m")

		if outvar == "" {
			outvar = "out.bin"
		}
	} else {
		if len(args) != 1 {
			log.Println(usage)
			return 1
		}

		file, err := os.Open(args[0])

		if err != nil {
			log.Println(err)
			return 1
		}

		defer file.Close()

		filename := filepath.Base(file.Name())

		if stat, err := file.Stat(); err != nil {
			log.Println(err)
			return 1
		} else if stat.IsDir() {
			log.Printf("%s is not a valid RISC-V assembly file", filename)
			return 1
		}

		input = file
		infile = file.Name()
		log.SetPrefix(fmt.Sprintf("\033[1m%s:\033[0m", filename))

		if outvar == "" {
			outvar = strings.TrimSuffix(filename, filepath.Ext(filename)) +
				".bin"
		}
	}

	var symtable *assembler.SymTable

	if debugvar {
		source := ""

		if input != os.Stdin {
			if source, err = filepath.Abs(infile); err != nil {
				log.Println(err)
				source = ""
			}
		}

		symtable = assembler.NewSymTable(source)
	}

	result, errs := assembler.AssembleSource(input, base, symtable)

	if len(errs) > 0 {
		printErrors(errs, input)
		return 1
	}

	if !writeImage(outvar, result) {
		return 1
	}

	if debugvar {
		filename := strings.TrimSuffix(outvar, filepath.Ext(outvar)) + ".rvdb"

		file, err := os.Create(filename)

		if err != nil {
			log.Println("Error creating symbol table")
			log.Println(err)
			return 1
		}

		defer file.Close()

		if err := gob.NewEncoder(file).Encode(symtable); err != nil {
			log.Println("Error writing symbol table")
			log.Println(err)
			return 1
		}
	}

	return 0
}

func main() {
	os.Exit(rvtrap_asm())
}
