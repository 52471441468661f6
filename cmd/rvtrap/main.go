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
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/lassandro/rvtrap/pkg/assembler"
	"github.com/lassandro/rvtrap/pkg/config"
	"github.com/lassandro/rvtrap/pkg/debugger"
	"github.com/lassandro/rvtrap/pkg/machine"
)

var helpvar bool
var debugvar bool
var consolevar string
var shouldexit bool

var cfg config.Config
var cfgErr error

const usage = "rvtrap [-debug] [-console device] [options] filename"

var elfMagic = []byte("\x7fELF")

func init() {
	exe, _ := os.Executable()
	log.SetFlags(0)
	log.SetPrefix(fmt.Sprintf("%s: ", filepath.Base(exe)))
	log.SetOutput(os.Stderr)
}

func init() {
	cfg, cfgErr = config.FromEnv()

	flag.BoolVar(&helpvar, "help", false, "Displays command usage")
	flag.BoolVar(&debugvar, "debug", false, "Runs the machine in a debug CLI")
	flag.StringVar(
		&consolevar, "console", "",
		"Writes guest output to this terminal device instead of stdout",
	)
	cfg.Register(flag.CommandLine)
	flag.Parse()
}

// Loads an ELF executable or, failing the magic check, a flat image
func load(mc *machine.Machine, file *os.File) error {
	magic := make([]byte, len(elfMagic))

	if _, err := file.ReadAt(magic, 0); err == nil && bytes.Equal(magic, elfMagic) {
		return mc.LoadELF(file)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	return mc.LoadBin(file)
}

func loadSymbols(dbg *debugger.Debugger, image string) {
	filename := strings.TrimSuffix(image, filepath.Ext(image)) + ".rvdb"

	file, err := os.Open(filename)

	if err != nil {
		log.Println("Error loading symbol file")
		log.Println(err)
		return
	}

	defer file.Close()

	var symtable assembler.SymTable

	if err := gob.NewDecoder(file).Decode(&symtable); err != nil {
		log.Println("Error loading symbol file")
		log.Println(err)
		return
	}

	dbg.SymTable = &symtable

	if symtable.Source == "" {
		return
	}

	source, err := os.ReadFile(symtable.Source)

	if err != nil {
		log.Println("Error loading source file")
		log.Println(err)
		return
	}

	dbg.Source = bytes.NewReader(source)
}

func rvtrap() int {
	if helpvar {
		fmt.Println(usage)
		flag.PrintDefaults()
		return 0
	}

	if cfgErr != nil {
		log.Println(cfgErr)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		log.Println(err)
		return 1
	}

	args := flag.Args()

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

	var mc machine.Machine
	var dh machine.DeviceHandler
	dh.Keyboard = bufio.NewReader(os.Stdin)
	dh.Display = bufio.NewWriter(os.Stdout)
	mc.Devices = &dh

	if consolevar != "" {
		con, err := openConsole(consolevar)

		if err != nil {
			log.Println(err)
			return 1
		}

		defer con.Close()

		dh.Display = con.Display()
	}

	cfg.Apply(&mc)

	if cfg.Trace {
		mc.Trace = log.New(os.Stderr, "trace: ", 0)
	}

	reload = func(mc *machine.Machine) error {
		return load(mc, file)
	}

	if err := load(&mc, file); err != nil {
		log.Println(err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	enterRawTerm()
	defer exitRawTerm()

	if debugvar {
		var dbg debugger.Debugger
		dbg.HandleBreak = handleBreak
		dbg.HandleRead = handleRead
		dbg.HandleWrite = handleWrite
		dbg.HandleTrap = handleTrap
		mc.Debugger = &dbg

		loadSymbols(&dbg, args[0])

		// Interrupts stop the guest instead of the host
		stop()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		defer signal.Stop(c)

		go func() {
			for range c {
				fmt.Println()
				dbg.Break = true
			}
		}()

		err = debugRun(&dbg, &mc, cfg.Steps)
	} else {
		err = mc.Run(ctx, cfg.Steps)
	}

	switch {
	case err == nil:
		if !mc.Halted() {
			return 0
		}

		return int(mc.ExitStatus())

	case errors.Is(err, context.Canceled):
		exitRawTerm()
		log.Printf("Interrupted after %d steps", mc.Steps())
		return 130

	default:
		exitRawTerm()
		log.Printf("%s (pc %#08x, %d steps)", err, mc.State.Program, mc.Steps())
		return 1
	}
}

func main() {
	os.Exit(rvtrap())
}
