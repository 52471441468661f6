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
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/lassandro/rvtrap/pkg/debugger"
	"github.com/lassandro/rvtrap/pkg/encoding"
	"github.com/lassandro/rvtrap/pkg/machine"
)

var lastcmd []string

// Reloads the guest image for the "reset" command
var reload func(*machine.Machine) error

// Resolves a hex address or a label name
func debugAddr(dbg *debugger.Debugger, s string) (uint64, error) {
	if addr, ok := dbg.Label(s); ok {
		return addr, nil
	}

	return encoding.DecodeHex(s)
}

func debugBreak(dbg *debugger.Debugger, args []string) {
	const usage = "break [add|list|remove|clear]"

	if len(args) == 0 {
		args = append(args, "l")
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "a", "add":
		const usage = "break add [0x########|label]"

		if len(args) != 1 {
			log.Println(usage)
			return
		}

		addr, err := debugAddr(dbg, args[0])

		if err != nil {
			log.Println(err)
			return
		}

		for _, breakpoint := range dbg.Breakpoints {
			if breakpoint.Addr == addr {
				return
			}
		}

		dbg.Breakpoints = append(dbg.Breakpoints, debugger.Breakpoint{Addr: addr})
		fmt.Printf("Breakpoint added [%#08x]\n", addr)

	case "l", "ls", "list":
		const usage = "break list"

		if len(args) != 0 {
			log.Println(usage)
			return
		}

		var fmtstring string
		{
			digits := math.Floor(math.Log10(float64(len(dbg.Breakpoints) + 1)))
			fmtstring = fmt.Sprintf("#%%0%dd: %%#08x\n", int64(digits)+1)
		}

		for i, breakpoint := range dbg.Breakpoints {
			fmt.Printf(fmtstring, i, breakpoint.Addr)
		}

	case "r", "rm", "remove":
		const usage = "break remove [#]"

		if len(args) != 1 {
			log.Println(usage)
			return
		}

		i, err := strconv.ParseInt(args[0], 10, 64)

		if err != nil {
			log.Println(err)
			return
		}

		if i < 0 || i >= int64(len(dbg.Breakpoints)) {
			log.Println("Invalid breakpoint number")
			return
		}

		dbg.Breakpoints[i] = dbg.Breakpoints[len(dbg.Breakpoints)-1]
		dbg.Breakpoints = dbg.Breakpoints[:len(dbg.Breakpoints)-1]
		fmt.Printf("Breakpoint removed [%d]\n", i)

	case "clear":
		dbg.Breakpoints = nil
		fmt.Println("Breakpoints reset")

	default:
		log.Printf("break: '%s' is not a valid command\n", cmd)
		log.Println(usage)
	}
}

func debugWatch(dbg *debugger.Debugger, args []string) {
	const usage = "watch [add|list|remove|clear]"

	if len(args) == 0 {
		args = append(args, "l")
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "a", "add":
		const usage = "watch add [0x########|label] [read|write|readwrite]"

		if len(args) != 2 {
			log.Println(usage)
			return
		}

		addr, err := debugAddr(dbg, args[0])

		if err != nil {
			log.Println(err)
			return
		}

		var wtype debugger.WatchpointType

		switch args[1] {
		case "r", "read":
			wtype = debugger.ReadWatch
		case "w", "write":
			wtype = debugger.WriteWatch
		case "rw", "rwrite", "readwrite":
			wtype = debugger.ReadWriteWatch
		default:
			log.Println(usage)
			return
		}

		for _, watchpoint := range dbg.Watchpoints {
			if watchpoint.Addr == addr && watchpoint.Type == wtype {
				return
			}
		}

		dbg.Watchpoints = append(
			dbg.Watchpoints,
			debugger.Watchpoint{Addr: addr, Type: wtype},
		)

		fmt.Printf("Watchpoint added [%#08x] (%s)\n", addr, wtype)

	case "l", "ls", "list":
		const usage = "watch list"

		if len(args) != 0 {
			log.Println(usage)
			return
		}

		var fmtstring string
		{
			digits := math.Floor(math.Log10(float64(len(dbg.Watchpoints) + 1)))
			fmtstring = fmt.Sprintf("#%%0%dd: %%#08x %%s\n", int64(digits)+1)
		}

		for i, watchpoint := range dbg.Watchpoints {
			fmt.Printf(fmtstring, i, watchpoint.Addr, watchpoint.Type)
		}

	case "r", "rm", "remove":
		const usage = "watch remove [#]"

		if len(args) != 1 {
			log.Println(usage)
			return
		}

		i, err := strconv.ParseInt(args[0], 10, 64)

		if err != nil {
			log.Println(err)
			return
		}

		if i < 0 || i >= int64(len(dbg.Watchpoints)) {
			log.Println("Invalid watchpoint number")
			return
		}

		dbg.Watchpoints[i] = dbg.Watchpoints[len(dbg.Watchpoints)-1]
		dbg.Watchpoints = dbg.Watchpoints[:len(dbg.Watchpoints)-1]
		fmt.Printf("Watchpoint removed [%d]\n", i)

	case "clear":
		dbg.Watchpoints = nil
		fmt.Println("Watchpoints reset")

	default:
		log.Printf("watch: '%s' is not a valid command\n", cmd)
		log.Println(usage)
	}
}

func parseRegister(name string) (int, bool) {
	name = strings.ToLower(name)

	for i, abi := range machine.AbiNames {
		if name == abi || name == fmt.Sprintf("x%d", i) {
			return i, true
		}
	}

	if name == "fp" {
		return 8, true
	}

	return 0, false
}

func debugReg(mc *machine.MachineState, args []string) {
	const usage = "register [reg|pc] [0x####]"

	if len(args) > 0 {
		if len(args) != 2 {
			log.Println(usage)
			return
		}

		value, err := encoding.DecodeNumber(args[1])

		if err != nil {
			log.Println(err)
			return
		}

		name := strings.ToLower(args[0])

		if name == "pc" {
			mc.Program = uint64(value)
		} else if i, ok := parseRegister(name); ok && i != 0 {
			mc.Registers[i] = uint64(value)
		} else {
			log.Println("Invalid register")
			return
		}

		fmt.Printf("\033[1m%s:\033[0m %#016x\n", name, uint64(value))
		return
	}

	for i, register := range mc.Registers {
		fmt.Printf("\033[1m%4s:\033[0m %#016x", machine.AbiNames[i], register)

		if i%4 == 3 {
			fmt.Println()
		} else {
			fmt.Print("  ")
		}
	}

	fmt.Printf("\033[1m%4s:\033[0m %#016x\n", "pc", mc.Program)
}

func debugSource(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "source [0x########|label] [#]"

	if len(args) > 2 {
		log.Println(usage)
		return
	}

	var addr uint64 = mc.Program
	var size uint = 3

	if len(args) > 0 {
		if value, err := debugAddr(dbg, args[0]); err == nil {
			addr = value
		} else if value, err := strconv.ParseUint(args[0], 10, 16); err == nil {
			size = uint(value)
		} else {
			log.Println(err)
			return
		}
	}

	if len(args) > 1 {
		value, err := strconv.ParseUint(args[1], 10, 16)

		if err != nil {
			log.Println(err)
			return
		}

		size = uint(value)
	}

	dbg.PrintSource(addr, size)
}

// Disassembles from the program counter when no source is available
func debugDisasm(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "disasm [0x########|label] [#]"

	if len(args) > 2 {
		log.Println(usage)
		return
	}

	var addr uint64 = mc.Program
	var size uint64 = 4

	if len(args) > 0 {
		value, err := debugAddr(dbg, args[0])

		if err != nil {
			log.Println(err)
			return
		}

		addr = value &^ 3
	}

	if len(args) > 1 {
		value, err := strconv.ParseUint(args[1], 10, 16)

		if err != nil {
			log.Println(err)
			return
		}

		size = value
	}

	end := mc.Base + uint64(len(mc.Memory))

	for i := uint64(0); i < size; i++ {
		at := addr + i*4

		if at < mc.Base || at+4 > end {
			fmt.Printf("\033[1m[%#08x]\033[0m --\n", at)
			continue
		}

		word := binary.LittleEndian.Uint32(mc.Memory[at-mc.Base:])

		marker := " "
		if at == mc.Program {
			marker = ">"
		}

		fmt.Printf(
			"%s\033[1m[%#08x]\033[0m %08x  %s\n",
			marker,
			at,
			word,
			machine.Disassemble(word),
		)
	}
}

func debugJump(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "jump [0x########|label]"

	if len(args) != 1 {
		log.Println(usage)
		return
	}

	addr, err := debugAddr(dbg, args[0])

	if err != nil {
		log.Printf("Unable to find '%s'\n", args[0])
		return
	}

	mc.Program = addr
	fmt.Printf("\033[1mpc:\033[0m %#08x\n", addr)
}

func debugMemory(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "memory [0x########|label|#] [#]"

	if len(args) > 2 {
		log.Println(usage)
		return
	}

	var addr uint64 = mc.Program
	var size uint64 = 8

	if len(args) > 0 {
		if value, err := debugAddr(dbg, args[0]); err == nil {
			addr = value
		} else if value, err := strconv.ParseUint(args[0], 10, 32); err == nil {
			size = value
		} else {
			log.Println(err)
			return
		}
	}

	if len(args) > 1 {
		value, err := strconv.ParseUint(args[1], 10, 32)

		if err != nil {
			log.Println(err)
			return
		}

		size = value
	}

	dbg.PrintMem(mc, addr, size)
}

func debugSet(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "set [0x########] [0x##]"

	if len(args) != 2 {
		log.Println(usage)
		return
	}

	addr, err := encoding.DecodeHex(args[0])

	if err != nil {
		log.Println(err)
		return
	}

	value, err := encoding.DecodeNumber(args[1])

	if err != nil {
		log.Println(err)
		return
	}

	if addr < mc.Base || addr >= mc.Base+uint64(len(mc.Memory)) {
		log.Printf("Address %#08x is outside RAM\n", addr)
		return
	}

	mc.Memory[addr-mc.Base] = byte(value)
	dbg.PrintMem(mc, addr, 1)
}

func debugTraps(dbg *debugger.Debugger, args []string) {
	const usage = "traps [list|break|nobreak|clear]"

	if len(args) == 0 {
		args = append(args, "l")
	}

	switch args[0] {
	case "l", "ls", "list":
		dbg.PrintTraps()

	case "b", "break":
		dbg.BreakOnTrap = true
		fmt.Println("Stopping on semihost requests")

	case "nobreak":
		dbg.BreakOnTrap = false
		fmt.Println("Not stopping on semihost requests")

	case "clear":
		dbg.Traps = nil
		fmt.Println("Trap log reset")

	default:
		log.Println(usage)
	}
}

func debugREPL(dbg *debugger.Debugger, mc *machine.Machine) {
	exitRawTerm()
	defer enterRawTerm()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\033[1;30m(dbg)\033[0m ")

		if !scanner.Scan() {
			fmt.Println()
			shouldexit = true
			return
		}

		args := strings.Fields(scanner.Text())

		if len(args) == 0 {
			if len(lastcmd) == 0 {
				continue
			}
			args = lastcmd
		} else {
			lastcmd = make([]string, len(args))
			copy(lastcmd, args)
		}

		cmd := args[0]
		args = args[1:]

		switch cmd {
		case "b", "bp", "break", "breakpoint":
			debugBreak(dbg, args)

		case "w", "wp", "watch", "watchpoint":
			debugWatch(dbg, args)

		case "r", "reg", "register", "registers":
			debugReg(&mc.State, args)

		case "s", "src", "source":
			debugSource(dbg, &mc.State, args)

		case "d", "dis", "disasm":
			debugDisasm(dbg, &mc.State, args)

		case "l", "label", "labels":
			dbg.PrintLabels()

		case "j", "jmp", "jump":
			debugJump(dbg, &mc.State, args)

		case "m", "mem", "memory":
			debugMemory(dbg, &mc.State, args)

		case "set":
			debugSet(dbg, &mc.State, args)

		case "t", "trap", "traps":
			debugTraps(dbg, args)

		case "c", "continue":
			dbg.Break = false
			return

		case "n", "next":
			dbg.Break = true
			return

		case "q", "quit", "exit":
			shouldexit = true
			return

		case "clear":
			fmt.Print("\033[H\033[2J")

		case "reset":
			if reload == nil {
				log.Println("No image to reload")
				break
			}

			if err := reload(mc); err != nil {
				log.Println(err)
				break
			}

			dbg.Traps = nil
			fmt.Printf("\033[1mpc:\033[0m %#08x\n", mc.State.Program)

		default:
			fmt.Printf("error: '%s' is not a valid command\n", cmd)
		}
	}
}

func stopped(mc *machine.Machine) {
	fmt.Println()
	fmt.Println("Program stopped")
	fmt.Printf("\033[1mpc:\033[0m %#08x  %s\n", mc.State.Program, current(mc))
}

func current(mc *machine.Machine) string {
	offset := mc.State.Program - mc.State.Base

	if mc.State.Program < mc.State.Base ||
		offset+4 > uint64(len(mc.State.Memory)) {
		return "--"
	}

	return machine.Disassemble(
		binary.LittleEndian.Uint32(mc.State.Memory[offset:]),
	)
}

func handleBreak(dbg *debugger.Debugger, mc *machine.Machine) {
	if !dbg.Break {
		stopped(mc)
		dbg.PrintSource(mc.State.Program, 8)
	} else {
		fmt.Printf("\033[1mpc:\033[0m %#08x  %s\n", mc.State.Program, current(mc))
	}

	debugREPL(dbg, mc)
}

func handleRead(addr uint64, dbg *debugger.Debugger, mc *machine.Machine) {
	stopped(mc)
	dbg.PrintMem(&mc.State, addr, 1)
	debugREPL(dbg, mc)
}

func handleWrite(addr uint64, dbg *debugger.Debugger, mc *machine.Machine) {
	stopped(mc)
	dbg.PrintMem(&mc.State, addr, 1)
	debugREPL(dbg, mc)
}

func handleTrap(record debugger.TrapRecord, dbg *debugger.Debugger, mc *machine.Machine) {
	stopped(mc)
	fmt.Println(record)
	debugREPL(dbg, mc)
}

// Steps the machine under the debugger until it halts, faults or the user
// quits. Faults drop back into the REPL so state can be inspected.
func debugRun(dbg *debugger.Debugger, mc *machine.Machine, limit uint64) error {
	debugREPL(dbg, mc)

	for !shouldexit && !mc.Halted() {
		if limit != 0 && mc.Steps() >= limit {
			return machine.ErrStepLimit
		}

		if err := mc.Step(); err != nil {
			log.Println(err)
			stopped(mc)
			debugREPL(dbg, mc)

			if shouldexit {
				return err
			}

			continue
		}

		if mc.Idle() {
			stopped(mc)
			log.Println(machine.ErrIdle)
			debugREPL(dbg, mc)

			if shouldexit {
				return machine.ErrIdle
			}
		}
	}

	return nil
}
