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

// Package config holds the host settings for a run: RAM layout, step limit,
// the unknown semihost policy and tracing. Values come from RVTRAP_*
// environment variables and can be overridden on the command line.
package config

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/xyproto/env/v2"

	"github.com/lassandro/rvtrap/pkg/encoding"
	"github.com/lassandro/rvtrap/pkg/machine"
)

const (
	ENV_MEMORY  = "RVTRAP_MEMORY"
	ENV_BASE    = "RVTRAP_BASE"
	ENV_STEPS   = "RVTRAP_STEPS"
	ENV_UNKNOWN = "RVTRAP_UNKNOWN"
	ENV_TRACE   = "RVTRAP_TRACE"
)

type Config struct {
	Memory  uint64
	Base    uint64
	Steps   uint64
	Unknown machine.UnknownPolicy
	Trace   bool
}

type InvalidSettingError struct {
	Name     string
	Received string
	Reason   string
}

func (err *InvalidSettingError) Error() string {
	return fmt.Sprintf(
		"Invalid value for %s: '%s' (%s)", err.Name, err.Received, err.Reason,
	)
}

func Default() Config {
	return Config{
		Memory:  machine.DEFAULT_MEMORY_SIZE,
		Base:    machine.MEMSPACE_RAM,
		Steps:   0,
		Unknown: machine.UnknownFault,
		Trace:   false,
	}
}

// FromEnv starts from Default and applies every non-empty RVTRAP_*
// variable.
func FromEnv() (Config, error) {
	// env caches the environment on first use
	env.Load()

	cfg := Default()

	if s := env.Str(ENV_MEMORY); s != "" {
		value, err := parseNumber(ENV_MEMORY, s)
		if err != nil {
			return cfg, err
		}
		cfg.Memory = value
	}

	if s := env.Str(ENV_BASE); s != "" {
		value, err := parseNumber(ENV_BASE, s)
		if err != nil {
			return cfg, err
		}
		cfg.Base = value
	}

	if s := env.Str(ENV_STEPS); s != "" {
		value, err := parseNumber(ENV_STEPS, s)
		if err != nil {
			return cfg, err
		}
		cfg.Steps = value
	}

	if s := env.Str(ENV_UNKNOWN); s != "" {
		policy, err := machine.ParseUnknownPolicy(s)
		if err != nil {
			return cfg, &InvalidSettingError{
				ENV_UNKNOWN, s, "expected fault or ignore",
			}
		}
		cfg.Unknown = policy
	}

	cfg.Trace = env.Bool(ENV_TRACE)

	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	if cfg.Memory == 0 || cfg.Memory%4 != 0 {
		return &InvalidSettingError{
			"memory",
			strconv.FormatUint(cfg.Memory, 10),
			"must be a non-zero multiple of 4",
		}
	}

	if cfg.Base%4 != 0 {
		return &InvalidSettingError{
			"base", fmt.Sprintf("%#x", cfg.Base), "must be 4-byte aligned",
		}
	}

	if cfg.Base+cfg.Memory < cfg.Base {
		return &InvalidSettingError{
			"memory",
			strconv.FormatUint(cfg.Memory, 10),
			"RAM would wrap the address space",
		}
	}

	if cfg.Base < machine.MEMSPACE_UART+machine.UART_SIZE &&
		cfg.Base+cfg.Memory > machine.MEMSPACE_UART {
		return &InvalidSettingError{
			"base", fmt.Sprintf("%#x", cfg.Base), "RAM overlaps the UART",
		}
	}

	return nil
}

// Apply sizes and places the machine's RAM and copies over the run policy.
// The machine is ready for LoadBin or LoadELF afterwards.
func (cfg Config) Apply(mc *machine.Machine) {
	if uint64(len(mc.State.Memory)) != cfg.Memory {
		mc.State.Memory = make([]byte, cfg.Memory)
	}

	mc.State.Base = cfg.Base
	mc.Unknown = cfg.Unknown
}

// Register binds the settings to flags on fs, using the current values as
// defaults. Parse fs afterwards and call Validate.
func (cfg *Config) Register(fs *flag.FlagSet) {
	fs.Var(
		(*numberValue)(&cfg.Memory),
		"memory",
		"RAM size in bytes (env "+ENV_MEMORY+")",
	)
	fs.Var(
		(*numberValue)(&cfg.Base),
		"base",
		"RAM base address (env "+ENV_BASE+")",
	)
	fs.Var(
		(*numberValue)(&cfg.Steps),
		"steps",
		"Stops after this many instructions, 0 for no limit (env "+ENV_STEPS+")",
	)
	fs.Var(
		(*policyValue)(&cfg.Unknown),
		"unknown",
		"Unknown semihost operations: fault or ignore (env "+ENV_UNKNOWN+")",
	)
	fs.BoolVar(
		&cfg.Trace,
		"trace",
		cfg.Trace,
		"Logs every executed instruction (env "+ENV_TRACE+")",
	)
}

func parseNumber(name, s string) (uint64, error) {
	value, err := encoding.DecodeNumber(s)

	if err != nil || value < 0 && !isHex(s) {
		return 0, &InvalidSettingError{name, s, "expected a positive number"}
	}

	return uint64(value), nil
}

func isHex(s string) bool {
	_, err := encoding.DecodeHex(s)
	return err == nil
}

type numberValue uint64

func (v *numberValue) String() string {
	if v == nil {
		return "0"
	}

	if *v >= 1<<16 {
		return fmt.Sprintf("%#x", uint64(*v))
	}

	return strconv.FormatUint(uint64(*v), 10)
}

func (v *numberValue) Set(s string) error {
	value, err := parseNumber("flag", s)

	if err != nil {
		return err
	}

	*v = numberValue(value)

	return nil
}

type policyValue machine.UnknownPolicy

func (v *policyValue) String() string {
	if v == nil {
		return machine.UnknownFault.String()
	}

	return machine.UnknownPolicy(*v).String()
}

func (v *policyValue) Set(s string) error {
	policy, err := machine.ParseUnknownPolicy(s)

	if err != nil {
		return err
	}

	*v = policyValue(policy)

	return nil
}
