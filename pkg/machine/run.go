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

import "context"

// Context cancellation is checked once per this many steps
const cancelInterval = 1 << 10

// Run steps the machine until the guest halts. It stops early with
// ErrStepLimit after limit steps (0 means no limit), with ErrIdle when the
// guest spins on a jump to itself, with the context's error on
// cancellation, or with the first fault.
func (mc *Machine) Run(ctx context.Context, limit uint64) error {
	for !mc.halted {
		if mc.steps%cancelInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if limit != 0 && mc.steps >= limit {
			return ErrStepLimit
		}

		if err := mc.Step(); err != nil {
			return err
		}

		if mc.idle {
			return ErrIdle
		}
	}

	return nil
}
