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

	"github.com/mattn/go-tty"
)

// Serial device carrying guest output in place of stdout
type console struct {
	device  *tty.TTY
	restore func() error
}

func openConsole(path string) (*console, error) {
	device, err := tty.OpenDevice(path)

	if err != nil {
		return nil, err
	}

	restore, err := device.Raw()

	if err != nil {
		device.Close()
		return nil, err
	}

	return &console{device, restore}, nil
}

func (c *console) Display() *bufio.Writer {
	return bufio.NewWriter(c.device.Output())
}

func (c *console) Close() error {
	if err := c.restore(); err != nil {
		c.device.Close()
		return err
	}

	return c.device.Close()
}
