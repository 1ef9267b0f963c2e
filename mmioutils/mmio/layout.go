// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"errors"
	"fmt"
)

type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
	WriteOnly
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case ReadWrite:
		return "RW"
	case WriteOnly:
		return "WO"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Register is one entry of a register table.
type Register struct {
	Name   string
	Offset uint64
	Width  Width
	Access Access
}

func (r Register) String() string {
	return fmt.Sprintf("%s@%#x/%d %s", r.Name, r.Offset, r.Width.Bits(), r.Access)
}

// Layout describes a hardware register block.
type Layout struct {
	Name      string
	Size      uint64
	Registers []Register
}

// Validate checks every register against the block size and its natural
// alignment.
func (l *Layout) Validate() error {
	var errs []error
	for _, reg := range l.Registers {
		if err := CheckAccess(l.Size, reg.Offset, reg.Width); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", l.Name, reg.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Register looks up a register by name.
func (l *Layout) Register(name string) (Register, bool) {
	for _, reg := range l.Registers {
		if reg.Name == name {
			return reg, true
		}
	}
	return Register{}, false
}

// Block is implemented by types describing a register block. The value may
// carry parameters, for example the number of entries of an array block.
type Block interface {
	Layout() *Layout
}
