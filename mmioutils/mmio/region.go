// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"fmt"
)

// Width is the access size of a register in bytes.
type Width uint8

const (
	Width8  Width = 1
	Width16 Width = 2
	Width32 Width = 4
	Width64 Width = 8
)

func (w Width) Bits() uint {
	return uint(w) * 8
}

func (w Width) Mask() uint64 {
	if w == Width64 {
		return ^uint64(0)
	}
	return 1<<w.Bits() - 1
}

func (w Width) valid() bool {
	switch w {
	case Width8, Width16, Width32, Width64:
		return true
	}
	return false
}

// Region is a window of memory-mapped registers. Every Load and Store is a
// single access of exactly the given width; implementations never merge,
// elide or reorder them.
type Region interface {
	PhysicalAddress() uint64
	Size() uint64
	Load(offset uint64, width Width) uint64
	Store(offset uint64, width Width, value uint64)
	// Claims returns the claim set of the address space the region lives
	// in. Every region over the same registers returns the same Claimer.
	Claims() *Claimer
}

// Mapper makes a physical range accessible.
type Mapper interface {
	Map(phys, length uint64) (Region, error)
	Unmap(region Region) error
}

// CheckAccess reports whether an access of width at offset stays inside a
// region of the given size and is naturally aligned.
func CheckAccess(size, offset uint64, width Width) error {
	if !width.valid() {
		return fmt.Errorf("%w: width %d", ErrMisaligned, width)
	}
	if offset%uint64(width) != 0 {
		return fmt.Errorf("%w: offset %#x for %d-byte access", ErrMisaligned, offset, width)
	}
	if offset+uint64(width) > size || offset+uint64(width) < offset {
		return fmt.Errorf("%w: offset %#x+%d beyond %#x", ErrOutOfRange, offset, width, size)
	}
	return nil
}

func mustAccess(size, offset uint64, width Width) {
	if err := CheckAccess(size, offset, width); err != nil {
		panic(err)
	}
}
