// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"fmt"
	"sync/atomic"
)

// View is a read-only binding of a register block to a region. It does not
// own the region.
type View[B Block] struct {
	block  B
	layout *Layout
	region Region
	base   uint64
}

// NewView binds block at offset base of region.
func NewView[B Block](region Region, base uint64, block B) (*View[B], error) {
	layout := block.Layout()
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if base+layout.Size > region.Size() || base+layout.Size < base {
		return nil, fmt.Errorf("%w: %s at %#x+%#x exceeds region of %#x",
			ErrOutOfRange, layout.Name, base, layout.Size, region.Size())
	}
	return &View[B]{
		block:  block,
		layout: layout,
		region: region,
		base:   base,
	}, nil
}

func (v *View[B]) Block() B {
	return v.block
}

func (v *View[B]) Layout() *Layout {
	return v.layout
}

// Base is the offset of the block inside its region.
func (v *View[B]) Base() uint64 {
	return v.base
}

// PhysicalAddress is the physical address of the first register.
func (v *View[B]) PhysicalAddress() uint64 {
	return v.region.PhysicalAddress() + v.base
}

func (v *View[B]) check(reg Register) {
	mustAccess(v.layout.Size, reg.Offset, reg.Width)
}

func (v *View[B]) Load(reg Register) uint64 {
	v.check(reg)
	if reg.Access == WriteOnly {
		panic(fmt.Errorf("%s: load of write-only register %s", v.layout.Name, reg))
	}
	return v.region.Load(v.base+reg.Offset, reg.Width)
}

func (v *View[B]) ReadBit(reg Register, pos uint) bool {
	return Bit(v.Load(reg), pos)
}

// Handle is the single mutable binding of a register block. It is only
// created through a Claimer and must be released to allow another one.
type Handle[B Block] struct {
	*View[B]
	claim    *Claim
	released atomic.Bool
}

// Bind claims the physical range of block in the claim set of region and
// returns a mutable handle.
func Bind[B Block](owner string, region Region, base uint64, block B) (*Handle[B], error) {
	view, err := NewView(region, base, block)
	if err != nil {
		return nil, err
	}
	claim, err := region.Claims().Claim(owner, view.PhysicalAddress(), view.layout.Size)
	if err != nil {
		return nil, err
	}
	return &Handle[B]{View: view, claim: claim}, nil
}

func (h *Handle[B]) Store(reg Register, value uint64) {
	h.check(reg)
	if h.released.Load() {
		panic(fmt.Errorf("%s: store to %s: %w", h.layout.Name, reg, ErrReleased))
	}
	if reg.Access == ReadOnly {
		panic(fmt.Errorf("%s: store to %s: %w", h.layout.Name, reg, ErrReadOnly))
	}
	h.region.Store(h.base+reg.Offset, reg.Width, value)
}

// WriteBit sets one bit with a read-modify-write. It is not atomic; concurrent
// writers to the same register must be serialized by the caller.
func (h *Handle[B]) WriteBit(reg Register, pos uint, on bool) {
	h.Store(reg, SetBit(h.Load(reg), pos, on))
}

// Update stores fn applied to the current register value.
func (h *Handle[B]) Update(reg Register, fn func(uint64) uint64) {
	h.Store(reg, fn(h.Load(reg)))
}

// Release drops the claim. Further stores panic.
func (h *Handle[B]) Release() {
	if h.released.Swap(true) {
		return
	}
	h.claim.Release()
}

func (h *Handle[B]) Released() bool {
	return h.released.Load()
}
