// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// MaxInterrupters is the architectural limit of interrupter register sets.
const MaxInterrupters = 1024

const (
	interrupterOffset = 0x20
	interrupterStride = 0x20
)

var RegMFIndex = mmio.Register{Name: "MFINDEX", Offset: 0x00, Width: mmio.Width32, Access: mmio.ReadOnly}

// IMAN bits.
const (
	ImanInterruptPending = 0
	ImanInterruptEnable  = 1
)

// ERDP bits.
const (
	ErdpEventHandlerBusy = 3

	erdpSegmentIndexMask = 0x7
	erdpPointerMask      = ^uint64(0xf)
)

// RuntimeBlock is MFINDEX followed by Interrupters register sets.
type RuntimeBlock struct {
	Interrupters uint16
}

func interrupterRegister(name string, i uint16, offset uint64, width mmio.Width) mmio.Register {
	return mmio.Register{
		Name:   fmt.Sprintf("%s%d", name, i),
		Offset: interrupterOffset + uint64(i)*interrupterStride + offset,
		Width:  width,
		Access: mmio.ReadWrite,
	}
}

func (RuntimeBlock) IMAN(i uint16) mmio.Register   { return interrupterRegister("IMAN", i, 0x00, mmio.Width32) }
func (RuntimeBlock) IMOD(i uint16) mmio.Register   { return interrupterRegister("IMOD", i, 0x04, mmio.Width32) }
func (RuntimeBlock) ERSTSZ(i uint16) mmio.Register { return interrupterRegister("ERSTSZ", i, 0x08, mmio.Width32) }
func (RuntimeBlock) ERSTBA(i uint16) mmio.Register { return interrupterRegister("ERSTBA", i, 0x10, mmio.Width64) }
func (RuntimeBlock) ERDP(i uint16) mmio.Register   { return interrupterRegister("ERDP", i, 0x18, mmio.Width64) }

func (r RuntimeBlock) Layout() *mmio.Layout {
	layout := &mmio.Layout{
		Name:      "runtime",
		Size:      interrupterOffset + uint64(r.Interrupters)*interrupterStride,
		Registers: []mmio.Register{RegMFIndex},
	}
	for i := uint16(0); i < r.Interrupters; i++ {
		layout.Registers = append(layout.Registers, r.IMAN(i), r.IMOD(i), r.ERSTSZ(i), r.ERSTBA(i), r.ERDP(i))
	}
	return layout
}

// Runtime wraps the mutable runtime register handle.
type Runtime struct {
	*mmio.Handle[RuntimeBlock]
}

// MicroframeIndex is the 14-bit MFINDEX counter.
func (r Runtime) MicroframeIndex() uint16 {
	return uint16(mmio.Field(r.Load(RegMFIndex), 0, 13))
}

// Interrupter returns register set i.
func (r Runtime) Interrupter(i uint16) (Interrupter, error) {
	if i >= r.Block().Interrupters {
		return Interrupter{}, fmt.Errorf("%w: %d of %d", ErrInvalidInterrupter, i, r.Block().Interrupters)
	}
	return Interrupter{runtime: r, index: i}, nil
}

// Interrupter is one interrupter register set.
type Interrupter struct {
	runtime Runtime
	index   uint16
}

func (i Interrupter) Index() uint16 {
	return i.index
}

func (i Interrupter) block() RuntimeBlock {
	return i.runtime.Block()
}

func (i Interrupter) Pending() bool {
	return i.runtime.ReadBit(i.block().IMAN(i.index), ImanInterruptPending)
}

// AcknowledgePending clears IP, which is write-1-to-clear.
func (i Interrupter) AcknowledgePending() {
	reg := i.block().IMAN(i.index)
	i.runtime.Update(reg, func(v uint64) uint64 {
		return mmio.SetBit(v, ImanInterruptPending, true)
	})
}

func (i Interrupter) Enabled() bool {
	return i.runtime.ReadBit(i.block().IMAN(i.index), ImanInterruptEnable)
}

// SetEnabled changes IE without acknowledging a pending interrupt.
func (i Interrupter) SetEnabled(on bool) {
	reg := i.block().IMAN(i.index)
	i.runtime.Update(reg, func(v uint64) uint64 {
		return mmio.SetBit(mmio.SetBit(v, ImanInterruptPending, false), ImanInterruptEnable, on)
	})
}

// Moderation returns the IMODI interval and IMODC counter, in 250ns units.
func (i Interrupter) Moderation() (interval, counter uint16) {
	v := i.runtime.Load(i.block().IMOD(i.index))
	return uint16(mmio.Field(v, 0, 15)), uint16(mmio.Field(v, 16, 31))
}

func (i Interrupter) SetModeration(interval, counter uint16) {
	i.runtime.Store(i.block().IMOD(i.index), uint64(counter)<<16|uint64(interval))
}

// EventRingSegmentTableSize is ERSTSZ bits 0..15.
func (i Interrupter) EventRingSegmentTableSize() uint16 {
	return uint16(mmio.Field(i.runtime.Load(i.block().ERSTSZ(i.index)), 0, 15))
}

func (i Interrupter) SetEventRingSegmentTableSize(size uint16) {
	i.runtime.Update(i.block().ERSTSZ(i.index), func(v uint64) uint64 {
		return mmio.SetField(v, 0, 15, uint64(size))
	})
}

func (i Interrupter) EventRingSegmentTableBase() uint64 {
	return i.runtime.Load(i.block().ERSTBA(i.index)) &^ 0x3f
}

// SetEventRingSegmentTableBase writes ERSTBA, which must be 64-byte aligned.
func (i Interrupter) SetEventRingSegmentTableBase(base uint64) error {
	if base&0x3f != 0 {
		return fmt.Errorf("%w: event ring segment table %#x is not 64-byte aligned", ErrMisalignedPointer, base)
	}
	i.runtime.Store(i.block().ERSTBA(i.index), base)
	return nil
}

// DequeuePointer is the ERDP pointer with its low 4 bits masked.
func (i Interrupter) DequeuePointer() uint64 {
	return i.runtime.Load(i.block().ERDP(i.index)) & erdpPointerMask
}

// DequeueSegmentIndex is DESI, ERDP bits 0..2.
func (i Interrupter) DequeueSegmentIndex() uint8 {
	return uint8(i.runtime.Load(i.block().ERDP(i.index)) & erdpSegmentIndexMask)
}

func (i Interrupter) EventHandlerBusy() bool {
	return i.runtime.ReadBit(i.block().ERDP(i.index), ErdpEventHandlerBusy)
}

// SetDequeuePointer writes ERDP. The pointer must be 16-byte aligned and the
// segment index fit in 3 bits. clearBusy writes 1 to EHB to clear it.
func (i Interrupter) SetDequeuePointer(pointer uint64, segment uint8, clearBusy bool) error {
	if pointer&^erdpPointerMask != 0 {
		return fmt.Errorf("%w: event ring dequeue pointer %#x is not 16-byte aligned", ErrMisalignedPointer, pointer)
	}
	if segment > erdpSegmentIndexMask {
		return fmt.Errorf("segment index %d exceeds 3 bits", segment)
	}
	value := pointer | uint64(segment)
	value = mmio.SetBit(value, ErdpEventHandlerBusy, clearBusy)
	i.runtime.Store(i.block().ERDP(i.index), value)
	return nil
}
