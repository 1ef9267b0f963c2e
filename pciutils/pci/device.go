// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"fmt"
)

const MaxBars = 6

// Header layouts, the low seven bits of the header type.
const (
	HeaderTypeGeneral uint8 = 0x00
	HeaderTypeBridge  uint8 = 0x01
	HeaderTypeCardBus uint8 = 0x02
)

const (
	barIOSpace  uint32 = 1 << 0
	barType64   uint32 = 1 << 2
	barPrefetch uint32 = 1 << 3

	barMemoryMask uint32 = 0xfffffff0
	barIOMask     uint32 = 0xfffffffc
)

// Device is a discovered function. All fields are read once during the scan.
type Device struct {
	Address    Address
	VendorID   uint16
	DeviceID   uint16
	Revision   uint8
	HeaderType uint8
	ClassCode  ClassCode

	bars     [MaxBars]uint32
	barCount int
}

// NewDevice reads the identification registers and the raw BARs of addr.
func NewDevice(cs ConfigSpace, addr Address) Device {
	id := cs.ReadConfig(addr, RegVendorID)
	class := ReadClassCode(cs, addr)
	d := Device{
		Address:    addr,
		VendorID:   uint16(id),
		DeviceID:   uint16(id >> 16),
		Revision:   uint8(class),
		HeaderType: ReadHeaderType(cs, addr),
		ClassCode:  ClassCodeFromRaw(class),
	}

	switch d.HeaderLayout() {
	case HeaderTypeGeneral:
		d.barCount = 6
	case HeaderTypeBridge:
		d.barCount = 2
	case HeaderTypeCardBus:
		d.barCount = 1
	}
	for i := 0; i < d.barCount; i++ {
		d.bars[i] = cs.ReadConfig(addr, BarRegister(i))
	}

	return d
}

// BarRegister returns the configuration offset of BAR index.
func BarRegister(index int) uint8 {
	return RegBar0 + uint8(4*index)
}

func (d Device) HeaderLayout() uint8 {
	return d.HeaderType & 0x7f
}

func (d Device) IsMultiFunction() bool {
	return !IsSingleFunction(d.HeaderType)
}

func (d Device) BarCount() int {
	return d.barCount
}

// RawBar returns the cached register value of BAR index.
func (d Device) RawBar(index int) (uint32, error) {
	if index < 0 || index >= d.barCount {
		return 0, fmt.Errorf("%w: index %d of %s (%d bars)", ErrInvalidBar, index, d.Address, d.barCount)
	}
	return d.bars[index], nil
}

// Bar is a decoded base address register.
type Bar struct {
	Index        int
	Raw          uint64
	Address      uint64
	IO           bool
	Is64         bool
	Prefetchable bool
}

// Bar decodes BAR index. A 64-bit memory BAR consumes the following slot, so
// requesting one at the last slot is invalid.
func (d Device) Bar(index int) (Bar, error) {
	if index < 0 || index >= MaxBars {
		return Bar{}, fmt.Errorf("%w: index %d out of range", ErrInvalidBar, index)
	}
	low, err := d.RawBar(index)
	if err != nil {
		return Bar{}, err
	}

	if low&barIOSpace != 0 {
		return Bar{
			Index:   index,
			Raw:     uint64(low),
			Address: uint64(low & barIOMask),
			IO:      true,
		}, nil
	}

	bar := Bar{
		Index:        index,
		Raw:          uint64(low),
		Address:      uint64(low & barMemoryMask),
		Prefetchable: low&barPrefetch != 0,
	}
	if low&barType64 == 0 {
		return bar, nil
	}

	if index >= d.barCount-1 {
		return Bar{}, fmt.Errorf("%w: 64-bit bar at final slot %d of %s", ErrInvalidBar, index, d.Address)
	}
	high := d.bars[index+1]
	bar.Is64 = true
	bar.Raw |= uint64(high) << 32
	bar.Address |= uint64(high) << 32

	return bar, nil
}

func (d Device) String() string {
	return fmt.Sprintf("%s %04x:%04x class %s header %02x", d.Address, d.VendorID, d.DeviceID, d.ClassCode, d.HeaderType)
}
