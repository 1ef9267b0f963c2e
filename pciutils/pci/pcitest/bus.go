// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package pcitest provides a synthetic PCI hierarchy answering configuration
// mechanism #1 port accesses.
package pcitest

import (
	"sync"

	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
)

// Function describes one synthetic configuration space.
type Function struct {
	VendorID   uint16
	DeviceID   uint16
	Revision   uint8
	Class      pci.ClassCode
	HeaderType uint8
	Bars       [pci.MaxBars]uint32
	Bus        pci.BusNumbers
}

type key struct {
	addr pci.Address
	reg  uint8
}

// Bus implements pci.PortIO over a set of functions. Registers that are not
// modelled read as zero, absent functions read as all ones.
type Bus struct {
	mutex     sync.Mutex
	functions map[pci.Address]Function
	writes    map[key]uint32
	address   uint32
	reads     map[key]int
}

func NewBus() *Bus {
	return &Bus{
		functions: map[pci.Address]Function{},
		writes:    map[key]uint32{},
		reads:     map[key]int{},
	}
}

func (b *Bus) Add(addr pci.Address, fn Function) *Bus {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.functions[addr] = fn
	return b
}

// Bridge is a shorthand for a PCI-to-PCI bridge forwarding to secondary.
func Bridge(primary, secondary uint8) Function {
	return Function{
		VendorID:   0x8086,
		DeviceID:   0x244e,
		Class:      pci.ClassCode{Base: pci.BaseClassBridge, Sub: pci.SubClassPCIBridge},
		HeaderType: pci.HeaderTypeBridge,
		Bus:        pci.BusNumbers{Primary: primary, Secondary: secondary, Subordinate: secondary},
	}
}

// Endpoint is a shorthand for a general function of the given class.
func Endpoint(vendor, device uint16, class pci.ClassCode) Function {
	return Function{
		VendorID: vendor,
		DeviceID: device,
		Class:    class,
	}
}

func (b *Bus) Out32(port uint16, value uint32) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch port {
	case pci.ConfigAddressPort:
		b.address = value
	case pci.ConfigDataPort:
		k, ok := b.decode()
		if !ok {
			return
		}
		if _, present := b.functions[k.addr]; present {
			b.writes[k] = value
		}
	}
}

func (b *Bus) In32(port uint16) uint32 {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch port {
	case pci.ConfigAddressPort:
		return b.address
	case pci.ConfigDataPort:
		k, ok := b.decode()
		if !ok {
			return 0xffffffff
		}
		b.reads[k]++
		return b.read(k)
	}
	return 0xffffffff
}

// VendorReads returns how often the vendor id register of addr was read.
func (b *Bus) VendorReads(addr pci.Address) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.reads[key{addr: addr, reg: pci.RegVendorID}]
}

// Written returns the last value written to reg of addr.
func (b *Bus) Written(addr pci.Address, reg uint8) (uint32, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	v, ok := b.writes[key{addr: addr, reg: reg}]
	return v, ok
}

func (b *Bus) decode() (key, bool) {
	if b.address&(1<<31) == 0 {
		return key{}, false
	}
	return key{
		addr: pci.Address{
			Bus:      uint8(b.address >> 16),
			Device:   uint8(b.address>>11) & 0x1f,
			Function: uint8(b.address>>8) & 0x07,
		},
		reg: uint8(b.address) & 0xfc,
	}, true
}

func (b *Bus) read(k key) uint32 {
	fn, ok := b.functions[k.addr]
	if !ok {
		return 0xffffffff
	}
	if v, written := b.writes[k]; written {
		return v
	}

	switch {
	case k.reg == pci.RegVendorID:
		return uint32(fn.DeviceID)<<16 | uint32(fn.VendorID)
	case k.reg == pci.RegClassCode:
		return fn.Class.Raw() | uint32(fn.Revision)
	case k.reg == pci.RegHeaderType:
		return uint32(fn.HeaderType) << 16
	case fn.HeaderType&0x7f == pci.HeaderTypeBridge && k.reg == pci.RegBusNumbers:
		return uint32(fn.Bus.Subordinate)<<16 | uint32(fn.Bus.Secondary)<<8 | uint32(fn.Bus.Primary)
	case k.reg >= pci.RegBar0 && k.reg < pci.RegBar0+4*pci.MaxBars:
		return fn.Bars[(k.reg-pci.RegBar0)/4]
	}
	return 0
}
