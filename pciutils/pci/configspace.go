// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

// I/O ports of configuration mechanism #1.
const (
	ConfigAddressPort uint16 = 0x0cf8
	ConfigDataPort    uint16 = 0x0cfc
)

// Configuration space register offsets.
const (
	RegVendorID   uint8 = 0x00
	RegClassCode  uint8 = 0x08
	RegHeaderType uint8 = 0x0c
	RegBar0       uint8 = 0x10
	RegBusNumbers uint8 = 0x18
)

// VendorAbsent is read back as vendor id when no function answers.
const VendorAbsent uint16 = 0xffff

const configEnable uint32 = 1 << 31

// PortIO is 32-bit access to the processor I/O space.
type PortIO interface {
	Out32(port uint16, value uint32)
	In32(port uint16) uint32
}

// ConfigSpace reads and writes 32-bit configuration registers. Accesses are not
// serialized; callers guarantee exclusivity.
type ConfigSpace interface {
	ReadConfig(addr Address, reg uint8) uint32
	WriteConfig(addr Address, reg uint8, value uint32)
}

// MakeAddress encodes a CONFIG_ADDRESS value. The two low register bits are
// masked off.
func MakeAddress(bus, device, function, reg uint8) uint32 {
	return configEnable |
		uint32(bus)<<16 |
		uint32(device&0x1f)<<11 |
		uint32(function&0x07)<<8 |
		uint32(reg&0xfc)
}

// PortConfigSpace implements ConfigSpace on the CONFIG_ADDRESS/CONFIG_DATA
// port pair.
type PortConfigSpace struct {
	io PortIO
}

func NewPortConfigSpace(io PortIO) *PortConfigSpace {
	return &PortConfigSpace{io: io}
}

func (c *PortConfigSpace) WriteAddress(addr uint32) {
	c.io.Out32(ConfigAddressPort, addr)
}

func (c *PortConfigSpace) WriteData(value uint32) {
	c.io.Out32(ConfigDataPort, value)
}

func (c *PortConfigSpace) ReadData() uint32 {
	return c.io.In32(ConfigDataPort)
}

func (c *PortConfigSpace) ReadConfig(addr Address, reg uint8) uint32 {
	c.WriteAddress(MakeAddress(addr.Bus, addr.Device, addr.Function, reg))
	return c.ReadData()
}

func (c *PortConfigSpace) WriteConfig(addr Address, reg uint8, value uint32) {
	c.WriteAddress(MakeAddress(addr.Bus, addr.Device, addr.Function, reg))
	c.WriteData(value)
}

func ReadVendorID(cs ConfigSpace, addr Address) uint16 {
	return uint16(cs.ReadConfig(addr, RegVendorID))
}

func ReadDeviceID(cs ConfigSpace, addr Address) uint16 {
	return uint16(cs.ReadConfig(addr, RegVendorID) >> 16)
}

// ReadClassCode returns the raw class code register, revision id in the low byte.
func ReadClassCode(cs ConfigSpace, addr Address) uint32 {
	return cs.ReadConfig(addr, RegClassCode)
}

func ReadHeaderType(cs ConfigSpace, addr Address) uint8 {
	return uint8(cs.ReadConfig(addr, RegHeaderType) >> 16)
}

// BusNumbers is the bus number register of a type 1 (bridge) header.
type BusNumbers struct {
	Primary     uint8
	Secondary   uint8
	Subordinate uint8
}

func ReadBusNumbers(cs ConfigSpace, addr Address) BusNumbers {
	raw := cs.ReadConfig(addr, RegBusNumbers)
	return BusNumbers{
		Primary:     uint8(raw),
		Secondary:   uint8(raw >> 8),
		Subordinate: uint8(raw >> 16),
	}
}

func IsSingleFunction(headerType uint8) bool {
	return headerType&0x80 == 0
}
