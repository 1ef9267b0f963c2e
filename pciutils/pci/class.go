// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import "fmt"

// Base class and subclass codes used by the enumerator and the xHCI locator.
const (
	BaseClassBridge    uint8 = 0x06
	SubClassPCIBridge  uint8 = 0x04
	BaseClassSerialBus uint8 = 0x0c
	SubClassUSB        uint8 = 0x03
	InterfaceXHCI      uint8 = 0x30
)

// ClassCode is the decoded class code register (offset 0x08). The low byte of
// that register holds the revision id and is not part of the class code, so a
// round trip through Raw drops it.
type ClassCode struct {
	Base      uint8
	Sub       uint8
	Interface uint8
}

func ClassCodeFromRaw(raw uint32) ClassCode {
	return ClassCode{
		Base:      uint8(raw >> 24),
		Sub:       uint8(raw >> 16),
		Interface: uint8(raw >> 8),
	}
}

// Raw returns the register value with a zero revision byte.
func (c ClassCode) Raw() uint32 {
	return uint32(c.Base)<<24 | uint32(c.Sub)<<16 | uint32(c.Interface)<<8
}

// Class returns the 24-bit class as exposed by sysfs.
func (c ClassCode) Class() Class {
	return Class(c.Raw() >> 8)
}

func (c ClassCode) EqualBase(base uint8) bool {
	return c.Base == base
}

func (c ClassCode) EqualBaseSub(base, sub uint8) bool {
	return c.EqualBase(base) && c.Sub == sub
}

func (c ClassCode) EqualBaseSubInterface(base, sub, iface uint8) bool {
	return c.EqualBaseSub(base, sub) && c.Interface == iface
}

func (c ClassCode) IsPCIBridge() bool {
	return c.EqualBaseSub(BaseClassBridge, SubClassPCIBridge)
}

func (c ClassCode) IsXHCI() bool {
	return c.EqualBaseSubInterface(BaseClassSerialBus, SubClassUSB, InterfaceXHCI)
}

func (c ClassCode) String() string {
	return fmt.Sprintf("%02x%02x%02x", c.Base, c.Sub, c.Interface)
}
