// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"fmt"
)

type Class uint32
type Vendor uint32

var (
	ClassXHCIController Class = 0x0c0330
	ClassPCIBridge      Class = 0x060400

	VendorAny   Vendor = 0xffffffff
	VendorIntel Vendor = 0x8086
)

const (
	MaxDevices   = 32
	MaxFunctions = 8
)

// Address identifies a function in configuration space. Domain is always zero
// for configuration mechanism #1.
type Address struct {
	Domain   uint16
	Bus      uint8
	Device   uint8
	Function uint8
}

func (p Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%1x", p.Domain, p.Bus, p.Device, p.Function)
}

type Reader interface {
	Read() ([]Address, error)
}
