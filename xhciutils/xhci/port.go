// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// PortRegisterOffset is the offset of port register set 1 from the
// operational base. Each set is 16 bytes.
const (
	PortRegisterOffset = 0x400
	portRegisterStride = 0x10
)

// PORTSC bits.
const (
	PortConnectStatus      = 0
	PortEnabled            = 1
	PortOverCurrentActive  = 3
	PortReset              = 4
	PortPower              = 9
	PortConnectChange      = 17
	PortEnabledChange      = 18
	PortWarmResetChange    = 19
	PortOverCurrentChange  = 20
	PortResetChange        = 21
	PortLinkStateChange    = 22
	PortConfigErrorChange  = 23
	PortDeviceRemovable    = 30
	PortWarmReset          = 31
	portLinkStateLow       = 5
	portLinkStateHigh      = 8
	portSpeedLow           = 10
	portSpeedHigh          = 13
	portLinkWriteStrobe    = 16
	portChangeMask         = 0x7f << PortConnectChange
	portPreserveWriteClear = 1<<PortEnabled | portChangeMask
)

// PortArray is the block of MaxPorts register sets.
type PortArray struct {
	Count uint8
}

func portRegister(name string, n uint8, offset uint64) mmio.Register {
	return mmio.Register{
		Name:   fmt.Sprintf("%s%d", name, n),
		Offset: uint64(n-1)*portRegisterStride + offset,
		Width:  mmio.Width32,
		Access: mmio.ReadWrite,
	}
}

// PORTSC is the status and control register of port n, counted from 1.
func (PortArray) PORTSC(n uint8) mmio.Register    { return portRegister("PORTSC", n, 0x0) }
func (PortArray) PORTPMSC(n uint8) mmio.Register  { return portRegister("PORTPMSC", n, 0x4) }
func (PortArray) PORTLI(n uint8) mmio.Register    { return portRegister("PORTLI", n, 0x8) }
func (PortArray) PORTHLPMC(n uint8) mmio.Register { return portRegister("PORTHLPMC", n, 0xc) }

func (p PortArray) Layout() *mmio.Layout {
	layout := &mmio.Layout{
		Name: "ports",
		Size: uint64(p.Count) * portRegisterStride,
	}
	for n := uint8(1); n <= p.Count && n != 0; n++ {
		layout.Registers = append(layout.Registers, p.PORTSC(n), p.PORTPMSC(n), p.PORTLI(n), p.PORTHLPMC(n))
	}
	return layout
}

// PortSpeed is the protocol speed ID reported in PORTSC.
type PortSpeed uint8

func (s PortSpeed) String() string {
	switch s {
	case 0:
		return "none"
	case 1:
		return "full"
	case 2:
		return "low"
	case 3:
		return "high"
	case 4:
		return "super"
	case 5:
		return "super-plus"
	default:
		return fmt.Sprintf("psiv-%d", uint8(s))
	}
}

// PortStatus is a PORTSC value.
type PortStatus uint32

func (s PortStatus) Connected() bool           { return mmio.Bit(uint64(s), PortConnectStatus) }
func (s PortStatus) Enabled() bool             { return mmio.Bit(uint64(s), PortEnabled) }
func (s PortStatus) OverCurrent() bool         { return mmio.Bit(uint64(s), PortOverCurrentActive) }
func (s PortStatus) Resetting() bool           { return mmio.Bit(uint64(s), PortReset) }
func (s PortStatus) Powered() bool             { return mmio.Bit(uint64(s), PortPower) }
func (s PortStatus) DeviceRemovable() bool     { return !mmio.Bit(uint64(s), PortDeviceRemovable) }
func (s PortStatus) LinkState() uint8          { return uint8(mmio.Field(uint64(s), portLinkStateLow, portLinkStateHigh)) }
func (s PortStatus) Speed() PortSpeed          { return PortSpeed(mmio.Field(uint64(s), portSpeedLow, portSpeedHigh)) }
func (s PortStatus) Changes() uint32           { return uint32(s) & portChangeMask }
func (s PortStatus) ConnectChanged() bool      { return mmio.Bit(uint64(s), PortConnectChange) }
func (s PortStatus) ResetChanged() bool        { return mmio.Bit(uint64(s), PortResetChange) }
func (s PortStatus) LinkStateChanged() bool    { return mmio.Bit(uint64(s), PortLinkStateChange) }
func (s PortStatus) OverCurrentChanged() bool  { return mmio.Bit(uint64(s), PortOverCurrentChange) }

func (s PortStatus) String() string {
	return fmt.Sprintf("%#08x(CCS=%t PED=%t PP=%t PLS=%d speed=%s)",
		uint32(s), s.Connected(), s.Enabled(), s.Powered(), s.LinkState(), s.Speed())
}

// Ports wraps the mutable port register handle.
type Ports struct {
	*mmio.Handle[PortArray]
}

func (p Ports) check(n uint8) error {
	if n == 0 || n > p.Block().Count {
		return fmt.Errorf("%w: port %d of %d", ErrInvalidPort, n, p.Block().Count)
	}
	return nil
}

func (p Ports) Status(n uint8) (PortStatus, error) {
	if err := p.check(n); err != nil {
		return 0, err
	}
	return PortStatus(p.Load(p.Block().PORTSC(n))), nil
}

// AcknowledgeChanges clears the given change bits of port n. PED and the
// other change bits are written as zero so they keep their state.
func (p Ports) AcknowledgeChanges(n uint8, changes uint32) error {
	if err := p.check(n); err != nil {
		return err
	}
	reg := p.Block().PORTSC(n)
	p.Update(reg, func(v uint64) uint64 {
		return v&^portPreserveWriteClear&^(1<<portLinkWriteStrobe) | uint64(changes&portChangeMask)
	})
	return nil
}

// ResetPort starts a port reset; completion is reported by ResetChanged.
func (p Ports) ResetPort(n uint8) error {
	if err := p.check(n); err != nil {
		return err
	}
	reg := p.Block().PORTSC(n)
	p.Update(reg, func(v uint64) uint64 {
		return v&^portPreserveWriteClear | 1<<PortReset
	})
	return nil
}
