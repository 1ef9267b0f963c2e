// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// USB legacy support registers, xHCI 7.1. Offsets are relative to the
// capability entry.
var (
	RegUSBLegSup    = mmio.Register{Name: "USBLEGSUP", Offset: 0x0, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegUSBLegCtlSts = mmio.Register{Name: "USBLEGCTLSTS", Offset: 0x4, Width: mmio.Width32, Access: mmio.ReadWrite}
)

// USBLEGSUP semaphores.
const (
	LegacyBIOSOwned = 16
	LegacyOSOwned   = 24
)

// USBLEGCTLSTS SMI enables and write-1-to-clear SMI events.
const (
	legacySMIEnableMask = 1<<0 | 1<<4 | 1<<13 | 1<<14 | 1<<15
	legacySMIEventMask  = 1<<29 | 1<<30 | 1<<31
)

type LegacySupportBlock struct{}

func (LegacySupportBlock) Layout() *mmio.Layout {
	return &mmio.Layout{
		Name:      "usb-legacy-support",
		Size:      0x8,
		Registers: []mmio.Register{RegUSBLegSup, RegUSBLegCtlSts},
	}
}

// LegacySupport wraps the mutable handle on the BIOS/OS handoff semaphores.
type LegacySupport struct {
	*mmio.Handle[LegacySupportBlock]
}

func (l LegacySupport) BIOSOwned() bool {
	return l.ReadBit(RegUSBLegSup, LegacyBIOSOwned)
}

func (l LegacySupport) OSOwned() bool {
	return l.ReadBit(RegUSBLegSup, LegacyOSOwned)
}

// Granted reports whether firmware has released the controller to the OS.
func (l LegacySupport) Granted() bool {
	v := l.Load(RegUSBLegSup)
	return !mmio.Bit(v, LegacyBIOSOwned) && mmio.Bit(v, LegacyOSOwned)
}

// RequestOwnership sets the OS owned semaphore.
func (l LegacySupport) RequestOwnership() {
	l.WriteBit(RegUSBLegSup, LegacyOSOwned, true)
}

// ForceOwnership clears the BIOS owned semaphore on behalf of firmware that
// never answered the request.
func (l LegacySupport) ForceOwnership() {
	l.Update(RegUSBLegSup, func(v uint64) uint64 {
		return mmio.SetBit(mmio.SetBit(v, LegacyBIOSOwned, false), LegacyOSOwned, true)
	})
}

// DisableSMI clears every SMI enable and acknowledges pending SMI events.
func (l LegacySupport) DisableSMI() {
	l.Update(RegUSBLegCtlSts, func(v uint64) uint64 {
		return v&^legacySMIEnableMask | legacySMIEventMask
	})
}

// SMIEnables returns the SMI enable bits that are still set.
func (l LegacySupport) SMIEnables() uint32 {
	return uint32(l.Load(RegUSBLegCtlSts) & legacySMIEnableMask)
}
