// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// Capability registers, xHCI 5.3.
var (
	RegCapLength  = mmio.Register{Name: "CAPLENGTH", Offset: 0x00, Width: mmio.Width8, Access: mmio.ReadOnly}
	RegHCIVersion = mmio.Register{Name: "HCIVERSION", Offset: 0x02, Width: mmio.Width16, Access: mmio.ReadOnly}
	RegHCSParams1 = mmio.Register{Name: "HCSPARAMS1", Offset: 0x04, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegHCSParams2 = mmio.Register{Name: "HCSPARAMS2", Offset: 0x08, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegHCSParams3 = mmio.Register{Name: "HCSPARAMS3", Offset: 0x0c, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegHCCParams1 = mmio.Register{Name: "HCCPARAMS1", Offset: 0x10, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegDBOff      = mmio.Register{Name: "DBOFF", Offset: 0x14, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegRTSOff     = mmio.Register{Name: "RTSOFF", Offset: 0x18, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegHCCParams2 = mmio.Register{Name: "HCCPARAMS2", Offset: 0x1c, Width: mmio.Width32, Access: mmio.ReadOnly}
)

type CapabilityBlock struct{}

func (CapabilityBlock) Layout() *mmio.Layout {
	return &mmio.Layout{
		Name: "capability",
		Size: 0x20,
		Registers: []mmio.Register{
			RegCapLength, RegHCIVersion,
			RegHCSParams1, RegHCSParams2, RegHCSParams3,
			RegHCCParams1, RegDBOff, RegRTSOff, RegHCCParams2,
		},
	}
}

// HCSParams1 is the first structural parameters register.
type HCSParams1 uint32

func (p HCSParams1) MaxDeviceSlots() uint8 {
	return uint8(mmio.Field(uint64(p), 0, 7))
}

func (p HCSParams1) MaxInterrupters() uint16 {
	return uint16(mmio.Field(uint64(p), 8, 18))
}

func (p HCSParams1) MaxPorts() uint8 {
	return uint8(mmio.Field(uint64(p), 24, 31))
}

// HCSParams2 is the second structural parameters register.
type HCSParams2 uint32

// IsochronousSchedulingThreshold is IST, bits 0..3.
func (p HCSParams2) IsochronousSchedulingThreshold() uint8 {
	return uint8(mmio.Field(uint64(p), 0, 3))
}

// ERSTMax is the exponent of the maximum event ring segment table size.
func (p HCSParams2) ERSTMax() uint8 {
	return uint8(mmio.Field(uint64(p), 4, 7))
}

// MaxScratchpadBuffers joins the high (21..25) and low (27..31) halves.
func (p HCSParams2) MaxScratchpadBuffers() uint16 {
	hi := mmio.Field(uint64(p), 21, 25)
	lo := mmio.Field(uint64(p), 27, 31)
	return uint16(hi<<5 | lo)
}

func (p HCSParams2) ScratchpadRestore() bool {
	return mmio.Bit(uint64(p), 26)
}

// HCSParams3 is the third structural parameters register.
type HCSParams3 uint32

func (p HCSParams3) U1DeviceExitLatency() uint8 {
	return uint8(mmio.Field(uint64(p), 0, 7))
}

func (p HCSParams3) U2DeviceExitLatency() uint16 {
	return uint16(mmio.Field(uint64(p), 16, 31))
}

// HCCParams1 is the first capability parameters register.
type HCCParams1 uint32

func (p HCCParams1) AddressingCapability64() bool    { return mmio.Bit(uint64(p), 0) }
func (p HCCParams1) BandwidthNegotiation() bool      { return mmio.Bit(uint64(p), 1) }
func (p HCCParams1) ContextSize64() bool             { return mmio.Bit(uint64(p), 2) }
func (p HCCParams1) PortPowerControl() bool          { return mmio.Bit(uint64(p), 3) }
func (p HCCParams1) PortIndicators() bool            { return mmio.Bit(uint64(p), 4) }
func (p HCCParams1) LightResetCapability() bool      { return mmio.Bit(uint64(p), 5) }
func (p HCCParams1) LatencyToleranceMessaging() bool { return mmio.Bit(uint64(p), 6) }
func (p HCCParams1) NoSecondarySID() bool            { return mmio.Bit(uint64(p), 7) }
func (p HCCParams1) ParseAllEventData() bool         { return mmio.Bit(uint64(p), 8) }
func (p HCCParams1) StoppedShortPacket() bool        { return mmio.Bit(uint64(p), 9) }
func (p HCCParams1) StoppedEDTLA() bool              { return mmio.Bit(uint64(p), 10) }
func (p HCCParams1) ContiguousFrameID() bool         { return mmio.Bit(uint64(p), 11) }

func (p HCCParams1) MaxPrimaryStreamArraySize() uint8 {
	return uint8(mmio.Field(uint64(p), 12, 15))
}

// ExtendedCapabilitiesPointer is xECP, a 32-bit word offset from the MMIO base.
func (p HCCParams1) ExtendedCapabilitiesPointer() uint16 {
	return uint16(mmio.Field(uint64(p), 16, 31))
}

// ExtendedCapabilitiesOffset converts the 32-bit word pointer into a byte
// offset from the MMIO base. Zero means there is no list.
func (p HCCParams1) ExtendedCapabilitiesOffset() uint64 {
	return uint64(p.ExtendedCapabilitiesPointer()) << 2
}

// HCCParams2 is the second capability parameters register.
type HCCParams2 uint32

func (p HCCParams2) U3EntryCapability() bool               { return mmio.Bit(uint64(p), 0) }
func (p HCCParams2) ConfigureEndpointMaxExitLatency() bool { return mmio.Bit(uint64(p), 1) }
func (p HCCParams2) ForceSaveContext() bool                { return mmio.Bit(uint64(p), 2) }
func (p HCCParams2) ComplianceTransition() bool            { return mmio.Bit(uint64(p), 3) }
func (p HCCParams2) LargeESITPayload() bool                { return mmio.Bit(uint64(p), 4) }
func (p HCCParams2) ConfigurationInformation() bool        { return mmio.Bit(uint64(p), 5) }
func (p HCCParams2) ExtendedTBC() bool                     { return mmio.Bit(uint64(p), 6) }

// Capabilities is a snapshot of the capability registers.
type Capabilities struct {
	Length     uint8
	Version    uint16
	HCSParams1 HCSParams1
	HCSParams2 HCSParams2
	HCSParams3 HCSParams3
	HCCParams1 HCCParams1
	HCCParams2 HCCParams2
	// DoorbellOffset and RuntimeOffset are byte offsets from the MMIO base
	// with their reserved low bits masked.
	DoorbellOffset uint64
	RuntimeOffset  uint64
}

// ReadCapabilities reads every capability register once.
func ReadCapabilities(view *mmio.View[CapabilityBlock]) Capabilities {
	return Capabilities{
		Length:         uint8(view.Load(RegCapLength)),
		Version:        uint16(view.Load(RegHCIVersion)),
		HCSParams1:     HCSParams1(view.Load(RegHCSParams1)),
		HCSParams2:     HCSParams2(view.Load(RegHCSParams2)),
		HCSParams3:     HCSParams3(view.Load(RegHCSParams3)),
		HCCParams1:     HCCParams1(view.Load(RegHCCParams1)),
		HCCParams2:     HCCParams2(view.Load(RegHCCParams2)),
		DoorbellOffset: view.Load(RegDBOff) &^ 0x3,
		RuntimeOffset:  view.Load(RegRTSOff) &^ 0x1f,
	}
}

// OperationalOffset is the byte offset of the operational registers.
func (c Capabilities) OperationalOffset() uint64 {
	return uint64(c.Length)
}

func (c Capabilities) String() string {
	return fmt.Sprintf("xHCI %x.%02x slots %d interrupters %d ports %d",
		c.Version>>8, c.Version&0xff,
		c.HCSParams1.MaxDeviceSlots(), c.HCSParams1.MaxInterrupters(), c.HCSParams1.MaxPorts())
}
