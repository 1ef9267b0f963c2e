// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"encoding/binary"
	"fmt"
	"iter"
	"strings"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// CapabilityID identifies an extended capability, xHCI table 7-1.
type CapabilityID uint8

const (
	CapUSBLegacySupport         CapabilityID = 1
	CapSupportedProtocol        CapabilityID = 2
	CapExtendedPowerManagement  CapabilityID = 3
	CapIOVirtualization         CapabilityID = 4
	CapMessageInterrupt         CapabilityID = 5
	CapLocalMemory              CapabilityID = 6
	CapUSBDebug                 CapabilityID = 10
	CapExtendedMessageInterrupt CapabilityID = 17
)

func (id CapabilityID) String() string {
	switch id {
	case CapUSBLegacySupport:
		return "usb-legacy-support"
	case CapSupportedProtocol:
		return "supported-protocol"
	case CapExtendedPowerManagement:
		return "extended-power-management"
	case CapIOVirtualization:
		return "io-virtualization"
	case CapMessageInterrupt:
		return "message-interrupt"
	case CapLocalMemory:
		return "local-memory"
	case CapUSBDebug:
		return "usb-debug"
	case CapExtendedMessageInterrupt:
		return "extended-message-interrupt"
	default:
		return fmt.Sprintf("capability-%d", uint8(id))
	}
}

// ExtendedCapability is one entry of the extended capability list. The
// concrete type is UsbLegacySupport, SupportedProtocol or Other.
type ExtendedCapability interface {
	ID() CapabilityID
	// Offset is the byte offset of the entry from the MMIO base.
	Offset() uint64
}

type UsbLegacySupport struct {
	offset uint64
}

func (UsbLegacySupport) ID() CapabilityID {
	return CapUSBLegacySupport
}

func (c UsbLegacySupport) Offset() uint64 {
	return c.offset
}

// SupportedProtocol describes which root hub ports speak which USB revision.
type SupportedProtocol struct {
	offset        uint64
	MajorRevision uint8
	MinorRevision uint8
	Name          string
	// PortOffset is the first port number (from 1) of the range.
	PortOffset uint8
	PortCount  uint8
	SlotType   uint8
}

func (SupportedProtocol) ID() CapabilityID {
	return CapSupportedProtocol
}

func (c SupportedProtocol) Offset() uint64 {
	return c.offset
}

// Covers reports whether port n is in the compatible port range.
func (c SupportedProtocol) Covers(n uint8) bool {
	return n >= c.PortOffset && int(n) < int(c.PortOffset)+int(c.PortCount)
}

func (c SupportedProtocol) String() string {
	return fmt.Sprintf("%s %x.%02x ports %d-%d", c.Name, c.MajorRevision, c.MinorRevision,
		c.PortOffset, int(c.PortOffset)+int(c.PortCount)-1)
}

// Other is an entry whose ID is not decoded.
type Other struct {
	id     CapabilityID
	offset uint64
}

func (c Other) ID() CapabilityID {
	return c.id
}

func (c Other) Offset() uint64 {
	return c.offset
}

var regCapabilityHeader = mmio.Register{Name: "HEADER", Offset: 0x0, Width: mmio.Width32, Access: mmio.ReadOnly}

type capabilityHeader struct{}

func (capabilityHeader) Layout() *mmio.Layout {
	return &mmio.Layout{Name: "extended-capability", Size: 0x4, Registers: []mmio.Register{regCapabilityHeader}}
}

var (
	regProtocolRevision = mmio.Register{Name: "REVISION", Offset: 0x0, Width: mmio.Width32, Access: mmio.ReadOnly}
	regProtocolName     = mmio.Register{Name: "NAME", Offset: 0x4, Width: mmio.Width32, Access: mmio.ReadOnly}
	regProtocolPorts    = mmio.Register{Name: "PORTS", Offset: 0x8, Width: mmio.Width32, Access: mmio.ReadOnly}
	regProtocolSlotType = mmio.Register{Name: "SLOTTYPE", Offset: 0xc, Width: mmio.Width32, Access: mmio.ReadOnly}
)

type supportedProtocolBlock struct{}

func (supportedProtocolBlock) Layout() *mmio.Layout {
	return &mmio.Layout{
		Name:      "supported-protocol",
		Size:      0x10,
		Registers: []mmio.Register{regProtocolRevision, regProtocolName, regProtocolPorts, regProtocolSlotType},
	}
}

func readSupportedProtocol(region mmio.Region, offset uint64) (SupportedProtocol, error) {
	view, err := mmio.NewView(region, offset, supportedProtocolBlock{})
	if err != nil {
		return SupportedProtocol{}, err
	}
	revision := view.Load(regProtocolRevision)
	ports := view.Load(regProtocolPorts)

	var name [4]byte
	binary.LittleEndian.PutUint32(name[:], uint32(view.Load(regProtocolName)))

	return SupportedProtocol{
		offset:        offset,
		MinorRevision: uint8(mmio.Field(revision, 16, 23)),
		MajorRevision: uint8(mmio.Field(revision, 24, 31)),
		Name:          strings.TrimRight(string(name[:]), " \x00"),
		PortOffset:    uint8(mmio.Field(ports, 0, 7)),
		PortCount:     uint8(mmio.Field(ports, 8, 15)),
		SlotType:      uint8(mmio.Field(view.Load(regProtocolSlotType), 0, 4)),
	}, nil
}

// ExtendedCapabilities walks the list starting at byte offset start. A
// start of zero yields nothing. Entries outside the region end the walk
// with ErrMalformedCapabilityList.
func ExtendedCapabilities(region mmio.Region, start uint64) iter.Seq2[ExtendedCapability, error] {
	return func(yield func(ExtendedCapability, error) bool) {
		offset := start
		for offset != 0 {
			view, err := mmio.NewView(region, offset, capabilityHeader{})
			if err != nil {
				yield(nil, fmt.Errorf("%w: entry at %#x: %w", ErrMalformedCapabilityList, offset, err))
				return
			}
			header := view.Load(regCapabilityHeader)
			id := CapabilityID(mmio.Field(header, 0, 7))

			var capability ExtendedCapability
			switch id {
			case CapUSBLegacySupport:
				capability = UsbLegacySupport{offset: offset}
			case CapSupportedProtocol:
				protocol, err := readSupportedProtocol(region, offset)
				if err != nil {
					yield(nil, fmt.Errorf("%w: entry at %#x: %w", ErrMalformedCapabilityList, offset, err))
					return
				}
				capability = protocol
			default:
				capability = Other{id: id, offset: offset}
			}
			if !yield(capability, nil) {
				return
			}

			next := mmio.Field(header, 8, 15)
			if next == 0 {
				return
			}
			offset += next << 2
		}
	}
}

// FindExtendedCapability returns the first entry with the given ID.
func FindExtendedCapability(region mmio.Region, start uint64, id CapabilityID) (ExtendedCapability, bool, error) {
	for capability, err := range ExtendedCapabilities(region, start) {
		if err != nil {
			return nil, false, err
		}
		if capability.ID() == id {
			return capability, true, nil
		}
	}
	return nil, false, nil
}
