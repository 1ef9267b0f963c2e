// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// Doorbell target of doorbell 0.
const DoorbellTargetCommand = 0

// DoorbellArray holds the host controller doorbell (0) followed by one
// doorbell per device slot.
type DoorbellArray struct {
	Slots uint8
}

func (DoorbellArray) Doorbell(slot uint8) mmio.Register {
	return mmio.Register{
		Name:   fmt.Sprintf("DB%d", slot),
		Offset: uint64(slot) * 4,
		Width:  mmio.Width32,
		Access: mmio.WriteOnly,
	}
}

func (d DoorbellArray) Layout() *mmio.Layout {
	layout := &mmio.Layout{
		Name: "doorbells",
		Size: (uint64(d.Slots) + 1) * 4,
	}
	for slot := 0; slot <= int(d.Slots); slot++ {
		layout.Registers = append(layout.Registers, d.Doorbell(uint8(slot)))
	}
	return layout
}

// DoorbellValue encodes the target (bits 0..7) and stream id (bits 16..31).
func DoorbellValue(target uint8, streamID uint16) uint32 {
	return uint32(streamID)<<16 | uint32(target)
}

// Doorbells wraps the mutable doorbell handle.
type Doorbells struct {
	*mmio.Handle[DoorbellArray]
}

// Ring writes the doorbell of slot. The write is the trigger; there is
// nothing to read back.
func (d Doorbells) Ring(slot, target uint8, streamID uint16) error {
	if slot > d.Block().Slots {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSlot, slot, d.Block().Slots)
	}
	d.Store(d.Block().Doorbell(slot), uint64(DoorbellValue(target, streamID)))
	return nil
}

// RingCommand notifies the controller of new command ring entries.
func (d Doorbells) RingCommand() {
	d.Store(d.Block().Doorbell(0), DoorbellTargetCommand)
}
