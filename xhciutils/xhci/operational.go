// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// Operational registers, xHCI 5.4. Offsets are relative to CAPLENGTH.
var (
	RegUSBCmd     = mmio.Register{Name: "USBCMD", Offset: 0x00, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegUSBSts     = mmio.Register{Name: "USBSTS", Offset: 0x04, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegPageSize   = mmio.Register{Name: "PAGESIZE", Offset: 0x08, Width: mmio.Width32, Access: mmio.ReadOnly}
	RegDNCtrl     = mmio.Register{Name: "DNCTRL", Offset: 0x14, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegCRCRLow    = mmio.Register{Name: "CRCR_LO", Offset: 0x18, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegCRCRHigh   = mmio.Register{Name: "CRCR_HI", Offset: 0x1c, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegDCBAAPLow  = mmio.Register{Name: "DCBAAP_LO", Offset: 0x30, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegDCBAAPHigh = mmio.Register{Name: "DCBAAP_HI", Offset: 0x34, Width: mmio.Width32, Access: mmio.ReadWrite}
	RegConfig     = mmio.Register{Name: "CONFIG", Offset: 0x38, Width: mmio.Width32, Access: mmio.ReadWrite}
)

// USBCMD bits.
const (
	CmdRunStop                = 0
	CmdHostControllerReset    = 1
	CmdInterrupterEnable      = 2
	CmdHostSystemErrorEnable  = 3
	CmdLightReset             = 7
	CmdControllerSaveState    = 8
	CmdControllerRestoreState = 9
	CmdEnableWrapEvent        = 10
	CmdEnableU3MFINDEXStop    = 11
)

// USBSTS bits.
const (
	StsHalted              = 0
	StsHostSystemError     = 2
	StsEventInterrupt      = 3
	StsPortChangeDetect    = 4
	StsSaveStateStatus     = 8
	StsRestoreStateStatus  = 9
	StsSaveRestoreError    = 10
	StsControllerNotReady  = 11
	StsHostControllerError = 12
)

// statusClearMask holds the write-1-to-clear bits of USBSTS.
const statusClearMask = 1<<StsHostSystemError | 1<<StsEventInterrupt | 1<<StsPortChangeDetect | 1<<StsSaveRestoreError

// CRCR control bits.
const (
	CrcrRingCycleState     = 0
	CrcrCommandStop        = 1
	CrcrCommandAbort       = 2
	CrcrCommandRingRunning = 3

	crcrPointerShift = 6
	crcrControlMask  = 1<<crcrPointerShift - 1
)

type OperationalBlock struct{}

func (OperationalBlock) Layout() *mmio.Layout {
	return &mmio.Layout{
		Name: "operational",
		Size: 0x3c,
		Registers: []mmio.Register{
			RegUSBCmd, RegUSBSts, RegPageSize, RegDNCtrl,
			RegCRCRLow, RegCRCRHigh, RegDCBAAPLow, RegDCBAAPHigh, RegConfig,
		},
	}
}

// Status is a USBSTS value.
type Status uint32

func (s Status) Halted() bool              { return mmio.Bit(uint64(s), StsHalted) }
func (s Status) HostSystemError() bool     { return mmio.Bit(uint64(s), StsHostSystemError) }
func (s Status) EventInterrupt() bool      { return mmio.Bit(uint64(s), StsEventInterrupt) }
func (s Status) PortChangeDetect() bool    { return mmio.Bit(uint64(s), StsPortChangeDetect) }
func (s Status) ControllerNotReady() bool  { return mmio.Bit(uint64(s), StsControllerNotReady) }
func (s Status) HostControllerError() bool { return mmio.Bit(uint64(s), StsHostControllerError) }

func (s Status) String() string {
	return fmt.Sprintf("%#08x(HCH=%t HSE=%t CNR=%t HCE=%t)",
		uint32(s), s.Halted(), s.HostSystemError(), s.ControllerNotReady(), s.HostControllerError())
}

// PageSize decodes PAGESIZE: bit n set means pages of 2^(n+12) bytes. The
// smallest supported size is returned.
func PageSize(raw uint32) uint64 {
	for n := uint(0); n < 16; n++ {
		if mmio.Bit(uint64(raw), n) {
			return 1 << (n + 12)
		}
	}
	return 0
}

// Operational wraps the mutable operational register handle.
type Operational struct {
	*mmio.Handle[OperationalBlock]
}

func (o Operational) Status() Status {
	return Status(o.Load(RegUSBSts))
}

// AcknowledgeStatus clears the given write-1-to-clear USBSTS bits. Other
// bits are written as zero and keep their state.
func (o Operational) AcknowledgeStatus(bits uint32) {
	o.Store(RegUSBSts, uint64(bits&statusClearMask))
}

func (o Operational) PageSize() uint64 {
	return PageSize(uint32(o.Load(RegPageSize)))
}

// CommandRingPointer reassembles the ring pointer from both halves. The
// pointer is (low >> 6) | (high << 26) in 64-byte units.
func (o Operational) CommandRingPointer() uint64 {
	low := o.Load(RegCRCRLow)
	high := o.Load(RegCRCRHigh)
	return ((low >> crcrPointerShift) | (high << (32 - crcrPointerShift))) << crcrPointerShift
}

// SetCommandRingPointer replaces the pointer bits and keeps the control bits.
func (o Operational) SetCommandRingPointer(pointer uint64) error {
	if pointer&crcrControlMask != 0 {
		return fmt.Errorf("%w: command ring %#x is not 64-byte aligned", ErrMisalignedPointer, pointer)
	}
	control := o.Load(RegCRCRLow) & crcrControlMask
	o.Store(RegCRCRLow, control|pointer&0xffff_ffc0)
	o.Store(RegCRCRHigh, pointer>>32)
	return nil
}

func (o Operational) CommandRingControl(bit uint) bool {
	return o.ReadBit(RegCRCRLow, bit)
}

func (o Operational) SetCommandRingControl(bit uint, on bool) {
	o.WriteBit(RegCRCRLow, bit, on)
}

func (o Operational) DeviceContextBaseAddressArray() uint64 {
	return o.Load(RegDCBAAPHigh)<<32 | o.Load(RegDCBAAPLow)
}

// SetDeviceContextBaseAddressArray writes DCBAAP; bits 0..5 are reserved.
func (o Operational) SetDeviceContextBaseAddressArray(pointer uint64) error {
	if pointer&0x3f != 0 {
		return fmt.Errorf("%w: device context array %#x is not 64-byte aligned", ErrMisalignedPointer, pointer)
	}
	o.Store(RegDCBAAPLow, pointer&0xffff_ffff)
	o.Store(RegDCBAAPHigh, pointer>>32)
	return nil
}

// MaxSlotsEnabled is CONFIG bits 0..7.
func (o Operational) MaxSlotsEnabled() uint8 {
	return uint8(mmio.Field(o.Load(RegConfig), 0, 7))
}

func (o Operational) SetMaxSlotsEnabled(slots uint8) {
	o.Update(RegConfig, func(v uint64) uint64 {
		return mmio.SetField(v, 0, 7, uint64(slots))
	})
}

// DeviceNotifications reads DNCTRL; bit n enables notification type n.
func (o Operational) DeviceNotifications() uint16 {
	return uint16(mmio.Field(o.Load(RegDNCtrl), 0, 15))
}

func (o Operational) SetDeviceNotifications(mask uint16) {
	o.Update(RegDNCtrl, func(v uint64) uint64 {
		return mmio.SetField(v, 0, 15, uint64(mask))
	})
}
