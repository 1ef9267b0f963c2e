// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci_test

import (
	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func bind[B mmio.Block](mem *mmio.Memory, block B) *mmio.Handle[B] {
	handle, err := mmio.Bind("test", mem, 0, block)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(handle.Release)
	return handle
}

var _ = Describe("Capability registers", func() {

	It("should decode HCSPARAMS1", func() {
		params := xhci.HCSParams1(0x0300_1005)
		Expect(params.MaxDeviceSlots()).To(Equal(uint8(0x05)))
		Expect(params.MaxInterrupters()).To(Equal(uint16(0x10)))
		Expect(params.MaxPorts()).To(Equal(uint8(0x03)))
	})

	It("should decode HCSPARAMS2", func() {
		params := xhci.HCSParams2(2<<27 | 1<<26 | 1<<21 | 0x8<<4 | 0x3)
		Expect(params.IsochronousSchedulingThreshold()).To(Equal(uint8(3)))
		Expect(params.ERSTMax()).To(Equal(uint8(8)))
		Expect(params.MaxScratchpadBuffers()).To(Equal(uint16(1<<5 | 2)))
		Expect(params.ScratchpadRestore()).To(BeTrue())
	})

	It("should decode HCSPARAMS3", func() {
		params := xhci.HCSParams3(0x0200_000a)
		Expect(params.U1DeviceExitLatency()).To(Equal(uint8(0x0a)))
		Expect(params.U2DeviceExitLatency()).To(Equal(uint16(0x0200)))
	})

	It("should decode HCCPARAMS1 flags and the extended capabilities pointer", func() {
		params := xhci.HCCParams1(0x2000_0000 | 0x3<<12 | 1<<2 | 1<<0)
		Expect(params.AddressingCapability64()).To(BeTrue())
		Expect(params.BandwidthNegotiation()).To(BeFalse())
		Expect(params.ContextSize64()).To(BeTrue())
		Expect(params.MaxPrimaryStreamArraySize()).To(Equal(uint8(3)))
		Expect(params.ExtendedCapabilitiesPointer()).To(Equal(uint16(0x2000)))
		Expect(params.ExtendedCapabilitiesOffset()).To(Equal(uint64(0x8000)))
	})

	It("should snapshot the capability block", func() {
		mem := mmio.NewMemory(0, 0x20)
		mem.Poke(0x00, mmio.Width8, 0x80)
		mem.Poke(0x02, mmio.Width16, 0x0120)
		mem.Poke(0x04, mmio.Width32, 0x0300_1005)
		mem.Poke(0x14, mmio.Width32, 0x3003)
		mem.Poke(0x18, mmio.Width32, 0x201f)

		view, err := mmio.NewView(mem, 0, xhci.CapabilityBlock{})
		Expect(err).NotTo(HaveOccurred())
		caps := xhci.ReadCapabilities(view)
		Expect(caps.OperationalOffset()).To(Equal(uint64(0x80)))
		Expect(caps.DoorbellOffset).To(Equal(uint64(0x3000)))
		Expect(caps.RuntimeOffset).To(Equal(uint64(0x2000)))
		Expect(caps.String()).To(Equal("xHCI 1.20 slots 5 interrupters 16 ports 3"))
	})
})

var _ = Describe("Operational registers", func() {

	var (
		mem *mmio.Memory
		op  xhci.Operational
	)

	BeforeEach(func() {
		mem = mmio.NewMemory(0x1000, 0x40)
		op = xhci.Operational{Handle: bind(mem, xhci.OperationalBlock{})}
	})

	It("should decode the page size", func() {
		Expect(xhci.PageSize(0x1)).To(Equal(uint64(4096)))
		Expect(xhci.PageSize(0x4)).To(Equal(uint64(16384)))
		Expect(xhci.PageSize(0)).To(BeZero())

		mem.Poke(0x08, mmio.Width32, 0x2)
		Expect(op.PageSize()).To(Equal(uint64(8192)))
	})

	It("should round trip the command ring pointer and keep control bits", func() {
		mem.Poke(0x18, mmio.Width32, 1<<xhci.CrcrRingCycleState|1<<xhci.CrcrCommandStop)

		Expect(op.SetCommandRingPointer(0x1000_0000)).To(Succeed())
		Expect(op.CommandRingPointer()).To(Equal(uint64(0x1000_0000)))
		Expect(op.CommandRingControl(xhci.CrcrRingCycleState)).To(BeTrue())
		Expect(op.CommandRingControl(xhci.CrcrCommandStop)).To(BeTrue())
		Expect(op.CommandRingControl(xhci.CrcrCommandAbort)).To(BeFalse())

		By("replacing the pointer bits across both halves")
		Expect(op.SetCommandRingPointer(0x1_2345_6740)).To(Succeed())
		Expect(op.CommandRingPointer()).To(Equal(uint64(0x1_2345_6740)))
		Expect(mem.Peek(0x18, mmio.Width32)).To(Equal(uint64(0x2345_6743)))
		Expect(mem.Peek(0x1c, mmio.Width32)).To(Equal(uint64(0x1)))
	})

	It("should reject a misaligned command ring pointer", func() {
		Expect(op.SetCommandRingPointer(0x1000_0000)).To(Succeed())
		Expect(op.SetCommandRingPointer(0x1000_0010)).To(MatchError(xhci.ErrMisalignedPointer))
		Expect(op.CommandRingPointer()).To(Equal(uint64(0x1000_0000)))
	})

	It("should set control bits without touching the pointer", func() {
		Expect(op.SetCommandRingPointer(0x2000_0040)).To(Succeed())
		op.SetCommandRingControl(xhci.CrcrCommandAbort, true)
		Expect(op.CommandRingControl(xhci.CrcrCommandAbort)).To(BeTrue())
		Expect(op.CommandRingPointer()).To(Equal(uint64(0x2000_0040)))
	})

	It("should write the device context base address array pointer", func() {
		Expect(op.SetDeviceContextBaseAddressArray(0x2_0000_1000)).To(Succeed())
		Expect(op.DeviceContextBaseAddressArray()).To(Equal(uint64(0x2_0000_1000)))
		Expect(op.SetDeviceContextBaseAddressArray(0x1008)).To(MatchError(xhci.ErrMisalignedPointer))
	})

	It("should configure the enabled device slots", func() {
		mem.Poke(0x38, mmio.Width32, 0x300)
		op.SetMaxSlotsEnabled(16)
		Expect(op.MaxSlotsEnabled()).To(Equal(uint8(16)))
		Expect(mem.Peek(0x38, mmio.Width32)).To(Equal(uint64(0x310)))
	})

	It("should set device notifications", func() {
		op.SetDeviceNotifications(0x2)
		Expect(op.DeviceNotifications()).To(Equal(uint16(0x2)))
	})

	It("should only write write-1-to-clear status bits", func() {
		op.AcknowledgeStatus(1<<xhci.StsHalted | 1<<xhci.StsEventInterrupt | 1<<xhci.StsControllerNotReady)
		Expect(mem.Peek(0x04, mmio.Width32)).To(Equal(uint64(1 << xhci.StsEventInterrupt)))
	})

	It("should decode the status register", func() {
		mem.Poke(0x04, mmio.Width32, 1<<xhci.StsHalted|1<<xhci.StsControllerNotReady)
		status := op.Status()
		Expect(status.Halted()).To(BeTrue())
		Expect(status.ControllerNotReady()).To(BeTrue())
		Expect(status.HostSystemError()).To(BeFalse())
	})
})

var _ = Describe("Port registers", func() {

	var (
		mem   *mmio.Memory
		ports xhci.Ports
	)

	BeforeEach(func() {
		mem = mmio.NewMemory(0x1000, 0x40)
		ports = xhci.Ports{Handle: bind(mem, xhci.PortArray{Count: 4})}
	})

	It("should decode port status", func() {
		mem.Poke(0x10, mmio.Width32, 1<<0|1<<1|1<<9|4<<10|1<<17)
		status, err := ports.Status(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Connected()).To(BeTrue())
		Expect(status.Enabled()).To(BeTrue())
		Expect(status.Powered()).To(BeTrue())
		Expect(status.Speed()).To(Equal(xhci.PortSpeed(4)))
		Expect(status.Speed().String()).To(Equal("super"))
		Expect(status.ConnectChanged()).To(BeTrue())
	})

	DescribeTable("should reject invalid port numbers",
		func(n int) {
			_, err := ports.Status(uint8(n))
			Expect(err).To(MatchError(xhci.ErrInvalidPort))
		},
		Entry("port 0", 0),
		Entry("beyond max ports", 5),
	)

	It("should acknowledge change bits without disabling the port", func() {
		mem.Poke(0x00, mmio.Width32, 1<<0|1<<1|1<<9|1<<17|1<<21)
		Expect(ports.AcknowledgeChanges(1, 1<<xhci.PortConnectChange)).To(Succeed())
		Expect(mem.Peek(0x00, mmio.Width32)).To(Equal(uint64(1<<0 | 1<<9 | 1<<17)))
	})

	It("should start a port reset", func() {
		mem.Poke(0x30, mmio.Width32, 1<<0|1<<1|1<<9|1<<21)
		Expect(ports.ResetPort(4)).To(Succeed())
		Expect(mem.Peek(0x30, mmio.Width32)).To(Equal(uint64(1<<0 | 1<<9 | 1<<4)))
	})
})

var _ = Describe("Runtime registers", func() {

	var (
		mem     *mmio.Memory
		runtime xhci.Runtime
	)

	BeforeEach(func() {
		mem = mmio.NewMemory(0x2000, 0x80)
		runtime = xhci.Runtime{Handle: bind(mem, xhci.RuntimeBlock{Interrupters: 2})}
	})

	It("should read the 14-bit microframe index", func() {
		mem.Poke(0x00, mmio.Width32, 0xffff)
		Expect(runtime.MicroframeIndex()).To(Equal(uint16(0x3fff)))
	})

	It("should reject interrupters beyond the bound block", func() {
		_, err := runtime.Interrupter(2)
		Expect(err).To(MatchError(xhci.ErrInvalidInterrupter))
	})

	It("should manage interrupter 1", func() {
		interrupter, err := runtime.Interrupter(1)
		Expect(err).NotTo(HaveOccurred())

		By("enabling without acknowledging a pending interrupt")
		mem.Poke(0x40, mmio.Width32, 1<<xhci.ImanInterruptPending)
		interrupter.SetEnabled(true)
		Expect(mem.Peek(0x40, mmio.Width32)).To(Equal(uint64(1 << xhci.ImanInterruptEnable)))

		By("acknowledging by writing one")
		interrupter.AcknowledgePending()
		Expect(mem.Peek(0x40, mmio.Width32)).To(Equal(uint64(1<<xhci.ImanInterruptEnable | 1<<xhci.ImanInterruptPending)))

		interrupter.SetModeration(4000, 0)
		interval, counter := interrupter.Moderation()
		Expect(interval).To(Equal(uint16(4000)))
		Expect(counter).To(BeZero())

		interrupter.SetEventRingSegmentTableSize(1)
		Expect(interrupter.EventRingSegmentTableSize()).To(Equal(uint16(1)))
	})

	It("should check the event ring segment table alignment", func() {
		interrupter, err := runtime.Interrupter(0)
		Expect(err).NotTo(HaveOccurred())

		Expect(interrupter.SetEventRingSegmentTableBase(0x1_0000_0040)).To(Succeed())
		Expect(interrupter.EventRingSegmentTableBase()).To(Equal(uint64(0x1_0000_0040)))
		Expect(interrupter.SetEventRingSegmentTableBase(0x1_0000_0020)).To(MatchError(xhci.ErrMisalignedPointer))
	})

	It("should write the dequeue pointer with segment index and busy flag", func() {
		interrupter, err := runtime.Interrupter(0)
		Expect(err).NotTo(HaveOccurred())

		Expect(interrupter.SetDequeuePointer(0x8000_1000, 2, true)).To(Succeed())
		Expect(mem.Peek(0x38, mmio.Width64)).To(Equal(uint64(0x8000_100a)))
		Expect(interrupter.DequeuePointer()).To(Equal(uint64(0x8000_1000)))
		Expect(interrupter.DequeueSegmentIndex()).To(Equal(uint8(2)))
		Expect(interrupter.EventHandlerBusy()).To(BeTrue())

		Expect(interrupter.SetDequeuePointer(0x8000_1008, 0, false)).To(MatchError(xhci.ErrMisalignedPointer))
		Expect(interrupter.SetDequeuePointer(0x8000_1000, 8, false)).NotTo(Succeed())
	})
})

var _ = Describe("Doorbell registers", func() {

	It("should ring a slot doorbell with target and stream id", func() {
		mem := mmio.NewMemory(0x3000, 0x10)
		doorbells := xhci.Doorbells{Handle: bind(mem, xhci.DoorbellArray{Slots: 3})}

		Expect(doorbells.Ring(2, 1, 0x5)).To(Succeed())
		Expect(mem.Peek(0x08, mmio.Width32)).To(Equal(uint64(0x0005_0001)))

		doorbells.RingCommand()
		Expect(mem.Peek(0x00, mmio.Width32)).To(BeZero())

		Expect(doorbells.Ring(4, 1, 0)).To(MatchError(xhci.ErrInvalidSlot))

		By("refusing to read a doorbell back")
		Expect(func() { doorbells.Load(doorbells.Block().Doorbell(2)) }).To(Panic())
	})

	It("should encode doorbell values", func() {
		Expect(xhci.DoorbellValue(0xff, 0xffff)).To(Equal(uint32(0xffff_00ff)))
	})
})
