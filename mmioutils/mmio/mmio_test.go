// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio_test

import (
	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	log "sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	regID      = mmio.Register{Name: "ID", Offset: 0x00, Width: mmio.Width8, Access: mmio.ReadOnly}
	regVersion = mmio.Register{Name: "VERSION", Offset: 0x02, Width: mmio.Width16, Access: mmio.ReadOnly}
	regControl = mmio.Register{Name: "CONTROL", Offset: 0x04, Width: mmio.Width32, Access: mmio.ReadWrite}
	regPointer = mmio.Register{Name: "POINTER", Offset: 0x08, Width: mmio.Width64, Access: mmio.ReadWrite}
	regKick    = mmio.Register{Name: "KICK", Offset: 0x10, Width: mmio.Width32, Access: mmio.WriteOnly}
)

type testBlock struct{}

func (testBlock) Layout() *mmio.Layout {
	return &mmio.Layout{
		Name:      "test",
		Size:      0x14,
		Registers: []mmio.Register{regID, regVersion, regControl, regPointer, regKick},
	}
}

type brokenBlock struct{}

func (brokenBlock) Layout() *mmio.Layout {
	return &mmio.Layout{
		Name: "broken",
		Size: 0x08,
		Registers: []mmio.Register{
			{Name: "UNALIGNED", Offset: 0x02, Width: mmio.Width32},
			{Name: "OUTSIDE", Offset: 0x08, Width: mmio.Width32},
		},
	}
}

var _ = Describe("Bit helpers", func() {

	It("should read and write single bits", func() {
		Expect(mmio.Bit(0b1010, 1)).To(BeTrue())
		Expect(mmio.Bit(0b1010, 2)).To(BeFalse())
		Expect(mmio.SetBit(0b1010, 0, true)).To(Equal(uint64(0b1011)))
		Expect(mmio.SetBit(0b1010, 3, false)).To(Equal(uint64(0b0010)))
	})

	It("should extract and replace fields", func() {
		Expect(mmio.Field(0x0300_1005, 8, 18)).To(Equal(uint64(0x10)))
		Expect(mmio.Field(0x0300_1005, 24, 31)).To(Equal(uint64(0x03)))
		Expect(mmio.SetField(0xffff_ffff, 8, 15, 0x12)).To(Equal(uint64(0xffff_12ff)))
		Expect(mmio.Field(^uint64(0), 0, 63)).To(Equal(^uint64(0)))
	})
})

var _ = Describe("Memory region", func() {

	It("should access every width little endian", func() {
		mem := mmio.NewMemory(0x1000, 0x20)
		mem.Store(0x00, mmio.Width32, 0x11223344)
		Expect(mem.Load(0x00, mmio.Width8)).To(Equal(uint64(0x44)))
		Expect(mem.Load(0x02, mmio.Width16)).To(Equal(uint64(0x1122)))

		mem.Store(0x08, mmio.Width64, 0x0102030405060708)
		Expect(mem.Load(0x0c, mmio.Width32)).To(Equal(uint64(0x01020304)))
	})

	It("should run hooks around accesses", func() {
		mem := mmio.NewMemory(0, 0x10)
		var stored []uint64
		mem.OnStore(func(m *mmio.Memory, offset uint64, width mmio.Width, value uint64) {
			stored = append(stored, value)
			m.Poke(0x04, mmio.Width32, value+1)
		})
		loads := 0
		mem.OnLoad(func(*mmio.Memory, uint64, mmio.Width, uint64) {
			loads++
		})

		mem.Store(0x00, mmio.Width32, 41)
		Expect(stored).To(Equal([]uint64{41}))
		Expect(mem.Load(0x04, mmio.Width32)).To(Equal(uint64(42)))
		Expect(loads).To(Equal(1))

		By("not running hooks for peeks")
		Expect(mem.Peek(0x04, mmio.Width32)).To(Equal(uint64(42)))
		Expect(loads).To(Equal(1))
	})

	It("should panic on misaligned or out of range accesses", func() {
		mem := mmio.NewMemory(0, 0x10)
		Expect(func() { mem.Load(0x02, mmio.Width32) }).To(PanicWith(MatchError(mmio.ErrMisaligned)))
		Expect(func() { mem.Load(0x10, mmio.Width32) }).To(PanicWith(MatchError(mmio.ErrOutOfRange)))
	})

	It("should map and unmap through the memory mapper", func() {
		mem := mmio.NewMemory(0xfe00_0000, 0x1000)
		mapper := mmio.NewMemoryMapper(mem)

		region, err := mapper.Map(0xfe00_0000, 0x100)
		Expect(err).NotTo(HaveOccurred())
		Expect(region.PhysicalAddress()).To(Equal(uint64(0xfe00_0000)))
		Expect(mapper.Mapped(mem)).To(Equal(1))

		_, err = mapper.Map(0xfd00_0000, 0x100)
		Expect(err).To(MatchError(mmio.ErrOutOfRange))

		Expect(mapper.Unmap(region)).To(Succeed())
		Expect(mapper.Unmap(region)).To(MatchError(mmio.ErrNotMapped))
	})
})

var _ = Describe("Register handles", func() {

	It("should reject invalid register tables", func() {
		_, err := mmio.NewView(mmio.NewMemory(0, 0x100), 0, brokenBlock{})
		Expect(err).To(MatchError(mmio.ErrMisaligned))
		Expect(err).To(MatchError(mmio.ErrOutOfRange))
	})

	It("should reject blocks beyond the region", func() {
		_, err := mmio.NewView(mmio.NewMemory(0, 0x20), 0x10, testBlock{})
		Expect(err).To(MatchError(mmio.ErrOutOfRange))
	})

	It("should read through a view", func() {
		mem := mmio.NewMemory(0x2000, 0x40)
		mem.Poke(0x20, mmio.Width32, 0x0120_0020)

		view, err := mmio.NewView(mem, 0x20, testBlock{})
		Expect(err).NotTo(HaveOccurred())
		Expect(view.PhysicalAddress()).To(Equal(uint64(0x2020)))
		Expect(view.Load(regID)).To(Equal(uint64(0x20)))
		Expect(view.Load(regVersion)).To(Equal(uint64(0x0120)))
		Expect(view.ReadBit(regID, 5)).To(BeTrue())

		By("refusing to read write-only registers")
		Expect(func() { view.Load(regKick) }).To(Panic())
	})

	It("should allow a single mutable handle per region", func() {
		mem := mmio.NewMemory(0x3000, 0x40)

		handle, err := mmio.Bind("first", mem, 0, testBlock{})
		Expect(err).NotTo(HaveOccurred())

		By("rejecting an overlapping handle")
		_, err = mmio.Bind("second", mem, 0x10, testBlock{})
		Expect(err).To(MatchError(mmio.ErrRegionClaimed))

		By("accepting a disjoint handle")
		other, err := mmio.Bind("third", mem, 0x20, testBlock{})
		Expect(err).NotTo(HaveOccurred())
		Expect(mem.Claims().Len()).To(Equal(2))

		By("rebinding after release")
		handle.Release()
		handle.Release()
		Expect(handle.Released()).To(BeTrue())
		_, err = mmio.Bind("second", mem, 0x10, testBlock{})
		Expect(err).To(MatchError(mmio.ErrRegionClaimed))
		other.Release()
		again, err := mmio.Bind("second", mem, 0x10, testBlock{})
		Expect(err).NotTo(HaveOccurred())
		Expect(again).NotTo(BeNil())
	})

	It("should claim non-overlapping ranges", func(ctx SpecContext) {
		claims := mmio.NewClaimer(log.FromContext(ctx))
		claim, err := claims.Claim("first", 0x1000, 0x100)
		Expect(err).NotTo(HaveOccurred())
		Expect(claim.Owner()).To(Equal("first"))
		Expect(claim.End()).To(Equal(uint64(0x1100)))

		_, err = claims.Claim("second", 0x10f0, 0x20)
		Expect(err).To(MatchError(mmio.ErrRegionClaimed))
		_, err = claims.Claim("empty", 0x2000, 0)
		Expect(err).To(MatchError(mmio.ErrOutOfRange))

		claim.Release()
		claim.Release()
		Expect(claims.Len()).To(BeZero())
	})

	It("should share claims between mappings of the same registers", func() {
		mem := mmio.NewMemory(0x5000, 0x40)
		first, err := mmio.NewMemoryMapper(mem).Map(0x5000, 0x40)
		Expect(err).NotTo(HaveOccurred())
		second, err := mmio.NewMemoryMapper(mem).Map(0x5000, 0x20)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Claims()).To(BeIdenticalTo(first.Claims()))

		handle, err := mmio.Bind("first", first, 0, testBlock{})
		Expect(err).NotTo(HaveOccurred())
		_, err = mmio.Bind("second", second, 0, testBlock{})
		Expect(err).To(MatchError(mmio.ErrRegionClaimed))

		By("keeping separate address spaces apart")
		other := mmio.NewMemory(0x5000, 0x40)
		unrelated, err := mmio.Bind("other", other, 0, testBlock{})
		Expect(err).NotTo(HaveOccurred())
		unrelated.Release()
		handle.Release()
	})

	It("should write registers and bits", func() {
		mem := mmio.NewMemory(0x4000, 0x20)
		handle, err := mmio.Bind("test", mem, 0, testBlock{})
		Expect(err).NotTo(HaveOccurred())

		handle.Store(regControl, 0xa0)
		handle.WriteBit(regControl, 0, true)
		handle.WriteBit(regControl, 7, false)
		Expect(handle.Load(regControl)).To(Equal(uint64(0x21)))

		handle.Update(regPointer, func(v uint64) uint64 { return v | 0x1_0000_0000 })
		Expect(mem.Peek(0x0c, mmio.Width32)).To(Equal(uint64(1)))

		handle.Store(regKick, 1)
		Expect(mem.Peek(0x10, mmio.Width32)).To(Equal(uint64(1)))

		By("refusing writes to read-only registers")
		Expect(func() { handle.Store(regID, 1) }).To(PanicWith(MatchError(mmio.ErrReadOnly)))

		By("refusing writes after release")
		handle.Release()
		Expect(func() { handle.Store(regControl, 1) }).To(PanicWith(MatchError(mmio.ErrReleased)))
	})
})
