// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && (amd64 || 386)

package pci_test

import (
	"errors"
	"sync"

	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
	"github.com/ironcore-dev/xhci-utils/pciutils/pci/pcitest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"
	log "sigs.k8s.io/controller-runtime/pkg/log"
)

// threadRecorder remembers the thread of every port access.
type threadRecorder struct {
	mutex   sync.Mutex
	threads map[int]int
}

func (r *threadRecorder) record() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.threads == nil {
		r.threads = map[int]int{}
	}
	r.threads[unix.Gettid()]++
}

func (r *threadRecorder) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.threads)
}

var _ = Describe("HostPort", func() {

	var (
		bus     *pcitest.Bus
		threads *threadRecorder
		ports   []uint16
	)

	open := func() *pci.HostPort {
		port, err := pci.OpenHostPortWith(
			func() error {
				threads.record()
				return nil
			},
			func(port uint16) uint32 {
				threads.record()
				return bus.In32(port)
			},
			func(port uint16, value uint32) {
				threads.record()
				ports = append(ports, port)
				bus.Out32(port, value)
			},
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(port.Close)
		return port
	}

	BeforeEach(func() {
		bus = pcitest.NewBus().
			Add(pci.Address{}, pcitest.Endpoint(0x8086, 0x3e30, hostBridgeClass)).
			Add(pci.Address{Device: 6, Function: 0}, pcitest.Endpoint(0x8086, 0xa36d, pci.ClassCode{Base: 0x0c, Sub: 0x03, Interface: 0x30}))
		threads = &threadRecorder{}
		ports = nil
	})

	It("should scan with whole 32-bit accesses on the granted thread", func(ctx SpecContext) {
		port := open()

		scanner, err := pci.NewScanner(log.FromContext(ctx), pci.NewPortConfigSpace(port), pci.NewRegistry(), pci.ScannerOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(scanner.ScanAllBus()).To(Succeed())
		Expect(addresses(scanner.Registry().Devices())).To(Equal([]pci.Address{{}, {Device: 6}}))

		Expect(port.Err()).NotTo(HaveOccurred())
		Expect(threads.count()).To(Equal(1))
		Expect(ports).To(HaveEach(Equal(pci.ConfigAddressPort)))
	})

	It("should refuse ports outside the configuration ports", func() {
		port := open()

		Expect(port.In32(0x0cf9)).To(Equal(uint32(0xffffffff)))
		port.Out32(0x0060, 1)
		Expect(ports).To(BeEmpty())
		Expect(port.Err()).To(MatchError(pci.ErrPortIOUnavailable))
	})

	It("should fail without port permissions", func() {
		_, err := pci.OpenHostPortWith(
			func() error { return unix.EPERM },
			func(uint16) uint32 { return 0 },
			func(uint16, uint32) {},
		)
		Expect(err).To(MatchError(pci.ErrPortIOUnavailable))
		Expect(errors.Is(err, unix.EPERM)).To(BeTrue())
	})

	It("should stop serving after close", func() {
		port := open()
		Expect(port.Close()).To(Succeed())
		Expect(port.Close()).To(Succeed())

		Expect(port.In32(pci.ConfigDataPort)).To(Equal(uint32(0xffffffff)))
		Expect(port.Err()).To(MatchError(pci.ErrPortIOUnavailable))
	})
})
