// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"time"

	"github.com/ironcore-dev/xhci-utils/eventutils/recorder"
	"github.com/ironcore-dev/xhci-utils/hostutils/host"
	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci/xhcitest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	log "sigs.k8s.io/controller-runtime/pkg/log"
)

var _ = Describe("xhci-probe", func() {

	Describe("root command", func() {
		It("should register the subcommands", func() {
			cmd := New()
			var names []string
			for _, sub := range cmd.Commands() {
				names = append(names, sub.Name())
			}
			Expect(names).To(ConsistOf("bringup", "list", "scan"))
		})

		It("should reject an unknown log format", func() {
			cmd := New()
			cmd.SetArgs([]string{"scan", "--log-format", "json"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			Expect(cmd.Execute()).To(MatchError(ContainSubstring(`unknown log format "json"`)))
		})

		It("should default the bring-up timeouts", func() {
			cmd := bringUpCmd(&globalOptions{})
			Expect(cmd.Flags().Lookup("handoff-timeout").DefValue).To(Equal(xhci.DefaultHandoffTimeout.String()))
			Expect(cmd.Flags().Lookup("halt-timeout").DefValue).To(Equal((160 * time.Millisecond).String()))
			Expect(cmd.Flags().Lookup("force-handoff").DefValue).To(Equal("false"))
		})
	})

	Describe("logger", func() {
		It("should print plain lines", func() {
			var buf bytes.Buffer
			opts := &globalOptions{logFormat: logFormatLine}
			logger, err := opts.logger(&buf)
			Expect(err).NotTo(HaveOccurred())
			logger.Info("Scanned", "devices", 3)
			logger.V(1).Info("Hidden")
			Expect(buf.String()).To(ContainSubstring(`"devices"=3`))
			Expect(buf.String()).NotTo(ContainSubstring("Hidden"))
		})
	})

	Describe("mechanism", func() {
		x86, _ := host.PlatformFor("linux", "amd64")
		arm, _ := host.PlatformFor("linux", "arm64")

		It("should prefer port io on x86", func() {
			Expect(resolveMechanism(mechanismAuto, x86)).To(Equal(host.MechanismPortIO))
			Expect(resolveMechanism("sysfs", x86)).To(Equal(host.MechanismSysfs))
		})

		It("should fall back to sysfs without port io", func() {
			Expect(resolveMechanism(mechanismAuto, arm)).To(Equal(host.MechanismSysfs))
			_, err := resolveMechanism("port-io", arm)
			Expect(err).To(MatchError(ContainSubstring("not supported on linux/arm64")))
		})
	})

	Describe("controller selection", func() {
		first := pci.Device{Address: pci.Address{Device: 20}}
		second := pci.Device{Address: pci.Address{Bus: 3}}

		It("should pick the first controller without an address", func() {
			Expect(selectController([]pci.Device{first, second}, "")).To(Equal(first))
		})

		It("should pick the controller at the address", func() {
			Expect(selectController([]pci.Device{first, second}, "0000:03:00.0")).To(Equal(second))
		})

		It("should fail without a matching controller", func() {
			_, err := selectController(nil, "")
			Expect(err).To(MatchError(xhci.ErrNoController))
			_, err = selectController([]pci.Device{first}, "0000:00:1d.0")
			Expect(err).To(MatchError(xhci.ErrNoController))
		})
	})

	Describe("report", func() {
		It("should describe a ready controller", func(ctx SpecContext) {
			reg := prometheus.NewRegistry()
			metrics, err := xhci.NewMetrics(reg)
			Expect(err).NotTo(HaveOccurred())

			sim := xhcitest.NewController(0xfea0_0000, xhcitest.Options{Ports: 2})
			events := recorder.NewEventStore(log.FromContext(ctx), recorder.EventStoreOptions{})
			controller, err := xhci.BringUp(ctx, log.FromContext(ctx), mmio.NewMemoryMapper(sim.Memory),
				"0000:00:14.0", 0xfea0_0000, xhci.Options{Recorder: events, Metrics: metrics})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(controller.Close)

			var buf bytes.Buffer
			writeController(&buf, controller)
			writeEvents(&buf, events.ListEvents())
			Expect(writeMetrics(&buf, reg)).To(Succeed())

			out := buf.String()
			Expect(out).To(ContainSubstring("0000:00:14.0@0xfea00000 xHCI 1.10 slots 8 interrupters 2 ports 2 state Ready"))
			Expect(out).To(ContainSubstring("USB 3.00 ports 1-1"))
			Expect(out).To(ContainSubstring("USB 2.00 ports 2-2"))
			Expect(out).To(ContainSubstring("capability usb-debug at 0x8020"))
			Expect(out).To(ContainSubstring("port 1: "))
			Expect(out).To(ContainSubstring("Normal Ready"))
			Expect(out).To(ContainSubstring(`xhci_bringups_total{state="Ready"} 1`))
			Expect(out).To(ContainSubstring(`xhci_wait_duration_seconds_count{phase="reset",result="done"} 1`))
		})
	})
})
