// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci_test

import (
	"context"
	"time"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci/xhcitest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "sigs.k8s.io/controller-runtime/pkg/log"
)

func counterValue(reg *prometheus.Registry, name, label, value string) float64 {
	families, err := reg.Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func waitCount(reg *prometheus.Registry, phase, result string) uint64 {
	families, err := reg.Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, family := range families {
		if family.GetName() != "xhci_wait_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["phase"] == phase && labels["result"] == result {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

var _ = Describe("Metrics", func() {

	It("should count bring-ups and observe every wait", func(ctx SpecContext) {
		reg := prometheus.NewPedanticRegistry()
		metrics, err := xhci.NewMetrics(reg)
		Expect(err).NotTo(HaveOccurred())

		sim := xhcitest.NewController(mmioBase, xhcitest.Options{})
		controller, err := xhci.BringUp(ctx, log.FromContext(ctx), mmio.NewMemoryMapper(sim.Memory), source, mmioBase,
			xhci.Options{Metrics: metrics})
		Expect(err).NotTo(HaveOccurred())
		Expect(controller.Close()).To(Succeed())

		Expect(counterValue(reg, "xhci_bringups_total", "state", "Ready")).To(Equal(1.0))
		Expect(testutil.GatherAndCount(reg, "xhci_wait_duration_seconds")).To(Equal(3))
	})

	It("should count failed bring-ups by their last state", func(ctx SpecContext) {
		reg := prometheus.NewRegistry()
		metrics, err := xhci.NewMetrics(reg)
		Expect(err).NotTo(HaveOccurred())

		sim := xhcitest.NewController(mmioBase, xhcitest.Options{HaltDelay: xhcitest.Never})
		_, err = xhci.BringUp(ctx, log.FromContext(ctx), mmio.NewMemoryMapper(sim.Memory), source, mmioBase,
			xhci.Options{HaltTimeout: 20 * time.Millisecond, Metrics: metrics})
		Expect(err).To(MatchError(xhci.ErrHaltTimeout))

		Expect(counterValue(reg, "xhci_bringups_total", "state", "Halting")).To(Equal(1.0))
	})

	It("should label a wait cut short by cancellation", func(ctx SpecContext) {
		reg := prometheus.NewRegistry()
		metrics, err := xhci.NewMetrics(reg)
		Expect(err).NotTo(HaveOccurred())

		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		time.AfterFunc(20*time.Millisecond, cancel)

		sim := xhcitest.NewController(mmioBase, xhcitest.Options{HaltDelay: xhcitest.Never})
		_, err = xhci.BringUp(cancelCtx, log.FromContext(ctx), mmio.NewMemoryMapper(sim.Memory), source, mmioBase,
			xhci.Options{HaltTimeout: time.Minute, Metrics: metrics})
		Expect(err).To(MatchError(context.Canceled))

		Expect(waitCount(reg, "halt", "cancelled")).To(Equal(uint64(1)))
		Expect(waitCount(reg, "halt", "timeout")).To(BeZero())
	})

	It("should refuse to register twice", func() {
		reg := prometheus.NewRegistry()
		_, err := xhci.NewMetrics(reg)
		Expect(err).NotTo(HaveOccurred())
		_, err = xhci.NewMetrics(reg)
		Expect(err).To(HaveOccurred())
	})
})
