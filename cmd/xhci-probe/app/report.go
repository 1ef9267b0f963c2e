// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/ironcore-dev/xhci-utils/eventutils/recorder"
	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
	"github.com/ironcore-dev/xhci-utils/xhciutils/xhci"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

func writeDevices(w io.Writer, devices []pci.Device) {
	for _, device := range devices {
		_, _ = fmt.Fprintln(w, device)
	}
}

// selectController picks the controller at address, or the first one when
// address is empty.
func selectController(controllers []pci.Device, address string) (pci.Device, error) {
	if len(controllers) == 0 {
		return pci.Device{}, fmt.Errorf("%w: none found", xhci.ErrNoController)
	}
	if address == "" {
		return controllers[0], nil
	}
	for _, controller := range controllers {
		if strings.EqualFold(controller.Address.String(), address) {
			return controller, nil
		}
	}
	return pci.Device{}, fmt.Errorf("%w: %s is not an xHCI controller", xhci.ErrNoController, address)
}

func writeController(w io.Writer, controller *xhci.Controller) {
	caps := controller.Capabilities()
	_, _ = fmt.Fprintf(w, "%s %s state %s\n", controller, caps, controller.State())
	_, _ = fmt.Fprintf(w, "  page size %d, context size %d, scratchpads %d\n",
		controller.Operational().PageSize(), contextSize(caps.HCCParams1), caps.HCSParams2.MaxScratchpadBuffers())

	for _, protocol := range controller.SupportedProtocols() {
		_, _ = fmt.Fprintf(w, "  %s\n", protocol)
	}
	for _, capability := range controller.ExtendedCapabilities() {
		_, _ = fmt.Fprintf(w, "  capability %s at %#x\n", capability.ID(), capability.Offset())
	}
	for n := uint8(1); n <= caps.HCSParams1.MaxPorts(); n++ {
		status, err := controller.PortStatus(n)
		if err != nil {
			_, _ = fmt.Fprintf(w, "  port %d: %v\n", n, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "  port %d: %s\n", n, status)
	}
}

func contextSize(params xhci.HCCParams1) int {
	if params.ContextSize64() {
		return 64
	}
	return 32
}

func writeEvents(w io.Writer, events []*recorder.Event) {
	for _, event := range events {
		_, _ = fmt.Fprintf(w, "%s %s\n", event.EventTime.Format("15:04:05.000"), event)
	}
}

// writeMetrics encodes every gathered family in the Prometheus text format.
func writeMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", family.GetName(), err)
		}
	}
	return nil
}
