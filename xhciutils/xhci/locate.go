// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"fmt"

	"github.com/ironcore-dev/xhci-utils/pciutils/pci"
)

// FindControllers returns the xHCI functions of the registry in scan order.
func FindControllers(registry *pci.Registry) []pci.Device {
	return registry.Find(func(device pci.Device) bool {
		return device.ClassCode.IsXHCI()
	})
}

// MMIOBase returns the physical register base from BAR0 of an xHCI
// function.
func MMIOBase(device pci.Device) (uint64, error) {
	if !device.ClassCode.IsXHCI() {
		return 0, fmt.Errorf("%w: %s has class %s", ErrNoController, device.Address, device.ClassCode)
	}
	bar, err := device.Bar(0)
	if err != nil {
		return 0, err
	}
	if bar.IO || bar.Address == 0 {
		return 0, fmt.Errorf("%w: bar 0 of %s is not a memory bar", pci.ErrInvalidBar, device.Address)
	}
	return bar.Address, nil
}
