// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"runtime"
	"slices"
)

// Mechanism is a way to reach PCI configuration space from the host.
type Mechanism string

const (
	// MechanismPortIO is configuration mechanism #1 with IN/OUT instructions.
	MechanismPortIO Mechanism = "port-io"
	// MechanismSysfs reads the config files exported by the kernel.
	MechanismSysfs Mechanism = "sysfs"
)

type Platform struct {
	OS           string
	Architecture string
	Mechanisms   []Mechanism
}

// Supports reports whether the platform can use m.
func (p *Platform) Supports(m Mechanism) bool {
	return slices.Contains(p.Mechanisms, m)
}

// Preferred returns the first mechanism of the platform.
func (p *Platform) Preferred() Mechanism {
	return p.Mechanisms[0]
}

// CurrentPlatform describes the mechanisms available to the running binary.
func CurrentPlatform() (*Platform, error) {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor describes the mechanisms available on goos/goarch.
func PlatformFor(goos, goarch string) (*Platform, error) {
	if goos != "linux" {
		return nil, fmt.Errorf("unsupported operating system: %s", goos)
	}

	platform := Platform{
		OS:           goos,
		Architecture: goarch,
	}
	switch goarch {
	case "amd64", "386":
		platform.Mechanisms = []Mechanism{MechanismPortIO, MechanismSysfs}
	case "arm64", "riscv64":
		// no I/O port space, configuration space is memory mapped
		platform.Mechanisms = []Mechanism{MechanismSysfs}
	default:
		return nil, fmt.Errorf("unsupported architecture: %s", goarch)
	}

	return &platform, nil
}
