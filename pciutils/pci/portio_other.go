// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux || !(amd64 || 386)

package pci

// HostPort is unavailable without x86 I/O instructions.
type HostPort struct{}

func OpenHostPort() (*HostPort, error) {
	return nil, ErrPortIOUnavailable
}

func (p *HostPort) Out32(uint16, uint32) {}

func (p *HostPort) In32(uint16) uint32 {
	return 0xffffffff
}

func (p *HostPort) Err() error {
	return ErrPortIOUnavailable
}

func (p *HostPort) Close() error {
	return nil
}
