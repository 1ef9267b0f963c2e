// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import "errors"

var (
	ErrRegistryFull       = errors.New("pci device registry is full")
	ErrInvalidBar         = errors.New("invalid base address register")
	ErrTopology           = errors.New("invalid pci bus topology")
	ErrPortIOUnavailable  = errors.New("port i/o is not available")
	ErrScanInProgress     = errors.New("pci scan already in progress")
	ErrConfigSpaceMissing = errors.New("no configuration space accessor provided")
)
