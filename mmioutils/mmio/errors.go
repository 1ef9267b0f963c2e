// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import "errors"

var (
	ErrRegionClaimed = errors.New("region already claimed")
	ErrOutOfRange    = errors.New("access out of range")
	ErrMisaligned    = errors.New("misaligned access")
	ErrReleased      = errors.New("handle already released")
	ErrReadOnly      = errors.New("register is read-only")
	ErrNotMapped     = errors.New("region not mapped by this mapper")
	ErrUnavailable   = errors.New("physical memory access is not available")
)
