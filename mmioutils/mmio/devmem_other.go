// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package mmio

import (
	"github.com/go-logr/logr"
)

type DevMem struct{}

func OpenDevMem(log logr.Logger) (*DevMem, error) {
	log.V(1).Info("NOT SUPPORTED OS")
	return nil, ErrUnavailable
}

func (d *DevMem) Map(uint64, uint64) (Region, error) {
	return nil, ErrUnavailable
}

func (d *DevMem) Unmap(Region) error {
	return ErrUnavailable
}

func (d *DevMem) Close() error {
	return nil
}
