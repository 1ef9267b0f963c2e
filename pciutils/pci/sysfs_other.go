// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package pci

import (
	"github.com/go-logr/logr"
)

type reader struct {
	log logr.Logger
}

func NewSysfsReader(log logr.Logger, _ Vendor, _ Class) (*reader, error) {
	log.V(1).Info("NOT SUPPORTED OS")

	return &reader{
		log: log,
	}, nil
}

func NewSysfsReaderWithMount(log logr.Logger, _ string, vendorFilter Vendor, classFilter Class) (*reader, error) {
	return NewSysfsReader(log, vendorFilter, classFilter)
}

func (r *reader) Read() ([]Address, error) {
	r.log.V(1).Info("NOT SUPPORTED OS")
	return nil, nil
}

type SysfsConfigSpace struct {
	log logr.Logger
}

func NewSysfsConfigSpace(log logr.Logger) *SysfsConfigSpace {
	return &SysfsConfigSpace{log: log}
}

func NewSysfsConfigSpaceWithMount(log logr.Logger, _ string, _ uint16) *SysfsConfigSpace {
	return NewSysfsConfigSpace(log)
}

func (c *SysfsConfigSpace) ReadConfig(addr Address, _ uint8) uint32 {
	c.log.V(3).Info("NOT SUPPORTED OS", "pciAddress", addr)
	return 0xffffffff
}

func (c *SysfsConfigSpace) WriteConfig(addr Address, _ uint8, _ uint32) {
	c.log.V(3).Info("NOT SUPPORTED OS", "pciAddress", addr)
}
