// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/prometheus/procfs/sysfs"
)

const defaultSysfsMount = "/sys"

type reader struct {
	log logr.Logger
	fs  sysfs.FS

	vendorFilter Vendor
	classFilter  Class
}

func NewSysfsReader(log logr.Logger, vendorFilter Vendor, classFilter Class) (*reader, error) {
	fs, err := sysfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}

	return &reader{
		log:          log,
		fs:           fs,
		vendorFilter: vendorFilter,
		classFilter:  classFilter,
	}, nil
}

func NewSysfsReaderWithMount(log logr.Logger, mountPoint string, vendorFilter Vendor, classFilter Class) (*reader, error) {
	fs, err := sysfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}

	return &reader{
		log:          log,
		fs:           fs,
		vendorFilter: vendorFilter,
		classFilter:  classFilter,
	}, nil
}

func (r *reader) Read() ([]Address, error) {
	devices, err := r.fs.PciDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to read pci devices: %w", err)
	}

	var pciDevices []Address
	for _, device := range devices {
		switch {
		case device.Class != uint32(r.classFilter):
			r.log.V(3).Info(
				"Skipping device, class not matching",
				"device", device.Name(), "expected class",
				r.classFilter, "found class", device.Class,
			)
			continue
		case r.vendorFilter != VendorAny && device.Vendor != uint32(r.vendorFilter):
			r.log.V(3).Info(
				"Skipping device, vendor not matching",
				"device", device.Name(), "expected vendor",
				r.vendorFilter, "found vendor", device.Vendor,
			)
			continue
		}

		r.log.V(1).Info("Found matching pci device", "device", device.Name())
		pciDevices = append(pciDevices, Address{
			Domain:   uint16(device.Location.Segment),
			Bus:      uint8(device.Location.Bus),
			Device:   uint8(device.Location.Device),
			Function: uint8(device.Location.Function),
		})
	}

	return pciDevices, nil
}

// SysfsConfigSpace reads configuration registers through the per-function
// config files in sysfs. Functions without a config file read as all ones.
type SysfsConfigSpace struct {
	log    logr.Logger
	root   string
	domain uint16
}

func NewSysfsConfigSpace(log logr.Logger) *SysfsConfigSpace {
	return NewSysfsConfigSpaceWithMount(log, defaultSysfsMount, 0)
}

func NewSysfsConfigSpaceWithMount(log logr.Logger, mountPoint string, domain uint16) *SysfsConfigSpace {
	return &SysfsConfigSpace{
		log:    log,
		root:   filepath.Join(mountPoint, "bus", "pci", "devices"),
		domain: domain,
	}
}

func (c *SysfsConfigSpace) path(addr Address) string {
	addr.Domain = c.domain
	return filepath.Join(c.root, addr.String(), "config")
}

func (c *SysfsConfigSpace) ReadConfig(addr Address, reg uint8) uint32 {
	f, err := os.Open(c.path(addr))
	if err != nil {
		return 0xffffffff
	}
	defer func() { _ = f.Close() }()

	var buf [4]byte
	if _, err := f.ReadAt(buf[:], int64(reg&0xfc)); err != nil {
		c.log.V(3).Info("Short config read", "pciAddress", addr, "register", reg, "error", err)
		return 0xffffffff
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (c *SysfsConfigSpace) WriteConfig(addr Address, reg uint8, value uint32) {
	f, err := os.OpenFile(c.path(addr), os.O_WRONLY, 0)
	if err != nil {
		c.log.Error(err, "Failed to open config space for writing", "pciAddress", addr)
		return
	}
	defer func() { _ = f.Close() }()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if _, err := f.WriteAt(buf[:], int64(reg&0xfc)); err != nil {
		c.log.Error(err, "Failed to write config space", "pciAddress", addr, "register", reg)
	}
}
