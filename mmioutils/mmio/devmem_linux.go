// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

const devMemPath = "/dev/mem"

// physicalClaims holds the claims on physical memory. Every region mapped
// through /dev/mem reports it, whichever DevMem mapped it.
var physicalClaims = NewClaimer(logr.Discard())

// DevMem maps physical ranges through /dev/mem.
type DevMem struct {
	log logr.Logger
	fd  int

	mutex    sync.Mutex
	mappings map[*mappedRegion]struct{}
}

func OpenDevMem(log logr.Logger) (*DevMem, error) {
	fd, err := unix.Open(devMemPath, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, fmt.Errorf("failed to open %s: %w", devMemPath, err))
	}
	return &DevMem{
		log:      log,
		fd:       fd,
		mappings: map[*mappedRegion]struct{}{},
	}, nil
}

func (d *DevMem) Map(phys, length uint64) (Region, error) {
	page := uint64(unix.Getpagesize())
	start := phys &^ (page - 1)
	delta := phys - start
	size := (delta + length + page - 1) &^ (page - 1)

	data, err := unix.Mmap(d.fd, int64(start), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map %#x+%#x: %w", phys, length, err)
	}

	region := &mappedRegion{
		phys:   phys,
		length: length,
		data:   data,
		delta:  delta,
	}

	d.mutex.Lock()
	d.mappings[region] = struct{}{}
	d.mutex.Unlock()

	d.log.V(2).Info("Mapped physical range", "phys", phys, "length", length)
	return region, nil
}

func (d *DevMem) Unmap(region Region) error {
	mr, ok := region.(*mappedRegion)
	if !ok {
		return ErrNotMapped
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, ok := d.mappings[mr]; !ok {
		return ErrNotMapped
	}
	delete(d.mappings, mr)

	if err := unix.Munmap(mr.data); err != nil {
		return fmt.Errorf("failed to unmap %#x: %w", mr.phys, err)
	}
	d.log.V(2).Info("Unmapped physical range", "phys", mr.phys)
	return nil
}

func (d *DevMem) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var errs []error
	for mr := range d.mappings {
		if err := unix.Munmap(mr.data); err != nil {
			errs = append(errs, err)
		}
		delete(d.mappings, mr)
	}
	if err := unix.Close(d.fd); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type mappedRegion struct {
	phys   uint64
	length uint64
	data   []byte
	delta  uint64
}

func (r *mappedRegion) PhysicalAddress() uint64 {
	return r.phys
}

func (r *mappedRegion) Size() uint64 {
	return r.length
}

func (r *mappedRegion) Claims() *Claimer {
	return physicalClaims
}

func (r *mappedRegion) pointer(offset uint64, width Width) unsafe.Pointer {
	mustAccess(r.length, offset, width)
	return unsafe.Pointer(&r.data[r.delta+offset])
}

func (r *mappedRegion) Load(offset uint64, width Width) uint64 {
	p := r.pointer(offset, width)
	switch width {
	case Width8:
		return uint64(load8(p))
	case Width16:
		return uint64(load16(p))
	case Width32:
		return uint64(atomic.LoadUint32((*uint32)(p)))
	default:
		return atomic.LoadUint64((*uint64)(p))
	}
}

func (r *mappedRegion) Store(offset uint64, width Width, value uint64) {
	p := r.pointer(offset, width)
	switch width {
	case Width8:
		store8(p, uint8(value))
	case Width16:
		store16(p, uint16(value))
	case Width32:
		atomic.StoreUint32((*uint32)(p), uint32(value))
	default:
		atomic.StoreUint64((*uint64)(p), value)
	}
}

// sync/atomic has no 8 and 16 bit operations; keeping these out of line stops
// the compiler from combining or dropping the access.

//go:noinline
func load8(p unsafe.Pointer) uint8 {
	return *(*uint8)(p)
}

//go:noinline
func load16(p unsafe.Pointer) uint16 {
	return *(*uint16)(p)
}

//go:noinline
func store8(p unsafe.Pointer, v uint8) {
	*(*uint8)(p) = v
}

//go:noinline
func store16(p unsafe.Pointer, v uint16) {
	*(*uint16)(p) = v
}
