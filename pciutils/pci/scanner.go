// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// ScannerOptions configures the bus walk.
type ScannerOptions struct {
	// MaxDepth bounds the number of nested bridges followed from bus 0.
	MaxDepth int
}

func (o *ScannerOptions) Defaults() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 32
	}
}

// Scanner walks the bus hierarchy depth first and fills a Registry.
type Scanner struct {
	log      logr.Logger
	cs       ConfigSpace
	registry *Registry
	maxDepth int

	scanMutex sync.Mutex
	visited   [256]bool
	scanned   []uint8
}

func NewScanner(log logr.Logger, cs ConfigSpace, registry *Registry, opts ScannerOptions) (*Scanner, error) {
	if cs == nil {
		return nil, ErrConfigSpaceMissing
	}
	if registry == nil {
		registry = NewRegistry()
	}
	opts.Defaults()

	return &Scanner{
		log:      log,
		cs:       cs,
		registry: registry,
		maxDepth: opts.MaxDepth,
	}, nil
}

func (s *Scanner) Registry() *Registry {
	return s.registry
}

// ScannedBuses returns the buses walked by the last scan, in visiting order.
func (s *Scanner) ScannedBuses() []uint8 {
	s.scanMutex.Lock()
	defer s.scanMutex.Unlock()
	return append([]uint8(nil), s.scanned...)
}

// ScanAllBus clears the registry and rebuilds it from bus 0. On error the
// devices registered so far stay in the registry.
func (s *Scanner) ScanAllBus() error {
	if !s.scanMutex.TryLock() {
		return ErrScanInProgress
	}
	defer s.scanMutex.Unlock()

	s.registry.Clear()
	s.visited = [256]bool{}
	s.scanned = s.scanned[:0]

	root := Address{}
	headerType := ReadHeaderType(s.cs, root)
	if IsSingleFunction(headerType) {
		s.log.V(1).Info("Single host bridge, scanning bus 0")
		return s.finish(s.scanBus(0, 0))
	}

	s.log.V(1).Info("Multiple host bridges found", "headerType", headerType)
	if err := s.scanBus(0, 0); err != nil {
		return s.finish(err)
	}
	for function := uint8(1); function < MaxFunctions; function++ {
		if ReadVendorID(s.cs, Address{Function: function}) == VendorAbsent {
			continue
		}
		// A bridge on an earlier bus may already have claimed this bus number.
		if s.visited[function] {
			s.log.V(1).Info("Host bridge bus already scanned", "bus", function)
			continue
		}
		if err := s.scanBus(function, 0); err != nil {
			return s.finish(err)
		}
	}

	return s.finish(nil)
}

func (s *Scanner) finish(err error) error {
	if err != nil {
		s.log.Error(err, "PCI scan aborted", "registered", s.registry.Len())
		return err
	}
	s.log.V(1).Info("PCI scan finished", "devices", s.registry.Len(), "buses", len(s.scanned))
	return nil
}

func (s *Scanner) scanBus(bus uint8, depth int) error {
	if depth > s.maxDepth {
		return fmt.Errorf("%w: bridge nesting exceeds depth %d at bus %d", ErrTopology, s.maxDepth, bus)
	}
	if s.visited[bus] {
		return fmt.Errorf("%w: bus %d reached twice", ErrTopology, bus)
	}
	s.visited[bus] = true
	s.scanned = append(s.scanned, bus)

	s.log.V(2).Info("Scanning bus", "bus", bus, "depth", depth)
	for device := uint8(0); device < MaxDevices; device++ {
		if ReadVendorID(s.cs, Address{Bus: bus, Device: device}) == VendorAbsent {
			continue
		}
		if err := s.scanDevice(bus, device, depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanDevice(bus, device uint8, depth int) error {
	if err := s.scanFunction(Address{Bus: bus, Device: device}, depth); err != nil {
		return err
	}
	if IsSingleFunction(ReadHeaderType(s.cs, Address{Bus: bus, Device: device})) {
		return nil
	}

	for function := uint8(1); function < MaxFunctions; function++ {
		addr := Address{Bus: bus, Device: device, Function: function}
		if ReadVendorID(s.cs, addr) == VendorAbsent {
			continue
		}
		if err := s.scanFunction(addr, depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanFunction(addr Address, depth int) error {
	device := NewDevice(s.cs, addr)
	if err := s.registry.Add(device); err != nil {
		return fmt.Errorf("failed to register %s: %w", addr, err)
	}
	s.log.V(2).Info("Found device", "pciAddress", addr, "vendor", device.VendorID, "class", device.ClassCode)

	if !device.ClassCode.IsPCIBridge() {
		return nil
	}

	numbers := ReadBusNumbers(s.cs, addr)
	s.log.V(2).Info("Following bridge", "pciAddress", addr, "secondaryBus", numbers.Secondary)
	if err := s.scanBus(numbers.Secondary, depth+1); err != nil {
		if errors.Is(err, ErrTopology) {
			return fmt.Errorf("behind bridge %s: %w", addr, err)
		}
		return err
	}
	return nil
}
