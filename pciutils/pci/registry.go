// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import "sync"

const RegistryCapacity = 32

// Registry is a fixed-capacity store of discovered functions. Entries at or
// beyond the count are logically absent; Clear does not zero them.
type Registry struct {
	mutex   sync.Mutex
	devices [RegistryCapacity]Device
	count   int
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(device Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.isFull() {
		return ErrRegistryFull
	}

	r.devices[r.count] = device
	r.count++
	return nil
}

func (r *Registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.count = 0
}

func (r *Registry) IsFull() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.isFull()
}

func (r *Registry) isFull() bool {
	return r.count == len(r.devices)
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.count
}

// Devices returns a copy of the registered devices in registration order.
func (r *Registry) Devices() []Device {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	result := make([]Device, r.count)
	copy(result, r.devices[:r.count])
	return result
}

func (r *Registry) Lookup(addr Address) (Device, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := 0; i < r.count; i++ {
		if r.devices[i].Address == addr {
			return r.devices[i], true
		}
	}
	return Device{}, false
}

// Find returns all devices matching the predicate.
func (r *Registry) Find(match func(Device) bool) []Device {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result []Device
	for i := 0; i < r.count; i++ {
		if match(r.devices[i]) {
			result = append(result, r.devices[i])
		}
	}
	return result
}
