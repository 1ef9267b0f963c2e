// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Hook observes an access to a Memory region. Hooks run without the region
// lock held and may use Peek and Poke.
type Hook func(m *Memory, offset uint64, width Width, value uint64)

// Memory is a Region backed by ordinary memory, used to model devices. Each
// Memory is its own address space with its own claims.
type Memory struct {
	mutex   sync.Mutex
	phys    uint64
	data    []byte
	onLoad  Hook
	onStore Hook
	claims  *Claimer
}

func NewMemory(phys, size uint64) *Memory {
	return &Memory{
		phys:   phys,
		data:   make([]byte, size),
		claims: NewClaimer(logr.Discard()),
	}
}

// OnLoad installs a hook that runs before every Load.
func (m *Memory) OnLoad(hook Hook) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onLoad = hook
}

// OnStore installs a hook that runs after every Store with the stored value.
func (m *Memory) OnStore(hook Hook) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onStore = hook
}

func (m *Memory) PhysicalAddress() uint64 {
	return m.phys
}

func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

func (m *Memory) Claims() *Claimer {
	return m.claims
}

func (m *Memory) Load(offset uint64, width Width) uint64 {
	m.mutex.Lock()
	hook := m.onLoad
	m.mutex.Unlock()

	if hook != nil {
		hook(m, offset, width, 0)
	}
	return m.Peek(offset, width)
}

func (m *Memory) Store(offset uint64, width Width, value uint64) {
	m.Poke(offset, width, value)

	m.mutex.Lock()
	hook := m.onStore
	m.mutex.Unlock()

	if hook != nil {
		hook(m, offset, width, value&width.Mask())
	}
}

// Peek reads without running hooks.
func (m *Memory) Peek(offset uint64, width Width) uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	mustAccess(uint64(len(m.data)), offset, width)
	b := m.data[offset : offset+uint64(width)]
	switch width {
	case Width8:
		return uint64(b[0])
	case Width16:
		return uint64(binary.LittleEndian.Uint16(b))
	case Width32:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// Poke writes without running hooks.
func (m *Memory) Poke(offset uint64, width Width, value uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	mustAccess(uint64(len(m.data)), offset, width)
	b := m.data[offset : offset+uint64(width)]
	switch width {
	case Width8:
		b[0] = uint8(value)
	case Width16:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case Width32:
		binary.LittleEndian.PutUint32(b, uint32(value))
	default:
		binary.LittleEndian.PutUint64(b, value)
	}
}

// MemoryMapper serves Map requests from a fixed set of Memory regions.
type MemoryMapper struct {
	mutex   sync.Mutex
	regions []*Memory
	mapped  map[Region]int
}

func NewMemoryMapper(regions ...*Memory) *MemoryMapper {
	return &MemoryMapper{
		regions: regions,
		mapped:  map[Region]int{},
	}
}

func (mm *MemoryMapper) Map(phys, length uint64) (Region, error) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	for _, region := range mm.regions {
		if region.phys == phys && length <= region.Size() {
			mm.mapped[region]++
			return region, nil
		}
	}
	return nil, fmt.Errorf("%w: %#x+%#x", ErrOutOfRange, phys, length)
}

func (mm *MemoryMapper) Unmap(region Region) error {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if mm.mapped[region] == 0 {
		return ErrNotMapped
	}
	mm.mapped[region]--
	return nil
}

// Mapped returns the number of outstanding mappings of region.
func (mm *MemoryMapper) Mapped(region Region) int {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()
	return mm.mapped[region]
}
