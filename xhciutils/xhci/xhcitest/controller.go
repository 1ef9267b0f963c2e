// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package xhcitest simulates the register space of an xHCI controller with
// firmware that owns it at boot.
package xhcitest

import (
	"sync"

	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
)

// Register space layout of the simulated controller.
const (
	RegionSize               = 0x10000
	CapabilityLength         = 0x20
	OperationalOffset        = CapabilityLength
	PortOffset               = OperationalOffset + 0x400
	RuntimeOffset            = 0x2000
	DoorbellOffset           = 0x3000
	ExtendedCapabilityOffset = 0x8000
	LegacyOffset             = ExtendedCapabilityOffset + 0x30
	Version                  = 0x0110
)

// Never disables a transition; the matching wait runs into its timeout.
const Never = -1

const (
	usbcmd     = OperationalOffset + 0x00
	usbsts     = OperationalOffset + 0x04
	pagesize   = OperationalOffset + 0x08
	usblegsup  = LegacyOffset
	usblegctl  = LegacyOffset + 0x4
	biosOwned  = 1 << 16
	osOwned    = 1 << 24
	smiEnables = 1<<0 | 1<<4 | 1<<13 | 1<<14 | 1<<15
	smiEvents  = 1<<29 | 1<<30 | 1<<31

	cmdRunStop = 1 << 0
	cmdReset   = 1 << 1
	cmdEnables = 1<<2 | 1<<3 | 1<<10
	stsHalted  = 1 << 0
	stsCNR     = 1 << 11
	stsW1C     = 1<<2 | 1<<3 | 1<<4 | 1<<10
)

// Options shape the simulated controller. Delays count register reads of
// the polled register before the transition happens.
type Options struct {
	Ports        uint8
	Slots        uint8
	Interrupters uint16
	// HandoffDelay is the number of USBLEGSUP reads before firmware
	// releases ownership after the OS requested it.
	HandoffDelay int
	// HaltDelay is the number of USBSTS reads before HCHalted sets.
	HaltDelay int
	// ResetDelay is the number of operational register reads before HCRST
	// and CNR clear.
	ResetDelay int
	// Halted starts the controller halted instead of running.
	Halted bool
	// OSOwned starts the controller already handed to the OS.
	OSOwned bool
	// WithoutLegacySupport drops the legacy support capability.
	WithoutLegacySupport bool
	// WithoutExtendedCapabilities clears xECP.
	WithoutExtendedCapabilities bool
	// WithoutPorts reports zero root hub ports.
	WithoutPorts bool
}

func (o *Options) defaults() {
	if o.WithoutPorts {
		o.Ports = 0
	} else if o.Ports == 0 {
		o.Ports = 4
	}
	if o.Slots == 0 {
		o.Slots = 8
	}
	if o.Interrupters == 0 {
		o.Interrupters = 2
	}
}

// Controller is an mmio.Region modelling an xHCI controller.
type Controller struct {
	*mmio.Memory
	opts Options

	mutex     sync.Mutex
	regs      map[uint64]uint64
	handoff   int
	halt      int
	reset     int
	resets    int
	requested bool
}

// NewController builds a controller whose registers live at phys.
func NewController(phys uint64, opts Options) *Controller {
	opts.defaults()
	c := &Controller{
		Memory:  mmio.NewMemory(phys, RegionSize),
		opts:    opts,
		regs:    map[uint64]uint64{},
		handoff: Never,
		halt:    Never,
		reset:   Never,
	}
	c.powerOn()
	c.OnLoad(c.load)
	c.OnStore(c.store)
	return c
}

func (c *Controller) powerOn() {
	o := c.opts
	m := c.Memory

	m.Poke(0x00, mmio.Width8, CapabilityLength)
	m.Poke(0x02, mmio.Width16, Version)
	m.Poke(0x04, mmio.Width32, uint64(o.Ports)<<24|uint64(o.Interrupters)<<8|uint64(o.Slots))
	m.Poke(0x08, mmio.Width32, 0x0000_00f1)
	m.Poke(0x0c, mmio.Width32, 0x0200_000a)
	var xecp uint64
	if !o.WithoutExtendedCapabilities {
		xecp = ExtendedCapabilityOffset >> 2
	}
	m.Poke(0x10, mmio.Width32, xecp<<16|0x1)
	m.Poke(0x14, mmio.Width32, DoorbellOffset)
	m.Poke(0x18, mmio.Width32, RuntimeOffset)

	m.Poke(pagesize, mmio.Width32, 0x1)
	if o.Halted {
		c.set(usbsts, stsHalted)
	} else {
		m.Poke(usbcmd, mmio.Width32, cmdRunStop|cmdEnables)
	}

	for n := uint64(0); n < uint64(o.Ports); n++ {
		// port 1, 3, ... connected at super speed
		portsc := uint64(1 << 9)
		if n%2 == 0 {
			portsc |= 1<<0 | 1<<17 | 4<<10
		}
		m.Poke(PortOffset+n*0x10, mmio.Width32, portsc)
	}

	// USB 3.0 on the first half of the ports, USB 2.0 on the rest.
	half := uint64(o.Ports / 2)
	c.protocol(ExtendedCapabilityOffset, 0x4, 3, 0, 1, half)
	c.protocol(ExtendedCapabilityOffset+0x10, 0x4, 2, 0, half+1, uint64(o.Ports)-half)
	if o.WithoutLegacySupport {
		// debug capability ends the list
		m.Poke(ExtendedCapabilityOffset+0x20, mmio.Width32, 10)
		return
	}
	m.Poke(ExtendedCapabilityOffset+0x20, mmio.Width32, 0x4<<8|10)

	legsup := uint64(1)
	if o.OSOwned {
		legsup |= osOwned
	} else {
		legsup |= biosOwned
	}
	m.Poke(usblegsup, mmio.Width32, legsup)
	c.set(usblegctl, smiEnables)
}

func (c *Controller) protocol(offset, next, major, minor, first, count uint64) {
	c.Poke(offset, mmio.Width32, major<<24|minor<<16|next<<8|2)
	c.Poke(offset+0x4, mmio.Width32, 0x2042_5355) // "USB "
	c.Poke(offset+0x8, mmio.Width32, count<<8|first)
	c.Poke(offset+0xc, mmio.Width32, 0)
}

func (c *Controller) load(m *mmio.Memory, offset uint64, _ mmio.Width, _ uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch {
	case offset == usblegsup:
		if countdown(&c.handoff) {
			m.Poke(usblegsup, mmio.Width32, m.Peek(usblegsup, mmio.Width32)&^biosOwned)
		}
	case offset == usbsts:
		if countdown(&c.halt) {
			c.set(usbsts, c.regs[usbsts]|stsHalted)
		}
	}

	if offset >= OperationalOffset && offset < PortOffset && countdown(&c.reset) {
		c.completeReset(m)
	}
}

func (c *Controller) store(m *mmio.Memory, offset uint64, _ mmio.Width, value uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch offset {
	case usbcmd:
		if value&cmdReset != 0 {
			c.resets++
			c.reset = c.opts.ResetDelay
			c.set(usbsts, c.regs[usbsts]|stsCNR)
			return
		}
		halted := c.regs[usbsts]&stsHalted != 0
		if value&cmdRunStop == 0 && !halted {
			c.halt = c.opts.HaltDelay
		}
	case usbsts:
		c.write(usbsts, value, 0, stsW1C)
	case usblegsup:
		if value&osOwned != 0 && value&biosOwned != 0 && !c.requested {
			c.requested = true
			c.handoff = c.opts.HandoffDelay
		}
	case usblegctl:
		c.write(usblegctl, value, smiEnables, smiEvents)
	}
}

// set changes a register with read-only or write-1-to-clear bits. The value
// is kept in regs because a store overwrites memory before the hook runs.
func (c *Controller) set(offset, value uint64) {
	c.regs[offset] = value
	c.Poke(offset, mmio.Width32, value)
}

// write applies a store to a register whose rw bits take the stored value,
// whose w1c bits clear where a one was written and whose other bits are
// read-only.
func (c *Controller) write(offset, value, rw, w1c uint64) {
	old := c.regs[offset]
	c.set(offset, (old&^rw|value&rw)&^(value&w1c))
}

func (c *Controller) completeReset(m *mmio.Memory) {
	m.Poke(usbcmd, mmio.Width32, 0)
	c.set(usbsts, stsHalted)
	for offset := uint64(OperationalOffset + 0x14); offset < OperationalOffset+0x3c; offset += 4 {
		m.Poke(offset, mmio.Width32, 0)
	}
}

// countdown decrements a pending delay and reports when it expires.
func countdown(delay *int) bool {
	if *delay == Never {
		return false
	}
	if *delay == 0 {
		*delay = Never
		return true
	}
	*delay--
	return false
}

// SetEvent raises firmware SMI events in USBLEGCTLSTS.
func (c *Controller) SetEvent(bits uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.set(usblegctl, c.regs[usblegctl]|uint64(bits)&smiEvents)
}

// SetStatus raises write-1-to-clear USBSTS bits.
func (c *Controller) SetStatus(bits uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.set(usbsts, c.regs[usbsts]|uint64(bits)&stsW1C)
}

func (c *Controller) Command() uint32 {
	return uint32(c.Peek(usbcmd, mmio.Width32))
}

func (c *Controller) Status() uint32 {
	return uint32(c.Peek(usbsts, mmio.Width32))
}

func (c *Controller) LegacySupport() uint32 {
	return uint32(c.Peek(usblegsup, mmio.Width32))
}

func (c *Controller) LegacyControl() uint32 {
	return uint32(c.Peek(usblegctl, mmio.Width32))
}

// Resets counts HCRST writes.
func (c *Controller) Resets() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.resets
}
