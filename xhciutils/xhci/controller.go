// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/xhci-utils/eventutils/recorder"
	"github.com/ironcore-dev/xhci-utils/mmioutils/mmio"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Controller drives one xHCI host controller from discovery to Ready. It is
// not safe for concurrent use; bring-up runs on a single goroutine.
type Controller struct {
	log    logr.Logger
	opts   Options
	source string
	base   uint64

	mapper mmio.Mapper
	region mmio.Region

	state        State
	capabilities Capabilities
	extended     []ExtendedCapability

	capability  *mmio.View[CapabilityBlock]
	operational Operational
	ports       Ports
	runtime     Runtime
	doorbells   Doorbells
	legacy      LegacySupport

	closeOnce sync.Once
	closeErr  error
}

// NewController maps opts.RegionSize bytes at the physical address base.
// source names the controller in logs and events, usually its PCI address.
func NewController(log logr.Logger, mapper mmio.Mapper, source string, base uint64, opts Options) (*Controller, error) {
	opts.Defaults()

	region, err := mapper.Map(base, opts.RegionSize)
	if err != nil {
		return nil, fmt.Errorf("failed to map registers of %s at %#x: %w", source, base, err)
	}

	c := &Controller{
		log:    log.WithValues("controller", source),
		opts:   opts,
		source: source,
		base:   base,
		mapper: mapper,
		region: region,
		state:  StateDiscovered,
	}
	c.record(recorder.EventTypeNormal, StateDiscovered.String(), "registers mapped at %#x", base)
	return c, nil
}

// BringUp takes the controller at base from discovery to Ready. Failures
// are returned, logged and recorded; hardware state never panics. On error
// every resource is released.
func BringUp(ctx context.Context, log logr.Logger, mapper mmio.Mapper, source string, base uint64, opts Options) (*Controller, error) {
	c, err := NewController(log, mapper, source, base, opts)
	if err != nil {
		log.Error(err, "Failed to bring up controller", "controller", source)
		return nil, err
	}

	if err := c.run(ctx); err != nil {
		c.log.Error(err, "Failed to bring up controller", "state", c.state)
		c.record(recorder.EventTypeWarning, "BringUpFailed", "in state %s: %v", c.state, err)
		c.opts.Metrics.observeBringUp(c.state)
		return nil, errors.Join(err, c.Close())
	}

	c.log.Info("Controller ready", "capabilities", c.capabilities.String())
	c.opts.Metrics.observeBringUp(c.state)
	return c, nil
}

func (c *Controller) run(ctx context.Context) error {
	if err := c.ReadCapabilities(); err != nil {
		return err
	}
	if err := c.RequestOwnership(); err != nil {
		return err
	}
	if err := c.AwaitOwnership(ctx); err != nil {
		return err
	}
	if err := c.Halt(); err != nil {
		return err
	}
	if err := c.AwaitHalt(ctx); err != nil {
		return err
	}
	return c.Reset(ctx)
}

func (c *Controller) String() string {
	return fmt.Sprintf("%s@%#x", c.source, c.base)
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Capabilities() Capabilities {
	return c.capabilities
}

// ExtendedCapabilities returns the entries found while requesting ownership.
func (c *Controller) ExtendedCapabilities() []ExtendedCapability {
	return append([]ExtendedCapability(nil), c.extended...)
}

// SupportedProtocols returns the supported protocol entries.
func (c *Controller) SupportedProtocols() []SupportedProtocol {
	var protocols []SupportedProtocol
	for _, capability := range c.extended {
		if protocol, ok := capability.(SupportedProtocol); ok {
			protocols = append(protocols, protocol)
		}
	}
	return protocols
}

func (c *Controller) Operational() Operational {
	return c.operational
}

func (c *Controller) Ports() Ports {
	return c.ports
}

func (c *Controller) Runtime() Runtime {
	return c.runtime
}

func (c *Controller) Doorbells() Doorbells {
	return c.doorbells
}

func (c *Controller) Legacy() LegacySupport {
	return c.legacy
}

// PortStatus reads PORTSC of port n, counted from 1.
func (c *Controller) PortStatus(n uint8) (PortStatus, error) {
	if c.state == StateDiscovered {
		return 0, fmt.Errorf("%w: ports are not bound in %s", ErrInvalidState, c.state)
	}
	if c.ports.Handle == nil {
		return 0, fmt.Errorf("%w: port %d of 0", ErrInvalidPort, n)
	}
	return c.ports.Status(n)
}

func (c *Controller) expect(state State) error {
	if c.state != state {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, c.state, state)
	}
	return nil
}

func (c *Controller) transition(to State, format string, args ...any) {
	c.log.V(1).Info("State transition", "from", c.state, "to", to)
	c.state = to
	c.record(recorder.EventTypeNormal, to.String(), format, args...)
}

func (c *Controller) record(eventType, reason, format string, args ...any) {
	c.opts.Recorder.Eventf(c.source, eventType, reason, format, args...)
}

func (c *Controller) owner(block string) string {
	return c.source + " " + block
}

// ReadCapabilities reads the capability registers and binds the
// operational, port, runtime and doorbell blocks they locate.
func (c *Controller) ReadCapabilities() error {
	if err := c.expect(StateDiscovered); err != nil {
		return err
	}

	view, err := mmio.NewView(c.region, 0, CapabilityBlock{})
	if err != nil {
		return err
	}
	caps := ReadCapabilities(view)
	c.log.V(2).Info("Read capabilities",
		"length", caps.Length,
		"version", fmt.Sprintf("%#x", caps.Version),
		"hcsparams1", fmt.Sprintf("%#08x", uint32(caps.HCSParams1)),
		"hccparams1", fmt.Sprintf("%#08x", uint32(caps.HCCParams1)),
		"dboff", caps.DoorbellOffset,
		"rtsoff", caps.RuntimeOffset)

	if caps.OperationalOffset() < view.Layout().Size {
		return fmt.Errorf("%w: capability length %#x is shorter than the capability registers",
			ErrUnsupportedController, caps.Length)
	}

	op, err := mmio.Bind(c.owner("operational"), c.region, caps.OperationalOffset(), OperationalBlock{})
	if err != nil {
		return fmt.Errorf("failed to bind operational registers: %w", err)
	}
	var ports *mmio.Handle[PortArray]
	if count := caps.HCSParams1.MaxPorts(); count > 0 {
		ports, err = mmio.Bind(c.owner("ports"), c.region,
			caps.OperationalOffset()+PortRegisterOffset, PortArray{Count: count})
		if err != nil {
			op.Release()
			return fmt.Errorf("failed to bind port registers: %w", err)
		}
	} else {
		c.log.V(1).Info("Controller reports no root hub ports")
	}
	releasePorts := func() {
		if ports != nil {
			ports.Release()
		}
	}
	rt, err := mmio.Bind(c.owner("runtime"), c.region,
		caps.RuntimeOffset, RuntimeBlock{Interrupters: caps.HCSParams1.MaxInterrupters()})
	if err != nil {
		op.Release()
		releasePorts()
		return fmt.Errorf("failed to bind runtime registers: %w", err)
	}
	db, err := mmio.Bind(c.owner("doorbells"), c.region,
		caps.DoorbellOffset, DoorbellArray{Slots: caps.HCSParams1.MaxDeviceSlots()})
	if err != nil {
		op.Release()
		releasePorts()
		rt.Release()
		return fmt.Errorf("failed to bind doorbell registers: %w", err)
	}

	c.capability = view
	c.capabilities = caps
	c.operational = Operational{op}
	c.ports = Ports{ports}
	c.runtime = Runtime{rt}
	c.doorbells = Doorbells{db}
	c.transition(StateCapabilityRead, "%s", caps)
	return nil
}

// RequestOwnership locates USB legacy support and sets the OS owned
// semaphore. A controller without the capability is unsupported.
func (c *Controller) RequestOwnership() error {
	if err := c.expect(StateCapabilityRead); err != nil {
		return err
	}

	start := c.capabilities.HCCParams1.ExtendedCapabilitiesOffset()
	if start == 0 {
		return fmt.Errorf("%w: no extended capabilities", ErrUnsupportedController)
	}

	var (
		extended []ExtendedCapability
		legacy   *UsbLegacySupport
	)
	for capability, err := range ExtendedCapabilities(c.region, start) {
		if err != nil {
			return err
		}
		c.log.V(2).Info("Found extended capability", "id", capability.ID(), "offset", capability.Offset())
		extended = append(extended, capability)
		if found, ok := capability.(UsbLegacySupport); ok && legacy == nil {
			legacy = &found
		}
	}
	c.extended = extended
	if legacy == nil {
		return fmt.Errorf("%w: no usb legacy support capability", ErrUnsupportedController)
	}

	handle, err := mmio.Bind(c.owner("legacy"), c.region, legacy.Offset(), LegacySupportBlock{})
	if err != nil {
		return fmt.Errorf("failed to bind legacy support registers: %w", err)
	}
	c.legacy = LegacySupport{handle}

	if c.legacy.OSOwned() {
		c.log.V(1).Info("Controller already owned by the OS")
		c.transition(StateOwnershipRequested, "already owned by the OS")
		c.legacy.DisableSMI()
		c.transition(StateOwnershipGranted, "ownership already held")
		return nil
	}

	c.legacy.RequestOwnership()
	c.transition(StateOwnershipRequested, "legacy support at %#x", legacy.Offset())
	return nil
}

// AwaitOwnership waits until firmware clears BIOS owned. When the handoff
// times out, HandoffPolicy decides between failing and forcing ownership.
func (c *Controller) AwaitOwnership(ctx context.Context) error {
	if c.state == StateOwnershipGranted {
		return nil
	}
	if err := c.expect(StateOwnershipRequested); err != nil {
		return err
	}

	err := c.poll(ctx, "handoff", c.opts.HandoffTimeout, ErrHandoffTimeout, c.legacy.Granted)
	switch {
	case err == nil:
	case errors.Is(err, ErrHandoffTimeout) && c.opts.HandoffPolicy == HandoffForce:
		c.log.Info("Firmware did not release controller, forcing ownership", "timeout", c.opts.HandoffTimeout)
		c.record(recorder.EventTypeWarning, "HandoffForced", "firmware kept ownership for %s", c.opts.HandoffTimeout)
		c.legacy.ForceOwnership()
	default:
		return err
	}

	c.legacy.DisableSMI()
	c.transition(StateOwnershipGranted, "firmware released ownership")
	return nil
}

// Halt disables interrupts, host system errors and wrap events and stops
// the controller if it is running.
func (c *Controller) Halt() error {
	if err := c.expect(StateOwnershipGranted); err != nil {
		return err
	}

	c.operational.Update(RegUSBCmd, func(v uint64) uint64 {
		v = mmio.SetBit(v, CmdInterrupterEnable, false)
		v = mmio.SetBit(v, CmdHostSystemErrorEnable, false)
		return mmio.SetBit(v, CmdEnableWrapEvent, false)
	})
	if !c.operational.Status().Halted() {
		c.operational.WriteBit(RegUSBCmd, CmdRunStop, false)
	}
	c.transition(StateHalting, "run/stop cleared")
	return nil
}

// AwaitHalt waits for HCHalted.
func (c *Controller) AwaitHalt(ctx context.Context) error {
	if err := c.expect(StateHalting); err != nil {
		return err
	}

	if err := c.poll(ctx, "halt", c.opts.HaltTimeout, ErrHaltTimeout, func() bool {
		return c.operational.Status().Halted()
	}); err != nil {
		return err
	}
	c.transition(StateHalted, "controller halted")
	return nil
}

// Reset sets HCRST and waits until the controller clears it and reports
// ready.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.expect(StateHalted); err != nil {
		return err
	}

	c.transition(StateResetting, "host controller reset")
	c.operational.WriteBit(RegUSBCmd, CmdHostControllerReset, true)
	if err := c.poll(ctx, "reset", c.opts.ResetTimeout, ErrResetTimeout, func() bool {
		if c.operational.ReadBit(RegUSBCmd, CmdHostControllerReset) {
			return false
		}
		return !c.operational.Status().ControllerNotReady()
	}); err != nil {
		return err
	}
	c.transition(StateReady, "page size %d", c.operational.PageSize())
	return nil
}

// poll evaluates condition until it holds. Exceeding timeout yields cause;
// cancellation of ctx yields the context error.
func (c *Controller) poll(ctx context.Context, phase string, timeout time.Duration, cause error, condition func() bool) error {
	start := time.Now()
	err := wait.PollUntilContextTimeout(ctx, c.opts.PollInterval, timeout, true, func(context.Context) (bool, error) {
		return condition(), nil
	})
	c.opts.Metrics.observeWait(phase, time.Since(start), err)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w after %s", cause, timeout)
}

// Close releases every register claim and unmaps the registers. It may be
// called more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		if c.legacy.Handle != nil {
			c.legacy.Release()
		}
		if c.doorbells.Handle != nil {
			c.doorbells.Release()
		}
		if c.runtime.Handle != nil {
			c.runtime.Release()
		}
		if c.ports.Handle != nil {
			c.ports.Release()
		}
		if c.operational.Handle != nil {
			c.operational.Release()
		}
		if err := c.mapper.Unmap(c.region); err != nil {
			c.closeErr = fmt.Errorf("failed to unmap registers of %s: %w", c.source, err)
		}
	})
	return c.closeErr
}
