// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import (
	"time"

	"github.com/ironcore-dev/xhci-utils/eventutils/recorder"
)

// HandoffPolicy decides what happens when firmware keeps ownership past
// the handoff timeout.
type HandoffPolicy int

const (
	// HandoffFail aborts bring-up with ErrHandoffTimeout.
	HandoffFail HandoffPolicy = iota
	// HandoffForce takes ownership anyway: the BIOS semaphore is cleared by
	// the OS and SMIs are disabled.
	HandoffForce
)

func (p HandoffPolicy) String() string {
	switch p {
	case HandoffFail:
		return "fail"
	case HandoffForce:
		return "force"
	default:
		return "unknown"
	}
}

const (
	DefaultHandoffTimeout = time.Second
	// xHCI requires HCHalted within 16ms of clearing R/S.
	DefaultHaltTimeout  = 10 * 16 * time.Millisecond
	DefaultResetTimeout = time.Second
	DefaultPollInterval = time.Millisecond
	// DefaultRegionSize covers the register space of common controllers.
	DefaultRegionSize = 0x10000
)

// Options configures a Controller.
type Options struct {
	HandoffTimeout time.Duration
	HaltTimeout    time.Duration
	ResetTimeout   time.Duration
	PollInterval   time.Duration
	HandoffPolicy  HandoffPolicy
	// RegionSize is the length of MMIO space mapped at the BAR address.
	RegionSize uint64
	// Recorder receives one event per state transition and failure.
	Recorder recorder.EventRecorder
	// Metrics is optional.
	Metrics *Metrics
}

func (o *Options) Defaults() {
	if o.HandoffTimeout <= 0 {
		o.HandoffTimeout = DefaultHandoffTimeout
	}
	if o.HaltTimeout <= 0 {
		o.HaltTimeout = DefaultHaltTimeout
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = DefaultResetTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RegionSize == 0 {
		o.RegionSize = DefaultRegionSize
	}
	if o.Recorder == nil {
		o.Recorder = recorder.Discard
	}
}
