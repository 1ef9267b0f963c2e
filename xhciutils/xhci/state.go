// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import "fmt"

// State is the bring-up state of a Controller. States only advance.
type State int

const (
	StateDiscovered State = iota
	StateCapabilityRead
	StateOwnershipRequested
	StateOwnershipGranted
	StateHalting
	StateHalted
	StateResetting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "Discovered"
	case StateCapabilityRead:
		return "CapabilityRead"
	case StateOwnershipRequested:
		return "OwnershipRequested"
	case StateOwnershipGranted:
		return "OwnershipGranted"
	case StateHalting:
		return "Halting"
	case StateHalted:
		return "Halted"
	case StateResetting:
		return "Resetting"
	case StateReady:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
