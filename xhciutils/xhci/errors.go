// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package xhci

import "errors"

var (
	ErrUnsupportedController   = errors.New("controller does not provide USB legacy support")
	ErrHandoffTimeout          = errors.New("firmware did not release controller ownership")
	ErrHaltTimeout             = errors.New("controller did not halt")
	ErrResetTimeout            = errors.New("controller did not finish reset")
	ErrMisalignedPointer       = errors.New("pointer violates required alignment")
	ErrNoController            = errors.New("no xHCI controller found")
	ErrInvalidState            = errors.New("operation not allowed in controller state")
	ErrInvalidInterrupter      = errors.New("interrupter index out of range")
	ErrInvalidSlot             = errors.New("device slot out of range")
	ErrInvalidPort             = errors.New("port number out of range")
	ErrMalformedCapabilityList = errors.New("malformed extended capability list")
)
