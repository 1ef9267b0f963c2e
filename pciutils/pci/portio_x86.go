// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && (amd64 || 386)

package pci

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// configPortCount covers CONFIG_ADDRESS and CONFIG_DATA.
const configPortCount = 8

// inl and outl execute a single 32-bit IN or OUT instruction.
func inl(port uint16) uint32
func outl(port uint16, value uint32)

type portAccess struct {
	grant   func() error
	release func() error
	in      func(port uint16) uint32
	out     func(port uint16, value uint32)
}

type portRequest struct {
	port  uint16
	value uint32
	write bool
	reply chan uint32
}

// HostPort performs 32-bit port I/O on the configuration ports with IN and
// OUT instructions. I/O permissions belong to a thread, so every access is
// served by one goroutine locked to the thread that was granted access.
// Port access has no error path on real hardware; misuse is kept and
// reported by Err.
type HostPort struct {
	requests chan portRequest
	done     chan struct{}
	stopped  chan struct{}

	closeOnce sync.Once
	closeErr  error

	mutex sync.Mutex
	err   error
}

// OpenHostPort grants the calling process access to ports 0xCF8-0xCFF. It
// needs CAP_SYS_RAWIO.
func OpenHostPort() (*HostPort, error) {
	return openHostPort(portAccess{
		grant: func() error {
			return unix.Ioperm(int(ConfigAddressPort), configPortCount, 1)
		},
		release: func() error {
			return unix.Ioperm(int(ConfigAddressPort), configPortCount, 0)
		},
		in:  inl,
		out: outl,
	})
}

func openHostPort(access portAccess) (*HostPort, error) {
	p := &HostPort{
		requests: make(chan portRequest),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	granted := make(chan error, 1)
	go p.serve(access, granted)
	if err := <-granted; err != nil {
		return nil, errors.Join(ErrPortIOUnavailable,
			fmt.Errorf("failed to gain access to ports %#04x-%#04x: %w",
				ConfigAddressPort, ConfigAddressPort+configPortCount-1, err))
	}
	return p, nil
}

func (p *HostPort) serve(access portAccess, granted chan<- error) {
	defer close(p.stopped)

	// Never unlocked: the runtime discards the thread, and with it the
	// permissions, when this goroutine returns.
	runtime.LockOSThread()
	if err := access.grant(); err != nil {
		granted <- err
		return
	}
	granted <- nil

	for {
		select {
		case req := <-p.requests:
			if req.write {
				access.out(req.port, req.value)
				req.reply <- 0
				continue
			}
			req.reply <- access.in(req.port)
		case <-p.done:
			p.closeErr = access.release()
			return
		}
	}
}

func (p *HostPort) do(req portRequest) uint32 {
	if req.port < ConfigAddressPort || req.port > ConfigAddressPort+configPortCount-4 {
		p.setErr(fmt.Errorf("%w: port %#04x is outside the configuration ports", ErrPortIOUnavailable, req.port))
		return 0xffffffff
	}

	req.reply = make(chan uint32, 1)
	select {
	case p.requests <- req:
		return <-req.reply
	case <-p.done:
		p.setErr(fmt.Errorf("%w: port %#04x accessed after close", ErrPortIOUnavailable, req.port))
		return 0xffffffff
	}
}

func (p *HostPort) Out32(port uint16, value uint32) {
	p.do(portRequest{port: port, value: value, write: true})
}

func (p *HostPort) In32(port uint16) uint32 {
	return p.do(portRequest{port: port})
}

func (p *HostPort) setErr(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// Err returns the first access error, if any.
func (p *HostPort) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.err
}

// Close stops the serving goroutine and drops the port permissions. It may
// be called more than once.
func (p *HostPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.stopped
	})
	return p.closeErr
}
