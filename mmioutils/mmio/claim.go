// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Claim is exclusive write ownership of a physical range.
type Claim struct {
	claimer *Claimer
	owner   string
	start   uint64
	end     uint64
}

func (c *Claim) Owner() string {
	return c.owner
}

func (c *Claim) Start() uint64 {
	return c.start
}

func (c *Claim) End() uint64 {
	return c.end
}

func (c *Claim) overlaps(start, end uint64) bool {
	return c.start < end && start < c.end
}

// Release gives the range back. Releasing twice is a no-op.
func (c *Claim) Release() {
	c.claimer.release(c)
}

// Claimer hands out non-overlapping claims. Every mutable Handle holds one,
// so two live writable views over the same registers cannot exist.
type Claimer struct {
	log    logr.Logger
	mutex  sync.Mutex
	claims []*Claim
}

func NewClaimer(log logr.Logger) *Claimer {
	return &Claimer{log: log}
}

func (c *Claimer) Claim(owner string, start, size uint64) (*Claim, error) {
	end := start + size
	if size == 0 || end < start {
		return nil, fmt.Errorf("%w: empty or wrapping range %#x+%#x", ErrOutOfRange, start, size)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, existing := range c.claims {
		if existing.overlaps(start, end) {
			return nil, fmt.Errorf("%w: %s [%#x, %#x) overlaps %s [%#x, %#x)",
				ErrRegionClaimed, owner, start, end, existing.owner, existing.start, existing.end)
		}
	}

	claim := &Claim{
		claimer: c,
		owner:   owner,
		start:   start,
		end:     end,
	}
	c.claims = append(c.claims, claim)
	c.log.V(3).Info("Claimed region", "owner", owner, "start", start, "end", end)
	return claim, nil
}

func (c *Claimer) release(claim *Claim) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i, existing := range c.claims {
		if existing == claim {
			c.claims = append(c.claims[:i], c.claims[i+1:]...)
			c.log.V(3).Info("Released region", "owner", claim.owner, "start", claim.start)
			return
		}
	}
}

// Len returns the number of live claims.
func (c *Claimer) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.claims)
}
