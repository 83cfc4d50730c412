// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

package pose

import (
	"sync/atomic"
	"time"

	"github.com/chainofclaw/COC-sub002/params"
)

// EpochClock resolves the current epoch. Injectable so settlement and
// quota tests advance epochs without sleeping.
type EpochClock interface {
	CurrentEpoch() uint64
	NowMs() uint64
}

// WallClock is the production clock: epochId = floor(unixSeconds/3600).
type WallClock struct{}

// CurrentEpoch implements EpochClock.
func (WallClock) CurrentEpoch() uint64 {
	return uint64(time.Now().Unix()) / params.EpochSeconds
}

// NowMs implements EpochClock.
func (WallClock) NowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// ManualClock is a test clock advanced explicitly.
type ManualClock struct {
	epoch atomic.Uint64
	nowMs atomic.Uint64
}

// NewManualClock starts at the given epoch.
func NewManualClock(epoch uint64) *ManualClock {
	c := &ManualClock{}
	c.epoch.Store(epoch)
	c.nowMs.Store(epoch * params.EpochSeconds * 1000)
	return c
}

// CurrentEpoch implements EpochClock.
func (c *ManualClock) CurrentEpoch() uint64 { return c.epoch.Load() }

// NowMs implements EpochClock.
func (c *ManualClock) NowMs() uint64 { return c.nowMs.Load() }

// Advance moves the clock forward by n epochs.
func (c *ManualClock) Advance(n uint64) {
	c.epoch.Add(n)
	c.nowMs.Add(n * params.EpochSeconds * 1000)
}

// SetNowMs pins the millisecond clock (latency-window tests).
func (c *ManualClock) SetNowMs(ms uint64) { c.nowMs.Store(ms) }
