// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"time"

	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// poll reads each configured output in turn, pausing PollInterval after every
// read, for as long as the connection is live. It stops at the first error
// without retrying; fatal errors have already crashed the connection.
func (d *Device) poll() {
	defer d.wg.Done()

	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	for {
		for _, port := range d.cfg.Ports {
			if !d.polling() {
				return
			}

			st, err := call(d.ctx, d, nxt.GetOutputState{Port: port})
			if err != nil {
				d.logger.Debug("poller stopped", "port", port.String(), "error", err)
				return
			}

			d.mu.Lock()
			if d.state.Live() {
				d.storeReadingLocked(st)
			}
			d.mu.Unlock()

			timer.Reset(d.cfg.PollInterval)
			select {
			case <-timer.C:
			case <-d.ctx.Done():
				return
			}
		}
	}
}

func (d *Device) polling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Kind == StateReady || d.state.Kind == StateCalling
}
