// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/brickstat/pkg/device"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// newDevice builds an unconnected device from the resolved settings
func newDevice() (*device.Device, string, error) {
	transport, connInfo, err := NewTransport(appConfig.Connection)
	if err != nil {
		return nil, "", err
	}
	d, err := device.New(transport, appConfig.DeviceConfig(appLogger))
	if err != nil {
		return nil, "", err
	}
	return d, connInfo, nil
}

// connectDevice builds and connects a device. The caller closes it.
func connectDevice(ctx context.Context) (*device.Device, string, error) {
	d, connInfo, err := newDevice()
	if err != nil {
		return nil, "", err
	}
	if err := d.Connect(ctx); err != nil {
		d.Close()
		return nil, "", fmt.Errorf("connect (%s): %w", connInfo, err)
	}
	return d, connInfo, nil
}
