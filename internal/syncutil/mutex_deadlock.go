// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build deadlock

// Package syncutil provides the mutex used by the driver, here backed by
// go-deadlock for lock-order detection.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex reports potential deadlocks via go-deadlock
type Mutex struct {
	deadlock.Mutex
}
