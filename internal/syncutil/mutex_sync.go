// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !deadlock

// Package syncutil provides the mutex used by the driver. Building with
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock so lock-order
// problems between the serializer, state machine and notifier show up in tests.
package syncutil

import "sync"

// Mutex is a sync.Mutex unless built with -tags=deadlock
type Mutex struct {
	sync.Mutex
}
