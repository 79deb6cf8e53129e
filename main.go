// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Brickstat - LEGO NXT Brick Driver
//
// A CLI tool for connecting to an NXT brick over serial or WebSocket,
// playing tones, driving motors and watching output telemetry.

package main

import (
	"os"

	"github.com/Thermoquad/brickstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
