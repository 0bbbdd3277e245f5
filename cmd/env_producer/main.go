// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/flight_core/internal/app"
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/logging"
)

func main() {
	// Load configuration
	if err := config.InitGlobal("flight_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defer logging.Setup(config.Get()).Close()

	log.Println("starting flight-core barometer producer")

	if err := app.RunEnvProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
