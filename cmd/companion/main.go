// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/gait_assist/internal/app"
	"github.com/relabs-tech/gait_assist/internal/config"
)

func main() {
	configPath := flag.String("config", "./gait_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting gait-assist companion (sync receiver + HTTP API)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunCompanion(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
