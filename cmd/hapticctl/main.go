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

	if flag.NArg() != 1 {
		log.Fatalf("usage: hapticctl [-config FILE] test|reset")
	}

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunHapticCtl(flag.Arg(0)); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
