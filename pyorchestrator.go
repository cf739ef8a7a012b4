package main

import (
	"github.com/pyorchestrator/pyorchestrator/cmd"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("pyorchestrator failure", "error", err)
	}
}
