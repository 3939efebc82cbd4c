package main

import (
	"os"

	"github.com/echolab/transcriptor/cmd/transcriptor/cmd"
	"github.com/echolab/transcriptor/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
