package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/patrikhermansson/annprep/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main is the entry point of the application.
// The log level comes from DEBUG_ANNPREP (see core). An interrupt cancels the
// running command's context so downloads stop and leave no partial files.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	go listenForInterrupt(stopChan, cancel)

	if err := cmd.Execute(ctx); err != nil {
		log.Error().Err(err).Msg("annprep failed")
		cancel()
		os.Exit(1)
	}
}

// listenForInterrupt cancels the command context when an interrupt signal is received.
func listenForInterrupt(stopChan chan os.Signal, cancel context.CancelFunc) {
	<-stopChan
	log.Warn().Msg("Interrupt signal received. Exiting...")
	cancel()
}
