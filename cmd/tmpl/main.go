package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/arthur-debert/tmpl/pkg/errors"
)

func main() {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupts
		os.Exit(errors.ExitInterrupt)
	}()

	if err := Execute(); err != nil {
		os.Exit(errors.ExitCodeFor(err))
	}
}
