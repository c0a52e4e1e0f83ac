package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func Term() chan os.Signal {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGTERM)
	return termCh
}

// TermContext returns a context cancelled on SIGINT or SIGTERM
func TermContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	termCh := Term()
	go func() {
		select {
		case <-termCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(termCh)
	}()
	return ctx, cancel
}
