package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	// Ctrl-C during a client call is not worth a message.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "dynq: %v\n", err)
	}
	os.Exit(1)
}
