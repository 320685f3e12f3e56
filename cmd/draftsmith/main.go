package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"draftsmith/internal/services"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		// Deterministic failures (bad flags, bad config, missing items) exit
		// with 2 so scripts can tell them from runtime failures.
		if !services.Retryable(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
