// convolens-analyze runs the analysis pipeline over a transcript file and
// prints the annotated conversation.
//
// Usage:
//
//	convolens-analyze analyze chat.txt --api-key=$OPENAI_API_KEY -f csv -o out.csv
//	convolens-analyze analyze chat.txt --api-key=test --summary
//	convolens-analyze models --api-key=$OPENAI_API_KEY
//	convolens-analyze registry --preset=mental-health
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
