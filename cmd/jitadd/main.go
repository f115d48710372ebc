package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/tinyrange/jitadd/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jitadd: %v\n", err)
		os.Exit(1)
	}
}
