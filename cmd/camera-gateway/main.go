// Command camera-gateway is the gateway's entry point: load configuration,
// build every component through internal/server, and run until a shutdown
// signal arrives.
//
// The startup/shutdown shape follows the teacher's cmd/server/main.go
// (signal-driven graceful shutdown with a bounded timeout), but the
// component wiring itself lives in internal/server rather than inline here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-video/camera-gateway/internal/server"
)

var buildVersion = "dev"

func main() {
	configPath := flag.String("config", "config/default.yaml", "path to the gateway's configuration file")
	flag.Parse()

	server.Version = buildVersion

	srv, err := server.New(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "camera-gateway: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-sigChan:
		cancel()
	case err := <-done:
		if err != nil {
			fmt.Fprintf(os.Stderr, "camera-gateway: %v\n", err)
			os.Exit(1)
		}
		return
	}

	select {
	case err := <-done:
		if err != nil {
			fmt.Fprintf(os.Stderr, "camera-gateway: %v\n", err)
			os.Exit(1)
		}
	case <-time.After(15 * time.Second):
		fmt.Fprintln(os.Stderr, "camera-gateway: shutdown timed out, forcing exit")
		os.Exit(1)
	}
}
