package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/dax/pkg/keeper"
	"github.com/luxfi/dax/pkg/log"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse command
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	switch command {
	case "run":
		runKeeper()
	case "once":
		runOnce()
	case "version":
		fmt.Printf("DAX Keeper v%s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("DAX Keeper - kicks auctions when their windows reopen")
	fmt.Println("\nUsage:")
	fmt.Println("  dax-keeper <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Poll the daemon and kick continuously")
	fmt.Println("  once      Run a single kick round and exit")
	fmt.Println("  version   Show version information")
	fmt.Println("\nOptions:")
	fmt.Println("  --daemon <url>         Daemon base URL (default: http://localhost:8700)")
	fmt.Println("  --interval <duration>  Poll interval for run (default: 30s)")
	fmt.Println("  --timeout <duration>   Per-request timeout (default: 10s)")
	fmt.Println("  --log-level <level>    Log level (default: info)")
}

func runKeeper() {
	var (
		daemonURL = flag.String("daemon", "http://localhost:8700", "Daemon base URL")
		interval  = flag.Duration("interval", keeper.DefaultInterval, "Poll interval")
		timeout   = flag.Duration("timeout", keeper.DefaultTimeout, "Per-request timeout")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	k, err := keeper.New(keeper.Config{
		DaemonURL: *daemonURL,
		Interval:  *interval,
		Timeout:   *timeout,
	}, logger)
	if err != nil {
		fmt.Printf("Failed to create keeper: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nStopping keeper...")
		cancel()
	}()

	if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("Keeper stopped with error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Keeper stopped")
}

func runOnce() {
	var (
		daemonURL = flag.String("daemon", "http://localhost:8700", "Daemon base URL")
		timeout   = flag.Duration("timeout", keeper.DefaultTimeout, "Per-request timeout")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	k, err := keeper.New(keeper.Config{
		DaemonURL: *daemonURL,
		Timeout:   *timeout,
	}, logger)
	if err != nil {
		fmt.Printf("Failed to create keeper: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*(*timeout))
	defer cancel()

	start := time.Now()
	kicked, err := k.Once(ctx)
	if err != nil {
		fmt.Printf("Kick round failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Kicked %d auction(s) in %s\n", kicked, time.Since(start).Round(time.Millisecond))
}
