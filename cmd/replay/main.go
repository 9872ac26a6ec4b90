package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/saltyscope/internal/replay"
)

// Default configuration constants.
const (
	defaultTimeout    = 5 * time.Second
	defaultInterval   = 100 * time.Millisecond
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		scenario = flag.String("scenario", "", "YAML scenario file")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		interval = flag.Duration("interval", defaultInterval, "Pause between observations")
		logFile  = flag.String("log", "", "Also write log output to this file")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *scenario == "" {
		replay.ShowHelp()
		return
	}

	if err := replay.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	sc, err := replay.LoadScenario(*scenario)
	if err != nil {
		os.Stderr.WriteString("Failed to load scenario: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &replay.Config{
		BaseURL:  *baseURL,
		Timeout:  *timeout,
		Interval: *interval,
		Verbose:  *verbose,
	}

	stats, err := replay.Run(ctx, config, sc)
	_ = replay.WriteStats(os.Stdout, sc.Name, stats)
	if err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
