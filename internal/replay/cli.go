package replay

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/okian/saltyscope/pkg/logger"
)

// SetupLogging initializes the logger, optionally mirroring it to logFile.
func SetupLogging(logFile string, verbose bool) error {
	opts := []logger.Option{logger.WithOutput(os.Stdout)}
	if logFile != "" {
		opts = append(opts, logger.WithFile(logFile))
	}
	if err := logger.Init(opts...); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// WriteStats renders the run summary as a table.
func WriteStats(w io.Writer, name string, stats *Stats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Scenario", "Steps", "Observations", "Accepted", "Rejected", "Rebets", "Duration")
	_ = table.Append(name,
		strconv.Itoa(stats.Steps),
		strconv.Itoa(stats.Observations),
		strconv.Itoa(stats.Accepted),
		strconv.Itoa(stats.Rejected),
		strconv.Itoa(stats.Rebets),
		stats.Duration.String())
	return table.Render()
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`Saltyscope Replay Tool
======================

Plays a scripted sequence of page observations against a running service
and checks the status it settles on.

Usage:
  go run ./cmd/replay -scenario scenario.yaml [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -scenario string
        YAML scenario file (required)
  -timeout duration
        HTTP request timeout (default 5s)
  -interval duration
        Pause between observations (default 100ms)
  -log string
        Also write log output to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Scenario format:
  name: fresh match
  policy: {mode: elo, maxBet: {value: 100, kind: percentage}}
  steps:
    - observe: {slot1: Ryu, slot2: Ken, accepting: true, balance: "$1,000"}
    - wait: 500ms
      observe: {slot1: Ryu, slot2: Ken, accepting: true}
      repeat: 3
    - rebet: true
  expect:
    status_message: "Bet placed: 519 on Ryu!"
    consumed: true
    within: 5s
`)
}
