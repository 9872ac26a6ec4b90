// Package replay plays recorded page observations against a running service
// and checks the status it ends up in.
package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Timeout  time.Duration // HTTP request timeout
	Interval time.Duration // Pause between observations unless a step sets its own
	Verbose  bool          // Log every step
}

// Stats holds replay statistics.
type Stats struct {
	Steps        int
	Observations int
	Accepted     int
	Rejected     int
	Rebets       int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}
