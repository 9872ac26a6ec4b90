package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/saltyscope/pkg/logger"
)

const (
	defaultExpectWithin = 5 * time.Second
	statusPollInterval  = 50 * time.Millisecond
)

// Run plays the scenario and verifies the final status.
func Run(ctx context.Context, config *Config, sc *Scenario) (*Stats, error) {
	log := logger.Get().Named("replay")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(config.BaseURL, config.Timeout)

	log.Info(ctx, "starting replay",
		logger.String("scenario", sc.Name),
		logger.String("baseURL", config.BaseURL),
		logger.Int("steps", len(sc.Steps)))

	// Step 1: Check service health
	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Apply the scenario policy
	if sc.Policy != nil {
		if err := c.putPolicy(ctx, sc.Policy); err != nil {
			return stats, err
		}
	}

	// Step 3: Play the steps in order
	for i, st := range sc.Steps {
		stats.Steps++
		if err := play(ctx, c, config, st, stats); err != nil {
			return stats, fmt.Errorf("step %d: %w", i+1, err)
		}
		if config.Verbose {
			log.Info(ctx, "step played", logger.Int("step", i+1), logger.Int("accepted", stats.Accepted))
		}
	}

	// Step 4: Verify the outcome
	final, err := awaitExpectation(ctx, c, sc.Expect)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if err != nil {
		return stats, err
	}

	log.Info(ctx, "replay completed",
		logger.String("status", final.StatusMessage),
		logger.String("reason", final.Reason),
		logger.Int("observations", stats.Observations),
		logger.Int("rejected", stats.Rejected),
		logger.String("duration", stats.Duration.String()))
	return stats, nil
}

func play(ctx context.Context, c *client, config *Config, st Step, stats *Stats) error {
	wait := st.Wait
	if wait == 0 {
		wait = config.Interval
	}

	if st.Rebet {
		stats.Rebets++
		_, err := c.rebet(ctx)
		return err
	}

	n := max(st.Repeat, 1)
	for range n {
		stats.Observations++
		accepted, err := c.observe(ctx, *st.Observe)
		if err != nil {
			return err
		}
		if accepted {
			stats.Accepted++
		} else {
			stats.Rejected++
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
