package replay

import (
	"context"
	"errors"
	"fmt"
)

// ErrMismatch is returned when the service never reaches the expected status.
var ErrMismatch = errors.New("status mismatch")

// awaitExpectation polls the status until it matches or the window runs out.
func awaitExpectation(ctx context.Context, c *client, want Expectation) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, want.Within)
	defer cancel()

	var last Status
	for {
		st, err := c.status(ctx)
		if err == nil {
			last = st
			if compare(st, want) == "" {
				return st, nil
			}
		}
		if err := sleep(ctx, statusPollInterval); err != nil {
			return last, fmt.Errorf("%w after %s: %s", ErrMismatch, want.Within, compare(last, want))
		}
	}
}

// compare describes the first difference, or returns "".
func compare(got Status, want Expectation) string {
	switch {
	case want.StatusMessage != "" && got.StatusMessage != want.StatusMessage:
		return fmt.Sprintf("status message %q, want %q", got.StatusMessage, want.StatusMessage)
	case want.Reason != "" && got.Reason != want.Reason:
		return fmt.Sprintf("reason %q, want %q", got.Reason, want.Reason)
	case want.Consumed != nil && got.Consumed != *want.Consumed:
		return fmt.Sprintf("consumed %t, want %t", got.Consumed, *want.Consumed)
	default:
		return ""
	}
}
