package repository

import "time"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithRetention drops decisions older than d when the store opens.
func WithRetention(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithMaxHistory caps the limit accepted by History.
func WithMaxHistory(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}
