package queue

// Option configures a queue.
type Option func(*settings)

type settings struct {
	capacity int
}

// WithCapacity sets how many commands may wait before Enqueue reports ErrFull.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}
