package dedupe

// Option configures the window ledger.
type Option func(*windowLedger)

// WithMaxSize bounds how many window keys are remembered. Values below 1 are raised to 1.
func WithMaxSize(maxSize int) Option {
	return func(d *windowLedger) {
		d.maxSize = maxSize
	}
}
