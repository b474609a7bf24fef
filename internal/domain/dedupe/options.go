package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the window cap.
// If maxSize > 0: bounded mode, trimmed to the newest maxSize/2 keys on overflow.
// If maxSize <= 0: unbounded mode (no trimming).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
