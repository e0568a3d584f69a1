package freshcache

// Metrics receives cache lifecycle events. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	// Hit is a read served from a fresh entry.
	Hit()
	// Stale is a read served from a stale entry while a refresh runs.
	Stale()
	// Miss is a read that had to wait for the loader (cold or expired).
	Miss()
	// RefreshFailed is a background refresh whose loader returned an error.
	RefreshFailed()
	// Eviction is an entry dropped to respect the entry limit.
	Eviction()
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()           {}
func (NoopMetrics) Stale()         {}
func (NoopMetrics) Miss()          {}
func (NoopMetrics) RefreshFailed() {}
func (NoopMetrics) Eviction()      {}
