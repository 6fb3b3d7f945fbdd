package db

import "context"

// Health statuses surfaced to process supervisors.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is the composite health value: one status plus the adapter kind.
type Health struct {
	Status  string `json:"status"`
	Adapter string `json:"adapter"`
}

// Health pings the connection once. It never returns an error: a failed
// ping reports unhealthy, and a registry with load failures reports
// degraded even when the connection answers.
func (d *DB) Health(ctx context.Context) Health {
	h := Health{Adapter: string(d.kind)}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed || d.conn == nil {
		h.Status = StatusUnhealthy
		return h
	}
	if err := d.conn.Ping(ctx); err != nil {
		d.logger.Warnw("health ping failed", "adapter", d.kind, "error", err)
		h.Status = StatusUnhealthy
		return h
	}
	if d.registry != nil && d.registry.Degraded() {
		h.Status = StatusDegraded
		return h
	}
	h.Status = StatusHealthy
	return h
}
