package database

import (
	"context"
	"time"
)

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
}

// Status is the health-check result reported by the /health endpoint.
type Status struct {
	Healthy bool      `json:"healthy"`
	Latency int64     `json:"latency_ms"`
	Pool    PoolStats `json:"pool"`
	Error   string    `json:"error,omitempty"`
}

// Health pings the database and snapshots the pool.
func (c *Client) Health(ctx context.Context) Status {
	stat := c.pool.Stat()
	status := Status{
		Pool: PoolStats{
			Total:    stat.TotalConns(),
			Idle:     stat.IdleConns(),
			Acquired: stat.AcquiredConns(),
			Max:      stat.MaxConns(),
		},
	}

	start := time.Now()
	err := c.pool.Ping(ctx)
	status.Latency = time.Since(start).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}
