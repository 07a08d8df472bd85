package journal

import (
	"context"
	"fmt"
	"os"
	"time"
)

// RetentionConfig holds event retention and cleanup policy
type RetentionConfig struct {
	// MaxAge is how long events are kept. Default: 7 days.
	MaxAge time.Duration

	// MaxEvents caps the total number of stored events; when exceeded,
	// the oldest events beyond the cap are deleted. Default: 50000.
	MaxEvents int

	// SweepInterval is how often the cleanup sweep runs. Default: 1 hour.
	SweepInterval time.Duration

	// BatchSize is the number of events deleted per statement. Larger
	// batches finish faster but hold locks longer. Default: 1000.
	BatchSize int
}

// DefaultRetentionConfig returns the default retention policy
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxAge:        7 * 24 * time.Hour,
		MaxEvents:     50000,
		SweepInterval: time.Hour,
		BatchSize:     1000,
	}
}

// Validate checks the retention policy for sane values
func (c RetentionConfig) Validate() error {
	if c.MaxAge < time.Hour {
		return fmt.Errorf("retention max_age must be at least 1h (got %v)", c.MaxAge)
	}
	if c.MaxEvents < 1000 {
		return fmt.Errorf("retention max_events must be at least 1000 (got %d)", c.MaxEvents)
	}
	if c.SweepInterval < time.Minute {
		return fmt.Errorf("retention sweep_interval must be at least 1m (got %v)", c.SweepInterval)
	}
	if c.BatchSize < 100 || c.BatchSize > 10000 {
		return fmt.Errorf("retention batch_size must be between 100 and 10000 (got %d)", c.BatchSize)
	}
	return nil
}

// Sweep deletes events past the retention policy and returns how many were
// removed. Safe to call concurrently with appends.
func (j *Journal) Sweep(ctx context.Context, cfg RetentionConfig) (int, error) {
	deleted := 0

	// Age-based pass
	cutoff := time.Now().Add(-cfg.MaxAge)
	for {
		res, err := j.db.ExecContext(ctx, `
			DELETE FROM lifecycle_events
			WHERE id IN (
				SELECT id FROM lifecycle_events
				WHERE timestamp < ?
				ORDER BY timestamp
				LIMIT ?
			)`, cutoff, cfg.BatchSize)
		if err != nil {
			return deleted, fmt.Errorf("age-based sweep: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
		if int(n) < cfg.BatchSize {
			break
		}
	}

	// Cap-based pass
	count, err := j.Count(ctx)
	if err != nil {
		return deleted, err
	}
	if excess := count - cfg.MaxEvents; excess > 0 {
		res, err := j.db.ExecContext(ctx, `
			DELETE FROM lifecycle_events
			WHERE id IN (
				SELECT id FROM lifecycle_events
				ORDER BY timestamp
				LIMIT ?
			)`, excess)
		if err != nil {
			return deleted, fmt.Errorf("cap-based sweep: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}

	return deleted, nil
}

// RunRetentionLoop sweeps on the configured interval until the context is
// cancelled. Sweep failures are logged and the loop continues; retention is
// housekeeping, not correctness.
func (j *Journal) RunRetentionLoop(ctx context.Context, cfg RetentionConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := j.Sweep(ctx, cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: journal retention sweep failed: %v\n", err)
				continue
			}
			if deleted > 0 {
				fmt.Printf("journal: retention sweep deleted %d event(s)\n", deleted)
			}
		}
	}
}
