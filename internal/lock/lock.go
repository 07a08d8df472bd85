// Package lock guards against two sentinel daemons supervising the same
// workspace. The lock combines an OS-level flock (authoritative) with a JSON
// metadata payload (diagnostic) so `sentinel status` can tell the operator
// who holds the lock.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Holder describes the daemon holding a workspace lock
type Holder struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// Lock is a held workspace lock
type Lock struct {
	flk      *flock.Flock
	metaPath string
}

// Acquire takes the workspace lock at path, writing holder metadata next to
// it. Fails immediately when another daemon holds the lock; there is no
// waiting, a second daemon should exit, not queue.
func Acquire(path, version string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	flk := flock.New(path)
	locked, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring workspace lock: %w", err)
	}
	if !locked {
		if holder, err := readHolder(metaPath(path)); err == nil {
			return nil, fmt.Errorf("another sentinel daemon is already running (PID %d on %s, started %s)",
				holder.PID, holder.Hostname, holder.StartedAt.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("another sentinel daemon is already running (lock %s held)", path)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	meta := Holder{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		flk.Unlock()
		return nil, fmt.Errorf("marshaling lock metadata: %w", err)
	}
	mp := metaPath(path)
	if err := os.WriteFile(mp, data, 0644); err != nil {
		flk.Unlock()
		return nil, fmt.Errorf("writing lock metadata: %w", err)
	}

	return &Lock{flk: flk, metaPath: mp}, nil
}

// Release drops the lock and removes the metadata file. Use defer.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.metaPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to remove lock metadata: %v\n", err)
	}
	if err := l.flk.Unlock(); err != nil {
		return fmt.Errorf("releasing workspace lock: %w", err)
	}
	return nil
}

// CurrentHolder reads the holder metadata for an existing lock, for
// diagnostics only. The flock is what actually enforces exclusivity.
func CurrentHolder(path string) (*Holder, error) {
	return readHolder(metaPath(path))
}

func metaPath(lockPath string) string {
	return lockPath + ".json"
}

func readHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var holder Holder
	if err := json.Unmarshal(data, &holder); err != nil {
		return nil, fmt.Errorf("parsing lock metadata: %w", err)
	}
	return &holder, nil
}
