package tasks

import "time"

// Config sizes the background queue. Migration tasks are long-lived and
// single-attempt (the orchestrator owns per-post retries), so the knobs
// here cover worker capacity and queue hygiene, not retry behavior.
type Config struct {
	// Workers is the number of migrations processed concurrently. One
	// blog migrates strictly sequentially; extra workers only matter
	// when several blogs are queued at once. Default: 1
	Workers int

	// ReleaseAfter is how long a claimed task may sit unfinished before
	// the queue hands it to another worker. Must exceed the migration
	// task timeout, or a live run gets double-started. Default: 3h
	ReleaseAfter time.Duration

	// CleanupInterval is how often finished tasks are swept. Default: 1h
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         1,
		ReleaseAfter:    3 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}
