package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// AuditInterval spaces ledger audits, which read every account.
	AuditInterval time.Duration
	// EnabledJobs restricts the jobs this replica runs. Empty means all.
	EnabledJobs []string
	// JobLockTTL bounds how long one replica holds a job.
	JobLockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		BatchSize:     50,
		AuditInterval: time.Hour,
		JobLockTTL:    5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.AuditInterval <= 0 {
		c.AuditInterval = defaults.AuditInterval
	}
	if c.JobLockTTL <= 0 {
		c.JobLockTTL = defaults.JobLockTTL
	}
	return c
}
