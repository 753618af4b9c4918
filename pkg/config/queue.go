package config

import "time"

// QueueConfig contains session queue and worker pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines. Each worker runs one
	// session at a time, so it is also the concurrent session limit.
	WorkerCount int `yaml:"worker_count"`

	// MaxQueuedSessions bounds how many accepted sessions may wait for a worker.
	MaxQueuedSessions int `yaml:"max_queued_sessions"`

	// SessionTimeout is the maximum time a session can be processed.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active sessions
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxQueuedSessions:       64,
		SessionTimeout:          60 * time.Minute,
		GracefulShutdownTimeout: 2 * time.Minute,
	}
}

// StreamingConfig controls progress delivery to subscribers.
type StreamingConfig struct {
	// KeepaliveInterval is the idle window after which a subscriber receives
	// a keepalive event.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// CleanupGrace is how long a finished session stays subscribable so
	// consumers can drain the terminal event.
	CleanupGrace time.Duration `yaml:"cleanup_grace"`

	// CleanupInterval is how often finished sessions are swept.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultStreamingConfig returns the built-in streaming defaults.
func DefaultStreamingConfig() *StreamingConfig {
	return &StreamingConfig{
		KeepaliveInterval: 30 * time.Second,
		CleanupGrace:      5 * time.Minute,
		CleanupInterval:   30 * time.Second,
	}
}

// RetentionConfig controls how long research history is kept.
type RetentionConfig struct {
	// HistoryRetentionDays is how many days stored reports are kept.
	HistoryRetentionDays int `yaml:"history_retention_days"`

	// PurgeInterval is how often expired history is deleted.
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		HistoryRetentionDays: 365,
		PurgeInterval:        12 * time.Hour,
	}
}
