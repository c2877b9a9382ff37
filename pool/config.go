package pool

import "time"

// Config bounds the sessions a Pool keeps.
type Config struct {
	MaxSize int           // Maximum number of idle sessions per key
	MaxAge  time.Duration // Maximum age of a session before it is closed
	MaxIdle time.Duration // Maximum idle time before a session is closed

	// CleanupInterval is how often expired sessions are swept.
	// Default: 1 minute
	CleanupInterval time.Duration
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		MaxSize:         10,
		MaxAge:          30 * time.Minute,
		MaxIdle:         5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}
