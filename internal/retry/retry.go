// Package retry is a direct generalization of the teacher's
// utils/retry.WithRetry: exponential backoff retry for a failing operation,
// adapted here from "retry a rate-limited LLM call" to "retry a spawn error
// (missing executable, EACCES) up to N times before it's counted," wired
// behind the optional --retry-spawn-errors flag described in SPEC_FULL.md.
// Default N=0 makes WithRetry a single attempt with no wait, so spec.md's
// baseline failure-counting semantics (§8 scenarios 6 and 7) are unaffected.
package retry

import (
	"math"
	"time"

	"github.com/gorallel/gorallel/internal/logging"
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
}

// DefaultConfig mirrors the teacher's DefaultRetryConfig.
var DefaultConfig = Config{
	MaxRetries:  5,
	InitialWait: 250 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Factor:      2.0,
}

// WithRetry runs operation, retrying while shouldRetry(err) is true, up to
// cfg.MaxRetries additional attempts with exponential backoff. It returns
// the last error if every attempt fails.
func WithRetry(log *logging.Logger, operation func() error, shouldRetry func(error) bool, cfg Config) error {
	wait := cfg.InitialWait

	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = operation()
		if err == nil || !shouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			return err
		}

		retryWait := time.Duration(math.Min(float64(wait), float64(cfg.MaxWait)))
		if log != nil {
			log.Debug("spawn error %v; retrying in %v (attempt %d/%d)", err, retryWait, attempt+1, cfg.MaxRetries)
		}
		time.Sleep(retryWait)
		wait = time.Duration(float64(wait) * cfg.Factor)
	}
	return err
}
