package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"reelforge/internal/core/credential"
	"reelforge/internal/logger"
)

// Operation performs one network attempt with the given credential attached
// and returns the path of the produced artifact.
type Operation func(ctx context.Context, cred *credential.Credential) (string, error)

// Error is the terminal failure of a fetch after all retries.
type Error struct {
	Target   string
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Target, e.Attempts, e.Last)
}

func (e *Error) Unwrap() error { return e.Last }

// blockSignatures are upstream anti-automation tells. Matching one is logged
// for operators but does not change control flow: every failure already
// counts toward the credential's block threshold.
var blockSignatures = []string{"sign in", "bot", "captcha", "blocked", "403"}

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	// AcquireTimeout bounds how long one attempt waits on the pool. Without
	// it an exhausted pool would stall the attempt forever.
	AcquireTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: 2 * time.Second, AcquireTimeout: 30 * time.Second}
}

// Fetcher wraps an opaque network operation with credential rotation and
// retry with exponential backoff.
type Fetcher struct {
	pool *credential.Pool
	cfg  Config
	log  *logger.Logger
}

func New(pool *credential.Pool, cfg Config) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}
	return &Fetcher{pool: pool, cfg: cfg, log: logger.New("Fetcher")}
}

// Fetch runs op with a fresh credential per attempt. A successful attempt
// returns immediately; failures rotate to the next credential after backoff.
// Running out of credentials entirely is permanent: retrying without any
// credential cannot help.
func (f *Fetcher) Fetch(ctx context.Context, target string, op Operation) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, f.cfg.AcquireTimeout)
		cred, err := f.pool.Acquire(acquireCtx)
		cancel()
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				return "", fmt.Errorf("fetch %s: %w", target, err)
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Acquire timed out: pool exhausted for the whole window.
			return "", &Error{Target: target, Attempts: attempt + 1, Last: fmt.Errorf("credential pool exhausted: %w", err)}
		}

		f.log.LogDebugf("fetching %s with %s (attempt %d/%d)", truncate(target, 60), cred.Name, attempt+1, f.cfg.MaxRetries)

		artifact, err := op(ctx, cred)
		if err == nil {
			f.pool.Release(cred, credential.Success, "")
			return artifact, nil
		}

		lastErr = err
		f.pool.Release(cred, credential.Failure, truncate(err.Error(), 80))
		if sig := matchBlockSignature(err); sig != "" {
			f.log.LogWarnf("block signature %q with %s on %s, rotating", sig, cred.Name, truncate(target, 60))
		} else {
			f.log.LogWarnf("fetch error on %s: %v", truncate(target, 60), err)
		}

		if attempt < f.cfg.MaxRetries-1 {
			delay := f.backoff(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
	}
	return "", &Error{Target: target, Attempts: f.cfg.MaxRetries, Last: lastErr}
}

// backoff is baseDelay * 2^attempt plus up to a second of jitter.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.cfg.BaseDelay * (1 << attempt)
	return d + time.Duration(rand.Int63n(int64(time.Second)))
}

func matchBlockSignature(err error) string {
	msg := strings.ToLower(err.Error())
	for _, sig := range blockSignatures {
		if strings.Contains(msg, sig) {
			return sig
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
