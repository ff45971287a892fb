package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reelforge/internal/logger"
)

// ErrNoCredentials means the pool is empty. This is a configuration problem,
// not a transient condition, so Acquire fails fast instead of waiting.
var ErrNoCredentials = errors.New("no credentials configured")

type Config struct {
	// MinDelayBetweenUses is the minimum gap between two uses of the same
	// credential.
	MinDelayBetweenUses time.Duration
	// MaxFailsBeforeBlock is the consecutive-failure count that quarantines
	// a credential.
	MaxFailsBeforeBlock int
	// BlockDuration is how long a quarantined credential stays out.
	BlockDuration time.Duration
	// PollInterval bounds the wait when every credential is blocked.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinDelayBetweenUses: 5 * time.Second,
		MaxFailsBeforeBlock: 3,
		BlockDuration:       5 * time.Minute,
		PollInterval:        5 * time.Second,
	}
}

// Observer receives pool events. Optional; used to feed metrics.
type Observer interface {
	CredentialReleased(name string, success bool)
	PoolState(available, blocked int)
}

// Pool rotates credentials across concurrent fetch attempts, tracking
// per-credential health and quarantining ones that keep failing.
//
// Selection is best success rate first, least recently used as tie-break,
// and a credential is never handed out twice within MinDelayBetweenUses of
// its own last use.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential
	cfg   Config
	// wake is signalled on Release so waiters recheck instead of polling.
	wake chan struct{}
	obs  Observer
	log  *logger.Logger
}

func NewPool(cfg Config) *Pool {
	if cfg.MinDelayBetweenUses <= 0 {
		cfg.MinDelayBetweenUses = DefaultConfig().MinDelayBetweenUses
	}
	if cfg.MaxFailsBeforeBlock <= 0 {
		cfg.MaxFailsBeforeBlock = DefaultConfig().MaxFailsBeforeBlock
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultConfig().BlockDuration
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Pool{cfg: cfg, wake: make(chan struct{}, 1), log: logger.New("CredentialPool")}
}

// LoadDir builds a pool from every .txt credential file in dir.
func LoadDir(dir string, cfg Config) (*Pool, error) {
	p := NewPool(cfg)
	entries, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("scan credentials dir: %w", err)
	}
	for _, path := range entries {
		p.Add(path)
	}
	if len(entries) == 0 {
		p.log.LogWarnf("no credential files found in %s; fetch stages will fail until some are added", dir)
	} else {
		p.log.LogInfof("loaded %d credential files from %s", len(entries), dir)
	}
	return p, nil
}

func (p *Pool) SetObserver(obs Observer) {
	p.mu.Lock()
	p.obs = obs
	p.mu.Unlock()
}

// Acquire returns the best available credential, waiting as needed. It
// blocks while every credential is inside its delay window or quarantined,
// waking on Release or when the shortest remaining wait elapses. ctx bounds
// the total wait; an empty pool returns ErrNoCredentials immediately.
func (p *Pool) Acquire(ctx context.Context) (*Credential, error) {
	for {
		p.mu.Lock()
		if len(p.creds) == 0 {
			p.mu.Unlock()
			return nil, ErrNoCredentials
		}

		now := time.Now()
		var best *Credential
		minWait := time.Duration(-1)
		for _, c := range p.creds {
			if !c.availableAt(now) {
				continue
			}
			if wait := p.cfg.MinDelayBetweenUses - now.Sub(c.LastUsedAt); wait > 0 {
				if minWait < 0 || wait < minWait {
					minWait = wait
				}
				continue
			}
			if best == nil || ranksAbove(c, best) {
				best = c
			}
		}

		if best != nil {
			best.LastUsedAt = now
			p.notifyStateLocked(now)
			p.mu.Unlock()
			return best, nil
		}

		wait := p.cfg.PollInterval
		if minWait >= 0 {
			// Someone is merely inside the delay window; wake exactly then.
			wait = minWait + time.Millisecond
		} else {
			p.log.LogWarn("all credentials blocked, waiting for recovery")
		}
		p.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// ranksAbove orders by success rate desc, then last-used asc.
func ranksAbove(a, b *Credential) bool {
	ra, rb := a.SuccessRate(), b.SuccessRate()
	if ra != rb {
		return ra > rb
	}
	return a.LastUsedAt.Before(b.LastUsedAt)
}

// Release records the attempt outcome. A success walks one failure back off
// the counter so a credential recovers gradually; reaching the failure
// threshold quarantines the credential and resets the counter.
func (p *Pool) Release(c *Credential, outcome Outcome, note string) {
	p.mu.Lock()
	switch outcome {
	case Success:
		c.SuccessCount++
		if c.FailCount > 0 {
			c.FailCount--
		}
		p.log.LogDebugf("%s: success (rate %.1f%%)", c.Name, c.SuccessRate()*100)
	case Failure:
		c.FailCount++
		if c.FailCount >= p.cfg.MaxFailsBeforeBlock {
			c.Blocked = true
			c.BlockedUntil = time.Now().Add(p.cfg.BlockDuration)
			c.FailCount = 0
			p.log.LogWarnf("%s: blocked for %s (too many failures)", c.Name, p.cfg.BlockDuration)
		} else {
			p.log.LogDebugf("%s: failed (%s) %d/%d", c.Name, note, c.FailCount, p.cfg.MaxFailsBeforeBlock)
		}
	}
	if p.obs != nil {
		p.obs.CredentialReleased(c.Name, outcome == Success)
	}
	p.notifyStateLocked(time.Now())
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Add registers a new credential file at runtime.
func (p *Pool) Add(path string) {
	p.mu.Lock()
	p.creds = append(p.creds, &Credential{Path: path, Name: filepath.Base(path)})
	p.notifyStateLocked(time.Now())
	p.mu.Unlock()
	p.log.LogInfof("added credential %s", filepath.Base(path))

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Remove drops a credential by name. The file itself is left alone.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	kept := p.creds[:0]
	for _, c := range p.creds {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	p.creds = kept
	p.notifyStateLocked(time.Now())
	p.mu.Unlock()
	p.log.LogInfof("removed credential %s", name)
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// CredentialStats is the per-credential slice of a Stats snapshot.
type CredentialStats struct {
	Name        string  `json:"name"`
	SuccessRate float64 `json:"success_rate"`
	Attempts    int     `json:"attempts"`
	Blocked     bool    `json:"blocked"`
}

type Stats struct {
	Total         int               `json:"total_credentials"`
	Available     int               `json:"available"`
	Blocked       int               `json:"blocked"`
	TotalAttempts int               `json:"total_attempts"`
	SuccessRate   float64           `json:"success_rate"`
	Credentials   []CredentialStats `json:"credentials"`
}

// Stats returns a point-in-time snapshot of pool health.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	st := Stats{Total: len(p.creds)}
	totalSuccess, totalFail := 0, 0
	for _, c := range p.creds {
		if c.availableAt(now) {
			st.Available++
		}
		totalSuccess += c.SuccessCount
		totalFail += c.FailCount
		st.Credentials = append(st.Credentials, CredentialStats{
			Name:        c.Name,
			SuccessRate: c.SuccessRate(),
			Attempts:    c.SuccessCount + c.FailCount,
			Blocked:     c.Blocked,
		})
	}
	st.Blocked = st.Total - st.Available
	st.TotalAttempts = totalSuccess + totalFail
	if st.TotalAttempts > 0 {
		st.SuccessRate = float64(totalSuccess) / float64(st.TotalAttempts)
	}
	return st
}

func (p *Pool) notifyStateLocked(now time.Time) {
	if p.obs == nil {
		return
	}
	available := 0
	for _, c := range p.creds {
		if c.availableAt(now) {
			available++
		}
	}
	p.obs.PoolState(available, len(p.creds)-available)
}

// Ensure credential files still exist; prunes dangling entries. Called from
// the stats surface so operators see reality, not the startup snapshot.
func (p *Pool) PruneMissing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.creds[:0]
	pruned := 0
	for _, c := range p.creds {
		if _, err := os.Stat(c.Path); err != nil {
			pruned++
			continue
		}
		kept = append(kept, c)
	}
	p.creds = kept
	return pruned
}
