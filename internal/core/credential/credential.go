package credential

import "time"

// Credential is one rotatable authentication artifact (a cookie file on
// disk). All fields are owned by the Pool and mutated only under its lock.
type Credential struct {
	Path string
	Name string

	SuccessCount int
	FailCount    int
	LastUsedAt   time.Time

	Blocked      bool
	BlockedUntil time.Time
}

// SuccessRate is 1.0 for a credential with no history so fresh credentials
// rank ahead of proven-bad ones.
func (c *Credential) SuccessRate() float64 {
	total := c.SuccessCount + c.FailCount
	if total == 0 {
		return 1.0
	}
	return float64(c.SuccessCount) / float64(total)
}

// availableAt reports whether the credential may be selected at now.
// An expired block is cleared as a side effect.
func (c *Credential) availableAt(now time.Time) bool {
	if !c.Blocked {
		return true
	}
	if !c.BlockedUntil.IsZero() && now.After(c.BlockedUntil) {
		c.Blocked = false
		c.BlockedUntil = time.Time{}
		return true
	}
	return false
}

// Outcome reported back to the pool after an attempt.
type Outcome int

const (
	Success Outcome = iota
	Failure
)
