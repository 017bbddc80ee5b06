package monitor

import "time"

// CoolTime 冷却计时器
// It is not safe for concurrent use; the engine lock guards every instance.
type CoolTime struct {
	clock     Clock
	cooldown  time.Duration
	lastFired time.Time
}

// NewCoolTime creates a gate that starts cool
func NewCoolTime(clock Clock, cooldown time.Duration) *CoolTime {
	return &CoolTime{clock: clock, cooldown: cooldown}
}

// IsCool reports whether strictly more than the cooldown has passed since the last firing
func (c *CoolTime) IsCool() bool {
	if c.lastFired.IsZero() {
		return true
	}
	return c.clock.Now().Sub(c.lastFired) > c.cooldown
}

// MarkFired records now as the last firing
func (c *CoolTime) MarkFired() {
	c.lastFired = c.clock.Now()
}

// SetCooldown changes the window; the last firing is kept
func (c *CoolTime) SetCooldown(d time.Duration) {
	c.cooldown = d
}

// Cooldown returns the current window
func (c *CoolTime) Cooldown() time.Duration {
	return c.cooldown
}
