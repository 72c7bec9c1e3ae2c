package orchestrator

import (
	"sync"
	"time"
)

// Cooldown suppresses repeat alerts for the same (stream, event type)
// within the configured window. A zero cooldown allows every alert.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(streamName, eventType string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	key := streamName + "|" + eventType
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[key] = now
	return true
}
