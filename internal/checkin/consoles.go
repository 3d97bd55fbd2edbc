package checkin

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/event"
)

// ErrEventNotLive is returned when a console is opened for an event that is
// not running.
var ErrEventNotLive = errors.New("check-in is only available for live events")

// DefaultIdleTTL is how long an unused console is kept.
const DefaultIdleTTL = 6 * time.Hour

// Options configures every console created by a registry.
type Options struct {
	Cooldown time.Duration
	IdleTTL  time.Duration
}

// Consoles keeps one console per (event, operator).
type Consoles struct {
	ledger   Ledger
	students Students
	events   Events
	resolver *Resolver
	log      *zap.Logger
	opts     Options

	now   func() time.Time
	after afterFunc

	mu       sync.Mutex
	consoles map[string]*Console
}

// NewConsoles creates the registry.
func NewConsoles(ledger Ledger, students Students, events Events, resolver *Resolver, log *zap.Logger, opts Options) *Consoles {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	return &Consoles{
		ledger:   ledger,
		students: students,
		events:   events,
		resolver: resolver,
		log:      log,
		opts:     opts,
		now:      time.Now,
		after:    realAfter,
		consoles: map[string]*Console{},
	}
}

// Open returns the operator's console for a live event, creating it on
// first use. Consoles idle for longer than IdleTTL are dropped on the way.
func (cs *Consoles) Open(ctx context.Context, eventID, operator string) (*Console, error) {
	e, err := cs.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.Status != event.StatusLive {
		return nil, ErrEventNotLive
	}

	key := eventID + "|" + operator
	now := cs.now()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.evict(func(c *Console) bool {
		return !c.paused && now.Sub(c.lastUsed) > cs.opts.IdleTTL
	})
	if c, ok := cs.consoles[key]; ok {
		c.mu.Lock()
		c.lastUsed = now
		c.mu.Unlock()
		return c, nil
	}
	c := &Console{
		eventID:  eventID,
		operator: operator,
		ledger:   cs.ledger,
		students: cs.students,
		events:   cs.events,
		resolver: cs.resolver,
		log:      cs.log,
		cooldown: cs.opts.Cooldown,
		now:      cs.now,
		after:    cs.after,
		lastUsed: now,
	}
	cs.consoles[key] = c
	return c, nil
}

// Forget drops every console of an event, typically once it is no longer
// live, and reports how many there were.
func (cs *Consoles) Forget(eventID string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.evict(func(c *Console) bool { return c.eventID == eventID })
}

// Close stops pending timers and forgets every console.
func (cs *Consoles) Close() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.evict(func(*Console) bool { return true })
}

// evict removes the consoles matching drop, which runs with the console's
// mu held. Must be called with cs.mu held.
func (cs *Consoles) evict(drop func(c *Console) bool) int {
	n := 0
	for key, c := range cs.consoles {
		c.mu.Lock()
		gone := drop(c)
		if gone && c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.mu.Unlock()
		if gone {
			delete(cs.consoles, key)
			n++
		}
	}
	return n
}
