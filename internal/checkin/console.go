// Package checkin marks registrations present from scanned or typed
// identifiers and handles on-spot registration at the venue.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/event"
	"clubhub/internal/metrics"
	"clubhub/internal/registration"
	"clubhub/internal/student"
)

// DefaultCooldown is how long the scanner stays paused after feedback.
const DefaultCooldown = 3 * time.Second

const recentLimit = 5

var (
	ErrScannerPaused     = errors.New("scanner is paused")
	ErrNotCheckedIn      = errors.New("student is not checked in")
	ErrOnSpotNotAllowed  = errors.New("on-spot registration needs a live event with registration closed")
	ErrStudentNotFound   = errors.New("no student profile for this roll number")
	ErrAlreadyRegistered = registration.ErrAlreadyRegistered
)

// FeedbackType is the colour of the operator banner.
type FeedbackType string

const (
	FeedbackSuccess FeedbackType = "success"
	FeedbackWarning FeedbackType = "warning"
	FeedbackError   FeedbackType = "error"
)

// Operator banner texts.
const (
	MsgCheckedIn        = "CHECKED IN"
	MsgAlreadyCheckedIn = "ALREADY CHECKED-IN"
	MsgNotRegistered    = "NOT REGISTERED"
	MsgInvalidCode      = "INVALID CODE"
	MsgOnSpot           = "REGISTERED ON SPOT"

	// HintTypeRoll accompanies MsgInvalidCode.
	HintTypeRoll = "type the roll number"
)

// Feedback is the result shown to the operator after a scan.
type Feedback struct {
	Type        FeedbackType `json:"type"`
	Message     string       `json:"message"`
	Roll        string       `json:"roll,omitempty"`
	StudentName string       `json:"studentName,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	At          time.Time    `json:"at"`
}

// Recent is one line of the recent-activity list.
type Recent struct {
	Roll        string    `json:"roll"`
	StudentName string    `json:"studentName"`
	Department  string    `json:"department,omitempty"`
	OnSpot      bool      `json:"onSpot"`
	At          time.Time `json:"at"`
}

// State is a copy of the console for display.
type State struct {
	EventID  string    `json:"eventId"`
	Operator string    `json:"operator"`
	Paused   bool      `json:"paused"`
	Last     *Feedback `json:"last,omitempty"`
	Recent   []Recent  `json:"recent"`
}

// Ledger is the part of the registration ledger the console writes to.
type Ledger interface {
	Get(ctx context.Context, eventID, roll string) (registration.Registration, error)
	MarkPresent(ctx context.Context, reg registration.Registration, at time.Time, by string) (registration.Registration, error)
	MarkRegistered(ctx context.Context, reg registration.Registration) (registration.Registration, error)
	Insert(ctx context.Context, reg registration.Registration) error
}

// Students looks up profiles for on-spot registration.
type Students interface {
	Get(ctx context.Context, roll string) (student.Profile, error)
}

// Events loads the event being checked into.
type Events interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfter(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Console is one operator's check-in desk for one event.
type Console struct {
	eventID  string
	operator string

	ledger   Ledger
	students Students
	events   Events
	resolver *Resolver
	log      *zap.Logger

	cooldown time.Duration
	now      func() time.Time
	after    afterFunc

	mu       sync.Mutex
	lastUsed time.Time
	paused   bool
	gen      uint64
	timer    stopper
	last     *Feedback
	recent   []Recent
}

// Scan resolves identifier and marks the registration present. While the
// scanner is paused, or another scan is still resolving, it returns
// ErrScannerPaused without touching the store. Store failures and an
// unreachable verification site are returned as errors and leave the
// console idle.
func (c *Console) Scan(ctx context.Context, identifier string) (Feedback, error) {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		metrics.CheckinScans.WithLabelValues("paused").Inc()
		return Feedback{}, ErrScannerPaused
	}
	c.paused = true
	c.mu.Unlock()

	fb, recent, err := c.scan(ctx, identifier)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.paused = false
		return Feedback{}, err
	}
	if recent != nil {
		c.push(*recent)
	}
	return c.feedback(fb), nil
}

// scan does the lookups for Scan without holding mu.
func (c *Console) scan(ctx context.Context, identifier string) (Feedback, *Recent, error) {
	now := c.now().UTC()
	roll, err := c.resolver.Resolve(ctx, identifier)
	if errors.Is(err, ErrVerifyUnavailable) {
		metrics.CheckinScans.WithLabelValues("verify_unavailable").Inc()
		c.log.Warn("verification site unreachable", zap.String("event_id", c.eventID), zap.Error(err))
		return Feedback{}, nil, err
	}
	if err != nil {
		metrics.CheckinScans.WithLabelValues("unresolved").Inc()
		c.log.Info("unresolvable scan", zap.String("event_id", c.eventID), zap.String("operator", c.operator), zap.Error(err))
		return Feedback{Type: FeedbackError, Message: MsgInvalidCode, Detail: HintTypeRoll, At: now}, nil, nil
	}

	reg, err := c.ledger.Get(ctx, c.eventID, roll)
	if errors.Is(err, registration.ErrNotFound) {
		metrics.CheckinScans.WithLabelValues(string(FeedbackError)).Inc()
		return Feedback{Type: FeedbackError, Message: MsgNotRegistered, Roll: roll, At: now}, nil, nil
	}
	if err != nil {
		return Feedback{}, nil, fmt.Errorf("look up %s: %w", roll, err)
	}
	if registration.IsAttended(reg) {
		metrics.CheckinScans.WithLabelValues(string(FeedbackWarning)).Inc()
		return Feedback{Type: FeedbackWarning, Message: MsgAlreadyCheckedIn, Roll: roll, StudentName: reg.StudentName, At: now}, nil, nil
	}

	reg, err = c.ledger.MarkPresent(ctx, reg, now, c.operator)
	if err != nil {
		return Feedback{}, nil, fmt.Errorf("check in %s: %w", roll, err)
	}
	metrics.CheckinScans.WithLabelValues(string(FeedbackSuccess)).Inc()
	c.log.Info("checked in", zap.String("event_id", c.eventID), zap.String("roll", roll), zap.String("operator", c.operator))
	fb := Feedback{Type: FeedbackSuccess, Message: MsgCheckedIn, Roll: roll, StudentName: reg.StudentName, At: now}
	return fb, &Recent{Roll: roll, StudentName: reg.StudentName, Department: reg.Department, At: now}, nil
}

// Undo reverts a check-in back to Registered.
func (c *Console) Undo(ctx context.Context, roll string) (registration.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roll = student.NormalizeRoll(roll)
	reg, err := c.ledger.Get(ctx, c.eventID, roll)
	if err != nil {
		return registration.Registration{}, err
	}
	if !registration.IsAttended(reg) {
		return registration.Registration{}, ErrNotCheckedIn
	}
	reg, err = c.ledger.MarkRegistered(ctx, reg)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("undo %s: %w", roll, err)
	}
	c.drop(roll)
	metrics.CheckinUndos.Inc()
	c.log.Info("check-in undone", zap.String("event_id", c.eventID), zap.String("roll", roll), zap.String("operator", c.operator))
	return reg, nil
}

// OnSpot registers a student at the venue directly as Present. It is only
// available once normal registration has closed on a live event.
func (c *Console) OnSpot(ctx context.Context, roll string) (registration.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.events.Get(ctx, c.eventID)
	if err != nil {
		return registration.Registration{}, err
	}
	if e.Status != event.StatusLive || e.RegistrationOpen {
		return registration.Registration{}, ErrOnSpotNotAllowed
	}

	roll, err = checkRoll(roll)
	if err != nil {
		return registration.Registration{}, err
	}
	p, err := c.students.Get(ctx, roll)
	if errors.Is(err, student.ErrNotFound) {
		return registration.Registration{}, ErrStudentNotFound
	}
	if err != nil {
		return registration.Registration{}, err
	}

	if _, err := c.ledger.Get(ctx, c.eventID, roll); err == nil {
		return registration.Registration{}, ErrAlreadyRegistered
	} else if !errors.Is(err, registration.ErrNotFound) {
		return registration.Registration{}, err
	}

	now := c.now().UTC()
	reg := registration.FromProfile(e, p, now)
	reg.Status = registration.StatusPresent
	reg.IsOnSpot = true
	reg.CheckedInAt = &now
	reg.CheckedInBy = c.operator
	if err := c.ledger.Insert(ctx, reg); err != nil {
		return registration.Registration{}, err
	}

	c.push(Recent{Roll: roll, StudentName: reg.StudentName, Department: reg.Department, OnSpot: true, At: now})
	c.last = &Feedback{Type: FeedbackSuccess, Message: MsgOnSpot, Roll: roll, StudentName: reg.StudentName, At: now}
	metrics.OnSpotRegistrations.Inc()
	return reg, nil
}

// State returns a snapshot of the console.
func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{EventID: c.eventID, Operator: c.operator, Paused: c.paused, Recent: append([]Recent(nil), c.recent...)}
	if c.last != nil {
		last := *c.last
		s.Last = &last
	}
	return s
}

// feedback records fb and pauses the scanner for the cooldown. Must be
// called with mu held.
func (c *Console) feedback(fb Feedback) Feedback {
	c.last = &fb
	c.paused = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = c.after(c.cooldown, func() { c.resume(gen) })
	return fb
}

func (c *Console) resume(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.paused = false
	c.timer = nil
}

func (c *Console) push(r Recent) {
	c.recent = append([]Recent{r}, c.recent...)
	if len(c.recent) > recentLimit {
		c.recent = c.recent[:recentLimit]
	}
}

func (c *Console) drop(roll string) {
	kept := c.recent[:0]
	for _, r := range c.recent {
		if r.Roll != roll {
			kept = append(kept, r)
		}
	}
	c.recent = kept
}
