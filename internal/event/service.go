package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
	"clubhub/internal/metrics"
)

var (
	ErrNotFound          = errors.New("event not found")
	ErrNotEditable       = errors.New("event can only be changed while in DRAFT or REJECTED")
	ErrForbidden         = errors.New("not allowed for this event")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownAction     = errors.New("unknown lifecycle action")
	ErrRemarksRequired   = errors.New("remarks are required when rejecting")
	ErrNotLive           = errors.New("event is not live")
	ErrInvalidInput      = errors.New("invalid event")
)

// Input is the organizer-editable part of an event.
type Input struct {
	Title             string        `json:"title" binding:"required"`
	Type              Type          `json:"type" binding:"required"`
	Description       string        `json:"description"`
	Venue             string        `json:"venue"`
	Date              string        `json:"date"`
	StartTime         string        `json:"startTime"`
	EndTime           string        `json:"endTime"`
	Capacity          int           `json:"capacity"`
	Departments       []string      `json:"departments"`
	Years             []string      `json:"years"`
	Sections          []string      `json:"sections"`
	IsTeamEvent       bool          `json:"isTeamEvent"`
	MinTeamSize       int           `json:"minTeamSize"`
	MaxTeamSize       int           `json:"maxTeamSize"`
	ProblemStatements []string      `json:"problemStatements"`
	JudgingCriteria   []Criterion   `json:"judgingCriteria"`
	Questions         []Question    `json:"questions"`
	Coordinators      []Coordinator `json:"coordinators"`
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if !slices.Contains(knownTypes, in.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
	if in.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidInput)
	}
	if in.IsTeamEvent {
		if in.MinTeamSize < 1 || in.MaxTeamSize < in.MinTeamSize {
			return fmt.Errorf("%w: team size bounds", ErrInvalidInput)
		}
	}
	for _, c := range in.JudgingCriteria {
		if strings.TrimSpace(c.Name) == "" || c.MaxPoints <= 0 {
			return fmt.Errorf("%w: criterion %q", ErrInvalidInput, c.Name)
		}
	}
	seen := map[string]bool{}
	for _, q := range in.Questions {
		if q.ID == "" || seen[q.ID] || strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("%w: question %q needs a unique id and an answer", ErrInvalidInput, q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

func (in Input) fields() map[string]any {
	return map[string]any{
		"title":             strings.TrimSpace(in.Title),
		"type":              in.Type,
		"description":       in.Description,
		"venue":             in.Venue,
		"date":              in.Date,
		"startTime":         in.StartTime,
		"endTime":           in.EndTime,
		"capacity":          in.Capacity,
		"departments":       in.Departments,
		"years":             in.Years,
		"sections":          in.Sections,
		"isTeamEvent":       in.IsTeamEvent,
		"minTeamSize":       in.MinTeamSize,
		"maxTeamSize":       in.MaxTeamSize,
		"problemStatements": in.ProblemStatements,
		"judgingCriteria":   in.JudgingCriteria,
		"questions":         in.Questions,
		"coordinators":      in.Coordinators,
	}
}

// Service is the event registry.
type Service struct {
	store docstore.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates the registry.
func NewService(store docstore.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Create stores a new DRAFT event owned by the organizer.
func (s *Service) Create(ctx context.Context, actor auth.Session, in Input) (Event, error) {
	if actor.Role != auth.RoleOrganizer && actor.Role != auth.RoleAdmin {
		return Event{}, ErrForbidden
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	now := s.now().UTC()
	e := Event{
		Title:             strings.TrimSpace(in.Title),
		Type:              in.Type,
		Description:       in.Description,
		Venue:             in.Venue,
		Date:              in.Date,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Status:            StatusDraft,
		Capacity:          in.Capacity,
		Departments:       in.Departments,
		Years:             in.Years,
		Sections:          in.Sections,
		IsTeamEvent:       in.IsTeamEvent,
		MinTeamSize:       in.MinTeamSize,
		MaxTeamSize:       in.MaxTeamSize,
		ProblemStatements: in.ProblemStatements,
		JudgingCriteria:   in.JudgingCriteria,
		Questions:         in.Questions,
		Coordinators:      in.Coordinators,
		CreatedBy:         actor.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if e.IsHackathon() {
		if len(e.JudgingCriteria) == 0 {
			e.JudgingCriteria = DefaultCriteria()
		}
		e.JudgeAccessCode = NewAccessCode()
	}
	id, err := s.store.Create(ctx, docstore.Events, "", e)
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	e.ID = id
	s.log.Info("event created", zap.String("event_id", id), zap.String("by", actor.ID), zap.String("type", string(e.Type)))
	return e, nil
}

// NewAccessCode returns a short code judges type in to join an event.
func NewAccessCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// Get loads an event by id.
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	e, err := docstore.Load[Event](ctx, s.store, docstore.Events, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("load event %s: %w", id, err)
	}
	return e, nil
}

// Update replaces the editable fields. A REJECTED event returns to DRAFT.
func (s *Service) Update(ctx context.Context, actor auth.Session, id string, in Input) (Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !canManage(e, actor) {
		return Event{}, ErrForbidden
	}
	if !e.Editable() {
		return Event{}, ErrNotEditable
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	fields := in.fields()
	now := s.now().UTC()
	fields["updatedAt"] = now
	if in.Type == TypeHackathon {
		if len(in.JudgingCriteria) == 0 {
			fields["judgingCriteria"] = DefaultCriteria()
		}
		if e.JudgeAccessCode == "" {
			fields["judgeAccessCode"] = NewAccessCode()
		}
	}
	if e.Status == StatusRejected {
		fields["status"] = StatusDraft
		fields["remarks"] = ""
	}
	if err := s.store.Update(ctx, docstore.Events, id, fields); err != nil {
		return Event{}, fmt.Errorf("update event %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Delete removes an event that has not gone live.
func (s *Service) Delete(ctx context.Context, actor auth.Session, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(e, actor) {
		return ErrForbidden
	}
	if !e.Editable() {
		return ErrNotEditable
	}
	if err := s.store.Delete(ctx, docstore.Events, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	s.log.Info("event deleted", zap.String("event_id", id), zap.String("by", actor.ID))
	return nil
}

// Transition runs a lifecycle action.
func (s *Service) Transition(ctx context.Context, actor auth.Session, id string, a Action, remarks string) (Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	next, fields, err := Apply(e, a, actor, remarks, s.now().UTC())
	if err != nil {
		return Event{}, err
	}
	if err := s.store.Update(ctx, docstore.Events, id, fields); err != nil {
		return Event{}, fmt.Errorf("%s event %s: %w", a, id, err)
	}
	metrics.EventTransitions.WithLabelValues(string(a)).Inc()
	s.log.Info("event transition",
		zap.String("event_id", id),
		zap.String("action", string(a)),
		zap.String("from", string(e.Status)),
		zap.String("to", string(next.Status)),
		zap.String("by", actor.ID),
	)
	return next, nil
}

// SetRegistrationOpen toggles registration on a LIVE event.
func (s *Service) SetRegistrationOpen(ctx context.Context, actor auth.Session, id string, open bool) (Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !canManage(e, actor) {
		return Event{}, ErrForbidden
	}
	if e.Status != StatusLive {
		return Event{}, ErrNotLive
	}
	now := s.now().UTC()
	if err := s.store.Update(ctx, docstore.Events, id, map[string]any{"registrationOpen": open, "updatedAt": now}); err != nil {
		return Event{}, fmt.Errorf("toggle registration %s: %w", id, err)
	}
	e.RegistrationOpen = open
	e.UpdatedAt = now
	return e, nil
}

// SetPoster records the uploaded poster url.
func (s *Service) SetPoster(ctx context.Context, actor auth.Session, id, url string) (Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !canManage(e, actor) {
		return Event{}, ErrForbidden
	}
	if err := s.store.Update(ctx, docstore.Events, id, map[string]any{"posterUrl": url, "updatedAt": s.now().UTC()}); err != nil {
		return Event{}, fmt.Errorf("set poster %s: %w", id, err)
	}
	e.PosterURL = url
	return e, nil
}

// CanManage reports whether actor runs the event (owner organizer or admin).
func (s *Service) CanManage(e Event, actor auth.Session) bool {
	return canManage(e, actor)
}

// ListPublic returns LIVE events with staff-only fields hidden.
func (s *Service) ListPublic(ctx context.Context) ([]Event, error) {
	events, err := s.ListByStatus(ctx, StatusLive)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i] = events[i].Public()
	}
	return events, nil
}

// ListByOrganizer returns every event created by username.
func (s *Service) ListByOrganizer(ctx context.Context, username string) ([]Event, error) {
	events, err := docstore.FindAll[Event](ctx, s.store, docstore.Events, docstore.Eq("createdBy", username))
	if err != nil {
		return nil, fmt.Errorf("list events by %s: %w", username, err)
	}
	sortByDate(events)
	return events, nil
}

// ListByStatus returns events in status, newest first.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Event, error) {
	events, err := docstore.FindAll[Event](ctx, s.store, docstore.Events, docstore.Eq("status", status))
	if err != nil {
		return nil, fmt.Errorf("list %s events: %w", status, err)
	}
	sortByDate(events)
	return events, nil
}

func sortByDate(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := strings.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
