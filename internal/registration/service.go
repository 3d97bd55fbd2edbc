package registration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/metrics"
	"clubhub/internal/student"
)

var (
	ErrNotFound           = errors.New("registration not found")
	ErrAlreadyRegistered  = errors.New("student is already registered for this event")
	ErrRegistrationClosed = errors.New("registration is closed for this event")
	ErrNotEligible        = errors.New("event is not open to this student")
	ErrEventFull          = errors.New("event is full")
	ErrTeamRequired       = errors.New("team details are required for this event")
	ErrTeamNotFound       = errors.New("team code not found")
	ErrTeamFull           = errors.New("team is full")
	ErrInvalidProblem     = errors.New("choose one of the listed problem statements")
	ErrInvalidTeamRole    = errors.New("team role must be Leader or Member")
)

// EventLookup loads events; *event.Service satisfies it.
type EventLookup interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

// Request carries the student's choices when registering.
type Request struct {
	TeamRole         string `json:"teamRole"`
	TeamName         string `json:"teamName"`
	TeamCode         string `json:"teamCode"`
	ProblemStatement string `json:"problemStatement"`
}

// Service reads and writes the registrations collection.
type Service struct {
	store  docstore.Store
	events EventLookup
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates the ledger.
func NewService(store docstore.Store, events EventLookup, log *zap.Logger) *Service {
	return &Service{store: store, events: events, log: log, now: time.Now}
}

// Register enrolls a student in a LIVE event with open registration.
func (s *Service) Register(ctx context.Context, eventID string, p student.Profile, req Request) (Registration, error) {
	reg, err := s.register(ctx, eventID, p, req)
	switch {
	case err == nil:
		metrics.Registrations.WithLabelValues("created").Inc()
	case errors.Is(err, ErrAlreadyRegistered):
		metrics.Registrations.WithLabelValues("duplicate").Inc()
	default:
		metrics.Registrations.WithLabelValues("rejected").Inc()
	}
	return reg, err
}

func (s *Service) register(ctx context.Context, eventID string, p student.Profile, req Request) (Registration, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Registration{}, err
	}
	if !e.AcceptsRegistrations() {
		return Registration{}, ErrRegistrationClosed
	}
	if !e.OpenTo(p.Department, p.Year, p.Section) {
		return Registration{}, ErrNotEligible
	}

	if _, err := s.Get(ctx, eventID, p.Roll); err == nil {
		return Registration{}, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotFound) {
		return Registration{}, err
	}

	existing, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return Registration{}, err
	}
	if e.Capacity > 0 && len(existing) >= e.Capacity {
		return Registration{}, ErrEventFull
	}

	reg := FromProfile(e, p, s.now().UTC())
	if e.IsTeamEvent {
		if err := assignTeam(&reg, e, existing, req); err != nil {
			return Registration{}, err
		}
	} else if err := pickProblem(&reg, e, req.ProblemStatement); err != nil {
		return Registration{}, err
	}

	return reg, s.insert(ctx, reg)
}

// FromProfile builds a Registered entry carrying the student snapshot.
func FromProfile(e event.Event, p student.Profile, now time.Time) Registration {
	return Registration{
		ID:           ID(e.ID, p.Roll),
		EventID:      e.ID,
		EventTitle:   e.Title,
		StudentRoll:  p.Roll,
		StudentName:  p.Name,
		Email:        p.Email,
		Department:   p.Department,
		Year:         p.Year,
		Section:      p.Section,
		Phone:        p.Phone,
		Status:       StatusRegistered,
		RegisteredAt: now,
	}
}

// Insert stores a registration built elsewhere (on-spot) under its
// deterministic id.
func (s *Service) Insert(ctx context.Context, reg Registration) error {
	return s.insert(ctx, reg)
}

func (s *Service) insert(ctx context.Context, reg Registration) error {
	reg.ID = ID(reg.EventID, reg.StudentRoll)
	if _, err := s.store.Create(ctx, docstore.Registrations, reg.ID, reg); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("create registration %s: %w", reg.ID, err)
	}
	s.log.Info("registered",
		zap.String("event_id", reg.EventID),
		zap.String("roll", reg.StudentRoll),
		zap.Bool("on_spot", reg.IsOnSpot),
		zap.String("team", reg.TeamCode),
	)
	return nil
}

func assignTeam(reg *Registration, e event.Event, existing []Registration, req Request) error {
	switch strings.ToLower(strings.TrimSpace(req.TeamRole)) {
	case "leader":
		name := strings.TrimSpace(req.TeamName)
		if name == "" {
			return ErrTeamRequired
		}
		if err := pickProblem(reg, e, req.ProblemStatement); err != nil {
			return err
		}
		reg.TeamRole = RoleLeader
		reg.TeamName = name
		reg.TeamCode = newTeamCode(GroupTeams(existing))
	case "member":
		code := strings.ToUpper(strings.TrimSpace(req.TeamCode))
		if code == "" {
			return ErrTeamRequired
		}
		team, ok := FindTeam(GroupTeams(existing), code)
		if !ok {
			return ErrTeamNotFound
		}
		if e.MaxTeamSize > 0 && team.Size >= e.MaxTeamSize {
			return ErrTeamFull
		}
		reg.TeamRole = RoleMember
		reg.TeamCode = team.Code
		reg.TeamName = team.Name
		reg.ProblemStatement = team.ProblemStatement
	case "":
		return ErrTeamRequired
	default:
		return ErrInvalidTeamRole
	}
	return nil
}

func pickProblem(reg *Registration, e event.Event, choice string) error {
	if !e.IsHackathon() || len(e.ProblemStatements) == 0 {
		return nil
	}
	choice = strings.TrimSpace(choice)
	if !slices.Contains(e.ProblemStatements, choice) {
		return ErrInvalidProblem
	}
	reg.ProblemStatement = choice
	return nil
}

func newTeamCode(teams []Team) string {
	for {
		code := "T" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:5])
		if _, taken := FindTeam(teams, code); !taken {
			return code
		}
	}
}

// Get returns the registration of roll for an event.
func (s *Service) Get(ctx context.Context, eventID, roll string) (Registration, error) {
	id := ID(eventID, roll)
	reg, err := docstore.Load[Registration](ctx, s.store, docstore.Registrations, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("load registration %s: %w", id, err)
	}
	return reg, nil
}

// ListByEvent returns every registration of an event.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]Registration, error) {
	regs, err := docstore.FindAll[Registration](ctx, s.store, docstore.Registrations, docstore.Eq("eventId", eventID))
	if err != nil {
		return nil, fmt.Errorf("list registrations of %s: %w", eventID, err)
	}
	return regs, nil
}

// ListByStudent returns a student's registrations across events.
func (s *Service) ListByStudent(ctx context.Context, roll string) ([]Registration, error) {
	roll = student.NormalizeRoll(roll)
	regs, err := docstore.FindAll[Registration](ctx, s.store, docstore.Registrations, docstore.Eq("studentRoll", roll))
	if err != nil {
		return nil, fmt.Errorf("list registrations of %s: %w", roll, err)
	}
	return regs, nil
}

// Teams recomputes the team roster of an event.
func (s *Service) Teams(ctx context.Context, eventID string) ([]Team, error) {
	regs, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return GroupTeams(regs), nil
}

// MarkPresent sets status Present and stamps the check-in.
func (s *Service) MarkPresent(ctx context.Context, reg Registration, at time.Time, by string) (Registration, error) {
	fields := map[string]any{"status": StatusPresent, "checkedInAt": at, "checkedInBy": by}
	if err := s.store.Update(ctx, docstore.Registrations, reg.ID, fields); err != nil {
		return Registration{}, s.mapWriteErr(reg.ID, err)
	}
	reg.Status = StatusPresent
	reg.CheckedInAt = &at
	reg.CheckedInBy = by
	return reg, nil
}

// MarkRegistered reverts a check-in.
func (s *Service) MarkRegistered(ctx context.Context, reg Registration) (Registration, error) {
	fields := map[string]any{"status": StatusRegistered, "checkedInAt": nil, "checkedInBy": ""}
	if err := s.store.Update(ctx, docstore.Registrations, reg.ID, fields); err != nil {
		return Registration{}, s.mapWriteErr(reg.ID, err)
	}
	reg.Status = StatusRegistered
	reg.CheckedInAt = nil
	reg.CheckedInBy = ""
	return reg, nil
}

// Remove deletes a registration.
func (s *Service) Remove(ctx context.Context, eventID, roll string) error {
	id := ID(eventID, roll)
	if err := s.store.Delete(ctx, docstore.Registrations, id); err != nil {
		return s.mapWriteErr(id, err)
	}
	s.log.Info("registration removed", zap.String("event_id", eventID), zap.String("roll", student.NormalizeRoll(roll)))
	return nil
}

// Watch streams snapshots of an event's registrations until ctx ends.
func (s *Service) Watch(ctx context.Context, eventID string) (<-chan docstore.Snapshot, error) {
	return s.store.Watch(ctx, docstore.Registrations, docstore.Eq("eventId", eventID))
}

func (s *Service) mapWriteErr(id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("write registration %s: %w", id, err)
}
