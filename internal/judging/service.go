package judging

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/metrics"
	"clubhub/internal/registration"
)

var (
	ErrInvalidPayload    = errors.New("not a team code")
	ErrInvalidAccessCode = errors.New("invalid event or access code")
	ErrNotJudge          = errors.New("judge session required")
	ErrWrongEvent        = errors.New("team belongs to another event")
	ErrTeamNotFound      = errors.New("team not found for this event")
	ErrAlreadyScored     = errors.New("this team has already been scored by you")
	ErrInvalidScores     = errors.New("invalid scores")
)

// EventLookup loads events.
type EventLookup interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

// TeamSource recomputes an event's team roster.
type TeamSource interface {
	Teams(ctx context.Context, eventID string) ([]registration.Team, error)
}

// Sheet is what the judge sees after opening a team.
type Sheet struct {
	EventID    string            `json:"eventId"`
	EventTitle string            `json:"eventTitle"`
	Team       registration.Team `json:"team"`
	Criteria   []event.Criterion `json:"criteria"`
}

// Submission is a judge's filled rubric.
type Submission struct {
	TeamCode string             `json:"teamCode" binding:"required"`
	Scores   map[string]float64 `json:"scores" binding:"required"`
	Feedback string             `json:"feedback"`
}

// Service handles judge logins and score sheets.
type Service struct {
	store  docstore.Store
	events EventLookup
	teams  TeamSource
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates the judging service.
func NewService(store docstore.Store, events EventLookup, teams TeamSource, log *zap.Logger) *Service {
	return &Service{store: store, events: events, teams: teams, log: log, now: time.Now}
}

// Login admits a judge to a hackathon with its access code. No password is
// involved; the judge id is derived from the name.
func (s *Service) Login(ctx context.Context, eventID, accessCode, name string) (auth.Session, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return auth.Session{}, fmt.Errorf("%w: judge name required", ErrInvalidAccessCode)
	}
	e, err := s.events.Get(ctx, eventID)
	if errors.Is(err, event.ErrNotFound) {
		return auth.Session{}, ErrInvalidAccessCode
	}
	if err != nil {
		return auth.Session{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(accessCode))
	if !e.IsHackathon() || e.JudgeAccessCode == "" ||
		subtle.ConstantTimeCompare([]byte(code), []byte(strings.ToUpper(e.JudgeAccessCode))) != 1 {
		return auth.Session{}, ErrInvalidAccessCode
	}
	judgeID := JudgeID(e.ID, name)
	now := s.now().UTC()
	s.log.Info("judge joined", zap.String("event_id", e.ID), zap.String("judge_id", judgeID))
	return auth.Session{ID: judgeID, Username: name, Role: auth.RoleJudge, LastLogin: &now, EventID: e.ID}, nil
}

// OpenTeam validates a scanned team code before the rubric is shown.
func (s *Service) OpenTeam(ctx context.Context, judge auth.Session, payload string) (Sheet, error) {
	if judge.Role != auth.RoleJudge || judge.EventID == "" {
		return Sheet{}, ErrNotJudge
	}
	p, err := ParseTeamPayload(payload)
	if err != nil {
		return Sheet{}, err
	}
	if p.EventID != judge.EventID {
		return Sheet{}, ErrWrongEvent
	}
	e, team, err := s.lookup(ctx, judge.EventID, p.TeamCode)
	if err != nil {
		return Sheet{}, err
	}
	if err := s.ensureUnscored(ctx, judge, team.Code); err != nil {
		return Sheet{}, err
	}
	return Sheet{EventID: e.ID, EventTitle: e.Title, Team: team, Criteria: e.Criteria()}, nil
}

// Submit stores the judge's sheet for a team, once.
func (s *Service) Submit(ctx context.Context, judge auth.Session, sub Submission) (Score, error) {
	if judge.Role != auth.RoleJudge || judge.EventID == "" {
		return Score{}, ErrNotJudge
	}
	e, team, err := s.lookup(ctx, judge.EventID, strings.ToUpper(strings.TrimSpace(sub.TeamCode)))
	if err != nil {
		return Score{}, err
	}
	total, err := Validate(e.Criteria(), sub.Scores)
	if err != nil {
		return Score{}, err
	}
	if err := s.ensureUnscored(ctx, judge, team.Code); err != nil {
		return Score{}, err
	}

	sc := Score{
		ID:         ScoreID(e.ID, team.Code, judge.ID),
		EventID:    e.ID,
		TeamCode:   team.Code,
		TeamName:   team.Name,
		JudgeID:    judge.ID,
		JudgeName:  judge.Username,
		Scores:     sub.Scores,
		TotalScore: total,
		Feedback:   strings.TrimSpace(sub.Feedback),
		CreatedAt:  s.now().UTC(),
	}
	if _, err := s.store.Create(ctx, docstore.Scores, sc.ID, sc); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return Score{}, ErrAlreadyScored
		}
		return Score{}, fmt.Errorf("store score %s: %w", sc.ID, err)
	}
	metrics.ScoresSubmitted.Inc()
	s.log.Info("score submitted",
		zap.String("event_id", e.ID),
		zap.String("team", team.Code),
		zap.String("judge_id", judge.ID),
		zap.Float64("total", total),
	)
	return sc, nil
}

// Validate checks a rubric: every criterion present, within 0..maxPoints,
// nothing extra. It returns the total.
func Validate(criteria []event.Criterion, scores map[string]float64) (float64, error) {
	total := 0.0
	for _, c := range criteria {
		v, ok := scores[c.Name]
		if !ok {
			return 0, fmt.Errorf("%w: missing %q", ErrInvalidScores, c.Name)
		}
		if math.IsNaN(v) || v < 0 || v > c.MaxPoints {
			return 0, fmt.Errorf("%w: %q must be between 0 and %g", ErrInvalidScores, c.Name, c.MaxPoints)
		}
		total += v
	}
	for name := range scores {
		if !slices.ContainsFunc(criteria, func(c event.Criterion) bool { return c.Name == name }) {
			return 0, fmt.Errorf("%w: unknown criterion %q", ErrInvalidScores, name)
		}
	}
	return total, nil
}

// Scores lists every sheet of an event.
func (s *Service) Scores(ctx context.Context, eventID string) ([]Score, error) {
	scores, err := docstore.FindAll[Score](ctx, s.store, docstore.Scores, docstore.Eq("eventId", eventID))
	if err != nil {
		return nil, fmt.Errorf("list scores of %s: %w", eventID, err)
	}
	return scores, nil
}

// Leaderboard recomputes the standings from all sheets.
func (s *Service) Leaderboard(ctx context.Context, eventID string) ([]Standing, error) {
	scores, err := s.Scores(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return BuildLeaderboard(scores), nil
}

// Watch streams snapshots of an event's sheets.
func (s *Service) Watch(ctx context.Context, eventID string) (<-chan docstore.Snapshot, error) {
	return s.store.Watch(ctx, docstore.Scores, docstore.Eq("eventId", eventID))
}

// Progress lists the teams the judge has and has not scored.
func (s *Service) Progress(ctx context.Context, judge auth.Session) (Progress, error) {
	if judge.Role != auth.RoleJudge || judge.EventID == "" {
		return Progress{}, ErrNotJudge
	}
	teams, err := s.teams.Teams(ctx, judge.EventID)
	if err != nil {
		return Progress{}, err
	}
	mine, err := docstore.FindAll[Score](ctx, s.store, docstore.Scores,
		docstore.Eq("eventId", judge.EventID), docstore.Eq("judgeId", judge.ID))
	if err != nil {
		return Progress{}, fmt.Errorf("list scores of %s: %w", judge.ID, err)
	}
	done := map[string]bool{}
	for _, sc := range mine {
		done[sc.TeamCode] = true
	}
	p := Progress{Scored: []string{}, Pending: []string{}, Total: len(teams)}
	for _, t := range teams {
		if done[t.Code] {
			p.Scored = append(p.Scored, t.Code)
		} else {
			p.Pending = append(p.Pending, t.Code)
		}
	}
	return p, nil
}

func (s *Service) lookup(ctx context.Context, eventID, teamCode string) (event.Event, registration.Team, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return event.Event{}, registration.Team{}, err
	}
	teams, err := s.teams.Teams(ctx, eventID)
	if err != nil {
		return event.Event{}, registration.Team{}, err
	}
	team, ok := registration.FindTeam(teams, teamCode)
	if !ok {
		return event.Event{}, registration.Team{}, ErrTeamNotFound
	}
	return e, team, nil
}

func (s *Service) ensureUnscored(ctx context.Context, judge auth.Session, teamCode string) error {
	_, err := s.store.Get(ctx, docstore.Scores, ScoreID(judge.EventID, teamCode, judge.ID))
	switch {
	case err == nil:
		return ErrAlreadyScored
	case errors.Is(err, docstore.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("check prior score: %w", err)
	}
}
