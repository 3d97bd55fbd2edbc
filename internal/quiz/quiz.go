// Package quiz scores quiz submissions for quiz events.
package quiz

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/registration"
	"clubhub/internal/student"
)

var (
	ErrNotQuiz          = errors.New("event is not a quiz")
	ErrNotLive          = errors.New("quiz is not running")
	ErrNotRegistered    = errors.New("student is not registered for this quiz")
	ErrAlreadySubmitted = errors.New("quiz already submitted")
)

// Submission is a document in the quizSubmissions collection.
type Submission struct {
	ID          string            `json:"id"`
	EventID     string            `json:"eventId"`
	StudentRoll string            `json:"studentRoll"`
	StudentName string            `json:"studentName"`
	Answers     map[string]string `json:"answers"`
	Score       int               `json:"score"`
	OutOf       int               `json:"outOf"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

type Events interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

type Registrations interface {
	Get(ctx context.Context, eventID, roll string) (registration.Registration, error)
}

type Service struct {
	store  docstore.Store
	events Events
	regs   Registrations
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store docstore.Store, events Events, regs Registrations, log *zap.Logger) *Service {
	return &Service{store: store, events: events, regs: regs, log: log, now: time.Now}
}

// Grade counts answers matching the key, ignoring case and surrounding space.
func Grade(questions []event.Question, answers map[string]string) int {
	score := 0
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(q.Answer)) {
			score++
		}
	}
	return score
}

// Submit grades and stores one submission per registered student.
func (s *Service) Submit(ctx context.Context, eventID, roll string, answers map[string]string) (Submission, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Submission{}, err
	}
	if !e.IsQuiz() {
		return Submission{}, ErrNotQuiz
	}
	if e.Status != event.StatusLive {
		return Submission{}, ErrNotLive
	}
	roll = student.NormalizeRoll(roll)
	reg, err := s.regs.Get(ctx, eventID, roll)
	if errors.Is(err, registration.ErrNotFound) {
		return Submission{}, ErrNotRegistered
	}
	if err != nil {
		return Submission{}, err
	}

	sub := Submission{
		ID:          registration.ID(eventID, roll),
		EventID:     eventID,
		StudentRoll: roll,
		StudentName: reg.StudentName,
		Answers:     answers,
		Score:       Grade(e.Questions, answers),
		OutOf:       len(e.Questions),
		SubmittedAt: s.now().UTC(),
	}
	if _, err := s.store.Create(ctx, docstore.QuizSubmissions, sub.ID, sub); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return Submission{}, ErrAlreadySubmitted
		}
		return Submission{}, fmt.Errorf("store quiz submission: %w", err)
	}
	s.log.Info("quiz submitted", zap.String("event_id", eventID), zap.String("roll", roll), zap.Int("score", sub.Score))
	return sub, nil
}

// Results lists submissions, best score first, earlier submission winning ties.
func (s *Service) Results(ctx context.Context, eventID string) ([]Submission, error) {
	subs, err := docstore.FindAll[Submission](ctx, s.store, docstore.QuizSubmissions, docstore.Eq("eventId", eventID))
	if err != nil {
		return nil, fmt.Errorf("list quiz submissions of %s: %w", eventID, err)
	}
	slices.SortFunc(subs, func(a, b Submission) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return subs, nil
}
