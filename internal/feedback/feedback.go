// Package feedback collects post-event ratings from students who attended.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/docstore"
	"clubhub/internal/registration"
	"clubhub/internal/student"
)

var (
	ErrNotAttended      = errors.New("only students marked present can leave feedback")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrAlreadySubmitted = errors.New("feedback already submitted")
)

// Entry is a document in the feedback collection.
type Entry struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	StudentRoll string    `json:"studentRoll"`
	StudentName string    `json:"studentName"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Input is what the student sends.
type Input struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// Overview is the organizer's view of an event's feedback.
type Overview struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Entries []Entry `json:"entries"`
}

// Registrations finds a student's registration.
type Registrations interface {
	Get(ctx context.Context, eventID, roll string) (registration.Registration, error)
}

type Service struct {
	store docstore.Store
	regs  Registrations
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store docstore.Store, regs Registrations, log *zap.Logger) *Service {
	return &Service{store: store, regs: regs, log: log, now: time.Now}
}

// Submit stores one rating per attendee.
func (s *Service) Submit(ctx context.Context, eventID, roll string, in Input) (Entry, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return Entry{}, ErrInvalidRating
	}
	roll = student.NormalizeRoll(roll)
	reg, err := s.regs.Get(ctx, eventID, roll)
	if errors.Is(err, registration.ErrNotFound) {
		return Entry{}, ErrNotAttended
	}
	if err != nil {
		return Entry{}, err
	}
	if !registration.IsAttended(reg) {
		return Entry{}, ErrNotAttended
	}

	e := Entry{
		ID:          registration.ID(eventID, roll),
		EventID:     eventID,
		StudentRoll: roll,
		StudentName: reg.StudentName,
		Rating:      in.Rating,
		Comment:     strings.TrimSpace(in.Comment),
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.store.Create(ctx, docstore.Feedback, e.ID, e); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return Entry{}, ErrAlreadySubmitted
		}
		return Entry{}, fmt.Errorf("store feedback: %w", err)
	}
	s.log.Info("feedback received", zap.String("event_id", eventID), zap.String("roll", roll), zap.Int("rating", in.Rating))
	return e, nil
}

// Overview lists an event's feedback with the average rating.
func (s *Service) Overview(ctx context.Context, eventID string) (Overview, error) {
	entries, err := docstore.FindAll[Entry](ctx, s.store, docstore.Feedback, docstore.Eq("eventId", eventID))
	if err != nil {
		return Overview{}, fmt.Errorf("list feedback of %s: %w", eventID, err)
	}
	o := Overview{Count: len(entries), Entries: entries}
	if o.Count > 0 {
		sum := 0
		for _, e := range entries {
			sum += e.Rating
		}
		o.Average = math.Round(float64(sum)*100/float64(o.Count)) / 100
	}
	return o, nil
}
