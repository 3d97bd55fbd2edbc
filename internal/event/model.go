// Package event is the event registry: CRUD plus the status lifecycle.
package event

import (
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of an event.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusLive      Status = "LIVE"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// Type is the kind of club activity.
type Type string

const (
	TypeWorkshop    Type = "Workshop"
	TypeHackathon   Type = "Hackathon"
	TypeQuiz        Type = "Quiz"
	TypeSeminar     Type = "Seminar"
	TypeCompetition Type = "Competition"
	TypeTalk        Type = "Talk"
)

var knownTypes = []Type{TypeWorkshop, TypeHackathon, TypeQuiz, TypeSeminar, TypeCompetition, TypeTalk}

// Criterion is one line of a judging rubric.
type Criterion struct {
	Name      string  `json:"name"`
	MaxPoints float64 `json:"maxPoints"`
}

// DefaultCriteria is the rubric hackathons get when the organizer sets none.
func DefaultCriteria() []Criterion {
	return []Criterion{
		{Name: "Innovation", MaxPoints: 10},
		{Name: "Technical Complexity", MaxPoints: 10},
		{Name: "Design & UX", MaxPoints: 10},
		{Name: "Presentation", MaxPoints: 10},
		{Name: "Impact", MaxPoints: 10},
	}
}

// Question is one multiple-choice quiz question. Answer is never shown to
// students.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer,omitempty"`
}

// Coordinator is a contact person printed on the event page.
type Coordinator struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Event is a document in the events collection.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        Type   `json:"type"`
	Description string `json:"description,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Date        string `json:"date,omitempty"`
	StartTime   string `json:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty"`

	Status           Status `json:"status"`
	RegistrationOpen bool   `json:"registrationOpen"`
	Capacity         int    `json:"capacity"`

	Departments []string `json:"departments,omitempty"`
	Years       []string `json:"years,omitempty"`
	Sections    []string `json:"sections,omitempty"`

	IsTeamEvent       bool        `json:"isTeamEvent"`
	MinTeamSize       int         `json:"minTeamSize,omitempty"`
	MaxTeamSize       int         `json:"maxTeamSize,omitempty"`
	ProblemStatements []string    `json:"problemStatements,omitempty"`
	JudgingCriteria   []Criterion `json:"judgingCriteria,omitempty"`
	JudgeAccessCode   string      `json:"judgeAccessCode,omitempty"`
	Questions         []Question  `json:"questions,omitempty"`

	Coordinators []Coordinator `json:"coordinators,omitempty"`
	PosterURL    string        `json:"posterUrl,omitempty"`

	CreatedBy   string     `json:"createdBy"`
	Remarks     string     `json:"remarks,omitempty"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

// Editable reports whether the organizer may still edit or delete the event.
func (e Event) Editable() bool {
	return e.Status == StatusDraft || e.Status == StatusRejected
}

// AcceptsRegistrations reports whether students may register right now.
func (e Event) AcceptsRegistrations() bool {
	return e.Status == StatusLive && e.RegistrationOpen
}

// IsQuiz reports whether the event takes quiz submissions.
func (e Event) IsQuiz() bool {
	return e.Type == TypeQuiz
}

// IsHackathon reports whether the event is judged.
func (e Event) IsHackathon() bool {
	return e.Type == TypeHackathon
}

// Public hides fields only staff should see.
func (e Event) Public() Event {
	e.JudgeAccessCode = ""
	e.Remarks = ""
	if len(e.Questions) > 0 {
		qs := make([]Question, len(e.Questions))
		for i, q := range e.Questions {
			q.Answer = ""
			qs[i] = q
		}
		e.Questions = qs
	}
	return e
}

// OpenTo reports whether the audience scoping admits a student.
// Empty scope lists admit everyone.
func (e Event) OpenTo(department, year, section string) bool {
	return inScope(e.Departments, department) && inScope(e.Years, year) && inScope(e.Sections, section)
}

// Criteria returns the rubric, falling back to the defaults.
func (e Event) Criteria() []Criterion {
	if len(e.JudgingCriteria) == 0 {
		return DefaultCriteria()
	}
	return e.JudgingCriteria
}

func inScope(scope []string, v string) bool {
	if len(scope) == 0 {
		return true
	}
	return slices.ContainsFunc(scope, func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v))
	})
}
