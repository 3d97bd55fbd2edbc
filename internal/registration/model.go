// Package registration is the ledger of student enrollments per event.
package registration

import (
	"slices"
	"strings"
	"time"
)

// Status is the single stored attendance flag.
type Status string

const (
	StatusRegistered Status = "Registered"
	StatusPresent    Status = "Present"
)

// Team roles.
const (
	RoleLeader = "Leader"
	RoleMember = "Member"
)

// Registration is a document in the registrations collection.
type Registration struct {
	ID         string `json:"id"`
	EventID    string `json:"eventId"`
	EventTitle string `json:"eventTitle"`

	StudentRoll string `json:"studentRoll"`
	StudentName string `json:"studentName"`
	Email       string `json:"email,omitempty"`
	Department  string `json:"department"`
	Year        string `json:"year"`
	Section     string `json:"section,omitempty"`
	Phone       string `json:"phone,omitempty"`

	Status   Status `json:"status"`
	IsOnSpot bool   `json:"isOnSpot"`

	TeamCode         string `json:"teamCode,omitempty"`
	TeamName         string `json:"teamName,omitempty"`
	TeamRole         string `json:"teamRole,omitempty"`
	ProblemStatement string `json:"problemStatement,omitempty"`

	RegisteredAt time.Time  `json:"registeredAt"`
	CheckedInAt  *time.Time `json:"checkedInAt"`
	CheckedInBy  string     `json:"checkedInBy,omitempty"`
}

// ID is the deterministic document id of a (event, roll) pair.
func ID(eventID, roll string) string {
	return eventID + "_" + strings.ToUpper(strings.TrimSpace(roll))
}

// IsAttended derives the attendance boolean from status.
func IsAttended(r Registration) bool {
	return r.Status == StatusPresent
}

// Entry is a registration as returned to clients.
type Entry struct {
	Registration
	IsAttended bool `json:"isAttended"`
}

// Entries decorates registrations with the derived attendance flag.
func Entries(regs []Registration) []Entry {
	out := make([]Entry, 0, len(regs))
	for _, r := range regs {
		out = append(out, Entry{Registration: r, IsAttended: IsAttended(r)})
	}
	return out
}

// Roster is the live state of one event's registrations.
type Roster struct {
	Registrations []Entry `json:"registrations"`
	Total         int     `json:"total"`
	Present       int     `json:"present"`
}

// BuildRoster reduces a registration snapshot, most recent check-ins first
// and the rest by registration time.
func BuildRoster(regs []Registration) Roster {
	sorted := slices.Clone(regs)
	slices.SortStableFunc(sorted, func(a, b Registration) int {
		switch {
		case a.CheckedInAt != nil && b.CheckedInAt != nil:
			return b.CheckedInAt.Compare(*a.CheckedInAt)
		case a.CheckedInAt != nil:
			return -1
		case b.CheckedInAt != nil:
			return 1
		}
		return a.RegisteredAt.Compare(b.RegisteredAt)
	})
	r := Roster{Registrations: Entries(sorted), Total: len(sorted)}
	for _, reg := range sorted {
		if IsAttended(reg) {
			r.Present++
		}
	}
	return r
}
