// Package report computes attendance summaries and renders them as xlsx.
package report

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"clubhub/internal/event"
	"clubhub/internal/registration"
)

// Breakdown is attendance for one department or year.
type Breakdown struct {
	Key        string  `json:"key"`
	Registered int     `json:"registered"`
	Present    int     `json:"present"`
	Rate       float64 `json:"rate"`
}

// Summary is the headline attendance of one event.
type Summary struct {
	EventID      string      `json:"eventId"`
	EventTitle   string      `json:"eventTitle"`
	EventType    event.Type  `json:"eventType"`
	Date         string      `json:"date,omitempty"`
	Venue        string      `json:"venue,omitempty"`
	Total        int         `json:"total"`
	Present      int         `json:"present"`
	Absent       int         `json:"absent"`
	Rate         float64     `json:"rate"`
	OnSpot       int         `json:"onSpot"`
	Teams        int         `json:"teams"`
	ByDepartment []Breakdown `json:"byDepartment"`
	ByYear       []Breakdown `json:"byYear"`
}

// Summarize counts attendance over an event's registrations. Rates are
// percentages rounded to one decimal.
func Summarize(e event.Event, regs []registration.Registration) Summary {
	s := Summary{
		EventID:    e.ID,
		EventTitle: e.Title,
		EventType:  e.Type,
		Date:       e.Date,
		Venue:      e.Venue,
		Total:      len(regs),
		Teams:      len(registration.GroupTeams(regs)),
	}
	depts := map[string]*Breakdown{}
	years := map[string]*Breakdown{}
	for _, r := range regs {
		present := registration.IsAttended(r)
		if present {
			s.Present++
		}
		if r.IsOnSpot {
			s.OnSpot++
		}
		tally(depts, r.Department, present)
		tally(years, r.Year, present)
	}
	s.Absent = s.Total - s.Present
	s.Rate = rate(s.Present, s.Total)
	s.ByDepartment = flatten(depts)
	s.ByYear = flatten(years)
	return s
}

func tally(m map[string]*Breakdown, key string, present bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		key = "UNKNOWN"
	}
	b, ok := m[key]
	if !ok {
		b = &Breakdown{Key: key}
		m[key] = b
	}
	b.Registered++
	if present {
		b.Present++
	}
}

func flatten(m map[string]*Breakdown) []Breakdown {
	out := make([]Breakdown, 0, len(m))
	for _, b := range m {
		b.Rate = rate(b.Present, b.Registered)
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b Breakdown) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}
