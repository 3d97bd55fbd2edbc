package registration

import (
	"cmp"
	"slices"
)

// Team is computed from the registrations sharing a team code.
type Team struct {
	Code             string   `json:"teamCode"`
	Name             string   `json:"teamName"`
	Leader           string   `json:"leader,omitempty"`
	Members          []string `json:"members"`
	Size             int      `json:"size"`
	PresentCount     int      `json:"presentCount"`
	ProblemStatement string   `json:"problemStatement,omitempty"`
}

// GroupTeams groups one event's registrations by team code. Registrations
// without a code are skipped; teams are ordered by code.
func GroupTeams(regs []Registration) []Team {
	byCode := map[string]*Team{}
	for _, r := range regs {
		if r.TeamCode == "" {
			continue
		}
		t, ok := byCode[r.TeamCode]
		if !ok {
			t = &Team{Code: r.TeamCode}
			byCode[r.TeamCode] = t
		}
		if t.Name == "" || r.TeamRole == RoleLeader {
			t.Name = r.TeamName
		}
		if r.TeamRole == RoleLeader {
			t.Leader = r.StudentRoll
			t.ProblemStatement = r.ProblemStatement
		}
		t.Members = append(t.Members, r.StudentRoll)
		t.Size++
		if IsAttended(r) {
			t.PresentCount++
		}
	}

	out := make([]Team, 0, len(byCode))
	for _, t := range byCode {
		slices.Sort(t.Members)
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b Team) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// FindTeam returns the team with code from a grouping.
func FindTeam(teams []Team, code string) (Team, bool) {
	i := slices.IndexFunc(teams, func(t Team) bool { return t.Code == code })
	if i < 0 {
		return Team{}, false
	}
	return teams[i], true
}
