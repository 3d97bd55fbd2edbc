// Package judging lets access-code judges score hackathon teams and builds
// the leaderboard from their score sheets.
package judging

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Score is one judge's sheet for one team. Sheets are never updated.
type Score struct {
	ID         string             `json:"id"`
	EventID    string             `json:"eventId"`
	TeamCode   string             `json:"teamCode"`
	TeamName   string             `json:"teamName"`
	JudgeID    string             `json:"judgeId"`
	JudgeName  string             `json:"judgeName"`
	Scores     map[string]float64 `json:"scores"`
	TotalScore float64            `json:"totalScore"`
	Feedback   string             `json:"feedback,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// ScoreID is the deterministic id of an (event, team, judge) sheet.
func ScoreID(eventID, teamCode, judgeID string) string {
	return fmt.Sprintf("%s_%s_%s", eventID, teamCode, judgeID)
}

// TeamPayload is what a team QR code carries.
type TeamPayload struct {
	EventID  string `json:"eventId"`
	TeamCode string `json:"teamCode"`
	TeamName string `json:"teamName"`
}

const teamPrefix = "TEAM"

// Encode renders the payload as TEAM|eventId|teamCode|teamName.
func (p TeamPayload) Encode() string {
	return strings.Join([]string{teamPrefix, p.EventID, p.TeamCode, p.TeamName}, "|")
}

// ParseTeamPayload reads a TEAM|eventId|teamCode|teamName string. The team
// name may itself contain '|'.
func ParseTeamPayload(s string) (TeamPayload, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "|", 4)
	if len(parts) != 4 || !strings.EqualFold(parts[0], teamPrefix) {
		return TeamPayload{}, ErrInvalidPayload
	}
	p := TeamPayload{
		EventID:  strings.TrimSpace(parts[1]),
		TeamCode: strings.ToUpper(strings.TrimSpace(parts[2])),
		TeamName: strings.TrimSpace(parts[3]),
	}
	if p.EventID == "" || p.TeamCode == "" {
		return TeamPayload{}, ErrInvalidPayload
	}
	return p, nil
}

var judgeNamespace = uuid.MustParse("8f0c5b7e-3d2a-4f61-9a4e-2c7d1b6e5a90")

// JudgeID derives the judge id for a name typed at login on an event. The
// name is only case-folded and space-collapsed, so any two names that read
// differently get different ids, and the same judge logging in again keeps
// theirs. It returns "" for a blank name.
func JudgeID(eventID, name string) string {
	key := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(judgeNamespace, []byte(eventID+"\x00"+key)).String()
}

// Standing is one leaderboard row.
type Standing struct {
	Rank         int     `json:"rank"`
	TeamCode     string  `json:"teamCode"`
	TeamName     string  `json:"teamName"`
	AverageScore float64 `json:"averageScore"`
	TotalScore   float64 `json:"totalScore"`
	JudgeCount   int     `json:"judgeCount"`
}

// BuildLeaderboard averages every team's totals (sum / count) and sorts
// descending, ties broken by team code. Teams without sheets are absent.
func BuildLeaderboard(scores []Score) []Standing {
	byTeam := map[string]*Standing{}
	for _, s := range scores {
		st, ok := byTeam[s.TeamCode]
		if !ok {
			st = &Standing{TeamCode: s.TeamCode, TeamName: s.TeamName}
			byTeam[s.TeamCode] = st
		}
		st.TotalScore += s.TotalScore
		st.JudgeCount++
	}

	out := make([]Standing, 0, len(byTeam))
	for _, st := range byTeam {
		st.AverageScore = st.TotalScore / float64(st.JudgeCount)
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.AverageScore, a.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(a.TeamCode, b.TeamCode)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Progress tells a judge which teams are still waiting for a sheet.
type Progress struct {
	Scored  []string `json:"scored"`
	Pending []string `json:"pending"`
	Total   int      `json:"total"`
}
