package judging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/live"
	"clubhub/internal/registration"
)

type fakeEvents map[string]event.Event

func (f fakeEvents) Get(_ context.Context, id string) (event.Event, error) {
	e, ok := f[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

type fakeTeams []registration.Team

func (f fakeTeams) Teams(context.Context, string) ([]registration.Team, error) {
	return f, nil
}

func hackathon() event.Event {
	return event.Event{
		ID: "h1", Title: "HackNight", Type: event.TypeHackathon, Status: event.StatusLive,
		IsTeamEvent: true, JudgeAccessCode: "AB12CD", JudgingCriteria: event.DefaultCriteria(),
	}
}

func newJudging() (*Service, *docstore.Memory) {
	store := docstore.NewMemory()
	teams := fakeTeams{
		{Code: "T1", Name: "Bits", Size: 3},
		{Code: "T2", Name: "Bytes", Size: 2},
	}
	s := NewService(store, fakeEvents{"h1": hackathon(), "w1": {ID: "w1", Type: event.TypeWorkshop}}, teams, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) }
	return s, store
}

func fullMarks(v float64) map[string]float64 {
	out := map[string]float64{}
	for _, c := range event.DefaultCriteria() {
		out[c.Name] = v
	}
	return out
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	s, _ := newJudging()

	sess, err := s.Login(ctx, "h1", " ab12cd ", "Dr. Meera Rao")
	require.NoError(t, err)
	assert.Equal(t, JudgeID("h1", "dr. meera  rao"), sess.ID)
	assert.Equal(t, "Dr. Meera Rao", sess.Username)
	assert.Equal(t, auth.RoleJudge, sess.Role)
	assert.Equal(t, "h1", sess.EventID)

	tamil, err := s.Login(ctx, "h1", "AB12CD", "இளங்கோ")
	require.NoError(t, err)
	assert.NotEmpty(t, tamil.ID)
	assert.NotEqual(t, sess.ID, tamil.ID)

	_, err = s.Login(ctx, "h1", "WRONG1", "Meera")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)
	_, err = s.Login(ctx, "w1", "", "Meera")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)
	_, err = s.Login(ctx, "missing", "AB12CD", "Meera")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)
	_, err = s.Login(ctx, "h1", "AB12CD", "  ")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)
}

func TestLogin_SimilarNamesAreDistinctJudges(t *testing.T) {
	ctx := context.Background()
	s, _ := newJudging()

	first, err := s.Login(ctx, "h1", "AB12CD", "Dr. A. Kumar")
	require.NoError(t, err)
	second, err := s.Login(ctx, "h1", "AB12CD", "Dr A Kumar")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = s.Submit(ctx, first, Submission{TeamCode: "T1", Scores: fullMarks(8)})
	require.NoError(t, err)
	_, err = s.Submit(ctx, second, Submission{TeamCode: "T1", Scores: fullMarks(6)})
	require.NoError(t, err)

	board, err := s.Leaderboard(ctx, "h1")
	require.NoError(t, err)
	require.NotEmpty(t, board)
	assert.Equal(t, "T1", board[0].TeamCode)
	assert.Equal(t, 2, board[0].JudgeCount)
	assert.InDelta(t, 35.0, board[0].AverageScore, 0.001)

	// the same judge coming back keeps their sheets
	again, err := s.Login(ctx, "h1", "ab12cd", "  dr. a.   KUMAR ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	_, err = s.Submit(ctx, again, Submission{TeamCode: "T1", Scores: fullMarks(1)})
	assert.ErrorIs(t, err, ErrAlreadyScored)
}

func TestParseTeamPayload(t *testing.T) {
	p, err := ParseTeamPayload("TEAM|h1|t1|Bits | Pieces")
	require.NoError(t, err)
	assert.Equal(t, TeamPayload{EventID: "h1", TeamCode: "T1", TeamName: "Bits | Pieces"}, p)

	round, err := ParseTeamPayload(p.Encode())
	require.NoError(t, err)
	assert.Equal(t, p, round)

	for _, bad := range []string{"23CS001", "TEAM|h1", "TEAM||T1|x", "TEAMS|h1|T1|x"} {
		_, err := ParseTeamPayload(bad)
		assert.ErrorIs(t, err, ErrInvalidPayload, bad)
	}
}

func TestOpenTeamAndSubmit(t *testing.T) {
	ctx := context.Background()
	s, _ := newJudging()
	judge, err := s.Login(ctx, "h1", "AB12CD", "Meera")
	require.NoError(t, err)

	sheet, err := s.OpenTeam(ctx, judge, "TEAM|h1|T1|Bits")
	require.NoError(t, err)
	assert.Equal(t, "Bits", sheet.Team.Name)
	assert.Len(t, sheet.Criteria, 5)

	_, err = s.OpenTeam(ctx, judge, "TEAM|h2|T1|Bits")
	assert.ErrorIs(t, err, ErrWrongEvent)
	_, err = s.OpenTeam(ctx, judge, "TEAM|h1|T9|Ghost")
	assert.ErrorIs(t, err, ErrTeamNotFound)

	sc, err := s.Submit(ctx, judge, Submission{TeamCode: "t1", Scores: fullMarks(8), Feedback: " solid "})
	require.NoError(t, err)
	assert.Equal(t, ScoreID("h1", "T1", judge.ID), sc.ID)
	assert.Equal(t, float64(40), sc.TotalScore)
	assert.Equal(t, "solid", sc.Feedback)

	_, err = s.OpenTeam(ctx, judge, "TEAM|h1|T1|Bits")
	assert.ErrorIs(t, err, ErrAlreadyScored)
	_, err = s.Submit(ctx, judge, Submission{TeamCode: "T1", Scores: fullMarks(1)})
	assert.ErrorIs(t, err, ErrAlreadyScored)

	other, err := s.Login(ctx, "h1", "AB12CD", "Arjun")
	require.NoError(t, err)
	_, err = s.Submit(ctx, other, Submission{TeamCode: "T1", Scores: fullMarks(6)})
	require.NoError(t, err)

	_, err = s.Submit(ctx, auth.Session{ID: "x", Role: auth.RoleOrganizer}, Submission{TeamCode: "T1"})
	assert.ErrorIs(t, err, ErrNotJudge)
}

func TestValidate(t *testing.T) {
	crit := []event.Criterion{{Name: "Innovation", MaxPoints: 10}, {Name: "Impact", MaxPoints: 5}}

	total, err := Validate(crit, map[string]float64{"Innovation": 7.5, "Impact": 5})
	require.NoError(t, err)
	assert.Equal(t, 12.5, total)

	_, err = Validate(crit, map[string]float64{"Innovation": 7})
	assert.ErrorIs(t, err, ErrInvalidScores)
	_, err = Validate(crit, map[string]float64{"Innovation": 11, "Impact": 1})
	assert.ErrorIs(t, err, ErrInvalidScores)
	_, err = Validate(crit, map[string]float64{"Innovation": -1, "Impact": 1})
	assert.ErrorIs(t, err, ErrInvalidScores)
	_, err = Validate(crit, map[string]float64{"Innovation": 1, "Impact": 1, "Vibes": 3})
	assert.ErrorIs(t, err, ErrInvalidScores)
}

func TestBuildLeaderboard_Averages(t *testing.T) {
	assert.Empty(t, BuildLeaderboard(nil))

	one := BuildLeaderboard([]Score{{TeamCode: "T1", TeamName: "Bits", TotalScore: 31}})
	require.Len(t, one, 1)
	assert.Equal(t, 31.0, one[0].AverageScore)
	assert.Equal(t, 1, one[0].JudgeCount)

	three := BuildLeaderboard([]Score{
		{TeamCode: "T1", TotalScore: 30},
		{TeamCode: "T2", TotalScore: 45},
		{TeamCode: "T1", TotalScore: 40},
		{TeamCode: "T1", TotalScore: 35},
		{TeamCode: "T3", TotalScore: 35},
	})
	require.Len(t, three, 3)
	assert.Equal(t, "T2", three[0].TeamCode)
	assert.Equal(t, 1, three[0].Rank)
	assert.Equal(t, "T1", three[1].TeamCode)
	assert.Equal(t, 35.0, three[1].AverageScore)
	assert.Equal(t, 3, three[1].JudgeCount)
	assert.Equal(t, 105.0, three[1].TotalScore)
	assert.Equal(t, "T3", three[2].TeamCode)
}

func TestLeaderboard_RecomputesAsScoresArrive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newJudging()

	snaps, err := s.Watch(ctx, "h1")
	require.NoError(t, err)
	view := live.NewView([]Standing{}, live.Decoded(BuildLeaderboard))

	next := func() []Standing {
		t.Helper()
		select {
		case snap := <-snaps:
			_, err := view.Apply(snap)
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
		}
		state, _ := view.State()
		return state
	}

	assert.Empty(t, next())

	for i, name := range []string{"A", "B", "C"} {
		judge, err := s.Login(ctx, "h1", "AB12CD", name)
		require.NoError(t, err)
		_, err = s.Submit(ctx, judge, Submission{TeamCode: "T1", Scores: fullMarks(float64(5 + i))})
		require.NoError(t, err)
		board := next()
		require.Len(t, board, 1)
		assert.Equal(t, i+1, board[0].JudgeCount)
	}

	board, _ := view.State()
	assert.Equal(t, 30.0, board[0].AverageScore)

	direct, err := s.Leaderboard(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, board, direct)
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	s, _ := newJudging()
	judge, err := s.Login(ctx, "h1", "AB12CD", "Meera")
	require.NoError(t, err)
	_, err = s.Submit(ctx, judge, Submission{TeamCode: "T2", Scores: fullMarks(5)})
	require.NoError(t, err)

	p, err := s.Progress(ctx, judge)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, p.Scored)
	assert.Equal(t, []string{"T1"}, p.Pending)
	assert.Equal(t, 2, p.Total)
}
