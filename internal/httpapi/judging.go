package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/judging"
	"clubhub/internal/live"
)

func (s *Server) openTeam(c *gin.Context) {
	var req struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sheet, err := s.svc.Judging.OpenTeam(c.Request.Context(), session(c), req.Payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheet)
}

func (s *Server) submitScore(c *gin.Context) {
	var sub judging.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err)
		return
	}
	score, err := s.svc.Judging.Submit(c.Request.Context(), session(c), sub)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, score)
}

func (s *Server) judgeProgress(c *gin.Context) {
	p, err := s.svc.Judging.Progress(c.Request.Context(), session(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// leaderboardAccess lets judges of the event and its managers through.
func (s *Server) leaderboardAccess(c *gin.Context) bool {
	sess := session(c)
	switch sess.Role {
	case auth.RoleJudge:
		if sess.EventID != c.Param("id") {
			s.fail(c, judging.ErrWrongEvent)
			return false
		}
		return true
	case auth.RoleStudent:
		s.fail(c, event.ErrForbidden)
		return false
	}
	_, ok := s.managed(c)
	return ok
}

func (s *Server) leaderboard(c *gin.Context) {
	if !s.leaderboardAccess(c) {
		return
	}
	standings, err := s.svc.Judging.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": standings})
}

// streamLeaderboard recomputes the ranking on every new score sheet.
func (s *Server) streamLeaderboard(c *gin.Context) {
	if !s.leaderboardAccess(c) {
		return
	}
	eventID := c.Param("id")
	watch := func(ctx context.Context) (<-chan docstore.Snapshot, error) {
		return s.svc.Judging.Watch(ctx, eventID)
	}
	streamView(s, c, "leaderboard", watch, live.NewView([]judging.Standing{}, live.Decoded(judging.BuildLeaderboard)))
}
