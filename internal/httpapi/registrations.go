package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/judging"
	"clubhub/internal/live"
	"clubhub/internal/qr"
	"clubhub/internal/registration"
	"clubhub/internal/student"
)

func (s *Server) register(c *gin.Context) {
	var req registration.Request
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	ctx := c.Request.Context()
	p, err := s.svc.Students.Get(ctx, session(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	reg, err := s.svc.Registrations.Register(ctx, c.Param("id"), p, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, registration.Entry{Registration: reg, IsAttended: registration.IsAttended(reg)})
}

func (s *Server) myRegistrations(c *gin.Context) {
	regs, err := s.svc.Registrations.ListByStudent(c.Request.Context(), session(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": registration.Entries(regs)})
}

func (s *Server) listRegistrations(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	regs, err := s.svc.Registrations.ListByEvent(c.Request.Context(), e.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, registration.BuildRoster(regs))
}

// streamRegistrations pushes the roster each time a registration changes.
func (s *Server) streamRegistrations(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	watch := func(ctx context.Context) (<-chan docstore.Snapshot, error) {
		return s.svc.Registrations.Watch(ctx, e.ID)
	}
	streamView(s, c, "roster", watch, live.NewView(registration.Roster{}, live.Decoded(registration.BuildRoster)))
}

func (s *Server) removeRegistration(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	if err := s.svc.Registrations.Remove(c.Request.Context(), e.ID, c.Param("roll")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// registrationQR renders the entry pass a student shows at the door. The
// code carries only the roll number.
func (s *Server) registrationQR(c *gin.Context) {
	ctx := c.Request.Context()
	sess := session(c)
	roll := student.NormalizeRoll(c.Param("roll"))
	if sess.Role == auth.RoleStudent {
		if sess.ID != roll {
			s.fail(c, event.ErrForbidden)
			return
		}
	} else if _, ok := s.managed(c); !ok {
		return
	}
	reg, err := s.svc.Registrations.Get(ctx, c.Param("id"), roll)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.png(c, reg.StudentRoll)
}

// teams lists an event's teams. Students only see their own team.
func (s *Server) teams(c *gin.Context) {
	ctx := c.Request.Context()
	sess := session(c)
	eventID := c.Param("id")
	teams, err := s.svc.Registrations.Teams(ctx, eventID)
	if err != nil {
		s.fail(c, err)
		return
	}
	switch sess.Role {
	case auth.RoleStudent:
		reg, err := s.svc.Registrations.Get(ctx, eventID, sess.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		mine := []registration.Team{}
		if t, ok := registration.FindTeam(teams, reg.TeamCode); ok {
			mine = append(mine, t)
		}
		teams = mine
	case auth.RoleJudge:
		if sess.EventID != eventID {
			s.fail(c, judging.ErrWrongEvent)
			return
		}
	default:
		if _, ok := s.managed(c); !ok {
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

// teamQR renders the card judges scan to open a team's rubric.
func (s *Server) teamQR(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	teams, err := s.svc.Registrations.Teams(c.Request.Context(), e.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	t, found := registration.FindTeam(teams, c.Param("code"))
	if !found {
		s.fail(c, registration.ErrTeamNotFound)
		return
	}
	s.png(c, judging.TeamPayload{EventID: e.ID, TeamCode: t.Code, TeamName: t.Name}.Encode())
}

func (s *Server) png(c *gin.Context, payload string) {
	size, _ := strconv.Atoi(c.Query("size"))
	if size > 1024 {
		size = 1024
	}
	img, err := qr.PNG(payload, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", img)
}
