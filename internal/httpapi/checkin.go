package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhub/internal/checkin"
	"clubhub/internal/registration"
)

// console opens the caller's console for the :id event.
func (s *Server) console(c *gin.Context) (*checkin.Console, bool) {
	e, ok := s.managed(c)
	if !ok {
		return nil, false
	}
	con, err := s.svc.Consoles.Open(c.Request.Context(), e.ID, session(c).ID)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return con, true
}

type rollRequest struct {
	Roll string `json:"roll" binding:"required"`
}

// scan returns the operator feedback; a paused scanner answers 429 with the
// console state so the client can keep showing the last result.
func (s *Server) scan(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	con, ok := s.console(c)
	if !ok {
		return
	}
	fb, err := con.Scan(c.Request.Context(), req.Code)
	if errors.Is(err, checkin.ErrScannerPaused) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "console": con.State()})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": fb, "console": con.State()})
}

func (s *Server) undo(c *gin.Context) {
	var req rollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	con, ok := s.console(c)
	if !ok {
		return
	}
	reg, err := con.Undo(c.Request.Context(), req.Roll)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"registration": registration.Entry{Registration: reg, IsAttended: registration.IsAttended(reg)},
		"console":      con.State(),
	})
}

func (s *Server) onSpot(c *gin.Context) {
	var req rollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	con, ok := s.console(c)
	if !ok {
		return
	}
	reg, err := con.OnSpot(c.Request.Context(), req.Roll)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"registration": registration.Entry{Registration: reg, IsAttended: registration.IsAttended(reg)},
		"console":      con.State(),
	})
}

func (s *Server) consoleState(c *gin.Context) {
	con, ok := s.console(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, con.State())
}
