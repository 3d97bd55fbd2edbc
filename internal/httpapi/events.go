package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/event"
)

// managed loads the :id event and checks the caller runs it. It writes the
// error response itself and reports false when the handler should stop.
func (s *Server) managed(c *gin.Context) (event.Event, bool) {
	e, err := s.svc.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return event.Event{}, false
	}
	if !s.svc.Events.CanManage(e, session(c)) {
		s.fail(c, event.ErrForbidden)
		return event.Event{}, false
	}
	return e, true
}

func (s *Server) listPublicEvents(c *gin.Context) {
	events, err := s.svc.Events.ListPublic(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if t := c.Query("type"); t != "" {
		filtered := events[:0]
		for _, e := range events {
			if strings.EqualFold(string(e.Type), t) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) getPublicEvent(c *gin.Context) {
	e, err := s.svc.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if e.Status != event.StatusLive && e.Status != event.StatusCompleted {
		s.fail(c, event.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, e.Public())
}

// eventDetail returns the full document to the owner, reviewers and admins.
func (s *Server) eventDetail(c *gin.Context) {
	e, err := s.svc.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	sess := session(c)
	if sess.Role != auth.RoleSecretary && !s.svc.Events.CanManage(e, sess) {
		s.fail(c, event.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) createEvent(c *gin.Context) {
	var in event.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.svc.Events.Create(c.Request.Context(), session(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) updateEvent(c *gin.Context) {
	var in event.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.svc.Events.Update(c.Request.Context(), session(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) deleteEvent(c *gin.Context) {
	if err := s.svc.Events.Delete(c.Request.Context(), session(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) transition(a event.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Remarks string `json:"remarks"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err)
				return
			}
		}
		e, err := s.svc.Events.Transition(c.Request.Context(), session(c), c.Param("id"), a, req.Remarks)
		if err != nil {
			s.fail(c, err)
			return
		}
		if e.Status != event.StatusLive && s.svc.Consoles != nil {
			if n := s.svc.Consoles.Forget(e.ID); n > 0 {
				s.log.Info("check-in consoles closed", zap.String("event_id", e.ID), zap.Int("count", n))
			}
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) setRegistrationOpen(c *gin.Context) {
	var req struct {
		Open *bool `json:"open" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.svc.Events.SetRegistrationOpen(c.Request.Context(), session(c), c.Param("id"), *req.Open)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// uploadPoster takes a multipart "file" or a JSON base64 data URL.
func (s *Server) uploadPoster(c *gin.Context) {
	if s.svc.Posters == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	if _, ok := s.managed(c); !ok {
		return
	}
	ctx := c.Request.Context()
	var (
		url string
		err error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			badRequest(c, ferr)
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			badRequest(c, ferr)
			return
		}
		res, uerr := s.svc.Posters.UploadImage(ctx, data, header.Filename)
		if uerr == nil {
			url = res.SecureURL
		}
		err = uerr
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			badRequest(c, berr)
			return
		}
		if !strings.HasPrefix(body.Data, "data:") {
			if _, derr := base64.StdEncoding.DecodeString(body.Data); derr != nil {
				badRequest(c, derr)
				return
			}
			body.Data = "data:image/png;base64," + body.Data
		}
		res, uerr := s.svc.Posters.UploadBase64(ctx, body.Data)
		if uerr == nil {
			url = res.SecureURL
		}
		err = uerr
	}
	if err != nil {
		s.log.Warn("poster upload failed", zap.String("event_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	e, err := s.svc.Events.SetPoster(ctx, session(c), c.Param("id"), url)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) organizerEvents(c *gin.Context) {
	events, err := s.svc.Events.ListByOrganizer(c.Request.Context(), session(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// reviewEvents lists events by status for secretaries, PENDING by default.
func (s *Server) reviewEvents(c *gin.Context) {
	status := event.Status(strings.ToUpper(c.DefaultQuery("status", string(event.StatusPending))))
	events, err := s.svc.Events.ListByStatus(c.Request.Context(), status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
