package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhub/internal/auth"
	"clubhub/internal/student"
)

func (s *Server) issue(c *gin.Context, status int, sess auth.Session) {
	tok, err := auth.Issue(sess, s.opts.JWTIssuer, s.opts.JWTSigningKey, s.opts.AccessTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
		"session":      sess,
	})
}

// login accepts staff usernames and student roll numbers.
func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	sess, err := s.svc.Accounts.Login(ctx, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		sess, err = s.svc.Students.Authenticate(ctx, req.Username, req.Password)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, http.StatusOK, sess)
}

func (s *Server) signup(c *gin.Context) {
	var req student.SignUp
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.svc.Students.Register(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	sess, err := s.svc.Students.Authenticate(c.Request.Context(), p.Roll, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, http.StatusCreated, sess)
}

func (s *Server) judgeLogin(c *gin.Context) {
	var req struct {
		EventID    string `json:"eventId" binding:"required"`
		AccessCode string `json:"accessCode" binding:"required"`
		Name       string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.svc.Judging.Login(c.Request.Context(), req.EventID, req.AccessCode, req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, http.StatusOK, sess)
}

func (s *Server) me(c *gin.Context) {
	sess := session(c)
	if sess.Role != auth.RoleStudent {
		c.JSON(http.StatusOK, gin.H{"session": sess})
		return
	}
	p, err := s.svc.Students.Get(c.Request.Context(), sess.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "profile": p.Public()})
}

func (s *Server) createStaff(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Club     string `json:"club"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	acc, err := s.svc.Accounts.CreateStaff(c.Request.Context(), req.Username, req.Password, req.Name, req.Club, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	acc.PasswordHash = ""
	c.JSON(http.StatusCreated, acc)
}
