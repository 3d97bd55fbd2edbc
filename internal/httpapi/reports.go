package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhub/internal/feedback"
)

func (s *Server) reportSummary(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	sum, _, err := s.svc.Reports.Build(c.Request.Context(), e.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) reportXLSX(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	_, data, err := s.svc.Reports.Render(c.Request.Context(), e.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.xlsx"`, e.ID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *Server) enqueueReport(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	job, err := s.svc.Reports.Enqueue(c.Request.Context(), e.ID, session(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) reportJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := s.svc.Reports.Job(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err := s.svc.Events.Get(ctx, job.EventID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !s.svc.Events.CanManage(e, session(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) submitFeedback(c *gin.Context) {
	var in feedback.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := s.svc.Feedback.Submit(c.Request.Context(), c.Param("id"), session(c).ID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) feedbackOverview(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	o, err := s.svc.Feedback.Overview(c.Request.Context(), e.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) submitQuiz(c *gin.Context) {
	var req struct {
		Answers map[string]string `json:"answers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := s.svc.Quiz.Submit(c.Request.Context(), c.Param("id"), session(c).ID, req.Answers)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) quizResults(c *gin.Context) {
	e, ok := s.managed(c)
	if !ok {
		return
	}
	subs, err := s.svc.Quiz.Results(c.Request.Context(), e.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}
