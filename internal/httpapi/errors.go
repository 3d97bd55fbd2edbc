package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/checkin"
	"clubhub/internal/event"
	"clubhub/internal/feedback"
	"clubhub/internal/judging"
	"clubhub/internal/qr"
	"clubhub/internal/quiz"
	"clubhub/internal/registration"
	"clubhub/internal/report"
	"clubhub/internal/student"
)

var statusFor = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{
		event.ErrNotFound, registration.ErrNotFound, student.ErrNotFound,
		judging.ErrTeamNotFound, registration.ErrTeamNotFound, report.ErrJobNotFound,
		checkin.ErrStudentNotFound,
	}},
	{http.StatusConflict, []error{
		event.ErrNotEditable, event.ErrInvalidTransition, event.ErrNotLive,
		registration.ErrAlreadyRegistered, registration.ErrRegistrationClosed, registration.ErrEventFull,
		registration.ErrTeamFull, student.ErrAlreadyExists, auth.ErrAccountExists,
		judging.ErrAlreadyScored, feedback.ErrAlreadySubmitted, quiz.ErrAlreadySubmitted,
		quiz.ErrNotLive, checkin.ErrNotCheckedIn, checkin.ErrOnSpotNotAllowed, checkin.ErrEventNotLive,
	}},
	{http.StatusForbidden, []error{
		event.ErrForbidden, registration.ErrNotEligible, judging.ErrNotJudge, judging.ErrWrongEvent,
		feedback.ErrNotAttended, quiz.ErrNotRegistered,
	}},
	{http.StatusUnauthorized, []error{auth.ErrInvalidCredentials, judging.ErrInvalidAccessCode}},
	{http.StatusTooManyRequests, []error{checkin.ErrScannerPaused}},
	{http.StatusBadGateway, []error{checkin.ErrVerifyUnavailable}},
	{http.StatusUnprocessableEntity, []error{
		event.ErrInvalidInput, event.ErrRemarksRequired, event.ErrUnknownAction,
		registration.ErrTeamRequired, registration.ErrInvalidProblem, registration.ErrInvalidTeamRole,
		student.ErrInvalidRoll, auth.ErrInvalidRole, auth.ErrWeakPassword,
		judging.ErrInvalidPayload, judging.ErrInvalidScores, feedback.ErrInvalidRating,
		quiz.ErrNotQuiz, checkin.ErrUnresolvable, qr.ErrEmptyPayload,
	}},
}

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	for _, group := range statusFor {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Unmapped errors are logged and hidden.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	if status == http.StatusBadGateway {
		s.log.Warn("upstream failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": checkin.ErrVerifyUnavailable.Error()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
