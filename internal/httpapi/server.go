// Package httpapi exposes the club services over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/checkin"
	"clubhub/internal/cloudinary"
	"clubhub/internal/event"
	"clubhub/internal/feedback"
	"clubhub/internal/httpmiddleware"
	"clubhub/internal/judging"
	"clubhub/internal/quiz"
	"clubhub/internal/registration"
	"clubhub/internal/report"
	"clubhub/internal/student"
)

// Options holds the HTTP-level settings.
type Options struct {
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RateLimitPerMin int
	CORSOrigins     []string
	// Health checks reported by /healthz, keyed by dependency name.
	Health map[string]func(context.Context) bool
}

// Services are the domain services behind the handlers. Posters is nil when
// image storage is not configured.
type Services struct {
	Accounts      *auth.Accounts
	Students      *student.Directory
	Events        *event.Service
	Registrations *registration.Service
	Consoles      *checkin.Consoles
	Judging       *judging.Service
	Reports       *report.Service
	Feedback      *feedback.Service
	Quiz          *quiz.Service
	Posters       *cloudinary.Client
}

// Server owns the gin engine.
type Server struct {
	opts Options
	svc  Services
	log  *zap.Logger

	// streams is cancelled by CloseStreams; every SSE handler watches it.
	streams      context.Context
	closeStreams context.CancelFunc
	resubscribe  time.Duration
}

// New creates the API server.
func New(opts Options, svc Services, log *zap.Logger) *Server {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 8 * time.Hour
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 240
	}
	streams, closeStreams := context.WithCancel(context.Background())
	return &Server{
		opts:         opts,
		svc:          svc,
		log:          log,
		streams:      streams,
		closeStreams: closeStreams,
		resubscribe:  time.Second,
	}
}

// CloseStreams ends every open server-sent event stream. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (s *Server) CloseStreams() {
	s.closeStreams()
}

// Router builds the engine with middleware and every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(s.log, "/healthz", "/metrics"))
	r.Use(cors.New(s.corsConfig()))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.BodyLimit(8 << 20))
	r.Use(httpmiddleware.NewSimpleTokenBucket(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", s.login)
	v1.POST("/auth/signup", s.signup)
	v1.POST("/judge/login", s.judgeLogin)
	v1.GET("/events", s.listPublicEvents)
	v1.GET("/events/:id", s.getPublicEvent)

	authed := v1.Group("", auth.Authenticate(s.opts.JWTSigningKey, s.opts.JWTIssuer))
	authed.GET("/me", s.me)

	staff := authed.Group("", auth.RequireStaff())
	organizers := authed.Group("", auth.RequireRole(auth.RoleOrganizer, auth.RoleAdmin))
	reviewers := authed.Group("", auth.RequireRole(auth.RoleSecretary, auth.RoleAdmin))
	students := authed.Group("", auth.RequireRole(auth.RoleStudent))
	judges := authed.Group("", auth.RequireRole(auth.RoleJudge))
	admins := authed.Group("", auth.RequireRole(auth.RoleAdmin))

	organizers.POST("/events", s.createEvent)
	organizers.PUT("/events/:id", s.updateEvent)
	organizers.DELETE("/events/:id", s.deleteEvent)
	for _, a := range []event.Action{event.ActionSubmit, event.ActionWithdraw, event.ActionApprove, event.ActionReject, event.ActionComplete} {
		staff.POST("/events/:id/"+string(a), s.transition(a))
	}
	organizers.PUT("/events/:id/registration", s.setRegistrationOpen)
	organizers.POST("/events/:id/poster", s.uploadPoster)
	organizers.GET("/organizer/events", s.organizerEvents)
	reviewers.GET("/review/events", s.reviewEvents)
	staff.GET("/events/:id/detail", s.eventDetail)

	students.POST("/events/:id/registrations", s.register)
	students.GET("/me/registrations", s.myRegistrations)
	organizers.GET("/events/:id/registrations", s.listRegistrations)
	organizers.GET("/events/:id/registrations/stream", s.streamRegistrations)
	organizers.DELETE("/events/:id/registrations/:roll", s.removeRegistration)
	authed.GET("/events/:id/registrations/:roll/qr.png", s.registrationQR)
	authed.GET("/events/:id/teams", s.teams)
	organizers.GET("/events/:id/teams/:code/qr.png", s.teamQR)

	scanners := organizers.Group("", httpmiddleware.NewSimpleTokenBucket(120, 120).Keyed(httpmiddleware.BySubject))
	scanners.POST("/events/:id/checkin/scan", s.scan)
	scanners.POST("/events/:id/checkin/undo", s.undo)
	scanners.POST("/events/:id/checkin/onspot", s.onSpot)
	organizers.GET("/events/:id/checkin/console", s.consoleState)

	judges.POST("/judge/open", s.openTeam)
	judges.POST("/judge/scores", s.submitScore)
	judges.GET("/judge/progress", s.judgeProgress)
	authed.GET("/events/:id/leaderboard", s.leaderboard)
	authed.GET("/events/:id/leaderboard/stream", s.streamLeaderboard)

	organizers.GET("/events/:id/report", s.reportSummary)
	organizers.GET("/events/:id/report.xlsx", s.reportXLSX)
	organizers.POST("/events/:id/report/jobs", s.enqueueReport)
	organizers.GET("/reports/:id", s.reportJob)

	students.POST("/events/:id/feedback", s.submitFeedback)
	organizers.GET("/events/:id/feedback", s.feedbackOverview)
	students.POST("/events/:id/quiz", s.submitQuiz)
	organizers.GET("/events/:id/quiz", s.quizResults)

	admins.POST("/admin/staff", s.createStaff)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.opts.CORSOrigins) == 0 || slices.Contains(s.opts.CORSOrigins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = s.opts.CORSOrigins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.opts.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// session returns the caller's session; routes using it sit behind Authenticate.
func session(c *gin.Context) auth.Session {
	claims, _ := auth.FromContext(c)
	return claims.Session()
}
