package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/metrics"
	"clubhub/internal/queue"
	"clubhub/internal/registration"
)

// Job statuses.
const (
	JobQueued = "queued"
	JobReady  = "ready"
	JobFailed = "failed"
)

var ErrJobNotFound = errors.New("report job not found")

// Job is a document in the reports collection.
type Job struct {
	ID          string     `json:"id"`
	EventID     string     `json:"eventId"`
	Status      string     `json:"status"`
	Location    string     `json:"location,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
	RequestedBy string     `json:"requestedBy"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type jobBody struct {
	JobID string `json:"jobId"`
}

// Events loads the reported event.
type Events interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

// Registrations lists an event's registrations.
type Registrations interface {
	ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error)
}

// Service builds reports on demand and through the job queue.
type Service struct {
	store   docstore.Store
	events  Events
	regs    Registrations
	queue   queue.Queue
	storage Storage
	log     *zap.Logger
	now     func() time.Time
}

// NewService wires the report builder. q and storage are only needed for jobs.
func NewService(store docstore.Store, events Events, regs Registrations, q queue.Queue, storage Storage, log *zap.Logger) *Service {
	return &Service{store: store, events: events, regs: regs, queue: q, storage: storage, log: log, now: time.Now}
}

// Build loads an event with its registrations and summarizes them.
func (s *Service) Build(ctx context.Context, eventID string) (Summary, []registration.Registration, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Summary{}, nil, err
	}
	regs, err := s.regs.ListByEvent(ctx, eventID)
	if err != nil {
		return Summary{}, nil, err
	}
	return Summarize(e, regs), regs, nil
}

// Render builds the xlsx workbook for an event.
func (s *Service) Render(ctx context.Context, eventID string) (Summary, []byte, error) {
	sum, regs, err := s.Build(ctx, eventID)
	if err != nil {
		return Summary{}, nil, err
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sum, regs); err != nil {
		return Summary{}, nil, fmt.Errorf("render report %s: %w", eventID, err)
	}
	return sum, buf.Bytes(), nil
}

// Enqueue records a queued job and hands it to the worker.
func (s *Service) Enqueue(ctx context.Context, eventID, requestedBy string) (Job, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return Job{}, err
	}
	job := Job{EventID: eventID, Status: JobQueued, RequestedBy: requestedBy, CreatedAt: s.now().UTC()}
	id, err := s.store.Create(ctx, docstore.Reports, "", job)
	if err != nil {
		return Job{}, fmt.Errorf("create report job: %w", err)
	}
	job.ID = id

	msg, err := queue.NewMessage(queue.TypeReport, jobBody{JobID: id})
	if err != nil {
		return Job{}, err
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		s.fail(ctx, id, err)
		return Job{}, fmt.Errorf("publish report job: %w", err)
	}
	s.log.Info("report job queued", zap.String("job_id", id), zap.String("event_id", eventID))
	return job, nil
}

// Job returns a report job.
func (s *Service) Job(ctx context.Context, id string) (Job, error) {
	job, err := docstore.Load[Job](ctx, s.store, docstore.Reports, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

// Process renders and stores one job, recording the outcome on the job.
func (s *Service) Process(ctx context.Context, jobID string) error {
	job, err := s.Job(ctx, jobID)
	if err != nil {
		return err
	}
	sum, data, err := s.Render(ctx, job.EventID)
	if err != nil {
		s.fail(ctx, jobID, err)
		return err
	}
	name := fmt.Sprintf("attendance-%s-%s.xlsx", job.EventID, s.now().UTC().Format("20060102-150405"))
	location, err := s.storage.Save(ctx, name, data)
	if err != nil {
		s.fail(ctx, jobID, err)
		return fmt.Errorf("store report: %w", err)
	}

	finished := s.now().UTC()
	fields := map[string]any{"status": JobReady, "location": location, "summary": sum, "finishedAt": finished, "error": ""}
	if err := s.store.Update(ctx, docstore.Reports, jobID, fields); err != nil {
		return fmt.Errorf("update report job %s: %w", jobID, err)
	}
	metrics.ReportJobs.WithLabelValues(JobReady).Inc()
	s.log.Info("report ready", zap.String("job_id", jobID), zap.String("location", location))
	return nil
}

// Run consumes report messages until the channel closes or ctx ends.
func (s *Service) Run(ctx context.Context, msgs <-chan queue.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg.Type != queue.TypeReport {
				continue
			}
			var body jobBody
			if err := msg.Decode(&body); err != nil || body.JobID == "" {
				s.log.Warn("bad report message", zap.ByteString("body", msg.Body))
				continue
			}
			if err := s.Process(ctx, body.JobID); err != nil {
				s.log.Error("report job failed", zap.String("job_id", body.JobID), zap.Error(err))
			}
		}
	}
}

func (s *Service) fail(ctx context.Context, jobID string, cause error) {
	metrics.ReportJobs.WithLabelValues(JobFailed).Inc()
	fields := map[string]any{"status": JobFailed, "error": cause.Error(), "finishedAt": s.now().UTC()}
	if err := s.store.Update(ctx, docstore.Reports, jobID, fields); err != nil {
		s.log.Error("mark report job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
