package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/docstore"
	"clubhub/internal/live"
	"clubhub/internal/metrics"
)

// streamView sends every new state of v as a server-sent event until the
// client disconnects or the server closes its streams. A watch that ends on
// its own is opened again after a short pause.
func streamView[S any](s *Server, c *gin.Context, name string, watch func(context.Context) (<-chan docstore.Snapshot, error), v *live.View[S]) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(s.streams, cancel)
	defer stop()

	snaps, err := watch(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.LiveStreams.Inc()
	defer metrics.LiveStreams.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	send := func(state S) error {
		c.SSEvent(name, state)
		c.Writer.Flush()
		return nil
	}
	for {
		err = live.Follow(ctx, snaps, v, send)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn("stream ended", zap.String("stream", name), zap.Error(err))
			return
		}

		s.log.Info("stream resubscribing", zap.String("stream", name))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.resubscribe):
		}
		// a new watch numbers its snapshots from 1 again
		v.Reset()
		if snaps, err = watch(ctx); err != nil {
			s.log.Warn("stream resubscribe failed", zap.String("stream", name), zap.Error(err))
			return
		}
	}
}
