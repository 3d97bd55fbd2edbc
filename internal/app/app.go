// Package app opens the backends selected by configuration. Both binaries
// share it so the API and the worker always agree on storage.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"clubhub/internal/cloudinary"
	"clubhub/internal/config"
	"clubhub/internal/docstore"
	"clubhub/internal/queue"
	"clubhub/internal/report"
	"clubhub/internal/store"
)

// Backends are the opened connections. Health reports each dependency the
// process actually uses.
type Backends struct {
	Store  docstore.Store
	Queue  queue.Queue
	Redis  *store.Redis
	DB     *store.DB
	Health map[string]func(context.Context) bool

	closers []func() error
}

// Open connects the document store and the job queue.
func Open(ctx context.Context, cfg config.App, log *zap.Logger) (*Backends, error) {
	b := &Backends{Health: map[string]func(context.Context) bool{}}
	usesRedis := cfg.DocstoreBackend == "postgres" || cfg.QueueBackend == "redis"
	if usesRedis {
		b.Redis = store.NewRedis(cfg.RedisAddr)
		b.closers = append(b.closers, b.Redis.Close)
		b.Health["redis"] = b.Redis.Healthy
	}

	switch cfg.DocstoreBackend {
	case "memory", "":
		b.Store = docstore.NewMemory()
		log.Warn("using in-memory document store; data is lost on restart")
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.DB = db
		b.closers = append(b.closers, db.Close)
		b.Health["db"] = db.Healthy
		if err := store.Migrate(db.Client, log); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = docstore.NewPostgres(db.Client, docstore.NewRedisNotifier(b.Redis.Client, ""))
	case "firestore":
		fs, err := docstore.NewFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreCredential)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect firestore: %w", err)
		}
		b.Store = fs
	default:
		b.Close()
		return nil, fmt.Errorf("unknown DOCSTORE_BACKEND %q", cfg.DocstoreBackend)
	}
	b.closers = append(b.closers, b.Store.Close)

	if cfg.QueueBackend == "redis" {
		b.Queue = queue.NewRedisQueue(b.Redis.Client, "")
	} else {
		b.Queue = queue.NewInMemory(64)
	}
	log.Info("backends ready",
		zap.String("docstore", cfg.DocstoreBackend),
		zap.String("queue", cfg.QueueBackend))
	return b, nil
}

// Close releases every connection in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Cloudinary returns a client when the credentials are configured.
func Cloudinary(cfg config.App) *cloudinary.Client {
	if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
		return nil
	}
	return cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
}

// ReportStorage uploads reports to Cloudinary when configured and writes
// them to ReportDir otherwise.
func ReportStorage(cfg config.App, cdn *cloudinary.Client) report.Storage {
	if cdn != nil {
		return report.Cloud{Client: cdn}
	}
	return report.LocalDir{Dir: cfg.ReportDir}
}
