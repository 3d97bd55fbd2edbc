package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"clubhub/internal/cloudinary"
)

// Storage keeps rendered reports and returns where they can be fetched.
type Storage interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// LocalDir writes reports into a directory on disk.
type LocalDir struct {
	Dir string
}

func (l LocalDir) Save(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(l.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Cloud uploads reports to Cloudinary as raw files.
type Cloud struct {
	Client *cloudinary.Client
}

func (c Cloud) Save(ctx context.Context, name string, data []byte) (string, error) {
	res, err := c.Client.UploadRaw(ctx, data, name)
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}
