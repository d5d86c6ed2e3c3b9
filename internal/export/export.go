// Package export stores transformed feeds. A Target is selected by driver
// name from the [export] section of the config.
package export

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"

	"feedmap/internal/config"
)

// Driver identifies a Target implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ContentType is attached to stored feeds where the backend keeps one.
const ContentType = "text/xml; charset=utf-8"

// Info describes a stored feed.
type Info struct {
	Name     string
	Location string
	Size     int64
	ETag     string
	SavedAt  time.Time
}

// Target writes a named document, replacing any previous one.
type Target interface {
	Save(ctx context.Context, name string, data []byte) (Info, error)
	Driver() Driver
}

// Open returns the Target configured by cfg.
func Open(ctx context.Context, cfg config.Export) (Target, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Dir)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unknown export driver %q", cfg.Driver)
	}
}

// Saver adapts a Target to feed.Saver and remembers the last stored Info.
type Saver struct {
	Target Target
	Last   Info
}

// Save implements feed.Saver.
func (s *Saver) Save(ctx context.Context, name string, data []byte) error {
	info, err := s.Target.Save(ctx, name, data)
	if err != nil {
		return err
	}
	s.Last = info
	return nil
}

// cleanName keeps names relative and inside the target.
func cleanName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("empty export name")
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", errors.Errorf("invalid export name %q: absolute path", name)
	}
	clean := filepath.ToSlash(filepath.Clean(name))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return "", errors.Errorf("invalid export name %q: leaves the target", name)
	}
	return clean, nil
}
