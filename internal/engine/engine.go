// Package engine wraps the speech-to-text backends behind one interface.
package engine

import (
	"context"

	"gpnscribe/internal/config"
	"gpnscribe/internal/errs"

	"github.com/sirupsen/logrus"
)

// Engine transcribes one clip. An Engine is used by a single worker at a time.
type Engine interface {
	Transcribe(ctx context.Context, clipPath string) (string, error)
	Close() error
}

// Backend holds the one-time initialization shared by every worker engine,
// such as a loaded model or an HTTP client.
type Backend interface {
	Name() string
	NewWorker() (Engine, error)
	Close() error
}

// Open initializes the backend selected in cfg.
func Open(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	switch cfg.Engine.Backend {
	case "whisper":
		return openWhisper(cfg, logger)
	case "exec":
		return newExecBackend(cfg, logger)
	case "http":
		return newHTTPBackend(cfg, logger)
	}
	return nil, errs.Config("unknown engine backend %q", cfg.Engine.Backend)
}
