//go:build whisper

package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"gpnscribe/internal/codec"
	"gpnscribe/internal/config"
	"gpnscribe/internal/errs"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"
)

const whisperSampleRate = 16000

// whisperBackend loads the model once; every worker gets its own context.
type whisperBackend struct {
	model    whisper.Model
	language string
	logger   *logrus.Logger
}

func openWhisper(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	path := cfg.ModelFile()
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Config("whisper model for profile %q not available at %s (run: gpnscribe setup)", cfg.Engine.Profile, path)
	}
	model, err := whisper.New(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, "load whisper model", err)
	}
	logger.Infof("loaded whisper model %s", path)
	return &whisperBackend{
		model:    model,
		language: strings.TrimSpace(cfg.Engine.Language),
		logger:   logger,
	}, nil
}

func (b *whisperBackend) Name() string { return "whisper" }

func (b *whisperBackend) NewWorker() (Engine, error) {
	wctx, err := b.model.NewContext()
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, "whisper context", err)
	}
	if b.language != "" {
		if err := wctx.SetLanguage(b.language); err != nil {
			b.logger.Warnf("set language: %v", err)
		}
	}
	return &whisperWorker{ctx: wctx}, nil
}

func (b *whisperBackend) Close() error {
	return b.model.Close()
}

type whisperWorker struct {
	ctx whisper.Context
}

func (w *whisperWorker) Transcribe(ctx context.Context, clipPath string) (string, error) {
	samples, err := codec.ReadMono(clipPath, whisperSampleRate)
	if err != nil {
		return "", err
	}
	// Returning false from the encoder callback aborts the run.
	keepGoing := func() bool { return ctx.Err() == nil }
	if err := w.ctx.Process(samples, keepGoing, nil, nil); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	var b strings.Builder
	for {
		seg, err := w.ctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// Contexts are released together with the model.
func (w *whisperWorker) Close() error { return nil }
