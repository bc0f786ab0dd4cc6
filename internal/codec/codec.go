// Package codec decodes source recordings and exports per-window clips that
// the transcription engines can read.
package codec

import (
	"context"
	"errors"
	"fmt"

	"gpnscribe/internal/errs"
	"gpnscribe/internal/segment"

	"github.com/go-audio/audio"
)

// Handle is a loaded recording. It is shared read-only by all workers.
type Handle struct {
	Path       string
	DurationMS int64

	pcm *audio.IntBuffer
}

// Clip describes a slice of a loaded recording.
type Clip struct {
	Handle  *Handle
	StartMS int64
	EndMS   int64
}

// Codec is the audio decoding collaborator.
type Codec interface {
	Load(ctx context.Context, path string) (*Handle, error)
	Slice(h *Handle, startMS, endMS int64) (Clip, error)
	Export(ctx context.Context, clip Clip, path, format string) error
}

func sliceHandle(h *Handle, startMS, endMS int64) (Clip, error) {
	if h == nil {
		return Clip{}, errs.New(errs.ErrDecode, "slice of unloaded audio")
	}
	if startMS < 0 || endMS <= startMS || endMS > h.DurationMS {
		return Clip{}, errs.New(errs.ErrDecode, "slice [%d,%d) outside %s (%dms)", startMS, endMS, h.Path, h.DurationMS)
	}
	return Clip{Handle: h, StartMS: startMS, EndMS: endMS}, nil
}

// Extractor turns a segment window into a clip file.
type Extractor struct {
	codec  Codec
	format string
}

func NewExtractor(c Codec, format string) *Extractor {
	return &Extractor{codec: c, format: format}
}

// Extract writes window w of h to path. Failures are decode errors.
func (e *Extractor) Extract(ctx context.Context, h *Handle, w segment.Window, path string) error {
	clip, err := e.codec.Slice(h, w.StartMS, w.EndMS)
	if err != nil {
		return asDecode(fmt.Sprintf("slice segment %d", w.Index), err)
	}
	if err := e.codec.Export(ctx, clip, path, e.format); err != nil {
		return asDecode(fmt.Sprintf("export segment %d", w.Index), err)
	}
	return nil
}

func asDecode(op string, err error) error {
	if errors.Is(err, errs.ErrDecode) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return errs.Wrap(errs.ErrDecode, op, err)
}
