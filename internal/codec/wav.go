package codec

import (
	"context"
	"os"

	"gpnscribe/internal/errs"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV is a pure Go codec for PCM WAV sources. Load decodes the whole file
// into an in-memory buffer of one int per sample that workers slice without
// touching the source again. A one-hour 48 kHz stereo file takes about 2.8 GB,
// so this codec suits short inputs and tests; long recordings should use the
// ffmpeg codec, which cuts each window from disk.
type WAV struct{}

func NewWAV() *WAV { return &WAV{} }

func (c *WAV) Load(ctx context.Context, path string) (*Handle, error) {
	buf, err := decodeWAV(path)
	if err != nil {
		return nil, err
	}
	frames := int64(len(buf.Data) / buf.Format.NumChannels)
	return &Handle{
		Path:       path,
		DurationMS: frames * 1000 / int64(buf.Format.SampleRate),
		pcm:        buf,
	}, nil
}

func (c *WAV) Slice(h *Handle, startMS, endMS int64) (Clip, error) {
	return sliceHandle(h, startMS, endMS)
}

func (c *WAV) Export(ctx context.Context, clip Clip, path, format string) error {
	if format != "wav" {
		return errs.Config("wav codec cannot export %q", format)
	}
	buf := clip.Handle.pcm
	if buf == nil {
		return errs.New(errs.ErrDecode, "%s was not loaded by the wav codec", clip.Handle.Path)
	}
	ch := buf.Format.NumChannels
	rate := int64(buf.Format.SampleRate)
	from := int(clip.StartMS*rate/1000) * ch
	to := min(int(clip.EndMS*rate/1000)*ch, len(buf.Data))

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.ErrIO, "create clip", err)
	}
	enc := wav.NewEncoder(f, buf.Format.SampleRate, buf.SourceBitDepth, ch, 1)
	part := &audio.IntBuffer{Format: buf.Format, Data: buf.Data[from:to], SourceBitDepth: buf.SourceBitDepth}
	if err := enc.Write(part); err != nil {
		_ = f.Close()
		return errs.Wrap(errs.ErrDecode, "encode clip", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return errs.Wrap(errs.ErrDecode, "finish clip", err)
	}
	return f.Close()
}

func decodeWAV(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDecode, "open "+path, err)
	}
	defer func() { _ = f.Close() }()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errs.New(errs.ErrDecode, "%s is not a valid WAV file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, errs.Wrap(errs.ErrDecode, "decode "+path, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, errs.New(errs.ErrDecode, "%s has no audio format", path)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(d.BitDepth)
	}
	if buf.SourceBitDepth == 0 {
		return nil, errs.New(errs.ErrDecode, "%s has no bit depth", path)
	}
	return buf, nil
}
