package vad

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gpnscribe/internal/errs"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeSilence(t *testing.T, path string, samples int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	_ = f.Close()
}

func TestSilenceIsNotVoiced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	writeSilence(t, path, sampleRate)

	g, err := New(3, 20, 0.02)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	voiced, ratio, err := g.Voiced(path)
	if err != nil {
		t.Fatalf("voiced: %v", err)
	}
	if voiced || ratio != 0 {
		t.Fatalf("silence classified as speech (ratio %.2f)", ratio)
	}
}

func TestShortClipIsNotVoiced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blip.wav")
	writeSilence(t, path, 40)
	g, _ := New(2, 30, 0)
	voiced, _, err := g.Voiced(path)
	if err != nil {
		t.Fatalf("voiced: %v", err)
	}
	if voiced {
		t.Fatalf("clip shorter than a frame should not count as speech")
	}
}

func TestNewValidates(t *testing.T) {
	for _, c := range []struct {
		mode, frame int
		ratio       float64
	}{
		{4, 20, 0.1},
		{-1, 20, 0.1},
		{2, 25, 0.1},
		{2, 20, 1.5},
	} {
		if _, err := New(c.mode, c.frame, c.ratio); !errors.Is(err, errs.ErrConfiguration) {
			t.Fatalf("New(%d,%d,%v): expected configuration error, got %v", c.mode, c.frame, c.ratio, err)
		}
	}
}

func TestVoicedBadFile(t *testing.T) {
	g, _ := New(2, 20, 0.1)
	if _, _, err := g.Voiced(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
