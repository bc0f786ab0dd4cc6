// Package vad skips engine calls on clips that contain no speech.
package vad

import (
	"encoding/binary"
	"fmt"

	"gpnscribe/internal/codec"
	"gpnscribe/internal/errs"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const sampleRate = 16000

// Gate classifies clips with the webrtc voice activity detector.
type Gate struct {
	mode     int
	frameMS  int
	minRatio float64
}

// New validates the detector settings.
func New(aggressiveness, frameMS int, minVoicedRatio float64) (*Gate, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, errs.Config("vad aggressiveness must be 0-3 (got %d)", aggressiveness)
	}
	if frameMS != 10 && frameMS != 20 && frameMS != 30 {
		return nil, errs.Config("vad frame_ms must be 10, 20, or 30 (got %d)", frameMS)
	}
	if minVoicedRatio < 0 || minVoicedRatio > 1 {
		return nil, errs.Config("vad min_voiced_ratio must be within [0,1]")
	}
	return &Gate{mode: aggressiveness, frameMS: frameMS, minRatio: minVoicedRatio}, nil
}

// Voiced reports whether enough frames of the WAV clip at path carry speech.
// The ratio of voiced frames is returned for logging.
func (g *Gate) Voiced(path string) (bool, float64, error) {
	pcm, err := codec.ReadMono16(path, sampleRate)
	if err != nil {
		return false, 0, err
	}
	ratio, err := g.voicedRatio(pcm)
	if err != nil {
		return false, 0, err
	}
	return ratio > 0 && ratio >= g.minRatio, ratio, nil
}

func (g *Gate) voicedRatio(pcm []int16) (float64, error) {
	det, err := webrtcvad.New()
	if err != nil {
		return 0, fmt.Errorf("vad init: %w", err)
	}
	if err := det.SetMode(g.mode); err != nil {
		return 0, fmt.Errorf("vad mode: %w", err)
	}
	frame := sampleRate * g.frameMS / 1000
	buf := make([]byte, frame*2)
	var total, voiced int
	for off := 0; off+frame <= len(pcm); off += frame {
		for i, s := range pcm[off : off+frame] {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		active, err := det.Process(sampleRate, buf)
		if err != nil {
			return 0, fmt.Errorf("vad process: %w", err)
		}
		total++
		if active {
			voiced++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(voiced) / float64(total), nil
}
