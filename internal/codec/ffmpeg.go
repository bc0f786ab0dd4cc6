package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gpnscribe/internal/errs"
)

// commandRunner runs a command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg decodes anything ffmpeg understands and exports mono PCM clips.
type FFmpeg struct {
	path       string
	sampleRate int
	run        commandRunner
}

// NewFFmpeg resolves the ffmpeg binary. A missing binary is a configuration error.
func NewFFmpeg(binary string, sampleRate int) (*FFmpeg, error) {
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, errs.Config("ffmpeg is not installed (%s): %v", binary, err)
	}
	return &FFmpeg{path: resolved, sampleRate: sampleRate, run: runCommand}, nil
}

// Binary is the resolved ffmpeg path.
func (f *FFmpeg) Binary() string { return f.path }

func (f *FFmpeg) Load(ctx context.Context, path string) (*Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(errs.ErrDecode, "open "+path, err)
	}
	// ffmpeg exits non-zero without an output file; the banner still carries the duration.
	out, runErr := f.run(ctx, f.path, "-hide_banner", "-nostdin", "-i", path)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	d, err := parseDuration(string(out))
	if err != nil {
		if runErr != nil {
			err = fmt.Errorf("%w (%v)", err, runErr)
		}
		return nil, errs.Wrap(errs.ErrDecode, "probe "+path, err)
	}
	return &Handle{Path: path, DurationMS: d.Milliseconds()}, nil
}

func (f *FFmpeg) Slice(h *Handle, startMS, endMS int64) (Clip, error) {
	return sliceHandle(h, startMS, endMS)
}

func (f *FFmpeg) Export(ctx context.Context, clip Clip, path, format string) error {
	start := time.Duration(clip.StartMS) * time.Millisecond
	length := time.Duration(clip.EndMS-clip.StartMS) * time.Millisecond
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-ss", formatFFmpegTime(start),
		"-t", formatFFmpegTime(length),
		"-i", clip.Handle.Path,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(f.sampleRate),
	}
	if format == "wav" {
		args = append(args, "-c:a", "pcm_s16le")
	}
	args = append(args, "-f", format, path)
	if _, err := f.run(ctx, f.path, args...); err != nil {
		return errs.Wrap(errs.ErrDecode, "ffmpeg export", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := lastLine(out.String()); msg != "" {
			return out.Bytes(), fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return out.Bytes(), fmt.Errorf("%s failed: %w", name, err)
	}
	return out.Bytes(), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)(?:\.(\d+))?`)

// parseDuration reads "Duration: HH:MM:SS.ff" from ffmpeg's banner.
func parseDuration(output string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(output)
	if m == nil {
		if strings.Contains(output, "Duration: N/A") {
			return 0, fmt.Errorf("duration unknown")
		}
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])

	// Normalize the fraction to milliseconds.
	var ms int
	if frac := m[4]; frac != "" {
		for len(frac) < 3 {
			frac += "0"
		}
		ms, _ = strconv.Atoi(frac[:3])
	}
	return time.Duration(h)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// formatFFmpegTime formats a duration for -ss/-t.
func formatFFmpegTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
