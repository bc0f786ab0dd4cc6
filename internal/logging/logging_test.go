package logging

import (
	"os"
	"path/filepath"
	"testing"

	"gpnscribe/internal/config"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":    logrus.DebugLevel,
		"INFO":     logrus.InfoLevel,
		"warning":  logrus.WarnLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"nonsense": logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestConfigureWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "gpnscribe.log")
	cfg.Logging.Console = false
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	logger.WithField("file", "talk.mp3").Debug("planned")

	data, err := os.ReadFile(cfg.Paths.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output")
	}
}
