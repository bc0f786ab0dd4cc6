package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"gpnscribe/internal/config"
)

func byName(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.Name] = r
	}
	return out
}

func TestRunExecEngine(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(""), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	script := filepath.Join(dir, "whisper-cli")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = cfgPath
	cfg.Paths.InputDir = dir
	cfg.Codec.Backend = "wav"
	cfg.Engine.Backend = "exec"
	cfg.Engine.Command = script
	cfg.Engine.Args = "-f {input}"

	results := byName(Run(cfg))
	for _, name := range []string{"config path", "input dir", "settings", "engine.command"} {
		if r, ok := results[name]; !ok || !r.Pass {
			t.Fatalf("%s: %+v", name, r)
		}
	}
	if _, ok := results["ffmpeg"]; ok {
		t.Fatalf("ffmpeg checked for wav codec")
	}
	if _, ok := results["model file"]; ok {
		t.Fatalf("model checked although args do not use it")
	}
}

func TestRunReportsProblems(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = filepath.Join(dir, "none.toml")
	cfg.Paths.InputDir = filepath.Join(dir, "missing")
	cfg.Paths.ModelDir = dir
	cfg.Codec.Backend = "wav"
	cfg.Segment.WindowMS = 0

	results := Run(cfg)
	if !Failed(results) {
		t.Fatalf("expected failures: %+v", results)
	}
	got := byName(results)
	for _, name := range []string{"config path", "input dir", "settings", "model file"} {
		if got[name].Pass {
			t.Fatalf("%s should fail: %+v", name, got[name])
		}
	}
}

func TestCheckExecutable(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := checkExecutable("engine.command", plain); r.Pass {
		t.Fatalf("non-executable file passed")
	}
	if r := checkExecutable("engine.command", dir); r.Pass {
		t.Fatalf("directory passed")
	}
	if r := checkExecutable("engine.command", ""); r.Pass || r.Detail != "not set" {
		t.Fatalf("empty command: %+v", r)
	}
	if r := checkExecutable("engine.command", "sh"); !r.Pass {
		t.Fatalf("sh should resolve on PATH: %+v", r)
	}
}

func TestCheckAPIKey(t *testing.T) {
	t.Setenv("GPNSCRIBE_TEST_KEY", "")
	if r := checkAPIKey("GPNSCRIBE_TEST_KEY"); r.Pass {
		t.Fatalf("empty key passed")
	}
	t.Setenv("GPNSCRIBE_TEST_KEY", "sk-test")
	if r := checkAPIKey("GPNSCRIBE_TEST_KEY"); !r.Pass {
		t.Fatalf("set key failed")
	}
}
