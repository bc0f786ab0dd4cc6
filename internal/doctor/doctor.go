package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"gpnscribe/internal/config"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks for the configured codec and engine.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkDir("input dir", cfg.InputPath()),
		checkSettings(cfg, runtime.NumCPU()),
	}
	if cfg.Codec.Backend == "ffmpeg" {
		results = append(results, checkExecutable("ffmpeg", cfg.Codec.FFmpegPath))
	}
	switch cfg.Engine.Backend {
	case "whisper":
		results = append(results, checkWhisperBuild(), checkFile("model file", cfg.ModelFile()))
	case "exec":
		results = append(results, checkExecutable("engine.command", cfg.Engine.Command))
		if strings.Contains(cfg.Engine.Args, "{model}") {
			results = append(results, checkFile("model file", cfg.ModelFile()))
		}
	case "http":
		results = append(results, checkAPIKey(cfg.Engine.APIKeyEnv))
	}
	return results
}

// Failed reports whether any check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkDir(label, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: label, Pass: false, Detail: path + " does not exist"}
		}
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if !info.IsDir() {
		return Result{Name: label, Pass: false, Detail: path + " is not a directory"}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkSettings(cfg *config.Config, numCPU int) Result {
	if err := config.Validate(cfg, numCPU); err != nil {
		return Result{Name: "settings", Pass: false, Detail: strings.ReplaceAll(err.Error(), "\n", "; ")}
	}
	return Result{Name: "settings", Pass: true, Detail: fmt.Sprintf("%d workers, %dms windows", config.Workers(cfg, numCPU), cfg.Segment.WindowMS)}
}

func checkExecutable(label, cmd string) Result {
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set " + label + " to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkAPIKey(env string) Result {
	if env == "" {
		return Result{Name: "api key", Pass: true, Detail: "no key configured"}
	}
	if os.Getenv(env) == "" {
		return Result{Name: "api key", Pass: false, Detail: "$" + env + " is empty"}
	}
	return Result{Name: "api key", Pass: true, Detail: "$" + env + " set"}
}
