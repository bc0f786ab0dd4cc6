// Package service installs watch mode as a user-level background service:
// a launchd agent on macOS or a systemd user unit elsewhere.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

const Label = "com.gpnscribe.watch"

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>watch</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=gpnscribe watch mode
After=default.target

[Service]
ExecStart={{.Binary}} watch --config {{.Config}}
Restart=on-failure
{{- range $k, $v := .Env }}
Environment={{$k}}={{$v}}
{{- end }}

[Install]
WantedBy=default.target
`

// Kind selects the service manager.
type Kind string

const (
	Launchd Kind = "launchd"
	Systemd Kind = "systemd"
)

// Native is the service manager of the running OS.
func Native() Kind {
	if runtime.GOOS == "darwin" {
		return Launchd
	}
	return Systemd
}

type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Path returns where the unit for kind lives under home.
func Path(kind Kind, home, label string) string {
	if kind == Launchd {
		return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
	}
	return filepath.Join(home, ".config", "systemd", "user", label+".service")
}

// Render produces the unit file text.
func Render(kind Kind, params Params) ([]byte, error) {
	text := systemdTemplate
	if kind == Launchd {
		text = launchdTemplate
	}
	tpl, err := template.New(string(kind)).Parse(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("render %s unit: %w", kind, err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit file and returns its path.
func Install(kind Kind, home string, params Params) (string, error) {
	data, err := Render(kind, params)
	if err != nil {
		return "", err
	}
	path := Path(kind, home, params.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Uninstall removes the unit file if present.
func Uninstall(kind Kind, home, label string) (string, error) {
	path := Path(kind, home, label)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return path, err
	}
	return path, nil
}

// Status returns the unit path and whether it exists.
func Status(kind Kind, home, label string) (string, bool) {
	path := Path(kind, home, label)
	_, err := os.Stat(path)
	return path, err == nil
}
