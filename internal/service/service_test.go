package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderLaunchd(t *testing.T) {
	out, err := Render(Launchd, Params{
		Label:  Label,
		Binary: "/usr/local/bin/gpnscribe",
		Config: "/Users/me/.config/gpnscribe/config.toml",
		Log:    "/tmp/gpnscribe.log",
		Env:    map[string]string{"GPNSCRIBE_MAX_WORKERS": "4"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	text := string(out)
	for _, want := range []string{
		"<string>com.gpnscribe.watch</string>",
		"<string>watch</string>",
		"<key>GPNSCRIBE_MAX_WORKERS</key><string>4</string>",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("plist missing %q:\n%s", want, text)
		}
	}
}

func TestRenderSystemd(t *testing.T) {
	out, err := Render(Systemd, Params{Label: Label, Binary: "/usr/bin/gpnscribe", Config: "/etc/gpnscribe.toml", Env: map[string]string{"LOGLEVEL": "debug"}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "ExecStart=/usr/bin/gpnscribe watch --config /etc/gpnscribe.toml") {
		t.Fatalf("bad ExecStart:\n%s", text)
	}
	if !strings.Contains(text, "Environment=LOGLEVEL=debug") {
		t.Fatalf("env missing:\n%s", text)
	}
}

func TestInstallStatusUninstall(t *testing.T) {
	home := t.TempDir()
	for _, kind := range []Kind{Launchd, Systemd} {
		path, err := Install(kind, home, Params{Label: Label, Binary: "/bin/gpnscribe", Config: "c.toml"})
		if err != nil {
			t.Fatalf("%s install: %v", kind, err)
		}
		if got, ok := Status(kind, home, Label); !ok || got != path {
			t.Fatalf("%s status: %s %v", kind, got, ok)
		}
		if _, err := Uninstall(kind, home, Label); err != nil {
			t.Fatalf("%s uninstall: %v", kind, err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s unit still present", kind)
		}
		if _, err := Uninstall(kind, home, Label); err != nil {
			t.Fatalf("second uninstall should be a no-op: %v", err)
		}
	}
	if got := Path(Systemd, home, Label); got != filepath.Join(home, ".config", "systemd", "user", Label+".service") {
		t.Fatalf("systemd path=%s", got)
	}
}
