package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gpnscribe/internal/errs"
)

func TestPathFor(t *testing.T) {
	cases := map[string]string{
		"a.mp3":          "a.txt",
		"talk.final.wav": "talk.final.txt",
		"noext":          "noext.txt",
		"/abs/b.flac":    "b.txt",
	}
	for name, want := range cases {
		if got := PathFor("/out", name); got != filepath.Join("/out", want) {
			t.Fatalf("PathFor(%q)=%s", name, got)
		}
	}
}

func TestDecide(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(existing, []byte("done"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Decide(existing, false); got != Skip {
		t.Fatalf("existing transcript: %s", got)
	}
	if got := Decide(existing, true); got != Proceed {
		t.Fatalf("overwrite: %s", got)
	}
	if got := Decide(filepath.Join(dir, "b.txt"), false); got != Proceed {
		t.Fatalf("missing transcript: %s", got)
	}
}

func TestWriteReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Write(path, "hello world"); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello world" {
		t.Fatalf("content=%q err=%v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteEmptyTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.txt")
	if err := Write(path, ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != 0 {
		t.Fatalf("expected empty file: %v %v", info, err)
	}
}

func TestWriteRetriesRenameOnce(t *testing.T) {
	calls := 0
	renameFile = func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return os.Rename(oldpath, newpath)
	}
	t.Cleanup(func() { renameFile = os.Rename })

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := Write(path, "text"); err != nil {
		t.Fatalf("write after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("rename calls=%d", calls)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("first attempt left its temp file: %v", entries)
	}
}

func TestWriteRetriesFailedCreate(t *testing.T) {
	calls := 0
	createTemp = func(dir, pattern string) (*os.File, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("too many open files")
		}
		return os.CreateTemp(dir, pattern)
	}
	t.Cleanup(func() { createTemp = os.CreateTemp })

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := Write(path, "text"); err != nil {
		t.Fatalf("write after retry: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "text" || calls != 2 {
		t.Fatalf("content=%q err=%v create calls=%d", data, err, calls)
	}
}

func TestWriteRetriesFailedWrite(t *testing.T) {
	calls := 0
	createTemp = func(dir, pattern string) (*os.File, error) {
		calls++
		f, err := os.CreateTemp(dir, pattern)
		if err != nil || calls > 1 {
			return f, err
		}
		// A read-only handle makes the first WriteString fail.
		name := f.Name()
		_ = f.Close()
		return os.Open(name)
	}
	t.Cleanup(func() { createTemp = os.CreateTemp })

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := Write(path, "second try"); err != nil {
		t.Fatalf("write after retry: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "second try" {
		t.Fatalf("content=%q err=%v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || calls != 2 {
		t.Fatalf("entries=%v create calls=%d", entries, calls)
	}
}

func TestWriteFailsAfterSecondAttempt(t *testing.T) {
	calls := 0
	renameFile = func(string, string) error {
		calls++
		return errors.New("disk gone")
	}
	t.Cleanup(func() { renameFile = os.Rename })

	dir := t.TempDir()
	err := Write(filepath.Join(dir, "a.txt"), "text")
	if !errors.Is(err, errs.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 || calls != 2 {
		t.Fatalf("partial output left: %v rename calls=%d", entries, calls)
	}
}

func TestWriteMissingDirectory(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "gone", "a.txt"), "text")
	if !errors.Is(err, errs.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}
