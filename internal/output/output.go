// Package output maps sources to transcript paths, decides whether a source
// needs work, and writes transcripts atomically.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gpnscribe/internal/errs"
)

// Decision is the idempotence verdict for one source.
type Decision int

const (
	Proceed Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "proceed"
}

var (
	createTemp = os.CreateTemp
	renameFile = os.Rename
)

// PathFor returns the transcript path for a source file name: the name with
// its last extension replaced by .txt, inside outputDir.
func PathFor(outputDir, name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+".txt")
}

// Decide skips a source whose transcript already exists unless overwrite is
// set. Any non-regular entry at path counts as existing.
func Decide(path string, overwrite bool) Decision {
	if overwrite {
		return Proceed
	}
	if _, err := os.Lstat(path); err == nil {
		return Skip
	}
	return Proceed
}

// Write stores text at path. Readers never see a partial file: the text goes
// to a temp file in the same directory which is then renamed over path. A
// failed attempt removes its temp file and the whole sequence is retried once.
func Write(path, text string) error {
	err := writeOnce(path, text)
	if err == nil {
		return nil
	}
	retryErr := writeOnce(path, text)
	if retryErr == nil {
		return nil
	}
	return errs.Wrap(errs.ErrIO, "write transcript "+path, errors.Join(err, retryErr))
}

func writeOnce(path, text string) (err error) {
	tmp, err := createTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp transcript: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := renameFile(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
