// Package scratch owns the temporary directory holding per-segment clips.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gpnscribe/internal/errs"

	"github.com/rs/xid"
)

// NewRunID returns a sortable, globally unique run identifier.
func NewRunID() string {
	return xid.New().String()
}

// Dir is a scratch directory scoped to one task of one run.
type Dir struct {
	path  string
	runID string
	once  sync.Once
	err   error
}

// Acquire creates a fresh scratch directory under root for runID.
func Acquire(root, runID string) (*Dir, error) {
	if runID == "" {
		return nil, errs.Config("scratch directory needs a run id")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create scratch root", err)
	}
	path, err := os.MkdirTemp(root, "gpnscribe-"+runID+"-")
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create scratch directory", err)
	}
	return &Dir{path: path, runID: runID}, nil
}

// Path is the directory itself.
func (d *Dir) Path() string { return d.path }

// SegmentPath names the clip file for a segment index.
func (d *Dir) SegmentPath(index int, format string) string {
	return filepath.Join(d.path, fmt.Sprintf("%s-seg%05d.%s", d.runID, index, format))
}

// Release removes the directory tree. Later calls return the first result.
func (d *Dir) Release() error {
	d.once.Do(func() {
		if err := os.RemoveAll(d.path); err != nil {
			d.err = errs.Wrap(errs.ErrIO, "release scratch directory", err)
		}
	})
	return d.err
}
