// Package inventory discovers the audio files a run will transcribe.
package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gpnscribe/internal/errs"

	"github.com/sirupsen/logrus"
)

// Source is one audio file found in the input directory.
type Source struct {
	Path string
	Name string
}

// Stem is the file name without its extension.
func (s Source) Stem() string {
	return strings.TrimSuffix(s.Name, filepath.Ext(s.Name))
}

// List returns the audio files in dir sorted by file name. Entries that
// cannot be read are logged and skipped.
func List(dir string, extensions []string, logger *logrus.Logger) ([]Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrNotFound, "input directory "+dir, err)
		}
		return nil, errs.Wrap(errs.ErrNotFound, "stat input directory", err)
	}
	if !info.IsDir() {
		return nil, errs.Config("input path %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNotFound, "read input directory", err)
	}

	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}

	sources := make([]Source, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() {
			continue
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(name))) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := readable(path); err != nil {
			logger.WithField("file", name).Warnf("skipping unreadable audio: %v", err)
			continue
		}
		sources = append(sources, Source{Path: path, Name: name})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

func readable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
