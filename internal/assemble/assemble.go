// Package assemble joins per-segment results into one transcript.
package assemble

import (
	"errors"
	"fmt"
	"strings"

	"gpnscribe/internal/segment"
)

// Collect orders results by segment index and joins their texts with a single
// space. Each text is whitespace-trimmed first, so the result is not a plain
// join of the engine output: " a " and "b\n" become "a b". Completion order
// does not matter. If any segment failed the lowest-index error is returned
// first, joined with the rest.
func Collect(results []segment.Result, n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("assemble: negative segment count %d", n)
	}
	slots := make([]*segment.Result, n)
	for i := range results {
		r := &results[i]
		if r.Index < 0 || r.Index >= n {
			return "", fmt.Errorf("assemble: segment index %d out of range [0,%d)", r.Index, n)
		}
		if slots[r.Index] != nil {
			return "", fmt.Errorf("assemble: duplicate result for segment %d", r.Index)
		}
		slots[r.Index] = r
	}

	var failures []error
	texts := make([]string, 0, n)
	for i, r := range slots {
		if r == nil {
			return "", fmt.Errorf("assemble: missing result for segment %d", i)
		}
		if r.Err != nil {
			failures = append(failures, r.Err)
			continue
		}
		texts = append(texts, strings.TrimSpace(r.Text))
	}
	if len(failures) > 0 {
		return "", errors.Join(failures...)
	}
	return strings.Join(texts, " "), nil
}
