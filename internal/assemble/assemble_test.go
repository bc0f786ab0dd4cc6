package assemble

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"gpnscribe/internal/errs"
	"gpnscribe/internal/segment"
)

func TestCollectJoinsInIndexOrder(t *testing.T) {
	results := []segment.Result{
		{Index: 2, Text: "three"},
		{Index: 0, Text: "  one \n"},
		{Index: 1, Text: "two"},
	}
	got, err := Collect(results, 3)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "one two three" {
		t.Fatalf("transcript=%q", got)
	}
}

func TestCollectIgnoresCompletionOrder(t *testing.T) {
	const n = 40
	base := make([]segment.Result, n)
	words := make([]string, n)
	for i := range base {
		words[i] = strings.Repeat("w", i%5+1)
		base[i] = segment.Result{Index: i, Text: words[i]}
	}
	want := strings.Join(words, " ")
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 25; trial++ {
		shuffled := append([]segment.Result(nil), base...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := Collect(shuffled, n)
		if err != nil || got != want {
			t.Fatalf("trial %d: got %q err %v", trial, got, err)
		}
	}
}

func TestCollectKeepsEmptySegments(t *testing.T) {
	got, err := Collect([]segment.Result{{Index: 0, Text: "a"}, {Index: 1, Text: "  "}, {Index: 2, Text: "b"}}, 3)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "a  b" {
		t.Fatalf("transcript=%q", got)
	}
}

func TestCollectZeroSegments(t *testing.T) {
	got, err := Collect(nil, 0)
	if err != nil || got != "" {
		t.Fatalf("got %q err %v", got, err)
	}
}

func TestCollectReportsLowestFailureFirst(t *testing.T) {
	results := []segment.Result{
		{Index: 3, Err: errs.New(errs.ErrEngine, "segment 3")},
		{Index: 0, Text: "ok"},
		{Index: 1, Err: errs.New(errs.ErrDecode, "segment 1")},
		{Index: 2, Text: "ok"},
	}
	_, err := Collect(results, 4)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if !strings.HasPrefix(err.Error(), "decode error: segment 1") {
		t.Fatalf("lowest index not first: %v", err)
	}
	if !errors.Is(err, errs.ErrEngine) || !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("all failures should be kept: %v", err)
	}
}

func TestCollectRejectsBadSlots(t *testing.T) {
	cases := []struct {
		name    string
		results []segment.Result
	}{
		{"missing", []segment.Result{{Index: 0}}},
		{"duplicate", []segment.Result{{Index: 0}, {Index: 0}}},
		{"out of range", []segment.Result{{Index: 0}, {Index: 2}}},
		{"negative", []segment.Result{{Index: -1}, {Index: 0}}},
	}
	for _, c := range cases {
		if _, err := Collect(c.results, 2); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}
