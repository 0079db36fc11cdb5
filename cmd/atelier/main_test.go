package main

import (
	"strings"
	"testing"
)

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	want := "one two\nthree\nfour"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if wrapText("short", 0) != "short" {
		t.Fatalf("zero width must pass through")
	}
	if got := wrapText("a\n\nb", 10); got != "a\n\nb" {
		t.Fatalf("blank lines must survive, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello world", 8); got != "hello..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("hi", 8); got != "hi" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("hello", 2); got != "he" {
		t.Fatalf("tiny limits skip the ellipsis, got %q", got)
	}
	if got := truncate("hello", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestCompactSingleLine(t *testing.T) {
	got := compactSingleLine("  spread \n over\t lines  ", 80)
	if got != "spread over lines" {
		t.Fatalf("got %q", got)
	}
}

func TestCompactTimelineMessage(t *testing.T) {
	long := strings.Repeat("line\n", 20)
	got := compactTimelineMessage(long, 5, 1000)
	if !strings.Contains(got, "[... 15 lines hidden]") {
		t.Fatalf("expected hidden-lines marker, got %q", got)
	}
	if lines := strings.Count(got, "\n") + 1; lines != 6 {
		t.Fatalf("expected 6 lines, got %d", lines)
	}

	huge := strings.Repeat("x", 200)
	got = compactTimelineMessage(huge, 0, 100)
	if !strings.HasSuffix(got, "[... truncated]") {
		t.Fatalf("expected truncation marker, got %q", got)
	}

	if compactTimelineMessage("  \r\n  ", 5, 100) != "" {
		t.Fatalf("whitespace collapses to empty")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("got %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestShortTime(t *testing.T) {
	if got := shortTime("not a time"); got != "--:--:--" {
		t.Fatalf("got %q", got)
	}
	got := shortTime("2025-03-01T10:30:05Z")
	if len(got) != 8 || strings.Count(got, ":") != 2 {
		t.Fatalf("expected HH:MM:SS, got %q", got)
	}
}

func TestClampInt(t *testing.T) {
	if clampInt(5, 1, 10) != 5 || clampInt(-3, 1, 10) != 1 || clampInt(99, 1, 10) != 10 {
		t.Fatalf("clamp broken")
	}
}

func TestMaxInt(t *testing.T) {
	if maxInt(3, 7) != 7 || maxInt(7, 3) != 7 {
		t.Fatalf("maxInt broken")
	}
}
