package config

import (
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("ATELIER_TEST_STR", "  value  ")
	if got := EnvOr("ATELIER_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("got %q", got)
	}
	if got := EnvOr("ATELIER_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
	t.Setenv("ATELIER_TEST_BLANK", "   ")
	if got := EnvOr("ATELIER_TEST_BLANK", "fallback"); got != "fallback" {
		t.Fatalf("blank must fall back, got %q", got)
	}
}

func TestEnvOrInt(t *testing.T) {
	t.Setenv("ATELIER_TEST_INT", "42")
	if got := EnvOrInt("ATELIER_TEST_INT", 7); got != 42 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("ATELIER_TEST_BAD_INT", "forty")
	if got := EnvOrInt("ATELIER_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("bad int must fall back, got %d", got)
	}
	if got := EnvOrInt("ATELIER_TEST_MISSING", 7); got != 7 {
		t.Fatalf("got %d", got)
	}
}

func TestEnvOrBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "On": true,
		"0": false, "false": false, "no": false, "off": false,
	}
	for value, want := range cases {
		t.Setenv("ATELIER_TEST_BOOL", value)
		if got := EnvOrBool("ATELIER_TEST_BOOL", !want); got != want {
			t.Fatalf("%q: got %v, want %v", value, got, want)
		}
	}
	t.Setenv("ATELIER_TEST_BOOL", "maybe")
	if got := EnvOrBool("ATELIER_TEST_BOOL", true); got != true {
		t.Fatalf("unparseable must fall back")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("ATELIER_API_BASE", "")
	t.Setenv("ATELIER_WS_BASE", "")
	t.Setenv("ATELIER_HTTP_TIMEOUT", "")
	t.Setenv("ATELIER_POLL_INTERVAL", "")
	t.Setenv("ATELIER_DEBUG", "")

	cfg := Load()
	if cfg.APIBase != "http://127.0.0.1:8000/api" {
		t.Fatalf("unexpected default api base %q", cfg.APIBase)
	}
	if cfg.WSBase != "" {
		t.Fatalf("ws base should default to empty (derived later), got %q", cfg.WSBase)
	}
	if cfg.HTTPTimeout != 60*time.Second || cfg.PollInterval != 5*time.Second {
		t.Fatalf("unexpected default durations %v / %v", cfg.HTTPTimeout, cfg.PollInterval)
	}
	if cfg.Debug {
		t.Fatalf("debug should default off")
	}

	t.Setenv("ATELIER_API_BASE", "https://api.example/api")
	t.Setenv("ATELIER_HTTP_TIMEOUT", "10")
	t.Setenv("ATELIER_DEBUG", "true")
	cfg = Load()
	if cfg.APIBase != "https://api.example/api" {
		t.Fatalf("override lost, got %q", cfg.APIBase)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Fatalf("timeout override lost, got %v", cfg.HTTPTimeout)
	}
	if !cfg.Debug {
		t.Fatalf("debug override lost")
	}
}
