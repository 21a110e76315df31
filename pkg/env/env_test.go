package env

import "testing"

func TestFirstSkipsBlankValues(t *testing.T) {
	t.Setenv("HAULBID_TEST_A", "  ")
	t.Setenv("HAULBID_TEST_B", " b ")

	if got := First("z", "HAULBID_TEST_A", "HAULBID_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := Get("HAULBID_TEST_A", "fallback"); got != "fallback" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
}

func TestLogFormat(t *testing.T) {
	t.Setenv("HAULBID_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", "Console")
	if got := LogFormat(); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}

	t.Setenv("HAULBID_LOG_FORMAT", "pretty")
	if got := LogFormat(); got != "json" {
		t.Fatalf("unknown formats fall back to json, got %q", got)
	}
}
