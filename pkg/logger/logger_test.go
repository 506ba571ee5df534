package logger

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	record := slog.NewRecord(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), slog.LevelInfo, "collecting", 0)
	record.AddAttrs(slog.String("provider", "poi"), slog.Int("specs", 4))

	plain := formatRecord(record, false, false)
	if plain != "INFO collecting provider=poi specs=4\n" {
		t.Errorf("simple format = %q", plain)
	}

	verbose := formatRecord(record, false, true)
	if verbose != "2026/03/01 09:30:00 INFO collecting provider=poi specs=4\n" {
		t.Errorf("verbose format = %q", verbose)
	}

	colored := formatRecord(record, true, false)
	if colored == plain {
		t.Errorf("colored format should differ from plain")
	}
}

func TestWarningNormalisedToWarn(t *testing.T) {
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "careful", 0)
	if got := levelString(record); got != "WARN" {
		t.Errorf("levelString = %q, want WARN", got)
	}
}
