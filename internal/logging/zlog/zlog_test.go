package zlog

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/flowmesh/reactor/internal/logging"
)

func TestLogger_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	z := zerolog.New(&buf)

	l := New(z, logging.LevelInfo)
	l.Log(logging.Entry{
		Level:     logging.LevelInfo,
		Component: "loopexec",
		Message:   "tick completed",
		Fields:    map[string]any{"tasks": 3},
	})

	out := buf.String()
	if !strings.Contains(out, `"message":"tick completed"`) {
		t.Fatalf("expected message field in output, got %q", out)
	}
	if !strings.Contains(out, `"component":"loopexec"`) {
		t.Fatalf("expected component field in output, got %q", out)
	}
	if !strings.Contains(out, `"tasks":3`) {
		t.Fatalf("expected tasks field in output, got %q", out)
	}
}

func TestLogger_FiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	z := zerolog.New(&buf)

	l := New(z, logging.LevelWarn)
	if l.Enabled(logging.LevelDebug) {
		t.Fatalf("LevelDebug must not be enabled at LevelWarn threshold")
	}

	l.Log(logging.Entry{Level: logging.LevelDebug, Message: "should be dropped"})
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written for a filtered entry, got %q", buf.String())
	}
}

func TestLogger_IncludesError(t *testing.T) {
	var buf bytes.Buffer
	z := zerolog.New(&buf)

	l := New(z, logging.LevelError)
	l.Log(logging.Entry{Level: logging.LevelError, Message: "fd registration failed", Err: errors.New("boom")})

	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected error text in output, got %q", buf.String())
	}
}
