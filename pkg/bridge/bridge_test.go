package bridge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeStub writes an executable shell script acting as the agent CLI.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "agent-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_CapturesResponse(t *testing.T) {
	stub := writeStub(t, `echo "the answer is 42"`)
	e := New(Config{Command: stub, Logger: quiet()})

	got, err := e.Run(context.Background(), "session-1", "what is the answer?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "the answer is 42" {
		t.Errorf("response = %q; want %q", got, "the answer is 42")
	}
}

func TestRun_PassesSessionAndText(t *testing.T) {
	stub := writeStub(t, `echo "$@"`)
	e := New(Config{Command: stub, Agent: "helper", Logger: quiet()})

	got, err := e.Run(context.Background(), "session-7", "hello world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"agent", "--session-id session-7", "-m hello world", "--agent helper"} {
		if !strings.Contains(got, want) {
			t.Errorf("argv %q missing %q", got, want)
		}
	}
}

func TestRun_EchoFallbackWhenMissing(t *testing.T) {
	e := New(Config{Command: "definitely-not-an-installed-binary", Logger: quiet()})

	got, err := e.Run(context.Background(), "session-1", "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "[echo] hello" {
		t.Errorf("response = %q; want %q", got, "[echo] hello")
	}
}

func TestRun_SurfacesStderr(t *testing.T) {
	stub := writeStub(t, `echo "model overloaded" >&2; exit 1`)
	e := New(Config{Command: stub, Logger: quiet()})

	_, err := e.Run(context.Background(), "session-1", "hello")
	if err == nil {
		t.Fatal("Run succeeded; want error")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	stub := writeStub(t, `sleep 5`)
	e := New(Config{Command: stub, Timeout: 50 * time.Millisecond, Logger: quiet()})

	start := time.Now()
	_, err := e.Run(context.Background(), "session-1", "hello")
	if err == nil {
		t.Fatal("Run succeeded; want timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run took %v; timeout did not bound the turn", elapsed)
	}
}
