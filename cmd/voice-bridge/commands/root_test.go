package commands

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	verbose = false

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}
	return
}

func TestVersion(t *testing.T) {
	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "voice-bridge") {
		t.Fatalf("expected 'voice-bridge', got: %s", stdout)
	}
}

func TestChatRequiresCode(t *testing.T) {
	_, stderr, code := runCmd(t, "chat")
	if code == 0 {
		t.Fatal("expected non-zero exit without a code argument")
	}
	if !strings.Contains(stderr, "arg") {
		t.Fatalf("expected argument error, got: %s", stderr)
	}
}
