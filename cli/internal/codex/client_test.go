package codex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// fakeCodex writes an executable shell script standing in for the codex CLI
// and returns its path.
func fakeCodex(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables are shell scripts")
	}
	path := filepath.Join(t.TempDir(), "codex")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func generate(t *testing.T, command string, timeout time.Duration) (string, error) {
	t.Helper()
	return Generate(context.Background(), Options{
		Candidates: []string{command},
		Model:      "gpt-5-codex",
		Effort:     "low",
		Prompt:     "prompt text",
		Dir:        t.TempDir(),
		Timeout:    timeout,
	})
}

func TestGenerate_success(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo '{"type":"item.started","item":{"type":"reasoning"}}'
echo '{"type":"item.completed","item":{"type":"agent_message","text":"差分を整理しファイル構成を更新"}}'
`)
	got, err := generate(t, cmd, 5*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "差分を整理しファイル構成を更新" {
		t.Errorf("got %q", got)
	}
}

func TestGenerate_lastEventWins(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo '{"type":"item.completed","item":{"type":"agent_message","text":"intermediate"}}'
echo '{"type":"item.completed","item":{"type":"agent_message","text":"final answer"}}'
`)
	got, err := generate(t, cmd, 5*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "final answer" {
		t.Errorf("got %q, want the last message", got)
	}
}

func TestGenerate_malformedLinesSkipped(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo 'not json at all'
echo '{"broken'
echo '{"type":"item.completed","item":{"type":"agent_message","text":"ok"}}'
`)
	got, err := generate(t, cmd, 5*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q", got)
	}
}

func TestGenerate_unterminatedFinalLineFlushed(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
printf '%s' '{"type":"item.completed","item":{"type":"agent_message","text":"no trailing newline"}}'
`)
	got, err := generate(t, cmd, 5*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "no trailing newline" {
		t.Errorf("got %q", got)
	}
}

func TestGenerate_modelAccessBeatsProcessFailed(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo 'You have requested a model but do not have access to it.' >&2
exit 1
`)
	_, err := generate(t, cmd, 5*time.Second)
	if !IsKind(err, KindModelAccess) {
		t.Errorf("err = %v, want kind model-access", err)
	}
}

func TestGenerate_processFailedCarriesTail(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo 'unexpected explosion' >&2
exit 3
`)
	_, err := generate(t, cmd, 5*time.Second)
	if !IsKind(err, KindProcessFailed) {
		t.Fatalf("err = %v, want kind process-failed", err)
	}
	var cliErr *CliError
	errors.As(err, &cliErr)
	if cliErr.Detail == "" {
		t.Error("expected an output tail in Detail")
	}
}

func TestGenerate_parseFailedOnCleanExitWithoutEvent(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo '{"type":"turn.completed"}'
exit 0
`)
	_, err := generate(t, cmd, 5*time.Second)
	if !IsKind(err, KindParseFailed) {
		t.Errorf("err = %v, want kind parse-failed", err)
	}
}

func TestGenerate_emptyResponse(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo '{"type":"item.completed","item":{"type":"agent_message","text":"  \"\"  "}}'
`)
	_, err := generate(t, cmd, 5*time.Second)
	if !IsKind(err, KindEmptyResponse) {
		t.Errorf("err = %v, want kind empty-response", err)
	}
}

func TestGenerate_timeoutDespiteBufferedOutput(t *testing.T) {
	t.Parallel()
	cmd := fakeCodex(t, `
echo '{"type":"item.completed","item":{"type":"agent_message","text":"partial"}}'
sleep 10
`)
	start := time.Now()
	_, err := generate(t, cmd, 200*time.Millisecond)
	if !IsKind(err, KindTimeout) {
		t.Errorf("err = %v, want kind timeout", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("process was not killed promptly")
	}
}

func TestGenerate_notFoundFallsThroughCandidates(t *testing.T) {
	t.Parallel()
	good := fakeCodex(t, `
echo '{"type":"item.completed","item":{"type":"agent_message","text":"from fallback"}}'
`)
	missing := filepath.Join(t.TempDir(), "no-such-codex")
	got, err := Generate(context.Background(), Options{
		Candidates: []string{missing, good},
		Model:      "gpt-5-codex",
		Effort:     "low",
		Prompt:     "p",
		Dir:        t.TempDir(),
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "from fallback" {
		t.Errorf("got %q", got)
	}
}

func TestGenerate_allCandidatesMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := filepath.Join(dir, "first-missing")
	_, err := Generate(context.Background(), Options{
		Candidates: []string{first, filepath.Join(dir, "second-missing")},
		Model:      "gpt-5-codex",
		Effort:     "low",
		Prompt:     "p",
		Dir:        dir,
		Timeout:    time.Second,
	})
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want kind not-found", err)
	}
	var cliErr *CliError
	errors.As(err, &cliErr)
	if !strings.Contains(cliErr.Msg, first) {
		t.Errorf("Msg = %q, want the first candidate %q surfaced", cliErr.Msg, first)
	}
}

func TestGenerate_otherErrorAbortsCandidateList(t *testing.T) {
	t.Parallel()
	failing := fakeCodex(t, "exit 1\n")
	good := fakeCodex(t, `
echo '{"type":"item.completed","item":{"type":"agent_message","text":"never reached"}}'
`)
	_, err := Generate(context.Background(), Options{
		Candidates: []string{failing, good},
		Model:      "gpt-5-codex",
		Effort:     "low",
		Prompt:     "p",
		Dir:        t.TempDir(),
		Timeout:    5 * time.Second,
	})
	if !IsKind(err, KindProcessFailed) {
		t.Errorf("err = %v, want kind process-failed without trying further candidates", err)
	}
}
