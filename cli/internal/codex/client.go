// Package codex invokes the Codex CLI to generate a one-line commit message.
// The tool is spawned with a discrete argument list (no shell), its
// newline-delimited JSON output is parsed incrementally, and the whole
// attempt runs under a timeout with the subprocess killed on expiry.
// Failures come back as *CliError with a fixed kind taxonomy.
package codex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"codexmsg/cli/internal/diag"
)

const (
	// _stderrTailLimit bounds how much process output is kept for diagnostics.
	_stderrTailLimit = 8 << 10
	// _readBufSize is the stdout read chunk size.
	_readBufSize = 4096
)

// accessDenialPhrases mark a non-zero exit as a model-access rejection
// rather than a generic process failure.
var accessDenialPhrases = []string{
	"do not have access to it",
	"model not found",
	"not available to your account",
}

// Options configures one generation attempt.
type Options struct {
	// Candidates are the executable paths to try in order. The client
	// advances only when a candidate is not found; any other failure aborts.
	Candidates []string
	// Model is passed via -m.
	Model string
	// Effort is the reasoning-effort tier passed as a config override.
	Effort string
	// Prompt is the complete instruction text, passed as the final positional
	// argument.
	Prompt string
	// Dir is the working directory for the subprocess (the repo root).
	Dir string
	// Timeout bounds the whole attempt per candidate.
	Timeout time.Duration
	// Log receives command lines (prompt elided) and output tails.
	Log *diag.Logger
}

// event mirrors the one JSONL shape the client cares about. Every other
// event type is ignored, which keeps the protocol forward-compatible.
type event struct {
	Type string `json:"type"`
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// Generate runs the codex CLI and returns the normalized one-line message.
// Candidates are tried in order; only a not-found failure falls through to
// the next one, and the first such error is surfaced when all candidates are
// missing.
func Generate(ctx context.Context, opts Options) (string, error) {
	if len(opts.Candidates) == 0 {
		return "", &CliError{Kind: KindNotFound, Msg: "Codex CLI not configured."}
	}
	var firstNotFound *CliError
	for _, cand := range opts.Candidates {
		msg, err := runOnce(ctx, cand, opts)
		if err == nil {
			return msg, nil
		}
		var cliErr *CliError
		if errors.As(err, &cliErr) && cliErr.Kind == KindNotFound {
			if firstNotFound == nil {
				firstNotFound = cliErr
			}
			continue
		}
		return "", err
	}
	return "", firstNotFound
}

// runOnce spawns one candidate and classifies the outcome.
func runOnce(ctx context.Context, command string, opts Options) (string, error) {
	args := []string{
		"exec",
		"--json",
		"-m", opts.Model,
		"-c", fmt.Sprintf("model_reasoning_effort=%q", opts.Effort),
		opts.Prompt,
	}
	opts.Log.Printf("codex: running %s exec --json -m %s -c model_reasoning_effort=%q <prompt elided>",
		command, opts.Model, opts.Effort)

	cmd := exec.Command(command, args...)
	cmd.Dir = opts.Dir
	var stderr tailBuffer
	stderr.limit = _stderrTailLimit
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &CliError{Kind: KindProcessFailed, Msg: "Could not start the Codex CLI.", Err: err}
	}

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return "", &CliError{
				Kind: KindNotFound,
				Msg:  fmt.Sprintf("Codex CLI not found at %q.", command),
				Err:  err,
			}
		}
		return "", &CliError{Kind: KindProcessFailed, Msg: "Could not start the Codex CLI.", Err: err}
	}

	// Reader goroutine: split stdout into lines, keep only the last completed
	// agent message. Earlier messages are overwritten; the tool emits
	// reasoning and status events before the final answer.
	var (
		lastText string
		seen     bool
	)
	var stdoutTail tailBuffer
	stdoutTail.limit = _stderrTailLimit
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		var split lineSplitter
		buf := make([]byte, _readBufSize)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				stdoutTail.Write(buf[:n])
				for _, line := range split.Feed(buf[:n]) {
					if text, ok := parseAgentMessage(line); ok {
						lastText, seen = text, true
					}
				}
			}
			if readErr != nil {
				if rest, ok := split.Flush(); ok {
					if text, ok := parseAgentMessage(rest); ok {
						lastText, seen = text, true
					}
				}
				return
			}
		}
	}()

	// Race the process exit against the timeout and the caller's context.
	// The select settles exactly once; the timer is stopped on every path.
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		timedOut = true
		_ = cmd.Process.Kill()
		waitErr = <-waitCh
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		waitErr = <-waitCh
		<-readDone
		return "", &CliError{Kind: KindTimeout, Msg: "Commit message generation was canceled.", Err: ctx.Err()}
	}
	<-readDone

	combined := strings.TrimSpace(stderr.String() + "\n" + stdoutTail.String())
	opts.Log.Printf("codex: finished (err=%v); output tail:\n%s", waitErr, tailOf(combined, 2048))

	if timedOut {
		return "", &CliError{
			Kind:   KindTimeout,
			Msg:    fmt.Sprintf("Codex CLI timed out after %s.", timeout),
			Detail: tailOf(combined, 2048),
		}
	}
	if waitErr != nil {
		if containsAccessDenial(combined) {
			return "", &CliError{
				Kind:   KindModelAccess,
				Msg:    fmt.Sprintf("Your account does not have access to model %q.", opts.Model),
				Detail: tailOf(combined, 2048),
				Err:    waitErr,
			}
		}
		return "", &CliError{
			Kind:   KindProcessFailed,
			Msg:    "Codex CLI exited with an error.",
			Detail: tailOf(combined, 2048),
			Err:    waitErr,
		}
	}
	if !seen {
		return "", &CliError{
			Kind:   KindParseFailed,
			Msg:    "Codex CLI produced no message.",
			Detail: tailOf(stdoutTail.String(), 2048),
		}
	}
	msg := Normalize(lastText)
	if msg == "" {
		return "", &CliError{Kind: KindEmptyResponse, Msg: "Codex CLI returned an empty message."}
	}
	return msg, nil
}

// parseAgentMessage reports whether line is a completed agent-message event
// and returns its text. Malformed JSON is skipped silently.
func parseAgentMessage(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return "", false
	}
	var ev event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return "", false
	}
	if ev.Type != "item.completed" || ev.Item.Type != "agent_message" {
		return "", false
	}
	return ev.Item.Text, true
}

// Normalize reduces raw model output to the final one-line message: first
// non-blank line, trimmed, with one layer of surrounding quote characters
// stripped.
func Normalize(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return stripQuotes(line)
	}
	return ""
}

// quotePairs are the surrounding quote styles stripped once from a message.
var quotePairs = [][2]string{
	{`"`, `"`},
	{"'", "'"},
	{"`", "`"},
	{"“", "”"},
	{"「", "」"},
	{"『", "』"},
}

func stripQuotes(s string) string {
	for _, pair := range quotePairs {
		if len(s) >= len(pair[0])+len(pair[1]) &&
			strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
		}
	}
	return s
}

func containsAccessDenial(out string) bool {
	lc := strings.ToLower(out)
	for _, phrase := range accessDenialPhrases {
		if strings.Contains(lc, phrase) {
			return true
		}
	}
	return false
}

// isNotFound matches "executable missing or not invocable" spawn failures.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if b.limit > 0 && len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.data) }

// tailOf returns the last n bytes of s.
func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
