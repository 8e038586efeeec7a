// Package git shells out to the git CLI with discrete argument lists (never a
// shell string), a minimal environment, bounded timeouts, and an output-size
// ceiling. It covers exactly the operations the generation pipeline needs:
// diff collection, untracked listing, head/branch inspection, staging,
// commit, and push.
package git

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"codexmsg/cli/internal/erruser"
)

const (
	// _commandTimeout bounds every git invocation that has no caller deadline.
	_commandTimeout = 30 * time.Second
	// _maxOutput caps how many output bytes are kept per invocation. Whatever
	// git writes past the ceiling is discarded, not buffered.
	_maxOutput = 4 << 20
)

// ErrNothingToCommit indicates commit found no staged changes. Callers treat
// this as a benign skip rather than a failure.
var ErrNothingToCommit = errors.New("nothing to commit")

// capWriter keeps at most limit bytes and silently drops the rest.
type capWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *capWriter) Write(p []byte) (int, error) {
	n := len(p)
	if room := w.limit - w.buf.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		w.buf.Write(p)
	}
	return n, nil
}

func (w *capWriter) String() string { return w.buf.String() }

// runGit executes git with the given args in dir and returns trimmed stdout.
// stderr is folded into the returned error. The invocation is bounded by
// _commandTimeout unless ctx carries an earlier deadline.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, _commandTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = minimalEnv()
	stdout := &capWriter{limit: _maxOutput}
	stderr := &capWriter{limit: 64 << 10}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", &CommandError{Args: args, Err: err, Output: detail}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CommandError reports a failed git invocation with a bounded output tail.
type CommandError struct {
	Args   []string
	Err    error
	Output string
}

func (e *CommandError) Error() string {
	msg := "git " + strings.Join(e.Args, " ") + ": " + e.Err.Error()
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// RepoRoot returns the absolute repository root containing dir.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", erruser.New("This directory is not inside a Git repository.", err)
	}
	return filepath.Abs(out)
}

// DiffHead returns the working-tree diff against HEAD. The unborn-branch
// fallback lives in the collector, not here.
func DiffHead(ctx context.Context, repoRoot string) (string, error) {
	return runGit(ctx, repoRoot, "diff", "--no-color", "--no-ext-diff", "HEAD")
}

// DiffIndex returns the working-tree diff with no prior reference (used when
// the repository has no commits yet).
func DiffIndex(ctx context.Context, repoRoot string) (string, error) {
	return runGit(ctx, repoRoot, "diff", "--no-color", "--no-ext-diff")
}

// UntrackedFiles lists files not tracked and not excluded by ignore rules,
// in git's own order.
func UntrackedFiles(ctx context.Context, repoRoot string) ([]string, error) {
	out, err := runGit(ctx, repoRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CurrentBranch returns the current branch name ("HEAD" when detached).
func CurrentBranch(ctx context.Context, repoRoot string) (string, error) {
	out, err := runGit(ctx, repoRoot, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", erruser.New("Could not read the current branch.", err)
	}
	return out, nil
}

// HeadHash returns the full SHA at HEAD.
func HeadHash(ctx context.Context, repoRoot string) (string, error) {
	out, err := runGit(ctx, repoRoot, "rev-parse", "HEAD")
	if err != nil {
		return "", erruser.New("Could not resolve HEAD.", err)
	}
	return out, nil
}

// HeadMessage returns the full commit message at HEAD.
func HeadMessage(ctx context.Context, repoRoot string) (string, error) {
	return runGit(ctx, repoRoot, "log", "-1", "--format=%B", "HEAD")
}

// MessageAt returns the full commit message of the given commit hash.
func MessageAt(ctx context.Context, repoRoot, hash string) (string, error) {
	return runGit(ctx, repoRoot, "log", "-1", "--format=%B", hash)
}

// StageAll stages every working-tree change, including deletions and
// untracked files.
func StageAll(ctx context.Context, repoRoot string) error {
	_, err := runGit(ctx, repoRoot, "add", "-A")
	if err != nil {
		return erruser.New("Could not stage changes.", err)
	}
	return nil
}

// Commit records a commit with exactly the given message. Returns
// ErrNothingToCommit when the index holds no changes.
func Commit(ctx context.Context, repoRoot, message string) error {
	_, err := runGit(ctx, repoRoot, "commit", "-m", message)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && isNothingToCommit(cmdErr.Output) {
			return ErrNothingToCommit
		}
		return erruser.New("Could not create the commit.", err)
	}
	return nil
}

// Push pushes HEAD to remote/branch without creating an upstream tracking
// relationship.
func Push(ctx context.Context, repoRoot, remote, branch string) error {
	_, err := runGit(ctx, repoRoot, "push", remote, "HEAD:"+branch)
	return err
}

// isNothingToCommit matches git's phrasing for an empty index across the
// locales we refuse to guess about: the env pins LC_ALL=C, so the English
// phrases are stable.
func isNothingToCommit(out string) bool {
	lc := strings.ToLower(out)
	return strings.Contains(lc, "nothing to commit") ||
		strings.Contains(lc, "nothing added to commit") ||
		strings.Contains(lc, "no changes added to commit")
}

func minimalEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_PAGER=cat",
		"LC_ALL=C",
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	} else if runtime.GOOS == "windows" {
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			env = append(env, "HOME="+profile)
		}
	}
	return env
}
