// Package run implements the generate and watch flows: diff collection,
// prompt construction, codex invocation, pending-state bookkeeping, and the
// push gate. Used by the CLI and by tests.
//
// A Coordinator owns one pending registry and one gate; callers must not
// share a Coordinator across repositories with conflicting configs.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"codexmsg/cli/internal/codex"
	"codexmsg/cli/internal/collect"
	"codexmsg/cli/internal/config"
	"codexmsg/cli/internal/diag"
	"codexmsg/cli/internal/gate"
	"codexmsg/cli/internal/git"
	"codexmsg/cli/internal/history"
	"codexmsg/cli/internal/pending"
	"codexmsg/cli/internal/prompt"
	"codexmsg/cli/internal/watch"
)

// ErrNoChanges indicates the working tree had nothing to describe. The CLI
// treats it as a benign stop, not a failure.
var ErrNoChanges = errors.New("no changes to describe")

// Coordinator wires the pipeline stages together around one registry and
// one gate.
type Coordinator struct {
	Config   *config.Config
	Registry *pending.Registry
	Gate     *gate.Gate
	Notify   *diag.Notifier
	Log      *diag.Logger
	// Out receives the generated message, one line. Typically stdout.
	Out io.Writer
	// Getenv is used for executable resolution; nil means os.Getenv.
	Getenv func(string) string
}

// New returns a Coordinator for cfg. The gate shares the coordinator's
// registry and resolves per-repo state dirs through the config.
func New(cfg *config.Config, out io.Writer, notify *diag.Notifier, log *diag.Logger) *Coordinator {
	reg := pending.NewRegistry()
	g := gate.New(gate.CLIGit{}, reg, cfg.PushRemote, cfg.PushBranch, notify, log)
	g.StateDirFor = cfg.EffectiveStateDir
	return &Coordinator{
		Config:   cfg,
		Registry: reg,
		Gate:     g,
		Notify:   notify,
		Log:      log,
		Out:      out,
	}
}

func (c *Coordinator) getenv(key string) string {
	if c.Getenv != nil {
		return c.Getenv(key)
	}
	return os.Getenv(key)
}

// Generate runs one generation for the repository containing dir: collect
// the diff, build the prompt, call codex, print and record the message, and
// register it as pending. With auto-commit enabled it also stages, commits,
// and runs the gate synchronously. Returns the normalized message.
func (c *Coordinator) Generate(ctx context.Context, dir string) (string, error) {
	repoRoot, err := git.RepoRoot(ctx, dir)
	if err != nil {
		return "", err
	}
	stateDir := c.Config.EffectiveStateDir(repoRoot)

	res, err := collect.Collect(ctx, repoRoot, c.Config.IncludeUntracked, c.Config.DiffMaxChars, c.Log)
	if err != nil {
		return "", err
	}
	if res.DiffText == "" {
		c.clearPending(repoRoot, stateDir)
		return "", ErrNoChanges
	}
	if res.Truncated {
		c.Log.Printf("generate: diff truncated to %d chars", c.Config.DiffMaxChars)
	}

	candidates := codex.Resolver{Getenv: c.getenv, GOOS: runtime.GOOS}.Candidates(c.Config.CommandPath)
	c.Notify.Infof("Generating commit message (%s, %s effort)...", c.Config.Model, c.Config.ReasoningEffort)

	start := time.Now()
	msg, genErr := codex.Generate(ctx, codex.Options{
		Candidates: candidates,
		Model:      c.Config.Model,
		Effort:     c.Config.ReasoningEffort,
		Prompt:     prompt.Build(res.DiffText),
		Dir:        repoRoot,
		Timeout:    c.Config.Timeout,
		Log:        c.Log,
	})
	c.record(stateDir, msg, genErr, time.Since(start))
	if genErr != nil {
		return "", genErr
	}

	fmt.Fprintln(c.Out, msg)

	entry := pending.Entry{Message: msg, CreatedAt: time.Now().UTC()}
	c.Registry.Set(repoRoot, entry)
	if err := pending.Save(stateDir, entry); err != nil {
		c.Notify.Warnf("could not persist the pending message: %v", err)
	}

	if c.Config.AutoCommit {
		if err := c.autoCommit(ctx, repoRoot, stateDir, msg); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// autoCommit stages everything, commits with the generated message, and runs
// the gate. A commit with nothing to record clears the pending entry and is
// not an error.
func (c *Coordinator) autoCommit(ctx context.Context, repoRoot, stateDir, msg string) error {
	if err := git.StageAll(ctx, repoRoot); err != nil {
		return err
	}
	if err := git.Commit(ctx, repoRoot, msg); err != nil {
		if errors.Is(err, git.ErrNothingToCommit) {
			c.clearPending(repoRoot, stateDir)
			c.Notify.Infof("Nothing to commit; pending message cleared.")
			return nil
		}
		return err
	}
	c.Gate.OnCommit(ctx, repoRoot, "")
	return nil
}

// Watch holds an exclusive per-repo lock and evaluates the gate on every
// commit event until ctx is cancelled.
func (c *Coordinator) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	repoRoot, err := git.RepoRoot(ctx, dir)
	if err != nil {
		return err
	}
	stateDir := c.Config.EffectiveStateDir(repoRoot)

	release, err := watch.AcquireLock(stateDir)
	if err != nil {
		return err
	}
	defer release()

	// Track the head seen before each event so the gate can fall back to it
	// when HEAD is briefly unreadable mid-operation.
	lastHead, err := git.HeadHash(ctx, repoRoot)
	if err != nil {
		lastHead = ""
	}
	c.Notify.Infof("Watching %s for commits.", repoRoot)

	return watch.Commits(ctx, repoRoot, debounce, c.Log, func(ctx context.Context) {
		outcome := c.Gate.OnCommit(ctx, repoRoot, lastHead)
		c.Log.Printf("watch: commit event, outcome %s", outcome)
		if head, err := git.HeadHash(ctx, repoRoot); err == nil {
			lastHead = head
		}
	})
}

// clearPending drops both the in-memory and the persisted pending entry.
func (c *Coordinator) clearPending(repoRoot, stateDir string) {
	c.Registry.Clear(repoRoot)
	if err := pending.Remove(stateDir); err != nil {
		c.Log.Printf("pending: remove failed: %v", err)
	}
}

// record appends one generation attempt to the per-repo history store.
// Best-effort: a broken store never fails the generation.
func (c *Coordinator) record(stateDir, msg string, genErr error, elapsed time.Duration) {
	store, err := history.Open(stateDir)
	if err != nil {
		c.Log.Printf("history: open failed: %v", err)
		return
	}
	defer store.Close()

	outcome := "ok"
	if genErr != nil {
		outcome = "failed"
		var cerr *codex.CliError
		if errors.As(genErr, &cerr) {
			outcome = string(cerr.Kind)
		}
	}
	rec := history.Record{
		Model:      c.Config.Model,
		Effort:     c.Config.ReasoningEffort,
		Message:    msg,
		Outcome:    outcome,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := store.Save(rec); err != nil {
		c.Log.Printf("history: save failed: %v", err)
	}
}
