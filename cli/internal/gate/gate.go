// Package gate decides, on every observed commit, whether to push: the
// latest commit's message must equal the pending generated message and the
// current branch must equal the configured target branch. Whatever branch the
// evaluation takes, the pending entry is consumed — a pending message never
// survives past one commit-check cycle.
package gate

import (
	"context"
	"errors"
	"strings"
	"sync"

	"codexmsg/cli/internal/diag"
	"codexmsg/cli/internal/git"
	"codexmsg/cli/internal/pending"
)

// Outcome names the exit taken by one gate evaluation.
type Outcome string

const (
	// OutcomeNoPending: nothing was awaiting confirmation; no-op.
	OutcomeNoPending Outcome = "no-pending"
	// OutcomeInFlight: another evaluation for this repo is running; no-op.
	OutcomeInFlight Outcome = "in-flight"
	// OutcomeNoHead: the latest commit could not be resolved; recoverable skip.
	OutcomeNoHead Outcome = "skipped-no-head"
	// OutcomeMismatch: commit message differs from the pending message.
	OutcomeMismatch Outcome = "skipped-mismatch"
	// OutcomeBranchMismatch: current branch is not the configured target.
	OutcomeBranchMismatch Outcome = "skipped-branch"
	// OutcomePushed: message and branch matched and the push succeeded.
	OutcomePushed Outcome = "pushed"
	// OutcomePushFailed: match succeeded but the push did not.
	OutcomePushFailed Outcome = "push-failed"
)

// GitOps is the slice of repository operations the gate needs. Satisfied by
// CLIGit in production and by fakes in tests.
type GitOps interface {
	HeadMessage(ctx context.Context, repoRoot string) (string, error)
	MessageAt(ctx context.Context, repoRoot, hash string) (string, error)
	CurrentBranch(ctx context.Context, repoRoot string) (string, error)
	Push(ctx context.Context, repoRoot, remote, branch string) error
}

// CLIGit implements GitOps over the git subprocess helpers.
type CLIGit struct{}

func (CLIGit) HeadMessage(ctx context.Context, repoRoot string) (string, error) {
	return git.HeadMessage(ctx, repoRoot)
}

func (CLIGit) MessageAt(ctx context.Context, repoRoot, hash string) (string, error) {
	return git.MessageAt(ctx, repoRoot, hash)
}

func (CLIGit) CurrentBranch(ctx context.Context, repoRoot string) (string, error) {
	return git.CurrentBranch(ctx, repoRoot)
}

func (CLIGit) Push(ctx context.Context, repoRoot, remote, branch string) error {
	return git.Push(ctx, repoRoot, remote, branch)
}

// Gate evaluates commit events. One instance is owned by the coordinator;
// the in-flight map is the only mutual exclusion in the pipeline.
type Gate struct {
	Git      GitOps
	Registry *pending.Registry
	// StateDirFor maps a repo root to its state dir, for the persisted
	// pending entry. Nil disables persistence handling.
	StateDirFor func(repoRoot string) string
	Remote      string
	Branch      string
	Notify      *diag.Notifier
	Log         *diag.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New returns a Gate pushing to remote/branch.
func New(gitOps GitOps, reg *pending.Registry, remote, branch string, notify *diag.Notifier, log *diag.Logger) *Gate {
	return &Gate{
		Git:      gitOps,
		Registry: reg,
		Remote:   remote,
		Branch:   branch,
		Notify:   notify,
		Log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// OnCommit runs one gate evaluation for the repository. lastKnownHead is the
// head hash recorded before the commit event, used as a fallback when HEAD
// itself cannot be read; it may be empty.
func (g *Gate) OnCommit(ctx context.Context, repoRoot, lastKnownHead string) Outcome {
	entry, ok := g.pendingFor(repoRoot)
	if !ok {
		return OutcomeNoPending
	}

	if !g.acquire(repoRoot) {
		g.Log.Printf("gate: evaluation already in flight for %s", repoRoot)
		return OutcomeInFlight
	}
	// Both run on every exit path below: no stuck guard, no stale pending.
	defer g.release(repoRoot)
	defer g.clearPending(repoRoot)

	latest, err := g.latestMessage(ctx, repoRoot, lastKnownHead)
	if err != nil {
		g.Log.Printf("gate: could not resolve latest commit for %s: %v", repoRoot, err)
		g.Notify.Warnf("Could not read the latest commit; push skipped.")
		return OutcomeNoHead
	}

	want := strings.TrimSpace(entry.Message)
	got := strings.TrimSpace(firstLine(latest))
	if got != want {
		g.Log.Printf("gate: message mismatch for %s: committed %q, generated %q", repoRoot, got, want)
		g.Notify.Infof("Commit message differs from the generated one; push skipped.")
		return OutcomeMismatch
	}

	branch, err := g.Git.CurrentBranch(ctx, repoRoot)
	if err != nil {
		g.Log.Printf("gate: could not read branch for %s: %v", repoRoot, err)
		g.Notify.Warnf("Could not read the current branch; push skipped.")
		return OutcomeNoHead
	}
	if branch != g.Branch {
		g.Log.Printf("gate: branch %q is not target %q for %s", branch, g.Branch, repoRoot)
		g.Notify.Infof("Current branch %q is not %q; push skipped.", branch, g.Branch)
		return OutcomeBranchMismatch
	}

	if err := g.Git.Push(ctx, repoRoot, g.Remote, g.Branch); err != nil {
		g.Log.Printf("gate: push to %s/%s failed for %s: %v", g.Remote, g.Branch, repoRoot, err)
		g.Notify.Errorf("%s", pushFailureMessage(err))
		return OutcomePushFailed
	}

	g.Log.Printf("gate: pushed %s to %s/%s", repoRoot, g.Remote, g.Branch)
	g.Notify.Infof("Pushed to %s/%s.", g.Remote, g.Branch)
	return OutcomePushed
}

// pendingFor checks the in-memory slot first, then the persisted entry left
// by another process.
func (g *Gate) pendingFor(repoRoot string) (pending.Entry, bool) {
	if e, ok := g.Registry.Get(repoRoot); ok {
		return e, true
	}
	if g.StateDirFor == nil {
		return pending.Entry{}, false
	}
	e, ok, err := pending.Load(g.StateDirFor(repoRoot))
	if err != nil {
		g.Log.Printf("gate: pending file unreadable for %s: %v", repoRoot, err)
		return pending.Entry{}, false
	}
	return e, ok
}

func (g *Gate) clearPending(repoRoot string) {
	g.Registry.Clear(repoRoot)
	if g.StateDirFor != nil {
		if err := pending.Remove(g.StateDirFor(repoRoot)); err != nil {
			g.Log.Printf("gate: could not remove pending file for %s: %v", repoRoot, err)
		}
	}
}

func (g *Gate) acquire(repoRoot string) bool {
	key := pending.Key(repoRoot)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inFlight[key]; held {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *Gate) release(repoRoot string) {
	key := pending.Key(repoRoot)
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

// latestMessage prefers HEAD, falling back to the last-known head hash.
func (g *Gate) latestMessage(ctx context.Context, repoRoot, lastKnownHead string) (string, error) {
	msg, err := g.Git.HeadMessage(ctx, repoRoot)
	if err == nil {
		return msg, nil
	}
	if lastKnownHead == "" {
		return "", err
	}
	msg, fallbackErr := g.Git.MessageAt(ctx, repoRoot, lastKnownHead)
	if fallbackErr != nil {
		return "", errors.Join(err, fallbackErr)
	}
	return msg, nil
}

// rejectionPhrases pick a more specific user message for common push
// failures.
var rejectionPhrases = []string{
	"non-fast-forward",
	"fetch first",
	"[rejected]",
	"rejected",
	"cannot lock ref",
	"failed to push some refs",
}

func pushFailureMessage(err error) string {
	text := err.Error()
	var cmdErr *git.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Output != "" {
		text = cmdErr.Output
	}
	lc := strings.ToLower(text)
	for _, phrase := range rejectionPhrases {
		if strings.Contains(lc, phrase) {
			return "Push was rejected by the remote; pull or rebase first."
		}
	}
	return "Push failed."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
