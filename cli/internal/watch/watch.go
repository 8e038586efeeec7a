// Package watch turns filesystem activity in .git into commit events. Git
// appends to .git/logs/HEAD (the reflog) on every commit, so a write there is
// the commit signal; events are debounced because one commit can produce
// several writes. A per-repo advisory lock keeps it to one watcher per
// repository.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"codexmsg/cli/internal/diag"
	"codexmsg/cli/internal/erruser"
)

// ErrLocked indicates another watcher already holds the repo's watch lock.
var ErrLocked = errors.New("another codexmsg watcher is already running for this repository")

const lockFilename = "watch.lock"

// _defaultDebounce collapses the burst of reflog writes one commit causes.
const _defaultDebounce = 300 * time.Millisecond

// Commits watches the repository at repoRoot and calls onCommit after each
// commit, until ctx is canceled. onCommit runs on the watcher goroutine;
// evaluations therefore never overlap for one repository.
func Commits(ctx context.Context, repoRoot string, debounce time.Duration, log *diag.Logger, onCommit func(context.Context)) error {
	if debounce <= 0 {
		debounce = _defaultDebounce
	}
	gitDir, err := resolveGitDir(repoRoot)
	if err != nil {
		return err
	}
	logsDir := filepath.Join(gitDir, "logs")
	// The logs dir may not exist until the first commit.
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return erruser.New("Could not prepare the repository watch.", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return erruser.New("Could not start the filesystem watcher.", err)
	}
	defer w.Close()
	if err := w.Add(logsDir); err != nil {
		return erruser.New("Could not watch the repository.", err)
	}
	log.Printf("watch: watching %s", logsDir)

	// The timer is armed on each relevant event; firing means the burst is
	// over and the commit can be evaluated.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pendingFire := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isHeadLogEvent(ev) {
				continue
			}
			if pendingFire && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pendingFire = true
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: watcher error: %v", err)
		case <-timer.C:
			pendingFire = false
			log.Printf("watch: commit detected in %s", repoRoot)
			onCommit(ctx)
		}
	}
}

// isHeadLogEvent reports whether ev is a write to the HEAD reflog.
func isHeadLogEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return filepath.Base(ev.Name) == "HEAD"
}

// resolveGitDir locates the .git directory for repoRoot, following the
// "gitdir:" indirection used by worktrees and submodules.
func resolveGitDir(repoRoot string) (string, error) {
	dotGit := filepath.Join(repoRoot, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return "", erruser.New("This directory is not inside a Git repository.", err)
	}
	if info.IsDir() {
		return dotGit, nil
	}
	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", erruser.New("Could not read the .git file.", err)
	}
	line := strings.TrimSpace(string(data))
	const prefix = "gitdir:"
	if !strings.HasPrefix(line, prefix) {
		return "", erruser.New("Unrecognized .git file format.", nil)
	}
	dir := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoRoot, dir)
	}
	return filepath.Clean(dir), nil
}
