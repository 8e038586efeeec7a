package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestResolveGitDir_directory(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	got, err := resolveGitDir(repo)
	if err != nil {
		t.Fatalf("resolveGitDir: %v", err)
	}
	if got != filepath.Join(repo, ".git") {
		t.Errorf("got %q", got)
	}
}

func TestResolveGitDir_worktreeFile(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	real := filepath.Join(repo, "actual-gitdir")
	if err := os.MkdirAll(real, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, ".git"), []byte("gitdir: "+real+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := resolveGitDir(repo)
	if err != nil {
		t.Fatalf("resolveGitDir: %v", err)
	}
	if got != real {
		t.Errorf("got %q, want %q", got, real)
	}
}

func TestResolveGitDir_relativeIndirection(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "sub", "gd"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, ".git"), []byte("gitdir: sub/gd"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := resolveGitDir(repo)
	if err != nil {
		t.Fatalf("resolveGitDir: %v", err)
	}
	if got != filepath.Join(repo, "sub", "gd") {
		t.Errorf("got %q", got)
	}
}

func TestResolveGitDir_notARepo(t *testing.T) {
	t.Parallel()
	if _, err := resolveGitDir(t.TempDir()); err == nil {
		t.Fatal("expected error without .git")
	}
}

func TestIsHeadLogEvent(t *testing.T) {
	t.Parallel()
	if !isHeadLogEvent(fsnotify.Event{Name: "/r/.git/logs/HEAD", Op: fsnotify.Write}) {
		t.Error("write to logs/HEAD should count")
	}
	if isHeadLogEvent(fsnotify.Event{Name: "/r/.git/logs/refs/heads/main", Op: fsnotify.Write}) {
		t.Error("branch reflog should not count")
	}
	if isHeadLogEvent(fsnotify.Event{Name: "/r/.git/logs/HEAD", Op: fsnotify.Chmod}) {
		t.Error("chmod should not count")
	}
}

func TestCommits_firesOnceForBurst(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	logsDir := filepath.Join(repo, ".git", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		t.Fatal(err)
	}

	var fires atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Commits(ctx, repo, 50*time.Millisecond, nil, func(context.Context) {
			fires.Add(1)
		})
	}()

	// Give the watcher time to register, then simulate one commit's burst of
	// reflog writes.
	time.Sleep(200 * time.Millisecond)
	headLog := filepath.Join(logsDir, "HEAD")
	for i := 0; i < 3; i++ {
		f, err := os.OpenFile(headLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.WriteString("entry\n"); err != nil {
			t.Fatal(err)
		}
		f.Close()
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for fires.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Allow a short settle window to catch spurious double-fires.
	time.Sleep(150 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("onCommit fired %d times, want 1", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Commits returned %v, want context.Canceled", err)
	}
}

func TestAcquireLock_exclusive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	release, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := AcquireLock(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquire = %v, want ErrLocked", err)
	}
	release()
	release2, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}
