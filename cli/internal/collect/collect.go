// Package collect gathers a bounded, prompt-ready description of a
// repository's pending changes: the tracked working-tree diff plus an
// optional untracked-file list, composed into one document and hard-cut at a
// character budget.
//
// # Empty result
// When there is neither a tracked diff nor any untracked file, Result.DiffText
// is empty. That is "nothing to generate from", not an error; callers stop.
//
// # Truncation
// The cut is a plain character-count operation on the composed document. It
// may land mid-hunk; the generator only needs a gist, not a valid patch.
package collect

import (
	"context"
	"strings"

	"codexmsg/cli/internal/diag"
	"codexmsg/cli/internal/erruser"
	"codexmsg/cli/internal/git"
)

// Marker is appended whenever the composed document exceeds the budget.
const Marker = "\n[diff truncated]"

const (
	trackedHeader   = "## Tracked diff"
	untrackedHeader = "## Untracked files"
)

// Result is the outcome of one collection.
type Result struct {
	// DiffText is the final prompt-ready document, possibly truncated,
	// possibly empty.
	DiffText string
	// TrackedDiff is the raw tracked diff before composition.
	TrackedDiff string
	// UntrackedFiles lists untracked, non-ignored paths in git's order.
	UntrackedFiles []string
	// Truncated reports whether DiffText was cut at the budget.
	Truncated bool
}

// Collect produces a Result for the repository at repoRoot. maxChars is the
// character budget for the composed document (runes, not bytes). The
// untracked listing is best-effort: on failure it is logged and the
// collection continues with none.
func Collect(ctx context.Context, repoRoot string, includeUntracked bool, maxChars int, log *diag.Logger) (*Result, error) {
	tracked, err := git.DiffHead(ctx, repoRoot)
	if err != nil {
		// No commits yet, or HEAD unresolvable. Fall back to a diff with no
		// prior reference; if that also fails the collection fails.
		log.Printf("collect: diff against HEAD failed, trying empty baseline: %v", err)
		tracked, err = git.DiffIndex(ctx, repoRoot)
		if err != nil {
			return nil, erruser.New("Could not read the repository diff.", err)
		}
	}

	var untracked []string
	if includeUntracked {
		untracked, err = git.UntrackedFiles(ctx, repoRoot)
		if err != nil {
			log.Printf("collect: untracked listing failed, continuing without: %v", err)
			untracked = nil
		}
	}

	res := &Result{TrackedDiff: tracked, UntrackedFiles: untracked}
	res.DiffText, res.Truncated = Compose(tracked, untracked, maxChars)
	return res, nil
}

// Compose builds the prompt document from a tracked diff and an untracked
// file list, then truncates at maxChars. Exposed separately so the truncation
// property is testable without a repository.
func Compose(tracked string, untracked []string, maxChars int) (string, bool) {
	var sections []string
	if t := strings.TrimSpace(tracked); t != "" {
		sections = append(sections, trackedHeader+"\n"+t)
	}
	if len(untracked) > 0 {
		sections = append(sections, untrackedHeader+"\n"+strings.Join(untracked, "\n"))
	}
	doc := strings.Join(sections, "\n\n")
	return truncate(doc, maxChars)
}

// truncate cuts s to at most max characters and appends Marker when it cut
// anything. Counting is by rune so a multibyte diff never splits a character.
func truncate(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	return string(runes[:max]) + Marker, true
}
