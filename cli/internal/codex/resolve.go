package codex

import (
	"path/filepath"
	"runtime"
)

// Resolver builds the ordered list of executable candidates to try. The
// environment is injected so the list is testable without touching the real
// filesystem or platform.
type Resolver struct {
	// Getenv reads an environment variable; nil means no environment.
	Getenv func(string) string
	// GOOS overrides the platform; empty means runtime.GOOS.
	GOOS string
}

// Candidates returns the paths to try in order. A configured path always
// comes first; the bare name (PATH lookup) and well-known install locations
// follow. The client advances past a candidate only on a not-found failure.
func (r Resolver) Candidates(configured string) []string {
	goos := r.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	getenv := r.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	name := "codex"
	if goos == "windows" {
		name = "codex.cmd"
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	add(configured)
	add(name)
	if home := homeDir(getenv, goos); home != "" {
		// npm-style global installs land here; PATH does not always include it.
		add(filepath.Join(home, ".local", "bin", name))
		add(filepath.Join(home, ".codex", "bin", name))
		if goos == "windows" {
			if appData := getenv("APPDATA"); appData != "" {
				add(filepath.Join(appData, "npm", name))
			}
		}
	}
	if goos != "windows" {
		add("/usr/local/bin/" + name)
	}
	return out
}

func homeDir(getenv func(string) string, goos string) string {
	if home := getenv("HOME"); home != "" {
		return home
	}
	if goos == "windows" {
		return getenv("USERPROFILE")
	}
	return ""
}
