package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{
		GlobalConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env:              []string{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-5-codex" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.ReasoningEffort != "low" {
		t.Errorf("ReasoningEffort = %q", cfg.ReasoningEffort)
	}
	if !cfg.IncludeUntracked {
		t.Error("IncludeUntracked = false, want true")
	}
	if cfg.DiffMaxChars != 20000 {
		t.Errorf("DiffMaxChars = %d", cfg.DiffMaxChars)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.PushRemote != "origin" || cfg.PushBranch != "main" {
		t.Errorf("push target = %s/%s", cfg.PushRemote, cfg.PushBranch)
	}
	if cfg.AutoCommit {
		t.Error("AutoCommit = true, want false")
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Parallel()

	globalPath := writeConfig(t, t.TempDir(), `
model = "global-model"
reasoning_effort = "high"
push_remote = "upstream"
`)

	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, ".codexmsg"), `
model = "repo-model"
timeout = "90s"
`)

	override := "flag-model"
	cfg, err := Load(LoadOptions{
		RepoRoot:         repoRoot,
		GlobalConfigPath: globalPath,
		Env:              []string{"CODEXMSG_PUSH_BRANCH=develop"},
		Overrides:        &Overrides{Model: &override},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "flag-model" {
		t.Errorf("Model = %q, want flag override", cfg.Model)
	}
	if cfg.ReasoningEffort != "high" {
		t.Errorf("ReasoningEffort = %q, want global value", cfg.ReasoningEffort)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want repo value", cfg.Timeout)
	}
	if cfg.PushRemote != "upstream" {
		t.Errorf("PushRemote = %q", cfg.PushRemote)
	}
	if cfg.PushBranch != "develop" {
		t.Errorf("PushBranch = %q, want env value", cfg.PushBranch)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{
		GlobalConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env: []string{
			"CODEXMSG_MODEL=env-model",
			"CODEXMSG_TIMEOUT=45",
			"CODEXMSG_INCLUDE_UNTRACKED=false",
			"CODEXMSG_AUTO_COMMIT=true",
			"CODEXMSG_DIFF_MAX_CHARS=5000",
			"CODEXMSG_COMMAND=/opt/codex/bin/codex",
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "env-model" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want integer seconds parsed", cfg.Timeout)
	}
	if cfg.IncludeUntracked {
		t.Error("IncludeUntracked = true")
	}
	if !cfg.AutoCommit {
		t.Error("AutoCommit = false")
	}
	if cfg.DiffMaxChars != 5000 {
		t.Errorf("DiffMaxChars = %d", cfg.DiffMaxChars)
	}
	if cfg.CommandPath != "/opt/codex/bin/codex" {
		t.Errorf("CommandPath = %q", cfg.CommandPath)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{
		GlobalConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env:              []string{"CODEXMSG_TIMEOUT=soon"},
	})
	if err == nil {
		t.Fatal("expected error for invalid timeout")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	t.Parallel()

	globalPath := writeConfig(t, t.TempDir(), `model = [`)
	_, err := Load(LoadOptions{GlobalConfigPath: globalPath, Env: []string{}})
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoadClampsFloors(t *testing.T) {
	t.Parallel()

	globalPath := writeConfig(t, t.TempDir(), `
diff_max_chars = 10
timeout = "1s"
`)
	cfg, err := Load(LoadOptions{GlobalConfigPath: globalPath, Env: []string{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiffMaxChars != 1000 {
		t.Errorf("DiffMaxChars = %d, want clamped to 1000", cfg.DiffMaxChars)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want clamped to 10s", cfg.Timeout)
	}
}

func TestNormalizeEffort(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"minimal", "minimal"},
		{"LOW", "low"},
		{" Medium ", "medium"},
		{"high", "high"},
		{"turbo", "low"},
		{"", "low"},
	}
	for _, tc := range cases {
		if got := normalizeEffort(tc.in); got != tc.want {
			t.Errorf("normalizeEffort(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEffectiveStateDir(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	want := filepath.Join("/repo", ".codexmsg")
	if got := cfg.EffectiveStateDir("/repo"); got != want {
		t.Errorf("EffectiveStateDir = %q, want %q", got, want)
	}

	cfg.StateDir = "/var/lib/codexmsg"
	if got := cfg.EffectiveStateDir("/repo"); got != "/var/lib/codexmsg" {
		t.Errorf("EffectiveStateDir = %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"45", 45 * time.Second, false},
		{"", 0, true},
		{"later", 0, true},
	}
	for _, tc := range cases {
		got, err := parseDuration(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseDuration(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
