// Package config provides codexmsg configuration with a defined load order:
// CLI flags > environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: .codexmsg/config.toml (relative to repo root)
//   - Global: XDG config dir, e.g. ~/.config/codexmsg/config.toml
//
// Environment variables (override config files when set):
//   - CODEXMSG_MODEL, CODEXMSG_REASONING_EFFORT, CODEXMSG_INCLUDE_UNTRACKED,
//   - CODEXMSG_DIFF_MAX_CHARS, CODEXMSG_TIMEOUT (Go duration or integer seconds),
//   - CODEXMSG_COMMAND, CODEXMSG_AUTO_COMMIT, CODEXMSG_PUSH_REMOTE,
//   - CODEXMSG_PUSH_BRANCH, CODEXMSG_STATE_DIR.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"codexmsg/cli/internal/erruser"
)

// Config holds all codexmsg settings. An empty StateDir means "use
// <repoRoot>/.codexmsg".
type Config struct {
	// Model is the codex model identifier passed via -m.
	Model string `toml:"model"`
	// ReasoningEffort is one of minimal, low, medium, high. Invalid values
	// fall back to the default rather than failing the load.
	ReasoningEffort string `toml:"reasoning_effort"`
	// IncludeUntracked adds the untracked-file list to the diff document.
	IncludeUntracked bool `toml:"include_untracked"`
	// DiffMaxChars is the character budget for the composed diff document.
	// Clamped to a minimum floor.
	DiffMaxChars int `toml:"diff_max_chars"`
	// Timeout bounds one generation attempt. Clamped to a minimum floor.
	Timeout time.Duration `toml:"timeout"`
	// CommandPath is an explicit codex executable; empty means resolve from
	// the default candidate locations.
	CommandPath string `toml:"command_path"`
	// AutoCommit stages and commits with the generated message immediately
	// after generation.
	AutoCommit bool `toml:"auto_commit"`
	// PushRemote and PushBranch name where the gate pushes.
	PushRemote string `toml:"push_remote"`
	PushBranch string `toml:"push_branch"`
	StateDir   string `toml:"state_dir"`
}

// Overrides represents optional CLI flag overrides. A non-nil pointer means
// "override with this value".
type Overrides struct {
	Model            *string
	ReasoningEffort  *string
	IncludeUntracked *bool
	DiffMaxChars     *int
	Timeout          *time.Duration
	CommandPath      *string
	AutoCommit       *bool
	PushRemote       *string
	PushBranch       *string
	StateDir         *string
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// RepoRoot locates the repo config at RepoRoot/.codexmsg/config.toml.
	RepoRoot string
	// GlobalConfigPath overrides the XDG global config path (tests).
	GlobalConfigPath string
	// Env is the key=value environment; nil means os.Environ().
	Env []string
	// Overrides are applied last (highest precedence).
	Overrides *Overrides
}

const (
	_defaultModel        = "gpt-5-codex"
	_defaultEffort       = "low"
	_defaultDiffMaxChars = 20000
	_defaultTimeout      = 60 * time.Second
	_defaultPushRemote   = "origin"
	_defaultPushBranch   = "main"

	// Floors: values below these are clamped up, not rejected.
	_minDiffMaxChars = 1000
	_minTimeout      = 10 * time.Second
)

// validEfforts is the allowed reasoning-effort set (normalized lowercase).
var validEfforts = map[string]struct{}{
	"minimal": {}, "low": {}, "medium": {}, "high": {},
}

// normalizeEffort returns the normalized effort, or the default when the
// value is not recognized.
func normalizeEffort(s string) string {
	norm := strings.TrimSpace(strings.ToLower(s))
	if _, ok := validEfforts[norm]; !ok {
		return _defaultEffort
	}
	return norm
}

// DefaultConfig returns the default configuration (no I/O).
func DefaultConfig() Config {
	return Config{
		Model:            _defaultModel,
		ReasoningEffort:  _defaultEffort,
		IncludeUntracked: true,
		DiffMaxChars:     _defaultDiffMaxChars,
		Timeout:          _defaultTimeout,
		PushRemote:       _defaultPushRemote,
		PushBranch:       _defaultPushBranch,
	}
}

// EffectiveStateDir returns the directory for pending state, locks, history,
// and the log. If StateDir is set it is used as-is; otherwise
// repoRoot/.codexmsg.
func (c Config) EffectiveStateDir(repoRoot string) string {
	if c.StateDir != "" {
		return c.StateDir
	}
	return filepath.Join(repoRoot, ".codexmsg")
}

// Load loads configuration with precedence: defaults < global file < repo
// file < env < overrides, then clamps floors and normalizes the effort.
// Missing config files are ignored; invalid TOML or invalid env values
// return an error.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := DefaultConfig()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, erruser.New("Could not determine the config directory.", err)
		}
		globalPath = filepath.Join(dir, "codexmsg", "config.toml")
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return nil, err
	}

	if opts.RepoRoot != "" {
		repoPath := filepath.Join(opts.RepoRoot, ".codexmsg", "config.toml")
		if err := mergeFile(&cfg, repoPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return nil, err
	}

	applyOverrides(&cfg, opts.Overrides)

	cfg.ReasoningEffort = normalizeEffort(cfg.ReasoningEffort)
	if cfg.DiffMaxChars < _minDiffMaxChars {
		cfg.DiffMaxChars = _minDiffMaxChars
	}
	if cfg.Timeout < _minTimeout {
		cfg.Timeout = _minTimeout
	}
	return &cfg, nil
}

// mergeFile reads path and merges into cfg. Only fields present in the file
// overwrite previous values. A missing file is skipped.
func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erruser.New("Invalid configuration file.", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return erruser.New("Could not read the configuration file.", err)
	}
	var file struct {
		Model            *string `toml:"model"`
		ReasoningEffort  *string `toml:"reasoning_effort"`
		IncludeUntracked *bool   `toml:"include_untracked"`
		DiffMaxChars     *int64  `toml:"diff_max_chars"`
		Timeout          *string `toml:"timeout"`
		CommandPath      *string `toml:"command_path"`
		AutoCommit       *bool   `toml:"auto_commit"`
		PushRemote       *string `toml:"push_remote"`
		PushBranch       *string `toml:"push_branch"`
		StateDir         *string `toml:"state_dir"`
	}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return erruser.New("Invalid configuration in "+path+".", err)
	}
	if file.Model != nil && *file.Model != "" {
		cfg.Model = *file.Model
	}
	if file.ReasoningEffort != nil && *file.ReasoningEffort != "" {
		cfg.ReasoningEffort = *file.ReasoningEffort
	}
	if file.IncludeUntracked != nil {
		cfg.IncludeUntracked = *file.IncludeUntracked
	}
	if file.DiffMaxChars != nil && *file.DiffMaxChars > 0 {
		cfg.DiffMaxChars = int(*file.DiffMaxChars)
	}
	if file.Timeout != nil && *file.Timeout != "" {
		d, err := parseDuration(*file.Timeout)
		if err != nil {
			return erruser.New("Configuration timeout is invalid.", err)
		}
		cfg.Timeout = d
	}
	if file.CommandPath != nil {
		cfg.CommandPath = *file.CommandPath
	}
	if file.AutoCommit != nil {
		cfg.AutoCommit = *file.AutoCommit
	}
	if file.PushRemote != nil && *file.PushRemote != "" {
		cfg.PushRemote = *file.PushRemote
	}
	if file.PushBranch != nil && *file.PushBranch != "" {
		cfg.PushBranch = *file.PushBranch
	}
	if file.StateDir != nil {
		cfg.StateDir = *file.StateDir
	}
	return nil
}

// parseDuration accepts a Go duration string ("90s", "2m") or plain integer
// seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func applyEnv(cfg *Config, env []string) error {
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case "CODEXMSG_MODEL":
			if value != "" {
				cfg.Model = value
			}
		case "CODEXMSG_REASONING_EFFORT":
			if value != "" {
				cfg.ReasoningEffort = value
			}
		case "CODEXMSG_INCLUDE_UNTRACKED":
			b, err := parseBool(value)
			if err != nil {
				return erruser.New("CODEXMSG_INCLUDE_UNTRACKED must be a boolean.", err)
			}
			cfg.IncludeUntracked = b
		case "CODEXMSG_DIFF_MAX_CHARS":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n <= 0 {
				return erruser.New("CODEXMSG_DIFF_MAX_CHARS must be a positive integer.", err)
			}
			cfg.DiffMaxChars = n
		case "CODEXMSG_TIMEOUT":
			d, err := parseDuration(value)
			if err != nil {
				return erruser.New("CODEXMSG_TIMEOUT must be a duration or integer seconds.", err)
			}
			cfg.Timeout = d
		case "CODEXMSG_COMMAND":
			cfg.CommandPath = value
		case "CODEXMSG_AUTO_COMMIT":
			b, err := parseBool(value)
			if err != nil {
				return erruser.New("CODEXMSG_AUTO_COMMIT must be a boolean.", err)
			}
			cfg.AutoCommit = b
		case "CODEXMSG_PUSH_REMOTE":
			if value != "" {
				cfg.PushRemote = value
			}
		case "CODEXMSG_PUSH_BRANCH":
			if value != "" {
				cfg.PushBranch = value
			}
		case "CODEXMSG_STATE_DIR":
			cfg.StateDir = value
		}
	}
	return nil
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.Model != nil && *o.Model != "" {
		cfg.Model = *o.Model
	}
	if o.ReasoningEffort != nil && *o.ReasoningEffort != "" {
		cfg.ReasoningEffort = *o.ReasoningEffort
	}
	if o.IncludeUntracked != nil {
		cfg.IncludeUntracked = *o.IncludeUntracked
	}
	if o.DiffMaxChars != nil && *o.DiffMaxChars > 0 {
		cfg.DiffMaxChars = *o.DiffMaxChars
	}
	if o.Timeout != nil && *o.Timeout > 0 {
		cfg.Timeout = *o.Timeout
	}
	if o.CommandPath != nil && *o.CommandPath != "" {
		cfg.CommandPath = *o.CommandPath
	}
	if o.AutoCommit != nil {
		cfg.AutoCommit = *o.AutoCommit
	}
	if o.PushRemote != nil && *o.PushRemote != "" {
		cfg.PushRemote = *o.PushRemote
	}
	if o.PushBranch != nil && *o.PushBranch != "" {
		cfg.PushBranch = *o.PushBranch
	}
	if o.StateDir != nil && *o.StateDir != "" {
		cfg.StateDir = *o.StateDir
	}
}
