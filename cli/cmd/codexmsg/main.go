package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"codexmsg/cli/internal/codex"
	"codexmsg/cli/internal/config"
	"codexmsg/cli/internal/diag"
	"codexmsg/cli/internal/erruser"
	"codexmsg/cli/internal/git"
	"codexmsg/cli/internal/history"
	"codexmsg/cli/internal/run"
	"codexmsg/cli/internal/version"
	"codexmsg/cli/internal/watch"
)

// errExit is an error that carries an exit code for the CLI. Use errors.As to detect it.
type errExit int

func (e errExit) Error() string {
	return "exit " + strconv.Itoa(int(e))
}

func main() {
	os.Exit(Run())
}

// Run is the entry point for the CLI. Exported for testing.
func Run() int {
	return runCLI(os.Args[1:])
}

func runCLI(args []string) int {
	rootCmd := &cobra.Command{
		Use:     "codexmsg",
		Short:   "Generate one-line commit messages with the Codex CLI and push confirmed commits",
		Version: version.String(),
	}
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the codexmsg version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.String())
			return nil
		},
	})
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		var exitErr errExit
		if errors.As(err, &exitErr) {
			return int(exitErr)
		}
		fmt.Fprintln(os.Stderr, err)
		if u := errors.Unwrap(err); u != nil {
			fmt.Fprintf(os.Stderr, "Details: %v\n", u)
		}
		return 1
	}
	return 0
}

// addConfigFlags registers the flags shared by generate and watch.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Codex model (overrides config and env)")
	cmd.Flags().String("effort", "", "Reasoning effort: minimal, low, medium, high")
	cmd.Flags().Bool("no-untracked", false, "Exclude untracked files from the diff document")
	cmd.Flags().Int("diff-max-chars", 0, "Character budget for the diff document (0 = use config)")
	cmd.Flags().Duration("timeout", 0, "Per-attempt generation timeout (0 = use config)")
	cmd.Flags().String("command", "", "Explicit codex executable path")
	cmd.Flags().String("push-remote", "", "Remote pushed to when the commit message matches")
	cmd.Flags().String("push-branch", "", "Branch required and pushed on a match")
	cmd.Flags().String("state-dir", "", "Directory for pending state, history, and logs")
	cmd.Flags().BoolP("verbose", "v", false, "Mirror log lines to stderr")
}

// overridesFromFlags builds config overrides from flags that were set.
func overridesFromFlags(cmd *cobra.Command) *config.Overrides {
	o := &config.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("model") {
		v, _ := flags.GetString("model")
		o.Model = &v
	}
	if flags.Changed("effort") {
		v, _ := flags.GetString("effort")
		o.ReasoningEffort = &v
	}
	if flags.Changed("no-untracked") {
		include := false
		o.IncludeUntracked = &include
	}
	if flags.Changed("diff-max-chars") {
		v, _ := flags.GetInt("diff-max-chars")
		o.DiffMaxChars = &v
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetDuration("timeout")
		o.Timeout = &v
	}
	if flags.Changed("command") {
		v, _ := flags.GetString("command")
		o.CommandPath = &v
	}
	if flags.Changed("push-remote") {
		v, _ := flags.GetString("push-remote")
		o.PushRemote = &v
	}
	if flags.Changed("push-branch") {
		v, _ := flags.GetString("push-branch")
		o.PushBranch = &v
	}
	if flags.Changed("state-dir") {
		v, _ := flags.GetString("state-dir")
		o.StateDir = &v
	}
	return o
}

// setup resolves the repo root, loads config, and opens the state-dir log.
// The caller must Close the returned logger.
func setup(ctx context.Context, cmd *cobra.Command) (string, *config.Config, *diag.Logger, *diag.Notifier, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", nil, nil, nil, erruser.New("Could not determine current directory.", err)
	}
	repoRoot, err := git.RepoRoot(ctx, cwd)
	if err != nil {
		return "", nil, nil, nil, err
	}
	cfg, err := config.Load(config.LoadOptions{RepoRoot: repoRoot, Overrides: overridesFromFlags(cmd)})
	if err != nil {
		return "", nil, nil, nil, err
	}
	log, err := diag.Open(cfg.EffectiveStateDir(repoRoot))
	if err != nil {
		// A broken log file should not block generation; fall back to no-op.
		fmt.Fprintf(os.Stderr, "warning: could not open the log: %v\n", err)
		log = diag.New(nil)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.Echo(os.Stderr)
	}
	notify := &diag.Notifier{Out: os.Stderr, Log: log}
	return repoRoot, cfg, log, notify, nil
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a commit message for the current changes",
		RunE:  runGenerate,
	}
	addConfigFlags(cmd)
	cmd.Flags().Bool("auto-commit", false, "Stage everything and commit with the generated message")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repoRoot, cfg, log, notify, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Close()
	if cmd.Flags().Changed("auto-commit") {
		v, _ := cmd.Flags().GetBool("auto-commit")
		cfg.AutoCommit = v
	}

	c := run.New(cfg, os.Stdout, notify, log)
	if _, err := c.Generate(ctx, repoRoot); err != nil {
		if errors.Is(err, run.ErrNoChanges) {
			notify.Infof("No changes to describe.")
			return nil
		}
		return err
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the repository and push commits whose message matches the pending one",
		RunE:  runWatch,
	}
	addConfigFlags(cmd)
	cmd.Flags().Duration("debounce", 0, "Commit-event debounce window (0 = default)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repoRoot, cfg, log, notify, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Close()
	debounce, _ := cmd.Flags().GetDuration("debounce")

	c := run.New(cfg, os.Stdout, notify, log)
	if err := c.Watch(ctx, repoRoot, debounce); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, watch.ErrLocked) {
			return erruser.New("Another watcher is already running for this repository.", err)
		}
		return err
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent generation attempts for this repository",
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of records to show")
	cmd.Flags().String("search", "", "Only show records whose message contains this text")
	cmd.Flags().String("state-dir", "", "Directory for pending state, history, and logs")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cwd, err := os.Getwd()
	if err != nil {
		return erruser.New("Could not determine current directory.", err)
	}
	repoRoot, err := git.RepoRoot(ctx, cwd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.LoadOptions{RepoRoot: repoRoot, Overrides: overridesFromFlags(cmd)})
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	search, _ := cmd.Flags().GetString("search")

	store, err := history.Open(cfg.EffectiveStateDir(repoRoot))
	if err != nil {
		return erruser.New("Could not open the history store.", err)
	}
	defer store.Close()

	records, err := store.Records(limit, search)
	if err != nil {
		return erruser.New("Could not read the history store.", err)
	}
	if len(records) == 0 {
		fmt.Println("No generation history.")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %-14s  %6dms  %s\n",
			rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			rec.Outcome, rec.DurationMS, rec.Message)
	}
	return nil
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check git, the codex executable, and the effective configuration",
		RunE:  runDoctor,
	}
	addConfigFlags(cmd)
	return cmd
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ok := true

	if path, err := exec.LookPath("git"); err == nil {
		fmt.Printf("git: %s\n", path)
	} else {
		fmt.Println("git: NOT FOUND")
		ok = false
	}

	cwd, err := os.Getwd()
	if err != nil {
		return erruser.New("Could not determine current directory.", err)
	}
	repoRoot := ""
	if root, err := git.RepoRoot(ctx, cwd); err == nil {
		repoRoot = root
		fmt.Printf("repository: %s\n", root)
	} else {
		fmt.Println("repository: not inside a Git repository")
	}

	cfg, err := config.Load(config.LoadOptions{RepoRoot: repoRoot, Overrides: overridesFromFlags(cmd)})
	if err != nil {
		return err
	}

	candidates := codex.Resolver{Getenv: os.Getenv, GOOS: runtime.GOOS}.Candidates(cfg.CommandPath)
	found := ""
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			found = path
			break
		}
	}
	if found != "" {
		fmt.Printf("codex: %s\n", found)
	} else {
		fmt.Println("codex: NOT FOUND; tried:")
		for _, c := range candidates {
			fmt.Printf("  %s\n", c)
		}
		ok = false
	}

	fmt.Printf("model: %s (%s effort)\n", cfg.Model, cfg.ReasoningEffort)
	fmt.Printf("push target: %s/%s\n", cfg.PushRemote, cfg.PushBranch)
	fmt.Printf("diff budget: %d chars, timeout %s\n", cfg.DiffMaxChars, cfg.Timeout)
	if repoRoot != "" {
		fmt.Printf("state dir: %s\n", cfg.EffectiveStateDir(repoRoot))
	}

	if !ok {
		return errExit(1)
	}
	return nil
}
