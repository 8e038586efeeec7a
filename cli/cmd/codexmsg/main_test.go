package main

import "testing"

func TestRunCLIUnknownCommand(t *testing.T) {
	if code := runCLI([]string{"no-such-command"}); code != 1 {
		t.Errorf("runCLI(unknown) = %d, want 1", code)
	}
}

func TestRunCLIHelp(t *testing.T) {
	if code := runCLI([]string{"--help"}); code != 0 {
		t.Errorf("runCLI(--help) = %d, want 0", code)
	}
}

func TestErrExit(t *testing.T) {
	if got := errExit(2).Error(); got != "exit 2" {
		t.Errorf("errExit(2).Error() = %q", got)
	}
}
