package prompt

import (
	"strings"
	"testing"
)

func TestBuild_embedsDiffVerbatim(t *testing.T) {
	t.Parallel()
	diff := "## Tracked diff\ndiff --git a/x b/x\n+日本語の行"
	got := Build(diff)
	if !strings.Contains(got, "```\n"+diff+"\n```") {
		t.Errorf("diff not embedded verbatim in fenced block:\n%s", got)
	}
}

func TestBuild_statesOutputContract(t *testing.T) {
	t.Parallel()
	got := Build("x")
	for _, want := range []string{"1行だけ", "日本語", "30〜50文字", "接頭辞"} {
		if !strings.Contains(got, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
}

func TestBuild_sameDiffSamePrompt(t *testing.T) {
	t.Parallel()
	if Build("a") != Build("a") {
		t.Error("Build is not deterministic")
	}
}
