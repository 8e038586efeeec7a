package codex

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  fix: bar  \n", "fix: bar"},
		{"first non-blank line only", "\n\n  最初の行  \n二行目\n", "最初の行"},
		{"strips double quotes", `"設定を更新"`, "設定を更新"},
		{"strips single quotes", "'update config'", "update config"},
		{"strips japanese brackets", "「差分を整理」", "差分を整理"},
		{"strips curly quotes", "“quoted”", "quoted"},
		{"one layer only", `""double""`, `"double"`},
		{"empty quotes normalize to nothing", `""`, ""},
		{"unmatched quote kept", `"half open`, `"half open`},
		{"blank input", "   \n \n", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseAgentMessage(t *testing.T) {
	t.Parallel()
	if _, ok := parseAgentMessage(`{"type":"item.completed","item":{"type":"reasoning","text":"t"}}`); ok {
		t.Error("reasoning item should not count")
	}
	if _, ok := parseAgentMessage(`{"type":"turn.completed"}`); ok {
		t.Error("other event types should not count")
	}
	text, ok := parseAgentMessage(`{"type":"item.completed","item":{"type":"agent_message","text":"msg"}}`)
	if !ok || text != "msg" {
		t.Errorf("got (%q, %v)", text, ok)
	}
}
