// Package prompt renders the fixed instruction template for commit-message
// generation. Pure string work; no I/O.
package prompt

import "fmt"

// instructionTemplate enforces the output contract: exactly one line of
// Japanese, 30-50 characters, no markup or prefixes, describing the concrete
// change. The diff document is embedded verbatim in the fenced block; the
// fence itself is not escaped, so a diff containing the fence can break out
// of the block. Accepted limitation: the generator receives the prompt as a
// single argv element, never a shell string, so the blast radius is a bad
// message, not command injection.
const instructionTemplate = `あなたはGitコミットメッセージを書くアシスタントです。
以下の変更内容を読み、コミットメッセージを1行だけ出力してください。

条件:
- 日本語で書くこと
- 30〜50文字程度に収めること
- 出力はメッセージ本文のみとし、引用符・箇条書き・マークダウンを使わないこと
- "feat:" や "fix:" のような接頭辞を付けないこと
- 何をどう変更したかを具体的に書くこと

変更内容:
` + "```" + `
%s
` + "```" + `
`

// Build returns the complete instruction text for the given diff document.
func Build(diffText string) string {
	return fmt.Sprintf(instructionTemplate, diffText)
}
