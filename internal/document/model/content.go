package model

import (
	"encoding/json"
	"strings"
)

// The editor stores content as a Quill delta: {"ops":[{"insert": ...}, ...]}.
// The store treats it as opaque; these helpers flatten it to plain text for
// the external mirror push, the AI prompt context, and listing snippets.

type quillOp struct {
	Insert any `json:"insert"`
}

type quillDelta struct {
	Ops []quillOp `json:"ops"`
}

// TextFromContent flattens an editor content blob to plain text. Non-text
// inserts (images, embeds) are skipped. Unparseable content yields "".
func TextFromContent(content []byte) string {
	var delta quillDelta
	if err := json.Unmarshal(content, &delta); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, op := range delta.Ops {
		if str, ok := op.Insert.(string); ok {
			sb.WriteString(str)
		}
	}
	return strings.TrimSpace(sb.String())
}

// Snippet returns the first line-ish 100 characters of the content, for the
// document picker. Truncation counts runes so multibyte text is never cut
// mid-character.
func Snippet(content []byte) string {
	res := strings.ReplaceAll(TextFromContent(content), "\n", " ")
	runes := []rune(res)
	if len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return res
}
