package verdict

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"campusjudge/internal/judge/backend"
)

const maxMessageLen = 2048

func compileMessage(c *backend.CaseResult) string {
	msg := strings.TrimSpace(c.Message)
	if msg == "" && c.Diff != nil {
		msg = strings.TrimSpace(c.Diff.Message)
	}
	if msg == "" {
		msg = "compilation failed"
	}
	return limit("compilation error: " + msg)
}

// caseMessage describes a failing case. Hidden cases never expose their data.
func caseMessage(c *backend.CaseResult) string {
	label := fmt.Sprintf("test case %d", c.Index+1)
	if c.Hidden {
		label += " (hidden)"
	}

	if c.Hidden && (c.Category == backend.CategoryWrongAnswer || (c.Diff != nil && c.Diff.Type == backend.DiffContentMismatch)) {
		return label + ": wrong answer"
	}

	detail := ""
	if c.Diff != nil {
		detail = backend.FormatDiff(c.Diff)
	}
	if detail == "" {
		detail = strings.TrimSpace(c.Message)
	}
	if detail == "" {
		detail = strings.ReplaceAll(string(c.Category), "_", " ")
	}
	return limit(label + ": " + detail)
}

// limit caps s at maxMessageLen bytes without splitting a UTF-8 sequence.
func limit(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	n := maxMessageLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
