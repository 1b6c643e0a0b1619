package backend

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const maxContextLen = 120

// normalizeOutput drops trailing whitespace on each line and trailing blank lines,
// matching how judges usually compare program output.
func normalizeOutput(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// describeMismatch returns a content_mismatch DiffInfo for the first block of
// differing lines, or nil when the outputs match after normalization.
func describeMismatch(expected, actual string) *DiffInfo {
	exp := normalizeOutput(expected)
	act := normalizeOutput(actual)
	if exp == act {
		return nil
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(exp+"\n", act+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	line := 1
	var removed, inserted strings.Builder
	started := false
scan:
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if started {
				break scan
			}
			line += strings.Count(d.Text, "\n")
		case diffmatchpatch.DiffDelete:
			removed.WriteString(d.Text)
			started = true
		case diffmatchpatch.DiffInsert:
			inserted.WriteString(d.Text)
			started = true
		}
	}

	return &DiffInfo{
		Type:            DiffContentMismatch,
		Message:         fmt.Sprintf("output differs at line %d", line),
		ExpectedContext: contextLine(removed.String(), "<end of output>"),
		ActualContext:   contextLine(inserted.String(), "<no output>"),
	}
}

func contextLine(block, empty string) string {
	first, _, _ := strings.Cut(block, "\n")
	if first == "" && strings.TrimSpace(block) == "" {
		return empty
	}
	return truncate(first, maxContextLen)
}

// FormatDiff renders d as a one-line human readable message.
func FormatDiff(d *DiffInfo) string {
	if d == nil {
		return ""
	}
	switch d.Type {
	case DiffContentMismatch:
		msg := d.Message
		if msg == "" {
			msg = "output mismatch"
		}
		if d.ExpectedContext == "" && d.ActualContext == "" {
			return msg
		}
		return fmt.Sprintf("%s: expected %q, got %q", msg, d.ExpectedContext, d.ActualContext)
	default:
		return d.Message
	}
}
