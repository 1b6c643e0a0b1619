package backend

import "testing"

func TestDescribeMismatch(t *testing.T) {
	if d := describeMismatch("1 2\n3\n", "1 2  \r\n3\n\n"); d != nil {
		t.Fatalf("expected match after normalization, got %+v", d)
	}

	d := describeMismatch("a\nb\nc", "a\nb\nx")
	if d == nil {
		t.Fatalf("expected mismatch")
	}
	if d.Message != "output differs at line 3" || d.ExpectedContext != "c" || d.ActualContext != "x" {
		t.Fatalf("unexpected diff %+v", d)
	}

	d = describeMismatch("a\nb", "a")
	if d == nil || d.ExpectedContext != "b" || d.ActualContext != "<no output>" {
		t.Fatalf("unexpected diff for missing line %+v", d)
	}
}

func TestFormatDiff(t *testing.T) {
	got := FormatDiff(&DiffInfo{Type: DiffContentMismatch, Message: "output differs at line 2", ExpectedContext: "4", ActualContext: "5"})
	want := `output differs at line 2: expected "4", got "5"`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if FormatDiff(&DiffInfo{Type: DiffRuntime, Message: "segfault"}) != "segfault" {
		t.Fatalf("runtime diff should use message")
	}
	if FormatDiff(nil) != "" {
		t.Fatalf("nil diff should format empty")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	if got := truncate("ab错误", 3); got != "ab..." {
		t.Fatalf("expected cut before the multibyte rune, got %q", got)
	}
	if got := truncate("ab错误", 5); got != "ab错..." {
		t.Fatalf("expected whole first rune, got %q", got)
	}
	if got := truncate("short", 16); got != "short" {
		t.Fatalf("short input should be unchanged, got %q", got)
	}
}
