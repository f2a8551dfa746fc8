package tools

import (
	"strings"
	"testing"
)

func TestBoundUnderLimitUnchanged(t *testing.T) {
	in := "short output"
	if got := Bound(GrepToolName, in, 100); got != in {
		t.Fatalf("got %q", got)
	}
}

func TestBoundSearchKeepsHead(t *testing.T) {
	raw := "A" + strings.Repeat("m", 998) + "Z"
	got := Bound(GrepToolName, raw, 100)

	if len(got) > 100 {
		t.Fatalf("length = %d, want <= 100", len(got))
	}
	if got[0] != 'A' {
		t.Fatalf("first char = %q, want original head preserved", got[0])
	}
	if !strings.Contains(got, "chars omitted]") {
		t.Fatalf("missing omission marker: %q", got)
	}
	if !strings.HasSuffix(got, "Z") {
		t.Fatalf("tail not preserved: %q", got)
	}
}

func TestBoundExecuteKeepsTail(t *testing.T) {
	raw := strings.Repeat("log line\n", 500) + "FATAL: the real error"
	got := Bound(ShellToolName, raw, 200)

	if len(got) > 200 {
		t.Fatalf("length = %d, want <= 200", len(got))
	}
	if !strings.Contains(got, "the real error") {
		t.Fatalf("trailing error lost: %q", got)
	}

	// Command output retains more tail than head.
	marker := strings.Index(got, "[truncated")
	end := strings.Index(got, "omitted]")
	if marker < 0 || end < 0 {
		t.Fatalf("marker missing: %q", got)
	}
	head := marker
	tail := len(got) - end - len("omitted]")
	if tail <= head {
		t.Fatalf("head=%d tail=%d, want tail-heavy split", head, tail)
	}
}

func TestBoundDefaultRatios(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	got := Bound(WriteFileToolName, raw, 100)
	if len(got) > 100 {
		t.Fatalf("length = %d", len(got))
	}

	marker := strings.Index(got, "[truncated")
	end := strings.Index(got, "omitted]")
	head := marker
	tail := len(got) - end - len("omitted]")
	if head <= tail {
		t.Fatalf("head=%d tail=%d, want head-heavy split for non-search non-execute", head, tail)
	}
}

func TestBoundPerToolTableAndDefault(t *testing.T) {
	raw := strings.Repeat("x", DefaultResultLimit+5000)

	got := Bound("some_custom_tool", raw, 0)
	if len(got) > DefaultResultLimit {
		t.Fatalf("length = %d, want <= default %d", len(got), DefaultResultLimit)
	}

	got = Bound(GrepToolName, strings.Repeat("x", 25000), 0)
	if len(got) > resultLimits[GrepToolName] {
		t.Fatalf("length = %d, want <= table limit %d", len(got), resultLimits[GrepToolName])
	}
}

func TestBoundDeterministic(t *testing.T) {
	raw := strings.Repeat("abcdef", 300)
	first := Bound(GrepToolName, raw, 150)
	for i := 0; i < 5; i++ {
		if got := Bound(GrepToolName, raw, 150); got != first {
			t.Fatal("bounding is not deterministic")
		}
	}
}

func TestBoundTinyLimitStillCaps(t *testing.T) {
	raw := strings.Repeat("x", 500)
	got := Bound(GrepToolName, raw, 10)
	if len(got) > 10 {
		t.Fatalf("length = %d, want <= 10", len(got))
	}
}
