package sandbox

import (
	"strings"
	"testing"
)

func TestTailTruncate(t *testing.T) {
	s := "0123456789"

	got, cut := TailTruncate(s, 4)
	if got != "6789" || !cut {
		t.Errorf("TailTruncate() = (%q, %v), want (%q, true)", got, cut, "6789")
	}

	got, cut = TailTruncate(s, 10)
	if got != s || cut {
		t.Errorf("TailTruncate() = (%q, %v), want unchanged", got, cut)
	}

	got, cut = TailTruncate(s, 100)
	if got != s || cut {
		t.Errorf("TailTruncate() = (%q, %v), want unchanged", got, cut)
	}
}

func TestTailTruncateIdempotent(t *testing.T) {
	s := strings.Repeat("x", 1000) + "tail"

	once, cut := TailTruncate(s, 100)
	if !cut {
		t.Fatal("first truncation did not cut")
	}
	twice, cut := TailTruncate(once, 100)
	if cut || twice != once {
		t.Errorf("second truncation changed the string: cut=%v", cut)
	}
	if !strings.HasSuffix(once, "tail") {
		t.Errorf("TailTruncate() dropped the tail: %q", once[len(once)-10:])
	}
}

func TestObservationCharBudget(t *testing.T) {
	if got := ObservationCharBudget(4000); got != 16000 {
		t.Errorf("ObservationCharBudget(4000) = %d, want 16000", got)
	}
	if got := ObservationCharBudget(0); got != DefaultMaxObservationTokens*CharsPerToken {
		t.Errorf("ObservationCharBudget(0) = %d, want default budget", got)
	}
}

func TestTruncateResult(t *testing.T) {
	res := &ExecResult{
		Stdout: strings.Repeat("o", 900),
		Stderr: strings.Repeat("e", 100),
	}
	TruncateResult(res, 500)

	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if got := len(res.Stdout) + len(res.Stderr); got > 500 {
		t.Errorf("combined output = %d chars, want <= 500", got)
	}
	if len(res.Stdout) != 450 || len(res.Stderr) != 50 {
		t.Errorf("budget split = (%d, %d), want (450, 50)", len(res.Stdout), len(res.Stderr))
	}
}

func TestTruncateResultLopsidedStreams(t *testing.T) {
	// A stream small enough that its proportional share floors to zero
	// must not slip through untrimmed and push the combined output over
	// the budget.
	res := &ExecResult{Stdout: "x", Stderr: strings.Repeat("e", 1000)}
	TruncateResult(res, 500)

	if got := len(res.Stdout) + len(res.Stderr); got > 500 {
		t.Errorf("combined output = %d chars, want <= 500", got)
	}
	if res.Stdout != "x" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "x")
	}
	if len(res.Stderr) != 499 {
		t.Errorf("len(Stderr) = %d, want 499", len(res.Stderr))
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}

	// mirrored split
	res = &ExecResult{Stdout: strings.Repeat("o", 1000), Stderr: "x"}
	TruncateResult(res, 500)

	if got := len(res.Stdout) + len(res.Stderr); got > 500 {
		t.Errorf("combined output = %d chars, want <= 500", got)
	}
	if res.Stderr != "x" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "x")
	}
}

func TestTruncateResultWithinBudget(t *testing.T) {
	res := &ExecResult{Stdout: "ok", Stderr: ""}
	TruncateResult(res, 500)

	if res.Truncated {
		t.Error("Truncated = true for output within budget")
	}
	if res.Stdout != "ok" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "ok")
	}
}

func TestTruncateResultKeepsTimeoutFlag(t *testing.T) {
	res := &ExecResult{ExitCode: TimeoutExitCode, Stdout: "short", Truncated: true}
	TruncateResult(res, 500)

	if !res.Truncated {
		t.Error("Truncated flag was cleared")
	}
}

func TestTruncateObservation(t *testing.T) {
	s := strings.Repeat("a", 50)

	if got := TruncateObservation(s, 100); got != s {
		t.Errorf("TruncateObservation() altered fitting input")
	}

	got := TruncateObservation(s, 10)
	if !strings.Contains(got, "truncated") {
		t.Errorf("TruncateObservation() = %q, missing truncation notice", got)
	}
	if !strings.HasSuffix(got, strings.Repeat("a", 10)) {
		t.Errorf("TruncateObservation() = %q, did not keep the tail", got)
	}
}
