package sandbox

import "fmt"

// Truncation defaults. Observations are budgeted in model tokens; the
// conversion to characters is a fixed 4:1 estimate.
const (
	CharsPerToken               = 4
	DefaultMaxObservationTokens = 4000
)

// truncationNotice is prepended to truncated output so the model knows
// earlier content was dropped.
const truncationNotice = "[output truncated, showing last %d chars]\n"

// ObservationCharBudget converts a token budget to a character budget.
func ObservationCharBudget(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxObservationTokens
	}
	return maxTokens * CharsPerToken
}

// TailTruncate trims s to at most maxChars characters, keeping the tail.
// The most recent output carries the error messages and final results, so
// that is the part worth preserving. Idempotent: truncating an
// already-fitting string returns it unchanged.
func TailTruncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(s) <= maxChars {
		return s, false
	}
	return s[len(s)-maxChars:], true
}

// TruncateResult applies the tail budget to a result's combined output,
// splitting the budget across stdout and stderr in proportion to their
// sizes. Sets Truncated when anything was dropped; an already-truncated
// result stays marked.
func TruncateResult(res *ExecResult, maxChars int) {
	if res == nil || maxChars <= 0 {
		return
	}
	total := len(res.Stdout) + len(res.Stderr)
	if total <= maxChars {
		return
	}

	stdoutBudget := maxChars * len(res.Stdout) / total
	stderrBudget := maxChars - stdoutBudget

	// A tiny stream whose proportional share floors to zero still gets
	// one char, taken back from the other stream, so the combined length
	// never exceeds maxChars.
	if len(res.Stdout) > 0 && stdoutBudget == 0 && stderrBudget > 1 {
		stdoutBudget, stderrBudget = 1, stderrBudget-1
	}
	if len(res.Stderr) > 0 && stderrBudget == 0 && stdoutBudget > 1 {
		stdoutBudget, stderrBudget = stdoutBudget-1, 1
	}

	res.Stdout = tailClamp(res.Stdout, stdoutBudget)
	res.Stderr = tailClamp(res.Stderr, stderrBudget)
	res.Truncated = true
}

// tailClamp trims s to at most budget characters keeping the tail. A
// zero budget means zero chars, unlike TailTruncate where it means
// unlimited.
func tailClamp(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if len(s) <= budget {
		return s
	}
	return s[len(s)-budget:]
}

// TruncateObservation trims a tool observation string to the budget,
// labeling the cut so the model knows content was dropped.
func TruncateObservation(s string, maxChars int) string {
	out, cut := TailTruncate(s, maxChars)
	if !cut {
		return out
	}
	return fmt.Sprintf(truncationNotice, maxChars) + out
}
