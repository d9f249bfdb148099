// Package instrument implements Diagnostic Instrumentation: reversible,
// idempotent source rewriting that inserts trace lines into a guest
// program to help diagnose why an attempt failed.
package instrument

import (
	"bufio"
	"strings"

	"github.com/lumicore/sandrun/pkg/models"
)

// Sentinel is the marker token stamped on every injected line, making
// injection idempotent (Inject returns source that already contains it
// unchanged) and Strip exact (only lines carrying it are removed).
const Sentinel = "[AUTO-DEBUG]"

var anchorPrefixes = []string{"try:", "except", "import "}

// Inject walks source line by line, inserting a trace line after every
// recognized anchor: each line starting with "import ", "try:" or
// "except", and each line calling into the guest support module
// (sandrun_support.). Already injected source is returned unchanged.
func Inject(source string) (string, error) {
	if strings.Contains(source, Sentinel) {
		return source, nil
	}

	var out strings.Builder
	sc := bufio.NewScanner(strings.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		line := sc.Text()
		lineNo++
		out.WriteString(line)
		out.WriteByte('\n')

		trimmed := strings.TrimSpace(line)
		if isAnchor(trimmed) {
			out.WriteString(traceLine(lineNo, trimmed))
			out.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}

	return out.String(), nil
}

func isAnchor(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	for _, prefix := range anchorPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return strings.Contains(trimmed, "sandrun_support.")
}

func traceLine(lineNo int, anchor string) string {
	return "print(f\"# " + Sentinel + " after line " + itoa(lineNo) + ": " + escapeQuotes(anchor) + "\")"
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

// Strip removes every line containing the sentinel token, byte-for-byte
// restoring the non-injected source.
func Strip(source string) string {
	if !strings.Contains(source, Sentinel) {
		return source
	}

	var out strings.Builder
	sc := bufio.NewScanner(strings.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, Sentinel) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	return out.String()
}

// ShouldInject reports whether the next attempt in session should be
// instrumented: the caller opted in (inject_debug on the SubmitRequest) and
// the session's recent attempts show threshold or more consecutive
// failures. Never silent — optedIn gates the decision regardless of
// failure count.
func ShouldInject(session *models.Session, recentOutcomes []models.LogOutcome, threshold int, optedIn bool) bool {
	if !optedIn || session == nil {
		return false
	}

	consecutive := 0
	for i := len(recentOutcomes) - 1; i >= 0; i-- {
		if recentOutcomes[i] != models.OutcomeFailure {
			break
		}
		consecutive++
	}

	return consecutive >= threshold
}
