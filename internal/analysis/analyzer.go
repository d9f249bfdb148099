// Package analysis aggregates Execution Logger records into the fix-rate
// and pattern statistics the Admission Front-End's /logs/analysis route
// serves: log entries grouped into a map by category, then flattened to a
// sorted slice.
package analysis

import (
	"sort"

	"github.com/lumicore/sandrun/pkg/models"
)

// CategoryStats summarizes one failure category.
type CategoryStats struct {
	Category      models.LogCategory `json:"category"`
	FailureCount  int                `json:"failure_count"`
	FixedCount    int                `json:"fixed_count"`
	FixRate       float64            `json:"fix_rate"`
	TopMessages   []string           `json:"top_messages"`
}

// Report is the analyzer's output. It is computed on demand for each
// GET /logs/analysis request and is not written to disk.
type Report struct {
	TotalFailures int             `json:"total_failures"`
	TotalSuccesses int            `json:"total_successes"`
	OverallFixRate float64        `json:"overall_fix_rate"`
	Categories     []CategoryStats `json:"categories"`
	Context        string          `json:"context"`
}

// Analyze computes a Report from the full set of recent failure and
// success entries.
func Analyze(failures, successes []models.LogEntry) Report {
	type bucket struct {
		count    int
		fixed    int
		messages map[string]int
	}

	byCategory := make(map[models.LogCategory]*bucket)

	for _, f := range failures {
		b, ok := byCategory[f.Category]
		if !ok {
			b = &bucket{messages: make(map[string]int)}
			byCategory[f.Category] = b
		}
		b.count++
		if f.FixedBy != "" {
			b.fixed++
		}
		if f.ErrorMessage != "" {
			b.messages[f.ErrorMessage]++
		}
	}

	categories := make([]CategoryStats, 0, len(byCategory))
	for cat, b := range byCategory {
		stats := CategoryStats{
			Category:     cat,
			FailureCount: b.count,
			FixedCount:   b.fixed,
			TopMessages:  topMessages(b.messages, 5),
		}
		if b.count > 0 {
			stats.FixRate = float64(b.fixed) / float64(b.count)
		}
		categories = append(categories, stats)
	}

	sort.Slice(categories, func(i, j int) bool {
		return categories[i].FailureCount > categories[j].FailureCount
	})

	report := Report{
		TotalFailures:  len(failures),
		TotalSuccesses: len(successes),
		Categories:     categories,
	}
	if len(failures) > 0 {
		fixed := 0
		for _, f := range failures {
			if f.FixedBy != "" {
				fixed++
			}
		}
		report.OverallFixRate = float64(fixed) / float64(len(failures))
	}
	report.Context = buildContext(report)

	return report
}

func topMessages(counts map[string]int, limit int) []string {
	type pair struct {
		msg   string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for msg, count := range counts {
		pairs = append(pairs, pair{msg, count})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })

	out := make([]string, 0, limit)
	for i, p := range pairs {
		if i >= limit {
			break
		}
		out = append(out, p.msg)
	}
	return out
}

// buildContext renders a short natural-language summary intended to be fed
// back to an AI model as learning context for its next attempt.
func buildContext(report Report) string {
	if report.TotalFailures == 0 {
		return "No prior failures recorded."
	}

	out := ""
	for i, cat := range report.Categories {
		if i >= 3 {
			break
		}
		out += string(cat.Category) + " "
	}
	return "Most common failure categories: " + out
}
