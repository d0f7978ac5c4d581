package model

import (
	"fmt"
	"sort"
	"strings"
)

// IssueKind classifies a non-fatal, per-record problem.
type IssueKind string

const (
	IssueMalformedRecord       IssueKind = "MALFORMED_RECORD"
	IssueUnknownOccurrenceCode IssueKind = "UNKNOWN_OCCURRENCE_CODE"
	IssueUnmatchedSettlement   IssueKind = "UNMATCHED_SETTLEMENT"
	IssueConflictingTransition IssueKind = "CONFLICTING_TRANSITION"
	IssueEntryRejected         IssueKind = "ENTRY_REJECTED"
	IssueEventFailed           IssueKind = "EVENT_FAILED"
)

// Issue is a problem with one record of a batch. Issues are collected and
// reported next to the successful results; they never abort the batch.
type Issue struct {
	Kind          IssueKind
	Line          int // 1-based line in the source file, 0 if unknown
	ControlNumber string
	Detail        string
}

func (i Issue) Error() string {
	var b strings.Builder
	b.WriteString(string(i.Kind))
	if i.Line > 0 {
		fmt.Fprintf(&b, " line %d", i.Line)
	}
	if i.ControlNumber != "" {
		fmt.Fprintf(&b, " [%s]", i.ControlNumber)
	}
	if i.Detail != "" {
		b.WriteString(": ")
		b.WriteString(i.Detail)
	}
	return b.String()
}

// CountIssues tallies issues by kind.
func CountIssues(issues []Issue) map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, is := range issues {
		counts[is.Kind]++
	}
	return counts
}

// SummarizeIssues renders counts as "KIND=n" pairs sorted by kind, or "" when
// there are none.
func SummarizeIssues(issues []Issue) string {
	counts := CountIssues(issues)
	if len(counts) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[IssueKind(k)])
	}
	return strings.Join(parts, " ")
}
