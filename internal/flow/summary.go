package flow

import (
	"fmt"
	"strings"

	"github.com/NovaFertility/IntakeFlow/internal/catalog"
	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// Summary fallback and closing copy.
const (
	summaryFallback = "N/A"
	summaryHeader   = "Here's what I have so far:"
	summaryFooter   = "Is everything correct? (yes/no)"
)

// BuildSummary derives the deterministic recap of key answers shown before
// submission. Each variant field resolves from the answer set, option values
// map to their display labels, and absent fields fall back to "N/A".
func BuildSummary(variant *catalog.Variant, answers models.AnswerSet) string {
	lines := make([]string, 0, len(variant.SummaryFields)+2)
	lines = append(lines, summaryHeader)
	for _, field := range variant.SummaryFields {
		value := answers.GetString(field.QuestionID)
		if value != "" && field.ResolveOption {
			if q, ok := variant.Question(field.QuestionID); ok {
				value = q.OptionLabel(value)
			}
		}
		if value == "" {
			value = summaryFallback
		}
		lines = append(lines, fmt.Sprintf("%s: %s", field.Label, value))
	}
	lines = append(lines, summaryFooter)
	return strings.Join(lines, "\n")
}

// MergeSnapshotAnswers folds a persisted snapshot into the in-memory answer
// set. Snapshot values win field-by-field; in-memory values survive for fields
// the snapshot lacks. Used when a session resumes after a reload with a more
// complete durable copy than the fresh engine holds.
func MergeSnapshotAnswers(memory, snapshot models.AnswerSet) models.AnswerSet {
	merged := memory.Clone()
	for id, value := range snapshot {
		if value != nil {
			merged[id] = value
		}
	}
	return merged
}
