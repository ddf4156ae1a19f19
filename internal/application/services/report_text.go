package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/handoff/backend/internal/domain/entities"
)

const contextSeparator = "\n---\n"

// CanonicalReportText is the document text embedded for a report.
// Field order is fixed so re-embedding the same report yields the same input.
func CanonicalReportText(r *entities.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary: %s\n", strings.TrimSpace(r.Summary))
	fmt.Fprintf(&b, "Consciousness: %s\n", consciousnessText(r.Consciousness))
	fmt.Fprintf(&b, "Pain: %s\n", painText(r.PainScore))
	fmt.Fprintf(&b, "Risk factors: %s\n", joinItems(r.RiskFactors))
	fmt.Fprintf(&b, "Access lines: %s\n", joinItems(r.AccessLines))
	fmt.Fprintf(&b, "Pending labs: %s\n", joinItems(r.PendingLabs))
	fmt.Fprintf(&b, "Action items: %s", joinItems(r.ActionItems))
	return b.String()
}

// AnswerContextBlock is one retrieved report handed to the answer model.
type AnswerContextBlock struct {
	Report     *entities.Report
	Similarity float64
}

// BuildAnswerContext renders blocks in the given order, numbered from 1.
func BuildAnswerContext(blocks []AnswerContextBlock) string {
	parts := make([]string, 0, len(blocks))
	for i, block := range blocks {
		r := block.Report
		var b strings.Builder
		fmt.Fprintf(&b, "[Report %d] (id %s)\n", i+1, r.ID)
		fmt.Fprintf(&b, "Shift: %s\n", r.ShiftType)
		fmt.Fprintf(&b, "Date: %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "Summary: %s\n", strings.TrimSpace(r.Summary))
		fmt.Fprintf(&b, "Pain: %s\n", painText(r.PainScore))
		fmt.Fprintf(&b, "Consciousness: %s\n", consciousnessText(r.Consciousness))
		fmt.Fprintf(&b, "Risk factors: %s\n", joinItems(r.RiskFactors))
		fmt.Fprintf(&b, "Action items: %s", joinItems(r.ActionItems))
		parts = append(parts, b.String())
	}
	return strings.Join(parts, contextSeparator)
}

func painText(score *int) string {
	if score == nil {
		return "not recorded"
	}
	return fmt.Sprintf("%d/10", *score)
}

func consciousnessText(level entities.ConsciousnessLevel) string {
	if level == "" {
		return string(entities.ConsciousnessUnknown)
	}
	return string(level)
}

func joinItems(items []string) string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "none"
	}
	return strings.Join(kept, "; ")
}
