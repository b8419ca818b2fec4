package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/civicsignal/billwatch/internal/bill"
)

// BuildMarkdown renders one impact brief as a markdown document for
// distribution to the municipal audience.
func BuildMarkdown(b bill.Brief) string {
	a := b.Analysis
	var out strings.Builder

	fmt.Fprintf(&out, "# Impact Brief: %s\n\n", b.BillIdentifier)
	fmt.Fprintf(&out, "- Bill: %s — %s\n", b.BillIdentifier, b.BillTitle)
	fmt.Fprintf(&out, "- Brief ID: %s\n", b.BriefID)
	fmt.Fprintf(&out, "- Created: %s\n", b.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "- Urgency: **%s** · Recommended posture: **%s** · Confidence: %s\n\n",
		a.Urgency, a.WhatToDo, a.Confidence)

	fmt.Fprintf(&out, "## Summary\n\n%s\n\n", a.Summary)
	fmt.Fprintf(&out, "## Why It Matters\n\n%s\n\n", a.WhyItMatters)

	fmt.Fprintf(&out, "## Who Should Care\n\n")
	for _, r := range a.WhoShouldCare {
		fmt.Fprintf(&out, "- %s\n", r)
	}
	out.WriteString("\n")

	fmt.Fprintf(&out, "## Recommended Next Steps\n\n")
	for i, s := range a.RecommendedNextSteps {
		fmt.Fprintf(&out, "%d. %s\n", i+1, s)
	}
	out.WriteString("\n")

	fmt.Fprintf(&out, "## Classification\n\n")
	var tags []string
	for _, t := range a.ActionTypes {
		tags = append(tags, "`"+string(t)+"`")
	}
	fmt.Fprintf(&out, "- Action types: %s\n", strings.Join(tags, ", "))
	fmt.Fprintf(&out, "- Source hash: `%s`\n\n", b.SourceHash)

	if strings.TrimSpace(a.ModelNotes) != "" {
		fmt.Fprintf(&out, "## Notes\n\n%s\n\n", a.ModelNotes)
	}
	if len(a.Citations) > 0 {
		fmt.Fprintf(&out, "## Citations\n\n")
		for _, c := range a.Citations {
			fmt.Fprintf(&out, "- %s\n", c)
		}
		out.WriteString("\n")
	}
	return out.String()
}
