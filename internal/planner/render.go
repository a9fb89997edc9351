package planner

import (
	"fmt"
	"strings"

	"organizer/internal/model"
	"organizer/internal/rules"
)

// RenderMarkdown produces the human-readable companion to a machine
// Plan artifact, including per-rule hit counts from the Rule engine.
func RenderMarkdown(plan *model.Plan, stats rules.Stats) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Plan %s\n\n", plan.ID)
	fmt.Fprintf(&sb, "Generated: %s\n", plan.Generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Base root: %s\n", plan.BaseRoot)
	fmt.Fprintf(&sb, "Copy mode: %t\n\n", plan.CopyMode)

	fmt.Fprintf(&sb, "## Summary\n\n")
	fmt.Fprintf(&sb, "- MOVE: %d\n", plan.Counts.Move)
	fmt.Fprintf(&sb, "- COPY: %d\n", plan.Counts.Copy)
	fmt.Fprintf(&sb, "- RENAME: %d\n", plan.Counts.Rename)
	fmt.Fprintf(&sb, "- SKIP: %d\n\n", plan.Counts.Skip)

	fmt.Fprintf(&sb, "## Rule engine\n\n")
	fmt.Fprintf(&sb, "- classified by rule: %d\n", stats.TotalClassified)
	fmt.Fprintf(&sb, "- left to classifier: %d\n", stats.TotalUnmatched)
	for ruleID, hits := range stats.RuleHits {
		fmt.Fprintf(&sb, "  - %s: %d\n", ruleID, hits)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "## Items\n\n")
	fmt.Fprintf(&sb, "| Action | Source | Destination | Confidence | Reason |\n")
	fmt.Fprintf(&sb, "|---|---|---|---|---|\n")
	for _, item := range plan.Items {
		dest := item.Destination
		if item.Action == model.ActionSkip {
			dest = "-"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %s |\n", item.Action, item.Source, dest, item.Confidence, item.Reason)
	}

	return sb.String()
}
