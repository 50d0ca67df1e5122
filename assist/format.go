package assist

import (
	"fmt"
	"strings"

	"github.com/dshills/devteam/team"
)

// FormatRequest renders a request for an operator.
func FormatRequest(r team.AssistanceRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s)\n", strings.ToUpper(string(r.Urgency)), r.Title, r.Type)
	fmt.Fprintf(&b, "   Id: %s\n", r.ID)
	fmt.Fprintf(&b, "   Engineer: %s\n", r.EngineerID)
	if r.WorkItemID != "" {
		fmt.Fprintf(&b, "   Work item: %s\n", r.WorkItemID)
	}
	fmt.Fprintf(&b, "   Description: %s\n", r.Description)
	if len(r.RequiredCapabilities) > 0 {
		fmt.Fprintf(&b, "   Required: %s\n", strings.Join(r.RequiredCapabilities, ", "))
	}
	if len(r.BlockedTasks) > 0 {
		fmt.Fprintf(&b, "   Blocking: %s\n", strings.Join(r.BlockedTasks, ", "))
	}
	if r.SuggestedSolution != "" {
		fmt.Fprintf(&b, "   Suggestion: %s\n", r.SuggestedSolution)
	}
	if !r.Pending() {
		fmt.Fprintf(&b, "   Resolved: %s\n", r.HumanResponse)
	}
	return b.String()
}

// FormatGaps renders a numbered summary of gaps.
func FormatGaps(gaps []team.CapabilityGap) string {
	if len(gaps) == 0 {
		return "No capability gaps identified."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Identified %d capability gap(s):\n", len(gaps))
	for i, g := range gaps {
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, strings.ToUpper(string(g.Impact)), strings.ReplaceAll(string(g.Type), "_", " "), g.ResourceName)
		fmt.Fprintf(&b, "   Description: %s\n", g.Description)
		switch {
		case g.AlternativeAvailable && g.AlternativeDescription != "":
			fmt.Fprintf(&b, "   Alternative: %s\n", g.AlternativeDescription)
		case g.AlternativeAvailable:
			b.WriteString("   Alternative: may be available\n")
		}
	}
	return b.String()
}

// RequestForGap builds the request spec raised for gap on a failed item.
func RequestForGap(gap team.CapabilityGap, item team.WorkItem, engineerID string) RequestSpec {
	spec := RequestSpec{
		WorkItemID:           item.ID,
		EngineerID:           engineerID,
		Type:                 RequestTypeFor(gap),
		Title:                fmt.Sprintf("%s blocks %s", strings.ReplaceAll(string(gap.Type), "_", " "), item.Title),
		Description:          gap.Description,
		Urgency:              UrgencyFor(gap),
		RequiredCapabilities: []string{gap.ResourceName},
		BlockedTasks:         []string{item.ID},
	}
	if gap.AlternativeAvailable {
		spec.SuggestedSolution = gap.AlternativeDescription
	}
	return spec
}
