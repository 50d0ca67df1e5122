package roles

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devteam/assist"
	"github.com/dshills/devteam/team"
)

var failureTerms = []string{"error", "failed", "unauthorized", "access denied"}

// NeedsGapAnalysis returns failed items whose result reads like an error
// and that have no assistance request yet.
func NeedsGapAnalysis(s team.State) []team.WorkItem {
	requested := make(map[string]bool, len(s.AssistanceRequests))
	for _, r := range s.AssistanceRequests {
		requested[r.WorkItemID] = true
	}
	var out []team.WorkItem
	for _, w := range s.FailedWork {
		if requested[w.ID] || !mentionsFailure(w.Result) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func mentionsFailure(result string) bool {
	lower := strings.ToLower(result)
	for _, t := range failureTerms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// CapabilityGapAnalyzer classifies the failures of failed work and raises
// one assistance request per gap. A failure that matches no gap pattern
// still gets an approval request so a human looks at it once.
func CapabilityGapAnalyzer(opts ...Option) Func {
	o := buildOptions(opts)
	return func(_ context.Context, s team.State) team.Delta {
		items := NeedsGapAnalysis(s)
		if len(items) == 0 {
			return team.Delta{}
		}

		requests := append([]team.AssistanceRequest{}, s.AssistanceRequests...)
		var msgs []string
		for _, w := range items {
			engineer := w.CreatedBy
			if w.AssignedTo != nil {
				engineer = w.AssignedTo.String()
			}
			gaps := assist.IdentifyGaps(w.Result, w.Description)
			msgs = append(msgs, fmt.Sprintf("%s: %s", w.ID, assist.FormatGaps(gaps)))
			if len(gaps) == 0 {
				requests = append(requests, assist.CreateRequest(assist.RequestSpec{
					WorkItemID:   w.ID,
					EngineerID:   engineer,
					Type:         team.RequestApproval,
					Title:        fmt.Sprintf("Unclassified failure in '%s'", w.Title),
					Description:  w.Result,
					BlockedTasks: []string{w.ID},
				}))
				continue
			}
			for _, g := range gaps {
				requests = append(requests, assist.CreateRequest(assist.RequestForGap(g, w, engineer)))
			}
			o.logger.Info("capability gaps identified", zap.String("work_item", w.ID), zap.Int("gaps", len(gaps)))
		}
		return team.Delta{
			AssistanceRequests: requests,
			Phase:              team.PhaseHumanAssistance,
			Messages:           msgs,
		}
	}
}

// HumanAssistanceCoordinator lists the pending assistance requests for an
// operator. The pipeline suspends after it until they are resolved.
func HumanAssistanceCoordinator(opts ...Option) Func {
	o := buildOptions(opts)
	return func(_ context.Context, s team.State) team.Delta {
		pending := assist.Pending(s.AssistanceRequests)
		if len(pending) == 0 {
			return team.Delta{Phase: team.PhaseExecution}
		}
		msgs := make([]string, 0, len(pending)+1)
		msgs = append(msgs, fmt.Sprintf("%d assistance request(s) awaiting human response", len(pending)))
		for _, r := range pending {
			msgs = append(msgs, assist.FormatRequest(r))
		}
		o.logger.Info("awaiting human assistance", zap.Int("pending", len(pending)))
		return team.Delta{Phase: team.PhaseHumanAssistance, Messages: msgs}
	}
}
