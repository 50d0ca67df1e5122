package main

import (
	"fmt"
	"strings"

	"github.com/dshills/devteam/assist"
	"github.com/dshills/devteam/evaluation"
	"github.com/dshills/devteam/team"
)

const skip = "skip"

var decisionChoices = []choice{
	{value: string(team.DecisionApprove), label: "Approve", help: "accept the work as it stands"},
	{value: string(team.DecisionRedirect), label: "Redirect", help: "send it back to development with guidance"},
	{value: string(team.DecisionReject), label: "Reject", help: "fail the work item"},
	{value: skip, label: "Skip", help: "decide later"},
}

// collectDecisions asks for a verdict on every item waiting at human
// escalation. Skipped items are left out of the result.
func collectDecisions(p prompter, s team.State) (map[string]team.HumanDecision, error) {
	decisions := make(map[string]team.HumanDecision)
	for _, id := range evaluation.AwaitingDecision(s) {
		i := team.IndexByID(s.EvaluationQueue, id)
		if i < 0 {
			continue
		}
		item := s.EvaluationQueue[i]
		verdict, err := p.Choose("Decision needed: "+item.Title, describeEscalation(item), decisionChoices)
		if err != nil {
			return nil, err
		}
		if verdict == skip || verdict == "" {
			continue
		}
		feedback, err := p.Text("Feedback for "+item.ID, "", "optional guidance for the team")
		if err != nil {
			return nil, err
		}
		decisions[id] = team.HumanDecision{Decision: team.Decision(verdict), Feedback: feedback}
	}
	return decisions, nil
}

func describeEscalation(w team.WorkItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", w.ID, w.Description)
	if l := w.EvaluationLoop; l != nil {
		fmt.Fprintf(&b, "loops %d/%d, escalations %d/%d\n", l.LoopCount, l.MaxLoops, l.EscalationCount, l.MaxEscalations)
		for _, f := range lastFeedback(l.Feedback, 3) {
			fmt.Fprintf(&b, "- %s: %s\n", f.Stage, preview(f.Feedback, 100))
		}
	}
	if w.Result != "" {
		fmt.Fprintf(&b, "result: %s", preview(w.Result, 200))
	}
	return strings.TrimRight(b.String(), "\n")
}

func lastFeedback(fb []team.FeedbackRecord, n int) []team.FeedbackRecord {
	if len(fb) <= n {
		return fb
	}
	return fb[len(fb)-n:]
}

// collectResolutions asks for an answer to every pending assistance
// request. An empty response leaves the request pending.
func collectResolutions(p prompter, s team.State) (map[string]assist.Resolution, error) {
	resolutions := make(map[string]assist.Resolution)
	for _, r := range assist.Pending(s.AssistanceRequests) {
		response, err := p.Text("Assistance: "+r.Title, assist.FormatRequest(r), "response, or empty to leave pending")
		if err != nil {
			return nil, err
		}
		if response == "" {
			continue
		}
		res := assist.Resolution{HumanResponse: response}
		switch r.Type {
		case team.RequestCredentials:
			raw, err := p.Text("Credentials for "+r.ID, "", "KEY=value, comma separated")
			if err != nil {
				return nil, err
			}
			res.ProvidedCredentials = parsePairs(raw)
		case team.RequestAccess:
			raw, err := p.Text("Access granted for "+r.ID, "", "resources, comma separated")
			if err != nil {
				return nil, err
			}
			res.ProvidedAccess = splitList(raw)
		}
		resolutions[r.ID] = res
	}
	return resolutions, nil
}

func parsePairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
