package assist

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dshills/devteam/team"
)

type gapPattern struct {
	gap       team.GapType
	phrases   []string
	request   team.RequestType
	alternate string
}

// Checked in order; at most one gap per type is reported.
var gapPatterns = []gapPattern{
	{
		gap:     team.GapMissingCredentials,
		phrases: []string{"authentication failed", "unauthorized", "invalid credentials", "login required", "api key", "token expired"},
		request: team.RequestCredentials,
	},
	{
		gap:     team.GapInsufficientAccess,
		phrases: []string{"permission denied", "forbidden", "insufficient privileges", "admin access required", "not authorized", "access denied"},
		request: team.RequestAccess,
	},
	{
		gap:       team.GapMissingTools,
		phrases:   []string{"command not found", "module not found", "tool not available", "package not installed", "dependency missing"},
		request:   team.RequestTools,
		alternate: "Install the missing tool or substitute an equivalent one available in the environment.",
	},
	{
		gap:       team.GapPlatformUnavailable,
		phrases:   []string{"service unavailable", "connection refused", "endpoint not found", "server not responding", "network unreachable"},
		request:   team.RequestPlatform,
		alternate: "Retry later or target an alternative endpoint or environment.",
	},
}

var highImpactTerms = []string{"critical", "production", "security", "deployment"}

// IdentifyGaps classifies errorMessage into capability gaps by
// case-insensitive phrase matching. An empty result means no structured
// explanation was found, not that nothing is wrong.
func IdentifyGaps(errorMessage, taskDescription string) []team.CapabilityGap {
	lower := strings.ToLower(errorMessage)
	impact := impactFor(taskDescription)

	var gaps []team.CapabilityGap
	for _, p := range gapPatterns {
		for _, phrase := range p.phrases {
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				continue
			}
			gaps = append(gaps, team.CapabilityGap{
				Type:                   p.gap,
				ResourceName:           resourceName(errorMessage, lower, idx, idx+len(phrase)),
				Description:            fmt.Sprintf("Detected %s: %s", strings.ReplaceAll(string(p.gap), "_", " "), phrase),
				Impact:                 impact,
				AlternativeAvailable:   p.alternate != "",
				AlternativeDescription: p.alternate,
			})
			break
		}
	}
	return gaps
}

// RequestTypeFor maps a gap to the kind of help that closes it.
func RequestTypeFor(gap team.CapabilityGap) team.RequestType {
	for _, p := range gapPatterns {
		if p.gap == gap.Type {
			return p.request
		}
	}
	return team.RequestApproval
}

// UrgencyFor maps gap impact to request urgency.
func UrgencyFor(gap team.CapabilityGap) team.Urgency {
	switch gap.Impact {
	case team.ImpactHigh:
		return team.UrgencyHigh
	case team.ImpactLow:
		return team.UrgencyLow
	default:
		return team.UrgencyMedium
	}
}

func impactFor(taskDescription string) team.Impact {
	lower := strings.ToLower(taskDescription)
	for _, term := range highImpactTerms {
		if strings.Contains(lower, term) {
			return team.ImpactHigh
		}
	}
	return team.ImpactMedium
}

// resourceName picks the word after the matched phrase, or the one before
// it when the phrase ends the message.
func resourceName(msg, lower string, start, end int) string {
	src := msg
	if len(lower) != len(msg) {
		src = lower
	}
	if words := strings.FieldsFunc(src[end:], wordBreak); len(words) > 0 {
		return words[0]
	}
	if words := strings.FieldsFunc(src[:start], wordBreak); len(words) > 0 {
		return words[len(words)-1]
	}
	return "unknown_resource"
}

func wordBreak(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return false
	}
	return !strings.ContainsRune("-_./@", r)
}
