// Package assist manages blocking requests for human help and infers
// capability gaps from failed work.
package assist

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/devteam/team"
)

// ErrAlreadyResolved is returned when resolving a request twice.
var ErrAlreadyResolved = errors.New("assistance request already resolved")

// RequestSpec describes a new assistance request.
type RequestSpec struct {
	WorkItemID           string
	EngineerID           string
	Type                 team.RequestType
	Title                string
	Description          string
	Urgency              team.Urgency
	RequiredCapabilities []string
	BlockedTasks         []string
	SuggestedSolution    string
}

// Resolution is the human answer to a request.
type Resolution struct {
	HumanResponse       string
	ProvidedCredentials map[string]string
	ProvidedAccess      []string
	Notes               []string
}

// CreateRequest returns a pending request with a fresh id. Urgency defaults
// to medium.
func CreateRequest(spec RequestSpec) team.AssistanceRequest {
	urgency := spec.Urgency
	if urgency == "" {
		urgency = team.UrgencyMedium
	}
	return team.AssistanceRequest{
		ID:                   uuid.NewString(),
		WorkItemID:           spec.WorkItemID,
		EngineerID:           spec.EngineerID,
		Type:                 spec.Type,
		Title:                spec.Title,
		Description:          spec.Description,
		Urgency:              urgency,
		RequiredCapabilities: slices.Clone(spec.RequiredCapabilities),
		BlockedTasks:         slices.Clone(spec.BlockedTasks),
		SuggestedSolution:    spec.SuggestedSolution,
		Status:               team.RequestPending,
		CreatedAt:            time.Now(),
	}
}

// Resolve returns req marked resolved with res applied. Provided
// credentials, access and notes are merged into whatever the request
// already carries. A resolved request cannot be resolved again.
func Resolve(req team.AssistanceRequest, res Resolution) (team.AssistanceRequest, error) {
	if req.Status == team.RequestResolved {
		return req, fmt.Errorf("request %s: %w", req.ID, ErrAlreadyResolved)
	}

	now := time.Now()
	req.Status = team.RequestResolved
	req.ResolvedAt = &now
	req.HumanResponse = res.HumanResponse

	creds := maps.Clone(req.ProvidedCredentials)
	if creds == nil {
		creds = make(map[string]string, len(res.ProvidedCredentials))
	}
	maps.Copy(creds, res.ProvidedCredentials)
	req.ProvidedCredentials = creds

	req.ProvidedAccess = append(slices.Clone(req.ProvidedAccess), res.ProvidedAccess...)
	req.Notes = append(slices.Clone(req.Notes), res.Notes...)
	return req, nil
}

// ResolveByID resolves the request with the given id inside requests and
// returns the updated list.
func ResolveByID(requests []team.AssistanceRequest, id string, res Resolution) ([]team.AssistanceRequest, error) {
	out := slices.Clone(requests)
	for i, r := range out {
		if r.ID != id {
			continue
		}
		resolved, err := Resolve(r, res)
		if err != nil {
			return requests, err
		}
		out[i] = resolved
		return out, nil
	}
	return requests, fmt.Errorf("assistance request %s not found", id)
}

// Pending returns the requests still waiting for a human.
func Pending(requests []team.AssistanceRequest) []team.AssistanceRequest {
	var out []team.AssistanceRequest
	for _, r := range requests {
		if r.Pending() {
			out = append(out, r)
		}
	}
	return out
}

// ForEngineer returns every request raised by engineerID.
func ForEngineer(requests []team.AssistanceRequest, engineerID string) []team.AssistanceRequest {
	var out []team.AssistanceRequest
	for _, r := range requests {
		if r.EngineerID == engineerID {
			out = append(out, r)
		}
	}
	return out
}

// InterventionNeeded reports whether any request is pending.
func InterventionNeeded(requests []team.AssistanceRequest) bool {
	return slices.ContainsFunc(requests, team.AssistanceRequest.Pending)
}
