package team

import "time"

// RequestType classifies a human assistance request.
type RequestType string

const (
	RequestCredentials RequestType = "credentials"
	RequestAccess      RequestType = "access"
	RequestTools       RequestType = "tools"
	RequestPlatform    RequestType = "platform"
	RequestApproval    RequestType = "approval"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestResolved RequestStatus = "resolved"
)

// AssistanceRequest is a blocking request for out-of-band human help. It is
// created pending and resolved at most once.
type AssistanceRequest struct {
	ID                   string        `json:"id"`
	WorkItemID           string        `json:"work_item_id"`
	EngineerID           string        `json:"engineer_id"`
	Type                 RequestType   `json:"request_type"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Urgency              Urgency       `json:"urgency"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	BlockedTasks         []string      `json:"blocked_tasks,omitempty"`
	SuggestedSolution    string        `json:"suggested_solution,omitempty"`
	Status               RequestStatus `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`

	ResolvedAt          *time.Time        `json:"resolved_at,omitempty"`
	HumanResponse       string            `json:"human_response,omitempty"`
	ProvidedCredentials map[string]string `json:"provided_credentials,omitempty"`
	ProvidedAccess      []string          `json:"provided_access,omitempty"`
	Notes               []string          `json:"notes,omitempty"`
}

// Pending reports whether the request still blocks work.
func (r AssistanceRequest) Pending() bool {
	return r.Status == RequestPending
}

// GapType classifies a capability gap.
type GapType string

const (
	GapMissingCredentials  GapType = "missing_credentials"
	GapInsufficientAccess  GapType = "insufficient_access"
	GapMissingTools        GapType = "missing_tools"
	GapPlatformUnavailable GapType = "platform_unavailable"
)

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// CapabilityGap is a deficiency inferred from an error message and the task
// that produced it.
type CapabilityGap struct {
	Type                   GapType `json:"gap_type"`
	ResourceName           string  `json:"resource_name"`
	Description            string  `json:"description"`
	Impact                 Impact  `json:"impact_level"`
	AlternativeAvailable   bool    `json:"alternative_available"`
	AlternativeDescription string  `json:"alternative_description,omitempty"`
}
