// Package team holds the shared data model of the dev-team pipeline: work
// items, their embedded evaluation ladder state, role assignments, the
// complexity assessment shape, human assistance records, and the pipeline
// State snapshot with its reducer.
//
// Every other package imports team; team imports nothing from the module.
package team

// Status is the lifecycle status of a WorkItem. A status always agrees with
// the queue that holds the item (see CheckInvariants).
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusEvaluation Status = "evaluation"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// WorkItem is a unit of work tracked through assignment, execution and
// evaluation.
type WorkItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Priority orders work; higher is more urgent.
	Priority  int    `json:"priority"`
	CreatedBy string `json:"created_by"`
	Status    Status `json:"status"`

	AssignedTo *Assignment `json:"assigned_to,omitempty"`
	Result     string      `json:"result,omitempty"`

	// EvaluationLoop is nil until the item enters evaluation.
	EvaluationLoop *EvaluationLoop `json:"evaluation_loop,omitempty"`

	// IterationBatch is the planning batch the item was placed in.
	IterationBatch int `json:"iteration_batch"`
}

// NewWorkItem returns a pending work item.
func NewWorkItem(id, title, description string, priority int, createdBy string) WorkItem {
	return WorkItem{
		ID:          id,
		Title:       title,
		Description: description,
		Priority:    priority,
		CreatedBy:   createdBy,
		Status:      StatusPending,
	}
}

// Clone returns a copy of the item that shares no mutable memory with w.
func (w WorkItem) Clone() WorkItem {
	out := w
	if w.AssignedTo != nil {
		a := *w.AssignedTo
		out.AssignedTo = &a
	}
	if w.EvaluationLoop != nil {
		out.EvaluationLoop = w.EvaluationLoop.Clone()
	}
	return out
}

// AssignedKind reports the role kind the item is assigned to, or "" when
// unassigned.
func (w WorkItem) AssignedKind() RoleKind {
	if w.AssignedTo == nil {
		return ""
	}
	return w.AssignedTo.Kind
}

// Stage returns the current evaluation stage, or "" when the item has not
// entered evaluation.
func (w WorkItem) Stage() Stage {
	if w.EvaluationLoop == nil {
		return ""
	}
	return w.EvaluationLoop.Stage
}
