// Package emit carries pipeline observability events to logs, traces and
// in-memory history.
package emit

// Event messages emitted by the pipeline.
const (
	MsgNodeStart     = "node_start"
	MsgNodeEnd       = "node_end"
	MsgNodeError     = "node_error"
	MsgRouted        = "routed"
	MsgSuspended     = "run_suspended"
	MsgResumed       = "run_resumed"
	MsgRunCompleted  = "run_completed"
	MsgRunFailed     = "run_failed"
	MsgItemEscalated = "item_escalated"
)

// Event is one observation from a pipeline run.
type Event struct {
	RunID  string
	Step   int
	NodeID string
	Msg    string
	// Meta holds optional details such as "error", "latency_ms", "next",
	// "work_items" or "phase".
	Meta map[string]any
}

// Err returns the error text in Meta, if any.
func (e Event) Err() string {
	if s, ok := e.Meta["error"].(string); ok {
		return s
	}
	return ""
}
