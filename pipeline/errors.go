package pipeline

// Engine error codes.
const (
	CodeDuplicateNode      = "DUPLICATE_NODE"
	CodeNodeNotFound       = "NODE_NOT_FOUND"
	CodeMissingStore       = "MISSING_STORE"
	CodeNoStartNode        = "NO_START_NODE"
	CodeMaxStepsExceeded   = "MAX_STEPS_EXCEEDED"
	CodeBudgetExceeded     = "BUDGET_EXCEEDED"
	CodeNodeTimeout        = "NODE_TIMEOUT"
	CodeNodeFailed         = "NODE_FAILED"
	CodeStoreError         = "STORE_ERROR"
	CodeNoRoute            = "NO_ROUTE"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeNotSuspended       = "NOT_SUSPENDED"
)

// EngineError is returned for configuration and execution failures of the
// engine itself.
type EngineError struct {
	Code    string
	Message string
	NodeID  string
	Cause   error
}

func (e *EngineError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error { return e.Cause }

// Is matches any *EngineError with the same code, so callers can write
// errors.Is(err, &EngineError{Code: CodeNoRoute}).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}
