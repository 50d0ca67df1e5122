package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSteps bounds a run that sets no limit of its own.
const DefaultMaxSteps = 1000

type options struct {
	maxSteps       int
	wallClock      time.Duration
	nodeTimeout    time.Duration
	nodeTimeouts   map[string]time.Duration
	checkInvariant bool
	logger         *zap.Logger
	metrics        *Metrics
}

// Option configures an Engine.
type Option func(*options)

// WithMaxSteps caps the node executions of a single Run or Resume call.
// Zero or less disables the cap.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithRunWallClockBudget caps the wall-clock time of a single Run or
// Resume call. Nodes see the budget as a context deadline.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(o *options) { o.wallClock = d }
}

// WithDefaultNodeTimeout bounds every node that has no timeout of its own.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *options) { o.nodeTimeout = d }
}

// WithNodeTimeout bounds one node, overriding the default.
func WithNodeTimeout(nodeID string, d time.Duration) Option {
	return func(o *options) {
		if o.nodeTimeouts == nil {
			o.nodeTimeouts = map[string]time.Duration{}
		}
		o.nodeTimeouts[nodeID] = d
	}
}

// WithInvariantChecks verifies the queue partition and loop bounds after
// every step and fails the run on a violation.
func WithInvariantChecks(on bool) Option {
	return func(o *options) { o.checkInvariant = on }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records step latency and run outcomes.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func (o options) timeoutFor(nodeID string) time.Duration {
	if d, ok := o.nodeTimeouts[nodeID]; ok && d > 0 {
		return d
	}
	return o.nodeTimeout
}
