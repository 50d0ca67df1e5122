package emit

// NullEmitter discards events.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops everything.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit does nothing.
func (*NullEmitter) Emit(Event) {}
