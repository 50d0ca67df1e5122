package emit

// Emitter receives pipeline events.
//
// The engine emits node_start and node_end around every node and
// item_escalated when an item reaches human escalation. Resume emits
// run_resumed. Every Run or Resume call ends with one of run_completed,
// run_suspended or run_failed.
//
// Implementations:
//   - LogEmitter: one structured zap entry per event
//   - OTelEmitter: one span per event, with Meta as attributes
//   - BufferedEmitter: in-memory history per run, for tests and inspection
//   - NullEmitter: discards everything
//
// Emit is called synchronously on the engine goroutine. It must not block
// for long and must not panic.
//
// Example:
//
//	history := emit.NewBufferedEmitter()
//	e := pipeline.New(st, emit.Multi(emit.NewLogEmitter(logger), history))
//	// ... run ...
//	for _, ev := range history.History("run-001") {
//		fmt.Println(ev.Step, ev.NodeID, ev.Msg)
//	}
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(e Event) { f(e) }

// Multi fans every event out to each emitter in order. Nil emitters are
// skipped.
func Multi(emitters ...Emitter) Emitter {
	out := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []Emitter

func (m multi) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}
