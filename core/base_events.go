package core

type CriticalErrorEvent struct {
	Error string
}

func (e *CriticalErrorEvent) GetId() string {
	return "shared.critical_error"
}

func (e *CriticalErrorEvent) ControlEvent() {}

type WarningEvent struct {
	Error string
}

func (e *WarningEvent) GetId() string {
	return "shared.warning"
}

func (e *WarningEvent) ControlEvent() {}

// EndCallEvent is fired when the agent decides to terminate the session.
// The runner handles it by stopping the pipeline gracefully.
type EndCallEvent struct {
	Reason string
}

func (e *EndCallEvent) GetId() string {
	return "shared.end_call"
}

func (e *EndCallEvent) ControlEvent() {}

// TurnCancelledEvent is the acknowledgement a stage sends after it has
// abandoned generation for an interrupted turn. The activity control gate
// counts these to know when the cancellation has fully propagated.
type TurnCancelledEvent struct {
	Turn  uint64
	Stage string // "llm" or "tts"
}

func (e *TurnCancelledEvent) GetId() string {
	return "shared.turn_cancelled"
}

func (e *TurnCancelledEvent) ControlEvent() {}
