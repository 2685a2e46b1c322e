package events

// KindTurnStarted identifies the start of a request/response turn.
const KindTurnStarted Kind = "turn_state.started"

type TurnStarted struct {
	Base
	TurnID string
}

func NewTurnStarted(turnID string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), TurnID: turnID}
}

// KindTurnCompleted identifies successful completion of a turn, recorded
// once the last synthesized chunk reaches the sink.
const KindTurnCompleted Kind = "turn_state.completed"

type TurnCompleted struct {
	Base
	TurnID string
}

func NewTurnCompleted(turnID string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID}
}

// KindTurnInterrupted identifies a turn cut short by barge-in.
const KindTurnInterrupted Kind = "turn_state.interrupted"

type TurnInterrupted struct {
	Base
	TurnID string
}

func NewTurnInterrupted(turnID string) TurnInterrupted {
	return TurnInterrupted{Base: NewBase(KindTurnInterrupted), TurnID: turnID}
}

// KindTurnAborted identifies a turn abandoned by the orchestrator, either
// silently (recognition timeout) or with a fallback apology response.
const KindTurnAborted Kind = "turn_state.aborted"

type TurnAborted struct {
	Base
	TurnID string
	Reason string
}

func NewTurnAborted(turnID, reason string) TurnAborted {
	return TurnAborted{Base: NewBase(KindTurnAborted), TurnID: turnID, Reason: reason}
}

// KindCancelTurn identifies a cancellation broadcast for a turn id.
const KindCancelTurn Kind = "turn_state.cancel_requested"

// CancelTurn is published when the orchestrator cancels an active turn's
// synthesis and playback. Cancellation is idempotent: repeated events for
// the same turn id are possible and harmless.
type CancelTurn struct {
	Base
	TurnID string
}

func NewCancelTurn(turnID string) CancelTurn {
	return CancelTurn{Base: NewBase(KindCancelTurn), TurnID: turnID}
}
