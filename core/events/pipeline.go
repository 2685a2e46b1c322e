package events

import "time"

// KindDegradeApplied identifies a latency degrade policy action.
const KindDegradeApplied Kind = "pipeline.degrade_applied"

// DegradeApplied is emitted whenever the latency monitor applies a
// cost-cutting action. Degrade actions are never silent.
type DegradeApplied struct {
	Base
	TurnID    string
	Action    string
	Projected time.Duration
	Budget    time.Duration
}

func NewDegradeApplied(turnID, action string, projected, budget time.Duration) DegradeApplied {
	return DegradeApplied{
		Base:      NewBase(KindDegradeApplied),
		TurnID:    turnID,
		Action:    action,
		Projected: projected,
		Budget:    budget,
	}
}

// KindStageRestarted identifies a stage worker restart after an
// unrecoverable error.
const KindStageRestarted Kind = "pipeline.stage_restarted"

type StageRestarted struct {
	Base
	Stage   string
	Attempt int
}

func NewStageRestarted(stage string, attempt int) StageRestarted {
	return StageRestarted{Base: NewBase(KindStageRestarted), Stage: stage, Attempt: attempt}
}

// KindQueueOverflow identifies a dropped frame on the capture ring. Only
// the raw capture queue can overflow; all other queues backpressure.
const KindQueueOverflow Kind = "pipeline.queue_overflow"

type QueueOverflow struct {
	Base
	Queue      string
	DroppedSeq uint64
}

func NewQueueOverflow(queue string, droppedSeq uint64) QueueOverflow {
	return QueueOverflow{Base: NewBase(KindQueueOverflow), Queue: queue, DroppedSeq: droppedSeq}
}

// KindLatencyReport identifies the per-turn latency summary, computed when
// the first synthesized chunk for the turn begins playback.
const KindLatencyReport Kind = "pipeline.latency_report"

type LatencyReport struct {
	Base
	TurnID     string
	EndToEnd   time.Duration
	PerStage   map[string]time.Duration
	Budget     time.Duration
	OverBudget bool
}

func NewLatencyReport(turnID string, endToEnd time.Duration, perStage map[string]time.Duration, budget time.Duration) LatencyReport {
	return LatencyReport{
		Base:       NewBase(KindLatencyReport),
		TurnID:     turnID,
		EndToEnd:   endToEnd,
		PerStage:   perStage,
		Budget:     budget,
		OverBudget: budget > 0 && endToEnd > budget,
	}
}
