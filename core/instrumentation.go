package pipeline

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/voxloop/voxloop-core/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var turnsCompleted, _ = meter.Int64Counter("pipeline.turns.completed")
var turnsInterrupted, _ = meter.Int64Counter("pipeline.turns.interrupted")
var degradeActions, _ = meter.Int64Counter("pipeline.degrade.actions")
