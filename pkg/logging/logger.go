// Package logging configures the autoscaler's structured logger and the
// small set of domain log helpers and the iteration-ID context used by
// pkg/controlplane and pkg/audit.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// IterationIDKey is the context key for the current loop iteration's ID.
	IterationIDKey ContextKey = "iterationID"
)

// NewLogger creates a new structured logger
func NewLogger(development bool) (*zap.Logger, error) {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	// Always use ISO8601 time encoding
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// NewZapLogger creates a logr.Logger from a zap.Logger for use with
// controller-runtime's healthz handlers and metrics registry.
func NewZapLogger(zapLogger *zap.Logger, development bool) logr.Logger {
	return zapr.NewLogger(zapLogger)
}

// WithIterationID tags the context with a fresh iteration ID.
func WithIterationID(ctx context.Context) context.Context {
	iterationID := uuid.New().String()
	return context.WithValue(ctx, IterationIDKey, iterationID)
}

// GetIterationID retrieves the iteration ID from the context.
func GetIterationID(ctx context.Context) string {
	if id, ok := ctx.Value(IterationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithIterationIDField adds the iteration ID field to logger if present
// in context.
func WithIterationIDField(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := GetIterationID(ctx); id != "" {
		return logger.With(zap.String("iterationID", id))
	}
	return logger
}

// LogIterationStart logs the start of one evaluation loop iteration.
func LogIterationStart(logger *zap.Logger, iterationID string) {
	logger.Debug("starting autoscaler iteration",
		zap.String("iterationID", iterationID),
	)
}

// LogIterationComplete logs the successful completion of an iteration.
func LogIterationComplete(logger *zap.Logger, iterationID string, duration string, tiersEvaluated int) {
	logger.Info("autoscaler iteration complete",
		zap.String("iterationID", iterationID),
		zap.String("duration", duration),
		zap.Int("tiersEvaluated", tiersEvaluated),
	)
}

// LogIterationError logs an iteration-level error (snapshot build
// failure, etc.) that ends the iteration early. The loop continues on
// the next tick regardless.
func LogIterationError(logger *zap.Logger, iterationID string, err error) {
	logger.Error("autoscaler iteration failed",
		zap.String("iterationID", iterationID),
		zap.Error(err),
	)
}

// LogTierSkipped logs a tier skipped for the iteration because its
// primaryInstanceType resource-limits lookup failed.
func LogTierSkipped(logger *zap.Logger, tier string, err error) {
	logger.Warn("tier skipped for this iteration",
		zap.String("tier", tier),
		zap.Error(err),
	)
}

// LogScaleUpDecision logs a scale-up decision with full context.
func LogScaleUpDecision(logger *zap.Logger, tier string, idleCount, proposed, issued int, reason string) {
	logger.Info("scale-up decision made",
		zap.String("action", "scale-up"),
		zap.String("tier", tier),
		zap.Int("idleCount", idleCount),
		zap.Int("proposed", proposed),
		zap.Int("issued", issued),
		zap.String("reason", reason),
	)
}

// LogScaleDownDecision logs a scale-down decision with full context.
func LogScaleDownDecision(logger *zap.Logger, tier string, idleCount, surplus, marked int, reason string) {
	logger.Info("scale-down decision made",
		zap.String("action", "scale-down"),
		zap.String("tier", tier),
		zap.Int("idleCount", idleCount),
		zap.Int("surplus", surplus),
		zap.Int("marked", marked),
		zap.String("reason", reason),
	)
}

// LogReaperGuardAction logs one instance whose REMOVABLE marking was
// cleared by the reaper guard because the external reaper never
// collected it.
func LogReaperGuardAction(logger *zap.Logger, tier, instanceID string, markedAt string) {
	logger.Warn("removable reaper guard cleared stale marking",
		zap.String("tier", tier),
		zap.String("instanceID", instanceID),
		zap.String("markedAt", markedAt),
	)
}

// LogCollaboratorError logs an error returned by one of the external
// collaborators (AgentManagement, Scheduler, JobOperations). The caller
// is responsible for deciding whether the error aborts the iteration or
// just the affected subtask.
func LogCollaboratorError(logger *zap.Logger, collaborator, operation string, err error) {
	logger.Error("collaborator call failed",
		zap.String("collaborator", collaborator),
		zap.String("operation", operation),
		zap.Error(err),
	)
}
