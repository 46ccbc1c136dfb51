package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetscale/agent-autoscaler/pkg/logging"
	"github.com/fleetscale/agent-autoscaler/pkg/metrics"
)

// AuditEvent represents a structured audit log entry
type AuditEvent struct {
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// EventType is the type of event (from events.go)
	EventType EventType `json:"eventType"`

	// Category groups related events
	Category EventCategory `json:"category"`

	// Severity indicates the importance level
	Severity EventSeverity `json:"severity"`

	// IterationID correlates the event with the loop iteration that produced it
	IterationID string `json:"iterationId,omitempty"`

	// Actor identifies who/what initiated the action
	Actor string `json:"actor,omitempty"`

	// Resource identifies the affected resource
	Resource *ResourceInfo `json:"resource,omitempty"`

	// Details contains event-specific information
	Details map[string]interface{} `json:"details,omitempty"`

	// Outcome indicates success or failure
	Outcome string `json:"outcome,omitempty"`

	// Message is a human-readable description
	Message string `json:"message,omitempty"`

	// Duration is how long the operation took (for completed operations)
	Duration time.Duration `json:"duration,omitempty"`
}

// ResourceInfo identifies an affected resource
type ResourceInfo struct {
	// Kind is the resource type (Tier, InstanceGroup, Instance)
	Kind string `json:"kind"`

	// Name is the resource name
	Name string `json:"name"`

	// Tier is the tier the resource belongs to, if applicable
	Tier string `json:"tier,omitempty"`

	// UID is the resource UID (if available)
	UID string `json:"uid,omitempty"`
}

// AuditLogger handles audit event logging
type AuditLogger struct {
	logger       *zap.Logger
	enabled      bool
	mu           sync.RWMutex
	defaultActor string
	eventSinks   []EventSink
}

// EventSink defines an interface for custom audit event destinations
type EventSink interface {
	// Write sends an audit event to the sink
	Write(event *AuditEvent) error

	// Close closes the sink
	Close() error
}

// AuditLoggerConfig configures the audit logger
type AuditLoggerConfig struct {
	// Enabled controls whether audit logging is active
	Enabled bool

	// Logger is the underlying zap logger
	Logger *zap.Logger

	// DefaultActor is the default actor if not specified
	DefaultActor string

	// EventSinks are additional destinations for audit events
	EventSinks []EventSink
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(config *AuditLoggerConfig) *AuditLogger {
	if config == nil {
		config = &AuditLoggerConfig{
			Enabled: true,
			Logger:  zap.NewNop(),
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditLogger{
		logger:       logger.Named("audit"),
		enabled:      config.Enabled,
		defaultActor: config.DefaultActor,
		eventSinks:   config.EventSinks,
	}
}

// Log records an audit event
func (a *AuditLogger) Log(ctx context.Context, event *AuditEvent) {
	a.mu.RLock()
	enabled := a.enabled
	a.mu.RUnlock()

	if !enabled {
		return
	}

	// Fill in defaults
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = GetCategory(event.EventType)
	}
	if event.Severity == "" {
		event.Severity = GetSeverity(event.EventType)
	}
	if event.IterationID == "" {
		event.IterationID = logging.GetIterationID(ctx)
	}
	if event.Actor == "" {
		event.Actor = a.defaultActor
	}

	// Log the event
	fields := a.buildFields(event)
	switch event.Severity {
	case SeverityCritical:
		a.logger.Error(event.Message, fields...)
	case SeverityError:
		a.logger.Error(event.Message, fields...)
	case SeverityWarning:
		a.logger.Warn(event.Message, fields...)
	default:
		a.logger.Info(event.Message, fields...)
	}

	// Update metrics
	metrics.AuditEventsTotal.WithLabelValues(
		string(event.EventType),
		string(event.Category),
		string(event.Severity),
	).Inc()

	// Send to additional sinks
	for _, sink := range a.eventSinks {
		if err := sink.Write(event); err != nil {
			a.logger.Warn("failed to write audit event to sink",
				zap.Error(err),
				zap.String("eventType", string(event.EventType)),
			)
		}
	}
}

// buildFields converts an AuditEvent to zap fields
func (a *AuditLogger) buildFields(event *AuditEvent) []zapcore.Field {
	fields := []zapcore.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("eventType", string(event.EventType)),
		zap.String("category", string(event.Category)),
		zap.String("severity", string(event.Severity)),
	}

	if event.IterationID != "" {
		fields = append(fields, zap.String("iterationId", event.IterationID))
	}
	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if event.Outcome != "" {
		fields = append(fields, zap.String("outcome", event.Outcome))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Resource != nil {
		fields = append(fields, zap.Object("resource", zapResourceInfo{event.Resource}))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	return fields
}

// zapResourceInfo wraps ResourceInfo for zap marshaling
type zapResourceInfo struct {
	*ResourceInfo
}

func (r zapResourceInfo) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", r.Kind)
	enc.AddString("name", r.Name)
	if r.Tier != "" {
		enc.AddString("tier", r.Tier)
	}
	if r.UID != "" {
		enc.AddString("uid", r.UID)
	}
	return nil
}

// Enable enables audit logging
func (a *AuditLogger) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
}

// Disable disables audit logging
func (a *AuditLogger) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
}

// IsEnabled returns whether audit logging is enabled
func (a *AuditLogger) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Close closes all event sinks
func (a *AuditLogger) Close() error {
	for _, sink := range a.eventSinks {
		if err := sink.Close(); err != nil {
			a.logger.Warn("failed to close audit event sink", zap.Error(err))
		}
	}
	return nil
}

// Helper methods for common audit events

// LogScaleUp logs the outcome of an issued scale-up for a tier.
func (a *AuditLogger) LogScaleUp(ctx context.Context, tier string, proposed, issued int, outcome string) {
	eventType := EventScaleUpCompleted
	if outcome != "success" {
		eventType = EventScaleUpFailed
	}
	a.Log(ctx, &AuditEvent{
		EventType: eventType,
		Message:   "tier scaled up",
		Outcome:   outcome,
		Resource: &ResourceInfo{
			Kind: "Tier",
			Name: tier,
			Tier: tier,
		},
		Details: map[string]interface{}{
			"proposed": proposed,
			"issued":   issued,
		},
	})
}

// LogScaleDown logs the outcome of instances marked REMOVABLE for a tier.
func (a *AuditLogger) LogScaleDown(ctx context.Context, tier string, approved, marked int, outcome string) {
	eventType := EventScaleDownCompleted
	if outcome != "success" {
		eventType = EventScaleDownFailed
	}
	a.Log(ctx, &AuditEvent{
		EventType: eventType,
		Message:   "tier scaled down",
		Outcome:   outcome,
		Resource: &ResourceInfo{
			Kind: "Tier",
			Name: tier,
			Tier: tier,
		},
		Details: map[string]interface{}{
			"approved": approved,
			"marked":   marked,
		},
	})
}

// LogScaleDownBlocked logs a scale-down evaluation that produced no action
// because of cooldown or an exhausted token bucket.
func (a *AuditLogger) LogScaleDownBlocked(ctx context.Context, tier, reason string) {
	a.Log(ctx, &AuditEvent{
		EventType: EventScaleDownBlocked,
		Message:   "scale-down blocked",
		Outcome:   "blocked",
		Resource: &ResourceInfo{
			Kind: "Tier",
			Name: tier,
			Tier: tier,
		},
		Details: map[string]interface{}{
			"reason": reason,
		},
	})
}

// LogReaperGuardReset logs one instance whose REMOVABLE marking was cleared
// because the external reaper never collected it before the guard timeout.
func (a *AuditLogger) LogReaperGuardReset(ctx context.Context, tier, instanceID string, outcome string) {
	eventType := EventReaperGuardReset
	if outcome != "success" {
		eventType = EventReaperGuardResetFailed
	}
	a.Log(ctx, &AuditEvent{
		EventType: eventType,
		Message:   "removable marking cleared by reaper guard",
		Outcome:   outcome,
		Resource: &ResourceInfo{
			Kind: "Instance",
			Name: instanceID,
			Tier: tier,
		},
	})
}

// LogCollaboratorError logs a failed call to one of the external
// collaborators (AgentManagement, Scheduler, JobOperations).
func (a *AuditLogger) LogCollaboratorError(ctx context.Context, collaborator, operation string, err error) {
	a.Log(ctx, &AuditEvent{
		EventType: EventCollaboratorCallFailed,
		Message:   "collaborator call failed",
		Outcome:   "failure",
		Details: map[string]interface{}{
			"collaborator": collaborator,
			"operation":    operation,
			"error":        err.Error(),
		},
	})
}

// LogLeaderElection logs a leader election transition.
func (a *AuditLogger) LogLeaderElection(ctx context.Context, identity string, acquired bool) {
	eventType := EventLeaderElected
	outcome := "acquired"
	if !acquired {
		eventType = EventLeaderLost
		outcome = "lost"
	}
	a.Log(ctx, &AuditEvent{
		EventType: eventType,
		Message:   "leader election transition",
		Outcome:   outcome,
		Actor:     identity,
	})
}
