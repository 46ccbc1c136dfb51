// Package collaborator defines the narrow interfaces the autoscaler uses
// to talk to external systems: the cloud API that grows/shrinks instance
// groups, the placement service, and the job/task catalog. The
// autoscaler never depends on a concrete cloud SDK directly — every call
// crosses one of these three interfaces rather than a concrete client.
package collaborator

import (
	"context"

	"github.com/fleetscale/agent-autoscaler/pkg/domain"
)

// AgentManagement is the cloud control-plane API that owns instance groups
// and instances. Implementations must treat ScaleUp as accepting a delta
// rather than an absolute target.
type AgentManagement interface {
	ListInstanceGroups(ctx context.Context) ([]domain.InstanceGroup, error)
	ListInstances(ctx context.Context, groupID string) ([]domain.Instance, error)
	ResourceLimits(ctx context.Context, instanceType string) (domain.ResourceLimits, error)
	ScaleUp(ctx context.Context, groupID string, delta int) error
	UpdateInstanceAttributes(ctx context.Context, instanceID string, attrs map[string]string) error
	DeleteInstanceAttributes(ctx context.Context, instanceID string, keys []string) error
}

// Scheduler reports the most recent placement attempt's failures, keyed by
// failure kind.
type Scheduler interface {
	LastTaskPlacementFailures(ctx context.Context) (map[domain.FailureKind][]domain.PlacementFailure, error)
}

// JobOperations is the job/task catalog.
type JobOperations interface {
	ListJobs(ctx context.Context) ([]domain.Job, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
}
