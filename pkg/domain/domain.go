// Package domain holds the plain data types the autoscaler reasons about:
// tiers, instance groups, instances, jobs, tasks and placement failures.
// None of these are Kubernetes API objects — they are reported by the
// external collaborators in pkg/collaborator and are read-only from the
// autoscaler's point of view.
package domain

import "time"

// Tier is a service-class ordinal partitioning workloads (e.g. "critical",
// "flex"). The set of tiers and their iteration order come from
// configuration (scaler.GlobalConfig.TierOrder), not from a fixed Go enum,
// since the orchestrator this autoscaler serves defines its own tiers.
type Tier string

// GroupLifecycleState is the lifecycle state of an instance group.
type GroupLifecycleState string

const (
	GroupActive    GroupLifecycleState = "Active"
	GroupPhasedOut GroupLifecycleState = "PhasedOut"
	GroupRetired   GroupLifecycleState = "Retired"
)

// InstanceLifecycleState is the lifecycle state of a single instance.
type InstanceLifecycleState string

const (
	InstanceStarted     InstanceLifecycleState = "Started"
	InstancePending     InstanceLifecycleState = "Pending"
	InstanceTerminating InstanceLifecycleState = "Terminating"
)

// TaskState is the scheduling state of a task.
type TaskState string

const (
	TaskAccepted TaskState = "Accepted"
	TaskRunning  TaskState = "Running"
	TaskFinished TaskState = "Finished"
)

// FailureKind classifies why the scheduler could not place a task.
type FailureKind string

const (
	FailureAllAgentsFull         FailureKind = "AllAgentsFull"
	FailureLaunchGuard           FailureKind = "LaunchGuard"
	FailureConstraint            FailureKind = "Constraint"
	FailureNeverTriggerAutoscale FailureKind = "NEVER_TRIGGER_AUTOSCALING"
)

// Attribute keys that carry scale-down state on an instance or its group.
// These are the only three attribute keys the autoscaler itself assigns
// meaning to; every other key is opaque.
const (
	// AttrNotRemovable, present on an instance or its group, makes the
	// instance invisible to scale-down entirely.
	AttrNotRemovable = "NOT_REMOVABLE"

	// AttrRemovable, present on an instance, marks it for reaping; its
	// value is the wall-clock millis at which the marking was applied.
	AttrRemovable = "REMOVABLE"

	// AttrSystemNoPlacement tells the placement engine to stop sending
	// new tasks to a draining host. Always set alongside AttrRemovable.
	AttrSystemNoPlacement = "SYSTEM_NO_PLACEMENT"
)

// Hard-constraint keys that pin a task to a specific host, making it
// impossible for a newly added agent to ever satisfy it.
const (
	HardConstraintMachineID   = "machineid"
	HardConstraintMachineType = "machinetype"
)

// ResourceLimits is a four-dimensional resource vector: cpu, memory (MB),
// disk (MB) and network (Mbps). It is used both for a tier's per-instance
// unit size and for a job's per-task resource request.
type ResourceLimits struct {
	CPU      float64
	MemMB    float64
	DiskMB   float64
	NetMbps  float64
}

// InstanceGroup is an addressable fleet unit: a set of interchangeable
// agent machines sharing a tier and instance type.
type InstanceGroup struct {
	ID             string
	Tier           Tier
	InstanceType   string
	Min            int
	Current        int
	Desired        int
	Max            int
	LifecycleState GroupLifecycleState
	Attributes     map[string]string
}

// HasAttr reports whether the group carries the given attribute key.
func (g InstanceGroup) HasAttr(key string) bool {
	_, ok := g.Attributes[key]
	return ok
}

// Instance belongs to exactly one instance group.
type Instance struct {
	ID              string
	InstanceGroupID string
	LifecycleState  InstanceLifecycleState
	LaunchTimestamp time.Time
	Attributes      map[string]string
}

// HasAttr reports whether the instance carries the given attribute key.
func (i Instance) HasAttr(key string) bool {
	_, ok := i.Attributes[key]
	return ok
}

// TaskStatus pairs a task's scheduling state with the time it entered it.
type TaskStatus struct {
	State     TaskState
	Timestamp time.Time
}

// Task is a unit of work belonging to a job. AssignedInstanceID is empty
// until the scheduler has placed the task on an instance.
type Task struct {
	ID                 string
	JobID              string
	Status             TaskStatus
	AssignedInstanceID string
}

// Job carries the resource request and hard constraints shared by all of
// its tasks.
type Job struct {
	ID                 string
	ContainerResources ResourceLimits
	HardConstraints    map[string]string
}

// PlacementFailure is one task's most recent failed placement attempt.
type PlacementFailure struct {
	TaskID      string
	Tier        Tier
	FailureKind FailureKind
}
