package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	kubernetes "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/fleetscale/agent-autoscaler/pkg/audit"
	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/logging"
	"github.com/fleetscale/agent-autoscaler/pkg/loop"
	"github.com/fleetscale/agent-autoscaler/pkg/metrics"
	"github.com/fleetscale/agent-autoscaler/pkg/scaler"
	"github.com/fleetscale/agent-autoscaler/pkg/snapshot"
)

// Manager wires the decision loop into a long-running process: leader
// election, health/metrics HTTP servers, and the loop.Driver tying
// snapshot/scaler/audit together for one configured tier set. This
// autoscaler has no CRDs to reconcile, so only controller-runtime's
// metrics registry and healthz handler are reused, not its Manager.
type Manager struct {
	opts *Options

	logger  *zap.Logger
	sLogger *zap.SugaredLogger

	builder *snapshot.Builder
	runner  *scaler.Runner
	reaper  *scaler.Reaper
	states  *scaler.StateStore
	ttl     *scaler.TTLSet

	health *HealthChecker
	audit  *audit.AuditLogger
	driver *loop.Driver

	metricsSrv *http.Server
	healthSrv  *http.Server

	kubeClient kubernetes.Interface
	identity   string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewManager builds a Manager from Options and the three external
// collaborators. The caller supplies the collaborators rather than the
// Manager constructing a concrete client itself.
func NewManager(opts *Options, agents collaborator.AgentManagement, sched collaborator.Scheduler, jobs collaborator.JobOperations, auditLogger *audit.AuditLogger) (*Manager, error) {
	if err := opts.Complete(); err != nil {
		return nil, fmt.Errorf("complete options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("validate options: %w", err)
	}

	zapLogger, err := logging.NewLogger(opts.DevelopmentMode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	identity := opts.LeaderElectionIdentity
	if identity == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve leader election identity: %w", err)
		}
		identity = host
	}

	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(&audit.AuditLoggerConfig{Enabled: true, Logger: zapLogger})
	}

	metrics.RegisterMetrics()

	m := &Manager{
		opts:     opts,
		logger:   zapLogger,
		sLogger:  zapLogger.Sugar(),
		builder:  snapshot.NewBuilder(agents, sched, jobs),
		runner:   scaler.NewRunner(agents, scaler.NewPlanner(agents), zapLogger.Sugar()),
		reaper:   scaler.NewReaper(agents, opts.AgentInstanceRemovableTimeout),
		states:   scaler.NewStateStore(),
		ttl:      scaler.NewTTLSet(scaler.RecentlyScaledForTTL),
		health:   NewHealthChecker(2 * opts.IterationInterval),
		audit:    auditLogger,
		identity: identity,
	}

	if opts.EnableLeaderElection {
		kubeClient, err := buildKubeClient(opts.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("build kube client for leader election: %w", err)
		}
		m.kubeClient = kubeClient
	}

	m.driver = &loop.Driver{
		ActivationDelay:   opts.ActivationDelay,
		IterationInterval: opts.IterationInterval,
		EvaluationTimeout: opts.EvaluationTimeout,
		Iterate:           m.iterate,
		Logger:            m.sLogger,
	}

	return m, nil
}

func buildKubeClient(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}

// Start begins serving health/metrics and, once leadership (if enabled)
// is acquired, drives the evaluation loop. It blocks until ctx is
// cancelled or the leader elector exits.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.startHealthServer()
	m.startMetricsServer()

	m.audit.Log(runCtx, &audit.AuditEvent{EventType: audit.EventAutoscalerStarted, Message: "autoscaler process started", Actor: m.identity})

	if !m.opts.EnableLeaderElection {
		m.health.SetLeader(true)
		m.driver.Start(runCtx)
		<-runCtx.Done()
		m.driver.Stop()
		return m.shutdown(context.Background())
	}

	return m.runWithLeaderElection(runCtx)
}

// runWithLeaderElection wraps the loop driver's Start/Stop around the
// OnStartedLeading/OnStoppedLeading callbacks, the generalized form of
// the leaderelection.RunOrDie pattern used in the wider example corpus'
// cluster-autoscaler main().
func (m *Manager) runWithLeaderElection(ctx context.Context) error {
	lock, err := resourcelock.New(
		resourcelock.LeasesResourceLock,
		m.opts.LeaderElectionNamespace,
		m.opts.LeaderElectionID,
		m.kubeClient.CoreV1(),
		m.kubeClient.CoordinationV1(),
		resourcelock.ResourceLockConfig{Identity: m.identity},
	)
	if err != nil {
		return fmt.Errorf("build leader election lock: %w", err)
	}

	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   15 * time.Second,
		RenewDeadline:   10 * time.Second,
		RetryPeriod:     2 * time.Second,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(leadCtx context.Context) {
				m.audit.LogLeaderElection(leadCtx, m.identity, true)
				m.health.SetLeader(true)
				m.driver.Start(leadCtx)
			},
			OnStoppedLeading: func() {
				m.audit.LogLeaderElection(ctx, m.identity, false)
				m.health.SetLeader(false)
				m.driver.Stop()
			},
		},
	})
	if err != nil {
		return fmt.Errorf("build leader elector: %w", err)
	}

	elector.Run(ctx)
	return m.shutdown(context.Background())
}

// Stop initiates a graceful shutdown: readiness flips false immediately
// so a load balancer can drain in-flight work, then the loop driver and
// HTTP servers are stopped.
func (m *Manager) Stop(ctx context.Context) error {
	m.health.SetShuttingDown(true)
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return m.shutdown(ctx)
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.audit.Log(ctx, &audit.AuditEvent{EventType: audit.EventAutoscalerStopped, Message: "autoscaler process stopped", Actor: m.identity})

	var errs []error
	if m.healthSrv != nil {
		if err := m.healthSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if m.metricsSrv != nil {
		if err := m.metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = m.audit.Close()
	_ = m.logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (m *Manager) startHealthServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", m.health.HealthzHandler)
	mux.HandleFunc("/readyz", m.health.ReadyzHandler)
	m.healthSrv = &http.Server{Addr: m.opts.HealthProbeAddr, Handler: mux}
	go func() {
		if err := m.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.sLogger.Errorw("health probe server exited", "error", err)
		}
	}()
}

func (m *Manager) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{}))
	m.metricsSrv = &http.Server{Addr: m.opts.MetricsAddr, Handler: mux}
	go func() {
		if err := m.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.sLogger.Errorw("metrics server exited", "error", err)
		}
	}()
}

// iterate is the loop.Iteration wired into the Driver: build a
// snapshot, evaluate every configured tier in order, run the reaper
// guard, and push the results to metrics/logging/audit before
// recording the iteration's health.
func (m *Manager) iterate(ctx context.Context) (err error) {
	ctx = logging.WithIterationID(ctx)
	iterationID := logging.GetIterationID(ctx)
	start := time.Now()

	logging.LogIterationStart(m.logger, iterationID)
	m.audit.Log(ctx, &audit.AuditEvent{EventType: audit.EventIterationStarted, IterationID: iterationID})

	defer func() {
		m.health.RecordIteration(time.Now(), err)
		metrics.RecordIterationDuration(time.Since(start))
		if ctx.Err() != nil {
			metrics.RecordIterationTimeout()
			m.audit.Log(ctx, &audit.AuditEvent{EventType: audit.EventIterationTimedOut, IterationID: iterationID})
		}
	}()

	if !m.opts.AutoScalingEnabled {
		return nil
	}

	snap, err := m.builder.Build(ctx)
	if err != nil {
		logging.LogIterationError(m.logger, iterationID, err)
		metrics.RecordIterationError("snapshot_build")
		m.audit.Log(ctx, &audit.AuditEvent{EventType: audit.EventIterationFailed, IterationID: iterationID, Details: map[string]interface{}{"error": err.Error()}})
		return err
	}

	m.ttl.Evict(snap.Now)

	evaluated := 0
	for _, tier := range m.opts.TierOrder {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tierCfg, ok := m.opts.Tiers[tier]
		if !ok {
			continue
		}

		state, ok := m.states.Get(tier)
		if !ok {
			state = scaler.NewTierState(tierCfg, m.opts.GlobalConfig(), snap.Now)
		}

		result, evalErr := m.runner.EvaluateTier(ctx, snap, tierCfg, state, m.ttl)
		if evalErr != nil {
			logging.LogTierSkipped(m.logger, string(tier), evalErr)
			metrics.RecordTierSkipped(string(tier))
			m.audit.Log(ctx, &audit.AuditEvent{
				EventType:   audit.EventTierSkipped,
				IterationID: iterationID,
				Resource:    &audit.ResourceInfo{Kind: "Tier", Name: string(tier), Tier: string(tier)},
				Details:     map[string]interface{}{"error": evalErr.Error()},
			})
			continue
		}

		m.recordTierResult(ctx, tierCfg, result)
		evaluated++
	}

	m.runReaperGuard(ctx, snap)

	logging.LogIterationComplete(m.logger, iterationID, time.Since(start).String(), evaluated)
	m.audit.Log(ctx, &audit.AuditEvent{EventType: audit.EventIterationCompleted, IterationID: iterationID, Duration: time.Since(start)})

	return nil
}

func (m *Manager) recordTierResult(ctx context.Context, tierCfg scaler.TierConfig, result scaler.TierResult) {
	tier := string(tierCfg.Tier)
	m.states.Set(tierCfg.Tier, result.State)

	metrics.RecordTierGauges(
		tier,
		result.IdleCount,
		result.FailedCount,
		result.SLOViolatorCount,
		len(result.ContributingTaskIDs),
		result.ProposedUp,
		result.IssuedUp,
		result.Surplus,
		result.MarkedDown,
	)

	for _, cerr := range result.Errors {
		metrics.RecordCollaboratorError("AgentManagement", "planner")
		m.audit.LogCollaboratorError(ctx, "AgentManagement", "planner", cerr)
	}

	if result.ProposedUp > 0 && result.ApprovedUp == 0 {
		metrics.RecordScaleUpCooldownBlocked(tier)
	}
	if result.IssuedUp > 0 {
		logging.LogScaleUpDecision(m.logger, tier, result.IdleCount, result.ProposedUp, result.IssuedUp, "demand")
		m.audit.LogScaleUp(ctx, tier, result.ProposedUp, result.IssuedUp, outcomeOf(len(result.Errors) == 0))
	}

	if result.Surplus > 0 && result.ApprovedDown == 0 {
		metrics.RecordScaleDownCooldownBlocked(tier)
		m.audit.LogScaleDownBlocked(ctx, tier, "cooldown or token bucket exhausted")
	}
	if result.MarkedDown > 0 {
		logging.LogScaleDownDecision(m.logger, tier, result.IdleCount, result.Surplus, result.MarkedDown, "surplus")
		m.audit.LogScaleDown(ctx, tier, result.ApprovedDown, result.MarkedDown, outcomeOf(len(result.Errors) == 0))
	}
}

func (m *Manager) runReaperGuard(ctx context.Context, snap *snapshot.Snapshot) {
	reaped, errs := m.reaper.Run(ctx, snap, snap.ActiveGroups, snap.Now)
	for _, r := range reaped {
		tier := tierForInstance(snap, r.InstanceID)
		metrics.RecordReaperGuardReset(tier)
		logging.LogReaperGuardAction(m.logger, tier, r.InstanceID, r.MarkedAt.String())
		m.audit.LogReaperGuardReset(ctx, tier, r.InstanceID, "success")
	}
	for _, rerr := range errs {
		metrics.RecordCollaboratorError("AgentManagement", "reaper")
		m.audit.LogCollaboratorError(ctx, "AgentManagement", "reaper", rerr)
	}
}

func tierForInstance(snap *snapshot.Snapshot, instanceID string) string {
	for _, g := range snap.ActiveGroups {
		for _, inst := range snap.InstancesByGroup[g.ID] {
			if inst.ID == instanceID {
				return string(g.Tier)
			}
		}
	}
	return "unknown"
}

func outcomeOf(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// HealthChecker exposes the Manager's health checker so callers can wire
// the same handlers elsewhere (e.g. a combined admin server) if needed.
func (m *Manager) HealthChecker() *HealthChecker { return m.health }

// StateStore exposes the Manager's per-tier execution state, used by
// tests to assert on cooldown/token state across iterations.
func (m *Manager) StateStore() *scaler.StateStore { return m.states }
