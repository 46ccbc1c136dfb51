// Command autoscaler runs the tiered agent-pool autoscaler as a
// long-running service: a cobra root command with a run subcommand,
// configuration bound through viper so the same keys can come from
// flags, a YAML config file, or AUTOSCALER_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleetscale/agent-autoscaler/pkg/collaborator"
	"github.com/fleetscale/agent-autoscaler/pkg/controlplane"
	"github.com/fleetscale/agent-autoscaler/pkg/domain"
	"github.com/fleetscale/agent-autoscaler/pkg/scaler"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var cfgFile string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoscaler",
		Short: "Tiered agent-pool autoscaler",
		Long:  "autoscaler evaluates per-tier idle capacity and scheduling demand and issues scale-up/scale-down decisions against an external agent-management API.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")
	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("autoscaler\n  version:    %s\n  commit:     %s\n  build date: %s\n", Version, Commit, BuildDate)
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the autoscaler decision loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfig(v, cfgFile); err != nil {
				return err
			}
			opts, err := optionsFromViper(v)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return runAutoscaler(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.String("kubeconfig", "", "path to kubeconfig file (in-cluster config used if empty)")
	flags.String("metrics-addr", ":8080", "bind address for the prometheus metrics endpoint")
	flags.String("health-probe-addr", ":8081", "bind address for the health probe endpoint")
	flags.Bool("leader-election-enabled", true, "enable leader election so only one replica drives the loop")
	flags.String("leader-election-id", "fleet-autoscaler-leader", "name of the Lease object leader election coordinates on")
	flags.String("leader-election-namespace", "kube-system", "namespace the leader-election Lease lives in")
	flags.String("leader-election-identity", "", "identity recorded in the leader-election Lease (defaults to the pod hostname)")
	flags.String("log-level", "info", "log level (debug, info, warn, error); validated, not applied to the logger")
	flags.String("log-format", "json", "log format (json, console); validated, not applied to the logger")
	flags.Bool("development-mode", false, "enable development-mode logging")
	flags.Bool("auto-scaling-enabled", true, "enable the scale-up/scale-down decision loop")
	flags.Duration("iteration-interval", 30*time.Second, "time between evaluation loop iterations")
	flags.Duration("activation-delay", 5*time.Minute, "delay before the first iteration fires after startup")
	flags.Duration("evaluation-timeout", 5*time.Minute, "per-iteration hard timeout")
	flags.Duration("agent-instance-removable-timeout", 10*time.Minute, "how long an instance may sit REMOVABLE before the reaper guard clears the marking")
	flags.Int("bucket-capacity", 50, "token bucket capacity shared by every tier's rate limiter")
	flags.Float64("refill-rate", 2, "token bucket refill rate, in tokens per second")

	for _, name := range []string{
		"kubeconfig", "metrics-addr", "health-probe-addr",
		"leader-election-enabled", "leader-election-id", "leader-election-namespace", "leader-election-identity",
		"log-level", "log-format", "development-mode",
		"auto-scaling-enabled", "iteration-interval", "activation-delay", "evaluation-timeout",
		"agent-instance-removable-timeout", "bucket-capacity", "refill-rate",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func bindConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("AUTOSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}
	return nil
}

// envKeyReplacer maps dash-separated flag names (leader-election-id) to
// the underscore-separated AUTOSCALER_LEADER_ELECTION_ID form viper's
// AutomaticEnv lookup expects.
type envKeyReplacer struct{}

func (envKeyReplacer) Replace(s string) string {
	out := make([]rune, len(s))
	for i, r := range s {
		if r == '-' || r == '.' {
			out[i] = '_'
			continue
		}
		out[i] = r
	}
	return string(out)
}

// optionsFromViper projects bound configuration into a controlplane.Options.
// Per-tier policy is not exposed as a flag surface — it is loaded from
// the config file's "tiers" list, since a tier set is structured data no
// flag/env scheme expresses cleanly.
func optionsFromViper(v *viper.Viper) (*controlplane.Options, error) {
	opts := controlplane.NewDefaultOptions()

	opts.Kubeconfig = v.GetString("kubeconfig")
	opts.MetricsAddr = v.GetString("metrics-addr")
	opts.HealthProbeAddr = v.GetString("health-probe-addr")
	opts.EnableLeaderElection = v.GetBool("leader-election-enabled")
	opts.LeaderElectionID = v.GetString("leader-election-id")
	opts.LeaderElectionNamespace = v.GetString("leader-election-namespace")
	opts.LeaderElectionIdentity = v.GetString("leader-election-identity")
	opts.LogLevel = v.GetString("log-level")
	opts.LogFormat = v.GetString("log-format")
	opts.DevelopmentMode = v.GetBool("development-mode")
	opts.AutoScalingEnabled = v.GetBool("auto-scaling-enabled")
	opts.IterationInterval = v.GetDuration("iteration-interval")
	opts.ActivationDelay = v.GetDuration("activation-delay")
	opts.EvaluationTimeout = v.GetDuration("evaluation-timeout")
	opts.AgentInstanceRemovableTimeout = v.GetDuration("agent-instance-removable-timeout")
	opts.BucketCapacity = v.GetInt("bucket-capacity")
	opts.RefillRate = v.GetFloat64("refill-rate")

	var tiers []struct {
		Tier                    string        `mapstructure:"tier"`
		PrimaryInstanceType     string        `mapstructure:"primaryInstanceType"`
		MinIdle                 int           `mapstructure:"minIdle"`
		MaxIdle                 int           `mapstructure:"maxIdle"`
		ScaleUpCooldown         time.Duration `mapstructure:"scaleUpCooldown"`
		ScaleDownCooldown       time.Duration `mapstructure:"scaleDownCooldown"`
		IdleInstanceGracePeriod time.Duration `mapstructure:"idleInstanceGracePeriod"`
		TaskSLO                 time.Duration `mapstructure:"taskSlo"`
	}
	if err := v.UnmarshalKey("tiers", &tiers); err != nil {
		return nil, fmt.Errorf("unmarshal tiers: %w", err)
	}

	for _, t := range tiers {
		tier := domain.Tier(t.Tier)
		opts.TierOrder = append(opts.TierOrder, tier)
		opts.Tiers[tier] = scaler.TierConfig{
			Tier:                    tier,
			PrimaryInstanceType:     t.PrimaryInstanceType,
			MinIdle:                 t.MinIdle,
			MaxIdle:                 t.MaxIdle,
			ScaleUpCooldown:         t.ScaleUpCooldown,
			ScaleDownCooldown:       t.ScaleDownCooldown,
			IdleInstanceGracePeriod: t.IdleInstanceGracePeriod,
			TaskSLO:                 t.TaskSLO,
		}
	}

	return opts, nil
}

// runAutoscaler wires the collaborators and runs the manager until the
// process receives SIGINT/SIGTERM. It wires pkg/collaborator's in-memory
// fakes as the default AgentManagement/Scheduler/JobOperations backend;
// a real deployment supplies its own implementation of these interfaces
// ahead of this call.
func runAutoscaler(ctx context.Context, opts *controlplane.Options) error {
	agents := collaborator.NewFakeAgentManagement()
	sched := &collaborator.FakeScheduler{}
	jobs := &collaborator.FakeJobOperations{}

	mgr, err := controlplane.NewManager(opts, agents, sched, jobs, nil)
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mgr.Start(ctx)
}
