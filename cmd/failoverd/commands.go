package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/api"
	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/config"
	"github.com/FairForge/globalfailover/internal/failover"
)

// exitPartial is returned when a batch finished with any non-succeeded outcome
const exitPartial = 2

type rootOptions struct {
	configPath   string
	controlPlane string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "failoverd",
		Short:         "Global database cluster failover orchestrator",
		Long:          "failoverd moves the primary of global database clusters to another region and waits for the clusters to converge.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&opts.controlPlane, "control-plane", "", "Control plane backend: rds or memory")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newFailbackCmd(opts),
		newClustersCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.controlPlane != "" {
		cfg.AWS.ControlPlane = o.controlPlane
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApp loads config, wires the app, runs fn and closes the app
func (o *rootOptions) withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()
	return fn(a)
}

// batchFlags are shared by run and failback
type batchFlags struct {
	clusters     []string
	failFast     bool
	deadline     time.Duration
	pollInterval time.Duration
	parallelism  int
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.clusters, "clusters", nil, "Comma separated global cluster identifiers")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Cancel remaining clusters after the first one that does not succeed")
	cmd.Flags().DurationVar(&f.deadline, "deadline", 0, "Per-cluster convergence deadline (default from config)")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "Wait between status polls (default from config)")
	cmd.Flags().IntVar(&f.parallelism, "parallelism", 0, "Maximum clusters failed over concurrently (default from config)")
	_ = cmd.MarkFlagRequired("clusters")
}

func (f *batchFlags) identifiers() []cluster.Identifier {
	ids := make([]cluster.Identifier, len(f.clusters))
	for i, c := range f.clusters {
		ids[i] = cluster.Identifier(c)
	}
	return ids
}

func (f *batchFlags) policy(base failover.Policy) *failover.Policy {
	if f.deadline > 0 {
		base.MaxPollDeadline = f.deadline
	}
	if f.pollInterval > 0 {
		base.PollInterval = f.pollInterval
	}
	if f.parallelism > 0 {
		base.Parallelism = f.parallelism
	}
	return &base
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	flags := &batchFlags{}
	var targetRegion string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fail the named clusters over to a target region",
		Long: `Fail the named global clusters over to --target-region and wait for each to
become available. Prints the batch result as JSON. Exits 0 when every cluster
succeeded and 2 otherwise.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				result, err := a.orch.FailoverAll(cmd.Context(), failover.Request{
					Identifiers:  flags.identifiers(),
					TargetRegion: targetRegion,
					FailFast:     flags.failFast,
					Policy:       flags.policy(a.orch.Policy()),
				})
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), result)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&targetRegion, "target-region", "", "Region that becomes primary")
	_ = cmd.MarkFlagRequired("target-region")
	return cmd
}

func newFailbackCmd(opts *rootOptions) *cobra.Command {
	flags := &batchFlags{}

	cmd := &cobra.Command{
		Use:   "failback",
		Short: "Fail the named clusters back to the region of their last failover",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				result, err := a.orch.FailbackAll(cmd.Context(), failover.FailbackRequest{
					Identifiers: flags.identifiers(),
					FailFast:    flags.failFast,
					Policy:      flags.policy(a.orch.Policy()),
				})
				if err != nil {
					return err
				}
				return printBatch(cmd.OutOrStdout(), result)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func printBatch(w io.Writer, result *failover.BatchResult) error {
	if err := printJSON(w, result); err != nil {
		return err
	}
	if !result.AllSucceeded() {
		return &exitError{code: exitPartial}
	}
	return nil
}

func newClustersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clusters [identifier]",
		Short: "List global clusters and their replication flows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				if len(args) == 1 {
					topo, err := a.orch.DescribeTopology(cmd.Context(), cluster.Identifier(args[0]))
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), topo)
				}
				topologies, err := a.orch.ListTopologies(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), topologies)
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				cfg := a.cfg.Server
				if port > 0 {
					cfg.Port = port
				}
				return serve(cmd.Context(), a, cfg)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config)")
	return cmd
}

func serve(ctx context.Context, a *app, cfg config.ServerConfig) error {
	server := api.NewServer(cfg, a.orch, a.logger,
		api.WithHistory(a.history),
		api.WithMetrics(a.metrics),
		api.WithReadiness(a.ready),
		api.WithBuildInfo(buildInfo()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), buildInfo())
		},
	}
}

func buildInfo() api.BuildInfo {
	return api.BuildInfo{Version: version, Commit: commit, Go: runtime.Version()}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
