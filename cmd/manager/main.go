// Command manager runs the sandbox manager: the HTTP facade (§4.6) plus a
// Temporal worker servicing per-type pool refill. Graceful shutdown and the
// cobra/echo-adjacent wiring follow akshayaggarwal99-boxed's
// internal/cli/serve.go shape (signal channel -> context cancellation ->
// bounded-timeout shutdown), adapted from Boxed's single-driver server to
// sandboxrt's driver-registry + manager + Temporal worker composition.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/activity"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/backend/agentrun"
	"sandboxrt/internal/backend/cluster"
	"sandboxrt/internal/backend/fc"
	"sandboxrt/internal/backend/localdaemon"
	"sandboxrt/internal/backend/managedruntime"
	"sandboxrt/internal/backend/vendorhttp"
	"sandboxrt/internal/collections"
	"sandboxrt/internal/collections/inproc"
	"sandboxrt/internal/collections/redisset"
	"sandboxrt/internal/config"
	"sandboxrt/internal/deploystore"
	"sandboxrt/internal/logging"
	"sandboxrt/internal/manager"
	"sandboxrt/internal/manager/httpapi"
	"sandboxrt/internal/manager/poolworkflow"
	"sandboxrt/internal/mount"
	"sandboxrt/internal/port"
)

var rootCmd = &cobra.Command{
	Use:   "manager",
	Short: "sandbox manager: allocation, warm pool, and the manager HTTP facade",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "manager: load config:", err)
		os.Exit(1)
	}
	logger := logging.Default("manager", cfg.Debug)

	portSet := buildPortSet(cfg)
	arbiter := port.New(cfg.PortRangeLo, cfg.PortRangeHi, portSet)

	if err := registerDriver(cfg, arbiter, logger); err != nil {
		logger.Fatal().Err(err).Msg("manager: register backend driver")
	}
	driver, err := backend.Resolve(string(cfg.ContainerDeployment))
	if err != nil {
		logger.Fatal().Err(err).Msg("manager: resolve backend driver")
	}

	provisioner := buildProvisioner(cfg)

	deployments, err := deploystore.Open(cfg.StorageFolder)
	if err != nil {
		logger.Fatal().Err(err).Msg("manager: open deployment store")
	}

	temporalClient, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalHostPort, Namespace: cfg.TemporalNamespace})
	if err != nil {
		logger.Fatal().Err(err).Msg("manager: dial temporal")
	}
	defer temporalClient.Close()

	defaultType := "base"
	if len(cfg.DefaultSandboxType) > 0 {
		defaultType = cfg.DefaultSandboxType[0]
	}

	images := manager.StaticImages{
		"base":       "sandboxrt/base:latest",
		"filesystem": "sandboxrt/filesystem:latest",
		"browser":    "sandboxrt/browser:latest",
		"gui":        "sandboxrt/gui:latest",
	}

	mgr := manager.New(manager.Config{
		Driver:          driver,
		Images:          images,
		Provisioner:     provisioner,
		ReadonlyMounts:  cfg.ReadonlyMounts,
		PoolTargetSize:  cfg.PoolSize,
		ContainerPrefix: cfg.ContainerPrefixKey,
		Backend:         string(cfg.ContainerDeployment),
		Refill:          buildRefillFunc(temporalClient, logger),
		Log:             logger,
	})

	temporalWorker := startTemporalWorker(temporalClient, mgr, logger)
	defer temporalWorker.Stop()

	srv := httpapi.New(mgr, deployments, cfg.BearerToken, "0.1.0", defaultType, logger)
	mux := http.NewServeMux()
	srv.Register(mux)

	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("manager: shutdown signal received")
		cancel()
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("manager: listening")
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if cfg.AutoCleanup {
			for sandboxType := range images {
				_ = temporalClient.CancelWorkflow(shutdownCtx, poolworkflow.WorkflowID(sandboxType), "")
			}
			mgr.Cleanup(shutdownCtx)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("manager: forced shutdown")
		}
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("manager: server startup failed")
		}
	}
}

func buildPortSet(cfg *config.Config) collections.Set {
	if cfg.RedisEnabled {
		rdb := redisv9.NewClient(&redisv9.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return redisset.NewSet(rdb, "sandboxrt:ports")
	}
	return inproc.NewSet()
}

// registerDriver installs exactly the backend.Driver factory named by
// cfg.ContainerDeployment, matching each driver package's own Register
// helper. config.validate checks only that the name is known; a missing
// endpoint, key or kubeconfig surfaces here or when the driver first calls
// its backend.
func registerDriver(cfg *config.Config, arbiter *port.Arbiter, logger zerolog.Logger) error {
	switch cfg.ContainerDeployment {
	case config.DeploymentDocker:
		cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("manager: docker client: %w", err)
		}
		localdaemon.Register(cli, localdaemon.Options{Arbiter: arbiter, Log: logger})
		return nil
	case config.DeploymentK8s:
		restCfg, err := cluster.NewConfig(cfg.KubeconfigPath)
		if err != nil {
			return fmt.Errorf("manager: kube config: %w", err)
		}
		cluster.Register(restCfg, cluster.Options{Namespace: cfg.K8sNamespace})
		return nil
	case config.DeploymentAgentRun:
		cli := vendorhttp.New(cfg.AgentRunEndpoint, cfg.AgentRunAPIKey)
		agentrun.Register(cli, nil, managedruntime.Options{})
		return nil
	case config.DeploymentFC:
		cli := vendorhttp.New(cfg.FCEndpoint, cfg.FCAPIKey)
		fc.Register(cli, nil, managedruntime.Options{})
		return nil
	default:
		return fmt.Errorf("manager: unknown container_deployment %q", cfg.ContainerDeployment)
	}
}

func buildProvisioner(cfg *config.Config) mount.Provisioner {
	if cfg.FileSystem == config.FileSystemLocal {
		return &mount.Local{BaseDir: cfg.DefaultMountDir}
	}
	// Object-store provisioning needs a *minio.Client built from
	// cfg.OSSEndpoint/OSSAccessKey/OSSSecretKey; config validation refuses to
	// load without oss_endpoint and oss_bucket (internal/config) but does not
	// check the keys, and constructing the client itself belongs to
	// deployment-specific wiring
	// rather than this binary's defaults.
	panic("manager: object-store filesystem backend requires a minio.Client constructed from SANDBOX_OSS_* config")
}

// startTemporalWorker starts a worker on the shared pool-refill task queue,
// registering PoolRefillWorkflow and binding CreateOneActivityName to an
// activity closure that calls mgr.CreateForPool and mgr.AddToPool — keeping
// poolworkflow decoupled from *manager.Manager (see
// poolworkflow.CreateOneActivityName's doc comment).
func startTemporalWorker(c temporalclient.Client, mgr *manager.Manager, logger zerolog.Logger) worker.Worker {
	w := worker.New(c, poolworkflow.TaskQueue, worker.Options{})
	w.RegisterWorkflow(poolworkflow.PoolRefillWorkflow)
	w.RegisterActivityWithOptions(func(ctx context.Context, sandboxType string) error {
		created, err := mgr.CreateForPool(ctx, sandboxType)
		if err != nil {
			activity.GetLogger(ctx).Error("pool refill create failed", "sandbox_type", sandboxType, "error", err)
			return err
		}
		mgr.AddToPool(sandboxType, created)
		return nil
	}, activity.RegisterOptions{Name: poolworkflow.CreateOneActivityName})

	go func() {
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Error().Err(err).Msg("manager: temporal worker stopped")
		}
	}()
	return w
}

func buildRefillFunc(c temporalclient.Client, logger zerolog.Logger) manager.RefillFunc {
	return func(sandboxType string) {
		ctx := context.Background()
		workflowID := poolworkflow.WorkflowID(sandboxType)
		_, err := c.SignalWithStartWorkflow(ctx, workflowID, "refill",
			poolworkflow.RefillRequest{SandboxType: sandboxType, Count: 1},
			temporalclient.StartWorkflowOptions{ID: workflowID, TaskQueue: poolworkflow.TaskQueue},
			poolworkflow.PoolRefillWorkflow, sandboxType)
		if err != nil {
			logger.Warn().Err(err).Str("sandbox_type", sandboxType).Msg("manager: refill signal failed")
		}
	}
}
