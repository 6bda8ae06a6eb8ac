package system

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/api/rest"
	"github.com/KevinKickass/OpenShmInspector/internal/api/websocket"
	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/KevinKickass/OpenShmInspector/internal/client"
	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/inspector"
	"github.com/KevinKickass/OpenShmInspector/internal/interfaces"
	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/setter"
	"github.com/KevinKickass/OpenShmInspector/internal/storage"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type LifecycleManager struct {
	config    *config.Config
	storage   *storage.PostgresClient
	inspector *inspector.Inspector
	setter    *setter.Setter
	tools     *tools.SHMTools
	prober    *client.Prober
	auth      *auth.AuthService
	hub       *websocket.Hub
	logger    *zap.Logger

	restServer *rest.Server
	grpcServer *grpc.Server
	health     *health.Server
	hubCancel  context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState
	lastErr      error

	shutdownOnce sync.Once
}

// NewLifecycleManager wires all components. db may be nil when sample
// history is disabled.
func NewLifecycleManager(cfg *config.Config, db *storage.PostgresClient, logger *zap.Logger) (*LifecycleManager, error) {
	runner := tools.NewRunner(cfg.Tools.Timeout, logger)
	segments := tools.Segments{
		Prefix:    cfg.SHM.NamePrefix,
		Semaphore: cfg.SHM.SemaphoreName(),
		Capacity:  cfg.SHM.Capacity(),
	}
	bins := tools.Binaries{
		ShmFormat:       cfg.Tools.ShmFormat,
		StdinToModbus:   cfg.Tools.StdinToModbus,
		DumpShm:         cfg.Tools.DumpShm,
		WriteShm:        cfg.Tools.WriteShm,
		SharedMemRandom: cfg.Tools.SharedMemRandom,
	}

	shmTools := tools.NewSHMTools(runner, bins, segments, logger)
	insp := inspector.New(
		registry.New(segments.Capacity, logger),
		runner, bins.ShmFormat, segments, shmTools, cfg.Tools.TempDir, logger)
	set, err := setter.New(registry.New(segments.Capacity, logger), runner, bins.StdinToModbus, segments, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create setter: %w", err)
	}

	probeTimeout := time.Duration(cfg.Client.Modbus.ResponseTimeout * float64(time.Second))
	authService := auth.NewAuthService(cfg.Auth, logger)

	return &LifecycleManager{
		config:       cfg,
		storage:      db,
		inspector:    insp,
		setter:       set,
		tools:        shmTools,
		prober:       client.NewProber(cfg.Client, probeTimeout, logger),
		auth:         authService,
		hub:          websocket.NewHub(logger, authService),
		logger:       logger,
		currentState: StateInitializing,
	}, nil
}

func (lm *LifecycleManager) Config() *config.Config          { return lm.config }
func (lm *LifecycleManager) Inspector() *inspector.Inspector { return lm.inspector }
func (lm *LifecycleManager) Setter() *setter.Setter          { return lm.setter }
func (lm *LifecycleManager) Tools() *tools.SHMTools          { return lm.tools }
func (lm *LifecycleManager) Prober() *client.Prober          { return lm.prober }

func (lm *LifecycleManager) History() interfaces.HistoryStore {
	if lm.storage == nil {
		return nil
	}
	return lm.storage
}

// Start restores the persisted entries and starts all servers.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenShmInspector")

	if lm.storage != nil {
		if err := lm.prepareStorage(ctx); err != nil {
			lm.setError(err)
			return err
		}
		lm.inspector.SetSampleSink(lm.storage)
	}

	lm.restoreEntries()

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	lm.hub.SetStatusProvider(lm)
	lm.inspector.AddListener(lm.hub)
	go lm.hub.Run(hubCtx)

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	lm.restServer = rest.NewServer(lm, lm.logger, lm.hub, lm.auth)
	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if lm.config.Inspector.AutoRefresh {
		auto := lm.inspector.AutoRefresh()
		if err := auto.SetInterval(lm.config.Inspector.RefreshInterval); err != nil {
			lm.setError(err)
			return err
		}
		if err := auto.Start(); err != nil {
			lm.setError(err)
			return err
		}
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("session", lm.inspector.Session().String()),
		zap.Bool("history", lm.storage != nil))

	return nil
}

func (lm *LifecycleManager) prepareStorage(ctx context.Context) error {
	if err := lm.storage.EnsureSchema(ctx); err != nil {
		return err
	}
	if retention := lm.config.Database.Retention; retention > 0 {
		n, err := lm.storage.PruneSamples(ctx, retention)
		if err != nil {
			return err
		}
		lm.logger.Info("Pruned old samples", zap.Int64("count", n), zap.Duration("retention", retention))
	}
	return nil
}

// restoreEntries loads the configured preset and setter configuration.
// Missing files are not an error; invalid ones are logged and skipped.
func (lm *LifecycleManager) restoreEntries() {
	if path := lm.config.Inspector.PresetFile; path != "" {
		if err := lm.inspector.LoadPreset(path); err != nil {
			logMissing(lm.logger, "Failed to load inspector preset", path, err)
		}
	}
	if path := lm.config.Setter.ConfigFile; path != "" {
		if err := lm.setter.Load(path); err != nil {
			logMissing(lm.logger, "Failed to load setter configuration", path, err)
		}
	}
}

func logMissing(logger *zap.Logger, msg, path string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("No saved entries", zap.String("file", path))
		return
	}
	logger.Warn(msg, zap.String("file", path), zap.Error(err))
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	lm.health = health.NewServer()
	lm.health.SetServingStatus(InspectorService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)
	lm.inspector.AddListener(&healthReporter{server: lm.health, logger: lm.logger})

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	lm.inspector.AutoRefresh().Stop()
	lm.tools.StopRandomizers()
	if lm.health != nil {
		lm.health.Shutdown()
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	case err = <-errChan:
	}

	if lm.hubCancel != nil {
		lm.hubCancel()
	}
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastErr = err
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, sysErr := lm.currentState, lm.lastErr
	lm.stateMu.RUnlock()

	auto := lm.inspector.AutoRefresh()
	status := interfaces.SystemStatus{
		State:           state.String(),
		Session:         lm.inspector.Session().String(),
		InspectEntries:  lm.inspector.Registry().Len(),
		SetEntries:      lm.setter.Registry().Len(),
		AutoRefresh:     auto.IsRunning(),
		RefreshInterval: auto.Interval().String(),
		History:         lm.storage != nil,
	}

	last, refreshErr := lm.inspector.Health()
	if !last.IsZero() {
		status.LastRefresh = &last
	}
	switch {
	case sysErr != nil:
		status.LastError = sysErr.Error()
	case refreshErr != nil:
		status.LastError = refreshErr.Error()
	}
	return status
}

// GetStatus feeds the status snapshot sent to new WebSocket clients.
func (lm *LifecycleManager) GetStatus() any {
	return lm.GetCurrentStatus()
}
