package system

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	preset := "entries:\n  - name: speed\n    kind: int\n    bank: AO\n    register: 4\n    width: 2\n"
	presetFile := filepath.Join(dir, "preset.yaml")
	if err := os.WriteFile(presetFile, []byte(preset), 0o644); err != nil {
		t.Fatalf("failed to write preset: %v", err)
	}

	return &config.Config{
		Server: config.ServerConfig{GRPCPort: 0, HTTPPort: 0},
		SHM: config.SHMConfig{
			NamePrefix:  "modbus_",
			DORegisters: 16, DIRegisters: 16, AORegisters: 32, AIRegisters: 32,
		},
		Client: config.ClientConfig{Mode: "tcp", TCP: config.TCPConfig{Host: "any", Port: 502}},
		Tools: config.ToolsConfig{
			ShmFormat:     "shm-format",
			StdinToModbus: "stdin-to-modbus-shm",
			Timeout:       time.Second,
			TempDir:       dir,
		},
		Inspector: config.InspectorConfig{RefreshInterval: time.Second, PresetFile: presetFile},
		Setter:    config.SetterConfig{ConfigFile: filepath.Join(dir, "missing.cfg")},
	}
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	lm, err := NewLifecycleManager(testConfig(t), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLifecycleManager failed: %v", err)
	}
	if lm.History() != nil {
		t.Error("expected no history without a database")
	}

	if err := lm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := lm.GetCurrentStatus()
	if status.State != "RUNNING" {
		t.Errorf("expected RUNNING, got %s", status.State)
	}
	if status.InspectEntries != 1 || status.SetEntries != 0 {
		t.Errorf("expected the preset entry only, got %+v", status)
	}
	if status.AutoRefresh {
		t.Error("auto refresh should be off")
	}

	resp, err := lm.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: InspectorService})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", resp.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lm.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if lm.State() != StateStopped {
		t.Errorf("expected STOPPED, got %s", lm.State())
	}
	if err := lm.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown should be a no-op, got %v", err)
	}
}

func TestHealthReporter(t *testing.T) {
	srv := health.NewServer()
	r := &healthReporter{server: srv, logger: zaptest.NewLogger(t)}

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: InspectorService})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		return resp.Status
	}

	r.RefreshFailed(shm.BankAO, errors.New("boom"))
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", got)
	}

	r.EntriesUpdated(nil)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", got)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateStopped, StateRunning, false},
		{StateRunning, StateInitializing, false},
		{StateError, StateStopped, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: expected ok=%v, got %v", tt.from, tt.to, tt.ok, err)
		}
	}
}
