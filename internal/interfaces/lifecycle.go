package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/client"
	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/inspector"
	"github.com/KevinKickass/OpenShmInspector/internal/setter"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"github.com/google/uuid"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State           string     `json:"state"`
	Session         string     `json:"session"`
	InspectEntries  int        `json:"inspect_entries"`
	SetEntries      int        `json:"set_entries"`
	AutoRefresh     bool       `json:"auto_refresh"`
	RefreshInterval string     `json:"refresh_interval"`
	LastRefresh     *time.Time `json:"last_refresh,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	History         bool       `json:"history"`
}

// HistoryStore reads decoded values stored by earlier refreshes.
type HistoryStore interface {
	RecentSamples(ctx context.Context, session uuid.UUID, entryID string, limit int) ([]inspector.Sample, error)
}

type LifecycleManager interface {
	Config() *config.Config
	Inspector() *inspector.Inspector
	Setter() *setter.Setter
	Tools() *tools.SHMTools
	Prober() *client.Prober
	// History is nil when the database is disabled.
	History() HistoryStore
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
