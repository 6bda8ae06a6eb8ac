package system

import (
	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// InspectorService is the gRPC health service name reporting refresh health.
const InspectorService = "inspector"

// healthReporter mirrors refresh results into the gRPC health service.
// A failed bank marks the inspector NOT_SERVING until the next successful
// update.
type healthReporter struct {
	server *health.Server
	logger *zap.Logger
}

func (h *healthReporter) EntriesUpdated(entries []registry.Info) {
	h.server.SetServingStatus(InspectorService, healthpb.HealthCheckResponse_SERVING)
}

func (h *healthReporter) RefreshFailed(bank shm.Bank, err error) {
	h.logger.Debug("Inspector not serving", zap.Stringer("bank", bank), zap.Error(err))
	h.server.SetServingStatus(InspectorService, healthpb.HealthCheckResponse_NOT_SERVING)
}
