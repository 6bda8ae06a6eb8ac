package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errNoPath = errors.New("no path given and none configured")

// bindDefinition reads an entry declaration whose kind comes from the route.
func bindDefinition(c *gin.Context) (registry.Definition, bool) {
	var d registry.Definition
	if err := c.ShouldBindJSON(&d); err != nil {
		badRequest(c, "Invalid request body", err)
		return d, false
	}

	switch kind := c.Param("kind"); kind {
	case "int", "float", "bool", "string":
		d.Kind = kind
	default:
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "Unknown entry kind", kind))
		return d, false
	}
	return d, true
}

// GET /api/v1/inspect/entries
func (s *Server) listInspectEntries(c *gin.Context) {
	infos := registry.Infos(s.lm.Inspector().Registry().Entries())
	c.JSON(http.StatusOK, gin.H{
		"entries": infos,
		"count":   len(infos),
	})
}

// POST /api/v1/inspect/entries/:kind
func (s *Server) addInspectEntry(c *gin.Context) {
	d, ok := bindDefinition(c)
	if !ok {
		return
	}

	id, err := s.lm.Inspector().AddDefinition(d)
	if err != nil {
		s.respondError(c, "Failed to add entry", err)
		return
	}

	entry, _ := s.lm.Inspector().Registry().Get(id)
	c.JSON(http.StatusCreated, entry.Info())
}

// DELETE /api/v1/inspect/entries/:id
func (s *Server) removeInspectEntry(c *gin.Context) {
	if err := s.lm.Inspector().Remove(c.Param("id")); err != nil {
		s.respondError(c, "Failed to remove entry", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/inspect/refresh
func (s *Server) refresh(c *gin.Context) {
	report, err := s.lm.Inspector().Refresh(c.Request.Context())
	if report == nil {
		s.respondError(c, "Refresh failed", err)
		return
	}

	resp := gin.H{
		"report":  report,
		"entries": registry.Infos(s.lm.Inspector().Registry().Entries()),
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type AutoRefreshRequest struct {
	Enabled    bool `json:"enabled"`
	IntervalMS int  `json:"interval_ms" binding:"min=0"`
}

// PUT /api/v1/inspect/auto-refresh
func (s *Server) setAutoRefresh(c *gin.Context) {
	var req AutoRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	auto := s.lm.Inspector().AutoRefresh()
	if req.IntervalMS > 0 {
		if err := auto.SetInterval(time.Duration(req.IntervalMS) * time.Millisecond); err != nil {
			badRequest(c, "Invalid interval", err)
			return
		}
	}

	if req.Enabled {
		if err := auto.Start(); err != nil {
			badRequest(c, "Failed to start auto refresh", err)
			return
		}
	} else {
		auto.Stop()
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":     auto.IsRunning(),
		"interval_ms": auto.Interval().Milliseconds(),
	})
}

// GET /api/v1/inspect/entries/:id/raw
func (s *Server) readRawEntry(c *gin.Context) {
	id := c.Param("id")
	value, err := s.lm.Inspector().ReadRaw(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "Failed to read entry", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "value": value})
}

// GET /api/v1/inspect/entries/:id/history?limit=N
func (s *Server) entryHistory(c *gin.Context) {
	history := s.lm.History()
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Sample history disabled", nil))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid limit", c.Query("limit")))
		return
	}

	id := c.Param("id")
	samples, err := history.RecentSamples(c.Request.Context(), s.lm.Inspector().Session(), id, limit)
	if err != nil {
		s.respondError(c, "Failed to read history", err)
		return
	}

	out := make([]gin.H, 0, len(samples))
	for _, smp := range samples {
		out = append(out, gin.H{"value": smp.Value, "time": smp.Time})
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "samples": out})
}

type PathRequest struct {
	Path string `json:"path"`
}

// bindPath reads the optional path of a request. A given path is resolved
// below the data directory, otherwise the configured fallback is used.
func (s *Server) bindPath(c *gin.Context, fallback string, create bool) (string, bool) {
	var req PathRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return "", false
		}
	}
	if req.Path == "" {
		if fallback == "" {
			badRequest(c, "Missing path", errNoPath)
			return "", false
		}
		return fallback, true
	}

	path, err := s.dataPath(req.Path, create)
	if err != nil {
		s.respondError(c, "Invalid path", err)
		return "", false
	}
	return path, true
}

// POST /api/v1/inspect/preset/save
func (s *Server) savePreset(c *gin.Context) {
	path, ok := s.bindPath(c, s.lm.Config().Inspector.PresetFile, true)
	if !ok {
		return
	}
	if err := s.lm.Inspector().SavePreset(path); err != nil {
		s.respondError(c, "Failed to save preset", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// POST /api/v1/inspect/preset/load
func (s *Server) loadPreset(c *gin.Context) {
	path, ok := s.bindPath(c, s.lm.Config().Inspector.PresetFile, false)
	if !ok {
		return
	}
	if err := s.lm.Inspector().LoadPreset(path); err != nil {
		s.respondError(c, "Failed to load preset", err)
		return
	}

	s.logger.Info("Preset loaded", zap.String("path", path))
	c.JSON(http.StatusOK, gin.H{
		"path":    path,
		"entries": registry.Infos(s.lm.Inspector().Registry().Entries()),
	})
}
