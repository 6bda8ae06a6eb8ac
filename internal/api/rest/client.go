package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenShmInspector/internal/client"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/client/command
func (s *Server) clientCommand(c *gin.Context) {
	cfg := s.lm.Config()
	cmd, err := client.BuildCommand(cfg.Client, cfg.SHM)
	if err != nil {
		s.respondError(c, "Failed to build client command", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":    cmd.Mode,
		"args":    cmd.Args,
		"command": cmd.Line(),
	})
}

// POST /api/v1/client/probe
func (s *Server) probe(c *gin.Context) {
	var req client.ProbeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	result, err := s.lm.Prober().Probe(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, "Probe failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
