package rest

import (
	"bytes"
	"net/http"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/set/entries
func (s *Server) listSetEntries(c *gin.Context) {
	infos := registry.Infos(s.lm.Setter().Registry().Entries())
	c.JSON(http.StatusOK, gin.H{
		"entries": infos,
		"count":   len(infos),
	})
}

// POST /api/v1/set/entries/:kind
func (s *Server) addSetEntry(c *gin.Context) {
	d, ok := bindDefinition(c)
	if !ok {
		return
	}

	id, err := s.lm.Setter().AddDefinition(d)
	if err != nil {
		s.respondError(c, "Failed to add entry", err)
		return
	}

	entry, _ := s.lm.Setter().Registry().Get(id)
	c.JSON(http.StatusCreated, entry.Info())
}

type SetValueRequest struct {
	Value string `json:"value"`
}

// PUT /api/v1/set/entries/:id/value
func (s *Server) setEntryValue(c *gin.Context) {
	var req SetValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	id := c.Param("id")
	if err := s.lm.Setter().SetValue(id, req.Value); err != nil {
		s.respondError(c, "Failed to set value", err)
		return
	}

	entry, _ := s.lm.Setter().Registry().Get(id)
	c.JSON(http.StatusOK, entry.Info())
}

// DELETE /api/v1/set/entries/:id
func (s *Server) removeSetEntry(c *gin.Context) {
	if err := s.lm.Setter().Remove(c.Param("id")); err != nil {
		s.respondError(c, "Failed to remove entry", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/set/apply/:id
func (s *Server) applyEntry(c *gin.Context) {
	id := c.Param("id")
	if err := s.lm.Setter().Apply(c.Request.Context(), id); err != nil {
		s.respondError(c, "Failed to write entry", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": 1, "id": id})
}

// POST /api/v1/set/apply
func (s *Server) applyAll(c *gin.Context) {
	n, err := s.lm.Setter().ApplyAll(c.Request.Context())
	if err != nil {
		s.respondError(c, "Failed to write entries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": n})
}

type SetConfigRequest struct {
	Path string `json:"path"`
	// Content is a persisted configuration, loaded instead of Path.
	Content string `json:"content"`
}

// POST /api/v1/set/config/save
// Without a path the encoded configuration is returned as text.
func (s *Server) saveSetConfig(c *gin.Context) {
	var req SetConfigRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	path := s.lm.Config().Setter.ConfigFile
	if req.Path != "" {
		var err error
		if path, err = s.dataPath(req.Path, true); err != nil {
			s.respondError(c, "Invalid path", err)
			return
		}
	}
	if path == "" {
		var buf bytes.Buffer
		if err := s.lm.Setter().Encode(&buf); err != nil {
			s.respondError(c, "Failed to encode configuration", err)
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}

	if err := s.lm.Setter().Save(path); err != nil {
		s.respondError(c, "Failed to save configuration", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// POST /api/v1/set/config/load
func (s *Server) loadSetConfig(c *gin.Context) {
	var req SetConfigRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	var err error
	switch {
	case req.Content != "":
		err = s.lm.Setter().LoadBytes([]byte(req.Content))
	case req.Path != "":
		var path string
		if path, err = s.dataPath(req.Path, false); err == nil {
			err = s.lm.Setter().Load(path)
		}
	case s.lm.Config().Setter.ConfigFile != "":
		err = s.lm.Setter().Load(s.lm.Config().Setter.ConfigFile)
	default:
		badRequest(c, "Missing path or content", errNoPath)
		return
	}
	if err != nil {
		s.respondError(c, "Failed to load configuration", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": registry.Infos(s.lm.Setter().Registry().Entries()),
	})
}
