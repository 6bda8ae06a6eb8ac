package rest

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"github.com/KevinKickass/OpenShmInspector/internal/types"
	"github.com/gin-gonic/gin"
)

func bankParam(c *gin.Context) (shm.Bank, bool) {
	bank, err := shm.ParseBank(c.Param("bank"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "Unknown bank", c.Param("bank")))
		return 0, false
	}
	return bank, true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid "+key, v))
		return 0, false
	}
	return n, true
}

// GET /api/v1/tools/hexdump/:bank?register=R&count=N
func (s *Server) hexdump(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}
	register, ok := intQuery(c, "register", 0)
	if !ok {
		return
	}
	count, ok := intQuery(c, "count", 0)
	if !ok {
		return
	}
	if count == 0 {
		count = s.lm.Tools().Segments().Capacity.Of(bank) - register
	}

	dump, err := s.lm.Tools().Hexdump(c.Request.Context(), bank, register, count)
	if err != nil {
		s.respondError(c, "Failed to read shared memory", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bank":     bank,
		"register": register,
		"count":    count,
		"hexdump":  dump,
	})
}

type RandomizeRequest struct {
	tools.RandomOptions
	IntervalMS int `json:"interval_ms" binding:"min=0"`
}

// POST /api/v1/tools/randomize/:bank
func (s *Server) randomize(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}

	var req RandomizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}
	req.Interval = time.Duration(req.IntervalMS) * time.Millisecond

	if err := s.lm.Tools().Randomize(c.Request.Context(), bank, req.RandomOptions); err != nil {
		s.respondError(c, "Failed to randomize shared memory", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank": bank, "shm": s.lm.Tools().Segments().Name(bank)})
}

// POST /api/v1/tools/randomize/:bank/start
// Runs shared-mem-random until stopped, interval_ms is required.
func (s *Server) startRandomizer(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}

	var req RandomizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.Interval = time.Duration(req.IntervalMS) * time.Millisecond

	if err := s.lm.Tools().StartRandomizer(bank, req.RandomOptions); err != nil {
		s.respondError(c, "Failed to start randomizer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank": bank, "running": true})
}

// POST /api/v1/tools/randomize/:bank/stop
func (s *Server) stopRandomizer(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}
	if err := s.lm.Tools().StopRandomizer(bank); err != nil {
		s.respondError(c, "Failed to stop randomizer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank": bank, "running": false})
}

// GET /api/v1/tools/randomize/:bank
func (s *Server) randomizerStatus(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank": bank, "running": s.lm.Tools().RandomizerRunning(bank)})
}

// POST /api/v1/tools/dump/:bank
// With a path the bank is written to that file below the data directory,
// which requires the write permission. Otherwise it is returned.
func (s *Server) dump(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}

	var req PathRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	if req.Path != "" {
		if !auth.Allowed(c, auth.PermWrite) {
			auth.Forbid(c, auth.PermWrite)
			return
		}
		path, err := s.dataPath(req.Path, true)
		if err != nil {
			s.respondError(c, "Invalid path", err)
			return
		}
		if err := s.lm.Tools().DumpToFile(c.Request.Context(), bank, path); err != nil {
			s.respondError(c, "Failed to dump shared memory", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"bank": bank, "path": req.Path})
		return
	}

	var buf bytes.Buffer
	if err := s.lm.Tools().Dump(c.Request.Context(), bank, &buf); err != nil {
		s.respondError(c, "Failed to dump shared memory", err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+s.lm.Tools().Segments().Name(bank)+".bin")
	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}

type LoadRequest struct {
	Path string `json:"path" binding:"required"`
	tools.LoadOptions
}

// POST /api/v1/tools/load/:bank
// An application/octet-stream body is written directly, flags come from
// the invert and repeat query parameters.
func (s *Server) load(c *gin.Context) {
	bank, ok := bankParam(c)
	if !ok {
		return
	}

	if c.ContentType() == "application/octet-stream" {
		opts := tools.LoadOptions{
			Invert: c.Query("invert") == "true",
			Repeat: c.Query("repeat") == "true",
		}
		if err := s.lm.Tools().Load(c.Request.Context(), bank, c.Request.Body, opts); err != nil {
			s.respondError(c, "Failed to load shared memory", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"bank": bank})
		return
	}

	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	path, err := s.dataPath(req.Path, false)
	if err != nil {
		s.respondError(c, "Invalid path", err)
		return
	}
	if err := s.lm.Tools().LoadFromFile(c.Request.Context(), bank, path, req.LoadOptions); err != nil {
		s.respondError(c, "Failed to load shared memory", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bank": bank, "path": req.Path})
}
