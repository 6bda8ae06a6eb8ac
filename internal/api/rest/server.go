package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/api/websocket"
	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/KevinKickass/OpenShmInspector/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger.With(zap.String("component", "rest")),
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	// tool calls are bounded by tools.timeout, randomize loops may run longer
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", lm.Config().Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ====================
		v1.POST("/auth/login", s.login)

		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.GET("/me", s.getCurrentUser)
		}

		read := auth.RequirePermission(auth.PermRead)
		write := auth.RequirePermission(auth.PermWrite)

		// ==================== INSPECT ====================
		inspect := v1.Group("/inspect")
		inspect.Use(s.authService.AuthMiddleware())
		{
			inspect.GET("/entries", read, s.listInspectEntries)
			inspect.GET("/entries/:id/raw", read, s.readRawEntry)
			inspect.GET("/entries/:id/history", read, s.entryHistory)
			inspect.POST("/entries/:kind", write, s.addInspectEntry)
			inspect.DELETE("/entries/:id", write, s.removeInspectEntry)
			inspect.POST("/refresh", write, s.refresh)
			inspect.PUT("/auto-refresh", write, s.setAutoRefresh)
			inspect.POST("/preset/save", write, s.savePreset)
			inspect.POST("/preset/load", write, s.loadPreset)
		}

		// ==================== SET ====================
		set := v1.Group("/set")
		set.Use(s.authService.AuthMiddleware())
		{
			set.GET("/entries", read, s.listSetEntries)
			set.POST("/entries/:kind", write, s.addSetEntry)
			set.PUT("/entries/:id/value", write, s.setEntryValue)
			set.DELETE("/entries/:id", write, s.removeSetEntry)
			set.POST("/apply", write, s.applyAll)
			set.POST("/apply/:id", write, s.applyEntry)
			set.POST("/config/save", write, s.saveSetConfig)
			set.POST("/config/load", write, s.loadSetConfig)
		}

		// ==================== TOOLS ====================
		tools := v1.Group("/tools")
		tools.Use(s.authService.AuthMiddleware())
		{
			tools.GET("/hexdump/:bank", read, s.hexdump)
			tools.POST("/randomize/:bank", write, s.randomize)
			tools.GET("/randomize/:bank", read, s.randomizerStatus)
			tools.POST("/randomize/:bank/start", write, s.startRandomizer)
			tools.POST("/randomize/:bank/stop", write, s.stopRandomizer)
			tools.POST("/dump/:bank", read, s.dump)
			tools.POST("/load/:bank", write, s.load)
		}

		// ==================== CLIENT ====================
		cl := v1.Group("/client")
		cl.Use(s.authService.AuthMiddleware())
		{
			cl.GET("/command", read, s.clientCommand)
			cl.POST("/probe", read, s.probe)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware(), read)
		{
			system.GET("/status", s.getSystemStatus)
		}

		// ==================== WEBSOCKET (auth via first message) ====================
		v1.GET("/ws/live", s.wsLiveConnection)
		v1.GET("/ws/status", s.authService.AuthMiddleware(), read, s.wsStatus)
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
