package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ngenohkevin/procdeck/config"
	"github.com/ngenohkevin/procdeck/internal/process"
	"github.com/ngenohkevin/procdeck/internal/systemd"
)

const shutdownTimeout = 10 * time.Second

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	handlers   *Handlers
	manager    *process.Manager
	limiter    *RateLimiter
	notifier   *systemd.Notifier
	httpServer *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, manager *process.Manager) *Server {
	if cfg.Debug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		router:   gin.New(),
		handlers: NewHandlers(cfg, manager),
		manager:  manager,
		limiter:  NewRateLimiter(cfg.RateLimitRPS),
	}
	s.notifier = systemd.NewNotifier(s.statusLine)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(LoggerMiddleware())
	s.router.Use(CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.limiter))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/info", s.handlers.GetInfo)
		api.GET("/summary", s.handlers.GetSummary)

		// Processes
		api.GET("/processes", s.handlers.ListProcesses)
		api.POST("/processes", s.handlers.StartProcess)
		api.GET("/processes/:id", s.handlers.GetProcess)
		api.PUT("/processes/:id", s.handlers.UpdateProcess)
		api.DELETE("/processes/:id", s.handlers.RemoveProcess)
		api.POST("/processes/:id/stop", s.handlers.StopProcess)
		api.POST("/processes/:id/restart", s.handlers.RestartProcess)
		api.GET("/processes/:id/logs", s.handlers.GetLogs)
		api.POST("/processes/:id/input", s.handlers.WriteInput)
		api.GET("/processes/:id/stats", s.handlers.GetStats)
		api.GET("/processes/:id/terminal", s.handlers.Terminal)

		// Hooks
		api.POST("/hooks/:hookKey/input", s.handlers.WriteHookInput)

		// Real-time events (SSE)
		api.GET("/events", s.handlers.StreamEvents)
	}
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM, then
// drains connections and terminates supervised processes.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		s.notifier.Stopping()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.handlers.Close()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Starting procdeck on %s", s.cfg.Addr())
	s.notifier.Ready()

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go s.notifier.Watchdog(watchdogCtx)

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.manager.Shutdown(ctx); err != nil {
		log.Printf("Error stopping processes: %v", err)
	}

	log.Println("Server stopped")
	return nil
}

// statusLine summarizes supervised processes for systemctl status
func (s *Server) statusLine() string {
	sum := s.manager.Summary()
	return fmt.Sprintf("%d running, %d stopped, %d error", sum.Running, sum.Stopped, sum.Error)
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handlers returns the handlers (for testing)
func (s *Server) Handlers() *Handlers {
	return s.handlers
}
