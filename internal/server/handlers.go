package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/procdeck/config"
	"github.com/ngenohkevin/procdeck/internal/process"
	"github.com/ngenohkevin/procdeck/internal/system"
)

// Version is reported by the health and info endpoints
const Version = "1.0.0"

// Handlers holds all HTTP handlers
type Handlers struct {
	cfg     *config.Config
	manager *process.Manager

	// closing ends every open event stream and terminal session
	closing   chan struct{}
	closeOnce sync.Once
}

// InputRequest carries raw terminal input
type InputRequest struct {
	Data string `json:"data"`
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, manager *process.Manager) *Handlers {
	return &Handlers{
		cfg:     cfg,
		manager: manager,
		closing: make(chan struct{}),
	}
}

// statusFor maps supervisor errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, process.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, process.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, process.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

// GetInfo handles GET /api/info
func (h *Handlers) GetInfo(c *gin.Context) {
	hostInfo, err := system.GetHostInfo()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hostname":     hostInfo.Hostname,
		"os":           hostInfo.OS,
		"platform":     hostInfo.Platform,
		"kernel":       hostInfo.KernelVersion,
		"arch":         hostInfo.KernelArch,
		"uptime":       hostInfo.Uptime,
		"agent":        "procdeck",
		"agent_pid":    hostInfo.AgentPID,
		"agent_uptime": hostInfo.AgentUptime,
		"version":      Version,
		"processes":    h.manager.Summary(),
	})
}

// GetSummary handles GET /api/summary
func (h *Handlers) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Summary())
}

// ListProcesses handles GET /api/processes
func (h *Handlers) ListProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.List())
}

// StartProcess handles POST /api/processes
func (h *Handlers) StartProcess(c *gin.Context) {
	var req process.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.manager.Start(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// GetProcess handles GET /api/processes/:id
func (h *Handlers) GetProcess(c *gin.Context) {
	rec, err := h.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// StopProcess handles POST /api/processes/:id/stop
func (h *Handlers) StopProcess(c *gin.Context) {
	if err := h.manager.Stop(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RestartProcess handles POST /api/processes/:id/restart
func (h *Handlers) RestartProcess(c *gin.Context) {
	rec, err := h.manager.Restart(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "process": rec})
}

// RemoveProcess handles DELETE /api/processes/:id
func (h *Handlers) RemoveProcess(c *gin.Context) {
	if !h.manager.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateProcess handles PUT /api/processes/:id
func (h *Handlers) UpdateProcess(c *gin.Context) {
	var req process.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	rec, err := h.manager.Update(c.Param("id"), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetLogs handles GET /api/processes/:id/logs
func (h *Handlers) GetLogs(c *gin.Context) {
	entries, err := h.manager.Logs(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// WriteInput handles POST /api/processes/:id/input
func (h *Handlers) WriteInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := h.manager.WriteInput(c.Param("id"), []byte(req.Data)); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WriteHookInput handles POST /api/hooks/:hookKey/input
func (h *Handlers) WriteHookInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := h.manager.WriteHookInput(c.Param("hookKey"), []byte(req.Data)); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStats handles GET /api/processes/:id/stats
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.manager.Stats(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Close ends all open streams
func (h *Handlers) Close() {
	h.closeOnce.Do(func() {
		close(h.closing)
	})
}
