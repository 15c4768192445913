package api

import (
	"net/http"
	"time"

	"docintake/common"
	"docintake/jobs"

	"github.com/gin-gonic/gin"
)

const defaultCleanAge = 24 * time.Hour

type QueueController struct {
	manager *jobs.Manager
	log     *common.Logger
}

func NewQueueController(m *jobs.Manager, log *common.Logger) *QueueController {
	return &QueueController{manager: m, log: log}
}

// RegisterQueueRoutes registers queue administration endpoints.
func RegisterQueueRoutes(r gin.IRouter, qc *QueueController) {
	g := r.Group("/queue")
	g.GET("/stats", qc.handleStats)
	g.POST("/pause", qc.handlePause)
	g.POST("/resume", qc.handleResume)
	g.POST("/clean", qc.handleClean)
}

// handleStats reports queue depth
// GET /queue/stats
func (qc *QueueController) handleStats(c *gin.Context) {
	stats, err := qc.manager.QueueStats(c.Request.Context())
	if err != nil {
		respondError(c, qc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "stats": stats})
}

// POST /queue/pause
func (qc *QueueController) handlePause(c *gin.Context) {
	if err := qc.manager.PauseQueue(c.Request.Context()); err != nil {
		respondError(c, qc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Queue paused"})
}

// POST /queue/resume
func (qc *QueueController) handleResume(c *gin.Context) {
	if err := qc.manager.ResumeQueue(c.Request.Context()); err != nil {
		respondError(c, qc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Queue resumed"})
}

// handleClean drops finished jobs older than ?olderThan (default 24h) from
// both the queue and the local result store.
// POST /queue/clean
func (qc *QueueController) handleClean(c *gin.Context) {
	age := defaultCleanAge
	if raw := c.Query("olderThan"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			badRequest(c, "olderThan", "must be a positive duration such as 24h")
			return
		}
		age = d
	}

	removed, err := qc.manager.CleanQueue(c.Request.Context(), age)
	if err != nil {
		respondError(c, qc.log, err)
		return
	}
	local := qc.manager.PruneLocal(age)

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"message":      "Old jobs removed",
		"removed":      removed,
		"removedLocal": local,
	})
}
