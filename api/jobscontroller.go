package api

import (
	"errors"
	"net/http"

	"docintake/common"
	"docintake/jobs"
	"docintake/types"

	"github.com/gin-gonic/gin"
)

// JobsController serves job submission and status.
type JobsController struct {
	manager *jobs.Manager
	log     *common.Logger
}

func NewJobsController(m *jobs.Manager, log *common.Logger) *JobsController {
	return &JobsController{manager: m, log: log}
}

// RegisterJobRoutes registers job endpoints.
func RegisterJobRoutes(r gin.IRouter, jc *JobsController) {
	r.POST("/jobs", jc.handleSubmit)
	r.GET("/status/:jobId", jc.handleStatus)
}

// SubmitResponse is returned for both the queued and the inline path.
type SubmitResponse struct {
	JobID   string         `json:"jobId"`
	State   types.JobState `json:"state"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
}

// StatusResponse flattens the job with a human-readable message.
type StatusResponse struct {
	types.Job
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleSubmit accepts a job
// POST /jobs
func (jc *JobsController) handleSubmit(c *gin.Context) {
	var req types.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "must be a JSON object: "+err.Error())
		return
	}

	sub, err := jc.manager.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, jc.log, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitResponse{
		JobID:   sub.ID,
		State:   sub.State,
		Status:  "success",
		Message: stateMessage(sub.State),
	})
}

// handleStatus reports a job's state
// GET /status/:jobId
func (jc *JobsController) handleStatus(c *gin.Context) {
	id := c.Param("jobId")
	job, err := jc.manager.Status(c.Request.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"jobId":   id,
			"state":   types.JobNotFound,
			"status":  "error",
			"message": stateMessage(types.JobNotFound),
		})
		return
	}
	if err != nil {
		respondError(c, jc.log, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Job: job, Status: "success", Message: stateMessage(job.State)})
}

func stateMessage(s types.JobState) string {
	switch s {
	case types.JobQueued:
		return "Job queued for processing"
	case types.JobProcessing:
		return "Job is being processed"
	case types.JobAcceptedNoQueue:
		return "Job accepted and processing without queue"
	case types.JobCompleted:
		return "Job completed"
	case types.JobFailed:
		return "Job failed"
	case types.JobNotFound:
		return "Job not found"
	}
	return ""
}
