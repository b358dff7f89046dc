// internal/handlers/scheduler/scheduler_handler.go
package scheduler

import (
	"context"
	"errors"
	"net/http"

	"entitlement-service/internal/pkg/response"
	"entitlement-service/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type Controller interface {
	Jobs() []scheduler.JobStatus
	StartJob(name string) error
	StopJob(name string) error
	RunNow(ctx context.Context, name string) error
}

type SchedulerHandler struct {
	scheduler Controller
}

func NewSchedulerHandler(s Controller) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

// ListJobs reports every job's schedule and last outcome
func (h *SchedulerHandler) ListJobs(c *gin.Context) {
	response.Success(c, http.StatusOK, "jobs retrieved", h.scheduler.Jobs())
}

// StartJob puts a job back on its cadence
func (h *SchedulerHandler) StartJob(c *gin.Context) {
	if err := h.scheduler.StartJob(c.Param("name")); err != nil {
		response.FromError(c, "failed to start job", err)
		return
	}
	response.Success(c, http.StatusOK, "job started", h.status(c.Param("name")))
}

// StopJob takes a job off its cadence
func (h *SchedulerHandler) StopJob(c *gin.Context) {
	if err := h.scheduler.StopJob(c.Param("name")); err != nil {
		response.FromError(c, "failed to stop job", err)
		return
	}
	response.Success(c, http.StatusOK, "job stopped", h.status(c.Param("name")))
}

// RunJob runs a job immediately and waits for it
func (h *SchedulerHandler) RunJob(c *gin.Context) {
	name := c.Param("name")
	err := h.scheduler.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning), errors.Is(err, scheduler.ErrLeaseHeld):
		response.Error(c, http.StatusConflict, "job is already running", err)
		return
	case err != nil && response.StatusFor(err) == http.StatusNotFound:
		response.FromError(c, "job not found", err)
		return
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "job failed", err, h.status(name))
		return
	}
	response.Success(c, http.StatusOK, "job completed", h.status(name))
}

func (h *SchedulerHandler) status(name string) *scheduler.JobStatus {
	for _, j := range h.scheduler.Jobs() {
		if j.Name == name {
			return &j
		}
	}
	return nil
}
