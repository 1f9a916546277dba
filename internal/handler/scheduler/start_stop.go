package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	schedulerSvc "inbox-triage-go/internal/scheduler"
)

// Start starts periodic triage. Starting a running scheduler is a conflict.
func Start(s *schedulerSvc.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.IsRunning() {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "scheduler_running",
				Message: "Scheduler is already running",
				Code:    http.StatusConflict,
			})
			return
		}

		if err := s.Start(); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "scheduler_error",
				Message: err.Error(),
				Code:    http.StatusInternalServerError,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "Scheduler started successfully",
			"status":   "running",
			"next_run": s.GetNextRun(),
		})
	}
}

// Stop stops periodic triage; stopping an idle scheduler succeeds
func Stop(s *schedulerSvc.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Stop(); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "scheduler_error",
				Message: "Failed to stop scheduler",
				Code:    http.StatusInternalServerError,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Scheduler stopped",
			"status":  "stopped",
		})
	}
}
