package scheduler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	schedulerSvc "inbox-triage-go/internal/scheduler"
	"inbox-triage-go/internal/triage"
)

// StatusResponse describes the scheduler state
type StatusResponse struct {
	Status     string         `json:"status"`
	NextRun    *time.Time     `json:"next_run"`
	LastRun    *time.Time     `json:"last_run"`
	LastError  string         `json:"last_error,omitempty"`
	LastResult *triage.Result `json:"last_result,omitempty"`
}

// Status returns the current scheduler status
func Status(s *schedulerSvc.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := StatusResponse{Status: "stopped"}
		if s.IsRunning() {
			resp.Status = "running"
		}
		if next := s.GetNextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
		if last := s.GetLastRun(); !last.IsZero() {
			resp.LastRun = &last
		}

		result, err := s.LastResult()
		if err != nil {
			resp.LastError = err.Error()
		}
		resp.LastResult = result

		c.JSON(http.StatusOK, resp)
	}
}
