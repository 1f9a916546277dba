package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	schedulerSvc "inbox-triage-go/internal/scheduler"
)

// RunOnce runs an ingest-and-triage cycle immediately
func RunOnce(s *schedulerSvc.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.RunOnce(c.Request.Context())
		if err != nil {
			logrus.Errorf("Manual triage run failed: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "scheduler_error",
				Message: "Failed to run triage",
				Code:    http.StatusInternalServerError,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Triage run completed successfully",
			"result":  result,
		})
	}
}
