package ingestion

import (
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	httperr "github.com/rohanmalviya/simian/internal/core/errors"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidJSON   = "Invalid JSON body"
	msgPersistFailed = "Failed to persist event"
)

// IngestMSUHandler handles HTTP POST requests for MSU interaction reports.
func (s *Service) IngestMSUHandler(c *gin.Context) {
	var evt v1.MSUEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err)
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, msgInvalidJSON)
		return
	}

	if err := evt.Validate(); err != nil {
		slog.Warn("MSU event validation failed", "error", err, "uuid", evt.UUID)
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, err.Error())
		return
	}

	if err := s.msuLog.AppendMSUEvent(c.Request.Context(), &evt); err != nil {
		slog.Error("Failed to persist MSU event", "error", err, "uuid", evt.UUID)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, msgPersistFailed)
		return
	}

	slog.Info("Received MSU event",
		"uuid", evt.UUID,
		"user", evt.User,
		"event", evt.Event)

	// Persisted to the log. The summary cron picks it up on its next cycle.
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// IngestInstallHandler handles HTTP POST requests for package install reports.
func (s *Service) IngestInstallHandler(c *gin.Context) {
	var evt v1.InstallEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err)
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, msgInvalidJSON)
		return
	}

	// Arrival time orders the install log; clients never set it.
	evt.ServerDatetime = time.Now().UTC()

	if err := evt.Validate(); err != nil {
		slog.Warn("Install event validation failed", "error", err, "package", evt.Package)
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, err.Error())
		return
	}

	if err := s.installLog.AppendInstallEvent(c.Request.Context(), &evt); err != nil {
		slog.Error("Failed to persist install event", "error", err, "package", evt.Package)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, msgPersistFailed)
		return
	}

	slog.Info("Received install event",
		"package", evt.Package,
		"success", evt.Success,
		"applesus", evt.AppleSUS)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func writeError(c *gin.Context, status int, errorType, message string) {
	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
	})
}
