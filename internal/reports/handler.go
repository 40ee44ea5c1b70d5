package reports

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	httperr "github.com/rohanmalviya/simian/internal/core/errors"
)

// RegisterRoutes registers the report read API on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/reports/msu-summary", s.HandleUserSummary)
	r.GET("/v1/reports/install-counts", s.HandleInstallCounts)
	r.GET("/v1/reports/trending", s.HandleTrending)
}

// HandleUserSummary handles GET /v1/reports/msu-summary?window=1D
// An absent window parameter means the all-time summary.
func (s *Service) HandleUserSummary(c *gin.Context) {
	w, err := ParseWindow(c.Query("window"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParamError,
			Message:   "Invalid window parameter",
			Details:   err.Error(),
		})
		return
	}

	view, err := s.UserSummary(c.Request.Context(), w)
	if err != nil {
		s.writeReadError(c, err, "Failed to read user summary")
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleInstallCounts handles GET /v1/reports/install-counts
func (s *Service) HandleInstallCounts(c *gin.Context) {
	counts, err := s.InstallCounts(c.Request.Context())
	if err != nil {
		s.writeReadError(c, err, "Failed to read install counts")
		return
	}
	c.JSON(http.StatusOK, counts)
}

// HandleTrending handles GET /v1/reports/trending?hours=1
func (s *Service) HandleTrending(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "1"))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParamError,
			Message:   "hours must be a positive integer",
		})
		return
	}

	report, err := s.TrendingReport(c.Request.Context(), hours)
	if err != nil {
		s.writeReadError(c, err, "Failed to read trending report")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Service) writeReadError(c *gin.Context, err error, message string) {
	if errors.Is(err, ErrReportNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "Report not generated yet",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   message,
		Details:   err.Error(),
	})
}
