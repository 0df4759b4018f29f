package projection

import (
	"errors"
	"net/http"

	httperr "github.com/aevon-lab/matview/internal/core/errors"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/views/:view", s.HandleListView)
	r.GET("/v1/views/:view/:key", s.HandleGetRow)
	r.GET("/v1/pipeline/status", s.HandleStatus)
	r.POST("/v1/pipeline/start", s.HandleStart)
	r.POST("/v1/pipeline/stop", s.HandleStop)
	r.GET("/v1/deadletters", s.HandleDeadLetters)
	r.GET("/v1/migrated/:partition_key", s.HandleMigrated)
}

type listQuery struct {
	Limit int `form:"limit"`
}

// HandleListView handles GET /v1/views/:view
func (s *Service) HandleListView(c *gin.Context) {
	resp, err := s.ListView(c.Request.Context(), c.Param("view"))
	if err != nil {
		writeError(c, err, "Failed to list view")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGetRow handles GET /v1/views/:view/:key
func (s *Service) HandleGetRow(c *gin.Context) {
	row, err := s.GetRow(c.Request.Context(), c.Param("view"), c.Param("key"))
	if err != nil {
		writeError(c, err, "Failed to read view row")
		return
	}
	c.JSON(http.StatusOK, row)
}

// HandleStatus handles GET /v1/pipeline/status
func (s *Service) HandleStatus(c *gin.Context) {
	resp, err := s.Status(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to read pipeline status")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleStart handles POST /v1/pipeline/start
func (s *Service) HandleStart(c *gin.Context) {
	if !s.Start() {
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpPipelineRunningError,
			Message:   "Pipeline is already running or still draining",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "starting"})
}

// HandleStop handles POST /v1/pipeline/stop
func (s *Service) HandleStop(c *gin.Context) {
	if !s.Stop() {
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpPipelineStoppedError,
			Message:   "Pipeline is not running",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

// HandleDeadLetters handles GET /v1/deadletters?limit=N
func (s *Service) HandleDeadLetters(c *gin.Context) {
	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.DeadLetters(c.Request.Context(), query.Limit)
	if err != nil {
		writeError(c, err, "Failed to list dead letters")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleMigrated handles GET /v1/migrated/:partition_key?limit=N
func (s *Service) HandleMigrated(c *gin.Context) {
	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.Migrated(c.Request.Context(), c.Param("partition_key"), query.Limit)
	if err != nil {
		writeError(c, err, "Failed to list migrated records")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps service errors to HTTP status codes.
func writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   message,
			Details:   err.Error(),
		})
	case errors.Is(err, ErrUnknownView), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   message,
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   message,
			Details:   err.Error(),
		})
	}
}
