package query

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	v1 "github.com/pulsedeck-lab/pulsedeck/internal/api/v1"
	httperr "github.com/pulsedeck-lab/pulsedeck/internal/core/errors"
)

// RegisterRoutes mounts the query API on the gin engine.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	r.GET("/v1/families", s.ListFamiliesHandler)
	r.GET("/v1/scopes/:scope_id/families/:family/snapshot", s.SnapshotHandler)
	r.POST("/v1/scopes/:scope_id/families/:family/refetch", s.RefetchHandler)
}

// SnapshotHandler serves the aggregated snapshot for one configuration.
func (s *Service) SnapshotHandler(c *gin.Context) {
	req, ok := bindSnapshotRequest(c)
	if !ok {
		return
	}

	resp, err := s.QuerySnapshot(c.Request.Context(), req)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RefetchHandler forces a cache-bypassing refresh for one configuration.
func (s *Service) RefetchHandler(c *gin.Context) {
	req, ok := bindSnapshotRequest(c)
	if !ok {
		return
	}

	resp, err := s.Refetch(c.Request.Context(), req)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListFamiliesHandler returns the configured metric families.
func (s *Service) ListFamiliesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"families": s.ListFamilies()})
}

func bindSnapshotRequest(c *gin.Context) (v1.SnapshotQueryRequest, bool) {
	var req v1.SnapshotQueryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   err.Error(),
		})
		return req, false
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   err.Error(),
		})
		return req, false
	}
	return req, true
}

func writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidPeriodError,
			Message:   err.Error(),
		})
	case errors.Is(err, ErrUnknownFamily):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnknownFamilyError,
			Message:   err.Error(),
		})
	default:
		// First fetch failed and no usable snapshot exists for this
		// configuration: the one case a consumer sees an error state.
		slog.Error("Snapshot query failed", "error", err)
		c.JSON(http.StatusBadGateway, httperr.ErrorResponse{
			ErrorType: httperr.HttpFetchFailedError,
			Message:   "failed to fetch metrics from the counter store",
		})
	}
}
