package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/fixstore/internal/errorfix"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/logging"
	"github.com/fyrsmithlabs/fixstore/internal/ranking"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const defaultSuccessRate = 0.5

// handleRecord stores a new fix.
func (s *Server) handleRecord(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec := &fixstore.FixRecord{
		ID:           req.ID,
		ErrorMessage: req.ErrorMessage,
		FixCode:      req.FixCode,
		TechStack:    req.TechStack,
		SuccessRate:  s.defaultRate,
		Embedding:    req.Embedding,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if req.SuccessRate != nil {
		rec.SuccessRate = *req.SuccessRate
	}

	ctx := c.Request().Context()
	if err := s.svc.Insert(ctx, rec); err != nil {
		return s.serviceError(c, "record fix", err)
	}

	stored, err := s.svc.Get(ctx, rec.ID)
	if err != nil {
		return s.serviceError(c, "reload fix", err)
	}
	return c.JSON(http.StatusCreated, FixResponse{Fix: stored})
}

// handleGet returns one fix by id.
func (s *Server) handleGet(c echo.Context) error {
	rec, err := s.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.serviceError(c, "get fix", err)
	}
	return c.JSON(http.StatusOK, FixResponse{Fix: rec})
}

// handleSearch ranks fixes for an error embedding.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Limit == 0 {
		req.Limit = s.config.DefaultLimit
	}

	results, err := s.svc.Search(c.Request().Context(), &errorfix.SearchRequest{
		Embedding: req.Embedding,
		TechStack: req.TechStack,
		Limit:     req.Limit,
	})
	if err != nil {
		return s.serviceError(c, "search fixes", err)
	}
	if results == nil {
		results = []ranking.ScoredFix{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

// handleFeedback applies an outcome to a fix's success rate.
func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if (req.Success == nil) == (req.Signal == nil) {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of success or signal is required")
	}

	ctx := c.Request().Context()
	id := c.Param("id")

	var (
		rec *fixstore.FixRecord
		err error
	)
	if req.Success != nil {
		rec, err = s.svc.UpdateSuccessRate(ctx, id, *req.Success)
	} else {
		rec, err = s.svc.ApplySignal(ctx, id, *req.Signal)
	}
	if err != nil {
		return s.serviceError(c, "apply feedback", err)
	}
	return c.JSON(http.StatusOK, FixResponse{Fix: rec})
}

// handleStats reports store statistics.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.svc.Stats(c.Request().Context())
	if err != nil {
		return s.serviceError(c, "stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

// serviceError maps service errors to HTTP errors. Unexpected errors are
// logged and hidden from the client.
func (s *Server) serviceError(c echo.Context, op string, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error(op+" failed", zap.Error(err))
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fixstore.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, fixstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fixstore.ErrValidation), errors.Is(err, fixstore.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, fixstore.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
