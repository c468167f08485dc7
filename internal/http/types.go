package http

import (
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/ranking"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RecordRequest is the request body for POST /api/v1/fixes.
// A missing id is generated; a missing success_rate defaults to 0.5.
type RecordRequest struct {
	ID           string    `json:"id"`
	ErrorMessage string    `json:"error_message"`
	FixCode      string    `json:"fix_code"`
	TechStack    string    `json:"tech_stack"`
	SuccessRate  *float64  `json:"success_rate"`
	Embedding    []float32 `json:"embedding"`
}

// SearchRequest is the request body for POST /api/v1/fixes/search.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
	TechStack string    `json:"tech_stack"`
	Limit     int       `json:"limit"`
}

// SearchResponse is the response body for POST /api/v1/fixes/search.
type SearchResponse struct {
	Results []ranking.ScoredFix `json:"results"`
	Count   int                 `json:"count"`
}

// FeedbackRequest is the request body for POST /api/v1/fixes/:id/feedback.
// Exactly one of Success or Signal must be set.
type FeedbackRequest struct {
	Success *bool    `json:"success"`
	Signal  *float64 `json:"signal"`
}

// FixResponse wraps a single record.
type FixResponse struct {
	Fix *fixstore.FixRecord `json:"fix"`
}
