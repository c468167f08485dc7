package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixstore/internal/errorfix"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
	"github.com/fyrsmithlabs/fixstore/internal/ranking"
)

const (
	toolRecord   = "fix_record"
	toolSearch   = "fix_search"
	toolFeedback = "fix_feedback"
	toolGet      = "fix_get"
)

type fixRecordInput struct {
	ID           string    `json:"id,omitempty" jsonschema:"Fix identifier (generated if empty)"`
	ErrorMessage string    `json:"error_message" jsonschema:"Error text the fix resolves"`
	FixCode      string    `json:"fix_code" jsonschema:"Code or instructions that fix the error"`
	TechStack    string    `json:"tech_stack" jsonschema:"Tech stack key, matched exactly on search"`
	SuccessRate  *float64  `json:"success_rate,omitempty" jsonschema:"Initial success rate in [0,1]; omitted uses the server default (normally 0.5)"`
	Embedding    []float32 `json:"embedding" jsonschema:"Embedding of the error message"`
}

type fixOutput struct {
	Fix *fixstore.FixRecord `json:"fix" jsonschema:"The stored fix"`
}

type fixSearchInput struct {
	Embedding []float32 `json:"embedding" jsonschema:"Embedding of the error to fix"`
	TechStack string    `json:"tech_stack" jsonschema:"Tech stack key to search within"`
	Limit     int       `json:"limit,omitempty" jsonschema:"Maximum results to return; omitted uses the server search.default_limit (normally 10)"`
}

type fixSearchOutput struct {
	Results []ranking.ScoredFix `json:"results" jsonschema:"Fixes ordered by success rate then similarity"`
	Count   int                 `json:"count" jsonschema:"Number of results returned"`
}

type fixFeedbackInput struct {
	ID      string   `json:"id" jsonschema:"Fix identifier"`
	Success *bool    `json:"success,omitempty" jsonschema:"Whether applying the fix worked"`
	Signal  *float64 `json:"signal,omitempty" jsonschema:"Graded outcome in [0,1], instead of success"`
}

type fixGetInput struct {
	ID string `json:"id" jsonschema:"Fix identifier"`
}

// instrument wraps a tool handler with invocation metrics and error logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := h(ctx, req, in)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Debug("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() error {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolRecord,
		Description: "Record a fix for an error message in a tech stack",
	}, instrument(s, toolRecord, s.handleRecord))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearch,
		Description: "Find stored fixes for an error, best success rate first",
	}, instrument(s, toolSearch, s.handleSearch))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolFeedback,
		Description: "Report whether a fix worked to update its success rate",
	}, instrument(s, toolFeedback, s.handleFeedback))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGet,
		Description: "Get a stored fix by id",
	}, instrument(s, toolGet, s.handleGet))

	return nil
}

func (s *Server) handleRecord(ctx context.Context, _ *mcp.CallToolRequest, args fixRecordInput) (*mcp.CallToolResult, fixOutput, error) {
	rec := &fixstore.FixRecord{
		ID:           args.ID,
		ErrorMessage: args.ErrorMessage,
		FixCode:      args.FixCode,
		TechStack:    args.TechStack,
		SuccessRate:  s.defaultRate,
		Embedding:    args.Embedding,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if args.SuccessRate != nil {
		rec.SuccessRate = *args.SuccessRate
	}

	if err := s.svc.Insert(ctx, rec); err != nil {
		return nil, fixOutput{}, fmt.Errorf("record fix: %w", err)
	}
	stored, err := s.svc.Get(ctx, rec.ID)
	if err != nil {
		return nil, fixOutput{}, fmt.Errorf("reload fix: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Recorded fix %s", stored.ID)},
		},
	}, fixOutput{Fix: stored}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, args fixSearchInput) (*mcp.CallToolResult, fixSearchOutput, error) {
	limit := args.Limit
	if limit == 0 {
		limit = s.config.DefaultLimit
	}

	results, err := s.svc.Search(ctx, &errorfix.SearchRequest{
		Embedding: args.Embedding,
		TechStack: args.TechStack,
		Limit:     limit,
	})
	if err != nil {
		return nil, fixSearchOutput{}, fmt.Errorf("fix search failed: %w", err)
	}
	if results == nil {
		results = []ranking.ScoredFix{}
	}

	output := fixSearchOutput{Results: results, Count: len(results)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d fixes", output.Count)},
		},
	}, output, nil
}

func (s *Server) handleFeedback(ctx context.Context, _ *mcp.CallToolRequest, args fixFeedbackInput) (*mcp.CallToolResult, fixOutput, error) {
	if (args.Success == nil) == (args.Signal == nil) {
		return nil, fixOutput{}, fmt.Errorf("%w: exactly one of success or signal is required", fixstore.ErrValidation)
	}

	var (
		rec *fixstore.FixRecord
		err error
	)
	if args.Success != nil {
		rec, err = s.svc.UpdateSuccessRate(ctx, args.ID, *args.Success)
	} else {
		rec, err = s.svc.ApplySignal(ctx, args.ID, *args.Signal)
	}
	if err != nil {
		return nil, fixOutput{}, fmt.Errorf("apply feedback: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Fix %s success rate is now %.4f", rec.ID, rec.SuccessRate)},
		},
	}, fixOutput{Fix: rec}, nil
}

func (s *Server) handleGet(ctx context.Context, _ *mcp.CallToolRequest, args fixGetInput) (*mcp.CallToolResult, fixOutput, error) {
	rec, err := s.svc.Get(ctx, args.ID)
	if err != nil {
		return nil, fixOutput{}, fmt.Errorf("get fix: %w", err)
	}
	return nil, fixOutput{Fix: rec}, nil
}
