package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixstore/internal/errorfix"
	"github.com/fyrsmithlabs/fixstore/internal/fixstore"
)

func newTestService(t *testing.T) errorfix.Service {
	t.Helper()
	backend, err := fixstore.NewChromemBackend("", false, 3, nil)
	require.NoError(t, err)
	svc, err := errorfix.NewService(nil, backend, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// connect starts s on an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "fixstore-test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool[Out any](t *testing.T, cs *mcp.ClientSession, name string, args any) (Out, *mcp.CallToolResult) {
	t.Helper()
	var out Out
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError {
		return out, res
	}
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, res
}

func errorText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer(t *testing.T) {
	svc := newTestService(t)

	t.Run("successful creation", func(t *testing.T) {
		s, err := NewServer(&Config{Name: "test-server", Logger: zap.NewNop()}, svc)
		require.NoError(t, err)
		assert.Equal(t, "test-server", s.config.Name)
		assert.Equal(t, "1.0.0", s.config.Version)
		assert.Equal(t, 10, s.config.DefaultLimit)
		assert.Equal(t, 0.5, s.defaultRate)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		s, err := NewServer(nil, svc)
		require.NoError(t, err)
		assert.Equal(t, "fixstore", s.config.Name)
		assert.Equal(t, 0.5, s.defaultRate)
	})

	t.Run("nil service", func(t *testing.T) {
		_, err := NewServer(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "errorfix service is required")
	})

	t.Run("bad default success rate", func(t *testing.T) {
		bad := 1.5
		_, err := NewServer(&Config{DefaultSuccessRate: &bad}, svc)
		assert.ErrorIs(t, err, fixstore.ErrValidation)
	})
}

func TestListTools(t *testing.T) {
	s, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{toolRecord, toolSearch, toolFeedback, toolGet}, names)
}

func TestFixTools_RecordSearchFeedback(t *testing.T) {
	s, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)
	cs := connect(t, s)

	fixes := []fixRecordInput{
		{ID: "near", ErrorMessage: "E1", FixCode: "a", TechStack: "ts", Embedding: []float32{1, 0, 0}},
		{ID: "far", ErrorMessage: "E1", FixCode: "b", TechStack: "ts", Embedding: []float32{0, 1, 0}},
		{ID: "other", ErrorMessage: "E1", FixCode: "c", TechStack: "go", Embedding: []float32{1, 0, 0}},
	}
	for _, f := range fixes {
		out, res := callTool[fixOutput](t, cs, toolRecord, f)
		require.False(t, res.IsError, "record %s", f.ID)
		assert.Equal(t, f.ID, out.Fix.ID)
		assert.Equal(t, 0.5, out.Fix.SuccessRate)
	}

	// Equal rates: similarity decides.
	out, res := callTool[fixSearchOutput](t, cs, toolSearch, fixSearchInput{Embedding: []float32{1, 0, 0}, TechStack: "ts"})
	require.False(t, res.IsError)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "near", out.Results[0].Record.ID)
	assert.Equal(t, "far", out.Results[1].Record.ID)

	// A success on the far fix lifts it above the near one.
	success := true
	fb, res := callTool[fixOutput](t, cs, toolFeedback, fixFeedbackInput{ID: "far", Success: &success})
	require.False(t, res.IsError)
	assert.InDelta(t, 0.55, fb.Fix.SuccessRate, 1e-12)
	assert.Equal(t, int64(1), fb.Fix.FeedbackCount)

	out, _ = callTool[fixSearchOutput](t, cs, toolSearch, fixSearchInput{Embedding: []float32{1, 0, 0}, TechStack: "ts", Limit: 1})
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "far", out.Results[0].Record.ID)

	got, res := callTool[fixOutput](t, cs, toolGet, fixGetInput{ID: "far"})
	require.False(t, res.IsError)
	assert.Equal(t, "b", got.Fix.FixCode)
}

func TestFixTools_RecordGeneratesID(t *testing.T) {
	s, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)
	cs := connect(t, s)

	rate := 0.9
	out, res := callTool[fixOutput](t, cs, toolRecord, fixRecordInput{
		ErrorMessage: "panic: nil map",
		FixCode:      "m = map[string]int{}",
		TechStack:    "go@1.22",
		SuccessRate:  &rate,
		Embedding:    []float32{0, 0, 1},
	})
	require.False(t, res.IsError)
	assert.NotEmpty(t, out.Fix.ID)
	assert.Equal(t, 0.9, out.Fix.SuccessRate)
}

func TestFixTools_Errors(t *testing.T) {
	s, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)
	cs := connect(t, s)

	_, res := callTool[fixOutput](t, cs, toolRecord, fixRecordInput{ID: "dup", TechStack: "ts", Embedding: []float32{1, 0, 0}})
	require.False(t, res.IsError)

	yes := true
	signal := 0.5
	tests := []struct {
		name string
		tool string
		args any
		want string
	}{
		{"duplicate id", toolRecord, fixRecordInput{ID: "dup", TechStack: "ts", Embedding: []float32{1, 0, 0}}, "duplicate"},
		{"wrong dimension", toolRecord, fixRecordInput{ID: "d", TechStack: "ts", Embedding: []float32{1}}, "dimension"},
		{"search wrong dimension", toolSearch, fixSearchInput{Embedding: []float32{1, 0}, TechStack: "ts"}, "dimension"},
		{"negative limit", toolSearch, fixSearchInput{Embedding: []float32{1, 0, 0}, TechStack: "ts", Limit: -1}, "limit"},
		{"feedback unknown id", toolFeedback, fixFeedbackInput{ID: "ghost", Success: &yes}, "not found"},
		{"feedback needs one outcome", toolFeedback, fixFeedbackInput{ID: "dup"}, "exactly one"},
		{"feedback both outcomes", toolFeedback, fixFeedbackInput{ID: "dup", Success: &yes, Signal: &signal}, "exactly one"},
		{"get unknown id", toolGet, fixGetInput{ID: "ghost"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res := callTool[fixOutput](t, cs, tt.tool, tt.args)
			assert.Contains(t, errorText(t, res), tt.want)
		})
	}
}

func TestFixTools_SearchEmptyStack(t *testing.T) {
	s, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)
	cs := connect(t, s)

	out, res := callTool[fixSearchOutput](t, cs, toolSearch, fixSearchInput{Embedding: []float32{1, 0, 0}, TechStack: "rust"})
	require.False(t, res.IsError)
	assert.Equal(t, 0, out.Count)
	assert.Empty(t, out.Results)
}

func TestFixTools_RecordDefaultSuccessRate(t *testing.T) {
	input := fixRecordInput{ErrorMessage: "E", FixCode: "f", TechStack: "ts", Embedding: []float32{1, 0, 0}}

	t.Run("partial config", func(t *testing.T) {
		s, err := NewServer(&Config{Logger: zap.NewNop(), Version: "dev", DefaultLimit: 10}, newTestService(t))
		require.NoError(t, err)
		cs := connect(t, s)

		out, res := callTool[fixOutput](t, cs, toolRecord, input)
		require.False(t, res.IsError)
		assert.Equal(t, 0.5, out.Fix.SuccessRate)
	})

	t.Run("configured", func(t *testing.T) {
		rate := 0.3
		s, err := NewServer(&Config{DefaultSuccessRate: &rate}, newTestService(t))
		require.NoError(t, err)
		cs := connect(t, s)

		out, res := callTool[fixOutput](t, cs, toolRecord, input)
		require.False(t, res.IsError)
		assert.Equal(t, 0.3, out.Fix.SuccessRate)
	})
}

func TestServer_LeavesServiceOpen(t *testing.T) {
	svc := newTestService(t)
	s, err := NewServer(nil, svc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, _ := mcp.NewInMemoryTransports()
	cancel()
	_ = s.RunTransport(ctx, serverTransport)

	_, err = svc.Stats(context.Background())
	assert.NoError(t, err)
}
