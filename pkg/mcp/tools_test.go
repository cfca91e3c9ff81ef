package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/internal/validation"
)

const orderXML = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn:collaboration id="col1">
    <bpmn:participant id="p1" name="Order Handling" processRef="proc1"/>
  </bpmn:collaboration>
  <bpmn:process id="proc1">
    <bpmn:laneSet id="ls1">
      <bpmn:lane id="l1" name="Clerk">
        <bpmn:flowNodeRef>t1</bpmn:flowNodeRef>
        <bpmn:flowNodeRef>t2</bpmn:flowNodeRef>
      </bpmn:lane>
    </bpmn:laneSet>
    <bpmn:startEvent id="start">
      <bpmn:outgoing>f1</bpmn:outgoing>
    </bpmn:startEvent>
    <bpmn:task id="t1" name="1. Receive order">
      <bpmn:incoming>f1</bpmn:incoming>
      <bpmn:outgoing>f2</bpmn:outgoing>
    </bpmn:task>
    <bpmn:task id="t2" name="2. Ship order">
      <bpmn:incoming>f2</bpmn:incoming>
      <bpmn:outgoing>f3</bpmn:outgoing>
    </bpmn:task>
    <bpmn:endEvent id="end" name="Done">
      <bpmn:incoming>f3</bpmn:incoming>
    </bpmn:endEvent>
    <bpmn:sequenceFlow id="f1" sourceRef="start" targetRef="t1"/>
    <bpmn:sequenceFlow id="f2" sourceRef="t1" targetRef="t2"/>
    <bpmn:sequenceFlow id="f3" sourceRef="t2" targetRef="end"/>
  </bpmn:process>
</bpmn:definitions>`

func newTestSOPServer(t *testing.T) *SOPServer {
	t.Helper()

	dbPath := "file:" + filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewLibSQLStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	validator, err := validation.NewDocumentValidator()
	require.NoError(t, err)

	return NewSOPServer(SOPServerDeps{
		Store:     st,
		Revisions: store.NewRevisionLog(st),
		Validator: validator,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// resultJSON parses the text payload of a successful tool result.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.False(t, result.IsError, "tool returned error: %+v", result.Content)
	require.Len(t, result.Content, 1)

	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	return out
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.True(t, result.IsError)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestGenerateTool(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleGenerate(context.Background(), buildRequest("sop.generate", map[string]any{
		"xml": orderXML,
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	sopCtx := out["context"].(map[string]any)
	assert.Equal(t, "Order Handling", sopCtx["process_name"])
	assert.Len(t, sopCtx["steps"], 2)
}

func TestGenerateTool_MissingXML(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleGenerate(context.Background(), buildRequest("sop.generate", map[string]any{}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "xml is required")
}

func TestGenerateTool_MalformedXML(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleGenerate(context.Background(), buildRequest("sop.generate", map[string]any{
		"xml": "<bpmn:definitions",
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "generation failed")
}

func TestGenerateTool_MetadataOverride(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleGenerate(context.Background(), buildRequest("sop.generate", map[string]any{
		"xml":      orderXML,
		"metadata": map[string]any{"process_owner": "COO"},
	}))
	require.NoError(t, err)

	sopCtx := resultJSON(t, result)["context"].(map[string]any)
	assert.Equal(t, "COO", sopCtx["process_owner"])
}

func TestGenerateTool_InvalidMetadata(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleGenerate(context.Background(), buildRequest("sop.generate", map[string]any{
		"xml": orderXML,
		"metadata": map[string]any{
			"abbreviations_list": []any{
				map[string]any{"term": "PO", "definition": "a"},
				map[string]any{"term": "PO", "definition": "b"},
			},
		},
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "metadata validation failed")
}

func TestGenerateTool_Query(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleGenerate(context.Background(), buildRequest("sop.generate", map[string]any{
		"xml":   orderXML,
		"query": `[.steps[].ref]`,
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Nil(t, out["context"])
	assert.Equal(t, []any{"1", "2"}, out["result"])
}

func TestMetadataTool(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleMetadata(context.Background(), buildRequest("sop.metadata", map[string]any{
		"xml": orderXML,
	}))
	require.NoError(t, err)

	meta := resultJSON(t, result)["metadata"].(map[string]any)
	assert.Equal(t, "Order Handling", meta["process_name"])
	assert.Equal(t, []any{"Clerk"}, meta["lane_names"])
}

func TestArchivesTool_Lifecycle(t *testing.T) {
	s := newTestSOPServer(t)
	ctx := context.Background()

	// Generate twice with archiving on.
	var archiveID string
	for i := 0; i < 2; i++ {
		result, err := s.handleGenerate(ctx, buildRequest("sop.generate", map[string]any{
			"xml":     orderXML,
			"archive": true,
			"note":    "import",
		}))
		require.NoError(t, err)
		archiveID = resultJSON(t, result)["archive_id"].(string)
		require.NotEmpty(t, archiveID)
	}

	// List.
	result, err := s.handleArchives(ctx, buildRequest("sop.archives", map[string]any{"action": "list"}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), resultJSON(t, result)["count"])

	// List with a filter that excludes everything.
	result, err = s.handleArchives(ctx, buildRequest("sop.archives", map[string]any{
		"action": "list",
		"filter": `step_count > 10`,
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(0), resultJSON(t, result)["count"])

	// Get with projection.
	result, err = s.handleArchives(ctx, buildRequest("sop.archives", map[string]any{
		"action":     "get",
		"archive_id": archiveID,
		"query":      ".steps | length",
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), resultJSON(t, result)["result"])

	// History.
	result, err = s.handleArchives(ctx, buildRequest("sop.archives", map[string]any{
		"action":     "history",
		"archive_id": archiveID,
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resultJSON(t, result)["count"])

	// Delete, then get fails.
	result, err = s.handleArchives(ctx, buildRequest("sop.archives", map[string]any{
		"action":     "delete",
		"archive_id": archiveID,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, result)["ok"])

	result, err = s.handleArchives(ctx, buildRequest("sop.archives", map[string]any{
		"action":     "get",
		"archive_id": archiveID,
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "get failed")
}

func TestArchivesTool_UnknownAction(t *testing.T) {
	s := newTestSOPServer(t)

	result, err := s.handleArchives(context.Background(), buildRequest("sop.archives", map[string]any{
		"action": "purge",
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "unknown action")
}

func TestServerRegistersTools(t *testing.T) {
	s := newTestSOPServer(t)
	assert.NotNil(t, s.MCPServer())
	assert.Len(t, s.tools(), 3)
}
