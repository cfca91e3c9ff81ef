package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procdocs/sopgen/internal/sessions"
	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/internal/validation"
	"github.com/procdocs/sopgen/pkg/schema"
)

const linearXML = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn:collaboration id="col1">
    <bpmn:participant id="p1" name="Order Handling" processRef="proc1"/>
  </bpmn:collaboration>
  <bpmn:process id="proc1">
    <bpmn:laneSet id="ls1">
      <bpmn:lane id="l1" name="Analyst">
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

func newTestServer(t *testing.T) (*Server, *store.LibSQLStore) {
	t.Helper()

	dbPath := "file:" + filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewLibSQLStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	validator, err := validation.NewDocumentValidator()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Deps{
		Store:     st,
		Revisions: store.NewRevisionLog(st),
		Sessions:  sessions.NewManager(st, time.Minute, logger),
		Validator: validator,
		Logger:    logger,
	})
	return srv, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerate_Inline(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]any{
		"xml": linearXML,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	sopCtx := body["context"].(map[string]any)
	assert.Equal(t, "Order Handling", sopCtx["process_name"])
	assert.Len(t, sopCtx["steps"], 2)
}

func TestGenerate_MissingXML(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_MalformedXML(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]any{
		"xml": "<bpmn:definitions",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, schema.ErrCodeMalformedInput, body["code"])
}

func TestGenerate_MetadataOverride(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]any{
		"xml":      linearXML,
		"metadata": map[string]any{"process_name": "Custom Name", "issued_by": "Ops"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	sopCtx := decodeBody(t, rec)["context"].(map[string]any)
	assert.Equal(t, "Custom Name", sopCtx["process_name"])
	assert.Equal(t, "Ops", sopCtx["issued_by"])
}

func TestGenerate_InvalidMetadata(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]any{
		"xml": linearXML,
		"metadata": map[string]any{
			"abbreviations_list": []map[string]any{
				{"term": "SLA", "definition": "a"},
				{"term": "SLA", "definition": "b"},
			},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_Query(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/generate", map[string]any{
		"xml":   linearXML,
		"query": `[.steps[].ref]`,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Nil(t, body["context"])
	assert.Equal(t, []any{"1", "2"}, body["result"])
}

func TestGenerate_ArchiveAndFetch(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/generate", map[string]any{
		"xml":     linearXML,
		"archive": true,
		"note":    "initial import",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	archiveID := decodeBody(t, rec)["archive_id"].(string)
	require.NotEmpty(t, archiveID)

	rec = doJSON(t, h, http.MethodGet, "/api/archives/"+archiveID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Order Handling", body["process_name"])
	assert.Equal(t, float64(2), body["step_count"])

	// Stored context supports jq projection.
	rec = doJSON(t, h, http.MethodGet, "/api/archives/"+archiveID+"?query=.process_name", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order Handling", decodeBody(t, rec)["result"])
}

func TestGetArchive_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/archives/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListArchives_Filter(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/generate", map[string]any{
			"xml":     linearXML,
			"archive": true,
		})
		require.Equal(t, http.StatusOK, rec.Code, "archive %d", i)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/archives", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["count"])

	rec = doJSON(t, h, http.MethodGet, "/api/archives?filter="+
		"step_count+%3E+10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])

	rec = doJSON(t, h, http.MethodGet, "/api/archives?filter=bogus+%2B+", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryAndRegenerate(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/generate", map[string]any{
		"xml":     linearXML,
		"archive": true,
		"note":    "v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	archiveID := decodeBody(t, rec)["archive_id"].(string)

	rec = doJSON(t, h, http.MethodPost, "/api/archives/"+archiveID+"/regenerate", map[string]any{
		"metadata": map[string]any{"process_owner": "COO"},
		"note":     "owner added",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["revision"])
	assert.Equal(t, "COO", body["context"].(map[string]any)["process_owner"])

	rec = doJSON(t, h, http.MethodGet, "/api/archives/"+archiveID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	rec = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/archives/%s/history?filter=note+%%3D%%3D+%%22owner+added%%22", archiveID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestDeleteArchive(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/generate", map[string]any{
		"xml": linearXML, "archive": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	archiveID := decodeBody(t, rec)["archive_id"].(string)

	rec = doJSON(t, h, http.MethodDelete, "/api/archives/"+archiveID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/archives/"+archiveID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/upload", map[string]any{"xml": linearXML})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	sessionID := body["id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "Order Handling", body["metadata"].(map[string]any)["process_name"])

	// Edit metadata, then generate with the edited values.
	rec = doJSON(t, h, http.MethodPut, "/api/preview/"+sessionID, map[string]any{
		"process_name": "Edited Name",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/preview/"+sessionID+"/generate", map[string]any{
		"archive": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	genBody := decodeBody(t, rec)
	assert.Equal(t, "Edited Name", genBody["context"].(map[string]any)["process_name"])
	assert.NotEmpty(t, genBody["archive_id"])
}

func TestPreview_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/preview/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
