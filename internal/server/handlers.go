package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/procdocs/sopgen/internal/logging"
	"github.com/procdocs/sopgen/internal/sop"
	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/pkg/schema"
)

// maxUploadBytes caps request bodies; process diagrams are small XML files.
const maxUploadBytes = 8 << 20

// generateRequest is the body of POST /api/generate.
type generateRequest struct {
	XML      string           `json:"xml"`
	Metadata *schema.Metadata `json:"metadata"`
	Archive  bool             `json:"archive"`
	Note     string           `json:"note"`
	Query    string           `json:"query"`
}

// handleGenerate runs the full transformation on an inline diagram.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.XML == "" {
		badRequest(w, "xml is required")
		return
	}

	resp, err := s.generate(ctx, []byte(body.XML), body.Metadata, body.Archive, body.Note, "", body.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// generate validates metadata, synthesizes the SOP context and optionally
// archives it and applies a jq projection. Shared by the inline, preview
// and regenerate paths.
func (s *Server) generate(ctx context.Context, xml []byte, meta *schema.Metadata, archive bool, note, sessionID, query string) (map[string]any, error) {
	if meta != nil && s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateMetadata(meta); err != nil {
			return nil, err
		}
	}

	var metaVal schema.Metadata
	if meta != nil {
		metaVal = *meta
	}

	sopCtx, err := sop.Generate(xml, metaVal)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithProcessName(ctx, sopCtx.ProcessName)
	resp := map[string]any{"context": sopCtx}

	if archive {
		archiveID, archiveErr := s.archiveContext(ctx, xml, sopCtx, note, sessionID)
		if archiveErr != nil {
			return nil, archiveErr
		}
		resp["archive_id"] = archiveID
		ctx = logging.WithArchiveID(ctx, archiveID)
	}

	if query != "" {
		doc, mapErr := contextToMap(sopCtx)
		if mapErr != nil {
			return nil, schema.NewError(schema.ErrCodeGeneration, "failed to serialize context").WithCause(mapErr)
		}
		result, queryErr := s.deps.Project.Evaluate(ctx, query, doc)
		if queryErr != nil {
			return nil, queryErr
		}
		delete(resp, "context")
		resp["result"] = result
	}

	logging.LogWith(ctx, s.deps.Logger).Info("generated sop",
		slog.Int("steps", len(sopCtx.Steps)),
		slog.Bool("archived", archive),
	)
	return resp, nil
}

// archiveContext persists a generated context and appends the first (or
// next) revision of its history.
func (s *Server) archiveContext(ctx context.Context, xml []byte, sopCtx *schema.SOPContext, note, sessionID string) (string, error) {
	ctxJSON, err := json.Marshal(sopCtx)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeStore, "failed to serialize context").WithCause(err)
	}

	now := time.Now().UTC()
	archive := &store.Archive{
		ID:          uuid.New().String(),
		ProcessName: sopCtx.ProcessName,
		ProcessCode: sopCtx.ProcessCode,
		SourceXML:   xml,
		Context:     ctxJSON,
		StepCount:   len(sopCtx.Steps),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Store.SaveArchive(ctx, archive); err != nil {
		return "", err
	}

	err = s.deps.Revisions.Append(ctx, &store.Revision{
		ArchiveID: archive.ID,
		Context:   ctxJSON,
		Note:      note,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	return archive.ID, nil
}

// handleExtractMetadata returns the auto-extracted metadata for a diagram.
func (s *Server) handleExtractMetadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		XML string `json:"xml"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.XML == "" {
		badRequest(w, "xml is required")
		return
	}

	meta, err := sop.ExtractMetadata([]byte(body.XML))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metadata": meta})
}

// handleListArchives lists archives with query-param filters plus an
// optional expression filter evaluated per row.
func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := store.ArchiveFilter{
		ProcessName: q.Get("process_name"),
		ProcessCode: q.Get("process_code"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			badRequest(w, fmt.Sprintf("invalid since timestamp: %v", err))
			return
		}
		filter.Since = &t
	}

	archives, err := s.deps.Store.ListArchives(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if exprFilter := q.Get("filter"); exprFilter != "" {
		archives, err = s.filterArchives(ctx, archives, exprFilter)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archives": archives,
		"count":    len(archives),
	})
}

// filterArchives keeps archives matching a boolean filter expression.
func (s *Server) filterArchives(ctx context.Context, archives []*store.Archive, expression string) ([]*store.Archive, error) {
	filtered := make([]*store.Archive, 0, len(archives))
	for _, a := range archives {
		keep, err := s.deps.Filter.EvaluateBool(ctx, expression, map[string]any{
			"id":           a.ID,
			"process_name": a.ProcessName,
			"process_code": a.ProcessCode,
			"step_count":   a.StepCount,
			"created_at":   a.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		if keep {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// handleGetArchive returns one archive, optionally projecting its stored
// context through a jq query.
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	archive, err := s.deps.Store.GetArchive(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if query := r.URL.Query().Get("query"); query != "" {
		var doc map[string]any
		if err := json.Unmarshal(archive.Context, &doc); err != nil {
			writeError(w, schema.NewError(schema.ErrCodeStore, "stored context is unreadable").WithCause(err))
			return
		}
		result, err := s.deps.Project.Evaluate(ctx, query, doc)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": archive.ID, "result": result})
		return
	}

	writeJSON(w, http.StatusOK, archive)
}

// handleDeleteArchive removes an archive and its revision history.
func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.DeleteArchive(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": id})
}

// handleHistory returns an archive's revision log with an optional
// expression filter.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	revisions, err := s.deps.Revisions.History(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if exprFilter := r.URL.Query().Get("filter"); exprFilter != "" {
		filtered := make([]*store.Revision, 0, len(revisions))
		for _, rev := range revisions {
			keep, err := s.deps.Filter.EvaluateBool(ctx, exprFilter, map[string]any{
				"revision":   int(rev.Revision),
				"note":       rev.Note,
				"session_id": rev.SessionID,
				"created_at": rev.CreatedAt.Format(time.RFC3339),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			if keep {
				filtered = append(filtered, rev)
			}
		}
		revisions = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archive_id": id,
		"revisions":  revisions,
		"count":      len(revisions),
	})
}

// handleRegenerate re-runs generation from an archive's stored diagram,
// updating the archive in place and appending a revision.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var body struct {
		Metadata *schema.Metadata `json:"metadata"`
		Note     string           `json:"note"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil && err != io.EOF {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	archive, err := s.deps.Store.GetArchive(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if body.Metadata != nil && s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateMetadata(body.Metadata); err != nil {
			writeError(w, err)
			return
		}
	}

	var metaVal schema.Metadata
	if body.Metadata != nil {
		metaVal = *body.Metadata
	}

	sopCtx, err := sop.Generate(archive.SourceXML, metaVal)
	if err != nil {
		writeError(w, err)
		return
	}

	ctxJSON, err := json.Marshal(sopCtx)
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeStore, "failed to serialize context").WithCause(err))
		return
	}

	archive.ProcessName = sopCtx.ProcessName
	archive.ProcessCode = sopCtx.ProcessCode
	archive.Context = ctxJSON
	archive.StepCount = len(sopCtx.Steps)
	if err := s.deps.Store.SaveArchive(ctx, archive); err != nil {
		writeError(w, err)
		return
	}

	rev := &store.Revision{ArchiveID: id, Context: ctxJSON, Note: body.Note}
	if err := s.deps.Revisions.Append(ctx, rev); err != nil {
		writeError(w, err)
		return
	}

	logging.LogWith(logging.WithArchiveID(ctx, id), s.deps.Logger).Info("regenerated archive",
		slog.Int64("revision", rev.Revision),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"archive_id": id,
		"revision":   rev.Revision,
		"context":    sopCtx,
	})
}

// handleUpload opens a preview session for an uploaded diagram, returning
// the session id and the auto-extracted metadata for editing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		XML string `json:"xml"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.XML == "" {
		badRequest(w, "xml is required")
		return
	}

	meta, err := sop.ExtractMetadata([]byte(body.XML))
	if err != nil {
		writeError(w, err)
		return
	}

	preview, err := s.deps.Sessions.Create(ctx, []byte(body.XML), meta)
	if err != nil {
		writeError(w, err)
		return
	}

	logging.LogWith(logging.WithSessionID(ctx, preview.ID), s.deps.Logger).Info("preview session opened")
	writeJSON(w, http.StatusCreated, preview)
}

// handleGetPreview returns a preview session's current metadata.
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleUpdatePreview replaces a preview session's metadata.
func (s *Server) handleUpdatePreview(w http.ResponseWriter, r *http.Request) {
	var meta schema.Metadata
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&meta); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateMetadata(&meta); err != nil {
			writeError(w, err)
			return
		}
	}

	preview, err := s.deps.Sessions.Update(r.Context(), r.PathValue("id"), meta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handlePreviewGenerate runs generation with the session's diagram and its
// edited metadata.
func (s *Server) handlePreviewGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var body struct {
		Archive bool   `json:"archive"`
		Note    string `json:"note"`
		Query   string `json:"query"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil && err != io.EOF {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	preview, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx = logging.WithSessionID(ctx, id)
	meta := preview.Meta
	resp, err := s.generate(ctx, preview.XML, &meta, body.Archive, body.Note, id, body.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
