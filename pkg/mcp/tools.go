package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/procdocs/sopgen/internal/logging"
	"github.com/procdocs/sopgen/internal/sop"
	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/pkg/schema"
)

// handleGenerate transforms a diagram and optionally archives the result.
func (s *SOPServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	xml, err := req.RequireString("xml")
	if err != nil {
		return mcp.NewToolResultError("xml is required"), nil
	}

	var meta schema.Metadata
	if metaRaw := mcp.ParseStringMap(req, "metadata", nil); metaRaw != nil {
		metaBytes, marshalErr := json.Marshal(metaRaw)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid metadata: %v", marshalErr)), nil
		}
		if unmarshalErr := json.Unmarshal(metaBytes, &meta); unmarshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid metadata: %v", unmarshalErr)), nil
		}
		if s.validator != nil {
			if valErr := s.validator.ValidateMetadata(&meta); valErr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("metadata validation failed: %v", valErr)), nil
			}
		}
	}

	sopCtx, genErr := sop.Generate([]byte(xml), meta)
	if genErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", genErr)), nil
	}

	ctx = logging.WithProcessName(ctx, sopCtx.ProcessName)
	result := map[string]any{"context": sopCtx}

	if req.GetBool("archive", false) {
		archiveID, archiveErr := s.archiveContext(ctx, []byte(xml), sopCtx, req.GetString("note", ""))
		if archiveErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to archive: %v", archiveErr)), nil
		}
		result["archive_id"] = archiveID
	}

	if query := req.GetString("query", ""); query != "" {
		projected, queryErr := s.projectContext(ctx, sopCtx, query)
		if queryErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("projection failed: %v", queryErr)), nil
		}
		delete(result, "context")
		result["result"] = projected
	}

	logging.LogWith(ctx, s.logger).Info("generated sop via tool",
		slog.Int("steps", len(sopCtx.Steps)),
	)
	return marshalResult(result)
}

// handleMetadata returns the auto-extracted header metadata of a diagram.
func (s *SOPServer) handleMetadata(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	xml, err := req.RequireString("xml")
	if err != nil {
		return mcp.NewToolResultError("xml is required"), nil
	}

	meta, extractErr := sop.ExtractMetadata([]byte(xml))
	if extractErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", extractErr)), nil
	}

	return marshalResult(map[string]any{"metadata": meta})
}

// handleArchives lists, fetches, queries or deletes stored generations.
func (s *SOPServer) handleArchives(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "list":
		return s.listArchives(ctx, req)
	case "get":
		return s.getArchive(ctx, req)
	case "history":
		return s.archiveHistory(ctx, req)
	case "delete":
		return s.deleteArchive(ctx, req)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

func (s *SOPServer) listArchives(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)

	archives, err := s.store.ListArchives(ctx, store.ArchiveFilter{Limit: limit})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}

	if filter := req.GetString("filter", ""); filter != "" {
		filtered := make([]*store.Archive, 0, len(archives))
		for _, a := range archives {
			keep, filterErr := s.filter.EvaluateBool(ctx, filter, map[string]any{
				"id":           a.ID,
				"process_name": a.ProcessName,
				"process_code": a.ProcessCode,
				"step_count":   a.StepCount,
				"created_at":   a.CreatedAt.Format(time.RFC3339),
			})
			if filterErr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("filter failed: %v", filterErr)), nil
			}
			if keep {
				filtered = append(filtered, a)
			}
		}
		archives = filtered
	}

	return marshalResult(map[string]any{
		"archives": archives,
		"count":    len(archives),
	})
}

func (s *SOPServer) getArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	archiveID := req.GetString("archive_id", "")
	if archiveID == "" {
		return mcp.NewToolResultError("archive_id is required for get"), nil
	}

	archive, err := s.store.GetArchive(ctx, archiveID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}

	if query := req.GetString("query", ""); query != "" {
		var doc map[string]any
		if unmarshalErr := json.Unmarshal(archive.Context, &doc); unmarshalErr != nil {
			return mcp.NewToolResultError("stored context is unreadable"), nil
		}
		result, queryErr := s.project.Evaluate(ctx, query, doc)
		if queryErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("projection failed: %v", queryErr)), nil
		}
		return marshalResult(map[string]any{"id": archive.ID, "result": result})
	}

	return marshalResult(archive)
}

func (s *SOPServer) archiveHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	archiveID := req.GetString("archive_id", "")
	if archiveID == "" {
		return mcp.NewToolResultError("archive_id is required for history"), nil
	}

	revisions, err := s.revisions.History(ctx, archiveID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"archive_id": archiveID,
		"revisions":  revisions,
		"count":      len(revisions),
	})
}

func (s *SOPServer) deleteArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	archiveID := req.GetString("archive_id", "")
	if archiveID == "" {
		return mcp.NewToolResultError("archive_id is required for delete"), nil
	}

	if err := s.store.DeleteArchive(ctx, archiveID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}

	return marshalResult(map[string]any{"ok": true, "id": archiveID})
}

// archiveContext persists a generated context and appends its first revision.
func (s *SOPServer) archiveContext(ctx context.Context, xml []byte, sopCtx *schema.SOPContext, note string) (string, error) {
	ctxJSON, err := json.Marshal(sopCtx)
	if err != nil {
		return "", err
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
	if err := s.store.SaveArchive(ctx, archive); err != nil {
		return "", err
	}

	err = s.revisions.Append(ctx, &store.Revision{
		ArchiveID: archive.ID,
		Context:   ctxJSON,
		Note:      note,
	})
	if err != nil {
		return "", err
	}
	return archive.ID, nil
}

// projectContext applies a jq query to a generated context.
func (s *SOPServer) projectContext(ctx context.Context, sopCtx *schema.SOPContext, query string) (any, error) {
	raw, err := json.Marshal(sopCtx)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return s.project.Evaluate(ctx, query, doc)
}

// marshalResult renders a tool result as indented JSON text.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
