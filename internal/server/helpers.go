package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/procdocs/sopgen/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response, mapping SOPError codes to HTTP
// statuses.
func writeError(w http.ResponseWriter, err error) {
	var sopErr *schema.SOPError
	if !errors.As(err, &sopErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch sopErr.Code {
	case schema.ErrCodeMalformedInput, schema.ErrCodeValidation, schema.ErrCodeQuery:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeSessionExpired:
		status = http.StatusGone
	}

	body := map[string]any{
		"error": sopErr.Message,
		"code":  sopErr.Code,
	}
	if sopErr.Ref != "" {
		body["ref"] = sopErr.Ref
	}
	if len(sopErr.Details) > 0 {
		body["details"] = sopErr.Details
	}
	writeJSON(w, status, body)
}

// badRequest writes a plain 400 with a message.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
		"code":  schema.ErrCodeValidation,
	})
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// contextToMap round-trips a SOPContext through JSON so jq projections see
// plain maps and slices.
func contextToMap(sopCtx *schema.SOPContext) (map[string]any, error) {
	raw, err := json.Marshal(sopCtx)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
