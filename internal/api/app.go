// Package api exposes the wardrobe and the event log to operators, over HTTP
// and as an MCP server.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

const (
	maxBodySize       = 1 << 20 // 1MB
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// WardrobeStore is the wardrobe access the API needs.
type WardrobeStore interface {
	UserItems(userID string) map[string][]string
	BulkAdd(userID string, items []wardrobe.BulkItem) (wardrobe.BulkResult, error)
}

// EventLog is the event journal access the API needs.
type EventLog interface {
	ListEvents(f storage.EventFilter) ([]storage.Event, error)
	ExportCSV(w io.Writer) error
}

type AppDeps struct {
	Wardrobe WardrobeStore
	Events   EventLog
	Token    string
}

// WardrobeResponse is the body of GET /wardrobe/{userID}.
type WardrobeResponse struct {
	UserID string              `json:"user_id"`
	Items  map[string][]string `json:"items"`
}

// AddItemsRequest is the body of POST /wardrobe/{userID}/items.
type AddItemsRequest struct {
	Items []wardrobe.BulkItem `json:"items"`
}

// EventsResponse is the body of GET /events.
type EventsResponse struct {
	Events []storage.Event `json:"events"`
}

// NewAppHandler returns the admin API router. /health is public; everything
// else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/wardrobe/{userID}", handleGetWardrobe(deps))
		r.Post("/wardrobe/{userID}/items", handleAddItems(deps))
		r.Get("/events", handleListEvents(deps))
		r.Get("/events/export", handleExportEvents(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleGetWardrobe(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, WardrobeResponse{
			UserID: userID,
			Items:  deps.Wardrobe.UserItems(userID),
		})
	}
}

func handleAddItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req AddItemsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Items) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "items must not be empty")
			return
		}

		res, err := deps.Wardrobe.BulkAdd(userID, req.Items)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add items: %v", err)
			return
		}
		slog.Info("wardrobe items added via api", "user_id", userID, "count", len(req.Items))
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := storage.EventFilter{Limit: defaultEventLimit, Kind: q.Get("kind")}

		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			f.Limit = min(n, maxEventLimit)
		}
		if v := q.Get("user_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id must be an integer")
				return
			}
			f.UserID = &id
		}

		events, err := deps.Events.ListEvents(f)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list events: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, EventsResponse{Events: events})
	}
}

func handleExportEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := deps.Events.ExportCSV(&buf); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to export events: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="log.csv"`)
		w.Write(buf.Bytes())
	}
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "userID")
	if !validUserID(raw) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "user id must be an integer, got %q", raw)
		return "", false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
