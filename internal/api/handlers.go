package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/decisionrecords/internal/index"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListRecords handles GET /api/records.
//
//	@Summary	List decision records, optionally filtered by status
//	@Param		status	query	string	false	"Status word, e.g. Approved"
//	@Success	200		{object}	RecordListResponse
//	@Router		/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListRecords(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: rows, Total: len(rows)})
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary	Get a record with its outgoing and incoming relations
//	@Param		id	path	int	true	"Record identifier"
//	@Success	200	{object}	RecordDetail
//	@Failure	400	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Router		/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be a positive integer"))
		return
	}
	rec, err := h.svc.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, "get record", err, slog.Int("id", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Search handles GET /api/search.
//
//	@Summary	Full-text search across records
//	@Param		q		query	string	true	"Search query"
//	@Param		limit	query	int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary	Get the relation graph
//	@Success	200	{object}	GraphResponse
//	@Router		/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Edges: edges})
}

// Check handles GET /api/check.
//
//	@Summary	List relation consistency problems
//	@Success	200	{object}	CheckResponse
//	@Router		/check [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	issues, err := h.svc.Check(r.Context())
	if err != nil {
		writeError(w, "check", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Issues: issues, Total: len(issues)})
}
