// Package api exposes the catalog over JSON HTTP. Handlers stay thin: they
// decode, delegate to the engine and map the error taxonomy to status
// codes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rpattn/metacat/internal/catalog"
	"github.com/rpattn/metacat/internal/domain"
	"github.com/rpattn/metacat/internal/entities"
	"github.com/rpattn/metacat/internal/search"
)

const userHeader = "X-User"

// Server holds the handler dependencies.
type Server struct {
	engine    *catalog.Engine
	reindexer *search.Reindexer
	log       *slog.Logger
}

// NewServer creates the API server.
func NewServer(engine *catalog.Engine, reindexer *search.Reindexer, log *slog.Logger) *Server {
	return &Server{engine: engine, reindexer: reindexer, log: log}
}

// Routes registers all endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/entities/{type}", s.handlePut)
	mux.HandleFunc("PATCH /v1/entities/{type}/{id}", s.handlePatch)
	mux.HandleFunc("GET /v1/entities/{type}/{id}", s.handleGetByID)
	mux.HandleFunc("GET /v1/entities/{type}/name/{fqn}", s.handleGetByName)
	mux.HandleFunc("GET /v1/entities/{type}/{id}/container", s.handleGetContainer)
	mux.HandleFunc("DELETE /v1/entities/{type}/{id}", s.handleDelete)

	mux.HandleFunc("PUT /v1/kpi/{fqn}/kpiResult", s.handlePutKPIResult)
	mux.HandleFunc("GET /v1/kpi/{fqn}/kpiResult/latest", s.handleLatestKPIResult)
	mux.HandleFunc("GET /v1/kpi/{fqn}/kpiResult", s.handleListKPIResults)
	mux.HandleFunc("DELETE /v1/kpi/{fqn}/kpiResult/{timestamp}", s.handleDeleteKPIResult)

	mux.HandleFunc("POST /v1/reindex/{type}", s.handleReindex)
	return mux
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var desired domain.Entity
	if err := json.NewDecoder(r.Body).Decode(&desired); err != nil {
		s.writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}
	desired.Type = r.PathValue("type")

	result, err := s.engine.CreateOrUpdate(r.Context(), desired, catalog.OperationPut, userOf(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, result.Entity)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, domain.NewValidation("invalid entity id"))
		return
	}
	var desired domain.Entity
	if err := json.NewDecoder(r.Body).Decode(&desired); err != nil {
		s.writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}
	desired.ID = id
	desired.Type = r.PathValue("type")

	result, err := s.engine.CreateOrUpdate(r.Context(), desired, catalog.OperationPatch, userOf(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result.Entity)
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, domain.NewValidation("invalid entity id"))
		return
	}
	entity, err := s.engine.GetByID(r.Context(), r.PathValue("type"), id, includeOf(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleGetByName(w http.ResponseWriter, r *http.Request) {
	entity, err := s.engine.GetByName(r.Context(), r.PathValue("type"), r.PathValue("fqn"), includeOf(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, domain.NewValidation("invalid entity id"))
		return
	}
	ref, err := s.engine.GetContainer(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, domain.NewValidation("invalid entity id"))
		return
	}
	hardDelete := r.URL.Query().Get("hardDelete") == "true"

	result, err := s.engine.Delete(r.Context(), r.PathValue("type"), id, hardDelete, userOf(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result.Entity)
}

type kpiResultRequest struct {
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (s *Server) handlePutKPIResult(w http.ResponseWriter, r *http.Request) {
	var req kpiResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.NewValidation("invalid request body: %v", err))
		return
	}
	if req.Timestamp <= 0 || len(req.Payload) == 0 {
		s.writeError(w, domain.NewValidation("timestamp and payload are required"))
		return
	}

	event, err := s.engine.AppendExtension(r.Context(), entities.TypeKPI, r.PathValue("fqn"),
		entities.KPIResultExtension, entities.KPIResultField, req.Payload, req.Timestamp)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleLatestKPIResult(w http.ResponseWriter, r *http.Request) {
	payload, err := s.engine.LatestExtension(r.Context(), r.PathValue("fqn"), entities.KPIResultExtension)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleListKPIResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	startTs, err := strconv.ParseInt(query.Get("startTs"), 10, 64)
	if err != nil {
		s.writeError(w, domain.NewValidation("startTs must be epoch milliseconds"))
		return
	}
	endTs, err := strconv.ParseInt(query.Get("endTs"), 10, 64)
	if err != nil {
		s.writeError(w, domain.NewValidation("endTs must be epoch milliseconds"))
		return
	}
	order := domain.OrderAscending
	if query.Get("order") == "DESC" {
		order = domain.OrderDescending
	}

	records, err := s.engine.ExtensionRange(r.Context(), r.PathValue("fqn"),
		entities.KPIResultExtension, startTs, endTs, order)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDeleteKPIResult(w http.ResponseWriter, r *http.Request) {
	timestamp, err := strconv.ParseInt(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		s.writeError(w, domain.NewValidation("timestamp must be epoch milliseconds"))
		return
	}
	event, err := s.engine.DeleteExtensionAt(r.Context(), entities.TypeKPI, r.PathValue("fqn"),
		entities.KPIResultExtension, entities.KPIResultField, timestamp)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reindexer.Reindex(r.Context(), r.PathValue("type"))
	if err != nil {
		s.log.Error("reindex failed", "entityType", r.PathValue("type"), "error", err)
		s.writeJSON(w, statusFor(err), map[string]any{"stats": stats, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func userOf(r *http.Request) string {
	if user := r.Header.Get(userHeader); user != "" {
		return user
	}
	return "anonymous"
}

func includeOf(r *http.Request) domain.Include {
	switch r.URL.Query().Get("include") {
	case "all":
		return domain.IncludeAll
	case "deleted":
		return domain.IncludeDeletedOnly
	default:
		return domain.IncludeNonDeleted
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var appErr *domain.Error
	if !errors.As(err, &appErr) {
		s.log.Error("unhandled error", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, statusFor(err), map[string]string{
		"code":  appErr.Code,
		"error": appErr.Message,
	})
}

func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsConflict(err):
		return http.StatusConflict
	case domain.IsExternalDependency(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
