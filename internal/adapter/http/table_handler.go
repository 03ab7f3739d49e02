package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type TableHandler struct {
	service interfaces.TableService
	logger  logger.Logger
}

func NewTableHandler(service interfaces.TableService, logger logger.Logger) *TableHandler {
	return &TableHandler{
		service: service,
		logger:  logger,
	}
}

type CreateTableRequest struct {
	Number   int `json:"number"`
	Capacity int `json:"capacity"`
}

func (h *TableHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	t, err := h.service.CreateTable(r.Context(), actorFrom(r), req.Number, req.Capacity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (h *TableHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.ListTables(r.Context(), actorFrom(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if tables == nil {
		tables = []*domain.Table{}
	}
	respondJSON(w, http.StatusOK, tables)
}

func (h *TableHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Reserve)
}

func (h *TableHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Release)
}

func (h *TableHandler) MarkClean(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.MarkClean)
}

func (h *TableHandler) ForceReset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.ForceReset)
}

type tableOp func(ctx context.Context, actor interfaces.Actor, tableID string) (*domain.Table, error)

func (h *TableHandler) respond(w http.ResponseWriter, r *http.Request, op tableOp) {
	t, err := op(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}
