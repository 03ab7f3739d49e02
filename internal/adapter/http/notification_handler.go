package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type NotificationHandler struct {
	service interfaces.NotificationService
	logger  logger.Logger
}

func NewNotificationHandler(service interfaces.NotificationService, logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

type SendOfferRequest struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	RoleTarget string `json:"role_target"`
}

type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

func (h *NotificationHandler) SendOffer(w http.ResponseWriter, r *http.Request) {
	var req SendOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondDomainError(w, domain.Invalidf("title", "title is required"))
		return
	}

	target := domain.RoleTarget(req.RoleTarget)
	if req.RoleTarget == "" {
		target = domain.TargetAll
	}

	n, err := h.service.SendOffer(r.Context(), actorFrom(r), strings.TrimSpace(req.Title), strings.TrimSpace(req.Message), target)
	if err != nil {
		h.logger.Error("offer_send_failed", "Failed to send offer announcement", "", nil, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationFromQuery(r)

	notifications, err := h.service.List(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*domain.UserNotification{}
	}
	respondJSON(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadCount(r.Context(), actorFrom(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.service.MarkRead(r.Context(), actorFrom(r), req.NotificationIDs); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAllRead(r.Context(), actorFrom(r)); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func paginationFromQuery(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}
