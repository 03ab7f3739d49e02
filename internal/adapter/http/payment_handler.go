package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type PaymentHandler struct {
	service interfaces.PaymentService
	logger  logger.Logger
}

func NewPaymentHandler(service interfaces.PaymentService, logger logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

type InitiatePaymentRequest struct {
	OrderID string `json:"order_id"`
}

type ProcessPaymentRequest struct {
	Method         string  `json:"method"`
	TransactionID  string  `json:"transaction_id,omitempty"`
	AmountReceived float64 `json:"amount_received"`
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		respondDomainError(w, domain.Invalidf("order_id", "order id is required"))
		return
	}

	session, err := h.service.Initiate(r.Context(), actorFrom(r), req.OrderID)
	if err != nil {
		h.logger.Error("payment_initiate_failed", "Failed to open payment session", "", nil, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	in := domain.PaymentInput{
		Method:         domain.PaymentMethod(req.Method),
		TransactionID:  strings.TrimSpace(req.TransactionID),
		AmountReceived: req.AmountReceived,
	}

	session, err := h.service.Process(r.Context(), actorFrom(r), r.PathValue("sessionId"), in)
	if err != nil {
		h.logger.Error("payment_process_failed", "Failed to process payment", "", map[string]interface{}{
			"session_id": r.PathValue("sessionId"),
		}, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Cancel(r.Context(), actorFrom(r), r.PathValue("sessionId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}
