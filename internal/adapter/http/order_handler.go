package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type OrderHandler struct {
	service interfaces.OrderService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.OrderService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

type CreateOrderRequest struct {
	OrderType string             `json:"order_type"`
	TableID   string             `json:"table_id,omitempty"`
	Items     []OrderItemRequest `json:"items"`
	TaxRate   float64            `json:"tax_rate"`
	Discount  float64            `json:"discount"`
}

type OrderItemRequest struct {
	MenuItemRef string  `json:"menu_item_ref"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	Notes       string  `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if validationErrors := validateCreateOrderRequest(req); len(validationErrors) > 0 {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Errors: validationErrors,
		})
		return
	}

	cmd := interfaces.CreateOrderCommand{
		Type:     domain.OrderType(req.OrderType),
		TableID:  strings.TrimSpace(req.TableID),
		Items:    convertItemsToCommand(req.Items),
		TaxRate:  req.TaxRate,
		Discount: req.Discount,
	}

	order, err := h.service.CreateOrder(r.Context(), actorFrom(r), cmd)
	if err != nil {
		h.logger.Error("order_creation_failed", "Failed to create order", "", nil, err)
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), actorFrom(r), r.PathValue("id"), domain.OrderStatus(req.Status))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	order, err := h.service.UpdateItemStatus(r.Context(), actorFrom(r), r.PathValue("id"), r.PathValue("itemId"), domain.ItemStatus(req.Status))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	order, err := h.service.CancelOrder(r.Context(), actorFrom(r), r.PathValue("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) CancelItem(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	order, err := h.service.CancelItem(r.Context(), actorFrom(r), r.PathValue("id"), r.PathValue("itemId"), strings.TrimSpace(req.Reason))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilterFromQuery(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), actorFrom(r), f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func orderFilterFromQuery(r *http.Request) (interfaces.OrderFilter, error) {
	q := r.URL.Query()
	f := interfaces.OrderFilter{
		Status:  domain.OrderStatus(q.Get("status")),
		Type:    domain.OrderType(q.Get("type")),
		TableID: q.Get("table_id"),
	}

	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, domain.Invalidf(name, "must be an RFC3339 timestamp")
			}
			*dst = &t
		}
	}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return f, domain.Invalidf(name, "must be a non-negative integer")
			}
			*dst = n
		}
	}
	return f, nil
}

func validateCreateOrderRequest(req CreateOrderRequest) []*domain.ValidationError {
	var errs []*domain.ValidationError

	invalid := func(field, message string) {
		errs = append(errs, &domain.ValidationError{Field: field, Message: message})
	}

	switch domain.OrderType(req.OrderType) {
	case domain.OrderTypeDineIn:
		if strings.TrimSpace(req.TableID) == "" {
			invalid("table_id", "table is required for dine-in orders")
		}
	case domain.OrderTypeTakeaway:
		if req.TableID != "" {
			invalid("table_id", "table must not be present for takeaway orders")
		}
	default:
		invalid("order_type", "order type must be one of: dine_in, takeaway")
	}

	if len(req.Items) < 1 {
		invalid("items", "order must contain at least 1 item")
	}

	for i, item := range req.Items {
		itemPrefix := fmt.Sprintf("items[%d]", i)

		if strings.TrimSpace(item.Name) == "" {
			invalid(fmt.Sprintf("%s.name", itemPrefix), "item name is required")
		}
		if item.Quantity < 1 {
			invalid(fmt.Sprintf("%s.quantity", itemPrefix), "item quantity must be at least 1")
		}
		if item.Price < 0 {
			invalid(fmt.Sprintf("%s.price", itemPrefix), "item price must not be negative")
		}
	}

	if req.TaxRate < 0 || req.TaxRate > 100 {
		invalid("tax_rate", "tax rate must be between 0 and 100")
	}
	if req.Discount < 0 {
		invalid("discount", "discount must not be negative")
	}

	return errs
}

func convertItemsToCommand(items []OrderItemRequest) []interfaces.CreateOrderItemCommand {
	result := make([]interfaces.CreateOrderItemCommand, len(items))
	for i, item := range items {
		result[i] = interfaces.CreateOrderItemCommand{
			MenuItemRef: strings.TrimSpace(item.MenuItemRef),
			Name:        strings.TrimSpace(item.Name),
			Price:       item.Price,
			Quantity:    item.Quantity,
			Notes:       strings.TrimSpace(item.Notes),
		}
	}
	return result
}
