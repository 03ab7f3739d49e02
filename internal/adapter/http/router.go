package http

import (
	"net/http"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

// NewRouter assembles the REST surface. Every route runs behind recovery,
// request logging and actor extraction.
func NewRouter(
	orders interfaces.OrderService,
	tables interfaces.TableService,
	payments interfaces.PaymentService,
	notifications interfaces.NotificationService,
	lgr logger.Logger,
) http.Handler {
	orderHandler := NewOrderHandler(orders, lgr)
	tableHandler := NewTableHandler(tables, lgr)
	paymentHandler := NewPaymentHandler(payments, lgr)
	notificationHandler := NewNotificationHandler(notifications, lgr)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", orderHandler.CreateOrder)
	mux.HandleFunc("GET /orders", orderHandler.ListOrders)
	mux.HandleFunc("GET /orders/{id}", orderHandler.GetOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", orderHandler.UpdateStatus)
	mux.HandleFunc("POST /orders/{id}/cancel", orderHandler.CancelOrder)
	mux.HandleFunc("PATCH /orders/{id}/items/{itemId}/status", orderHandler.UpdateItemStatus)
	mux.HandleFunc("POST /orders/{id}/items/{itemId}/cancel", orderHandler.CancelItem)

	mux.HandleFunc("POST /tables", tableHandler.CreateTable)
	mux.HandleFunc("GET /tables", tableHandler.ListTables)
	mux.HandleFunc("POST /tables/{id}/reserve", tableHandler.Reserve)
	mux.HandleFunc("POST /tables/{id}/release", tableHandler.Release)
	mux.HandleFunc("POST /tables/{id}/clean", tableHandler.MarkClean)
	mux.HandleFunc("POST /tables/{id}/force-reset", tableHandler.ForceReset)

	mux.HandleFunc("POST /payments/initiate", paymentHandler.Initiate)
	mux.HandleFunc("POST /payments/{sessionId}/process", paymentHandler.Process)
	mux.HandleFunc("POST /payments/{sessionId}/cancel", paymentHandler.Cancel)

	mux.HandleFunc("POST /notifications/offer", notificationHandler.SendOffer)
	mux.HandleFunc("GET /notifications", notificationHandler.List)
	mux.HandleFunc("GET /notifications/unread-count", notificationHandler.UnreadCount)
	mux.HandleFunc("POST /notifications/mark-read", notificationHandler.MarkRead)
	mux.HandleFunc("POST /notifications/mark-all-read", notificationHandler.MarkAllRead)

	var handler http.Handler = mux
	handler = ActorMiddleware()(handler)
	handler = LoggingMiddleware(lgr)(handler)
	handler = RecoveryMiddleware(lgr)(handler)
	return handler
}
