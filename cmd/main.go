package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/adapter/postgres"
	"github.com/BekzhanKaspakov/mesa/internal/adapter/rabbitmq"
	"github.com/BekzhanKaspakov/mesa/internal/app/notification"
	"github.com/BekzhanKaspakov/mesa/internal/app/order"
	"github.com/BekzhanKaspakov/mesa/internal/app/payment"
	"github.com/BekzhanKaspakov/mesa/internal/app/table"
	"github.com/BekzhanKaspakov/mesa/internal/config"
	"github.com/BekzhanKaspakov/mesa/internal/domain"

	amqpAdapter "github.com/BekzhanKaspakov/mesa/internal/adapter/amqp"
	httpAdapter "github.com/BekzhanKaspakov/mesa/internal/adapter/http"
)

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "", "Service mode: api-server, table-sweeper, event-subscriber")
	port := flag.Int("port", 0, "HTTP port (overrides config, api-server mode)")
	branchID := flag.String("branch", "", "Branch to subscribe to (event-subscriber mode)")
	role := flag.String("role", "all", "Role stream to subscribe to (event-subscriber mode)")
	userID := flag.String("user", "", "Subscribe to a user stream instead of a role stream (event-subscriber mode)")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	lgr := logger.New(*mode)

	// Connect to RabbitMQ
	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mqConn.Close()

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})

	// Route to appropriate service
	switch *mode {
	case "api-server":
		runAPIServer(ctx, cfg, mqConn, lgr)

	case "table-sweeper":
		runTableSweeper(ctx, cfg, mqConn, lgr)

	case "event-subscriber":
		if *branchID == "" {
			log.Fatal("--branch is required for event-subscriber mode")
		}
		runEventSubscriber(ctx, mqConn, lgr, *branchID, *role, *userID)

	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}
}

func connectStore(ctx context.Context, cfg *config.Config, lgr logger.Logger) postgres.DB {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})
	return db
}

func buildServices(db postgres.DB, mqConn rabbitmq.Connection, cfg *config.Config, lgr logger.Logger) (*order.Service, *table.Service, *payment.Service, *notification.Service) {
	publisher := rabbitmq.NewPublisher(mqConn)

	tableService := table.NewService(postgres.NewTableRepository(db), publisher, lgr,
		cfg.Reservation.TTL(), cfg.Reservation.SweepInterval())
	notificationService := notification.NewService(postgres.NewNotificationRepository(db), publisher, lgr)
	orderRepo := postgres.NewOrderRepository(db)
	orderService := order.NewService(orderRepo, tableService, publisher, notificationService, lgr,
		cfg.Policy.CancelPolicy())
	paymentService := payment.NewService(postgres.NewPaymentRepository(db), orderRepo, tableService,
		publisher, notificationService, lgr, cfg.Payment.SessionTTL())

	return orderService, tableService, paymentService, notificationService
}

func runAPIServer(ctx context.Context, cfg *config.Config, mqConn rabbitmq.Connection, lgr logger.Logger) {
	db := connectStore(ctx, cfg, lgr)
	defer db.Close()

	orderService, tableService, paymentService, notificationService := buildServices(db, mqConn, cfg, lgr)

	// In-process sweepers; a dedicated table-sweeper deployment can take over
	// when the API tier is scaled out.
	go tableService.RunSweeper(ctx)
	if cfg.Payment.SessionTTL() > 0 {
		go paymentService.RunSweeper(ctx, cfg.Reservation.SweepInterval())
	}

	handler := httpAdapter.NewRouter(orderService, tableService, paymentService, notificationService, lgr)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("API server started on port %d", cfg.Server.Port), "startup", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		lgr.Info("shutdown_initiated", "Shutting down API server", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lgr.Error("server_error", "Server error", "runtime", nil, err)
	}
}

func runTableSweeper(ctx context.Context, cfg *config.Config, mqConn rabbitmq.Connection, lgr logger.Logger) {
	db := connectStore(ctx, cfg, lgr)
	defer db.Close()

	_, tableService, paymentService, _ := buildServices(db, mqConn, cfg, lgr)

	go tableService.RunSweeper(ctx)
	if cfg.Payment.SessionTTL() > 0 {
		go paymentService.RunSweeper(ctx, cfg.Reservation.SweepInterval())
	}

	lgr.Info("service_started", "Table sweeper started", "startup", map[string]interface{}{
		"reservation_ttl_minutes": cfg.Reservation.TTLMinutes,
		"session_ttl_minutes":     cfg.Payment.SessionTTLMinutes,
	})

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	lgr.Info("shutdown_initiated", "Shutting down table sweeper", "shutdown", nil)
}

func runEventSubscriber(ctx context.Context, mqConn rabbitmq.Connection, lgr logger.Logger, branchID, role, userID string) {
	consumer := rabbitmq.NewConsumer(mqConn, lgr)
	handler := amqpAdapter.NewEventHandler(lgr)

	lgr.Info("service_started", "Event subscriber started", "startup", map[string]interface{}{
		"branch_id": branchID,
		"role":      role,
		"user_id":   userID,
	})

	go func() {
		var err error
		if userID != "" {
			err = consumer.ConsumeUser(ctx, branchID, userID, handler.Handle)
		} else {
			err = consumer.ConsumeRole(ctx, branchID, domain.RoleTarget(role), handler.Handle)
		}
		if err != nil && err != context.Canceled {
			lgr.Error("consumer_error", "Error consuming events", "runtime", nil, err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	lgr.Info("shutdown_initiated", "Shutting down event subscriber", "shutdown", nil)
}
