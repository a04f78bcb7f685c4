package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/infra/database"
	"github.com/goldtouch/leadwire/internal/infra/http/handlers"
	"github.com/goldtouch/leadwire/internal/infra/http/middleware"
	"github.com/goldtouch/leadwire/internal/infra/integration/stripe"
	"github.com/goldtouch/leadwire/internal/infra/integration/textmagic"
	"github.com/goldtouch/leadwire/internal/infra/mail"
	"github.com/goldtouch/leadwire/internal/infra/queue"
	"github.com/goldtouch/leadwire/internal/usecase"
)

func main() {
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDBConnection(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("❌ database: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("❌ schema: %v", err)
	}

	rabbitMQ, err := queue.NewRabbitMQ(
		envOr("RABBITMQ_USER", "guest"),
		envOr("RABBITMQ_PASS", "guest"),
		envOr("RABBITMQ_HOST", "localhost"),
		envOr("RABBITMQ_PORT", "5672"),
	)
	if err != nil {
		log.Fatalf("❌ rabbitmq: %v", err)
	}
	defer rabbitMQ.Conn.Close()
	defer rabbitMQ.Ch.Close()

	// 1. Repositories
	leadRepo := database.NewLeadRepository(db)
	providerRepo := database.NewProviderRepository(db)
	unlockRepo := database.NewUnlockRepository(db)
	effectRepo := database.NewEffectRepository(db)

	// 2. Gateways and adapters
	smsClient := textmagic.NewClient(
		os.Getenv("TEXTMAGIC_USERNAME"),
		os.Getenv("TEXTMAGIC_API_KEY"),
		os.Getenv("TEXTMAGIC_FROM_NUMBER"),
	)
	stripeClient := stripe.NewClient(
		os.Getenv("STRIPE_SECRET_KEY"),
		os.Getenv("STRIPE_SUCCESS_URL"),
		os.Getenv("STRIPE_CANCEL_URL"),
	)
	mailSender := mail.NewEmailSender(
		os.Getenv("MAIL_HOST"), envInt("MAIL_PORT", 587),
		os.Getenv("MAIL_USER"), os.Getenv("MAIL_PASS"),
		envOr("MAIL_FROM", "alerts@leadwire.app"),
		envOr("MAIL_ESCALATION_TO", "ops@leadwire.app"),
	)
	producer := queue.NewProducer(rabbitMQ.Conn, rabbitMQ.Ch)

	// 3. Engine
	router := engine.NewRouter(unlockRepo, leadRepo, providerRepo, effectRepo, producer)
	reconciler := engine.NewReconciler(unlockRepo, router)

	// 4. Worker (drains the effect queue and calls the gateways)
	worker := queue.NewWorker(
		rabbitMQ.Ch,
		effectRepo, unlockRepo, leadRepo, providerRepo,
		smsClient, stripeClient, mailSender, router,
	)

	// 5. Use cases
	defaults := usecase.UnlockConfig{
		PriceCents: envInt("LEAD_PRICE_CENTS", 2000),
		Currency:   envOr("LEAD_CURRENCY", "usd"),
		TTLHours:   envInt("LEAD_TTL_HOURS", 24),
	}
	createLeadUC := usecase.NewCreateLeadUseCase(leadRepo, providerRepo, unlockRepo, router, defaults)
	sendLeadUC := usecase.NewSendLeadUseCase(leadRepo, providerRepo, unlockRepo, router, defaults)

	// 6. Handlers
	leadHandler := handlers.NewLeadHandler(createLeadUC, sendLeadUC, leadRepo)
	unlockHandler := handlers.NewUnlockStatusHandler(unlockRepo)
	smsWebhook := handlers.NewSMSWebhookHandler(router, os.Getenv("TEXTMAGIC_FROM_NUMBER"))
	stripeWebhook := handlers.NewStripeWebhookHandler(router, os.Getenv("STRIPE_WEBHOOK_SECRET"))
	healthHandler := handlers.NewHealthHandler(db, rabbitMQ.Conn)

	// Effects committed before the last shutdown but never published.
	if err := router.ReplayPending(ctx); err != nil {
		log.Printf("⚠️ replay pending effects: %v", err)
	}

	// 7. Router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	r.Post("/api/leads", leadHandler.Create)
	r.Get("/api/leads/{leadID}", leadHandler.Get)
	r.Post("/api/leads/{leadID}/send", leadHandler.Send)
	r.Get("/api/unlocks/{leadID}/{providerID}", unlockHandler.Handle)
	r.Get("/webhook/sms", smsWebhook.Validate)
	r.Post("/webhook/sms", smsWebhook.Receive)
	r.Post("/webhook/stripe", stripeWebhook.Handle)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	port := ":" + envOr("PORT", "8080")
	server := &http.Server{Addr: port, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(gctx, queue.QueueName)
	})
	g.Go(func() error {
		return reconciler.Start(gctx)
	})
	g.Go(func() error {
		log.Printf("🔥 Leadwire API on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("❌ %v", err)
	}
	log.Println("✅ Leadwire stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
