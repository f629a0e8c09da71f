package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/schedcore/libs/config"
	"github.com/md-rashed-zaman/schedcore/libs/db"
	"github.com/md-rashed-zaman/schedcore/libs/httpx"
	"github.com/md-rashed-zaman/schedcore/libs/kafkax"
	otelx "github.com/md-rashed-zaman/schedcore/libs/otel"
	"github.com/md-rashed-zaman/schedcore/libs/runtime"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/directory"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/reminder"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	clk := clock.System()
	store := availability.NewStore()
	book := ledger.New(clk)
	allocator := availability.NewAllocator(store, book,
		time.Duration(config.Int("SLOT_STEP_MINUTES", 15))*time.Minute, clk)

	staticDir := directory.NewStaticProvider(directory.StaticConfig{
		DefaultConfirmation: directory.ConfirmationPolicy(config.String("CONFIRMATION_POLICY", "auto")),
		DefaultReschedule:   directory.ReschedulePolicy(config.String("RESCHEDULE_POLICY", "keep_confirmed")),
		DefaultNoShowGrace:  time.Duration(config.Int("NO_SHOW_GRACE_MINUTES", 15)) * time.Minute,
		OpenClients:         config.String("OPEN_CLIENTS", "true") == "true",
	})
	var dir directory.Provider = staticDir
	var registrar handlers.Registrar = staticDir
	if addr := config.String("DIRECTORY_GRPC_ADDR", ""); addr != "" {
		remote, err := directory.NewRemoteProvider(addr)
		if err != nil {
			logger.Error("directory provider init failed; using static", "err", err)
		} else if remote != nil {
			dir = remote
			registrar = nil
		}
	}

	// Optional write-behind journal. The ledger stays the system of record;
	// the journal exists for restart recovery and long-term archival.
	var repo *storage.JournalRepository
	var pool *db.Pool
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		repo = storage.NewJournalRepository(pool)

		active, err := repo.LoadActive(ctx)
		if err != nil {
			logger.Error("journal recovery failed", "err", err)
			panic(err)
		}
		book.Restore(active)
		logger.Info("ledger restored from journal", "appointments", len(active))
	}

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	var notifier notify.Notifier
	if kn := notify.NewKafkaNotifier(kafkaBrokers); kn != nil {
		notifier = kn
		defer func() { _ = kn.Close() }()
	} else {
		logger.Warn("kafka brokers not configured; notifications are logged only")
		notifier = notify.NotifierFunc(func(_ context.Context, n notify.Notification) error {
			logger.Info("notification",
				"kind", string(n.Kind),
				"appointment_id", n.AppointmentID,
				"participant_id", n.ParticipantID)
			return nil
		})
	}
	var onFailure notify.FailureFunc
	if repo != nil {
		onFailure = func(n notify.Notification, attempts int, lastErr error) {
			recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.RecordDelivery(recordCtx, storage.Delivery{
				AppointmentID: n.AppointmentID,
				ParticipantID: n.ParticipantID,
				Kind:          string(n.Kind),
				Status:        "failed",
				Attempts:      attempts,
				ErrorReason:   lastErr.Error(),
			}); err != nil {
				logger.Error("delivery record failed", "err", err)
			}
		}
	}
	notifier = notify.NewRetrying(notifier, logger, notify.RetryConfig{
		MaxAttempts: config.Int("NOTIFY_MAX_ATTEMPTS", 5),
		BaseBackoff: 500 * time.Millisecond,
		OnFailure:   onFailure,
	})

	sched := reminder.NewScheduler(clk, notifier, logger,
		time.Duration(config.Int("REMINDER_SWEEP_SECONDS", 1))*time.Second)
	book.Watch(sched.Observe)
	if repo != nil {
		// Single worker so snapshots reach the journal in commit order.
		writer := storage.NewJournalWriter(repo, logger)
		book.Watch(writer.Enqueue)
		go writer.Run(ctx)
	}
	// Re-arm reminders for appointments recovered before the watch existed.
	rearmed := 0
	for _, a := range book.List(ledger.ListFilter{}) {
		if a.Status.Active() {
			sched.Arm(a)
			rearmed++
		}
	}
	if rearmed > 0 {
		logger.Info("reminders re-armed", "count", rearmed)
	}
	go sched.Run(ctx)

	grace := func(professionalID string) time.Duration {
		lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		prof, err := dir.GetProfessional(lookupCtx, professionalID)
		if err != nil {
			return 15 * time.Minute
		}
		return prof.NoShowGrace
	}
	lifecycle := ledger.NewLifecycle(book, grace, logger,
		time.Duration(config.Int("LIFECYCLE_SWEEP_SECONDS", 30))*time.Second)
	go lifecycle.Run(ctx)

	if repo != nil {
		archiver := storage.NewArchiver(book, repo, clk, logger,
			time.Duration(config.Int("RETENTION_DAYS", 90))*24*time.Hour,
			time.Hour)
		go archiver.Run(ctx)
	}

	offsets := config.Minutes("REMINDER_OFFSETS_MINUTES", []time.Duration{24 * time.Hour, time.Hour})
	coordinator := booking.NewCoordinator(book, allocator, dir, notifier, logger, offsets)
	handler := handlers.NewSchedulingHandler(coordinator, store, registrar, logger)

	readyChecks := []runtime.ReadyCheck{}
	if pool != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", handler.Slots)
	mux.HandleFunc("/api/v1/public/book", handler.Book)
	mux.HandleFunc("/api/v1/appointments", handler.List)
	mux.HandleFunc("/api/v1/appointments/confirm", handler.Confirm)
	mux.HandleFunc("/api/v1/appointments/cancel", handler.Cancel)
	mux.HandleFunc("/api/v1/appointments/reschedule", handler.Reschedule)
	mux.HandleFunc("/api/v1/appointments/checkin", handler.CheckIn)
	mux.HandleFunc("/api/v1/professionals/availability", handler.SetAvailability)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-ID"},
			MaxAge:         10 * time.Minute,
		}),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, time.Minute).Middleware())
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	coordinator.Wait()
	logger.Info("http server stopped")
}
