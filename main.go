package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	ackapp "incident-cloud/internal/acks/application"
	ackrepo "incident-cloud/internal/acks/infrastructure/postgres"
	ackhttp "incident-cloud/internal/acks/interfaces/http"
	"incident-cloud/internal/audit"
	"incident-cloud/internal/auth"
	"incident-cloud/internal/eventing"
	"incident-cloud/internal/gateway"
	incidentapp "incident-cloud/internal/incidents/application"
	incidentrepo "incident-cloud/internal/incidents/infrastructure/postgres"
	incidenthttp "incident-cloud/internal/incidents/interfaces/http"
	"incident-cloud/internal/logging"
	"incident-cloud/internal/notify"
	"incident-cloud/internal/observability/metrics"
	personnelrepo "incident-cloud/internal/personnel/infrastructure/postgres"
	rosterapp "incident-cloud/internal/roster/application"
	rosterrepo "incident-cloud/internal/roster/infrastructure/postgres"
	rosterhttp "incident-cloud/internal/roster/interfaces/http"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := loadConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "incident-cloud")
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init()
	auditor := audit.NewRecorder(logger)

	personnelRepo := personnelrepo.NewPersonnelRepository(db)
	incidentRepo := incidentrepo.NewIncidentRepository(db)
	assignmentRepo := rosterrepo.NewAssignmentRepository(db)
	ackRepo := ackrepo.NewAckRepository(db)

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), personnelRepo)
	if err != nil {
		logger.Fatal("verifier error", zap.Error(err))
	}

	bus := eventing.NewBus()

	gatewayCfg, err := gateway.LoadFileConfig(cfg.GatewayConfigPath)
	if err != nil {
		logger.Fatal("gateway config error", zap.Error(err))
	}
	origins := gatewayCfg.Origins
	if len(origins) == 0 {
		origins = splitCSV(cfg.GatewayOrigins)
	}
	redisAddr := gatewayCfg.Redis.Addr
	if redisAddr == "" {
		redisAddr = cfg.RedisAddr
	}
	if redisAddr != "" {
		channel := gatewayCfg.Redis.Channel
		if channel == "" {
			channel = cfg.RedisChannel
		}
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		bridge := eventing.NewRedisBridge(client, channel, bus, logger)
		go func() {
			if err := bridge.Run(context.Background()); err != nil {
				logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
	}

	var channel notify.Channel
	if cfg.NotifyWebhookURL != "" {
		channel, err = notify.NewWebhookChannel(cfg.NotifyWebhookURL)
		if err != nil {
			logger.Fatal("webhook channel error", zap.Error(err))
		}
	}
	template, err := notify.NewTemplate(cfg.NotifyTemplate)
	if err != nil {
		logger.Fatal("notify template error", zap.Error(err))
	}
	notifyOpts := []notify.Option{}
	if cfg.NotifyCooldown > 0 {
		notifyOpts = append(notifyOpts, notify.WithCooldown(cfg.NotifyCooldown))
	}
	if cfg.NotifyDedupeWindow > 0 {
		notifyOpts = append(notifyOpts, notify.WithDedupeWindow(cfg.NotifyDedupeWindow))
	}
	notifier, err := notify.NewNotifier(personnelRepo, channel, template, bus, logger, notifyOpts...)
	if err != nil {
		logger.Fatal("notifier error", zap.Error(err))
	}
	dispatch := notify.NewMultiNotifier(notifier)

	incidentService, err := incidentapp.NewService(incidentRepo, assignmentRepo, personnelRepo, bus, dispatch, logger)
	if err != nil {
		logger.Fatal("incident service error", zap.Error(err))
	}
	rosterService, err := rosterapp.NewService(incidentRepo, assignmentRepo, personnelRepo, bus, logger)
	if err != nil {
		logger.Fatal("roster service error", zap.Error(err))
	}
	ackService, err := ackapp.NewService(ackRepo, personnelRepo, bus, logger)
	if err != nil {
		logger.Fatal("ack service error", zap.Error(err))
	}

	hub := gateway.NewHub(bus, logger)
	gatewayHandler, err := gateway.New(gateway.Config{
		Verifier:  verifier,
		Hub:       hub,
		Bus:       bus,
		Auditor:   auditor,
		Locations: personnelRepo,
		Duty:      personnelRepo,
		Incidents: incidentRepo,
		Budgets:   gateway.MergeBudgets(gateway.DefaultBudgets(), gatewayCfg.Budgets),
		Origins:   origins,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("gateway error", zap.Error(err))
	}

	incidentHandler, err := incidenthttp.NewHandler(incidentService, assignmentRepo, ackService, logger)
	if err != nil {
		logger.Fatal("incident handler error", zap.Error(err))
	}
	rosterHandler, err := rosterhttp.NewHandler(rosterService, logger)
	if err != nil {
		logger.Fatal("roster handler error", zap.Error(err))
	}
	ackHandler, err := ackhttp.NewHandler(ackService, logger)
	if err != nil {
		logger.Fatal("ack handler error", zap.Error(err))
	}
	incidentRouter := newIncidentRouter(incidentHandler, rosterHandler, ackHandler)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware(verifier, policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/incidents/", incidentRouter)
	mux.Handle("/api/v1/acknowledgments", ackHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The websocket upgrade needs the raw ResponseWriter (hijack), so
	// /ws sits outside the wrapping middleware; the gateway does its
	// own handshake auth.
	root := http.NewServeMux()
	root.Handle("/ws", gatewayHandler)
	root.Handle("/", loggingMiddleware(authMiddleware.Wrap(mux), logger))

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: root,
	}
	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	logger.Fatal("server stopped", zap.Error(server.ListenAndServe()))
}

// newIncidentRouter dispatches /api/v1/incidents/{id}/<sub> requests to
// the owning context handler.
func newIncidentRouter(incidents, roster, acks http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/incidents/")
		parts := strings.Split(path, "/")
		if len(parts) >= 2 {
			switch parts[1] {
			case "responders":
				roster.ServeHTTP(w, r)
				return
			case "acknowledge", "acknowledgments":
				acks.ServeHTTP(w, r)
				return
			}
		}
		incidents.ServeHTTP(w, r)
	})
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	JWTSecret          string
	LogLevel           string
	LogFormat          string
	NotifyWebhookURL   string
	NotifyTemplate     string
	NotifyCooldown     time.Duration
	NotifyDedupeWindow time.Duration
	GatewayConfigPath  string
	GatewayOrigins     string
	RedisAddr          string
	RedisChannel       string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		LogFormat:          getenvDefault("LOG_FORMAT", "json"),
		NotifyWebhookURL:   getenvDefault("NOTIFY_WEBHOOK_URL", ""),
		NotifyTemplate:     getenvDefault("NOTIFY_TEMPLATE", ""),
		NotifyCooldown:     getenvDuration("NOTIFY_COOLDOWN", 0),
		NotifyDedupeWindow: getenvDuration("NOTIFY_DEDUP_WINDOW", 0),
		GatewayConfigPath:  getenvDefault("GATEWAY_CONFIG", ""),
		GatewayOrigins:     getenvDefault("GATEWAY_ORIGINS", ""),
		RedisAddr:          getenvDefault("REDIS_ADDR", ""),
		RedisChannel:       getenvDefault("REDIS_CHANNEL", "incident-cloud:events"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
