package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"auth-service/internal/access"
	"auth-service/internal/auth"
	"auth-service/internal/db"
	"auth-service/internal/identity"
	"auth-service/internal/maintenance"
	"auth-service/internal/observability"
	"auth-service/internal/revocation"
	"auth-service/internal/roles"
	"auth-service/internal/session"
	"auth-service/internal/socials"
	"auth-service/internal/token"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *zap.Logger
	Close   func() error
}

// Build constructs every component once and wires them together. Nothing
// here is a global: services receive their collaborators by handle, which
// keeps tests free to substitute stores.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger, err := observability.NewLogger(envOrDefault("LOG_LEVEL", "info"), os.Getenv("LOG_DEV") == "1")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	redisURL, err := mustEnv("REDIS_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", zap.Error(err))
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	cache, err := revocation.NewRedisCache(redisURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init redis cache: %w", err)
	}
	if err := cache.Ping(context.Background()); err != nil {
		_ = database.Close()
		_ = cache.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	codec := token.NewCodec(jwtSecret,
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
	)

	identityRepo := identity.NewRepository(database)
	sessionRepo := session.NewRepository(database)
	revoker := revocation.NewRevoker(cache)
	tracker := revocation.NewRateTracker(cache.Client(), time.Minute)

	authService := auth.NewService(codec, sessionRepo, identityRepo, revoker, logger)
	accessService := access.NewService(codec)
	rolesService := roles.NewService(identityRepo, accessService, logger)

	if err := bootstrapAdmin(context.Background(), identityRepo, logger); err != nil {
		_ = database.Close()
		_ = cache.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	providers := socials.NewRegistry(providersFromEnv()...)

	authHandler := auth.NewHandler(authService, providers)
	rolesHandler := roles.NewHandler(rolesService)
	cleanupHandler := maintenance.NewCleanupHandler(
		sessionRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("SESSION_RETENTION_DAYS", 14),
		envIntOrDefault("SESSION_CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(tracker, envIntOrDefault("REQUEST_LIMIT_PER_MINUTE", 20))

	// Declared but not enforced: kept as an operational knob until the
	// device-cap policy is confirmed.
	logger.Info("session policy",
		zap.Int("max_sessions_per_user", envIntOrDefault("MAX_SESSIONS_PER_USER", 5)))

	mux := http.NewServeMux()
	mux.Handle("POST /v1/auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /v1/auth/logout", authHandler.Logout)
	mux.HandleFunc("POST /v1/auth/logout_all", authHandler.LogoutAll)
	mux.HandleFunc("GET /v1/auth/validate", authHandler.Validate)
	mux.HandleFunc("GET /v1/auth/history", authHandler.History)
	mux.HandleFunc("PATCH /v1/auth/password", authHandler.PasswordChange)
	mux.HandleFunc("GET /v1/auth/permissions", authHandler.Permissions)
	mux.HandleFunc("GET /v1/auth/authorize/{provider}", authHandler.AuthorizeProvider)

	mux.HandleFunc("GET /v1/roles", rolesHandler.List)
	mux.HandleFunc("GET /v1/roles/{name}", rolesHandler.Get)
	// Mutations pass through the revocation-aware middleware first: the role
	// service itself only checks the signature and the admin claim, so this
	// is what keeps a logged-out admin token out.
	mux.Handle("POST /v1/roles", auth.Middleware(authService, http.HandlerFunc(rolesHandler.Create)))
	mux.Handle("PUT /v1/roles", auth.Middleware(authService, http.HandlerFunc(rolesHandler.Update)))
	mux.Handle("DELETE /v1/roles/{name}", auth.Middleware(authService, http.HandlerFunc(rolesHandler.Delete)))
	mux.Handle("POST /v1/roles/assign", auth.Middleware(authService, http.HandlerFunc(rolesHandler.Assign)))
	mux.Handle("POST /v1/roles/revoke", auth.Middleware(authService, http.HandlerFunc(rolesHandler.Revoke)))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database, cache))

	handler := observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			_ = cache.Close()
			return database.Close()
		},
	}, nil
}

// bootstrapAdmin creates the administrator account from env on first start.
// An already-existing login is fine; a missing admin role is not.
func bootstrapAdmin(ctx context.Context, repo *identity.Repository, logger *zap.Logger) error {
	login := strings.TrimSpace(os.Getenv("ADMIN_LOGIN"))
	password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD"))

	if login == "" && password == "" {
		return nil
	}
	if login == "" || password == "" {
		return fmt.Errorf("ADMIN_LOGIN and ADMIN_PASSWORD are required together")
	}

	_, err := repo.CreateUser(ctx, login, password, "", "", access.AdminRole)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return nil
		}
		return err
	}

	logger.Info("admin account created", zap.String("login", login))
	return nil
}

func providersFromEnv() []socials.Provider {
	var providers []socials.Provider

	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		providers = append(providers, socials.NewGoogleProvider(
			id,
			os.Getenv("GOOGLE_CLIENT_SECRET"),
			os.Getenv("GOOGLE_REDIRECT_URL"),
		))
	}
	if id := os.Getenv("YANDEX_CLIENT_ID"); id != "" {
		providers = append(providers, socials.NewYandexProvider(
			id,
			os.Getenv("YANDEX_CLIENT_SECRET"),
			os.Getenv("YANDEX_REDIRECT_URL"),
		))
	}
	return providers
}

func healthHandler(database *sql.DB, cache *revocation.RedisCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		}
		if err := cache.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["cache"] = "unreachable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}
